package backtest

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/barreplay/internal/domain"
	"github.com/efreitasn/barreplay/internal/series"
)

// Result is everything a run produced.
type Result struct {
	Name           string           `json:"name"`
	Strategy       string           `json:"strategy"`
	Timeframe      series.Timeframe `json:"timeframe"`
	Currency       string           `json:"currency"`
	InitialCapital decimal.Decimal  `json:"initial_capital"`
	Cash           decimal.Decimal  `json:"cash"`
	RealizedPnL    decimal.Decimal  `json:"realized_pnl"`
	UnrealizedPnL  decimal.Decimal  `json:"unrealized_pnl"`
	FinalCapital   decimal.Decimal  `json:"final_capital"`
	TradeCount     int              `json:"trade_count"`

	Symbols       []SymbolResult       `json:"symbols"`
	ClosedTrades  []domain.ClosedTrade `json:"closed_trades"`
	OpenPositions []OpenPosition       `json:"open_positions"`
}

// SymbolResult is the per-symbol part of a run. FinalCapital is the
// initial capital plus this symbol's realized and unrealized PnL.
type SymbolResult struct {
	Symbol        string          `json:"symbol"`
	Bars          int             `json:"bars"`
	FirstTime     time.Time       `json:"first_time"`
	LastTime      time.Time       `json:"last_time"`
	FirstPrice    decimal.Decimal `json:"first_price"`
	LastPrice     decimal.Decimal `json:"last_price"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	FinalCapital  decimal.Decimal `json:"final_capital"`
	Halted        bool            `json:"halted"`
	PendingOrders int             `json:"pending_orders"`

	Timestamps []time.Time                      `json:"timestamps,omitempty"`
	Indicators map[string]map[string][]*float64 `json:"indicators,omitempty"`
}

// OpenPosition is a position still open at the end of the run, valued at
// the last close observed for its symbol.
type OpenPosition struct {
	domain.Position
	MarkPrice     decimal.Decimal `json:"mark_price"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
}

// Symbol returns the result for symbol.
func (r *Result) Symbol(symbol string) (SymbolResult, bool) {
	for _, s := range r.Symbols {
		if s.Symbol == symbol {
			return s, true
		}
	}
	return SymbolResult{}, false
}
