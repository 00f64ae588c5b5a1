package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is an open quantity of one symbol. Only the ledger mutates it;
// everything else receives copies.
type Position struct {
	ID         string          `json:"id"`
	Symbol     string          `json:"symbol"`
	Direction  Direction       `json:"direction"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	Quantity   decimal.Decimal `json:"quantity"`
	EntryTime  time.Time       `json:"entry_time"`
	// EntryCommission is the part of the entry fee not yet charged to a
	// closed trade.
	EntryCommission decimal.Decimal     `json:"entry_commission"`
	StopLoss        decimal.NullDecimal `json:"stop_loss"`
	TakeProfit      decimal.NullDecimal `json:"take_profit"`
	Tags            []string            `json:"tags,omitempty"`
	// Seq orders positions by opening.
	Seq uint64 `json:"-"`
}

// GrossPnL returns the sign-adjusted profit of closing qty at exit.
func GrossPnL(dir Direction, entry, exit, qty decimal.Decimal) decimal.Decimal {
	return exit.Sub(entry).Mul(qty).Mul(dir.Sign())
}

// UnrealizedPnL values the whole position at mark.
func (p Position) UnrealizedPnL(mark decimal.Decimal) decimal.Decimal {
	return GrossPnL(p.Direction, p.EntryPrice, mark, p.Quantity)
}
