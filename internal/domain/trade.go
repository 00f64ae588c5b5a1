package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ClosedTrade is one row of the append-only trade log. A partial close
// produces one row for the closed quantity.
type ClosedTrade struct {
	Seq             int             `json:"seq"`
	PositionID      string          `json:"position_id"`
	Symbol          string          `json:"symbol"`
	Direction       Direction       `json:"direction"`
	EntryPrice      decimal.Decimal `json:"entry_price"`
	ExitPrice       decimal.Decimal `json:"exit_price"`
	Quantity        decimal.Decimal `json:"quantity"`
	EntryTime       time.Time       `json:"entry_time"`
	ExitTime        time.Time       `json:"exit_time"`
	EntryCommission decimal.Decimal `json:"entry_commission"`
	ExitCommission  decimal.Decimal `json:"exit_commission"`
	PnL             decimal.Decimal `json:"pnl"`
	EntryTags       []string        `json:"entry_tags,omitempty"`
	ExitTags        []string        `json:"exit_tags,omitempty"`
}
