// Package builtins holds the strategies shipped with barreplay.
package builtins

import (
	"github.com/shopspring/decimal"

	"github.com/efreitasn/barreplay/internal/domain"
	"github.com/efreitasn/barreplay/internal/strategy"
)

// Register adds every built-in strategy to r.
func Register(r *strategy.Registry) {
	r.Register(SMACrossName, func() strategy.Strategy { return &SMACross{} })
	r.Register(ChannelBreakoutName, func() strategy.Strategy { return &ChannelBreakout{} })
}

// NewRegistry returns a registry holding the built-in strategies.
func NewRegistry() *strategy.Registry {
	r := strategy.NewRegistry()
	Register(r)
	return r
}

// protect attaches stop-loss and take-profit levels at the given
// fractions of price. A zero fraction leaves the level unset.
func protect(intent domain.TradeIntent, price, slPct, tpPct decimal.Decimal) domain.TradeIntent {
	one := decimal.NewFromInt(1)
	sign := intent.Direction.Sign()
	if slPct.IsPositive() {
		intent = intent.WithStopLoss(price.Mul(one.Sub(sign.Mul(slPct))))
	}
	if tpPct.IsPositive() {
		intent = intent.WithTakeProfit(price.Mul(one.Add(sign.Mul(tpPct))))
	}
	return intent
}
