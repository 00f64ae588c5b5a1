package builtins

import (
	"github.com/shopspring/decimal"

	"github.com/efreitasn/barreplay/internal/domain"
	"github.com/efreitasn/barreplay/internal/indicator"
	"github.com/efreitasn/barreplay/internal/series"
	"github.com/efreitasn/barreplay/internal/strategy"
)

const SMACrossName = "sma-cross"

// SMACrossConfig holds the typed parameters of SMACross.
type SMACrossConfig struct {
	Fast          int
	Slow          int
	Quantity      decimal.Decimal
	AllowShort    bool
	StopLossPct   decimal.Decimal
	TakeProfitPct decimal.Decimal
}

// SMACross goes long when the fast SMA crosses above the slow one and
// closes (or goes short, if allowed) on the opposite cross. Entries are
// market orders with optional percentage stop-loss and take-profit.
type SMACross struct {
	cfg SMACrossConfig
	ctx *strategy.Context
}

func (s *SMACross) Name() string { return SMACrossName }

// Config returns the parsed configuration.
func (s *SMACross) Config() SMACrossConfig { return s.cfg }

func (s *SMACross) Configure(params strategy.Params) error {
	r := params.Reader()
	cfg := SMACrossConfig{
		Fast:          r.Int("fast", 10),
		Slow:          r.Int("slow", 30),
		Quantity:      r.Decimal("quantity", decimal.NewFromInt(1)),
		AllowShort:    r.Bool("allow_short", false),
		StopLossPct:   r.Decimal("stop_loss_pct", decimal.Zero),
		TakeProfitPct: r.Decimal("take_profit_pct", decimal.Zero),
	}
	r.Check(cfg.Fast > 0, "fast", "must be > 0")
	r.Check(cfg.Slow > cfg.Fast, "slow", "must be greater than fast")
	r.Check(cfg.Quantity.IsPositive(), "quantity", "must be > 0")
	r.Check(!cfg.StopLossPct.IsNegative() && cfg.StopLossPct.LessThan(decimal.NewFromInt(1)), "stop_loss_pct", "must be in [0, 1)")
	r.Check(!cfg.TakeProfitPct.IsNegative(), "take_profit_pct", "must be >= 0")
	if err := r.Err(); err != nil {
		return err
	}
	s.cfg = cfg
	return nil
}

func (s *SMACross) Initialize(ctx *strategy.Context) error {
	s.ctx = ctx
	if err := ctx.Indicators.Define("fast", indicator.SMA{Period: s.cfg.Fast}); err != nil {
		return err
	}
	return ctx.Indicators.Define("slow", indicator.SMA{Period: s.cfg.Slow})
}

func (s *SMACross) OnBar(view *series.View) error {
	ind := s.ctx.Indicators
	f0, ok0 := ind.Value("fast", indicator.Value, 0)
	f1, ok1 := ind.Value("fast", indicator.Value, 1)
	s0, ok2 := ind.Value("slow", indicator.Value, 0)
	s1, ok3 := ind.Value("slow", indicator.Value, 1)
	if !ok0 || !ok1 || !ok2 || !ok3 {
		return nil
	}

	var dir domain.Direction
	switch {
	case f1 <= s1 && f0 > s0:
		dir = domain.Long
	case f1 >= s1 && f0 < s0:
		dir = domain.Short
	default:
		return nil
	}

	symbol := view.Symbol
	if pos, ok := s.ctx.Orders.Position(symbol); ok {
		if pos.Direction != dir {
			s.booking(s.ctx.Orders.ClosePosition(symbol, "cross"))
		}
		return nil
	}
	if dir == domain.Short && !s.cfg.AllowShort {
		return nil
	}

	price, ok := view.Bars.Close(0)
	if !ok {
		return nil
	}
	intent := domain.MarketOrder(symbol, dir, s.cfg.Quantity).WithTags("cross")
	intent = protect(intent, price, s.cfg.StopLossPct, s.cfg.TakeProfitPct)
	s.booking(s.ctx.Orders.QueueEntry(intent))
	return nil
}

// booking errors are already logged by the order manager.
func (s *SMACross) booking(err error) {
	if err != nil {
		s.ctx.Logger.Debug("intent not queued", "strategy", SMACrossName, "symbol", s.ctx.Symbol, "error", err)
	}
}
