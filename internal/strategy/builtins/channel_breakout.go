package builtins

import (
	"github.com/shopspring/decimal"

	"github.com/efreitasn/barreplay/internal/domain"
	"github.com/efreitasn/barreplay/internal/indicator"
	"github.com/efreitasn/barreplay/internal/series"
	"github.com/efreitasn/barreplay/internal/strategy"
)

const ChannelBreakoutName = "channel-breakout"

const (
	breakoutLongID  = "breakout-long"
	breakoutShortID = "breakout-short"
)

// ChannelBreakoutConfig holds the typed parameters of ChannelBreakout.
type ChannelBreakoutConfig struct {
	Period         int
	Quantity       decimal.Decimal
	TimeInForce    int
	AllowShort     bool
	TrendTimeframe series.Timeframe
	TrendPeriod    int
}

// ChannelBreakout rests stop orders at the edges of a Donchian channel
// while flat and exits when price closes through the opposite edge. An
// optional trend filter on a coarser timeframe only allows breakouts in
// the direction of that timeframe's SMA.
type ChannelBreakout struct {
	cfg ChannelBreakoutConfig
	ctx *strategy.Context
}

func (c *ChannelBreakout) Name() string { return ChannelBreakoutName }

func (c *ChannelBreakout) Config() ChannelBreakoutConfig { return c.cfg }

func (c *ChannelBreakout) Configure(params strategy.Params) error {
	r := params.Reader()
	cfg := ChannelBreakoutConfig{
		Period:         r.Int("period", 20),
		Quantity:       r.Decimal("quantity", decimal.NewFromInt(1)),
		TimeInForce:    r.Int("time_in_force", 3),
		AllowShort:     r.Bool("allow_short", false),
		TrendTimeframe: series.Timeframe(r.String("trend_timeframe", "")),
		TrendPeriod:    r.Int("trend_period", 10),
	}
	r.Check(cfg.Period > 1, "period", "must be > 1")
	r.Check(cfg.Quantity.IsPositive(), "quantity", "must be > 0")
	r.Check(cfg.TimeInForce >= 0, "time_in_force", "must be >= 0")
	if cfg.TrendTimeframe != "" {
		_, err := cfg.TrendTimeframe.Duration()
		r.Check(err == nil, "trend_timeframe", "must be a timeframe such as 4h or 1d")
		r.Check(cfg.TrendPeriod > 0, "trend_period", "must be > 0")
	}
	if err := r.Err(); err != nil {
		return err
	}
	c.cfg = cfg
	return nil
}

// Timeframes declares the trend timeframe when one is configured.
func (c *ChannelBreakout) Timeframes() []series.Timeframe {
	if c.cfg.TrendTimeframe == "" {
		return nil
	}
	return []series.Timeframe{c.cfg.TrendTimeframe}
}

func (c *ChannelBreakout) Initialize(ctx *strategy.Context) error {
	c.ctx = ctx
	if err := ctx.Indicators.Define("upper", indicator.Highest{Period: c.cfg.Period}); err != nil {
		return err
	}
	if err := ctx.Indicators.Define("lower", indicator.Lowest{Period: c.cfg.Period}); err != nil {
		return err
	}
	if c.cfg.TrendTimeframe != "" {
		return ctx.Indicators.DefineOn("trend", c.cfg.TrendTimeframe, indicator.SMA{Period: c.cfg.TrendPeriod})
	}
	return nil
}

func (c *ChannelBreakout) OnBar(view *series.View) error {
	ind := c.ctx.Indicators
	orders := c.ctx.Orders
	symbol := view.Symbol

	closePrice, ok := view.Bars.Close(0)
	if !ok {
		return nil
	}

	if pos, open := orders.Position(symbol); open {
		orders.CancelPendingOrder(breakoutLongID)
		orders.CancelPendingOrder(breakoutShortID)

		if pos.Direction == domain.Long {
			if lower, ok := ind.Value("lower", indicator.Value, 1); ok && closePrice.InexactFloat64() < lower {
				c.booking(orders.ClosePosition(symbol, "channel_exit"))
			}
		} else {
			if upper, ok := ind.Value("upper", indicator.Value, 1); ok && closePrice.InexactFloat64() > upper {
				c.booking(orders.ClosePosition(symbol, "channel_exit"))
			}
		}
		return nil
	}

	upper, okU := ind.Value("upper", indicator.Value, 0)
	lower, okL := ind.Value("lower", indicator.Value, 0)
	if !okU || !okL {
		return nil
	}

	allowLong, allowShort := true, c.cfg.AllowShort
	if c.cfg.TrendTimeframe != "" {
		trend, ok := ind.Value("trend", indicator.Value, 0)
		frame, _ := view.Frame(c.cfg.TrendTimeframe)
		trendClose, okC := frame.Close(0)
		if !ok || !okC {
			return nil
		}
		above := trendClose.InexactFloat64() > trend
		allowLong = allowLong && above
		allowShort = allowShort && !above
	}

	if allowLong && !resting(orders, breakoutLongID) {
		intent := domain.StopOrder(symbol, domain.Long, c.cfg.Quantity, decimal.NewFromFloat(upper), breakoutLongID).
			WithTimeInForce(c.cfg.TimeInForce).
			WithTags("breakout")
		c.booking(orders.QueueEntry(intent))
	} else if !allowLong {
		orders.CancelPendingOrder(breakoutLongID)
	}
	if allowShort && !resting(orders, breakoutShortID) {
		intent := domain.StopOrder(symbol, domain.Short, c.cfg.Quantity, decimal.NewFromFloat(lower), breakoutShortID).
			WithTimeInForce(c.cfg.TimeInForce).
			WithTags("breakout")
		c.booking(orders.QueueEntry(intent))
	} else if !allowShort {
		orders.CancelPendingOrder(breakoutShortID)
	}
	return nil
}

// resting reports whether an order with clientID is still pending. A
// resting stop keeps its level until it fills or its time in force ends.
func resting(orders strategy.Orders, clientID string) bool {
	for _, o := range orders.PendingOrders() {
		if o.Intent.ClientID == clientID {
			return true
		}
	}
	return false
}

func (c *ChannelBreakout) booking(err error) {
	if err != nil {
		c.ctx.Logger.Debug("intent not queued", "strategy", ChannelBreakoutName, "symbol", c.ctx.Symbol, "error", err)
	}
}
