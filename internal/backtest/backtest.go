// Package backtest replays bars through a strategy one symbol at a time,
// driving the order manager and a run-wide ledger in a fixed per-bar
// order.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/efreitasn/barreplay/internal/commission"
	"github.com/efreitasn/barreplay/internal/domain"
	"github.com/efreitasn/barreplay/internal/engine"
	"github.com/efreitasn/barreplay/internal/indicator"
	"github.com/efreitasn/barreplay/internal/series"
	"github.com/efreitasn/barreplay/internal/strategy"
)

// BarSource loads the bars of one symbol and timeframe whose start time
// falls in [start, end]. Zero bounds are open. Missing data is reported
// with an error wrapping domain.ErrDataNotFound. Symbols are loaded
// concurrently, so implementations must be safe for concurrent use.
type BarSource interface {
	LoadBars(ctx context.Context, symbol string, tf series.Timeframe, start, end time.Time) ([]domain.Bar, error)
}

// ProgressFunc is called after every processed bar. When a symbol halts,
// its remaining bars are reported at once, so the last call always has
// processed == total.
type ProgressFunc func(processed, total int)

// Backtester runs backtests against a bar source and a strategy registry.
type Backtester struct {
	source   BarSource
	registry *strategy.Registry
	logger   *slog.Logger
	progress ProgressFunc
}

// Option configures a Backtester.
type Option func(*Backtester)

// WithLogger sets the logger. The default discards output.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backtester) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithProgress sets a callback invoked after every processed bar.
func WithProgress(fn ProgressFunc) Option {
	return func(b *Backtester) {
		b.progress = fn
	}
}

// New creates a Backtester.
func New(source BarSource, registry *strategy.Registry, opts ...Option) *Backtester {
	b := &Backtester{
		source:   source,
		registry: registry,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// symbolRun is the per-symbol state built before the bar loop starts.
type symbolRun struct {
	symbol     string
	bars       []domain.Bar
	cursor     *series.Cursor
	view       *series.View
	strategy   strategy.Strategy
	indicators *indicator.Manager
	orders     *engine.OrderManager
}

// Run executes the backtest described by cfg. Configuration and data
// errors abort the run before any bar is processed. Booking errors are
// logged and absorbed; capital depletion stops only the affected symbol.
// Cancelling ctx stops the run after the current bar.
func (b *Backtester) Run(ctx context.Context, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	model, err := commission.New(cfg.Commission)
	if err != nil {
		return nil, err
	}
	if !b.registry.Has(cfg.Strategy) {
		return nil, &domain.ConfigError{
			Field: "strategy",
			Err:   fmt.Errorf("%w: %q", domain.ErrUnknownStrategy, cfg.Strategy),
		}
	}

	logger := b.logger.With("run", cfg.Name, "strategy", cfg.Strategy)
	ledger := engine.NewLedger(cfg.InitialCapital, cfg.Currency, engine.NewIDGenerator(cfg.Name+"/positions"), logger)
	executor := engine.NewExecutor(model, cfg.Currency, engine.NewIDGenerator(cfg.Name+"/orders"))

	data, err := b.loadBars(ctx, cfg)
	if err != nil {
		return nil, err
	}

	runs := make([]*symbolRun, 0, len(cfg.Symbols))
	total := 0
	for i, symbol := range cfg.Symbols {
		run, err := b.prepare(cfg, symbol, data[i], ledger, executor, logger)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
		total += len(run.bars)
	}

	logger.Info("backtest started", "symbols", len(runs), "bars", total)

	results := make([]SymbolResult, 0, len(runs))
	processed := 0
	for _, run := range runs {
		res, err := b.replay(ctx, run, ledger, &processed, total, logger)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}

	result := summarize(cfg, ledger, results)
	logger.Info("backtest finished",
		"trades", len(result.ClosedTrades),
		"open_positions", len(result.OpenPositions),
		"final_capital", result.FinalCapital.String(),
	)
	return result, nil
}

// maxConcurrentLoads bounds the symbols read from the bar source at once.
const maxConcurrentLoads = 8

// loadBars reads the bars of every symbol in cfg, indexed like
// cfg.Symbols. The first failure cancels the loads still in flight.
func (b *Backtester) loadBars(ctx context.Context, cfg Config) ([][]domain.Bar, error) {
	out := make([][]domain.Bar, len(cfg.Symbols))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentLoads)
	for i, symbol := range cfg.Symbols {
		g.Go(func() error {
			bars, err := b.source.LoadBars(gctx, symbol, cfg.Timeframe, cfg.Start, cfg.End)
			if err != nil {
				return fmt.Errorf("load %s %s: %w", symbol, cfg.Timeframe, err)
			}
			if len(bars) == 0 {
				return fmt.Errorf("load %s %s: %w", symbol, cfg.Timeframe, domain.ErrDataNotFound)
			}
			out[i] = bars
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (b *Backtester) prepare(
	cfg Config,
	symbol string,
	bars []domain.Bar,
	ledger *engine.Ledger,
	executor *engine.Executor,
	logger *slog.Logger,
) (*symbolRun, error) {
	strat, err := b.registry.New(cfg.Strategy)
	if err != nil {
		return nil, &domain.ConfigError{Field: "strategy", Err: err}
	}
	if err := strat.Configure(cfg.Params); err != nil {
		return nil, &domain.ConfigError{Field: "strategy.params", Err: err}
	}

	cursor := series.NewCursor()
	view := series.NewView(symbol, cfg.Timeframe, cursor, bars)
	if d, ok := strat.(strategy.TimeframeDeclarer); ok {
		for _, tf := range d.Timeframes() {
			if err := addTimeframe(view, cfg.Timeframe, tf, bars); err != nil {
				return nil, &domain.ConfigError{Field: "strategy.timeframes", Err: err}
			}
		}
	}

	symLogger := logger.With("symbol", symbol)
	run := &symbolRun{
		symbol:     symbol,
		bars:       bars,
		cursor:     cursor,
		view:       view,
		strategy:   strat,
		indicators: indicator.NewManager(cursor),
		orders:     engine.NewOrderManager(ledger, executor, cursor, cfg.MarketFill, symLogger),
	}
	sctx := &strategy.Context{
		Symbol:     symbol,
		Cursor:     cursor,
		Indicators: run.indicators,
		Orders:     run.orders,
		Logger:     symLogger,
	}
	if err := strat.Initialize(sctx); err != nil {
		return nil, fmt.Errorf("initialize %s for %s: %w", cfg.Strategy, symbol, err)
	}
	if err := run.indicators.Precompute(view); err != nil {
		return nil, fmt.Errorf("precompute indicators for %s: %w", symbol, err)
	}
	return run, nil
}

// addTimeframe resamples the primary bars into tf and attaches them to
// view. tf must be a whole multiple of the primary timeframe.
func addTimeframe(view *series.View, primary, tf series.Timeframe, bars []domain.Bar) error {
	if tf == primary {
		return nil
	}
	pd, _ := primary.Duration()
	sd, err := tf.Duration()
	if err != nil {
		return err
	}
	if sd < pd || sd%pd != 0 {
		return fmt.Errorf("timeframe %s is not a multiple of %s", tf, primary)
	}
	if _, ok := view.Frame(tf); ok {
		return nil
	}
	secondary, err := series.Resample(bars, tf)
	if err != nil {
		return err
	}
	mapping, err := series.CompletedIndex(bars, primary, secondary, tf)
	if err != nil {
		return err
	}
	view.AddTimeframe(tf, secondary, mapping)
	return nil
}

// replay runs the bar loop for one symbol. Per bar, in this order:
// pending orders are checked, the queue is flushed, stop-loss and
// take-profit are checked, the queue is flushed again, depletion halts
// the symbol, and finally the strategy sees the bar.
func (b *Backtester) replay(
	ctx context.Context,
	run *symbolRun,
	ledger *engine.Ledger,
	processed *int,
	total int,
	logger *slog.Logger,
) (SymbolResult, error) {
	res := SymbolResult{
		Symbol:     run.symbol,
		FirstTime:  run.bars[0].Time,
		FirstPrice: run.bars[0].Close,
	}
	var last domain.Bar
	for i, bar := range run.bars {
		run.cursor.Advance()
		last = bar
		res.Bars++

		run.orders.CheckPendingOrders(bar, i)
		run.orders.ProcessSignalQueue(bar)
		run.orders.QueueProtectiveExits(run.symbol, bar)
		run.orders.ProcessSignalQueue(bar)

		if domain.IsDepleted(ledger.Cash()) {
			logger.Warn("capital depleted, halting symbol",
				"symbol", run.symbol,
				"bar_index", i,
				"time", bar.Time,
				"cash", ledger.Cash().String(),
			)
			res.Halted = true
			// The skipped bars still count so progress reaches total.
			*processed += len(run.bars) - i
			if b.progress != nil {
				b.progress(*processed, total)
			}
			break
		}

		if err := run.strategy.OnBar(run.view); err != nil {
			return SymbolResult{}, fmt.Errorf("%s on %s at %s: %w", run.strategy.Name(), run.symbol, bar.Time, err)
		}

		*processed++
		if b.progress != nil {
			b.progress(*processed, total)
		}
		if err := ctx.Err(); err != nil {
			return SymbolResult{}, err
		}
	}

	res.LastTime = last.Time
	res.LastPrice = last.Close
	res.PendingOrders = len(run.orders.PendingOrders())
	res.Timestamps = make([]time.Time, res.Bars)
	for i := range res.Timestamps {
		res.Timestamps[i] = run.bars[i].Time
	}
	res.Indicators = run.indicators.Data()
	return res, nil
}

func summarize(cfg Config, ledger *engine.Ledger, symbols []SymbolResult) *Result {
	result := &Result{
		Name:           cfg.Name,
		Strategy:       cfg.Strategy,
		Timeframe:      cfg.Timeframe,
		Currency:       cfg.Currency,
		InitialCapital: ledger.InitialCapital(),
		Cash:           ledger.Cash(),
		RealizedPnL:    decimal.Zero,
		UnrealizedPnL:  decimal.Zero,
		TradeCount:     ledger.TradeCount(),
		ClosedTrades:   ledger.ClosedTrades(),
		OpenPositions:  []OpenPosition{},
	}

	index := make(map[string]int, len(symbols))
	for i := range symbols {
		index[symbols[i].Symbol] = i
		symbols[i].RealizedPnL = decimal.Zero
		symbols[i].UnrealizedPnL = decimal.Zero
	}

	for _, tr := range result.ClosedTrades {
		result.RealizedPnL = result.RealizedPnL.Add(tr.PnL)
		if i, ok := index[tr.Symbol]; ok {
			symbols[i].RealizedPnL = symbols[i].RealizedPnL.Add(tr.PnL)
		}
	}
	for _, pos := range ledger.OpenPositions() {
		i, ok := index[pos.Symbol]
		if !ok {
			continue
		}
		mark := symbols[i].LastPrice
		upnl := pos.UnrealizedPnL(mark)
		result.OpenPositions = append(result.OpenPositions, OpenPosition{
			Position:      pos,
			MarkPrice:     mark,
			UnrealizedPnL: upnl,
		})
		result.UnrealizedPnL = result.UnrealizedPnL.Add(upnl)
		symbols[i].UnrealizedPnL = symbols[i].UnrealizedPnL.Add(upnl)
	}
	for i := range symbols {
		symbols[i].FinalCapital = result.InitialCapital.Add(symbols[i].RealizedPnL).Add(symbols[i].UnrealizedPnL)
	}

	result.Symbols = symbols
	result.FinalCapital = result.InitialCapital.Add(result.RealizedPnL).Add(result.UnrealizedPnL)
	return result
}

// IsConfigError reports whether err is a configuration error.
func IsConfigError(err error) bool {
	var cfgErr *domain.ConfigError
	return errors.As(err, &cfgErr)
}
