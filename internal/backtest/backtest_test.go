package backtest

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/barreplay/internal/commission"
	"github.com/efreitasn/barreplay/internal/domain"
	"github.com/efreitasn/barreplay/internal/series"
	"github.com/efreitasn/barreplay/internal/strategy"
	"github.com/efreitasn/barreplay/internal/strategy/builtins"
)

var t0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// memSource serves bars from memory.
type memSource map[string][]domain.Bar

func (m memSource) LoadBars(_ context.Context, symbol string, _ series.Timeframe, start, end time.Time) ([]domain.Bar, error) {
	bars, ok := m[symbol]
	if !ok {
		return nil, domain.ErrDataNotFound
	}
	var out []domain.Bar
	for _, b := range bars {
		if !start.IsZero() && b.Time.Before(start) {
			continue
		}
		if !end.IsZero() && b.Time.After(end) {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

// hourly builds one bar per hour from closes; highs and lows are one
// unit around the close.
func hourly(symbol string, closes ...string) []domain.Bar {
	bars := make([]domain.Bar, len(closes))
	for i, c := range closes {
		v := d(c)
		bars[i] = domain.Bar{
			Symbol: symbol,
			Time:   t0.Add(time.Duration(i) * time.Hour),
			Open:   v,
			High:   v.Add(decimal.NewFromInt(1)),
			Low:    v.Sub(decimal.NewFromInt(1)),
			Close:  v,
			Volume: decimal.NewFromInt(1),
		}
	}
	return bars
}

// scripted runs fixed actions at given bar indexes.
type scripted struct {
	ctx     *strategy.Context
	actions map[int]func(ctx *strategy.Context, view *series.View)
	frames  []series.Timeframe
	onBar   func(ctx *strategy.Context, view *series.View) error
}

func (s *scripted) Name() string                    { return "scripted" }
func (s *scripted) Configure(strategy.Params) error { return nil }
func (s *scripted) Initialize(ctx *strategy.Context) error {
	s.ctx = ctx
	return nil
}
func (s *scripted) Timeframes() []series.Timeframe { return s.frames }

func (s *scripted) OnBar(view *series.View) error {
	if fn, ok := s.actions[view.Index()]; ok {
		fn(s.ctx, view)
	}
	if s.onBar != nil {
		return s.onBar(s.ctx, view)
	}
	return nil
}

func registryWith(s func() *scripted) *strategy.Registry {
	r := builtins.NewRegistry()
	r.Register("scripted", func() strategy.Strategy { return s() })
	return r
}

func baseConfig(symbols ...string) Config {
	return Config{
		Name:           "test",
		Symbols:        symbols,
		Timeframe:      "1h",
		InitialCapital: d("10000"),
		Commission:     commission.Config{Type: commission.TypeNone},
		Strategy:       "scripted",
	}
}

func TestRun_ShortHeldToEnd(t *testing.T) {
	src := memSource{"ETH": hourly("ETH", "3000", "3050", "3100", "2900")}
	reg := registryWith(func() *scripted {
		return &scripted{actions: map[int]func(*strategy.Context, *series.View){
			1: func(ctx *strategy.Context, _ *series.View) {
				_ = ctx.Orders.QueueEntry(domain.MarketOrder("ETH", domain.Short, d("0.5")))
			},
		}}
	})

	res, err := New(src, reg).Run(context.Background(), baseConfig("ETH"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.OpenPositions) != 1 {
		t.Fatalf("open positions = %d, want 1", len(res.OpenPositions))
	}
	op := res.OpenPositions[0]
	if !op.EntryPrice.Equal(d("3100")) {
		t.Errorf("entry price = %s, want 3100", op.EntryPrice)
	}
	if !op.UnrealizedPnL.Equal(d("100")) {
		t.Errorf("unrealized = %s, want 100", op.UnrealizedPnL)
	}
	if !res.FinalCapital.Equal(d("10100")) {
		t.Errorf("final capital = %s, want 10100", res.FinalCapital)
	}
	if !res.Cash.Equal(d("11550")) {
		t.Errorf("cash = %s, want 11550", res.Cash)
	}
	if len(res.ClosedTrades) != 0 {
		t.Errorf("closed trades = %d, want 0", len(res.ClosedTrades))
	}
	sym, _ := res.Symbol("ETH")
	if !sym.FirstPrice.Equal(d("3000")) || !sym.LastPrice.Equal(d("2900")) {
		t.Errorf("first/last = %s/%s, want 3000/2900", sym.FirstPrice, sym.LastPrice)
	}
}

func TestRun_MarketFillOpen(t *testing.T) {
	bars := hourly("ETH", "100", "100", "100")
	bars[1].Open = d("97")
	src := memSource{"ETH": bars}
	reg := registryWith(func() *scripted {
		return &scripted{actions: map[int]func(*strategy.Context, *series.View){
			0: func(ctx *strategy.Context, _ *series.View) {
				_ = ctx.Orders.QueueEntry(domain.MarketOrder("ETH", domain.Long, d("1")))
			},
		}}
	})
	cfg := baseConfig("ETH")
	cfg.MarketFill = "open"

	res, err := New(src, reg).Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.OpenPositions[0].EntryPrice.Equal(d("97")) {
		t.Errorf("entry = %s, want open 97", res.OpenPositions[0].EntryPrice)
	}
}

func sineBars(symbol string, n int) []domain.Bar {
	closes := make([]string, n)
	for i := range closes {
		v := 100 + 20*math.Sin(float64(i)/5)
		closes[i] = decimal.NewFromFloat(v).Round(2).String()
	}
	return hourly(symbol, closes...)
}

func TestRun_Deterministic(t *testing.T) {
	src := memSource{"ETH": sineBars("ETH", 300), "BTC": sineBars("BTC", 250)}
	reg := builtins.NewRegistry()
	cfg := Config{
		Name:           "det",
		Symbols:        []string{"ETH", "BTC"},
		Timeframe:      "1h",
		InitialCapital: d("100000"),
		Commission:     commission.Config{Type: commission.TypePercentage, Value: "0.001"},
		Strategy:       builtins.SMACrossName,
		Params: strategy.Params{
			"fast": "5", "slow": "15", "quantity": "3",
			"allow_short": "true", "stop_loss_pct": "0.05",
		},
	}

	run := func() ([]byte, *Result) {
		c := cfg
		c.Symbols = append([]string(nil), cfg.Symbols...)
		res, err := New(src, reg).Run(context.Background(), c)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		b, err := json.Marshal(res.ClosedTrades)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		return b, res
	}

	a, ra := run()
	b, rb := run()
	if string(a) != string(b) {
		t.Error("closed-trade logs differ between identical runs")
	}
	if !ra.FinalCapital.Equal(rb.FinalCapital) {
		t.Errorf("final capital differs: %s vs %s", ra.FinalCapital, rb.FinalCapital)
	}
	if len(ra.ClosedTrades) == 0 {
		t.Fatal("expected the crossover strategy to trade on a sine wave")
	}

	sum := ra.InitialCapital
	for _, tr := range ra.ClosedTrades {
		sum = sum.Add(tr.PnL)
	}
	for _, p := range ra.OpenPositions {
		sum = sum.Add(p.UnrealizedPnL)
	}
	if !sum.Equal(ra.FinalCapital) {
		t.Errorf("final capital %s != initial + realized + unrealized %s", ra.FinalCapital, sum)
	}
}

func TestRun_SecondaryTimeframeHidesOpenBuckets(t *testing.T) {
	src := memSource{"ETH": sineBars("ETH", 48)}
	var checked int
	reg := registryWith(func() *scripted {
		return &scripted{
			frames: []series.Timeframe{"4h"},
			onBar: func(_ *strategy.Context, view *series.View) error {
				frame, ok := view.Frame("4h")
				if !ok {
					return errors.New("4h frame missing")
				}
				bar, _ := view.Bar()
				if sec, ok := frame.Current(); ok {
					checked++
					if sec.Time.Add(4 * time.Hour).After(bar.Time.Add(time.Hour)) {
						return errors.New("incomplete 4h bar visible")
					}
				}
				return nil
			},
		}
	})

	if _, err := New(src, reg).Run(context.Background(), baseConfig("ETH")); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if checked != 45 {
		t.Errorf("4h bar visible on %d bars, want 45", checked)
	}
}

func TestRun_DepletionHaltsOnlyThatSymbol(t *testing.T) {
	src := memSource{
		"ETH": hourly("ETH", "100", "100", "100", "100", "100"),
		"BTC": hourly("BTC", "50", "50", "50"),
	}
	reg := registryWith(func() *scripted {
		return &scripted{actions: map[int]func(*strategy.Context, *series.View){
			0: func(ctx *strategy.Context, view *series.View) {
				if view.Symbol == "ETH" {
					_ = ctx.Orders.QueueEntry(domain.MarketOrder("ETH", domain.Long, d("100")))
				}
			},
		}}
	})

	var last [2]int
	res, err := New(src, reg, WithProgress(func(p, total int) {
		last = [2]int{p, total}
	})).Run(context.Background(), baseConfig("ETH", "BTC"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if last != [2]int{8, 8} {
		t.Errorf("last progress = %v, want halted bars counted up to [8 8]", last)
	}
	eth, _ := res.Symbol("ETH")
	if !eth.Halted || eth.Bars != 2 {
		t.Errorf("ETH halted=%v bars=%d, want true and 2", eth.Halted, eth.Bars)
	}
	btc, _ := res.Symbol("BTC")
	if !btc.Halted {
		t.Error("BTC shares the depleted cash pool and should halt too")
	}
	if !res.FinalCapital.Equal(d("10000")) {
		t.Errorf("final capital = %s, want 10000", res.FinalCapital)
	}
}

func TestRun_Errors(t *testing.T) {
	src := memSource{"ETH": hourly("ETH", "1", "2")}
	reg := registryWith(func() *scripted { return &scripted{} })

	tests := []struct {
		name       string
		mutate     func(c *Config)
		wantErr    error
		wantConfig bool
	}{
		{"missing data", func(c *Config) { c.Symbols = []string{"ETH", "XRP"} }, domain.ErrDataNotFound, false},
		{"unknown strategy", func(c *Config) { c.Strategy = "ghost" }, domain.ErrUnknownStrategy, true},
		{"unknown commission", func(c *Config) { c.Commission = commission.Config{Type: "tiered", Value: "1"} }, domain.ErrUnknownCommission, true},
		{"no symbols", func(c *Config) { c.Symbols = nil }, nil, true},
		{"bad timeframe", func(c *Config) { c.Timeframe = "1y" }, nil, true},
		{"zero capital", func(c *Config) { c.InitialCapital = decimal.Zero }, nil, true},
		{"bad fill", func(c *Config) { c.MarketFill = "vwap" }, nil, true},
		{"bad params", func(c *Config) {
			c.Strategy = builtins.SMACrossName
			c.Params = strategy.Params{"fast": "10", "slow": "5"}
		}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseConfig("ETH")
			tt.mutate(&cfg)
			_, err := New(src, reg).Run(context.Background(), cfg)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("got %v, want %v in chain", err, tt.wantErr)
			}
			if IsConfigError(err) != tt.wantConfig {
				t.Errorf("IsConfigError = %v, want %v (%v)", IsConfigError(err), tt.wantConfig, err)
			}
		})
	}
}

// blockingSource holds every load until ctx is cancelled, except for
// symbols in fail, which report missing data at once.
type blockingSource struct {
	fail map[string]bool
}

func (s blockingSource) LoadBars(ctx context.Context, symbol string, _ series.Timeframe, _, _ time.Time) ([]domain.Bar, error) {
	if s.fail[symbol] {
		return nil, domain.ErrDataNotFound
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestRun_MissingDataCancelsOtherLoads(t *testing.T) {
	reg := registryWith(func() *scripted { return &scripted{} })
	src := blockingSource{fail: map[string]bool{"XRP": true}}

	done := make(chan error, 1)
	go func() {
		_, err := New(src, reg).Run(context.Background(), baseConfig("ETH", "BTC", "XRP"))
		done <- err
	}()

	select {
	case err := <-done:
		if !errors.Is(err, domain.ErrDataNotFound) {
			t.Fatalf("got %v, want ErrDataNotFound", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("pending loads were not cancelled")
	}
}

func TestRun_ProgressAndCancel(t *testing.T) {
	src := memSource{"ETH": hourly("ETH", "1", "2", "3", "4", "5")}
	reg := registryWith(func() *scripted { return &scripted{} })

	var calls [][2]int
	_, err := New(src, reg, WithProgress(func(p, total int) {
		calls = append(calls, [2]int{p, total})
	})).Run(context.Background(), baseConfig("ETH"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(calls) != 5 || calls[4] != [2]int{5, 5} {
		t.Errorf("progress calls = %v", calls)
	}

	ctx, cancel := context.WithCancel(context.Background())
	n := 0
	_, err = New(src, reg, WithProgress(func(p, _ int) {
		n = p
		if p == 2 {
			cancel()
		}
	})).Run(ctx, baseConfig("ETH"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
	if n != 2 {
		t.Errorf("stopped after %d bars, want 2", n)
	}
}

func TestRun_StrategyErrorFailsRun(t *testing.T) {
	src := memSource{"ETH": hourly("ETH", "1", "2")}
	boom := errors.New("boom")
	reg := registryWith(func() *scripted {
		return &scripted{onBar: func(*strategy.Context, *series.View) error { return boom }}
	})
	_, err := New(src, reg).Run(context.Background(), baseConfig("ETH"))
	if !errors.Is(err, boom) {
		t.Errorf("got %v, want boom", err)
	}
}
