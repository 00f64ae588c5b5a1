package backtest

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/barreplay/internal/commission"
	"github.com/efreitasn/barreplay/internal/domain"
	"github.com/efreitasn/barreplay/internal/engine"
	"github.com/efreitasn/barreplay/internal/series"
	"github.com/efreitasn/barreplay/internal/strategy"
)

// DefaultCurrency is used when a run does not name one.
const DefaultCurrency = "USD"

// Config describes one backtest run.
type Config struct {
	// Name seeds the deterministic order and position ids. Runs with the
	// same name and inputs produce identical ledgers.
	Name           string
	Symbols        []string
	Timeframe      series.Timeframe
	Start          time.Time // zero means from the first bar
	End            time.Time // zero means through the last bar
	InitialCapital decimal.Decimal
	Currency       string
	Commission     commission.Config
	MarketFill     engine.FillPolicy
	Strategy       string
	Params         strategy.Params
}

// Validate checks cfg and fills defaults. Failures are returned as
// *domain.ConfigError.
func (cfg *Config) Validate() error {
	if cfg.Name == "" {
		cfg.Name = "barreplay"
	}
	if cfg.Currency == "" {
		cfg.Currency = DefaultCurrency
	}
	if len(cfg.Symbols) == 0 {
		return &domain.ConfigError{Field: "symbols", Err: errors.New("at least one symbol is required")}
	}
	seen := make(map[string]bool, len(cfg.Symbols))
	for i, s := range cfg.Symbols {
		s = strings.TrimSpace(s)
		if s == "" {
			return &domain.ConfigError{Field: "symbols", Err: fmt.Errorf("symbol %d is empty", i)}
		}
		if seen[s] {
			return &domain.ConfigError{Field: "symbols", Err: fmt.Errorf("duplicate symbol %q", s)}
		}
		seen[s] = true
		cfg.Symbols[i] = s
	}
	if _, err := cfg.Timeframe.Duration(); err != nil {
		return &domain.ConfigError{Field: "timeframe", Err: err}
	}
	if !cfg.Start.IsZero() && !cfg.End.IsZero() && cfg.End.Before(cfg.Start) {
		return &domain.ConfigError{Field: "end", Err: errors.New("end must not be before start")}
	}
	if !cfg.InitialCapital.IsPositive() {
		return &domain.ConfigError{Field: "initial_capital", Err: errors.New("must be > 0")}
	}
	fill, err := engine.ParseFillPolicy(string(cfg.MarketFill))
	if err != nil {
		return &domain.ConfigError{Field: "market_fill", Err: err}
	}
	cfg.MarketFill = fill
	if cfg.Strategy == "" {
		return &domain.ConfigError{Field: "strategy", Err: errors.New("strategy name is required")}
	}
	return nil
}
