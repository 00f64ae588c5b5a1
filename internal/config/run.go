package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/efreitasn/barreplay/internal/backtest"
	"github.com/efreitasn/barreplay/internal/commission"
	"github.com/efreitasn/barreplay/internal/domain"
	"github.com/efreitasn/barreplay/internal/engine"
	"github.com/efreitasn/barreplay/internal/series"
	"github.com/efreitasn/barreplay/internal/strategy"
)

// RunFile describes a backtest in YAML (for the CLI) or JSON (for the
// HTTP API). Money is written as a decimal string.
type RunFile struct {
	Name           string            `yaml:"name" json:"name"`
	Symbols        []string          `yaml:"symbols" json:"symbols"`
	Timeframe      string            `yaml:"timeframe" json:"timeframe"`
	Start          string            `yaml:"start" json:"start"`
	End            string            `yaml:"end" json:"end"`
	InitialCapital string            `yaml:"initial_capital" json:"initial_capital"`
	Currency       string            `yaml:"currency" json:"currency"`
	Commission     commission.Config `yaml:"commission" json:"commission"`
	MarketFill     string            `yaml:"market_fill" json:"market_fill"`
	Strategy       StrategyConfig    `yaml:"strategy" json:"strategy"`
}

// StrategyConfig names a registered strategy and its parameters.
type StrategyConfig struct {
	Name   string            `yaml:"name" json:"name"`
	Params map[string]string `yaml:"params" json:"params"`
}

// LoadRun reads and parses the YAML run file at path.
func LoadRun(path string) (*RunFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseRun(data)
}

// ParseRun parses a YAML run file.
func ParseRun(data []byte) (*RunFile, error) {
	rf := &RunFile{}
	if err := yaml.Unmarshal(data, rf); err != nil {
		return nil, &domain.ValidationError{Message: fmt.Sprintf("invalid run file: %v", err)}
	}
	return rf, nil
}

// BacktestConfig converts rf into a validated backtest.Config. Failures
// are *domain.ConfigError.
func (rf *RunFile) BacktestConfig() (backtest.Config, error) {
	tf, err := series.ParseTimeframe(rf.Timeframe)
	if err != nil {
		return backtest.Config{}, &domain.ConfigError{Field: "timeframe", Err: err}
	}
	start, err := parseTime(rf.Start, false)
	if err != nil {
		return backtest.Config{}, &domain.ConfigError{Field: "start", Err: err}
	}
	end, err := parseTime(rf.End, true)
	if err != nil {
		return backtest.Config{}, &domain.ConfigError{Field: "end", Err: err}
	}
	if strings.TrimSpace(rf.InitialCapital) == "" {
		return backtest.Config{}, &domain.ConfigError{Field: "initial_capital", Err: errors.New("is required")}
	}
	capital, err := domain.ParseDecimal(rf.InitialCapital)
	if err != nil {
		return backtest.Config{}, &domain.ConfigError{Field: "initial_capital", Err: err}
	}
	fill, err := engine.ParseFillPolicy(rf.MarketFill)
	if err != nil {
		return backtest.Config{}, &domain.ConfigError{Field: "market_fill", Err: err}
	}

	cfg := backtest.Config{
		Name:           rf.Name,
		Symbols:        append([]string(nil), rf.Symbols...),
		Timeframe:      tf,
		Start:          start,
		End:            end,
		InitialCapital: capital,
		Currency:       rf.Currency,
		Commission:     rf.Commission,
		MarketFill:     fill,
		Strategy:       rf.Strategy.Name,
		Params:         strategy.Params(rf.Strategy.Params),
	}
	if err := cfg.Validate(); err != nil {
		return backtest.Config{}, err
	}
	return cfg, nil
}

const dateLayout = "2006-01-02"

// parseTime accepts RFC 3339 or a bare date. A bare end date covers the
// whole day.
func parseTime(s string, end bool) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		if end {
			t = t.Add(24*time.Hour - time.Second)
		}
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is neither RFC 3339 nor YYYY-MM-DD", s)
	}
	return t, nil
}
