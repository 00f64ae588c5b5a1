// Package commission prices fills. Models are pure functions of the filled
// quantity and price and hold no state between calls.
package commission

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/barreplay/internal/domain"
)

// Model computes the fee charged for one fill.
type Model interface {
	Calculate(quantity, price decimal.Decimal) decimal.Decimal
}

// Type names a commission model in configuration.
type Type string

const (
	TypePercentage    Type = "percentage"
	TypeFixedPerTrade Type = "fixed_per_trade"
	TypeFixedPerUnit  Type = "fixed_per_unit"
	TypeNone          Type = "none"
)

// Percentage charges a fraction of notional: |qty| × price × rate.
type Percentage struct {
	rate decimal.Decimal
}

// NewPercentage returns a percentage model. A rate of 0.001 is 10 bps.
func NewPercentage(rate decimal.Decimal) (*Percentage, error) {
	if rate.IsNegative() {
		return nil, fmt.Errorf("percentage rate must be >= 0, got %s", rate)
	}
	return &Percentage{rate: rate}, nil
}

func (p *Percentage) Calculate(quantity, price decimal.Decimal) decimal.Decimal {
	return quantity.Abs().Mul(price).Mul(p.rate)
}

// FixedPerTrade charges a flat amount regardless of size.
type FixedPerTrade struct {
	amount decimal.Decimal
}

func NewFixedPerTrade(amount decimal.Decimal) (*FixedPerTrade, error) {
	if amount.IsNegative() {
		return nil, fmt.Errorf("fixed amount must be >= 0, got %s", amount)
	}
	return &FixedPerTrade{amount: amount}, nil
}

func (f *FixedPerTrade) Calculate(_, _ decimal.Decimal) decimal.Decimal {
	return f.amount
}

// FixedPerUnit charges |qty| × rate and ignores price.
type FixedPerUnit struct {
	rate decimal.Decimal
}

func NewFixedPerUnit(rate decimal.Decimal) (*FixedPerUnit, error) {
	if rate.IsNegative() {
		return nil, fmt.Errorf("per-unit rate must be >= 0, got %s", rate)
	}
	return &FixedPerUnit{rate: rate}, nil
}

func (f *FixedPerUnit) Calculate(quantity, _ decimal.Decimal) decimal.Decimal {
	return quantity.Abs().Mul(f.rate)
}

// Config selects and parameterizes a model.
type Config struct {
	Type  Type   `json:"type" yaml:"type"`
	Value string `json:"value,omitempty" yaml:"value,omitempty"`
}

// New builds the model described by cfg. Unknown types and bad values are
// returned as *domain.ConfigError.
func New(cfg Config) (Model, error) {
	t := Type(strings.ToLower(strings.TrimSpace(string(cfg.Type))))
	if t == "" || t == TypeNone {
		return &FixedPerTrade{amount: decimal.Zero}, nil
	}

	value, err := domain.ParseDecimal(cfg.Value)
	if err != nil {
		return nil, &domain.ConfigError{Field: "commission.value", Err: err}
	}

	var m Model
	switch t {
	case TypePercentage:
		m, err = NewPercentage(value)
	case TypeFixedPerTrade:
		m, err = NewFixedPerTrade(value)
	case TypeFixedPerUnit:
		m, err = NewFixedPerUnit(value)
	default:
		return nil, &domain.ConfigError{
			Field: "commission.type",
			Err:   fmt.Errorf("%w: %q", domain.ErrUnknownCommission, cfg.Type),
		}
	}
	if err != nil {
		return nil, &domain.ConfigError{Field: "commission.value", Err: err}
	}
	return m, nil
}
