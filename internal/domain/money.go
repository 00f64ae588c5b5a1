package domain

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Epsilon is the cash level at or below which capital counts as depleted.
var Epsilon = decimal.New(1, -8)

// ParseDecimal parses a monetary or quantity string. Empty input is an
// error so that a missing field is never silently read as zero.
func ParseDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("empty decimal value")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal %q: %w", s, err)
	}
	return d, nil
}

// FromFloat converts a stored IEEE-754 price into a decimal using the
// shortest representation that round-trips, so 3100.1 becomes exactly
// 3100.1 rather than its binary expansion.
func FromFloat(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// FiniteFromFloat is FromFloat for values read from storage. NaN and
// infinities are reported as ErrCorruptData.
func FiniteFromFloat(f float64) (decimal.Decimal, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero, fmt.Errorf("%w: non-finite value %v", ErrCorruptData, f)
	}
	return decimal.NewFromFloat(f), nil
}

// IsDepleted reports whether cash has fallen to the depletion threshold.
func IsDepleted(cash decimal.Decimal) bool {
	return cash.LessThanOrEqual(Epsilon)
}

// Price returns a valid NullDecimal holding d.
func Price(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d, Valid: true}
}
