package commission

import (
	"testing"

	"github.com/shopspring/decimal"
	"pgregory.net/rapid"
)

// Property 1: percentage commission is |q| × p × r and ignores the sign of q.

func genDecimal(t *rapid.T, label string, lo, hi int64, exp int32) decimal.Decimal {
	return decimal.New(rapid.Int64Range(lo, hi).Draw(t, label), exp)
}

func TestProperty_PercentageIsSignIndependent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		rate := genDecimal(t, "rate", 0, 10000, -6)
		qty := genDecimal(t, "qty", -1_000_000, 1_000_000, -4)
		price := genDecimal(t, "price", 1, 10_000_000, -2)

		m, err := NewPercentage(rate)
		if err != nil {
			t.Fatalf("NewPercentage: %v", err)
		}

		want := qty.Abs().Mul(price).Mul(rate)
		got := m.Calculate(qty, price)
		if !got.Equal(want) {
			t.Fatalf("Calculate(%s, %s) = %s, want %s", qty, price, got, want)
		}
		if !got.Equal(m.Calculate(qty.Neg(), price)) {
			t.Fatalf("fee differs between %s and %s", qty, qty.Neg())
		}
		if got.IsNegative() {
			t.Fatalf("fee must never be negative, got %s", got)
		}
	})
}

func TestProperty_FixedPerUnitIgnoresPrice(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		rate := genDecimal(t, "rate", 0, 1000, -3)
		qty := genDecimal(t, "qty", -100_000, 100_000, -3)
		p1 := genDecimal(t, "p1", 1, 1_000_000, -2)
		p2 := genDecimal(t, "p2", 1, 1_000_000, -2)

		m, _ := NewFixedPerUnit(rate)
		if !m.Calculate(qty, p1).Equal(m.Calculate(qty, p2)) {
			t.Fatalf("per-unit fee depends on price")
		}
	})
}
