package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Bar is one OHLCV record for a fixed time interval. Time is the start of
// the interval.
type Bar struct {
	Symbol string
	Time   time.Time
	Open   decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
	Volume decimal.Decimal
}

// BarFromFloats builds a bar from stored float fields. Any NaN or infinite
// field makes the record corrupt.
func BarFromFloats(symbol string, t time.Time, open, high, low, close, volume float64) (Bar, error) {
	b := Bar{Symbol: symbol, Time: t}
	fields := []struct {
		name string
		v    float64
		dst  *decimal.Decimal
	}{
		{"open", open, &b.Open},
		{"high", high, &b.High},
		{"low", low, &b.Low},
		{"close", close, &b.Close},
		{"volume", volume, &b.Volume},
	}
	for _, f := range fields {
		d, err := FiniteFromFloat(f.v)
		if err != nil {
			return Bar{}, fmt.Errorf("%s %s at %s: %w", symbol, f.name, t.Format(time.RFC3339), err)
		}
		*f.dst = d
	}
	return b, nil
}
