package series

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/barreplay/internal/domain"
)

// Bars is a bar series with field accessors.
type Bars struct {
	*Series[domain.Bar]
}

// NewBars returns a bar series that follows cursor one-to-one.
func NewBars(cursor *Cursor, bars []domain.Bar) *Bars {
	return &Bars{Series: New(cursor, bars)}
}

// Open returns the open back bars ago.
func (b *Bars) Open(back int) (decimal.Decimal, bool) {
	bar, ok := b.At(back)
	return bar.Open, ok
}

// High returns the high back bars ago.
func (b *Bars) High(back int) (decimal.Decimal, bool) {
	bar, ok := b.At(back)
	return bar.High, ok
}

// Low returns the low back bars ago.
func (b *Bars) Low(back int) (decimal.Decimal, bool) {
	bar, ok := b.At(back)
	return bar.Low, ok
}

// Close returns the close back bars ago.
func (b *Bars) Close(back int) (decimal.Decimal, bool) {
	bar, ok := b.At(back)
	return bar.Close, ok
}

// Volume returns the volume back bars ago.
func (b *Bars) Volume(back int) (decimal.Decimal, bool) {
	bar, ok := b.At(back)
	return bar.Volume, ok
}

// Time returns the start time of the bar back bars ago.
func (b *Bars) Time(back int) (time.Time, bool) {
	bar, ok := b.At(back)
	return bar.Time, ok
}
