package series

import (
	"github.com/efreitasn/barreplay/internal/domain"
)

// View is the multi-timeframe window a strategy sees on each bar. All of
// its series share one Cursor.
type View struct {
	Symbol    string
	Timeframe Timeframe
	Bars      *Bars

	cursor *Cursor
	frames map[Timeframe]*Bars
}

// NewView builds a view over the primary bars of symbol.
func NewView(symbol string, tf Timeframe, cursor *Cursor, bars []domain.Bar) *View {
	return &View{
		Symbol:    symbol,
		Timeframe: tf,
		Bars:      NewBars(cursor, bars),
		cursor:    cursor,
		frames:    make(map[Timeframe]*Bars),
	}
}

// AddTimeframe attaches a secondary timeframe read through mapping.
func (v *View) AddTimeframe(tf Timeframe, bars []domain.Bar, mapping []int) {
	v.frames[tf] = &Bars{Series: Mapped(v.cursor, bars, mapping)}
}

// Frame returns the series for a secondary timeframe. The primary
// timeframe is also available under its own label.
func (v *View) Frame(tf Timeframe) (*Bars, bool) {
	if tf == v.Timeframe {
		return v.Bars, true
	}
	b, ok := v.frames[tf]
	return b, ok
}

// Index returns the current primary bar index.
func (v *View) Index() int {
	return v.cursor.Index()
}

// Bar returns the current primary bar.
func (v *View) Bar() (domain.Bar, bool) {
	return v.Bars.Current()
}
