// Package indicator computes technical indicators in batch over a whole
// bar range and exposes them through cursor-relative series, so a
// strategy only ever sees values up to the current bar.
package indicator

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/efreitasn/barreplay/internal/domain"
	"github.com/efreitasn/barreplay/internal/series"
)

// Value is the output name of single-output indicators.
const Value = "value"

// Indicator computes one or more named output series over bars. Output
// slices have the same length as bars and hold NaN during warm-up.
type Indicator interface {
	Outputs() []string
	Compute(bars []domain.Bar) map[string][]float64
}

type definition struct {
	ind   Indicator
	frame series.Timeframe
}

// Manager holds the indicators a strategy declared and their
// precomputed series.
type Manager struct {
	cursor *series.Cursor
	defs   map[string]definition
	order  []string
	data   map[string]map[string]*series.Series[float64]
	ready  bool
}

// NewManager creates a Manager whose series follow cursor.
func NewManager(cursor *series.Cursor) *Manager {
	return &Manager{
		cursor: cursor,
		defs:   make(map[string]definition),
		data:   make(map[string]map[string]*series.Series[float64]),
	}
}

// Define declares ind under key on the primary timeframe.
func (m *Manager) Define(key string, ind Indicator) error {
	return m.DefineOn(key, "", ind)
}

// DefineOn declares ind under key on a secondary timeframe. An empty
// timeframe means the primary one.
func (m *Manager) DefineOn(key string, tf series.Timeframe, ind Indicator) error {
	if key == "" {
		return errors.New("indicator key is required")
	}
	if _, dup := m.defs[key]; dup {
		return fmt.Errorf("indicator %q already defined", key)
	}
	if m.ready {
		return fmt.Errorf("indicator %q defined after precompute", key)
	}
	m.defs[key] = definition{ind: ind, frame: tf}
	m.order = append(m.order, key)
	return nil
}

// Precompute runs every declared indicator over the full bar range of
// view. Secondary-timeframe indicators follow the view's mapping so
// they only expose completed bars.
func (m *Manager) Precompute(view *series.View) error {
	for _, key := range m.order {
		def := m.defs[key]
		frame := view.Bars
		if def.frame != "" {
			f, ok := view.Frame(def.frame)
			if !ok {
				return fmt.Errorf("indicator %q: timeframe %s not loaded", key, def.frame)
			}
			frame = f
		}

		out := def.ind.Compute(frame.Values())
		mapping := frame.Mapping()
		outputs := make(map[string]*series.Series[float64], len(out))
		for name, values := range out {
			if mapping != nil {
				outputs[name] = series.Mapped(m.cursor, values, mapping)
			} else {
				outputs[name] = series.New(m.cursor, values)
			}
		}
		m.data[key] = outputs
	}
	m.ready = true
	return nil
}

// Get returns the series for output of the indicator under key.
func (m *Manager) Get(key, output string) (*series.Series[float64], bool) {
	s, ok := m.data[key][output]
	return s, ok
}

// Value reads output of key back bars ago. Warm-up bars read as missing.
func (m *Manager) Value(key, output string, back int) (float64, bool) {
	s, ok := m.Get(key, output)
	if !ok {
		return 0, false
	}
	return series.Float(s, back)
}

// Data returns the full precomputed values, key → output → series, with
// NaN replaced by nil so the result encodes as JSON.
func (m *Manager) Data() map[string]map[string][]*float64 {
	out := make(map[string]map[string][]*float64, len(m.data))
	for key, outputs := range m.data {
		names := make([]string, 0, len(outputs))
		for name := range outputs {
			names = append(names, name)
		}
		sort.Strings(names)
		o := make(map[string][]*float64, len(outputs))
		for _, name := range names {
			values := outputs[name].Values()
			vs := make([]*float64, len(values))
			for i, v := range values {
				if !math.IsNaN(v) {
					v := v
					vs[i] = &v
				}
			}
			o[name] = vs
		}
		out[key] = o
	}
	return out
}

func closes(bars []domain.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close.InexactFloat64()
	}
	return out
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
