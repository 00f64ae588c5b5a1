package series

import "math"

// Series is an append-only buffer read with lookback offsets relative to
// a shared Cursor: At(0) is the current value, At(1) the previous one.
//
// A mapped series translates the cursor index through mapping before
// reading, which lets a coarser timeframe follow the primary cursor.
type Series[T any] struct {
	cursor  *Cursor
	values  []T
	mapping []int
}

// New returns a series over values that follows cursor one-to-one.
func New[T any](cursor *Cursor, values []T) *Series[T] {
	return &Series[T]{cursor: cursor, values: values}
}

// Mapped returns a series whose position at cursor index i is mapping[i].
// A negative mapping entry means no value is visible yet.
func Mapped[T any](cursor *Cursor, values []T, mapping []int) *Series[T] {
	return &Series[T]{cursor: cursor, values: values, mapping: mapping}
}

// Append adds a value at the end of the buffer.
func (s *Series[T]) Append(v T) {
	s.values = append(s.values, v)
}

// Len returns the number of buffered values, visible or not.
func (s *Series[T]) Len() int {
	return len(s.values)
}

// Values returns the whole buffer, including values the cursor has not
// reached. Batch precomputation reads it; callers must not modify it.
func (s *Series[T]) Values() []T {
	return s.values
}

// Mapping returns the cursor-to-buffer mapping, or nil for a series that
// follows the cursor one-to-one.
func (s *Series[T]) Mapping() []int {
	return s.mapping
}

// Position returns the buffer index the cursor currently resolves to.
func (s *Series[T]) Position() int {
	i := s.cursor.Index()
	if s.mapping == nil {
		return i
	}
	if i < 0 || i >= len(s.mapping) {
		return -1
	}
	return s.mapping[i]
}

// At returns the value back steps before the current one. It reports
// false when the offset reaches before the first value or past the end
// of the buffer.
func (s *Series[T]) At(back int) (T, bool) {
	var zero T
	if back < 0 {
		return zero, false
	}
	pos := s.Position()
	idx := pos - back
	if pos < 0 || idx < 0 || idx >= len(s.values) {
		return zero, false
	}
	return s.values[idx], true
}

// Current is At(0).
func (s *Series[T]) Current() (T, bool) {
	return s.At(0)
}

// Window returns up to n values ending at the current one, oldest first.
// The result is a copy.
func (s *Series[T]) Window(n int) []T {
	pos := s.Position()
	if n <= 0 || pos < 0 {
		return nil
	}
	if pos >= len(s.values) {
		pos = len(s.values) - 1
	}
	start := pos - n + 1
	if start < 0 {
		start = 0
	}
	out := make([]T, pos-start+1)
	copy(out, s.values[start:pos+1])
	return out
}

// Float reads a float series and treats NaN as missing, the convention
// indicators use for warm-up bars.
func Float(s *Series[float64], back int) (float64, bool) {
	v, ok := s.At(back)
	if !ok || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}
