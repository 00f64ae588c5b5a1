// Package series provides cursor-relative views over precomputed data.
// One Cursor per symbol run is shared by every view; advancing it moves
// all of them at once, and nothing past the cursor is ever visible.
package series

// Cursor is the shared current-bar index. It starts before the first bar.
// It is not safe for concurrent use; a run drives it from one goroutine.
type Cursor struct {
	index int
}

// NewCursor returns a cursor positioned before the first bar.
func NewCursor() *Cursor {
	return &Cursor{index: -1}
}

// Index returns the current bar index, or -1 before the first Advance.
func (c *Cursor) Index() int {
	return c.index
}

// Advance moves to the next bar and returns the new index.
func (c *Cursor) Advance() int {
	c.index++
	return c.index
}
