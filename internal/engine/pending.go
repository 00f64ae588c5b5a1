package engine

import (
	"github.com/google/btree"

	"github.com/efreitasn/barreplay/internal/domain"
)

// pendingEntry is a resting limit or stop order as stored in the book.
type pendingEntry struct {
	createdIndex int
	seq          uint64
	order        domain.PendingOrder
}

// pendingLess orders entries by creation bar, then by insertion sequence,
// so orders are evaluated in the order the strategy placed them.
func pendingLess(a, b pendingEntry) bool {
	if a.createdIndex != b.createdIndex {
		return a.createdIndex < b.createdIndex
	}
	return a.seq < b.seq
}

// PendingBook holds resting limit and stop orders in a B-tree with a
// secondary index for O(log n) removal by client id.
type PendingBook struct {
	tree  *btree.BTreeG[pendingEntry]
	index map[string]pendingEntry // client_id → entry
	seq   uint64
}

// NewPendingBook creates an empty book.
func NewPendingBook() *PendingBook {
	const degree = 16
	return &PendingBook{
		tree:  btree.NewG[pendingEntry](degree, pendingLess),
		index: make(map[string]pendingEntry),
	}
}

// Insert adds order under its client id. An order already resting under
// the same id is replaced; the return value reports whether that happened.
func (b *PendingBook) Insert(order domain.PendingOrder) bool {
	replaced := b.Remove(order.Intent.ClientID)
	b.seq++
	entry := pendingEntry{createdIndex: order.CreatedIndex, seq: b.seq, order: order}
	b.tree.ReplaceOrInsert(entry)
	b.index[order.Intent.ClientID] = entry
	return replaced
}

// Remove deletes the order resting under clientID. It is a no-op for
// unknown ids.
func (b *PendingBook) Remove(clientID string) bool {
	entry, ok := b.index[clientID]
	if !ok {
		return false
	}
	delete(b.index, clientID)
	b.tree.Delete(entry)
	return true
}

// Len returns the number of resting orders.
func (b *PendingBook) Len() int {
	return b.tree.Len()
}

// Walk iterates orders oldest first. The callback returns false to stop.
// The book must not be modified during the walk.
func (b *PendingBook) Walk(fn func(domain.PendingOrder) bool) {
	b.tree.Ascend(func(e pendingEntry) bool {
		return fn(e.order)
	})
}

// Orders returns a snapshot of all resting orders, oldest first.
func (b *PendingBook) Orders() []domain.PendingOrder {
	out := make([]domain.PendingOrder, 0, b.tree.Len())
	b.Walk(func(o domain.PendingOrder) bool {
		out = append(out, o)
		return true
	})
	return out
}
