package store

import (
	"context"
	"sync"

	"github.com/efreitasn/barreplay/internal/domain"
)

// MemoryRunStore is a thread-safe in-memory RunStore with a primary index
// by run id and an append-only submission log.
type MemoryRunStore struct {
	mu    sync.RWMutex
	runs  map[string]*Run
	order []*Run // submission order
}

// NewMemoryRunStore creates an empty MemoryRunStore.
func NewMemoryRunStore() *MemoryRunStore {
	return &MemoryRunStore{runs: make(map[string]*Run)}
}

// Save adds run, or replaces a run with the same id in place.
func (s *MemoryRunStore) Save(_ context.Context, run *Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[run.ID]; ok {
		for i, r := range s.order {
			if r.ID == run.ID {
				s.order[i] = run
			}
		}
	} else {
		s.order = append(s.order, run)
	}
	s.runs[run.ID] = run
	return nil
}

// Get retrieves a run by id.
func (s *MemoryRunStore) Get(_ context.Context, id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.runs[id]
	if !ok {
		return nil, domain.ErrRunNotFound
	}
	return r, nil
}

// List returns runs newest first.
func (s *MemoryRunStore) List(_ context.Context, page, limit int) ([]*Run, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := len(s.order)
	start, end := paginate(total, page, limit)
	out := make([]*Run, 0, end-start)
	for i := total - 1 - start; i > total-1-end; i-- {
		out = append(out, s.order[i])
	}
	return out, total, nil
}
