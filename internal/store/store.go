// Package store loads bars for backtests and keeps the runs the service
// has executed.
package store

import (
	"context"
	"time"

	"github.com/efreitasn/barreplay/internal/backtest"
	"github.com/efreitasn/barreplay/internal/series"
)

// Compile-time interface checks.
var (
	_ backtest.BarSource = (*FileBarSource)(nil)
	_ backtest.BarSource = (*ParquetBarSource)(nil)
	_ RunStore           = (*MemoryRunStore)(nil)
	_ RunStore           = (*SQLiteRunStore)(nil)
)

// RunStatus is the outcome of a submitted run.
type RunStatus string

const (
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Run is one submitted backtest and, when it completed, its result.
type Run struct {
	ID          string           `json:"run_id"`
	Status      RunStatus        `json:"status"`
	Error       string           `json:"error,omitempty"`
	Strategy    string           `json:"strategy"`
	Symbols     []string         `json:"symbols"`
	Timeframe   series.Timeframe `json:"timeframe"`
	SubmittedAt time.Time        `json:"submitted_at"`
	FinishedAt  time.Time        `json:"finished_at"`
	Result      *backtest.Result `json:"-"`
}

// RunStore persists runs. Get returns domain.ErrRunNotFound for unknown
// ids. List is newest first with 1-based pages and also returns the total
// number of runs.
type RunStore interface {
	Save(ctx context.Context, run *Run) error
	Get(ctx context.Context, id string) (*Run, error)
	List(ctx context.Context, page, limit int) ([]*Run, int, error)
}

// paginate returns the bounds of a 1-based page over total items.
func paginate(total, page, limit int) (start, end int) {
	start = (page - 1) * limit
	if start >= total || start < 0 {
		return total, total
	}
	end = start + limit
	if end > total {
		end = total
	}
	return start, end
}
