package store

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"time"

	"github.com/efreitasn/barreplay/internal/barfile"
	"github.com/efreitasn/barreplay/internal/domain"
	"github.com/efreitasn/barreplay/internal/series"
)

// FileBarSource serves bars from STCHXBF1 files laid out as
//
//	<Dir>/<SYMBOL>/<timeframe>.bin
type FileBarSource struct {
	Dir string
}

// NewFileBarSource creates a FileBarSource rooted at dir.
func NewFileBarSource(dir string) *FileBarSource {
	return &FileBarSource{Dir: dir}
}

// Path returns the file holding symbol at tf.
func (s *FileBarSource) Path(symbol string, tf series.Timeframe) string {
	return filepath.Join(s.Dir, symbol, string(tf)+".bin")
}

// LoadBars reads the bars whose start time falls in [start, end].
func (s *FileBarSource) LoadBars(_ context.Context, symbol string, tf series.Timeframe, start, end time.Time) ([]domain.Bar, error) {
	code, err := tf.Code()
	if err != nil {
		return nil, err
	}
	r, err := barfile.Open(s.Path(symbol, tf))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	if r.Header().Timeframe != code {
		return nil, fmt.Errorf("%w: %s holds timeframe code %d, want %d", domain.ErrCorruptData, s.Path(symbol, tf), r.Header().Timeframe, code)
	}

	lo, hi := uint64(0), uint64(math.MaxUint64)
	if !start.IsZero() {
		lo = uint64(max(start.Unix(), 0))
	}
	if !end.IsZero() {
		hi = uint64(max(end.Unix(), 0))
	}
	recs, err := r.Range(lo, hi)
	if err != nil {
		return nil, err
	}

	bars := make([]domain.Bar, len(recs))
	for i, rec := range recs {
		if bars[i], err = rec.Bar(symbol); err != nil {
			return nil, fmt.Errorf("%s: %w", s.Path(symbol, tf), err)
		}
	}
	return bars, nil
}
