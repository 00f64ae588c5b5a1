package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/efreitasn/barreplay/internal/domain"
	"github.com/efreitasn/barreplay/internal/series"
)

// BarRecord is the Parquet schema for bar data.
type BarRecord struct {
	Symbol    string  `parquet:"symbol"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    float64 `parquet:"volume"`
}

// ParquetBarSource serves bars from Parquet files laid out as
//
//	<Dir>/<SYMBOL>/<timeframe>.parquet
type ParquetBarSource struct {
	Dir string
}

// NewParquetBarSource creates a ParquetBarSource rooted at dir.
func NewParquetBarSource(dir string) *ParquetBarSource {
	return &ParquetBarSource{Dir: dir}
}

// Path returns the file holding symbol at tf.
func (s *ParquetBarSource) Path(symbol string, tf series.Timeframe) string {
	return filepath.Join(s.Dir, symbol, string(tf)+".parquet")
}

// LoadBars reads the bars whose start time falls in [start, end].
func (s *ParquetBarSource) LoadBars(_ context.Context, symbol string, tf series.Timeframe, start, end time.Time) ([]domain.Bar, error) {
	path := s.Path(symbol, tf)
	records, err := readParquetFile[BarRecord](path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrDataNotFound, path)
		}
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrCorruptData, path, err)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Timestamp < records[j].Timestamp
	})

	var bars []domain.Bar
	for _, r := range records {
		ts := time.UnixMilli(r.Timestamp).UTC()
		if !start.IsZero() && ts.Before(start) {
			continue
		}
		if !end.IsZero() && ts.After(end) {
			continue
		}
		bar, err := domain.BarFromFloats(symbol, ts, r.Open, r.High, r.Low, r.Close, r.Volume)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

// WriteBars merges bars into the file for symbol at tf. Bars already on
// disk with the same timestamp are replaced.
func (s *ParquetBarSource) WriteBars(_ context.Context, symbol string, tf series.Timeframe, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	incoming := make([]BarRecord, len(bars))
	for i, b := range bars {
		incoming[i] = BarRecord{
			Symbol:    symbol,
			Timestamp: b.Time.UnixMilli(),
			Open:      b.Open.InexactFloat64(),
			High:      b.High.InexactFloat64(),
			Low:       b.Low.InexactFloat64(),
			Close:     b.Close.InexactFloat64(),
			Volume:    b.Volume.InexactFloat64(),
		}
	}

	path := s.Path(symbol, tf)
	existing, err := readParquetFile[BarRecord](path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("reading bars for %s/%s: %w", symbol, tf, err)
	}
	if err := writeParquetFile(path, mergeBarRecords(existing, incoming)); err != nil {
		return fmt.Errorf("writing bars for %s/%s: %w", symbol, tf, err)
	}
	return nil
}

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	return parquet.ReadFile[T](path)
}

// mergeBarRecords deduplicates by timestamp, preferring incoming records.
func mergeBarRecords(existing, incoming []BarRecord) []BarRecord {
	seen := make(map[int64]BarRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[r.Timestamp] = r
	}
	for _, r := range incoming {
		seen[r.Timestamp] = r
	}

	merged := make([]BarRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}
