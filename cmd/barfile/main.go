// Command barfile inspects, imports, merges and exports STCHXBF1 bar
// files.
//
//	barfile inspect <file>
//	barfile import-csv <csv> <out> <symbol> <timeframe>
//	barfile merge <older> <newer> <out>
//	barfile export-parquet <file> <data-dir>
package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/efreitasn/barreplay/internal/barfile"
	"github.com/efreitasn/barreplay/internal/domain"
	"github.com/efreitasn/barreplay/internal/series"
	"github.com/efreitasn/barreplay/internal/store"
)

const usage = `usage:
  barfile inspect <file>
  barfile import-csv <csv> <out> <symbol> <timeframe>
  barfile merge <older> <newer> <out>
  barfile export-parquet <file> <data-dir>`

var errUsage = errors.New(usage)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, usage)
			os.Exit(2)
		}
		logger.Error("barfile failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	switch cmd, rest := args[0], args[1:]; {
	case cmd == "inspect" && len(rest) == 1:
		return inspect(rest[0], out)
	case cmd == "import-csv" && len(rest) == 4:
		n, err := importCSV(rest[0], rest[1], rest[2], series.Timeframe(rest[3]))
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "wrote %d records to %s\n", n, rest[1])
		return nil
	case cmd == "merge" && len(rest) == 3:
		n, err := barfile.Merge(rest[0], rest[1], rest[2])
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "wrote %d records to %s\n", n, rest[2])
		return nil
	case cmd == "export-parquet" && len(rest) == 2:
		return exportParquet(ctx, rest[0], rest[1], out)
	}
	return errUsage
}

func inspect(path string, out io.Writer) error {
	r, err := barfile.Open(path)
	if err != nil {
		return err
	}
	defer r.Close()

	h := r.Header()
	tf, err := series.TimeframeFromCode(h.Timeframe)
	if err != nil {
		tf = series.Timeframe(fmt.Sprintf("%ds", h.Timeframe))
	}
	fmt.Fprintf(out, "symbol:    %s\n", h.Symbol)
	fmt.Fprintf(out, "timeframe: %s\n", tf)
	fmt.Fprintf(out, "version:   %d\n", h.Version)
	fmt.Fprintf(out, "records:   %d\n", r.Len())
	if r.Len() == 0 {
		return nil
	}
	first, err := r.At(0)
	if err != nil {
		return err
	}
	last, err := r.At(r.Len() - 1)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "first:     %s close=%v\n", first.Time().Format(time.RFC3339), first.Close)
	fmt.Fprintf(out, "last:      %s close=%v\n", last.Time().Format(time.RFC3339), last.Close)
	return nil
}

// importCSV converts a CSV with a timestamp,open,high,low,close,volume
// header into a bar file. Timestamps are Unix seconds or RFC 3339. Rows
// are sorted by time and duplicate timestamps are rejected.
func importCSV(in, out, symbol string, tf series.Timeframe) (int, error) {
	code, err := tf.Code()
	if err != nil {
		return 0, err
	}
	f, err := os.Open(in)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	records, err := readCSV(f)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", in, err)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Timestamp < records[j].Timestamp
	})
	for i := 1; i < len(records); i++ {
		if records[i].Timestamp == records[i-1].Timestamp {
			return 0, fmt.Errorf("%s: duplicate timestamp %s", in, records[i].Time().Format(time.RFC3339))
		}
	}

	w, err := barfile.Create(out, barfile.NewHeader(symbol, code))
	if err != nil {
		return 0, err
	}
	for _, rec := range records {
		if err := w.Append(rec); err != nil {
			w.Close()
			return 0, err
		}
	}
	return len(records), w.Close()
}

var csvColumns = []string{"timestamp", "open", "high", "low", "close", "volume"}

func readCSV(r io.Reader) ([]barfile.Record, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, col := range csvColumns {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("missing column %q", col)
		}
	}

	var records []barfile.Record
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return nil, err
		}
		ts, err := parseTimestamp(row[index["timestamp"]])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		var v [5]float64
		for i, col := range csvColumns[1:] {
			v[i], err = strconv.ParseFloat(strings.TrimSpace(row[index[col]]), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: %s: %w", line, col, err)
			}
			if math.IsNaN(v[i]) || math.IsInf(v[i], 0) {
				return nil, fmt.Errorf("line %d: %s: value %q is not finite", line, col, row[index[col]])
			}
		}
		records = append(records, barfile.Record{
			Timestamp: ts,
			Open:      v[0],
			High:      v[1],
			Low:       v[2],
			Close:     v[3],
			Volume:    v[4],
		})
	}
}

func parseTimestamp(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseUint(s, 10, 64); err == nil {
		return n, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0, fmt.Errorf("timestamp %q is neither Unix seconds nor RFC 3339", s)
	}
	if t.Unix() < 0 {
		return 0, fmt.Errorf("timestamp %q is before 1970", s)
	}
	return uint64(t.Unix()), nil
}

// exportParquet copies a bar file into a Parquet data directory.
func exportParquet(ctx context.Context, path, dataDir string, out io.Writer) error {
	r, err := barfile.Open(path)
	if err != nil {
		return err
	}
	defer r.Close()

	h := r.Header()
	tf, err := series.TimeframeFromCode(h.Timeframe)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrCorruptData, err)
	}
	recs, err := r.All()
	if err != nil {
		return err
	}
	bars := make([]domain.Bar, len(recs))
	for i, rec := range recs {
		if bars[i], err = rec.Bar(h.Symbol); err != nil {
			return err
		}
	}

	dst := store.NewParquetBarSource(dataDir)
	if err := dst.WriteBars(ctx, h.Symbol, tf, bars); err != nil {
		return err
	}
	fmt.Fprintf(out, "wrote %d bars to %s\n", len(bars), dst.Path(h.Symbol, tf))
	return nil
}
