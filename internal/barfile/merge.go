package barfile

import (
	"fmt"
	"os"
)

// Merge streams older and newer into out. On a timestamp present in both
// the newer record wins, and a record is only emitted if its timestamp is
// strictly greater than the last one written. The result is written to a
// temporary file next to out and renamed into place. It returns the
// number of records written.
func Merge(older, newer, out string) (int, error) {
	a, err := Open(older)
	if err != nil {
		return 0, err
	}
	defer a.Close()
	b, err := Open(newer)
	if err != nil {
		return 0, err
	}
	defer b.Close()

	ha, hb := a.Header(), b.Header()
	if ha.Symbol != hb.Symbol || ha.Timeframe != hb.Timeframe {
		return 0, fmt.Errorf("cannot merge %s/%d into %s/%d", ha.Symbol, ha.Timeframe, hb.Symbol, hb.Timeframe)
	}

	tmp := out + ".tmp"
	w, err := Create(tmp, NewHeader(hb.Symbol, hb.Timeframe))
	if err != nil {
		return 0, err
	}

	n, err := mergeInto(w, a.Scan(0), b.Scan(0))
	if err != nil {
		w.Close()
		os.Remove(tmp)
		return 0, err
	}
	if err := w.Close(); err != nil {
		os.Remove(tmp)
		return 0, err
	}
	if err := os.Rename(tmp, out); err != nil {
		os.Remove(tmp)
		return 0, err
	}
	return n, nil
}

func mergeInto(w *Writer, older, newer *Scanner) (int, error) {
	var (
		written  int
		last     uint64
		okA, okB = older.Next(), newer.Next()
	)
	emit := func(rec Record) error {
		if written > 0 && rec.Timestamp <= last {
			return nil
		}
		if err := w.Append(rec); err != nil {
			return err
		}
		written++
		last = rec.Timestamp
		return nil
	}

	for okA || okB {
		var rec Record
		switch {
		case okA && okB && older.Record().Timestamp < newer.Record().Timestamp:
			rec = older.Record()
			okA = older.Next()
		case okA && okB && older.Record().Timestamp == newer.Record().Timestamp:
			rec = newer.Record()
			okA = older.Next()
			okB = newer.Next()
		case okB:
			rec = newer.Record()
			okB = newer.Next()
		default:
			rec = older.Record()
			okA = older.Next()
		}
		if err := emit(rec); err != nil {
			return written, err
		}
	}
	if err := older.Err(); err != nil {
		return written, err
	}
	return written, newer.Err()
}
