package barfile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sort"

	"github.com/efreitasn/barreplay/internal/domain"
)

// Reader gives random and sequential access to a bar file.
type Reader struct {
	f      *os.File
	header Header
}

// Open opens path and validates its header. A missing file is reported
// as domain.ErrDataNotFound; a malformed one as domain.ErrCorruptData.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrDataNotFound, path)
		}
		return nil, err
	}

	buf := make([]byte, HeaderLen)
	if _, err := io.ReadFull(f, buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %s: short header", domain.ErrCorruptData, path)
	}
	var h Header
	if err := h.UnmarshalBinary(buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	body := info.Size() - int64(h.HeaderLen)
	if body < 0 || h.Count > uint64(body)/uint64(h.RecordLen) {
		f.Close()
		return nil, fmt.Errorf("%w: %s: %d records declared, file is %d bytes", domain.ErrCorruptData, path, h.Count, info.Size())
	}
	return &Reader{f: f, header: h}, nil
}

// Header returns the file header.
func (r *Reader) Header() Header { return r.header }

// Len returns the number of records.
func (r *Reader) Len() int { return int(r.header.Count) }

// Close closes the underlying file.
func (r *Reader) Close() error { return r.f.Close() }

// At reads record i.
func (r *Reader) At(i int) (Record, error) {
	if i < 0 || i >= r.Len() {
		return Record{}, fmt.Errorf("record %d out of range [0, %d)", i, r.Len())
	}
	buf := make([]byte, RecordLen)
	off := int64(r.header.HeaderLen) + int64(i)*int64(r.header.RecordLen)
	if _, err := r.f.ReadAt(buf, off); err != nil {
		return Record{}, fmt.Errorf("read record %d: %w", i, err)
	}
	return decodeRecord(buf), nil
}

// Scanner iterates records in file order.
type Scanner struct {
	r    *bufio.Reader
	left int
	buf  []byte
	rec  Record
	err  error
}

// Scan returns a scanner starting at record from.
func (r *Reader) Scan(from int) *Scanner {
	if from < 0 {
		from = 0
	}
	if from > r.Len() {
		from = r.Len()
	}
	off := int64(r.header.HeaderLen) + int64(from)*int64(r.header.RecordLen)
	sr := io.NewSectionReader(r.f, off, int64(r.Len()-from)*int64(r.header.RecordLen))
	return &Scanner{
		r:    bufio.NewReaderSize(sr, 64*RecordLen),
		left: r.Len() - from,
		buf:  make([]byte, RecordLen),
	}
}

// Next advances to the next record.
func (s *Scanner) Next() bool {
	if s.err != nil || s.left == 0 {
		return false
	}
	if _, err := io.ReadFull(s.r, s.buf); err != nil {
		s.err = err
		return false
	}
	s.rec = decodeRecord(s.buf)
	s.left--
	return true
}

// Record returns the current record.
func (s *Scanner) Record() Record { return s.rec }

// Err returns the first read error.
func (s *Scanner) Err() error { return s.err }

// All reads every record.
func (r *Reader) All() ([]Record, error) {
	out := make([]Record, 0, r.Len())
	s := r.Scan(0)
	for s.Next() {
		out = append(out, s.Record())
	}
	return out, s.Err()
}

// Search returns the index of the first record with timestamp >= ts.
func (r *Reader) Search(ts uint64) (int, error) {
	var readErr error
	i := sort.Search(r.Len(), func(i int) bool {
		if readErr != nil {
			return true
		}
		rec, err := r.At(i)
		if err != nil {
			readErr = err
			return true
		}
		return rec.Timestamp >= ts
	})
	return i, readErr
}

// Range returns records with start <= timestamp <= end.
func (r *Reader) Range(start, end uint64) ([]Record, error) {
	from, err := r.Search(start)
	if err != nil {
		return nil, err
	}
	var out []Record
	s := r.Scan(from)
	for s.Next() {
		rec := s.Record()
		if rec.Timestamp > end {
			break
		}
		out = append(out, rec)
	}
	return out, s.Err()
}
