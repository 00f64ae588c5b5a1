package barfile

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
)

// Writer creates a bar file and appends records in timestamp order.
type Writer struct {
	f      *os.File
	w      *bufio.Writer
	header Header
	last   uint64
	buf    []byte
}

// Create creates path, truncating any existing file, and writes h with a
// record count of zero.
func Create(path string, h Header) (*Writer, error) {
	h.Count = 0
	hdr, err := h.MarshalBinary()
	if err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	if _, err := f.Write(hdr); err != nil {
		f.Close()
		return nil, err
	}
	return &Writer{
		f:      f,
		w:      bufio.NewWriterSize(f, 64*RecordLen),
		header: h,
		buf:    make([]byte, RecordLen),
	}, nil
}

// Append writes rec. Timestamps must be strictly increasing.
func (w *Writer) Append(rec Record) error {
	if w.header.Count > 0 && rec.Timestamp <= w.last {
		return fmt.Errorf("timestamp %d not after %d", rec.Timestamp, w.last)
	}
	rec.encode(w.buf)
	if _, err := w.w.Write(w.buf); err != nil {
		return err
	}
	w.header.Count++
	w.last = rec.Timestamp
	return nil
}

// Count returns the number of records appended.
func (w *Writer) Count() uint64 { return w.header.Count }

// UpdateCount flushes buffered records and rewrites the header count.
func (w *Writer) UpdateCount() error {
	if err := w.w.Flush(); err != nil {
		return err
	}
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], w.header.Count)
	_, err := w.f.WriteAt(b[:], countOffset)
	return err
}

// Close updates the count, syncs and closes the file.
func (w *Writer) Close() error {
	if err := w.UpdateCount(); err != nil {
		w.f.Close()
		return err
	}
	if err := w.f.Sync(); err != nil {
		w.f.Close()
		return err
	}
	return w.f.Close()
}
