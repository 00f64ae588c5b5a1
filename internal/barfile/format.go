// Package barfile reads and writes STCHXBF1 bar files: a 64-byte header
// followed by fixed 48-byte records sorted by timestamp. Integers are
// little-endian; prices and volume are IEEE-754 doubles.
package barfile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/efreitasn/barreplay/internal/domain"
)

const (
	Magic     = "STCHXBF1"
	Version   = 1
	HeaderLen = 64
	RecordLen = 48

	// TimestampUnixSeconds is the only timestamp format code written.
	TimestampUnixSeconds = 1
	// ValuesFloat64 is the only OHLCV format code written.
	ValuesFloat64 = 1

	symbolLen   = 16
	countOffset = 16
)

// Header is the fixed file header.
type Header struct {
	Version         uint16
	HeaderLen       uint16
	RecordLen       uint16
	TimestampFormat uint8
	ValueFormat     uint8
	Count           uint64
	Symbol          string
	Timeframe       uint32 // seconds per bar
}

// NewHeader returns a current-version header for symbol and timeframe.
func NewHeader(symbol string, timeframe uint32) Header {
	return Header{
		Version:         Version,
		HeaderLen:       HeaderLen,
		RecordLen:       RecordLen,
		TimestampFormat: TimestampUnixSeconds,
		ValueFormat:     ValuesFloat64,
		Symbol:          symbol,
		Timeframe:       timeframe,
	}
}

// MarshalBinary encodes h into HeaderLen bytes.
func (h Header) MarshalBinary() ([]byte, error) {
	if len(h.Symbol) > symbolLen {
		return nil, fmt.Errorf("symbol %q longer than %d bytes", h.Symbol, symbolLen)
	}
	buf := make([]byte, HeaderLen)
	copy(buf[0:8], Magic)
	binary.LittleEndian.PutUint16(buf[8:10], h.Version)
	binary.LittleEndian.PutUint16(buf[10:12], h.HeaderLen)
	binary.LittleEndian.PutUint16(buf[12:14], h.RecordLen)
	buf[14] = h.TimestampFormat
	buf[15] = h.ValueFormat
	binary.LittleEndian.PutUint64(buf[countOffset:countOffset+8], h.Count)
	copy(buf[24:24+symbolLen], h.Symbol)
	binary.LittleEndian.PutUint32(buf[40:44], h.Timeframe)
	return buf, nil
}

// UnmarshalBinary decodes and validates a header. Any mismatch is
// reported as domain.ErrCorruptData.
func (h *Header) UnmarshalBinary(buf []byte) error {
	if len(buf) < HeaderLen {
		return fmt.Errorf("%w: header is %d bytes", domain.ErrCorruptData, len(buf))
	}
	if string(buf[0:8]) != Magic {
		return fmt.Errorf("%w: bad magic %q", domain.ErrCorruptData, buf[0:8])
	}
	h.Version = binary.LittleEndian.Uint16(buf[8:10])
	h.HeaderLen = binary.LittleEndian.Uint16(buf[10:12])
	h.RecordLen = binary.LittleEndian.Uint16(buf[12:14])
	h.TimestampFormat = buf[14]
	h.ValueFormat = buf[15]
	h.Count = binary.LittleEndian.Uint64(buf[countOffset : countOffset+8])
	h.Symbol = string(bytes.TrimRight(buf[24:24+symbolLen], "\x00"))
	h.Timeframe = binary.LittleEndian.Uint32(buf[40:44])

	switch {
	case h.Version != Version:
		return fmt.Errorf("%w: unsupported version %d", domain.ErrCorruptData, h.Version)
	case h.HeaderLen < HeaderLen:
		return fmt.Errorf("%w: header length %d", domain.ErrCorruptData, h.HeaderLen)
	case h.RecordLen != RecordLen:
		return fmt.Errorf("%w: record length %d", domain.ErrCorruptData, h.RecordLen)
	case h.TimestampFormat != TimestampUnixSeconds || h.ValueFormat != ValuesFloat64:
		return fmt.Errorf("%w: unsupported format codes %d/%d", domain.ErrCorruptData, h.TimestampFormat, h.ValueFormat)
	}
	return nil
}

// Record is one bar as stored on disk.
type Record struct {
	Timestamp uint64 // unix seconds
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Time returns the record timestamp in UTC.
func (r Record) Time() time.Time {
	return time.Unix(int64(r.Timestamp), 0).UTC()
}

// Bar converts r into a domain bar with decimal prices. A record holding
// NaN or an infinity yields ErrCorruptData.
func (r Record) Bar(symbol string) (domain.Bar, error) {
	return domain.BarFromFloats(symbol, r.Time(), r.Open, r.High, r.Low, r.Close, r.Volume)
}

// RecordFromBar converts a domain bar into its stored form.
func RecordFromBar(b domain.Bar) Record {
	return Record{
		Timestamp: uint64(b.Time.Unix()),
		Open:      b.Open.InexactFloat64(),
		High:      b.High.InexactFloat64(),
		Low:       b.Low.InexactFloat64(),
		Close:     b.Close.InexactFloat64(),
		Volume:    b.Volume.InexactFloat64(),
	}
}

func (r Record) encode(buf []byte) {
	binary.LittleEndian.PutUint64(buf[0:8], r.Timestamp)
	binary.LittleEndian.PutUint64(buf[8:16], math.Float64bits(r.Open))
	binary.LittleEndian.PutUint64(buf[16:24], math.Float64bits(r.High))
	binary.LittleEndian.PutUint64(buf[24:32], math.Float64bits(r.Low))
	binary.LittleEndian.PutUint64(buf[32:40], math.Float64bits(r.Close))
	binary.LittleEndian.PutUint64(buf[40:48], math.Float64bits(r.Volume))
}

func decodeRecord(buf []byte) Record {
	return Record{
		Timestamp: binary.LittleEndian.Uint64(buf[0:8]),
		Open:      math.Float64frombits(binary.LittleEndian.Uint64(buf[8:16])),
		High:      math.Float64frombits(binary.LittleEndian.Uint64(buf[16:24])),
		Low:       math.Float64frombits(binary.LittleEndian.Uint64(buf[24:32])),
		Close:     math.Float64frombits(binary.LittleEndian.Uint64(buf[32:40])),
		Volume:    math.Float64frombits(binary.LittleEndian.Uint64(buf[40:48])),
	}
}
