package series

import (
	"fmt"
	"strconv"
	"time"
)

// Timeframe is a bar interval label such as "1m", "4h" or "1d".
type Timeframe string

var unitDurations = map[byte]time.Duration{
	's': time.Second,
	'm': time.Minute,
	'h': time.Hour,
	'd': 24 * time.Hour,
	'w': 7 * 24 * time.Hour,
}

// ParseTimeframe validates s and returns it as a Timeframe.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(s)
	if _, err := tf.Duration(); err != nil {
		return "", err
	}
	return tf, nil
}

// Duration returns the interval length.
func (tf Timeframe) Duration() (time.Duration, error) {
	s := string(tf)
	if len(s) < 2 {
		return 0, fmt.Errorf("invalid timeframe %q", s)
	}
	unit, ok := unitDurations[s[len(s)-1]]
	if !ok {
		return 0, fmt.Errorf("invalid timeframe %q: unknown unit", s)
	}
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid timeframe %q: count must be a positive integer", s)
	}
	return time.Duration(n) * unit, nil
}

// Code returns the interval in seconds, the encoding used by bar files.
func (tf Timeframe) Code() (uint32, error) {
	d, err := tf.Duration()
	if err != nil {
		return 0, err
	}
	return uint32(d / time.Second), nil
}

// TimeframeFromCode turns a seconds code back into the coarsest label.
func TimeframeFromCode(code uint32) (Timeframe, error) {
	if code == 0 {
		return "", fmt.Errorf("invalid timeframe code 0")
	}
	for _, u := range []struct {
		unit byte
		secs uint32
	}{{'w', 604800}, {'d', 86400}, {'h', 3600}, {'m', 60}} {
		if code%u.secs == 0 {
			return Timeframe(strconv.FormatUint(uint64(code/u.secs), 10) + string(u.unit)), nil
		}
	}
	return Timeframe(strconv.FormatUint(uint64(code), 10) + "s"), nil
}
