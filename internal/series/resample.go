package series

import (
	"fmt"
	"time"

	"github.com/efreitasn/barreplay/internal/domain"
)

// Resample aggregates bars into buckets of the target timeframe aligned to
// the Unix epoch. Each bucket opens at its first bar's open, closes at its
// last bar's close and sums volume. The final bucket may be incomplete;
// CompletedIndex keeps it hidden until it is.
func Resample(bars []domain.Bar, to Timeframe) ([]domain.Bar, error) {
	d, err := to.Duration()
	if err != nil {
		return nil, err
	}
	var out []domain.Bar
	for _, b := range bars {
		start := bucketStart(b.Time, d)
		if n := len(out); n > 0 && out[n-1].Time.Equal(start) {
			agg := &out[n-1]
			if b.High.GreaterThan(agg.High) {
				agg.High = b.High
			}
			if b.Low.LessThan(agg.Low) {
				agg.Low = b.Low
			}
			agg.Close = b.Close
			agg.Volume = agg.Volume.Add(b.Volume)
			continue
		}
		if n := len(out); n > 0 && start.Before(out[n-1].Time) {
			return nil, fmt.Errorf("resample %s: bars out of order at %s", to, b.Time)
		}
		out = append(out, domain.Bar{
			Symbol: b.Symbol,
			Time:   start,
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
		})
	}
	return out, nil
}

// CompletedIndex maps every primary bar to the newest secondary bar that
// has fully closed by the end of that primary bar, or -1 when none has.
func CompletedIndex(primary []domain.Bar, primaryTF Timeframe, secondary []domain.Bar, secondaryTF Timeframe) ([]int, error) {
	pd, err := primaryTF.Duration()
	if err != nil {
		return nil, err
	}
	sd, err := secondaryTF.Duration()
	if err != nil {
		return nil, err
	}
	mapping := make([]int, len(primary))
	j := -1
	for i, p := range primary {
		end := p.Time.Add(pd)
		for j+1 < len(secondary) && !secondary[j+1].Time.Add(sd).After(end) {
			j++
		}
		mapping[i] = j
	}
	return mapping, nil
}

func bucketStart(t time.Time, d time.Duration) time.Time {
	secs := int64(d / time.Second)
	u := t.Unix()
	u -= ((u % secs) + secs) % secs
	return time.Unix(u, 0).In(t.Location())
}
