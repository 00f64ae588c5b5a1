package indicator

import (
	"math"

	"github.com/efreitasn/barreplay/internal/domain"
)

// SMA is the simple moving average of closes.
type SMA struct {
	Period int
}

func (SMA) Outputs() []string { return []string{Value} }

func (s SMA) Compute(bars []domain.Bar) map[string][]float64 {
	return map[string][]float64{Value: sma(closes(bars), s.Period)}
}

// EMA is the exponential moving average of closes, seeded with the SMA
// of the first Period closes.
type EMA struct {
	Period int
}

func (EMA) Outputs() []string { return []string{Value} }

func (e EMA) Compute(bars []domain.Bar) map[string][]float64 {
	return map[string][]float64{Value: ema(closes(bars), e.Period)}
}

// RSI is Wilder's relative strength index of closes.
type RSI struct {
	Period int
}

func (RSI) Outputs() []string { return []string{Value} }

func (r RSI) Compute(bars []domain.Bar) map[string][]float64 {
	c := closes(bars)
	out := nanSlice(len(c))
	p := r.Period
	if p <= 0 || len(c) <= p {
		return map[string][]float64{Value: out}
	}

	var gain, loss float64
	for i := 1; i <= p; i++ {
		ch := c[i] - c[i-1]
		if ch > 0 {
			gain += ch
		} else {
			loss -= ch
		}
	}
	gain /= float64(p)
	loss /= float64(p)
	out[p] = rsiValue(gain, loss)

	for i := p + 1; i < len(c); i++ {
		ch := c[i] - c[i-1]
		g, l := 0.0, 0.0
		if ch > 0 {
			g = ch
		} else {
			l = -ch
		}
		gain = (gain*float64(p-1) + g) / float64(p)
		loss = (loss*float64(p-1) + l) / float64(p)
		out[i] = rsiValue(gain, loss)
	}
	return map[string][]float64{Value: out}
}

func rsiValue(gain, loss float64) float64 {
	if loss == 0 {
		if gain == 0 {
			return 50
		}
		return 100
	}
	return 100 - 100/(1+gain/loss)
}

// MACD outputs the fast/slow EMA spread, its signal EMA and the histogram.
type MACD struct {
	Fast, Slow, Signal int
}

func (MACD) Outputs() []string { return []string{"macd", "signal", "hist"} }

func (m MACD) Compute(bars []domain.Bar) map[string][]float64 {
	c := closes(bars)
	fast := ema(c, m.Fast)
	slow := ema(c, m.Slow)

	line := nanSlice(len(c))
	first := -1
	for i := range c {
		if math.IsNaN(fast[i]) || math.IsNaN(slow[i]) {
			continue
		}
		line[i] = fast[i] - slow[i]
		if first < 0 {
			first = i
		}
	}

	signal := nanSlice(len(c))
	hist := nanSlice(len(c))
	if first >= 0 {
		sig := ema(line[first:], m.Signal)
		copy(signal[first:], sig)
		for i := first; i < len(c); i++ {
			if !math.IsNaN(signal[i]) {
				hist[i] = line[i] - signal[i]
			}
		}
	}
	return map[string][]float64{"macd": line, "signal": signal, "hist": hist}
}

// Highest is the rolling maximum of highs over Period bars.
type Highest struct {
	Period int
}

func (Highest) Outputs() []string { return []string{Value} }

func (h Highest) Compute(bars []domain.Bar) map[string][]float64 {
	return map[string][]float64{Value: rolling(bars, h.Period, func(b domain.Bar) float64 {
		return b.High.InexactFloat64()
	}, math.Max)}
}

// Lowest is the rolling minimum of lows over Period bars.
type Lowest struct {
	Period int
}

func (Lowest) Outputs() []string { return []string{Value} }

func (l Lowest) Compute(bars []domain.Bar) map[string][]float64 {
	return map[string][]float64{Value: rolling(bars, l.Period, func(b domain.Bar) float64 {
		return b.Low.InexactFloat64()
	}, math.Min)}
}

func sma(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if period <= 0 {
		return out
	}
	var sum float64
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

func ema(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if period <= 0 || len(values) < period {
		return out
	}
	var seed float64
	for _, v := range values[:period] {
		seed += v
	}
	prev := seed / float64(period)
	out[period-1] = prev
	k := 2 / float64(period+1)
	for i := period; i < len(values); i++ {
		prev = values[i]*k + prev*(1-k)
		out[i] = prev
	}
	return out
}

func rolling(bars []domain.Bar, period int, field func(domain.Bar) float64, pick func(a, b float64) float64) []float64 {
	out := nanSlice(len(bars))
	if period <= 0 {
		return out
	}
	for i := period - 1; i < len(bars); i++ {
		v := field(bars[i-period+1])
		for j := i - period + 2; j <= i; j++ {
			v = pick(v, field(bars[j]))
		}
		out[i] = v
	}
	return out
}
