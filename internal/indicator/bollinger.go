package indicator

import (
	"fmt"
	"math"

	"github.com/akarazhev/crypto-scout-collector-sub000/internal/model"
	"github.com/akarazhev/crypto-scout-collector-sub000/internal/ringbuf"
)

// StdDev calculates the population standard deviation of the last period closes.
type StdDev struct {
	period int
	window *ringbuf.Ring[float64]
}

// NewStdDev creates a rolling standard deviation (typically 20).
func NewStdDev(period int) *StdDev {
	return &StdDev{period: period, window: ringbuf.New[float64](period)}
}

func (s *StdDev) Name() string { return fmt.Sprintf("STDDEV_%d", s.period) }

func (s *StdDev) Update(bar model.Bar) { s.window.Push(bar.Close) }

func (s *StdDev) Value() float64 {
	n := float64(s.window.Len())
	if n == 0 {
		return 0
	}
	mean := 0.0
	s.window.Each(func(v float64) { mean += v })
	mean /= n
	variance := 0.0
	s.window.Each(func(v float64) { variance += (v - mean) * (v - mean) })
	return math.Sqrt(variance / n)
}

func (s *StdDev) Ready() bool { return s.window.Full() }

// Bollinger holds the bands around an SMA of closes at k standard deviations.
type Bollinger struct {
	period int
	k      float64
	middle *SMA
	dev    *StdDev
	close  float64
}

// Bands is one Bollinger reading. Width and PercentB are nil when their
// denominator is zero.
type Bands struct {
	Middle, Upper, Lower float64
	Width, PercentB      *float64
}

// NewBollinger creates Bollinger bands (typically 20, 2).
func NewBollinger(period int, k float64) *Bollinger {
	return &Bollinger{
		period: period,
		k:      k,
		middle: NewSMA(period),
		dev:    NewStdDev(period),
	}
}

func (b *Bollinger) Name() string { return fmt.Sprintf("BB_%d", b.period) }

func (b *Bollinger) Update(bar model.Bar) {
	b.middle.Update(bar)
	b.dev.Update(bar)
	b.close = bar.Close
}

// Value returns the middle band.
func (b *Bollinger) Value() float64 { return b.middle.Value() }
func (b *Bollinger) Ready() bool    { return b.middle.Ready() }

// Bands returns the current reading, or false while warming up.
func (b *Bollinger) Bands() (Bands, bool) {
	if !b.Ready() {
		return Bands{}, false
	}
	mid := b.middle.Value()
	sd := b.dev.Value()
	out := Bands{Middle: mid, Upper: mid + b.k*sd, Lower: mid - b.k*sd}
	if mid != 0 {
		out.Width = model.Float((out.Upper - out.Lower) / mid)
	}
	if spread := out.Upper - out.Lower; spread != 0 {
		out.PercentB = model.Float((b.close - out.Lower) / spread)
	}
	return out, true
}
