package indicator

import (
	"fmt"
	"math"

	"github.com/akarazhev/crypto-scout-collector-sub000/internal/model"
	"github.com/akarazhev/crypto-scout-collector-sub000/internal/ringbuf"
)

// Stochastic calculates the %K line: where the close sits inside the
// high-low range of the last period bars, scaled to 0..100.
// A flat window (highest == lowest) yields 50.
type Stochastic struct {
	period int
	highs  *ringbuf.Ring[float64]
	lows   *ringbuf.Ring[float64]
	close  float64
}

// NewStochastic creates a %K indicator with the given lookback (typically 14).
func NewStochastic(period int) *Stochastic {
	return &Stochastic{
		period: period,
		highs:  ringbuf.New[float64](period),
		lows:   ringbuf.New[float64](period),
	}
}

func (s *Stochastic) Name() string { return fmt.Sprintf("STOCH_K_%d", s.period) }

func (s *Stochastic) Update(bar model.Bar) {
	s.highs.Push(bar.High)
	s.lows.Push(bar.Low)
	s.close = bar.Close
}

func (s *Stochastic) Value() float64 {
	hh, ll := math.Inf(-1), math.Inf(1)
	s.highs.Each(func(v float64) { hh = math.Max(hh, v) })
	s.lows.Each(func(v float64) { ll = math.Min(ll, v) })
	if hh == ll {
		return 50.0
	}
	return (s.close - ll) / (hh - ll) * 100.0
}

func (s *Stochastic) Ready() bool { return s.highs.Full() }
