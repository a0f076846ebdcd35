package indicator

import (
	"fmt"

	"github.com/akarazhev/crypto-scout-collector-sub000/internal/model"
	"github.com/akarazhev/crypto-scout-collector-sub000/internal/ringbuf"
)

// SMA calculates Simple Moving Average over a rolling window.
// The window is a preallocated ring so updates never allocate.
type SMA struct {
	name   string
	period int
	field  func(model.Bar) float64
	window *ringbuf.Ring[float64]
	sum    float64
}

// NewSMA creates an SMA of close prices.
func NewSMA(period int) *SMA {
	return newSMA(fmt.Sprintf("SMA_%d", period), period, closePrice)
}

// NewVolumeSMA creates an SMA of bar volume.
func NewVolumeSMA(period int) *SMA {
	return newSMA(fmt.Sprintf("VOLUME_SMA_%d", period), period, volume)
}

func newSMA(name string, period int, field func(model.Bar) float64) *SMA {
	return &SMA{
		name:   name,
		period: period,
		field:  field,
		window: ringbuf.New[float64](period),
	}
}

func (s *SMA) Name() string { return s.name }

func (s *SMA) Update(bar model.Bar) { s.Add(s.field(bar)) }

// Add feeds a raw value.
func (s *SMA) Add(v float64) {
	if evicted, ok := s.window.Push(v); ok {
		s.sum -= evicted
	}
	s.sum += v
}

func (s *SMA) Value() float64 { return s.sum / float64(s.period) }
func (s *SMA) Ready() bool    { return s.window.Full() }
