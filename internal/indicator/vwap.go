package indicator

import (
	"fmt"

	"github.com/akarazhev/crypto-scout-collector-sub000/internal/model"
	"github.com/akarazhev/crypto-scout-collector-sub000/internal/ringbuf"
)

type vwapSample struct {
	pv, v float64
}

// VWAP calculates a rolling volume-weighted average of the typical price
// (high+low+close)/3 over the last period bars.
type VWAP struct {
	period int
	window *ringbuf.Ring[vwapSample]
	sumPV  float64
	sumV   float64
}

// NewVWAP creates a rolling VWAP.
func NewVWAP(period int) *VWAP {
	return &VWAP{period: period, window: ringbuf.New[vwapSample](period)}
}

func (w *VWAP) Name() string { return fmt.Sprintf("VWAP_%d", w.period) }

func (w *VWAP) Update(bar model.Bar) {
	typical := (bar.High + bar.Low + bar.Close) / 3
	s := vwapSample{pv: typical * bar.Volume, v: bar.Volume}
	if old, ok := w.window.Push(s); ok {
		w.sumPV -= old.pv
		w.sumV -= old.v
	}
	w.sumPV += s.pv
	w.sumV += s.v
}

func (w *VWAP) Value() float64 {
	if w.sumV == 0 {
		return 0
	}
	return w.sumPV / w.sumV
}

// Ready also requires traded volume in the window; a zero-volume window has no VWAP.
func (w *VWAP) Ready() bool { return w.window.Full() && w.sumV > 0 }
