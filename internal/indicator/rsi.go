package indicator

import (
	"fmt"

	"github.com/akarazhev/crypto-scout-collector-sub000/internal/model"
)

// RSI calculates the Relative Strength Index using Wilder's smoothing.
// The first bar contributes a zero change, so a value is available after
// exactly period bars.
type RSI struct {
	period    int
	count     int
	prevClose float64
	gains     *SMMA
	losses    *SMMA
}

// NewRSI creates a new RSI indicator with the given period (typically 14).
func NewRSI(period int) *RSI {
	return &RSI{
		period: period,
		gains:  NewSMMA(period),
		losses: NewSMMA(period),
	}
}

func (r *RSI) Name() string { return fmt.Sprintf("RSI_%d", r.period) }

func (r *RSI) Update(bar model.Bar) {
	price := bar.Close
	r.count++

	delta := 0.0
	if r.count > 1 {
		delta = price - r.prevClose
	}
	r.prevClose = price

	if delta > 0 {
		r.gains.Add(delta)
		r.losses.Add(0)
	} else {
		r.gains.Add(0)
		r.losses.Add(-delta)
	}
}

func (r *RSI) Value() float64 {
	avgGain, avgLoss := r.gains.Value(), r.losses.Value()
	switch {
	case avgLoss == 0 && avgGain == 0:
		return 50.0
	case avgLoss == 0:
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100.0 - (100.0 / (1.0 + rs))
}

func (r *RSI) Ready() bool { return r.count >= r.period }
