package indicator

import (
	"fmt"
	"math"

	"github.com/akarazhev/crypto-scout-collector-sub000/internal/model"
)

// ATR calculates Average True Range with Wilder smoothing.
// The first bar's true range is high - low.
type ATR struct {
	period    int
	count     int
	prevClose float64
	tr        *SMMA
}

// NewATR creates a new ATR indicator (typically 14).
func NewATR(period int) *ATR {
	return &ATR{period: period, tr: NewSMMA(period)}
}

func (a *ATR) Name() string { return fmt.Sprintf("ATR_%d", a.period) }

func (a *ATR) Update(bar model.Bar) {
	a.count++
	tr := bar.High - bar.Low
	if a.count > 1 {
		tr = math.Max(tr, math.Max(math.Abs(bar.High-a.prevClose), math.Abs(bar.Low-a.prevClose)))
	}
	a.prevClose = bar.Close
	a.tr.Add(tr)
}

func (a *ATR) Value() float64 { return a.tr.Value() }
func (a *ATR) Ready() bool    { return a.tr.Ready() }
