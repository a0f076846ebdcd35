package indicator

import (
	"fmt"

	"github.com/akarazhev/crypto-scout-collector-sub000/internal/model"
)

// EMA calculates Exponential Moving Average, seeded with the SMA of the first
// period values. O(1) per update, no window storage needed.
type EMA struct {
	period     int
	multiplier float64
	current    float64
	count      int
	sum        float64
}

// NewEMA creates a new EMA indicator with the given period.
func NewEMA(period int) *EMA {
	return &EMA{
		period:     period,
		multiplier: 2.0 / float64(period+1),
	}
}

func (e *EMA) Name() string { return fmt.Sprintf("EMA_%d", e.period) }

func (e *EMA) Update(bar model.Bar) { e.Add(bar.Close) }

// Add feeds a raw value. MACD uses it for the signal line.
func (e *EMA) Add(price float64) {
	e.count++

	if e.count <= e.period {
		e.sum += price
		if e.count == e.period {
			e.current = e.sum / float64(e.period)
		}
		return
	}

	// EMA = price*k + prev*(1-k)
	e.current = (price * e.multiplier) + (e.current * (1 - e.multiplier))
}

func (e *EMA) Value() float64 { return e.current }
func (e *EMA) Ready() bool    { return e.count >= e.period }
