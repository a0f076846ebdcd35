package indicator

import (
	"fmt"

	"github.com/akarazhev/crypto-scout-collector-sub000/internal/model"
)

// MACD calculates the Moving Average Convergence Divergence line
// (fast EMA - slow EMA), its signal line (EMA of the line) and the histogram.
// The line is ready with the slow EMA; the signal needs signal-1 more bars.
type MACD struct {
	fast, slow, signalPeriod int
	fastEMA, slowEMA         *EMA
	signal                   *EMA
}

// NewMACD creates a MACD indicator (typically 12, 26, 9).
func NewMACD(fast, slow, signal int) *MACD {
	return &MACD{
		fast:         fast,
		slow:         slow,
		signalPeriod: signal,
		fastEMA:      NewEMA(fast),
		slowEMA:      NewEMA(slow),
		signal:       NewEMA(signal),
	}
}

func (m *MACD) Name() string {
	return fmt.Sprintf("MACD_%d_%d_%d", m.fast, m.slow, m.signalPeriod)
}

func (m *MACD) Update(bar model.Bar) {
	m.fastEMA.Update(bar)
	m.slowEMA.Update(bar)
	if m.Ready() {
		m.signal.Add(m.Value())
	}
}

// Value returns the MACD line.
func (m *MACD) Value() float64 { return m.fastEMA.Value() - m.slowEMA.Value() }
func (m *MACD) Ready() bool    { return m.fastEMA.Ready() && m.slowEMA.Ready() }

// Signal returns the signal line, or nil while warming up.
func (m *MACD) Signal() *float64 {
	if !m.signal.Ready() {
		return nil
	}
	return model.Float(m.signal.Value())
}

// Histogram returns line - signal, or nil while the signal is warming up.
func (m *MACD) Histogram() *float64 {
	if !m.signal.Ready() {
		return nil
	}
	return model.Float(m.Value() - m.signal.Value())
}
