// Package indicator provides rolling technical indicators over OHLCV bars and
// the Calculator that maintains a bar series and computes a result row per bar.
//
// All indicators implement the Indicator interface: they are fed one bar at a
// time, keep only the state their period needs, and report Ready once they
// have seen enough bars to produce a value.
package indicator

import "github.com/akarazhev/crypto-scout-collector-sub000/internal/model"

// Indicator is the interface for all technical indicators.
type Indicator interface {
	// Name returns the indicator name (e.g., "SMA_50", "RSI_14").
	Name() string

	// Update feeds a new bar and recalculates.
	Update(bar model.Bar)

	// Value returns the current calculated value. Meaningless until Ready.
	Value() float64

	// Ready returns true when enough bars have been accumulated.
	Ready() bool
}

// nullable returns the indicator value, or nil while it is warming up.
func nullable(ind Indicator) *float64 {
	if ind == nil || !ind.Ready() {
		return nil
	}
	return model.Float(ind.Value())
}

func closePrice(b model.Bar) float64 { return b.Close }
func volume(b model.Bar) float64     { return b.Volume }
