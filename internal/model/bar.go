package model

import (
	"fmt"
	"math"
	"time"
)

// Bar is one OHLCV sample. MarketCap and CirculatingSupply are auxiliary
// scalars carried alongside the series and may be nil.
type Bar struct {
	Timestamp         time.Time `json:"ts"`
	Open              float64   `json:"open"`
	High              float64   `json:"high"`
	Low               float64   `json:"low"`
	Close             float64   `json:"close"`
	Volume            float64   `json:"volume"`
	MarketCap         *float64  `json:"market_cap,omitempty"`
	CirculatingSupply *float64  `json:"circulating_supply,omitempty"`
}

// NewBar builds a validated bar.
func NewBar(ts time.Time, open, high, low, close, volume float64) (Bar, error) {
	b := Bar{Timestamp: ts, Open: open, High: high, Low: low, Close: close, Volume: volume}
	if err := b.Validate(); err != nil {
		return Bar{}, err
	}
	return b, nil
}

// Validate checks the OHLCV invariants. Values are never clamped.
func (b Bar) Validate() error {
	for _, v := range [...]float64{b.Open, b.High, b.Low, b.Close, b.Volume} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite value at %s", ErrInvalidBar, b.Timestamp.Format(time.RFC3339))
		}
	}
	switch {
	case b.Timestamp.IsZero():
		return fmt.Errorf("%w: zero timestamp", ErrInvalidBar)
	case b.High < b.Low:
		return fmt.Errorf("%w: high %v < low %v", ErrInvalidBar, b.High, b.Low)
	case b.High < math.Max(b.Open, b.Close):
		return fmt.Errorf("%w: high %v < max(open, close)", ErrInvalidBar, b.High)
	case b.Low > math.Min(b.Open, b.Close):
		return fmt.Errorf("%w: low %v > min(open, close)", ErrInvalidBar, b.Low)
	case b.Volume < 0:
		return fmt.Errorf("%w: negative volume %v", ErrInvalidBar, b.Volume)
	}
	return nil
}

// Float returns a pointer to v. Used for nullable columns.
func Float(v float64) *float64 {
	return &v
}
