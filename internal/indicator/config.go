package indicator

import "fmt"

// Periods used by the calculator.
var (
	maPeriods = [...]int{50, 100, 200}
)

const (
	rsiPeriod        = 14
	stochasticPeriod = 14
	macdFast         = 12
	macdSlow         = 26
	macdSignal       = 9
	bollingerPeriod  = 20
	bollingerK       = 2.0
	atrPeriod        = 14
	stdDevPeriod     = 20
	vwapPeriod       = 20
	volumeSMAPeriod  = 20

	// DefaultMaxPeriod is the default bar series capacity.
	DefaultMaxPeriod = 200
)

// Config selects which indicators the calculator computes.
type Config struct {
	SMA                bool `yaml:"sma"`
	EMA                bool `yaml:"ema"`
	RSI                bool `yaml:"rsi"`
	Stochastic         bool `yaml:"stochastic"`
	MACD               bool `yaml:"macd"`
	Bollinger          bool `yaml:"bollinger"`
	ATR                bool `yaml:"atr"`
	StdDev             bool `yaml:"stddev"`
	VWAP               bool `yaml:"vwap"`
	VolumeSMA          bool `yaml:"volume_sma"`
	MarketFundamentals bool `yaml:"market_fundamentals"`

	// MaxPeriod is the floor for the bar series capacity.
	MaxPeriod int `yaml:"max_period"`
}

// DefaultConfig enables every indicator with the default capacity.
func DefaultConfig() Config {
	return Config{
		SMA: true, EMA: true, RSI: true, Stochastic: true, MACD: true,
		Bollinger: true, ATR: true, StdDev: true, VWAP: true, VolumeSMA: true,
		MarketFundamentals: true,
		MaxPeriod:          DefaultMaxPeriod,
	}
}

// Validate rejects negative capacities.
func (c Config) Validate() error {
	if c.MaxPeriod < 0 {
		return fmt.Errorf("indicator: max_period must be >= 0, got %d", c.MaxPeriod)
	}
	return nil
}

// LongestPeriod returns the number of bars the slowest enabled indicator needs.
func (c Config) LongestPeriod() int {
	longest := 0
	use := func(enabled bool, p int) {
		if enabled && p > longest {
			longest = p
		}
	}
	use(c.SMA, maPeriods[len(maPeriods)-1])
	use(c.EMA, maPeriods[len(maPeriods)-1])
	use(c.RSI, rsiPeriod)
	use(c.Stochastic, stochasticPeriod)
	use(c.MACD, macdSlow+macdSignal-1)
	use(c.Bollinger, bollingerPeriod)
	use(c.ATR, atrPeriod)
	use(c.StdDev, stdDevPeriod)
	use(c.VWAP, vwapPeriod)
	use(c.VolumeSMA || c.MarketFundamentals, volumeSMAPeriod)
	return longest
}

// Capacity returns the bar series capacity: MaxPeriod (default 200) raised to
// the longest enabled period.
func (c Config) Capacity() int {
	capacity := c.MaxPeriod
	if capacity <= 0 {
		capacity = DefaultMaxPeriod
	}
	if p := c.LongestPeriod(); p > capacity {
		capacity = p
	}
	return capacity
}
