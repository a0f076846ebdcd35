package indicator

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/akarazhev/crypto-scout-collector-sub000/internal/logger"
	"github.com/akarazhev/crypto-scout-collector-sub000/internal/model"
	"github.com/akarazhev/crypto-scout-collector-sub000/internal/ringbuf"
)

// Calculator owns a bar series and the enabled indicators. Every bar added
// produces one IndicatorResult for that bar.
//
// All methods take the same mutex, so warm-up replay and streaming updates
// never interleave. Bars must arrive with strictly ascending timestamps.
type Calculator struct {
	mu  sync.Mutex
	cfg Config
	log *logger.Entry

	series *ringbuf.Ring[model.Bar]

	sma        [len(maPeriods)]*SMA
	ema        [len(maPeriods)]*EMA
	rsi        *RSI
	stochastic *Stochastic
	macd       *MACD
	bollinger  *Bollinger
	atr        *ATR
	stdDev     *StdDev
	vwap       *VWAP
	volumeSMA  *SMA
	active     []Indicator

	marketCap         *float64
	circulatingSupply *float64
}

// NewCalculator builds a calculator for the enabled indicators in cfg.
func NewCalculator(cfg Config) *Calculator {
	c := &Calculator{
		cfg:    cfg,
		log:    logger.WithComponent("indicator"),
		series: ringbuf.New[model.Bar](cfg.Capacity()),
	}
	for i, p := range maPeriods {
		if cfg.SMA {
			c.sma[i] = NewSMA(p)
			c.active = append(c.active, c.sma[i])
		}
		if cfg.EMA {
			c.ema[i] = NewEMA(p)
			c.active = append(c.active, c.ema[i])
		}
	}
	if cfg.RSI {
		c.rsi = NewRSI(rsiPeriod)
		c.active = append(c.active, c.rsi)
	}
	if cfg.Stochastic {
		c.stochastic = NewStochastic(stochasticPeriod)
		c.active = append(c.active, c.stochastic)
	}
	if cfg.MACD {
		c.macd = NewMACD(macdFast, macdSlow, macdSignal)
		c.active = append(c.active, c.macd)
	}
	if cfg.Bollinger {
		c.bollinger = NewBollinger(bollingerPeriod, bollingerK)
		c.active = append(c.active, c.bollinger)
	}
	if cfg.ATR {
		c.atr = NewATR(atrPeriod)
		c.active = append(c.active, c.atr)
	}
	if cfg.StdDev {
		c.stdDev = NewStdDev(stdDevPeriod)
		c.active = append(c.active, c.stdDev)
	}
	if cfg.VWAP {
		c.vwap = NewVWAP(vwapPeriod)
		c.active = append(c.active, c.vwap)
	}
	if cfg.VolumeSMA || cfg.MarketFundamentals {
		c.volumeSMA = NewVolumeSMA(volumeSMAPeriod)
		c.active = append(c.active, c.volumeSMA)
	}
	return c
}

// Initialize rebuilds state from previously stored result rows, in any order.
// Returns the number of bars accepted.
func (c *Calculator) Initialize(rows []model.IndicatorResult) int {
	if len(rows) == 0 {
		return 0
	}
	bars := make([]model.Bar, len(rows))
	for i, r := range rows {
		bars[i] = r.Bar()
	}
	return c.InitializeWithBars(bars)
}

// InitializeWithBars sorts bars ascending and replays them. Invalid bars and
// bars not newer than the series tail are skipped.
// Returns the number of bars accepted.
func (c *Calculator) InitializeWithBars(bars []model.Bar) int {
	if len(bars) == 0 {
		return 0
	}
	sorted := make([]model.Bar, len(bars))
	copy(sorted, bars)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	c.mu.Lock()
	defer c.mu.Unlock()

	accepted := 0
	for _, b := range sorted {
		if err := c.add(b); err != nil {
			c.log.WithError(err).WithField("ts", b.Timestamp).Debug("skipping bar during warm-up")
			continue
		}
		accepted++
	}
	c.log.WithFields(logger.Fields{
		"offered":  len(bars),
		"accepted": accepted,
		"held":     c.series.Len(),
	}).Info("calculator initialized")
	return accepted
}

// AddPrice appends a bar whose open, high, low and close are all price, with zero volume.
func (c *Calculator) AddPrice(ts time.Time, price float64) (model.IndicatorResult, error) {
	return c.AddOHLCV(model.Bar{Timestamp: ts, Open: price, High: price, Low: price, Close: price})
}

// AddOHLCV appends bar and returns the indicator row for it. A rejected bar
// leaves the calculator unchanged.
func (c *Calculator) AddOHLCV(bar model.Bar) (model.IndicatorResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.add(bar); err != nil {
		return model.IndicatorResult{}, err
	}
	return c.result(bar), nil
}

// DataCount returns the number of bars held, bounded by capacity.
func (c *Calculator) DataCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.series.Len()
}

// Capacity returns the bar series capacity.
func (c *Calculator) Capacity() int {
	return c.series.Cap()
}

// LastTimestamp returns the timestamp of the newest bar, or false when empty.
func (c *Calculator) LastTimestamp() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	last, ok := c.series.Last()
	return last.Timestamp, ok
}

// add validates and applies bar. Caller holds mu.
func (c *Calculator) add(bar model.Bar) error {
	if err := bar.Validate(); err != nil {
		return err
	}
	if last, ok := c.series.Last(); ok && !bar.Timestamp.After(last.Timestamp) {
		return fmt.Errorf("%w: %s not after %s", model.ErrOutOfOrder,
			bar.Timestamp.Format(time.RFC3339), last.Timestamp.Format(time.RFC3339))
	}

	c.series.Push(bar)
	for _, ind := range c.active {
		ind.Update(bar)
	}
	if bar.MarketCap != nil {
		c.marketCap = model.Float(*bar.MarketCap)
	}
	if bar.CirculatingSupply != nil {
		c.circulatingSupply = model.Float(*bar.CirculatingSupply)
	}
	return nil
}

// result builds the row for the latest bar. Caller holds mu.
func (c *Calculator) result(bar model.Bar) model.IndicatorResult {
	r := model.IndicatorResult{
		Timestamp: bar.Timestamp,
		Open:      bar.Open,
		High:      bar.High,
		Low:       bar.Low,
		Close:     bar.Close,
		Volume:    bar.Volume,
	}

	if c.cfg.SMA {
		r.SMA50, r.SMA100, r.SMA200 = nullable(c.sma[0]), nullable(c.sma[1]), nullable(c.sma[2])
	}
	if c.cfg.EMA {
		r.EMA50, r.EMA100, r.EMA200 = nullable(c.ema[0]), nullable(c.ema[1]), nullable(c.ema[2])
	}
	if c.rsi != nil {
		r.RSI14 = nullable(c.rsi)
	}
	if c.stochastic != nil {
		r.StochK14 = nullable(c.stochastic)
	}
	if c.macd != nil {
		r.MACD = nullable(c.macd)
		r.MACDSignal = c.macd.Signal()
		r.MACDHistogram = c.macd.Histogram()
	}
	if c.bollinger != nil {
		if bands, ok := c.bollinger.Bands(); ok {
			r.BBMiddle = model.Float(bands.Middle)
			r.BBUpper = model.Float(bands.Upper)
			r.BBLower = model.Float(bands.Lower)
			r.BBWidth = bands.Width
			r.BBPercentB = bands.PercentB
		}
	}
	if c.atr != nil {
		r.ATR14 = nullable(c.atr)
	}
	if c.stdDev != nil {
		r.StdDev20 = nullable(c.stdDev)
	}
	if c.vwap != nil {
		r.VWAP = nullable(c.vwap)
	}

	var volSMA *float64
	if c.volumeSMA != nil {
		volSMA = nullable(c.volumeSMA)
	}
	if c.cfg.VolumeSMA {
		r.VolumeSMA20 = volSMA
	}
	if c.cfg.MarketFundamentals {
		r.MarketCap = c.marketCap
		r.CirculatingSupply = c.circulatingSupply
		if c.marketCap != nil && volSMA != nil && *volSMA != 0 {
			r.MarketCapVolumeSMA = model.Float(*c.marketCap / *volSMA)
		}
	}
	return r
}
