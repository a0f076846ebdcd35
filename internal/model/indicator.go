package model

import "time"

// IndicatorResult is one row of indicator values keyed to a bar's timestamp.
// A nil field means the series did not yet hold enough bars for that indicator.
// The bar itself is kept on the row so stored results can warm a calculator.
type IndicatorResult struct {
	Symbol    string    `json:"symbol"`
	Interval  string    `json:"interval"`
	Timestamp time.Time `json:"ts"`

	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`

	SMA50  *float64 `json:"sma_50"`
	SMA100 *float64 `json:"sma_100"`
	SMA200 *float64 `json:"sma_200"`
	EMA50  *float64 `json:"ema_50"`
	EMA100 *float64 `json:"ema_100"`
	EMA200 *float64 `json:"ema_200"`

	RSI14    *float64 `json:"rsi_14"`
	StochK14 *float64 `json:"stoch_k_14"`

	MACD          *float64 `json:"macd"`
	MACDSignal    *float64 `json:"macd_signal"`
	MACDHistogram *float64 `json:"macd_histogram"`

	BBMiddle   *float64 `json:"bb_middle"`
	BBUpper    *float64 `json:"bb_upper"`
	BBLower    *float64 `json:"bb_lower"`
	BBWidth    *float64 `json:"bb_width"`
	BBPercentB *float64 `json:"bb_percent_b"`

	ATR14    *float64 `json:"atr_14"`
	StdDev20 *float64 `json:"stddev_20"`

	VWAP        *float64 `json:"vwap"`
	VolumeSMA20 *float64 `json:"volume_sma_20"`

	MarketCap          *float64 `json:"market_cap"`
	CirculatingSupply  *float64 `json:"circulating_supply"`
	MarketCapVolumeSMA *float64 `json:"market_cap_volume_sma"`
}

// Bar rebuilds the bar the row was computed from.
func (r IndicatorResult) Bar() Bar {
	return Bar{
		Timestamp:         r.Timestamp,
		Open:              r.Open,
		High:              r.High,
		Low:               r.Low,
		Close:             r.Close,
		Volume:            r.Volume,
		MarketCap:         r.MarketCap,
		CirculatingSupply: r.CirculatingSupply,
	}
}
