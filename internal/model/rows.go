package model

import "time"

// Kline is one candle row as stored per (symbol, interval, start).
type Kline struct {
	Symbol            string    `json:"symbol"`
	Interval          string    `json:"interval"`
	Start             time.Time `json:"start"`
	End               time.Time `json:"end"`
	Open              float64   `json:"open"`
	High              float64   `json:"high"`
	Low               float64   `json:"low"`
	Close             float64   `json:"close"`
	Volume            float64   `json:"volume"`
	Turnover          float64   `json:"turnover"`
	MarketCap         *float64  `json:"market_cap,omitempty"`
	CirculatingSupply *float64  `json:"circulating_supply,omitempty"`
	Confirmed         bool      `json:"confirmed"`
}

// Bar converts the candle to a validated Bar keyed by its start time.
func (k Kline) Bar() (Bar, error) {
	b := Bar{
		Timestamp:         k.Start,
		Open:              k.Open,
		High:              k.High,
		Low:               k.Low,
		Close:             k.Close,
		Volume:            k.Volume,
		MarketCap:         k.MarketCap,
		CirculatingSupply: k.CirculatingSupply,
	}
	if err := b.Validate(); err != nil {
		return Bar{}, err
	}
	return b, nil
}

// Ticker is a 24h ticker snapshot. Derivative-only fields are nil for spot.
type Ticker struct {
	Symbol       string    `json:"symbol"`
	Timestamp    time.Time `json:"ts"`
	LastPrice    float64   `json:"last_price"`
	HighPrice24h float64   `json:"high_price_24h"`
	LowPrice24h  float64   `json:"low_price_24h"`
	PrevPrice24h float64   `json:"prev_price_24h"`
	Volume24h    float64   `json:"volume_24h"`
	Turnover24h  float64   `json:"turnover_24h"`
	Price24hPcnt float64   `json:"price_24h_pcnt"`
	MarkPrice    *float64  `json:"mark_price,omitempty"`
	IndexPrice   *float64  `json:"index_price,omitempty"`
	OpenInterest *float64  `json:"open_interest,omitempty"`
	FundingRate  *float64  `json:"funding_rate,omitempty"`
}

// Trade is one public trade.
type Trade struct {
	ID         string    `json:"id"`
	Symbol     string    `json:"symbol"`
	Timestamp  time.Time `json:"ts"`
	Side       string    `json:"side"`
	Price      float64   `json:"price"`
	Size       float64   `json:"size"`
	BlockTrade bool      `json:"block_trade"`
}

// Level is one price level of an order book side.
type Level struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// OrderBook is a full order book snapshot.
type OrderBook struct {
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"ts"`
	UpdateID  int64     `json:"update_id"`
	Seq       int64     `json:"seq"`
	Bids      []Level   `json:"bids"`
	Asks      []Level   `json:"asks"`
}

// Liquidation is one forced position close on a derivatives market.
type Liquidation struct {
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"ts"`
	Side      string    `json:"side"`
	Price     float64   `json:"price"`
	Size      float64   `json:"size"`
}

// FearGreed is one reading of the fear & greed index.
type FearGreed struct {
	Timestamp      time.Time `json:"ts"`
	Value          int       `json:"value"`
	Classification string    `json:"classification"`
}
