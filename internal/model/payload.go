package model

import (
	"encoding/json"
	"fmt"
)

// Provider identifies the exchange or API that produced a payload body.
type Provider string

const (
	ProviderBybit Provider = "BYBIT"
	ProviderCMC   Provider = "CMC"
)

// Valid reports whether p is a known provider.
func (p Provider) Valid() bool {
	switch p {
	case ProviderBybit, ProviderCMC:
		return true
	}
	return false
}

// Source is the logical channel a payload belongs to, e.g. "kline.15".
type Source string

// Bybit channels (public WS v5 topic prefixes).
const (
	SourceKline15     Source = "kline.15"
	SourceKline60     Source = "kline.60"
	SourceKline240    Source = "kline.240"
	SourceKlineD      Source = "kline.D"
	SourceTickers     Source = "tickers"
	SourceTrades      Source = "publicTrade"
	SourceOrderBook   Source = "orderbook.200"
	SourceLiquidation Source = "allLiquidation"
)

// CoinMarketCap channels.
const (
	SourceFearGreed Source = "fgi"
	SourceKline1d   Source = "kline.1d"
	SourceKline1w   Source = "kline.1w"
)

// IsKline reports whether s carries candles.
func (s Source) IsKline() bool {
	switch s {
	case SourceKline15, SourceKline60, SourceKline240, SourceKlineD, SourceKline1d, SourceKline1w:
		return true
	}
	return false
}

// Interval returns the candle interval encoded in a kline source ("15", "D", "1w").
// Returns "" for non-kline sources.
func (s Source) Interval() string {
	if !s.IsKline() {
		return ""
	}
	return string(s[len("kline."):])
}

// KlineSource returns the kline source for an interval, the inverse of Interval.
func KlineSource(interval string) Source {
	return Source("kline." + interval)
}

// Payload is one tagged unit of raw market data as delivered by the broker.
// It is created at the stream boundary and never mutated afterwards.
type Payload struct {
	Provider Provider       `json:"provider"`
	Source   Source         `json:"source"`
	Data     map[string]any `json:"data"`
}

// OffsetPayload is a Payload together with its position in the originating stream.
type OffsetPayload struct {
	Payload Payload `json:"payload"`
	Offset  int64   `json:"offset"`

	// Skip marks an entry that could not be decoded; only its offset counts.
	Skip bool `json:"-"`
}

// DecodePayload parses a broker message body.
func DecodePayload(b []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(b, &p); err != nil {
		return Payload{}, fmt.Errorf("decode payload: %w", err)
	}
	if !p.Provider.Valid() {
		return Payload{}, fmt.Errorf("decode payload: %w: %q", ErrUnsupportedProvider, p.Provider)
	}
	if p.Source == "" {
		return Payload{}, fmt.Errorf("decode payload: empty source")
	}
	if p.Data == nil {
		p.Data = map[string]any{}
	}
	return p, nil
}
