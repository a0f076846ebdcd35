// Package cmc decodes CoinMarketCap payload bodies.
//
// Fear & greed bodies carry {"data": [{"timestamp", "value", "value_classification"}]}.
// Quote bodies carry {"symbol": "BTC", "quotes": [{"time_open", "time_close",
// "quote": {"USD": {"open", "high", "low", "close", "volume", "market_cap",
// "circulating_supply"}}}]}.
package cmc

import (
	"fmt"

	"github.com/akarazhev/crypto-scout-collector-sub000/internal/model"
)

const (
	defaultSymbol = "BTC"
	quoteCurrency = "USD"
)

// FearGreed decodes a fear & greed index payload.
func FearGreed(p model.Payload) ([]model.FearGreed, error) {
	items, err := model.Objects(p.Data["data"])
	if err != nil {
		return nil, fmt.Errorf("cmc fgi: %w", err)
	}
	out := make([]model.FearGreed, 0, len(items))
	for _, it := range items {
		ts, err := model.Timestamp(it["timestamp"])
		if err != nil {
			return nil, fmt.Errorf("cmc fgi: timestamp: %w", err)
		}
		v, err := model.Number(it["value"])
		if err != nil {
			return nil, fmt.Errorf("cmc fgi: value: %w", err)
		}
		if v < 0 || v > 100 {
			return nil, fmt.Errorf("cmc fgi: value %v out of range", v)
		}
		out = append(out, model.FearGreed{
			Timestamp:      ts,
			Value:          int(v),
			Classification: model.String(it["value_classification"]),
		})
	}
	return out, nil
}

// Klines decodes a quotes payload into candles. CMC quotes are final when
// published, so every row is confirmed.
func Klines(p model.Payload) ([]model.Kline, error) {
	symbol := model.String(p.Data["symbol"])
	if symbol == "" {
		symbol = defaultSymbol
	}
	raw, ok := p.Data["quotes"]
	if !ok {
		raw = p.Data["data"]
	}
	items, err := model.Objects(raw)
	if err != nil {
		return nil, fmt.Errorf("cmc kline: %w", err)
	}

	out := make([]model.Kline, 0, len(items))
	for _, it := range items {
		k, err := quote(it)
		if err != nil {
			return nil, fmt.Errorf("cmc kline %s: %w", symbol, err)
		}
		k.Symbol = symbol
		k.Interval = p.Source.Interval()
		out = append(out, k)
	}
	return out, nil
}

func quote(it map[string]any) (model.Kline, error) {
	k := model.Kline{Confirmed: true}
	var err error
	if k.Start, err = model.Timestamp(it["time_open"]); err != nil {
		return k, fmt.Errorf("time_open: %w", err)
	}
	if k.End, err = model.Timestamp(it["time_close"]); err != nil {
		return k, fmt.Errorf("time_close: %w", err)
	}

	q, ok := model.Object(it["quote"])
	if !ok {
		return k, fmt.Errorf("missing quote")
	}
	usd, ok := model.Object(q[quoteCurrency])
	if !ok {
		return k, fmt.Errorf("missing %s quote", quoteCurrency)
	}
	fields := []struct {
		name string
		dst  *float64
	}{
		{"open", &k.Open},
		{"high", &k.High},
		{"low", &k.Low},
		{"close", &k.Close},
		{"volume", &k.Volume},
	}
	for _, f := range fields {
		if *f.dst, err = model.Number(usd[f.name]); err != nil {
			return k, fmt.Errorf("%s: %w", f.name, err)
		}
	}
	if k.MarketCap, err = model.OptNumber(usd["market_cap"]); err != nil {
		return k, fmt.Errorf("market_cap: %w", err)
	}
	supply := usd["circulating_supply"]
	if supply == nil {
		supply = it["circulating_supply"]
	}
	if k.CirculatingSupply, err = model.OptNumber(supply); err != nil {
		return k, fmt.Errorf("circulating_supply: %w", err)
	}
	return k, nil
}
