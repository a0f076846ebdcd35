// Package bybit decodes Bybit public WebSocket v5 message bodies carried in
// payloads into storage rows.
//
// A body has the shape {"topic": "kline.15.BTCUSDT", "type": "snapshot",
// "ts": 1672324988882, "data": ...}.
package bybit

import (
	"fmt"
	"strings"

	"github.com/akarazhev/crypto-scout-collector-sub000/internal/model"
)

const (
	typeSnapshot = "snapshot"
	typeDelta    = "delta"
)

// Symbol returns the instrument from a topic such as "orderbook.200.BTCUSDT".
func Symbol(topic string) string {
	if i := strings.LastIndexByte(topic, '.'); i >= 0 {
		return topic[i+1:]
	}
	return topic
}

// Interval returns the kline interval of a payload source, e.g. "15" or "D".
func Interval(s model.Source) string { return s.Interval() }

// Klines returns the confirmed candles of a kline payload. Candles still
// forming are dropped.
func Klines(p model.Payload) ([]model.Kline, error) {
	items, err := model.Objects(p.Data["data"])
	if err != nil {
		return nil, fmt.Errorf("bybit kline: %w", err)
	}
	symbol := Symbol(model.String(p.Data["topic"]))
	out := make([]model.Kline, 0, len(items))
	for _, it := range items {
		if confirmed, _ := it["confirm"].(bool); !confirmed {
			continue
		}
		k, err := kline(it)
		if err != nil {
			return nil, fmt.Errorf("bybit kline %s: %w", symbol, err)
		}
		k.Symbol = symbol
		if k.Interval == "" {
			k.Interval = p.Source.Interval()
		}
		out = append(out, k)
	}
	return out, nil
}

func kline(it map[string]any) (model.Kline, error) {
	var (
		k   = model.Kline{Interval: model.String(it["interval"]), Confirmed: true}
		err error
	)
	if k.Start, err = model.Millis(it["start"]); err != nil {
		return k, fmt.Errorf("start: %w", err)
	}
	if k.End, err = model.Millis(it["end"]); err != nil {
		return k, fmt.Errorf("end: %w", err)
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
		{"turnover", &k.Turnover},
	}
	for _, f := range fields {
		if *f.dst, err = model.Number(it[f.name]); err != nil {
			return k, fmt.Errorf("%s: %w", f.name, err)
		}
	}
	return k, nil
}

// Tickers decodes a tickers payload. Delta updates that do not carry the last
// price are skipped; spot tickers leave the derivative fields nil.
func Tickers(p model.Payload) ([]model.Ticker, error) {
	data, ok := model.Object(p.Data["data"])
	if !ok {
		return nil, fmt.Errorf("bybit tickers: data is not an object")
	}
	if model.String(p.Data["type"]) == typeDelta && data["lastPrice"] == nil {
		return nil, nil
	}
	ts, err := model.Millis(p.Data["ts"])
	if err != nil {
		return nil, fmt.Errorf("bybit tickers: ts: %w", err)
	}

	t := model.Ticker{Symbol: model.String(data["symbol"]), Timestamp: ts}
	if t.Symbol == "" {
		t.Symbol = Symbol(model.String(p.Data["topic"]))
	}
	required := []struct {
		name string
		dst  *float64
	}{
		{"lastPrice", &t.LastPrice},
		{"highPrice24h", &t.HighPrice24h},
		{"lowPrice24h", &t.LowPrice24h},
		{"prevPrice24h", &t.PrevPrice24h},
		{"volume24h", &t.Volume24h},
		{"turnover24h", &t.Turnover24h},
		{"price24hPcnt", &t.Price24hPcnt},
	}
	for _, f := range required {
		if *f.dst, err = model.Number(data[f.name]); err != nil {
			return nil, fmt.Errorf("bybit tickers %s: %s: %w", t.Symbol, f.name, err)
		}
	}
	optional := []struct {
		name string
		dst  **float64
	}{
		{"markPrice", &t.MarkPrice},
		{"indexPrice", &t.IndexPrice},
		{"openInterest", &t.OpenInterest},
		{"fundingRate", &t.FundingRate},
	}
	for _, f := range optional {
		if *f.dst, err = model.OptNumber(data[f.name]); err != nil {
			return nil, fmt.Errorf("bybit tickers %s: %s: %w", t.Symbol, f.name, err)
		}
	}
	return []model.Ticker{t}, nil
}

// Trades decodes a publicTrade payload.
func Trades(p model.Payload) ([]model.Trade, error) {
	items, err := model.Objects(p.Data["data"])
	if err != nil {
		return nil, fmt.Errorf("bybit trades: %w", err)
	}
	out := make([]model.Trade, 0, len(items))
	for _, it := range items {
		tr := model.Trade{
			ID:     model.String(it["i"]),
			Symbol: model.String(it["s"]),
			Side:   model.String(it["S"]),
		}
		tr.BlockTrade, _ = it["BT"].(bool)
		if tr.Timestamp, err = model.Millis(it["T"]); err != nil {
			return nil, fmt.Errorf("bybit trade %s: T: %w", tr.ID, err)
		}
		if tr.Price, err = model.Number(it["p"]); err != nil {
			return nil, fmt.Errorf("bybit trade %s: p: %w", tr.ID, err)
		}
		if tr.Size, err = model.Number(it["v"]); err != nil {
			return nil, fmt.Errorf("bybit trade %s: v: %w", tr.ID, err)
		}
		out = append(out, tr)
	}
	return out, nil
}

// Liquidations decodes an allLiquidation payload.
func Liquidations(p model.Payload) ([]model.Liquidation, error) {
	items, err := model.Objects(p.Data["data"])
	if err != nil {
		return nil, fmt.Errorf("bybit liquidation: %w", err)
	}
	out := make([]model.Liquidation, 0, len(items))
	for _, it := range items {
		l := model.Liquidation{Symbol: model.String(it["s"]), Side: model.String(it["S"])}
		if l.Timestamp, err = model.Millis(it["T"]); err != nil {
			return nil, fmt.Errorf("bybit liquidation %s: T: %w", l.Symbol, err)
		}
		if l.Price, err = model.Number(it["p"]); err != nil {
			return nil, fmt.Errorf("bybit liquidation %s: p: %w", l.Symbol, err)
		}
		if l.Size, err = model.Number(it["v"]); err != nil {
			return nil, fmt.Errorf("bybit liquidation %s: v: %w", l.Symbol, err)
		}
		out = append(out, l)
	}
	return out, nil
}

// OrderBook decodes an order book payload. Only full snapshots are kept;
// deltas are dropped.
func OrderBook(p model.Payload) ([]model.OrderBook, error) {
	if model.String(p.Data["type"]) != typeSnapshot {
		return nil, nil
	}
	data, ok := model.Object(p.Data["data"])
	if !ok {
		return nil, fmt.Errorf("bybit orderbook: data is not an object")
	}
	ob := model.OrderBook{Symbol: model.String(data["s"])}
	var err error
	if ob.Timestamp, err = model.Millis(p.Data["ts"]); err != nil {
		return nil, fmt.Errorf("bybit orderbook %s: ts: %w", ob.Symbol, err)
	}
	if u, err := model.Number(data["u"]); err == nil {
		ob.UpdateID = int64(u)
	}
	if seq, err := model.Number(data["seq"]); err == nil {
		ob.Seq = int64(seq)
	}
	if ob.Bids, err = levels(data["b"]); err != nil {
		return nil, fmt.Errorf("bybit orderbook %s: bids: %w", ob.Symbol, err)
	}
	if ob.Asks, err = levels(data["a"]); err != nil {
		return nil, fmt.Errorf("bybit orderbook %s: asks: %w", ob.Symbol, err)
	}
	return []model.OrderBook{ob}, nil
}

// levels parses [["price", "size"], ...].
func levels(v any) ([]model.Level, error) {
	raw, ok := v.([]any)
	if !ok {
		if v == nil {
			return nil, nil
		}
		return nil, fmt.Errorf("expected array, got %T", v)
	}
	out := make([]model.Level, 0, len(raw))
	for i, e := range raw {
		pair, ok := e.([]any)
		if !ok || len(pair) < 2 {
			return nil, fmt.Errorf("level %d: expected [price, size]", i)
		}
		price, err := model.Number(pair[0])
		if err != nil {
			return nil, fmt.Errorf("level %d: %w", i, err)
		}
		size, err := model.Number(pair[1])
		if err != nil {
			return nil, fmt.Errorf("level %d: %w", i, err)
		}
		out = append(out, model.Level{Price: price, Size: size})
	}
	return out, nil
}
