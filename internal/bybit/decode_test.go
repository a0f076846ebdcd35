package bybit

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akarazhev/crypto-scout-collector-sub000/internal/model"
)

func payload(t *testing.T, source model.Source, body string) model.Payload {
	t.Helper()
	var data map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &data))
	return model.Payload{Provider: model.ProviderBybit, Source: source, Data: data}
}

func TestSymbol(t *testing.T) {
	assert.Equal(t, "BTCUSDT", Symbol("kline.15.BTCUSDT"))
	assert.Equal(t, "ETHUSDT", Symbol("orderbook.200.ETHUSDT"))
	assert.Equal(t, "BTCUSDT", Symbol("BTCUSDT"))
	assert.Equal(t, "D", Interval(model.SourceKlineD))
}

func TestKlines_KeepsConfirmedOnly(t *testing.T) {
	p := payload(t, model.SourceKline15, `{
		"topic": "kline.15.BTCUSDT",
		"type": "snapshot",
		"ts": 1672324988882,
		"data": [
			{"start": 1672324800000, "end": 1672325699999, "interval": "15",
			 "open": "16649.5", "close": "16677", "high": "16677", "low": "16608",
			 "volume": "2.081", "turnover": "34666.4005", "confirm": true, "timestamp": 1672324988882},
			{"start": 1672325700000, "end": 1672326599999, "interval": "15",
			 "open": "16677", "close": "16680", "high": "16690", "low": "16670",
			 "volume": "0.5", "turnover": "8340", "confirm": false, "timestamp": 1672325800000}
		]
	}`)

	rows, err := Klines(p)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	k := rows[0]
	assert.Equal(t, "BTCUSDT", k.Symbol)
	assert.Equal(t, "15", k.Interval)
	assert.WithinDuration(t, time.UnixMilli(1672324800000).UTC(), k.Start, 0)
	assert.InDelta(t, 16649.5, k.Open, 1e-9)
	assert.InDelta(t, 16608, k.Low, 1e-9)
	assert.InDelta(t, 2.081, k.Volume, 1e-9)
	assert.True(t, k.Confirmed)

	_, err = k.Bar()
	assert.NoError(t, err)
}

func TestKlines_MalformedNumber(t *testing.T) {
	p := payload(t, model.SourceKline60, `{
		"topic": "kline.60.BTCUSDT",
		"data": [{"start": 1, "end": 2, "open": "x", "close": "1", "high": "1", "low": "1",
		          "volume": "1", "turnover": "1", "confirm": true}]
	}`)
	_, err := Klines(p)
	assert.Error(t, err)
}

func TestTickers_SpotAndLinear(t *testing.T) {
	spot := payload(t, model.SourceTickers, `{
		"topic": "tickers.BTCUSDT", "type": "snapshot", "ts": 1673853746003,
		"data": {"symbol": "BTCUSDT", "lastPrice": "21109.77", "highPrice24h": "21426.99",
		         "lowPrice24h": "20575", "prevPrice24h": "20704.93", "volume24h": "6780.866843",
		         "turnover24h": "141946527.22907118", "price24hPcnt": "0.0196"}
	}`)
	rows, err := Tickers(spot)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "BTCUSDT", rows[0].Symbol)
	assert.InDelta(t, 21109.77, rows[0].LastPrice, 1e-9)
	assert.Nil(t, rows[0].MarkPrice)
	assert.Nil(t, rows[0].FundingRate)

	linear := payload(t, model.SourceTickers, `{
		"topic": "tickers.BTCUSDT", "type": "snapshot", "ts": 1673272861686,
		"data": {"symbol": "BTCUSDT", "lastPrice": "17216.00", "highPrice24h": "17300",
		         "lowPrice24h": "17000", "prevPrice24h": "17100", "volume24h": "91705.276",
		         "turnover24h": "1570383121.943499", "price24hPcnt": "0.0068",
		         "markPrice": "17217.33", "indexPrice": "17227.36",
		         "openInterest": "68744.761", "fundingRate": "-0.000212"}
	}`)
	rows, err = Tickers(linear)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].FundingRate)
	assert.InDelta(t, -0.000212, *rows[0].FundingRate, 1e-12)
	require.NotNil(t, rows[0].OpenInterest)
}

func TestTickers_SkipsPartialDelta(t *testing.T) {
	p := payload(t, model.SourceTickers, `{
		"topic": "tickers.BTCUSDT", "type": "delta", "ts": 1673272861686,
		"data": {"symbol": "BTCUSDT", "fundingRate": "-0.0002"}
	}`)
	rows, err := Tickers(p)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestTrades(t *testing.T) {
	p := payload(t, model.SourceTrades, `{
		"topic": "publicTrade.BTCUSDT", "type": "snapshot", "ts": 1672304486868,
		"data": [
			{"T": 1672304486865, "s": "BTCUSDT", "S": "Buy", "v": "0.001", "p": "16578.50",
			 "L": "PlusTick", "i": "20f43950-d8dd-5b31-9112-a178eb6023af", "BT": false}
		]
	}`)
	rows, err := Trades(p)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "20f43950-d8dd-5b31-9112-a178eb6023af", rows[0].ID)
	assert.Equal(t, "Buy", rows[0].Side)
	assert.InDelta(t, 16578.5, rows[0].Price, 1e-9)
	assert.InDelta(t, 0.001, rows[0].Size, 1e-12)
	assert.False(t, rows[0].BlockTrade)
}

func TestLiquidations(t *testing.T) {
	p := payload(t, model.SourceLiquidation, `{
		"topic": "allLiquidation.ROSEUSDT", "type": "snapshot", "ts": 1739502303204,
		"data": [{"T": 1739502302929, "s": "ROSEUSDT", "S": "Sell", "v": "20000", "p": "0.04499"}]
	}`)
	rows, err := Liquidations(p)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "ROSEUSDT", rows[0].Symbol)
	assert.Equal(t, "Sell", rows[0].Side)
	assert.InDelta(t, 20000, rows[0].Size, 1e-9)
}

func TestOrderBook_SnapshotOnly(t *testing.T) {
	snapshot := payload(t, model.SourceOrderBook, `{
		"topic": "orderbook.200.BTCUSDT", "type": "snapshot", "ts": 1672304484978,
		"data": {"s": "BTCUSDT",
		         "b": [["16493.50", "0.006"], ["16493.00", "0.100"]],
		         "a": [["16611.00", "0.029"]],
		         "u": 18521288, "seq": 7961638724}
	}`)
	rows, err := OrderBook(snapshot)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	ob := rows[0]
	assert.Equal(t, "BTCUSDT", ob.Symbol)
	assert.Equal(t, int64(18521288), ob.UpdateID)
	assert.Equal(t, int64(7961638724), ob.Seq)
	require.Len(t, ob.Bids, 2)
	require.Len(t, ob.Asks, 1)
	assert.InDelta(t, 16493.5, ob.Bids[0].Price, 1e-9)
	assert.InDelta(t, 0.029, ob.Asks[0].Size, 1e-12)

	delta := payload(t, model.SourceOrderBook, `{
		"topic": "orderbook.200.BTCUSDT", "type": "delta", "ts": 1672304484978,
		"data": {"s": "BTCUSDT", "b": [], "a": [["16611.00", "0"]], "u": 18521289, "seq": 7961638725}
	}`)
	rows, err = OrderBook(delta)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestOrderBook_BadLevel(t *testing.T) {
	p := payload(t, model.SourceOrderBook, `{
		"topic": "orderbook.200.BTCUSDT", "type": "snapshot", "ts": 1,
		"data": {"s": "BTCUSDT", "b": [["16493.50"]], "a": []}
	}`)
	_, err := OrderBook(p)
	assert.Error(t, err)
}
