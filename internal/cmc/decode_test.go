package cmc

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
	return model.Payload{Provider: model.ProviderCMC, Source: source, Data: data}
}

func TestFearGreed(t *testing.T) {
	p := payload(t, model.SourceFearGreed, `{
		"data": [
			{"timestamp": "2024-09-02T12:00:00.000Z", "value": 38, "value_classification": "Fear"},
			{"timestamp": "1725192000", "value": "41", "value_classification": "Fear"}
		]
	}`)
	rows, err := FearGreed(p)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.WithinDuration(t, time.Date(2024, 9, 2, 12, 0, 0, 0, time.UTC), rows[0].Timestamp, 0)
	assert.Equal(t, 38, rows[0].Value)
	assert.Equal(t, "Fear", rows[0].Classification)
	assert.WithinDuration(t, time.Unix(1725192000, 0).UTC(), rows[1].Timestamp, 0)
	assert.Equal(t, 41, rows[1].Value)
}

func TestFearGreed_SingleObjectAndRange(t *testing.T) {
	p := payload(t, model.SourceFearGreed, `{"data": {"timestamp": "1725192000", "value": 75, "value_classification": "Greed"}}`)
	rows, err := FearGreed(p)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	bad := payload(t, model.SourceFearGreed, `{"data": [{"timestamp": "1725192000", "value": 101}]}`)
	_, err = FearGreed(bad)
	assert.Error(t, err)
}

func TestKlines(t *testing.T) {
	p := payload(t, model.SourceKline1d, `{
		"symbol": "BTC",
		"quotes": [{
			"time_open": "2024-09-01T00:00:00.000Z",
			"time_close": "2024-09-01T23:59:59.999Z",
			"quote": {"USD": {"open": 58969.8, "high": 59062.07, "low": 57217.82, "close": 57325.49,
			                  "volume": 24592449997.6, "market_cap": 1132270048694.1,
			                  "circulating_supply": 19751121}}
		}]
	}`)
	rows, err := Klines(p)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	k := rows[0]
	assert.Equal(t, "BTC", k.Symbol)
	assert.Equal(t, "1d", k.Interval)
	assert.True(t, k.Confirmed)
	assert.WithinDuration(t, time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC), k.Start, 0)
	require.NotNil(t, k.MarketCap)
	assert.InDelta(t, 1132270048694.1, *k.MarketCap, 1e-3)
	require.NotNil(t, k.CirculatingSupply)
	assert.InDelta(t, 19751121, *k.CirculatingSupply, 1e-9)

	bar, err := k.Bar()
	require.NoError(t, err)
	assert.Equal(t, k.MarketCap, bar.MarketCap)
}

func TestKlines_OptionalFundamentals(t *testing.T) {
	p := payload(t, model.SourceKline1w, `{
		"quotes": [{
			"time_open": "2024-08-26T00:00:00Z", "time_close": "2024-09-01T23:59:59Z",
			"quote": {"USD": {"open": 1, "high": 2, "low": 0.5, "close": 1.5, "volume": 10}}
		}]
	}`)
	rows, err := Klines(p)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "BTC", rows[0].Symbol)
	assert.Equal(t, "1w", rows[0].Interval)
	assert.Nil(t, rows[0].MarketCap)
	assert.Nil(t, rows[0].CirculatingSupply)
}

func TestKlines_MissingQuote(t *testing.T) {
	p := payload(t, model.SourceKline1d, `{"quotes": [{"time_open": "2024-09-01T00:00:00Z", "time_close": "2024-09-01T23:59:59Z"}]}`)
	_, err := Klines(p)
	assert.Error(t, err)
}
