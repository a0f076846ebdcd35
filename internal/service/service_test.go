package service

import (
	"context"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akarazhev/crypto-scout-collector-sub000/config"
	"github.com/akarazhev/crypto-scout-collector-sub000/internal/model"
	"github.com/akarazhev/crypto-scout-collector-sub000/internal/rpc"
)

var start = time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) *Service {
	t.Helper()
	cfg := config.Default()
	cfg.SQLite.Path = filepath.Join(t.TempDir(), "collector.db")
	s, err := New(&cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.shutdown() })
	return s
}

func spotKlinePayload(t *testing.T, closePrice float64) model.Payload {
	t.Helper()
	p, err := model.DecodePayload([]byte(`{
		"provider": "BYBIT",
		"source": "kline.15",
		"data": {
			"topic": "kline.15.BTCUSDT",
			"type": "snapshot",
			"ts": 1725149700000,
			"data": [{
				"start": 1725148800000, "end": 1725149699999, "interval": "15",
				"open": "58000", "high": "58200", "low": "57900", "close": "` + strconv.FormatFloat(closePrice, 'f', -1, 64) + `",
				"volume": "12.5", "turnover": "725000", "confirm": true
			}]
		}
	}`))
	require.NoError(t, err)
	return p
}

func TestNew_Wiring(t *testing.T) {
	s := newTestService(t)

	var names, streams []string
	for _, b := range s.bindings {
		names = append(names, b.name)
		streams = append(streams, b.stream)
	}
	assert.Equal(t, []string{"bybit-spot", "bybit-linear", "crypto-scout", "analyst"}, names)
	assert.Equal(t, []string{"bybit-spot-stream", "bybit-linear-stream", "crypto-scout-stream", "bybit-analyst-stream"}, streams)
	assert.Len(t, s.subscribers, 4)
	assert.NotNil(t, s.transport, "redis broker carries the rpc channel")

	require.NotNil(t, s.Dispatcher())
	assert.ElementsMatch(t, []string{
		MethodSpotKlines, MethodLinearKlines, MethodCMCKlines,
		MethodSpotTickers, MethodLinearTickers, MethodSpotTrades, MethodLinearTrades,
		MethodSpotOrderBooks, MethodLinearOrderBooks, MethodLinearLiquidations,
		MethodFearGreedIndex, MethodAnalystIndicators, MethodStreamOffset,
	}, s.Dispatcher().Methods())
}

func TestNew_AnalystDisabled(t *testing.T) {
	cfg := config.Default()
	cfg.SQLite.Path = filepath.Join(t.TempDir(), "collector.db")
	cfg.Analyst.Enabled = false
	cfg.RPC.Enabled = false
	s, err := New(&cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.shutdown() })

	assert.Len(t, s.bindings, 3)
	assert.Nil(t, s.Dispatcher())
	assert.Nil(t, s.transport)
}

func TestSpotCollector_PersistsAndAnswersQueries(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	spot := s.bindings[0].sink

	require.NoError(t, spot.Save(ctx, spotKlinePayload(t, 58100), 5))
	require.NoError(t, spot.Stop(ctx))

	from := start.UnixMilli()
	resp := s.Dispatcher().Dispatch(ctx, rpc.Request("test-reply", MethodSpotKlines, "BTCUSDT", "15", from, from))
	require.Empty(t, resp.Error)
	require.Len(t, resp.Result, 1)
	k, ok := resp.Result[0].(model.Kline)
	require.True(t, ok)
	assert.Equal(t, 58100.0, k.Close)
	assert.Equal(t, start, k.Start)

	resp = s.Dispatcher().Dispatch(ctx, rpc.Request("test-reply", MethodStreamOffset, "bybit-spot-stream"))
	require.Empty(t, resp.Error)
	assert.Equal(t, []any{int64(5)}, resp.Result)

	resp = s.Dispatcher().Dispatch(ctx, rpc.Request("test-reply", MethodStreamOffset, "unknown-stream"))
	require.Empty(t, resp.Error)
	assert.Empty(t, resp.Result)
}

func TestSpotCollector_RejectsOtherProvider(t *testing.T) {
	s := newTestService(t)
	p := spotKlinePayload(t, 58100)
	p.Provider = model.ProviderCMC

	err := s.bindings[0].sink.Save(context.Background(), p, 1)
	assert.ErrorIs(t, err, model.ErrUnsupportedProvider)
}

func TestQueries_BadArguments(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	from := start.UnixMilli()

	tests := []struct {
		name   string
		method string
		args   []any
	}{
		{"missing symbol", MethodSpotTickers, nil},
		{"missing interval", MethodSpotKlines, []any{"BTCUSDT"}},
		{"bad time", MethodLinearTrades, []any{"BTCUSDT", "yesterday", from}},
		{"inverted range", MethodFearGreedIndex, []any{from + 1, from}},
		{"missing stream", MethodStreamOffset, []any{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := s.Dispatcher().Dispatch(ctx, rpc.Request("r", tt.method, tt.args...))
			assert.Contains(t, resp.Error, rpc.ErrBadArgs.Error())
		})
	}
}
