package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akarazhev/crypto-scout-collector-sub000/internal/model"
)

const testStream = "bybit-spot-stream"

var base = time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC)

// setupTestDB opens a database in a temporary directory.
func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(Config{Path: filepath.Join(t.TempDir(), "data", "test.db")})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func kline(i int, price float64) model.Kline {
	start := base.Add(time.Duration(i) * 15 * time.Minute)
	return model.Kline{
		Symbol: "BTCUSDT", Interval: "15",
		Start: start, End: start.Add(15*time.Minute - time.Millisecond),
		Open: price, High: price + 1, Low: price - 1, Close: price,
		Volume: 2, Turnover: 2 * price, Confirmed: true,
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(Config{Path: path})
	require.NoError(t, err)
	require.NoError(t, db.Ping(context.Background()))
	require.NoError(t, db.Close())

	db, err = Open(Config{Path: path})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = Open(Config{})
	assert.Error(t, err)
}

func TestOffsetStore_ReadAndUpsert(t *testing.T) {
	db := setupTestDB(t)
	store := NewOffsetStore(db)
	ctx := context.Background()

	_, ok, err := store.ReadOffset(ctx, testStream)
	require.NoError(t, err)
	assert.False(t, ok, "no offset recorded yet")

	n, err := store.UpsertOffset(ctx, testStream, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	off, ok, err := store.ReadOffset(ctx, testStream)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(100), off)

	// idempotent
	_, err = store.UpsertOffset(ctx, testStream, 100)
	require.NoError(t, err)
	off, _, _ = store.ReadOffset(ctx, testStream)
	assert.Equal(t, int64(100), off)
}

func TestOffsetStore_NeverDecreases(t *testing.T) {
	db := setupTestDB(t)
	store := NewOffsetStore(db)
	ctx := context.Background()

	for _, v := range []int64{5, 9, 7, 3} {
		_, err := store.UpsertOffset(ctx, testStream, v)
		require.NoError(t, err)
	}
	off, ok, err := store.ReadOffset(ctx, testStream)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(9), off)

	_, err = store.UpsertOffset(ctx, "other", 1)
	require.NoError(t, err)
	all, err := store.Offsets(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{testStream: 9, "other": 1}, all)
}

func TestKlineRepository_SaveBatchAdvancesOffset(t *testing.T) {
	db := setupTestDB(t)
	repo, err := NewKlineRepository(db, TableSpotKlines)
	require.NoError(t, err)
	offsets := NewOffsetStore(db)
	ctx := context.Background()

	n, err := repo.SaveBatch(ctx, testStream, []model.Kline{kline(0, 100), kline(1, 101)}, 42)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	off, ok, err := offsets.ReadOffset(ctx, testStream)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(42), off)

	rows, err := repo.Query(ctx, "BTCUSDT", "15", base, base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.True(t, rows[0].Start.Equal(base))
	assert.Equal(t, 100.0, rows[0].Close)
	assert.Nil(t, rows[0].MarketCap)
	assert.True(t, rows[1].Confirmed)
}

func TestKlineRepository_ReplaceOnRedelivery(t *testing.T) {
	db := setupTestDB(t)
	repo, err := NewKlineRepository(db, TableSpotKlines)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = repo.SaveBatch(ctx, testStream, []model.Kline{kline(0, 100)}, 1)
	require.NoError(t, err)
	_, err = repo.SaveBatch(ctx, testStream, []model.Kline{kline(0, 105)}, 1)
	require.NoError(t, err)

	rows, err := repo.Query(ctx, "BTCUSDT", "15", base, base)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 105.0, rows[0].Close)
}

func TestKlineRepository_LatestAscending(t *testing.T) {
	db := setupTestDB(t)
	repo, err := NewKlineRepository(db, TableCMCKlines)
	require.NoError(t, err)
	ctx := context.Background()

	var batch []model.Kline
	for i := 0; i < 10; i++ {
		k := kline(i, 100+float64(i))
		k.MarketCap = model.Float(1e12)
		batch = append(batch, k)
	}
	_, err = repo.SaveBatch(ctx, "crypto-scout-stream", batch, 10)
	require.NoError(t, err)

	rows, err := repo.Latest(ctx, "BTCUSDT", "15", 3)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, 107.0, rows[0].Close)
	assert.Equal(t, 109.0, rows[2].Close)
	require.NotNil(t, rows[2].MarketCap)
	assert.Equal(t, 1e12, *rows[2].MarketCap)
}

func TestRepositories_RejectUnknownTable(t *testing.T) {
	db := setupTestDB(t)
	_, err := NewKlineRepository(db, TableSpotTickers)
	assert.Error(t, err)
	_, err = NewTickerRepository(db, "tickers; DROP TABLE stream_offsets")
	assert.Error(t, err)
	_, err = NewLiquidationRepository(db, TableSpotTrades)
	assert.Error(t, err)
}

func TestSaveBatch_RollsBackOnError(t *testing.T) {
	db := setupTestDB(t)
	repo, err := NewKlineRepository(db, TableSpotKlines)
	require.NoError(t, err)
	offsets := NewOffsetStore(db)
	ctx := context.Background()

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = repo.SaveBatch(cancelled, testStream, []model.Kline{kline(0, 100)}, 7)
	require.Error(t, err)

	_, ok, err := offsets.ReadOffset(ctx, testStream)
	require.NoError(t, err)
	assert.False(t, ok, "offset must not move when the batch fails")
	rows, err := repo.Query(ctx, "BTCUSDT", "15", base, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestTickerRepository_NullableFields(t *testing.T) {
	db := setupTestDB(t)
	repo, err := NewTickerRepository(db, TableLinearTickers)
	require.NoError(t, err)
	ctx := context.Background()

	rows := []model.Ticker{
		{Symbol: "BTCUSDT", Timestamp: base, LastPrice: 100, FundingRate: model.Float(-0.0002)},
		{Symbol: "BTCUSDT", Timestamp: base.Add(time.Second), LastPrice: 101},
	}
	_, err = repo.SaveBatch(ctx, "bybit-linear-stream", rows, 3)
	require.NoError(t, err)

	got, err := repo.Query(ctx, "BTCUSDT", base, base.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.NotNil(t, got[0].FundingRate)
	assert.Equal(t, -0.0002, *got[0].FundingRate)
	assert.Nil(t, got[1].FundingRate)
	assert.Nil(t, got[1].MarkPrice)
}

func TestTradeRepository(t *testing.T) {
	db := setupTestDB(t)
	repo, err := NewTradeRepository(db, TableSpotTrades)
	require.NoError(t, err)
	ctx := context.Background()

	trades := []model.Trade{
		{ID: "a", Symbol: "BTCUSDT", Timestamp: base, Side: "Buy", Price: 100, Size: 0.1},
		{ID: "b", Symbol: "BTCUSDT", Timestamp: base.Add(time.Millisecond), Side: "Sell", Price: 99, Size: 0.2, BlockTrade: true},
		{ID: "a", Symbol: "BTCUSDT", Timestamp: base, Side: "Buy", Price: 100, Size: 0.1},
	}
	n, err := repo.SaveBatch(ctx, testStream, trades, 5)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	got, err := repo.Query(ctx, "BTCUSDT", base, base.Add(time.Second))
	require.NoError(t, err)
	require.Len(t, got, 2, "duplicate trade id is replaced")
	assert.True(t, got[1].BlockTrade)
}

func TestOrderBookRepository_Levels(t *testing.T) {
	db := setupTestDB(t)
	repo, err := NewOrderBookRepository(db, TableSpotOrderBooks)
	require.NoError(t, err)
	ctx := context.Background()

	ob := model.OrderBook{
		Symbol: "BTCUSDT", Timestamp: base, UpdateID: 18521288, Seq: 7961638724,
		Bids: []model.Level{{Price: 100, Size: 1}, {Price: 99.5, Size: 2}},
		Asks: []model.Level{{Price: 100.5, Size: 0.5}},
	}
	_, err = repo.SaveBatch(ctx, testStream, []model.OrderBook{ob}, 8)
	require.NoError(t, err)

	got, err := repo.Query(ctx, "BTCUSDT", base, base)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ob.Bids, got[0].Bids)
	assert.Equal(t, ob.Asks, got[0].Asks)
	assert.Equal(t, int64(7961638724), got[0].Seq)
}

func TestLiquidationAndFearGreedRepositories(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	liq, err := NewLiquidationRepository(db, TableLinearLiquidation)
	require.NoError(t, err)
	_, err = liq.SaveBatch(ctx, "bybit-linear-stream", []model.Liquidation{
		{Symbol: "ROSEUSDT", Timestamp: base, Side: "Sell", Price: 0.04499, Size: 20000},
	}, 11)
	require.NoError(t, err)
	liqs, err := liq.Query(ctx, "ROSEUSDT", base, base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, liqs, 1)
	assert.Equal(t, "Sell", liqs[0].Side)

	fgi := NewFearGreedRepository(db)
	_, err = fgi.SaveBatch(ctx, "crypto-scout-stream", []model.FearGreed{
		{Timestamp: base, Value: 38, Classification: "Fear"},
		{Timestamp: base.Add(24 * time.Hour), Value: 41, Classification: "Fear"},
	}, 2)
	require.NoError(t, err)
	readings, err := fgi.Query(ctx, base, base.Add(48*time.Hour))
	require.NoError(t, err)
	require.Len(t, readings, 2)
	assert.Equal(t, 41, readings[1].Value)

	offsets := NewOffsetStore(db)
	off, ok, err := offsets.ReadOffset(ctx, "crypto-scout-stream")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(2), off)
}

func TestIndicatorRepository_RoundTripsNullableColumns(t *testing.T) {
	db := setupTestDB(t)
	repo := NewIndicatorRepository(db)
	ctx := context.Background()

	rows := []model.IndicatorResult{
		{Symbol: "BTCUSDT", Interval: "15", Timestamp: base, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10},
		{
			Symbol: "BTCUSDT", Interval: "15", Timestamp: base.Add(15 * time.Minute),
			Open: 1.5, High: 2, Low: 1, Close: 1.8, Volume: 12,
			SMA50: model.Float(1.7), RSI14: model.Float(55), MarketCapVolumeSMA: model.Float(3),
		},
	}
	_, err := repo.SaveBatch(ctx, "bybit-analyst-stream", rows, 77)
	require.NoError(t, err)

	got, err := repo.Query(ctx, "BTCUSDT", "15", base, base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Nil(t, got[0].SMA50)
	assert.Nil(t, got[0].MarketCapVolumeSMA)
	require.NotNil(t, got[1].SMA50)
	assert.Equal(t, 1.7, *got[1].SMA50)
	assert.Equal(t, 55.0, *got[1].RSI14)
	assert.Equal(t, 3.0, *got[1].MarketCapVolumeSMA)
	assert.Nil(t, got[1].EMA50)
	assert.Equal(t, 12.0, got[1].Volume)

	latest, err := repo.Latest(ctx, "BTCUSDT", "15", 1)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.True(t, latest[0].Timestamp.Equal(base.Add(15*time.Minute)))
}
