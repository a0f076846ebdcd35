package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/akarazhev/crypto-scout-collector-sub000/internal/model"
)

const klineColumns = `symbol, interval, start_ts, end_ts, open, high, low, close, volume, turnover, market_cap, circulating_supply`

// KlineRepository stores confirmed candles in one of the kline tables.
type KlineRepository struct {
	db    *DB
	table string
}

// NewKlineRepository returns the repository for a kline table.
func NewKlineRepository(db *DB, table string) (*KlineRepository, error) {
	if err := checkTable(table, kindKline); err != nil {
		return nil, err
	}
	return &KlineRepository{db: db, table: table}, nil
}

// Table returns the table name.
func (r *KlineRepository) Table() string { return r.table }

// SaveBatch writes rows and advances stream to offset atomically.
func (r *KlineRepository) SaveBatch(ctx context.Context, stream string, rows []model.Kline, offset int64) (int, error) {
	stmt := fmt.Sprintf(`INSERT OR REPLACE INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, r.table, klineColumns)
	return saveBatch(ctx, r.db, r.table, stmt, stream, rows, offset, func(k model.Kline) ([]any, error) {
		return []any{
			k.Symbol, k.Interval, millis(k.Start), millis(k.End),
			k.Open, k.High, k.Low, k.Close, k.Volume, k.Turnover,
			k.MarketCap, k.CirculatingSupply,
		}, nil
	})
}

// Query returns candles with start in [from, to], ascending.
func (r *KlineRepository) Query(ctx context.Context, symbol, interval string, from, to time.Time) ([]model.Kline, error) {
	q := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE symbol = ? AND interval = ? AND start_ts >= ? AND start_ts <= ?
		ORDER BY start_ts ASC`, klineColumns, r.table)
	return queryRows(ctx, r.db, r.table, q, []any{symbol, interval, millis(from), millis(to)}, scanKline)
}

// Latest returns the newest limit candles, ascending.
func (r *KlineRepository) Latest(ctx context.Context, symbol, interval string, limit int) ([]model.Kline, error) {
	q := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE symbol = ? AND interval = ?
		ORDER BY start_ts DESC LIMIT ?`, klineColumns, r.table)
	return latestRows(ctx, r.db, r.table, q, []any{symbol, interval, limit}, scanKline)
}

func scanKline(s rowScanner) (model.Kline, error) {
	var (
		k            model.Kline
		start, end   int64
		mcap, supply sql.NullFloat64
	)
	if err := s.Scan(&k.Symbol, &k.Interval, &start, &end,
		&k.Open, &k.High, &k.Low, &k.Close, &k.Volume, &k.Turnover, &mcap, &supply); err != nil {
		return k, err
	}
	k.Start, k.End = fromMillis(start), fromMillis(end)
	k.MarketCap, k.CirculatingSupply = nullable(mcap), nullable(supply)
	k.Confirmed = true
	return k, nil
}
