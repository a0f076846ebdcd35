package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/akarazhev/crypto-scout-collector-sub000/internal/model"
)

const tickerColumns = `symbol, ts, last_price, high_price_24h, low_price_24h, prev_price_24h, volume_24h, turnover_24h, price_24h_pcnt, mark_price, index_price, open_interest, funding_rate`

// TickerRepository stores ticker snapshots for spot or linear markets.
type TickerRepository struct {
	db    *DB
	table string
}

func NewTickerRepository(db *DB, table string) (*TickerRepository, error) {
	if err := checkTable(table, kindTicker); err != nil {
		return nil, err
	}
	return &TickerRepository{db: db, table: table}, nil
}

func (r *TickerRepository) Table() string { return r.table }

func (r *TickerRepository) SaveBatch(ctx context.Context, stream string, rows []model.Ticker, offset int64) (int, error) {
	stmt := fmt.Sprintf(`INSERT OR REPLACE INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, r.table, tickerColumns)
	return saveBatch(ctx, r.db, r.table, stmt, stream, rows, offset, func(t model.Ticker) ([]any, error) {
		return []any{
			t.Symbol, millis(t.Timestamp), t.LastPrice, t.HighPrice24h, t.LowPrice24h, t.PrevPrice24h,
			t.Volume24h, t.Turnover24h, t.Price24hPcnt, t.MarkPrice, t.IndexPrice, t.OpenInterest, t.FundingRate,
		}, nil
	})
}

func (r *TickerRepository) Query(ctx context.Context, symbol string, from, to time.Time) ([]model.Ticker, error) {
	q := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE symbol = ? AND ts >= ? AND ts <= ?
		ORDER BY ts ASC`, tickerColumns, r.table)
	return queryRows(ctx, r.db, r.table, q, []any{symbol, millis(from), millis(to)}, func(s rowScanner) (model.Ticker, error) {
		var (
			t                        model.Ticker
			ts                       int64
			mark, index, oi, funding sql.NullFloat64
		)
		err := s.Scan(&t.Symbol, &ts, &t.LastPrice, &t.HighPrice24h, &t.LowPrice24h, &t.PrevPrice24h,
			&t.Volume24h, &t.Turnover24h, &t.Price24hPcnt, &mark, &index, &oi, &funding)
		t.Timestamp = fromMillis(ts)
		t.MarkPrice, t.IndexPrice, t.OpenInterest, t.FundingRate = nullable(mark), nullable(index), nullable(oi), nullable(funding)
		return t, err
	})
}
