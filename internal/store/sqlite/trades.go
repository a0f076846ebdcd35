package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/akarazhev/crypto-scout-collector-sub000/internal/model"
)

const tradeColumns = `symbol, trade_id, ts, side, price, size, block_trade`

// TradeRepository stores public trades keyed by (symbol, trade id).
type TradeRepository struct {
	db    *DB
	table string
}

func NewTradeRepository(db *DB, table string) (*TradeRepository, error) {
	if err := checkTable(table, kindTrade); err != nil {
		return nil, err
	}
	return &TradeRepository{db: db, table: table}, nil
}

func (r *TradeRepository) Table() string { return r.table }

func (r *TradeRepository) SaveBatch(ctx context.Context, stream string, rows []model.Trade, offset int64) (int, error) {
	stmt := fmt.Sprintf(`INSERT OR REPLACE INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?)`, r.table, tradeColumns)
	return saveBatch(ctx, r.db, r.table, stmt, stream, rows, offset, func(t model.Trade) ([]any, error) {
		return []any{t.Symbol, t.ID, millis(t.Timestamp), t.Side, t.Price, t.Size, t.BlockTrade}, nil
	})
}

func (r *TradeRepository) Query(ctx context.Context, symbol string, from, to time.Time) ([]model.Trade, error) {
	q := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE symbol = ? AND ts >= ? AND ts <= ?
		ORDER BY ts ASC, trade_id ASC`, tradeColumns, r.table)
	return queryRows(ctx, r.db, r.table, q, []any{symbol, millis(from), millis(to)}, func(s rowScanner) (model.Trade, error) {
		var (
			t  model.Trade
			ts int64
		)
		err := s.Scan(&t.Symbol, &t.ID, &ts, &t.Side, &t.Price, &t.Size, &t.BlockTrade)
		t.Timestamp = fromMillis(ts)
		return t, err
	})
}
