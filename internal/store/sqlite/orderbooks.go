package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/akarazhev/crypto-scout-collector-sub000/internal/model"
)

const orderBookColumns = `symbol, ts, update_id, seq, bids, asks`

// OrderBookRepository stores order book snapshots; each side is kept as a
// JSON array of levels.
type OrderBookRepository struct {
	db    *DB
	table string
}

func NewOrderBookRepository(db *DB, table string) (*OrderBookRepository, error) {
	if err := checkTable(table, kindOrderBook); err != nil {
		return nil, err
	}
	return &OrderBookRepository{db: db, table: table}, nil
}

func (r *OrderBookRepository) Table() string { return r.table }

func (r *OrderBookRepository) SaveBatch(ctx context.Context, stream string, rows []model.OrderBook, offset int64) (int, error) {
	stmt := fmt.Sprintf(`INSERT OR REPLACE INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?)`, r.table, orderBookColumns)
	return saveBatch(ctx, r.db, r.table, stmt, stream, rows, offset, func(ob model.OrderBook) ([]any, error) {
		bids, err := encodeLevels(ob.Bids)
		if err != nil {
			return nil, fmt.Errorf("marshal bids: %w", err)
		}
		asks, err := encodeLevels(ob.Asks)
		if err != nil {
			return nil, fmt.Errorf("marshal asks: %w", err)
		}
		return []any{ob.Symbol, millis(ob.Timestamp), ob.UpdateID, ob.Seq, bids, asks}, nil
	})
}

func (r *OrderBookRepository) Query(ctx context.Context, symbol string, from, to time.Time) ([]model.OrderBook, error) {
	q := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE symbol = ? AND ts >= ? AND ts <= ?
		ORDER BY ts ASC`, orderBookColumns, r.table)
	return queryRows(ctx, r.db, r.table, q, []any{symbol, millis(from), millis(to)}, func(s rowScanner) (model.OrderBook, error) {
		var (
			ob         model.OrderBook
			ts         int64
			bids, asks string
		)
		if err := s.Scan(&ob.Symbol, &ts, &ob.UpdateID, &ob.Seq, &bids, &asks); err != nil {
			return ob, err
		}
		ob.Timestamp = fromMillis(ts)
		if err := json.Unmarshal([]byte(bids), &ob.Bids); err != nil {
			return ob, fmt.Errorf("unmarshal bids: %w", err)
		}
		if err := json.Unmarshal([]byte(asks), &ob.Asks); err != nil {
			return ob, fmt.Errorf("unmarshal asks: %w", err)
		}
		return ob, nil
	})
}

func encodeLevels(levels []model.Level) (string, error) {
	if levels == nil {
		levels = []model.Level{}
	}
	b, err := json.Marshal(levels)
	return string(b), err
}
