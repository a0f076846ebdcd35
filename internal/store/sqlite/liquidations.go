package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/akarazhev/crypto-scout-collector-sub000/internal/model"
)

const liquidationColumns = `symbol, ts, side, price, size`

type LiquidationRepository struct {
	db    *DB
	table string
}

func NewLiquidationRepository(db *DB, table string) (*LiquidationRepository, error) {
	if err := checkTable(table, kindLiquidation); err != nil {
		return nil, err
	}
	return &LiquidationRepository{db: db, table: table}, nil
}

func (r *LiquidationRepository) Table() string { return r.table }

func (r *LiquidationRepository) SaveBatch(ctx context.Context, stream string, rows []model.Liquidation, offset int64) (int, error) {
	stmt := fmt.Sprintf(`INSERT OR REPLACE INTO %s (%s) VALUES (?, ?, ?, ?, ?)`, r.table, liquidationColumns)
	return saveBatch(ctx, r.db, r.table, stmt, stream, rows, offset, func(l model.Liquidation) ([]any, error) {
		return []any{l.Symbol, millis(l.Timestamp), l.Side, l.Price, l.Size}, nil
	})
}

func (r *LiquidationRepository) Query(ctx context.Context, symbol string, from, to time.Time) ([]model.Liquidation, error) {
	q := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE symbol = ? AND ts >= ? AND ts <= ?
		ORDER BY ts ASC`, liquidationColumns, r.table)
	return queryRows(ctx, r.db, r.table, q, []any{symbol, millis(from), millis(to)}, func(s rowScanner) (model.Liquidation, error) {
		var (
			l  model.Liquidation
			ts int64
		)
		err := s.Scan(&l.Symbol, &ts, &l.Side, &l.Price, &l.Size)
		l.Timestamp = fromMillis(ts)
		return l, err
	})
}
