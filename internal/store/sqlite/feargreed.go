package sqlite

import (
	"context"
	"time"

	"github.com/akarazhev/crypto-scout-collector-sub000/internal/model"
)

// FearGreedRepository stores fear & greed index readings keyed by timestamp.
type FearGreedRepository struct {
	db *DB
}

func NewFearGreedRepository(db *DB) *FearGreedRepository {
	return &FearGreedRepository{db: db}
}

func (r *FearGreedRepository) Table() string { return TableFearGreed }

func (r *FearGreedRepository) SaveBatch(ctx context.Context, stream string, rows []model.FearGreed, offset int64) (int, error) {
	const stmt = `INSERT OR REPLACE INTO cmc_fear_greed (ts, value, classification) VALUES (?, ?, ?)`
	return saveBatch(ctx, r.db, TableFearGreed, stmt, stream, rows, offset, func(f model.FearGreed) ([]any, error) {
		return []any{millis(f.Timestamp), f.Value, f.Classification}, nil
	})
}

func (r *FearGreedRepository) Query(ctx context.Context, from, to time.Time) ([]model.FearGreed, error) {
	const q = `
		SELECT ts, value, classification FROM cmc_fear_greed
		WHERE ts >= ? AND ts <= ?
		ORDER BY ts ASC`
	return queryRows(ctx, r.db, TableFearGreed, q, []any{millis(from), millis(to)}, func(s rowScanner) (model.FearGreed, error) {
		var (
			f  model.FearGreed
			ts int64
		)
		err := s.Scan(&ts, &f.Value, &f.Classification)
		f.Timestamp = fromMillis(ts)
		return f, err
	})
}
