package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// The stored offset only moves forward, so two flush paths racing on one
// stream cannot roll it back.
const upsertOffsetSQL = `
	INSERT INTO stream_offsets (stream, last_offset, updated_at)
	VALUES (?, ?, ?)
	ON CONFLICT(stream) DO UPDATE SET
		last_offset = MAX(last_offset, excluded.last_offset),
		updated_at  = excluded.updated_at
`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertOffsetTx(ctx context.Context, ex execer, stream string, offset int64) (int64, error) {
	res, err := ex.ExecContext(ctx, upsertOffsetSQL, stream, offset, time.Now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("upsert offset %s: %w", stream, err)
	}
	return res.RowsAffected()
}

// OffsetStore maps stream names to their last committed offset.
type OffsetStore struct {
	db *DB
}

// NewOffsetStore returns the offset store on db.
func NewOffsetStore(db *DB) *OffsetStore { return &OffsetStore{db: db} }

// ReadOffset returns the committed offset for stream, or false when none exists.
func (s *OffsetStore) ReadOffset(ctx context.Context, stream string) (int64, bool, error) {
	var off int64
	err := s.db.db.QueryRowContext(ctx,
		`SELECT last_offset FROM stream_offsets WHERE stream = ?`, stream,
	).Scan(&off)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("sqlite: read offset %s: %w", stream, err)
	}
	return off, true, nil
}

// UpsertOffset records offset for stream and returns rows affected.
func (s *OffsetStore) UpsertOffset(ctx context.Context, stream string, offset int64) (int64, error) {
	n, err := upsertOffsetTx(ctx, s.db.db, stream, offset)
	if err != nil {
		return 0, fmt.Errorf("sqlite: %w", err)
	}
	return n, nil
}

// Offsets returns every stored stream offset.
func (s *OffsetStore) Offsets(ctx context.Context) (map[string]int64, error) {
	type pair struct {
		stream string
		offset int64
	}
	rows, err := queryRows(ctx, s.db, TableOffsets,
		`SELECT stream, last_offset FROM stream_offsets ORDER BY stream`, nil,
		func(r rowScanner) (pair, error) {
			var p pair
			err := r.Scan(&p.stream, &p.offset)
			return p, err
		})
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, p := range rows {
		out[p.stream] = p.offset
	}
	return out, nil
}
