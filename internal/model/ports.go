package model

import (
	"context"
	"time"
)

// ── Storage Port Interfaces ──
// These interfaces decouple the collectors, the analyst and the query
// surface from the concrete SQLite implementation.

// OffsetStore maps a stream name to its last committed offset.
type OffsetStore interface {
	// ReadOffset returns the committed offset and true, or false when none is recorded.
	ReadOffset(ctx context.Context, stream string) (int64, bool, error)

	// UpsertOffset records offset for stream and returns rows affected.
	// The stored value never decreases.
	UpsertOffset(ctx context.Context, stream string, offset int64) (int64, error)
}

// KlineReader reads stored candles.
type KlineReader interface {
	// Query returns candles with start in [from, to], ascending.
	Query(ctx context.Context, symbol, interval string, from, to time.Time) ([]Kline, error)

	// Latest returns the most recent limit candles, ascending.
	Latest(ctx context.Context, symbol, interval string, limit int) ([]Kline, error)
}

// IndicatorRepository persists and reads analyst rows. SaveBatch writes rows
// and advances the stream offset in one transaction.
type IndicatorRepository interface {
	SaveBatch(ctx context.Context, stream string, rows []IndicatorResult, offset int64) (int, error)
	Query(ctx context.Context, symbol, interval string, from, to time.Time) ([]IndicatorResult, error)
	Latest(ctx context.Context, symbol, interval string, limit int) ([]IndicatorResult, error)
}
