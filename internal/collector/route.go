package collector

import (
	"context"

	"github.com/akarazhev/crypto-scout-collector-sub000/internal/model"
)

// Route sends matching buffered values to one destination table.
// Routes are tried in order; a value goes to the first route that matches.
type Route[T any] interface {
	Name() string
	newBucket() bucket[T]
}

// bucket collects the rows of one route during a single flush.
type bucket[T any] interface {
	match(v T) bool
	add(v T) error
	len() int
	save(ctx context.Context, stream string, offset int64) (int, error)
}

// Table is a Route that decodes values into typed rows of R and persists
// them together with the stream offset.
//
// Decode applies per-kind filters and may return zero rows for a matching
// value (e.g. an unconfirmed candle). Save must write rows and advance the
// offset atomically.
type Table[T, R any] struct {
	Dest   string
	Match  func(v T) bool
	Decode func(v T) ([]R, error)
	Save   func(ctx context.Context, stream string, rows []R, offset int64) (int, error)
}

func (t Table[T, R]) Name() string { return t.Dest }

func (t Table[T, R]) newBucket() bucket[T] { return &tableBucket[T, R]{table: t} }

type tableBucket[T, R any] struct {
	table Table[T, R]
	rows  []R
}

func (b *tableBucket[T, R]) match(v T) bool { return b.table.Match(v) }

func (b *tableBucket[T, R]) add(v T) error {
	rows, err := b.table.Decode(v)
	if err != nil {
		return err
	}
	b.rows = append(b.rows, rows...)
	return nil
}

func (b *tableBucket[T, R]) len() int { return len(b.rows) }

func (b *tableBucket[T, R]) save(ctx context.Context, stream string, offset int64) (int, error) {
	return b.table.Save(ctx, stream, b.rows, offset)
}

// AcceptProviders returns an accept func for payload collectors.
func AcceptProviders(providers ...model.Provider) func(model.Payload) bool {
	return func(p model.Payload) bool {
		for _, want := range providers {
			if p.Provider == want {
				return true
			}
		}
		return false
	}
}

// MatchSources returns a route matcher on the payload source.
func MatchSources(sources ...model.Source) func(model.Payload) bool {
	return func(p model.Payload) bool {
		for _, s := range sources {
			if p.Source == s {
				return true
			}
		}
		return false
	}
}

// MatchKlines matches every kline source.
func MatchKlines(p model.Payload) bool { return p.Source.IsKline() }
