// Package sqlite implements the Offset Store and the Sink Repositories on
// SQLite. Every batch is written in one transaction together with the stream
// offset it was drained at.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/akarazhev/crypto-scout-collector-sub000/internal/logger"
)

// Config configures the SQLite database.
type Config struct {
	Path string // path to SQLite database file, e.g. "data/collector.db"
}

// DB is the shared SQLite handle. A single connection serializes writers.
type DB struct {
	db  *sql.DB
	log *logger.Entry
}

// Open opens the database with WAL mode and creates the schema.
func Open(cfg Config) (*DB, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite: empty database path")
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: create data dir %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Set connection pool for single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite ping: %w", err)
	}
	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log := logger.WithComponent("sqlite")
	log.WithField("path", cfg.Path).Info("opened database")
	return &DB{db: db, log: log}, nil
}

// SQL returns the underlying sql.DB for health checks.
func (d *DB) SQL() *sql.DB { return d.db }

// Ping checks the connection.
func (d *DB) Ping(ctx context.Context) error { return d.db.PingContext(ctx) }

// Close closes the database.
func (d *DB) Close() error { return d.db.Close() }

// saveBatch inserts rows with stmt and upserts the stream offset in a single
// transaction. Returns the number of rows written.
func saveBatch[R any](ctx context.Context, d *DB, table, stmt, stream string, rows []R, offset int64, args func(R) ([]any, error)) (int, error) {
	start := time.Now()
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: save %s: begin: %w", table, err)
	}

	ps, err := tx.PrepareContext(ctx, stmt)
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("sqlite: save %s: prepare: %w", table, err)
	}
	defer ps.Close()

	for _, r := range rows {
		a, err := args(r)
		if err != nil {
			tx.Rollback()
			return 0, fmt.Errorf("sqlite: save %s: %w", table, err)
		}
		if _, err := ps.ExecContext(ctx, a...); err != nil {
			tx.Rollback()
			return 0, fmt.Errorf("sqlite: save %s: %w", table, err)
		}
	}

	if _, err := upsertOffsetTx(ctx, tx, stream, offset); err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("sqlite: save %s: %w", table, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: save %s: commit: %w", table, err)
	}

	d.log.WithFields(logger.Fields{
		"table":  table,
		"rows":   len(rows),
		"stream": stream,
		"offset": offset,
		"took":   time.Since(start).String(),
	}).Debug("committed batch")
	return len(rows), nil
}

func millis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }
