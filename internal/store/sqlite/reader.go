package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// rowScanner is satisfied by *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// queryRows runs q and scans every row with scan. Results keep the order of q.
func queryRows[R any](ctx context.Context, d *DB, table, q string, args []any, scan func(rowScanner) (R, error)) ([]R, error) {
	rows, err := d.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite query %s: %w", table, err)
	}
	defer rows.Close()

	var out []R
	for rows.Next() {
		r, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite scan %s: %w", table, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite query %s: %w", table, err)
	}
	return out, nil
}

// latestRows runs a newest-first query and returns the rows oldest first.
func latestRows[R any](ctx context.Context, d *DB, table, q string, args []any, scan func(rowScanner) (R, error)) ([]R, error) {
	out, err := queryRows(ctx, d, table, q, args, scan)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// nullable returns nil for NULL columns.
func nullable(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
