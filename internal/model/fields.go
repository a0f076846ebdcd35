package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Helpers for reading loosely typed payload bodies. Exchanges send numbers
// both as JSON numbers and as decimal strings.

// Number converts a JSON number or numeric string to float64.
func Number(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int64:
		return float64(n), nil
	case int:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case string:
		d, err := decimal.NewFromString(n)
		if err != nil {
			return 0, fmt.Errorf("parse number %q: %w", n, err)
		}
		return d.InexactFloat64(), nil
	case nil:
		return 0, fmt.Errorf("missing number")
	default:
		return 0, fmt.Errorf("unexpected number type %T", v)
	}
}

// OptNumber is Number for optional fields: missing or empty values give nil.
func OptNumber(v any) (*float64, error) {
	if v == nil {
		return nil, nil
	}
	if s, ok := v.(string); ok && s == "" {
		return nil, nil
	}
	f, err := Number(v)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// Millis converts an epoch-milliseconds value to UTC time.
func Millis(v any) (time.Time, error) {
	f, err := Number(v)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(int64(f)).UTC(), nil
}

// Timestamp accepts RFC 3339 strings as well as epoch seconds.
func Timestamp(v any) (time.Time, error) {
	if s, ok := v.(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t.UTC(), nil
		}
		if _, err := strconv.ParseFloat(s, 64); err != nil {
			return time.Time{}, fmt.Errorf("parse timestamp %q", s)
		}
	}
	f, err := Number(v)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(int64(f), 0).UTC(), nil
}

// String returns v when it is a string, otherwise "".
func String(v any) string {
	s, _ := v.(string)
	return s
}

// Object returns v as a JSON object.
func Object(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

// Objects returns v as a list of JSON objects. A single object is returned
// as a one-element list.
func Objects(v any) ([]map[string]any, error) {
	switch t := v.(type) {
	case map[string]any:
		return []map[string]any{t}, nil
	case []any:
		out := make([]map[string]any, 0, len(t))
		for i, e := range t {
			m, ok := e.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("element %d: expected object, got %T", i, e)
			}
			out = append(out, m)
		}
		return out, nil
	case []map[string]any:
		return t, nil
	case nil:
		return nil, fmt.Errorf("missing data")
	default:
		return nil, fmt.Errorf("expected object or array, got %T", v)
	}
}
