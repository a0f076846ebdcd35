package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/akarazhev/crypto-scout-collector-sub000/internal/model"
)

var indicatorValueColumns = []string{
	"sma_50", "sma_100", "sma_200", "ema_50", "ema_100", "ema_200",
	"rsi_14", "stoch_k_14", "macd", "macd_signal", "macd_histogram",
	"bb_middle", "bb_upper", "bb_lower", "bb_width", "bb_percent_b",
	"atr_14", "stddev_20", "vwap", "volume_sma_20",
	"market_cap", "circulating_supply", "market_cap_volume_sma",
}

// indicatorValues returns the nullable fields of r in indicatorValueColumns order.
func indicatorValues(r *model.IndicatorResult) []**float64 {
	return []**float64{
		&r.SMA50, &r.SMA100, &r.SMA200, &r.EMA50, &r.EMA100, &r.EMA200,
		&r.RSI14, &r.StochK14, &r.MACD, &r.MACDSignal, &r.MACDHistogram,
		&r.BBMiddle, &r.BBUpper, &r.BBLower, &r.BBWidth, &r.BBPercentB,
		&r.ATR14, &r.StdDev20, &r.VWAP, &r.VolumeSMA20,
		&r.MarketCap, &r.CirculatingSupply, &r.MarketCapVolumeSMA,
	}
}

var (
	indicatorColumns = "symbol, interval, ts, open, high, low, close, volume, " + strings.Join(indicatorValueColumns, ", ")

	insertIndicatorSQL = "INSERT OR REPLACE INTO analyst_indicators (" + indicatorColumns + ") VALUES (?" +
		strings.Repeat(", ?", 8+len(indicatorValueColumns)-1) + ")"

	queryIndicatorSQL = "SELECT " + indicatorColumns + ` FROM analyst_indicators
		WHERE symbol = ? AND interval = ? AND ts >= ? AND ts <= ?
		ORDER BY ts ASC`

	latestIndicatorSQL = "SELECT " + indicatorColumns + ` FROM analyst_indicators
		WHERE symbol = ? AND interval = ?
		ORDER BY ts DESC LIMIT ?`
)

// IndicatorRepository stores analyst rows. It also serves the calculator
// warm-up through Latest.
type IndicatorRepository struct {
	db *DB
}

func NewIndicatorRepository(db *DB) *IndicatorRepository {
	return &IndicatorRepository{db: db}
}

func (r *IndicatorRepository) Table() string { return TableIndicators }

// SaveBatch writes rows and advances stream to offset atomically.
func (r *IndicatorRepository) SaveBatch(ctx context.Context, stream string, rows []model.IndicatorResult, offset int64) (int, error) {
	return saveBatch(ctx, r.db, TableIndicators, insertIndicatorSQL, stream, rows, offset, func(row model.IndicatorResult) ([]any, error) {
		args := []any{row.Symbol, row.Interval, millis(row.Timestamp), row.Open, row.High, row.Low, row.Close, row.Volume}
		for _, v := range indicatorValues(&row) {
			args = append(args, *v)
		}
		return args, nil
	})
}

// Query returns rows with timestamps in [from, to], ascending.
func (r *IndicatorRepository) Query(ctx context.Context, symbol, interval string, from, to time.Time) ([]model.IndicatorResult, error) {
	return queryRows(ctx, r.db, TableIndicators, queryIndicatorSQL,
		[]any{symbol, interval, millis(from), millis(to)}, scanIndicator)
}

// Latest returns the newest limit rows, ascending.
func (r *IndicatorRepository) Latest(ctx context.Context, symbol, interval string, limit int) ([]model.IndicatorResult, error) {
	return latestRows(ctx, r.db, TableIndicators, latestIndicatorSQL,
		[]any{symbol, interval, limit}, scanIndicator)
}

func scanIndicator(s rowScanner) (model.IndicatorResult, error) {
	var (
		row   model.IndicatorResult
		ts    int64
		nulls = make([]sql.NullFloat64, len(indicatorValueColumns))
	)
	dest := []any{&row.Symbol, &row.Interval, &ts, &row.Open, &row.High, &row.Low, &row.Close, &row.Volume}
	for i := range nulls {
		dest = append(dest, &nulls[i])
	}
	if err := s.Scan(dest...); err != nil {
		return row, err
	}
	row.Timestamp = fromMillis(ts)
	for i, v := range indicatorValues(&row) {
		*v = nullable(nulls[i])
	}
	return row, nil
}
