package sqlite

import (
	"database/sql"
	"fmt"
)

// Tables.
const (
	TableSpotKlines        = "bybit_spot_klines"
	TableLinearKlines      = "bybit_linear_klines"
	TableCMCKlines         = "cmc_klines"
	TableSpotTickers       = "bybit_spot_tickers"
	TableLinearTickers     = "bybit_linear_tickers"
	TableSpotTrades        = "bybit_spot_trades"
	TableLinearTrades      = "bybit_linear_trades"
	TableSpotOrderBooks    = "bybit_spot_order_books"
	TableLinearOrderBooks  = "bybit_linear_order_books"
	TableLinearLiquidation = "bybit_linear_liquidations"
	TableFearGreed         = "cmc_fear_greed"
	TableIndicators        = "analyst_indicators"
	TableOffsets           = "stream_offsets"
)

const (
	kindKline       = "kline"
	kindTicker      = "ticker"
	kindTrade       = "trade"
	kindOrderBook   = "orderbook"
	kindLiquidation = "liquidation"
)

// tableKinds lists the tables each parameterised repository may target.
var tableKinds = map[string]string{
	TableSpotKlines:        kindKline,
	TableLinearKlines:      kindKline,
	TableCMCKlines:         kindKline,
	TableSpotTickers:       kindTicker,
	TableLinearTickers:     kindTicker,
	TableSpotTrades:        kindTrade,
	TableLinearTrades:      kindTrade,
	TableSpotOrderBooks:    kindOrderBook,
	TableLinearOrderBooks:  kindOrderBook,
	TableLinearLiquidation: kindLiquidation,
}

var kindDDL = map[string]string{
	kindKline: `
		CREATE TABLE IF NOT EXISTS %[1]s (
			symbol             TEXT    NOT NULL,
			interval           TEXT    NOT NULL,
			start_ts           INTEGER NOT NULL,
			end_ts             INTEGER NOT NULL,
			open               REAL    NOT NULL,
			high               REAL    NOT NULL,
			low                REAL    NOT NULL,
			close              REAL    NOT NULL,
			volume             REAL    NOT NULL,
			turnover           REAL    NOT NULL,
			market_cap         REAL,
			circulating_supply REAL,
			PRIMARY KEY (symbol, interval, start_ts)
		);`,
	kindTicker: `
		CREATE TABLE IF NOT EXISTS %[1]s (
			symbol         TEXT    NOT NULL,
			ts             INTEGER NOT NULL,
			last_price     REAL    NOT NULL,
			high_price_24h REAL    NOT NULL,
			low_price_24h  REAL    NOT NULL,
			prev_price_24h REAL    NOT NULL,
			volume_24h     REAL    NOT NULL,
			turnover_24h   REAL    NOT NULL,
			price_24h_pcnt REAL    NOT NULL,
			mark_price     REAL,
			index_price    REAL,
			open_interest  REAL,
			funding_rate   REAL,
			PRIMARY KEY (symbol, ts)
		);`,
	kindTrade: `
		CREATE TABLE IF NOT EXISTS %[1]s (
			symbol      TEXT    NOT NULL,
			trade_id    TEXT    NOT NULL,
			ts          INTEGER NOT NULL,
			side        TEXT    NOT NULL,
			price       REAL    NOT NULL,
			size        REAL    NOT NULL,
			block_trade INTEGER NOT NULL,
			PRIMARY KEY (symbol, trade_id)
		);
		CREATE INDEX IF NOT EXISTS idx_%[1]s_symbol_ts ON %[1]s (symbol, ts);`,
	kindOrderBook: `
		CREATE TABLE IF NOT EXISTS %[1]s (
			symbol    TEXT    NOT NULL,
			ts        INTEGER NOT NULL,
			update_id INTEGER NOT NULL,
			seq       INTEGER NOT NULL,
			bids      TEXT    NOT NULL,
			asks      TEXT    NOT NULL,
			PRIMARY KEY (symbol, ts)
		);`,
	kindLiquidation: `
		CREATE TABLE IF NOT EXISTS %[1]s (
			symbol TEXT    NOT NULL,
			ts     INTEGER NOT NULL,
			side   TEXT    NOT NULL,
			price  REAL    NOT NULL,
			size   REAL    NOT NULL,
			PRIMARY KEY (symbol, ts, side, price, size)
		);`,
}

const fixedDDL = `
	CREATE TABLE IF NOT EXISTS stream_offsets (
		stream      TEXT    PRIMARY KEY,
		last_offset INTEGER NOT NULL,
		updated_at  INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS cmc_fear_greed (
		ts             INTEGER PRIMARY KEY,
		value          INTEGER NOT NULL,
		classification TEXT    NOT NULL
	);

	CREATE TABLE IF NOT EXISTS analyst_indicators (
		symbol                TEXT    NOT NULL,
		interval              TEXT    NOT NULL,
		ts                    INTEGER NOT NULL,
		open                  REAL    NOT NULL,
		high                  REAL    NOT NULL,
		low                   REAL    NOT NULL,
		close                 REAL    NOT NULL,
		volume                REAL    NOT NULL,
		sma_50                REAL,
		sma_100               REAL,
		sma_200               REAL,
		ema_50                REAL,
		ema_100               REAL,
		ema_200               REAL,
		rsi_14                REAL,
		stoch_k_14            REAL,
		macd                  REAL,
		macd_signal           REAL,
		macd_histogram        REAL,
		bb_middle             REAL,
		bb_upper              REAL,
		bb_lower              REAL,
		bb_width              REAL,
		bb_percent_b          REAL,
		atr_14                REAL,
		stddev_20             REAL,
		vwap                  REAL,
		volume_sma_20         REAL,
		market_cap            REAL,
		circulating_supply    REAL,
		market_cap_volume_sma REAL,
		PRIMARY KEY (symbol, interval, ts)
	);
`

func createSchema(db *sql.DB) error {
	if _, err := db.Exec(fixedDDL); err != nil {
		return err
	}
	for table, kind := range tableKinds {
		if _, err := db.Exec(fmt.Sprintf(kindDDL[kind], table)); err != nil {
			return fmt.Errorf("create %s: %w", table, err)
		}
	}
	return nil
}

// checkTable guards the table names interpolated into SQL.
func checkTable(table, kind string) error {
	if tableKinds[table] != kind {
		return fmt.Errorf("sqlite: %q is not a %s table", table, kind)
	}
	return nil
}
