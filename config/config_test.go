package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "collector.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	require.NoError(t, err)

	assert.Equal(t, BrokerRedis, cfg.Broker.Kind)
	assert.Equal(t, "bybit-spot-stream", cfg.Streams.BybitSpot)
	assert.Equal(t, "bybit-linear-stream", cfg.Streams.BybitLinear)
	assert.Equal(t, "crypto-scout-stream", cfg.Streams.CryptoScout)
	assert.Equal(t, "bybit-analyst-stream", cfg.Streams.Analyst)
	assert.Equal(t, 100, cfg.Sinks.BybitSpot.BatchSize)
	assert.Equal(t, time.Second, cfg.Sinks.BybitSpot.FlushInterval())
	assert.True(t, cfg.Analyst.Indicators.MACD)
	assert.Equal(t, 200, cfg.Analyst.Indicators.MaxPeriod)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := writeFile(t, `
sqlite:
  path: /var/lib/collector/db.sqlite
broker:
  kind: kafka
  kafka:
    brokers: [kafka-0:9092]
sinks:
  bybit_spot:
    batch_size: 500
    flush_interval_ms: 250
analyst:
  symbol: ETHUSDT
  interval: "60"
  indicators:
    vwap: false
    max_period: 300
`)
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("ANALYST_INTERVAL", "240")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/collector/db.sqlite", cfg.SQLite.Path)
	assert.Equal(t, BrokerKafka, cfg.Broker.Kind)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Broker.Kafka.Brokers)
	assert.Equal(t, 500, cfg.Sinks.BybitSpot.BatchSize)
	assert.Equal(t, 250*time.Millisecond, cfg.Sinks.BybitSpot.FlushInterval())
	assert.Equal(t, 100, cfg.Sinks.BybitLinear.BatchSize, "untouched sinks keep defaults")
	assert.Equal(t, "ETHUSDT", cfg.Analyst.Symbol)
	assert.Equal(t, "240", cfg.Analyst.Interval)
	assert.False(t, cfg.Analyst.Indicators.VWAP)
	assert.True(t, cfg.Analyst.Indicators.RSI)
	assert.Equal(t, 300, cfg.Analyst.Indicators.MaxPeriod)
}

func TestLoad_BatchOverrideAppliesToEverySink(t *testing.T) {
	t.Setenv("COLLECTOR_BATCH_SIZE", "7")
	cfg, err := Load("")
	require.NoError(t, err)
	for _, s := range []SinkConfig{cfg.Sinks.BybitSpot, cfg.Sinks.BybitLinear, cfg.Sinks.CryptoScout, cfg.Analyst.Input, cfg.Analyst.Output} {
		assert.Equal(t, 7, s.BatchSize)
	}
}

func TestLoad_Invalid(t *testing.T) {
	t.Run("bad yaml", func(t *testing.T) {
		_, err := Load(writeFile(t, "broker: [unclosed"))
		assert.ErrorContains(t, err, "parse config file")
	})
	t.Run("bad env number", func(t *testing.T) {
		t.Setenv("REDIS_DB", "zero")
		_, err := Load("")
		assert.ErrorContains(t, err, "invalid REDIS_DB")
	})
	t.Run("validation", func(t *testing.T) {
		_, err := Load(writeFile(t, `
broker:
  kind: nats
sinks:
  crypto_scout:
    batch_size: 0
analyst:
  market: futures
`))
		require.Error(t, err)
		assert.ErrorContains(t, err, `broker.kind must be "redis" or "kafka", got "nats"`)
		assert.ErrorContains(t, err, "sinks.crypto_scout.batch_size must be greater than 0")
		assert.ErrorContains(t, err, "analyst.market must be spot, linear or cmc")
	})
	t.Run("kafka without brokers", func(t *testing.T) {
		_, err := Load(writeFile(t, "broker:\n  kind: kafka\n"))
		assert.ErrorContains(t, err, "broker.kafka.brokers is required")
	})
}
