// Package config loads the collector configuration.
//
// Values are layered: built-in defaults, then an optional YAML file, then an
// optional .env file, then environment variables. The result is validated
// before use.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/akarazhev/crypto-scout-collector-sub000/internal/archive"
	"github.com/akarazhev/crypto-scout-collector-sub000/internal/indicator"
)

// Broker kinds.
const (
	BrokerRedis = "redis"
	BrokerKafka = "kafka"
)

// Config holds all application configuration.
type Config struct {
	Service string         `yaml:"service"`
	Log     LogConfig      `yaml:"log"`
	SQLite  SQLiteConfig   `yaml:"sqlite"`
	Broker  BrokerConfig   `yaml:"broker"`
	Streams StreamsConfig  `yaml:"streams"`
	Sinks   SinksConfig    `yaml:"sinks"`
	Analyst AnalystConfig  `yaml:"analyst"`
	Breaker BreakerConfig  `yaml:"breaker"`
	RPC     RPCConfig      `yaml:"rpc"`
	Metrics MetricsConfig  `yaml:"metrics"`
	Alerts  AlertsConfig   `yaml:"alerts"`
	Archive archive.Config `yaml:"archive"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

type BrokerConfig struct {
	Kind  string      `yaml:"kind"`
	Redis RedisConfig `yaml:"redis"`
	Kafka KafkaConfig `yaml:"kafka"`
	Retry RetryConfig `yaml:"retry"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Count    int64  `yaml:"count"`
	BlockMs  int    `yaml:"block_ms"`
}

type KafkaConfig struct {
	Brokers   []string `yaml:"brokers"`
	Partition int      `yaml:"partition"`
	MaxWaitMs int      `yaml:"max_wait_ms"`
}

type RetryConfig struct {
	MaxAttempts int `yaml:"max_attempts"`
	DelayMs     int `yaml:"delay_ms"`
}

// StreamsConfig names the stream each sink consumes.
type StreamsConfig struct {
	BybitSpot   string `yaml:"bybit_spot"`
	BybitLinear string `yaml:"bybit_linear"`
	CryptoScout string `yaml:"crypto_scout"`
	Analyst     string `yaml:"analyst"`
}

// SinkConfig holds the batching settings of one sink.
type SinkConfig struct {
	BatchSize       int `yaml:"batch_size"`
	FlushIntervalMs int `yaml:"flush_interval_ms"`
}

// FlushInterval returns the flush interval as a duration.
func (s SinkConfig) FlushInterval() time.Duration {
	return time.Duration(s.FlushIntervalMs) * time.Millisecond
}

type SinksConfig struct {
	BybitSpot   SinkConfig `yaml:"bybit_spot"`
	BybitLinear SinkConfig `yaml:"bybit_linear"`
	CryptoScout SinkConfig `yaml:"crypto_scout"`
}

type AnalystConfig struct {
	Enabled     bool             `yaml:"enabled"`
	Symbol      string           `yaml:"symbol"`
	Interval    string           `yaml:"interval"`
	Market      string           `yaml:"market"` // spot, linear or cmc: where warm-up candles are read
	WarmupLimit int              `yaml:"warmup_limit"`
	Input       SinkConfig       `yaml:"input"`
	Output      SinkConfig       `yaml:"output"`
	Indicators  indicator.Config `yaml:"indicators"`
}

type BreakerConfig struct {
	MaxFailures    int `yaml:"max_failures"`
	ResetTimeoutMs int `yaml:"reset_timeout_ms"`
}

type RPCConfig struct {
	Enabled   bool    `yaml:"enabled"`
	Channel   string  `yaml:"channel"`
	RPS       float64 `yaml:"rps"`
	Burst     int     `yaml:"burst"`
	TimeoutMs int     `yaml:"timeout_ms"`
}

// AlertsConfig selects where operational alerts go. Alerts are always logged.
type AlertsConfig struct {
	WebhookURL string `yaml:"webhook_url"`
}

type MetricsConfig struct {
	Addr            string `yaml:"addr"`
	CheckIntervalMs int    `yaml:"check_interval_ms"`
}

// Default returns the built-in configuration.
func Default() Config {
	sink := SinkConfig{BatchSize: 100, FlushIntervalMs: 1000}
	return Config{
		Service: "crypto-scout-collector",
		Log:     LogConfig{Level: "info", Format: "json", Output: "stdout"},
		SQLite:  SQLiteConfig{Path: "data/collector.db"},
		Broker: BrokerConfig{
			Kind:  BrokerRedis,
			Redis: RedisConfig{Addr: "localhost:6379", Count: 100, BlockMs: 2000},
			Kafka: KafkaConfig{MaxWaitMs: 2000},
			Retry: RetryConfig{MaxAttempts: 5, DelayMs: 5000},
		},
		Streams: StreamsConfig{
			BybitSpot:   "bybit-spot-stream",
			BybitLinear: "bybit-linear-stream",
			CryptoScout: "crypto-scout-stream",
			Analyst:     "bybit-analyst-stream",
		},
		Sinks: SinksConfig{BybitSpot: sink, BybitLinear: sink, CryptoScout: sink},
		Analyst: AnalystConfig{
			Enabled:    true,
			Symbol:     "BTCUSDT",
			Interval:   "15",
			Market:     "spot",
			Input:      sink,
			Output:     sink,
			Indicators: indicator.DefaultConfig(),
		},
		Breaker: BreakerConfig{MaxFailures: 5, ResetTimeoutMs: 30000},
		RPC:     RPCConfig{Enabled: true, Channel: "crypto-scout-collector-rpc", RPS: 50, Burst: 100, TimeoutMs: 5000},
		Metrics: MetricsConfig{Addr: ":9090", CheckIntervalMs: 10000},
		Archive: archive.Config{Prefix: "klines", Region: "us-east-1"},
	}
}

// Load builds the configuration. path may be empty; a missing file is not
// an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	var errs []error
	setString := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("invalid %s: %w", key, err))
				return
			}
			*dst = n
		}
	}

	setString("LOG_LEVEL", &cfg.Log.Level)
	setString("LOG_FORMAT", &cfg.Log.Format)
	setString("LOG_OUTPUT", &cfg.Log.Output)
	setString("SQLITE_PATH", &cfg.SQLite.Path)
	setString("BROKER_KIND", &cfg.Broker.Kind)
	setString("REDIS_ADDR", &cfg.Broker.Redis.Addr)
	setString("REDIS_PASSWORD", &cfg.Broker.Redis.Password)
	setInt("REDIS_DB", &cfg.Broker.Redis.DB)
	if v := strings.TrimSpace(os.Getenv("KAFKA_BROKERS")); v != "" {
		cfg.Broker.Kafka.Brokers = splitList(v)
	}
	setInt("COLLECTOR_RETRY_ATTEMPTS", &cfg.Broker.Retry.MaxAttempts)
	setInt("COLLECTOR_RETRY_DELAY_MS", &cfg.Broker.Retry.DelayMs)

	var batch, flush int
	setInt("COLLECTOR_BATCH_SIZE", &batch)
	setInt("COLLECTOR_FLUSH_INTERVAL_MS", &flush)
	for _, s := range []*SinkConfig{&cfg.Sinks.BybitSpot, &cfg.Sinks.BybitLinear, &cfg.Sinks.CryptoScout, &cfg.Analyst.Input, &cfg.Analyst.Output} {
		if batch != 0 {
			s.BatchSize = batch
		}
		if flush != 0 {
			s.FlushIntervalMs = flush
		}
	}

	setString("ANALYST_SYMBOL", &cfg.Analyst.Symbol)
	setString("ANALYST_INTERVAL", &cfg.Analyst.Interval)
	setString("METRICS_ADDR", &cfg.Metrics.Addr)
	setString("RPC_CHANNEL", &cfg.RPC.Channel)
	setString("ALERT_WEBHOOK_URL", &cfg.Alerts.WebhookURL)

	setString("S3_BUCKET", &cfg.Archive.Bucket)
	setString("S3_ENDPOINT", &cfg.Archive.Endpoint)
	setString("AWS_REGION", &cfg.Archive.Region)
	setString("AWS_ACCESS_KEY_ID", &cfg.Archive.AccessKeyID)
	setString("AWS_SECRET_ACCESS_KEY", &cfg.Archive.SecretAccessKey)

	return errors.Join(errs...)
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if c.SQLite.Path == "" {
		add("sqlite.path is required")
	}
	switch c.Broker.Kind {
	case BrokerRedis:
		if c.Broker.Redis.Addr == "" {
			add("broker.redis.addr is required")
		}
	case BrokerKafka:
		if len(c.Broker.Kafka.Brokers) == 0 {
			add("broker.kafka.brokers is required")
		}
	default:
		add("broker.kind must be %q or %q, got %q", BrokerRedis, BrokerKafka, c.Broker.Kind)
	}
	if c.Broker.Retry.MaxAttempts < 0 {
		add("broker.retry.max_attempts must be >= 0")
	}
	if c.Broker.Retry.DelayMs < 0 {
		add("broker.retry.delay_ms must be >= 0")
	}

	sinks := map[string]SinkConfig{
		"sinks.bybit_spot":   c.Sinks.BybitSpot,
		"sinks.bybit_linear": c.Sinks.BybitLinear,
		"sinks.crypto_scout": c.Sinks.CryptoScout,
		"analyst.input":      c.Analyst.Input,
		"analyst.output":     c.Analyst.Output,
	}
	for name, s := range sinks {
		if s.BatchSize <= 0 {
			add("%s.batch_size must be greater than 0", name)
		}
		if s.FlushIntervalMs <= 0 {
			add("%s.flush_interval_ms must be greater than 0", name)
		}
	}

	if c.Analyst.Enabled {
		if c.Analyst.Symbol == "" {
			add("analyst.symbol is required")
		}
		if c.Analyst.Interval == "" {
			add("analyst.interval is required")
		}
		switch c.Analyst.Market {
		case "spot", "linear", "cmc":
		default:
			add("analyst.market must be spot, linear or cmc, got %q", c.Analyst.Market)
		}
		if err := c.Analyst.Indicators.Validate(); err != nil {
			errs = append(errs, err)
		}
	}

	if c.RPC.Enabled && c.RPC.RPS < 0 {
		add("rpc.rps must be >= 0")
	}
	if c.Metrics.Addr == "" {
		add("metrics.addr is required")
	}
	if c.Metrics.CheckIntervalMs <= 0 {
		add("metrics.check_interval_ms must be greater than 0")
	}
	return errors.Join(errs...)
}
