package stream

import (
	"context"
	"fmt"
	"time"

	kafka "github.com/segmentio/kafka-go"

	"github.com/akarazhev/crypto-scout-collector-sub000/internal/logger"
	"github.com/akarazhev/crypto-scout-collector-sub000/internal/model"
)

// KafkaConfig configures the Kafka broker. The stream name is the topic.
type KafkaConfig struct {
	Brokers   []string
	Partition int
	MinBytes  int
	MaxBytes  int
	MaxWait   time.Duration

	OnInvalid func(stream string)
}

// KafkaBroker reads one partition per stream with native offsets.
type KafkaBroker struct {
	cfg KafkaConfig
	log *logger.Entry
}

func NewKafkaBroker(cfg KafkaConfig) (*KafkaBroker, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers not configured")
	}
	if cfg.MinBytes <= 0 {
		cfg.MinBytes = 1
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 10e6
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = 2 * time.Second
	}
	b := &KafkaBroker{cfg: cfg, log: logger.WithComponent("kafka-broker")}
	b.log.WithField("brokers", cfg.Brokers).Debug("kafka broker initialized")
	return b, nil
}

func (b *KafkaBroker) Name() string { return "kafka" }

// Ping dials the first reachable broker.
func (b *KafkaBroker) Ping(ctx context.Context) error {
	var lastErr error
	for _, addr := range b.cfg.Brokers {
		conn, err := kafka.DialContext(ctx, "tcp", addr)
		if err != nil {
			lastErr = err
			continue
		}
		return conn.Close()
	}
	return fmt.Errorf("kafka dial: %w", lastErr)
}

// kafkaOffset maps a start position to a reader offset.
func kafkaOffset(from StartPosition) int64 {
	if from.First {
		return kafka.FirstOffset
	}
	return from.Offset
}

func (b *KafkaBroker) Subscribe(ctx context.Context, stream string, from StartPosition, h Handler) error {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   b.cfg.Brokers,
		Topic:     stream,
		Partition: b.cfg.Partition,
		MinBytes:  b.cfg.MinBytes,
		MaxBytes:  b.cfg.MaxBytes,
		MaxWait:   b.cfg.MaxWait,
	})
	defer r.Close()

	if err := r.SetOffset(kafkaOffset(from)); err != nil {
		return fmt.Errorf("kafka %s: set offset: %w", stream, err)
	}

	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("kafka %s: read: %w", stream, err)
		}
		entry := model.OffsetPayload{Offset: m.Offset}
		var ok bool
		if entry.Payload, ok = decode(b.log, stream, m.Offset, m.Value); !ok {
			if b.cfg.OnInvalid != nil {
				b.cfg.OnInvalid(stream)
			}
			entry.Skip = true
		}
		if err := h(ctx, entry); err != nil {
			return err
		}
	}
}

func (b *KafkaBroker) Close() error { return nil }
