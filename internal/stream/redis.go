package stream

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/akarazhev/crypto-scout-collector-sub000/internal/logger"
	"github.com/akarazhev/crypto-scout-collector-sub000/internal/model"
)

const defaultPayloadField = "payload"

// RedisConfig configures the Redis Streams broker.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Count    int64         // entries per XREAD
	Block    time.Duration // XREAD block timeout
	Field    string        // entry field holding the JSON payload

	OnInvalid func(stream string)
}

// RedisBroker reads streams with XREAD. Offsets are entry IDs packed by EncodeID.
type RedisBroker struct {
	client *goredis.Client
	cfg    RedisConfig
	log    *logger.Entry
}

// NewRedisBroker creates a broker; the connection is checked by Ping.
func NewRedisBroker(cfg RedisConfig) *RedisBroker {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewRedisBrokerWithClient(client, cfg)
}

// NewRedisBrokerWithClient wraps an existing client.
func NewRedisBrokerWithClient(client *goredis.Client, cfg RedisConfig) *RedisBroker {
	if cfg.Count <= 0 {
		cfg.Count = 100
	}
	if cfg.Block <= 0 {
		cfg.Block = 2 * time.Second
	}
	if cfg.Field == "" {
		cfg.Field = defaultPayloadField
	}
	return &RedisBroker{
		client: client,
		cfg:    cfg,
		log:    logger.WithComponent("redis-broker").WithField("addr", cfg.Addr),
	}
}

func (b *RedisBroker) Name() string { return "redis" }

// Client returns the underlying client for health checks.
func (b *RedisBroker) Client() *goredis.Client { return b.client }

func (b *RedisBroker) Ping(ctx context.Context) error {
	if err := b.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// redisStartID returns the exclusive XREAD id for from.
func redisStartID(from StartPosition) string {
	if from.First || from.Offset <= 0 {
		return "0-0"
	}
	return DecodeID(from.Offset - 1)
}

// Subscribe blocks on XREAD and hands each entry to h in order.
func (b *RedisBroker) Subscribe(ctx context.Context, stream string, from StartPosition, h Handler) error {
	lastID := redisStartID(from)
	b.log.WithFields(logger.Fields{"stream": stream, "after": lastID}).Debug("xread loop started")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		results, err := b.client.XRead(ctx, &goredis.XReadArgs{
			Streams: []string{stream, lastID},
			Count:   b.cfg.Count,
			Block:   b.cfg.Block,
		}).Result()
		if err != nil {
			if errors.Is(err, goredis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("xread %s: %w", stream, err)
		}

		for _, res := range results {
			for _, msg := range res.Messages {
				lastID = msg.ID
				offset, err := EncodeID(msg.ID)
				if err != nil {
					b.invalid(stream, err)
					continue
				}
				entry := model.OffsetPayload{Offset: offset}
				if raw, ok := msg.Values[b.cfg.Field].(string); !ok {
					b.invalid(stream, fmt.Errorf("entry %s: missing %q field", msg.ID, b.cfg.Field))
					entry.Skip = true
				} else if entry.Payload, ok = decode(b.log, stream, offset, []byte(raw)); !ok {
					b.countInvalid(stream)
					entry.Skip = true
				}
				if err := h(ctx, entry); err != nil {
					return err
				}
			}
		}
	}
}

// Publish appends a payload to stream. Used by tooling and tests.
func (b *RedisBroker) Publish(ctx context.Context, stream string, body []byte) (string, error) {
	id, err := b.client.XAdd(ctx, &goredis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{b.cfg.Field: string(body)},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd %s: %w", stream, err)
	}
	return id, nil
}

func (b *RedisBroker) invalid(stream string, err error) {
	b.log.WithError(err).WithField("stream", stream).Warn("skipping invalid entry")
	b.countInvalid(stream)
}

func (b *RedisBroker) countInvalid(stream string) {
	if b.cfg.OnInvalid != nil {
		b.cfg.OnInvalid(stream)
	}
}

func (b *RedisBroker) Close() error { return b.client.Close() }
