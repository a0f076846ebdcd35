package rpc

import (
	"context"
	"fmt"
	"sync"

	goredis "github.com/go-redis/redis/v8"

	"github.com/akarazhev/crypto-scout-collector-sub000/internal/logger"
)

// RedisTransport answers requests published on a pub/sub channel. Each
// response is published on the channel named by the request's Source.
type RedisTransport struct {
	rdb     *goredis.Client
	channel string
	d       *Dispatcher
	log     *logger.Entry

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRedisTransport creates a transport listening on channel.
func NewRedisTransport(rdb *goredis.Client, channel string, d *Dispatcher) *RedisTransport {
	return &RedisTransport{
		rdb:     rdb,
		channel: channel,
		d:       d,
		log:     logger.WithComponent("rpc-redis").WithField("channel", channel),
	}
}

// Start subscribes and serves requests in the background.
func (t *RedisTransport) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done != nil {
		return fmt.Errorf("rpc redis %s: already started", t.channel)
	}

	pubsub := t.rdb.Subscribe(ctx, t.channel)
	// Receive blocks until the subscription is confirmed.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("rpc redis subscribe %s: %w", t.channel, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})
	go t.run(runCtx, pubsub, t.done)

	t.log.Info("rpc listening on redis channel")
	return nil
}

func (t *RedisTransport) run(ctx context.Context, pubsub *goredis.PubSub, done chan<- struct{}) {
	defer close(done)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			t.serve(ctx, []byte(msg.Payload))
		}
	}
}

func (t *RedisTransport) serve(ctx context.Context, raw []byte) {
	resp, body := t.d.DispatchJSON(ctx, raw)
	if resp.Source == "" {
		t.log.WithField("id", resp.ID).Warn("request without reply channel dropped")
		return
	}
	if err := t.rdb.Publish(ctx, resp.Source, body).Err(); err != nil {
		t.log.WithError(err).WithFields(logger.Fields{
			"id":       resp.ID,
			"reply_to": resp.Source,
		}).Warn("publish response failed")
	}
}

// Stop unsubscribes and waits for the serve loop to exit.
func (t *RedisTransport) Stop(ctx context.Context) error {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("rpc redis %s: stop: %w", t.channel, ctx.Err())
	}
}
