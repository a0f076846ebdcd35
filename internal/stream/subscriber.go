// Package stream subscribes collectors to broker streams, resuming from the
// last committed offset and reconnecting with bounded retries.
package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/akarazhev/crypto-scout-collector-sub000/internal/logger"
	"github.com/akarazhev/crypto-scout-collector-sub000/internal/model"
)

// StartPosition tells a broker where to begin delivering.
type StartPosition struct {
	First  bool  // from the earliest retained message
	Offset int64 // first offset to deliver when First is false
}

func (p StartPosition) String() string {
	if p.First {
		return "first"
	}
	return fmt.Sprintf("offset %d", p.Offset)
}

// Handler receives every decoded message in stream order.
type Handler func(ctx context.Context, msg model.OffsetPayload) error

// Broker delivers messages of one stream.
type Broker interface {
	Name() string

	// Ping checks that the broker is reachable.
	Ping(ctx context.Context) error

	// Subscribe delivers messages starting at from until ctx is done or the
	// connection fails. It returns ctx.Err() on cancellation.
	Subscribe(ctx context.Context, stream string, from StartPosition, h Handler) error

	Close() error
}

// Sink consumes decoded payloads. Advance records an offset that carries
// nothing to store.
type Sink interface {
	Save(ctx context.Context, p model.Payload, offset int64) error
	Advance(ctx context.Context, offset int64)
}

// OffsetReader reads committed offsets.
type OffsetReader interface {
	ReadOffset(ctx context.Context, stream string) (int64, bool, error)
}

// Resolve returns where to resume stream: just after the committed offset,
// or from the first message when nothing is committed or the read fails.
func Resolve(ctx context.Context, offsets OffsetReader, stream string, log *logger.Entry) StartPosition {
	v, ok, err := offsets.ReadOffset(ctx, stream)
	if err != nil {
		log.WithError(err).WithField("stream", stream).Warn("read offset failed, starting from first")
		return StartPosition{First: true}
	}
	if !ok {
		return StartPosition{First: true}
	}
	return StartPosition{Offset: v + 1}
}

// Retry bounds reconnection attempts after a connection loss.
type Retry struct {
	MaxAttempts int
	Delay       time.Duration
}

// Hooks are optional callbacks used for metrics and health.
type Hooks struct {
	OnUp        func(stream string)
	OnReconnect func(stream string, attempt int)
	OnDown      func(stream string, err error)
}

// Subscriber binds a broker stream to a sink.
type Subscriber struct {
	broker  Broker
	offsets OffsetReader
	stream  string
	sink    Sink
	retry   Retry
	hooks   Hooks
	log     *logger.Entry

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSubscriber creates a subscriber for stream.
func NewSubscriber(broker Broker, offsets OffsetReader, stream string, sink Sink, retry Retry, hooks Hooks) *Subscriber {
	if retry.MaxAttempts < 0 {
		retry.MaxAttempts = 0
	}
	return &Subscriber{
		broker:  broker,
		offsets: offsets,
		stream:  stream,
		sink:    sink,
		retry:   retry,
		hooks:   hooks,
		log: logger.WithComponent("subscriber").WithFields(logger.Fields{
			"stream": stream,
			"broker": broker.Name(),
		}),
	}
}

// Stream returns the subscribed stream name.
func (s *Subscriber) Stream() string { return s.stream }

// Start checks the broker connection and begins consuming in the background.
// A broker that cannot be reached fails Start.
func (s *Subscriber) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return fmt.Errorf("subscriber %s: already started", s.stream)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err := s.broker.Ping(pingCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("subscriber %s: connect %s: %w", s.stream, s.broker.Name(), err)
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	s.cancel = cancelRun
	s.done = make(chan struct{})
	go s.run(runCtx, s.done)
	return nil
}

// Stop cancels the subscription and waits for the consume loop to exit.
func (s *Subscriber) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		s.log.Info("subscriber stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("subscriber %s: stop: %w", s.stream, ctx.Err())
	}
}

// Done is closed when the consume loop has exited.
func (s *Subscriber) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

func (s *Subscriber) run(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	attempt := 0
	for {
		var delivered atomic.Bool
		err := s.reconnect(ctx, attempt)
		if err == nil {
			from := Resolve(ctx, s.offsets, s.stream, s.log)
			s.log.WithField("from", from.String()).Info("subscribing")
			if s.hooks.OnUp != nil {
				s.hooks.OnUp(s.stream)
			}
			err = s.broker.Subscribe(ctx, s.stream, from, func(ctx context.Context, msg model.OffsetPayload) error {
				delivered.Store(true)
				return s.handle(ctx, msg)
			})
		}
		if ctx.Err() != nil {
			return
		}
		if delivered.Load() {
			attempt = 0
		}

		attempt++
		if err == nil {
			err = errors.New("subscription closed")
		}
		if attempt > s.retry.MaxAttempts {
			s.log.WithError(err).WithFields(logger.Fields{
				"severity": "fatal",
				"attempts": attempt - 1,
			}).Error("subscription lost, retries exhausted")
			if s.hooks.OnDown != nil {
				s.hooks.OnDown(s.stream, err)
			}
			return
		}

		s.log.WithError(err).WithFields(logger.Fields{
			"attempt": attempt,
			"max":     s.retry.MaxAttempts,
			"delay":   s.retry.Delay.String(),
		}).Warn("subscription lost, reconnecting")
		if s.hooks.OnReconnect != nil {
			s.hooks.OnReconnect(s.stream, attempt)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.retry.Delay):
		}
	}
}

// reconnect pings the broker before every retry. The first attempt relies on
// the ping done by Start.
func (s *Subscriber) reconnect(ctx context.Context, attempt int) error {
	if attempt == 0 {
		return nil
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.broker.Ping(pingCtx); err != nil {
		return fmt.Errorf("ping %s: %w", s.broker.Name(), err)
	}
	return nil
}

// handle passes msg to the sink. Skipped entries and payloads the sink
// refuses still count as progress.
func (s *Subscriber) handle(ctx context.Context, msg model.OffsetPayload) error {
	if msg.Skip {
		s.sink.Advance(ctx, msg.Offset)
		return nil
	}
	err := s.sink.Save(ctx, msg.Payload, msg.Offset)
	if err == nil {
		return nil
	}
	if errors.Is(err, model.ErrUnsupportedProvider) {
		s.sink.Advance(ctx, msg.Offset)
		return nil
	}
	s.log.WithError(err).WithField("offset", msg.Offset).Warn("sink rejected message")
	return nil
}

// decode parses a raw message body; invalid bodies are logged and skipped.
func decode(log *logger.Entry, stream string, offset int64, raw []byte) (model.Payload, bool) {
	p, err := model.DecodePayload(raw)
	if err != nil {
		log.WithError(err).WithFields(logger.Fields{
			"stream": stream,
			"offset": offset,
		}).Warn("skipping invalid message")
		return model.Payload{}, false
	}
	return p, true
}
