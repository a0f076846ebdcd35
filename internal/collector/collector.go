// Package collector implements the offset-tracked batching sink every
// concrete collector is built from.
//
// A Collector buffers values with their stream offsets, flushes when the
// buffer reaches BatchSize or when its timer fires, routes the drained values
// into per-table buckets and persists each bucket together with the highest
// offset drained. When nothing in a flush survives routing, only the offset
// is advanced.
package collector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/akarazhev/crypto-scout-collector-sub000/internal/breaker"
	"github.com/akarazhev/crypto-scout-collector-sub000/internal/logger"
	"github.com/akarazhev/crypto-scout-collector-sub000/internal/model"
)

// Flush triggers.
const (
	TriggerSize  = "size"
	TriggerTimer = "timer"
	TriggerStop  = "stop"
)

const (
	defaultBatchSize     = 100
	defaultFlushInterval = time.Second
)

// ErrStarted is returned by Start when the collector is already running.
var ErrStarted = errors.New("collector: already started")

// OffsetWriter advances a stream offset when a flush has no rows to write.
type OffsetWriter interface {
	UpsertOffset(ctx context.Context, stream string, offset int64) (int64, error)
}

// Config holds the per-sink settings.
type Config struct {
	Name          string
	Stream        string
	BatchSize     int
	FlushInterval time.Duration
}

// FlushStats describes one completed flush.
type FlushStats struct {
	Collector string
	Trigger   string
	Drained   int
	Rows      int
	Skipped   int // values whose decode failed
	Failed    int // routes whose save failed
	MaxOffset int64
	Duration  time.Duration
}

// Hooks are optional callbacks used for metrics.
type Hooks struct {
	OnFlush     func(FlushStats)
	OnSaveError func(collector, route string, err error)
	OnReject    func(collector string)
	OnOffset    func(stream string, offset int64)
}

// Option configures a Collector.
type Option[T any] func(*Collector[T])

// WithAccept sets the accept func; values it refuses are logged and dropped.
func WithAccept[T any](accept func(T) bool) Option[T] {
	return func(c *Collector[T]) { c.accept = accept }
}

// WithBreaker routes every persistence call through b.
func WithBreaker[T any](b *breaker.Breaker) Option[T] {
	return func(c *Collector[T]) { c.breaker = b }
}

// WithHooks installs metric callbacks.
func WithHooks[T any](h Hooks) Option[T] {
	return func(c *Collector[T]) { c.hooks = h }
}

type item[T any] struct {
	value   T
	offset  int64
	advance bool // offset-only entry
}

// Collector is the batching sink for values of type T.
type Collector[T any] struct {
	cfg     Config
	offsets OffsetWriter
	routes  []Route[T]
	accept  func(T) bool
	breaker *breaker.Breaker
	hooks   Hooks
	log     *logger.Entry

	mu  sync.Mutex
	buf []item[T]

	// flushMu serializes flushes whatever triggered them.
	flushMu sync.Mutex

	runMu   sync.Mutex
	stopCh  chan struct{}
	doneCh  chan struct{}
	drained chan struct{} // closed after the final flush
}

// New creates a collector persisting through routes and offsets.
func New[T any](cfg Config, offsets OffsetWriter, routes []Route[T], opts ...Option[T]) *Collector[T] {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaultFlushInterval
	}
	if cfg.Name == "" {
		cfg.Name = cfg.Stream
	}
	c := &Collector[T]{
		cfg:     cfg,
		offsets: offsets,
		routes:  routes,
		log: logger.WithComponent("collector").WithFields(logger.Fields{
			"collector": cfg.Name,
			"stream":    cfg.Stream,
		}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the collector name.
func (c *Collector[T]) Name() string { return c.cfg.Name }

// Stream returns the stream whose offset this collector commits.
func (c *Collector[T]) Stream() string { return c.cfg.Stream }

// Len returns the number of buffered entries.
func (c *Collector[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buf)
}

// Save buffers v at offset. When the buffer reaches BatchSize, Save flushes
// synchronously and returns after the flush has persisted.
func (c *Collector[T]) Save(ctx context.Context, v T, offset int64) error {
	if c.accept != nil && !c.accept(v) {
		c.log.WithField("offset", offset).Warn("rejected value from unsupported provider")
		if c.hooks.OnReject != nil {
			c.hooks.OnReject(c.cfg.Name)
		}
		return fmt.Errorf("%s: %w", c.cfg.Name, model.ErrUnsupportedProvider)
	}
	c.enqueue(ctx, item[T]{value: v, offset: offset})
	return nil
}

// Advance buffers an offset-only entry. It carries no row but takes part in
// the flush's max offset, so progress is committed through this collector.
func (c *Collector[T]) Advance(ctx context.Context, offset int64) {
	c.enqueue(ctx, item[T]{offset: offset, advance: true})
}

// UpsertOffset lets a collector stand in as another collector's OffsetWriter:
// the offset is forwarded as an Advance entry instead of being written directly.
func (c *Collector[T]) UpsertOffset(ctx context.Context, _ string, offset int64) (int64, error) {
	c.Advance(ctx, offset)
	return 0, nil
}

func (c *Collector[T]) enqueue(ctx context.Context, it item[T]) {
	c.mu.Lock()
	c.buf = append(c.buf, it)
	n := len(c.buf)
	c.mu.Unlock()

	if n >= c.cfg.BatchSize {
		c.flush(context.WithoutCancel(ctx), TriggerSize)
	}
}

// Start arms the flush timer. The next timer is armed only after the
// previous flush completes.
func (c *Collector[T]) Start(ctx context.Context) error {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if c.stopCh != nil || c.drained != nil {
		return ErrStarted
	}
	c.stopCh = make(chan struct{})
	c.doneCh = make(chan struct{})
	go c.loop(context.WithoutCancel(ctx), c.stopCh, c.doneCh)

	c.log.WithFields(logger.Fields{
		"batch_size":     c.cfg.BatchSize,
		"flush_interval": c.cfg.FlushInterval.String(),
	}).Info("collector started")
	return nil
}

func (c *Collector[T]) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	timer := time.NewTimer(c.cfg.FlushInterval)
	defer timer.Stop()

	for {
		select {
		case <-stop:
			return
		case <-timer.C:
			c.flush(ctx, TriggerTimer)
			timer.Reset(c.cfg.FlushInterval)
		}
	}
}

// Stop halts the timer loop and runs a final flush of everything buffered
// once an in-flight timer flush has finished. The final flush runs to
// completion even when ctx expires first; Stop then returns the context
// error and a later Stop waits for the same drain.
func (c *Collector[T]) Stop(ctx context.Context) error {
	c.runMu.Lock()
	if c.drained == nil {
		c.drained = make(chan struct{})
		go c.finish(context.WithoutCancel(ctx), c.stopCh, c.doneCh, c.drained)
	}
	drained := c.drained
	c.runMu.Unlock()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%s: stop: %w", c.cfg.Name, ctx.Err())
	}
}

func (c *Collector[T]) finish(ctx context.Context, stop chan struct{}, done <-chan struct{}, drained chan<- struct{}) {
	defer close(drained)
	if stop != nil {
		close(stop)
		<-done
	}
	stats := c.flush(ctx, TriggerStop)
	c.log.WithField("drained", stats.Drained).Info("collector stopped")
}

// Flush drains and persists the buffer now.
func (c *Collector[T]) Flush(ctx context.Context) FlushStats {
	return c.flush(context.WithoutCancel(ctx), TriggerSize)
}

func (c *Collector[T]) drain() []item[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	items := c.buf
	c.buf = nil
	return items
}

func (c *Collector[T]) flush(ctx context.Context, trigger string) FlushStats {
	c.flushMu.Lock()
	defer c.flushMu.Unlock()

	stats := FlushStats{Collector: c.cfg.Name, Trigger: trigger}
	items := c.drain()
	if len(items) == 0 {
		return stats
	}
	start := time.Now()
	stats.Drained = len(items)

	buckets := make([]bucket[T], len(c.routes))
	for i, r := range c.routes {
		buckets[i] = r.newBucket()
	}

	maxOffset := items[0].offset
	for _, it := range items {
		if it.offset > maxOffset {
			maxOffset = it.offset
		}
		if it.advance {
			continue
		}
		for i, b := range buckets {
			if !b.match(it.value) {
				continue
			}
			if err := b.add(it.value); err != nil {
				stats.Skipped++
				c.log.WithError(err).WithFields(logger.Fields{
					"route":  c.routes[i].Name(),
					"offset": it.offset,
				}).Warn("skipping undecodable value")
			}
			break
		}
	}
	stats.MaxOffset = maxOffset

	empty := true
	for _, b := range buckets {
		if b.len() > 0 {
			empty = false
			break
		}
	}

	if empty {
		err := c.guard(func() error {
			_, err := c.offsets.UpsertOffset(ctx, c.cfg.Stream, maxOffset)
			return err
		})
		if err != nil {
			stats.Failed++
			c.saveFailed("offset", stats.Drained, maxOffset, err)
		} else if c.hooks.OnOffset != nil {
			c.hooks.OnOffset(c.cfg.Stream, maxOffset)
		}
	} else {
		committed := false
		for i, b := range buckets {
			if b.len() == 0 {
				continue
			}
			var n int
			err := c.guard(func() error {
				var err error
				n, err = b.save(ctx, c.cfg.Stream, maxOffset)
				return err
			})
			if err != nil {
				stats.Failed++
				c.saveFailed(c.routes[i].Name(), b.len(), maxOffset, err)
				continue
			}
			committed = true
			stats.Rows += n
		}
		if committed && c.hooks.OnOffset != nil {
			c.hooks.OnOffset(c.cfg.Stream, maxOffset)
		}
	}

	stats.Duration = time.Since(start)
	c.log.WithFields(logger.Fields{
		"trigger":    trigger,
		"drained":    stats.Drained,
		"rows":       stats.Rows,
		"max_offset": maxOffset,
		"took":       stats.Duration.String(),
	}).Debug("flushed")
	if c.hooks.OnFlush != nil {
		c.hooks.OnFlush(stats)
	}
	return stats
}

func (c *Collector[T]) guard(fn func() error) error {
	if c.breaker == nil {
		return fn()
	}
	return c.breaker.Execute(fn)
}

// saveFailed logs a dropped batch. Rows are not retried.
func (c *Collector[T]) saveFailed(route string, rows int, offset int64, err error) {
	c.log.WithError(err).WithFields(logger.Fields{
		"route":      route,
		"rows":       rows,
		"max_offset": offset,
	}).Error("persist failed, batch dropped")
	if c.hooks.OnSaveError != nil {
		c.hooks.OnSaveError(c.cfg.Name, route, err)
	}
}
