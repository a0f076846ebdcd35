package collector

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akarazhev/crypto-scout-collector-sub000/internal/breaker"
	"github.com/akarazhev/crypto-scout-collector-sub000/internal/model"
)

type event struct {
	kind string
	n    int
}

type saveCall struct {
	stream string
	rows   []int
	offset int64
}

// fakeTable records every save and can be told to fail.
type fakeTable struct {
	mu    sync.Mutex
	calls []saveCall
	err   error
}

func (f *fakeTable) save(_ context.Context, stream string, rows []int, offset int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	cp := append([]int(nil), rows...)
	f.calls = append(f.calls, saveCall{stream: stream, rows: cp, offset: offset})
	return len(rows), nil
}

func (f *fakeTable) saves() []saveCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]saveCall(nil), f.calls...)
}

func (f *fakeTable) fail(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

// fakeOffsets keeps the highest offset per stream.
type fakeOffsets struct {
	mu      sync.Mutex
	offsets map[string]int64
	upserts int
}

func newFakeOffsets() *fakeOffsets { return &fakeOffsets{offsets: map[string]int64{}} }

func (f *fakeOffsets) UpsertOffset(_ context.Context, stream string, offset int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts++
	if cur, ok := f.offsets[stream]; !ok || offset > cur {
		f.offsets[stream] = offset
	}
	return f.offsets[stream], nil
}

func (f *fakeOffsets) get(stream string) (int64, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.offsets[stream], f.upserts
}

func kindRoute(kind string, tbl *fakeTable) Route[event] {
	return Table[event, int]{
		Dest:  kind,
		Match: func(e event) bool { return e.kind == kind },
		Decode: func(e event) ([]int, error) {
			if e.n < 0 {
				return nil, errors.New("negative")
			}
			if e.n == 0 {
				return nil, nil
			}
			return []int{e.n}, nil
		},
		Save: tbl.save,
	}
}

func newTestCollector(cfg Config, offsets OffsetWriter, routes []Route[event], opts ...Option[event]) *Collector[event] {
	if cfg.Stream == "" {
		cfg.Stream = "test-stream"
	}
	return New(cfg, offsets, routes, opts...)
}

func TestCollector_FlushesSynchronouslyAtBatchSize(t *testing.T) {
	tbl := &fakeTable{}
	c := newTestCollector(Config{BatchSize: 3, FlushInterval: time.Hour}, newFakeOffsets(),
		[]Route[event]{kindRoute("a", tbl)})
	ctx := context.Background()

	require.NoError(t, c.Save(ctx, event{"a", 1}, 10))
	require.NoError(t, c.Save(ctx, event{"a", 2}, 11))
	assert.Empty(t, tbl.saves())
	assert.Equal(t, 2, c.Len())

	require.NoError(t, c.Save(ctx, event{"a", 3}, 12))
	saves := tbl.saves()
	require.Len(t, saves, 1)
	assert.Equal(t, []int{1, 2, 3}, saves[0].rows)
	assert.Equal(t, int64(12), saves[0].offset)
	assert.Equal(t, "test-stream", saves[0].stream)
	assert.Zero(t, c.Len())
}

func TestCollector_TimerFlush(t *testing.T) {
	tbl := &fakeTable{}
	c := newTestCollector(Config{BatchSize: 100, FlushInterval: 20 * time.Millisecond}, newFakeOffsets(),
		[]Route[event]{kindRoute("a", tbl)})
	ctx := context.Background()
	require.NoError(t, c.Start(ctx))
	defer c.Stop(ctx)

	require.NoError(t, c.Save(ctx, event{"a", 7}, 1))
	require.Eventually(t, func() bool { return len(tbl.saves()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(1), tbl.saves()[0].offset)

	// the timer re-arms after a flush
	require.NoError(t, c.Save(ctx, event{"a", 8}, 2))
	require.Eventually(t, func() bool { return len(tbl.saves()) == 2 }, time.Second, 5*time.Millisecond)
}

func TestCollector_StopDrainsBuffer(t *testing.T) {
	tbl := &fakeTable{}
	c := newTestCollector(Config{BatchSize: 100, FlushInterval: time.Hour}, newFakeOffsets(),
		[]Route[event]{kindRoute("a", tbl)})
	ctx := context.Background()
	require.NoError(t, c.Start(ctx))

	require.NoError(t, c.Save(ctx, event{"a", 1}, 5))
	require.NoError(t, c.Save(ctx, event{"a", 2}, 6))
	require.NoError(t, c.Stop(ctx))

	saves := tbl.saves()
	require.Len(t, saves, 1)
	assert.Equal(t, []int{1, 2}, saves[0].rows)
	assert.Equal(t, int64(6), saves[0].offset)

	// second stop is a no-op
	require.NoError(t, c.Stop(ctx))
	assert.Len(t, tbl.saves(), 1)
}

func TestCollector_StopTimeoutStillDrains(t *testing.T) {
	tbl := &fakeTable{}
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	route := Table[event, int]{
		Dest:   "a",
		Match:  func(e event) bool { return e.kind == "a" },
		Decode: func(e event) ([]int, error) { return []int{e.n}, nil },
		Save: func(ctx context.Context, stream string, rows []int, offset int64) (int, error) {
			once.Do(func() {
				close(entered)
				<-release
			})
			return tbl.save(ctx, stream, rows, offset)
		},
	}
	c := newTestCollector(Config{BatchSize: 100, FlushInterval: 10 * time.Millisecond}, newFakeOffsets(),
		[]Route[event]{route})
	ctx := context.Background()
	require.NoError(t, c.Start(ctx))

	require.NoError(t, c.Save(ctx, event{"a", 1}, 1))
	<-entered // timer flush is now stuck in Save
	for i := 2; i <= 4; i++ {
		require.NoError(t, c.Save(ctx, event{"a", i}, int64(i)))
	}

	short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	err := c.Stop(short)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	require.NoError(t, c.Stop(ctx))

	saves := tbl.saves()
	require.Len(t, saves, 2)
	assert.Equal(t, []int{1}, saves[0].rows)
	assert.Equal(t, []int{2, 3, 4}, saves[1].rows)
	assert.Equal(t, int64(4), saves[1].offset)
	assert.Zero(t, c.Len())
}

func TestCollector_StartTwice(t *testing.T) {
	c := newTestCollector(Config{FlushInterval: time.Hour}, newFakeOffsets(), nil)
	ctx := context.Background()
	require.NoError(t, c.Start(ctx))
	defer c.Stop(ctx)
	assert.ErrorIs(t, c.Start(ctx), ErrStarted)
}

func TestCollector_AdvancesOffsetWhenNothingToWrite(t *testing.T) {
	tbl := &fakeTable{}
	offsets := newFakeOffsets()
	c := newTestCollector(Config{BatchSize: 100, FlushInterval: time.Hour}, offsets,
		[]Route[event]{kindRoute("a", tbl)})
	ctx := context.Background()

	// decodes to zero rows
	require.NoError(t, c.Save(ctx, event{"a", 0}, 40))
	// matches no route
	require.NoError(t, c.Save(ctx, event{"other", 5}, 41))
	c.Flush(ctx)

	assert.Empty(t, tbl.saves())
	off, n := offsets.get("test-stream")
	assert.Equal(t, int64(41), off)
	assert.Equal(t, 1, n)
}

func TestCollector_MaxOffsetAcrossBatch(t *testing.T) {
	tbl := &fakeTable{}
	offsets := newFakeOffsets()
	c := newTestCollector(Config{BatchSize: 3, FlushInterval: time.Hour}, offsets,
		[]Route[event]{kindRoute("a", tbl)})
	ctx := context.Background()

	require.NoError(t, c.Save(ctx, event{"a", 1}, 7))
	require.NoError(t, c.Save(ctx, event{"a", 2}, 3))
	require.NoError(t, c.Save(ctx, event{"a", 3}, 5))
	require.Len(t, tbl.saves(), 1)
	assert.Equal(t, int64(7), tbl.saves()[0].offset)

	// the store keeps the highest offset it has seen
	c.Advance(ctx, 9)
	c.Advance(ctx, 4)
	c.Flush(ctx)
	c.Advance(ctx, 2)
	c.Flush(ctx)
	off, n := offsets.get("test-stream")
	assert.Equal(t, int64(9), off)
	assert.Equal(t, 2, n)
}

func TestCollector_RoutesToFirstMatch(t *testing.T) {
	first, second, klines := &fakeTable{}, &fakeTable{}, &fakeTable{}
	dup := Table[event, int]{
		Dest:   "dup",
		Match:  func(e event) bool { return e.kind == "a" },
		Decode: func(e event) ([]int, error) { return []int{e.n}, nil },
		Save:   second.save,
	}
	c := newTestCollector(Config{BatchSize: 100, FlushInterval: time.Hour}, newFakeOffsets(),
		[]Route[event]{kindRoute("a", first), dup, kindRoute("k", klines)})
	ctx := context.Background()

	require.NoError(t, c.Save(ctx, event{"a", 1}, 1))
	require.NoError(t, c.Save(ctx, event{"k", 2}, 2))
	require.NoError(t, c.Save(ctx, event{"a", 3}, 3))
	stats := c.Flush(ctx)

	require.Len(t, first.saves(), 1)
	assert.Equal(t, []int{1, 3}, first.saves()[0].rows)
	assert.Empty(t, second.saves())
	require.Len(t, klines.saves(), 1)
	assert.Equal(t, int64(3), klines.saves()[0].offset)
	assert.Equal(t, 3, stats.Rows)
	assert.Equal(t, int64(3), stats.MaxOffset)
}

func TestCollector_RejectsUnacceptedValue(t *testing.T) {
	tbl := &fakeTable{}
	rejected := 0
	c := newTestCollector(Config{BatchSize: 1, FlushInterval: time.Hour}, newFakeOffsets(),
		[]Route[event]{kindRoute("a", tbl)},
		WithAccept(func(e event) bool { return e.kind != "bad" }),
		WithHooks[event](Hooks{OnReject: func(string) { rejected++ }}),
	)

	err := c.Save(context.Background(), event{"bad", 1}, 1)
	assert.ErrorIs(t, err, model.ErrUnsupportedProvider)
	assert.Zero(t, c.Len())
	assert.Empty(t, tbl.saves())
	assert.Equal(t, 1, rejected)
}

func TestCollector_FailedSaveDropsBatch(t *testing.T) {
	tbl := &fakeTable{}
	var failedRoute string
	c := newTestCollector(Config{BatchSize: 100, FlushInterval: time.Hour}, newFakeOffsets(),
		[]Route[event]{kindRoute("a", tbl)},
		WithHooks[event](Hooks{OnSaveError: func(_, route string, _ error) { failedRoute = route }}),
	)
	ctx := context.Background()

	tbl.fail(errors.New("disk full"))
	require.NoError(t, c.Save(ctx, event{"a", 1}, 1))
	stats := c.Flush(ctx)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, "a", failedRoute)
	assert.Zero(t, c.Len())

	tbl.fail(nil)
	require.NoError(t, c.Save(ctx, event{"a", 2}, 2))
	c.Flush(ctx)
	saves := tbl.saves()
	require.Len(t, saves, 1)
	assert.Equal(t, []int{2}, saves[0].rows, "dropped rows are not retried")
}

func TestCollector_SkipsUndecodableValues(t *testing.T) {
	tbl := &fakeTable{}
	c := newTestCollector(Config{BatchSize: 100, FlushInterval: time.Hour}, newFakeOffsets(),
		[]Route[event]{kindRoute("a", tbl)})
	ctx := context.Background()

	require.NoError(t, c.Save(ctx, event{"a", -1}, 1))
	require.NoError(t, c.Save(ctx, event{"a", 4}, 2))
	stats := c.Flush(ctx)

	assert.Equal(t, 1, stats.Skipped)
	require.Len(t, tbl.saves(), 1)
	assert.Equal(t, []int{4}, tbl.saves()[0].rows)
}

func TestCollector_AdvanceOnly(t *testing.T) {
	offsets := newFakeOffsets()
	c := newTestCollector(Config{BatchSize: 2, FlushInterval: time.Hour}, offsets, nil)
	ctx := context.Background()

	c.Advance(ctx, 9)
	off, n := offsets.get("test-stream")
	assert.Zero(t, n)

	// advance entries count toward the batch size
	c.Advance(ctx, 10)
	off, n = offsets.get("test-stream")
	assert.Equal(t, 1, n)
	assert.Equal(t, int64(10), off)
}

func TestCollector_ForwardsOffsetsThroughAnotherCollector(t *testing.T) {
	offsets := newFakeOffsets()
	out := &fakeTable{}
	downstream := newTestCollector(Config{Stream: "in", BatchSize: 100, FlushInterval: time.Hour}, offsets,
		[]Route[event]{kindRoute("a", out)})
	upstream := newTestCollector(Config{Stream: "in", BatchSize: 100, FlushInterval: time.Hour}, downstream,
		[]Route[event]{kindRoute("a", &fakeTable{})})
	ctx := context.Background()

	require.NoError(t, upstream.Save(ctx, event{"skip", 1}, 30))
	upstream.Flush(ctx)
	_, n := offsets.get("in")
	assert.Zero(t, n, "offset waits in the downstream buffer")
	assert.Equal(t, 1, downstream.Len())

	downstream.Flush(ctx)
	off, _ := offsets.get("in")
	assert.Equal(t, int64(30), off)
}

func TestCollector_BreakerOpensAfterFailures(t *testing.T) {
	tbl := &fakeTable{}
	b := breaker.New("test", 1, time.Hour)
	c := newTestCollector(Config{BatchSize: 100, FlushInterval: time.Hour}, newFakeOffsets(),
		[]Route[event]{kindRoute("a", tbl)}, WithBreaker[event](b))
	ctx := context.Background()

	tbl.fail(errors.New("locked"))
	require.NoError(t, c.Save(ctx, event{"a", 1}, 1))
	c.Flush(ctx)
	assert.Equal(t, breaker.StateOpen, b.State())

	tbl.fail(nil)
	require.NoError(t, c.Save(ctx, event{"a", 2}, 2))
	stats := c.Flush(ctx)
	assert.Equal(t, 1, stats.Failed)
	assert.Empty(t, tbl.saves(), "open breaker skips the save")
}

func TestCollector_ConcurrentSaves(t *testing.T) {
	tbl := &fakeTable{}
	c := newTestCollector(Config{BatchSize: 7, FlushInterval: 5 * time.Millisecond}, newFakeOffsets(),
		[]Route[event]{kindRoute("a", tbl)})
	ctx := context.Background()
	require.NoError(t, c.Start(ctx))

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_ = c.Save(ctx, event{"a", 1}, int64(g*50+i))
			}
		}(g)
	}
	wg.Wait()
	require.NoError(t, c.Stop(ctx))

	total := 0
	for _, s := range tbl.saves() {
		total += len(s.rows)
	}
	assert.Equal(t, 200, total)
}
