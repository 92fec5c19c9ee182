package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/newthinker/tadash/internal/collector"
	"github.com/newthinker/tadash/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeCollector struct {
	calls   atomic.Int32
	bars    []core.Bar
	err     error
	entered chan struct{}
	release chan struct{}
}

func (f *fakeCollector) Name() string { return "fake" }

func (f *fakeCollector) FetchHistory(ctx context.Context, q core.Query) ([]core.Bar, error) {
	f.calls.Add(1)
	if f.entered != nil {
		select {
		case f.entered <- struct{}{}:
		default:
		}
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, core.WrapError(core.ErrCollectorFailed, ctx.Err())
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return cloneBars(f.bars), nil
}

type countingObserver struct {
	mu     sync.Mutex
	hits   int
	misses int
}

func (o *countingObserver) RecordCacheLookup(hit bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if hit {
		o.hits++
	} else {
		o.misses++
	}
}

var testQuery = core.Query{Symbol: "AAPL", Period: core.Period3Mo, Interval: core.Interval1D}

func TestCached_ImplementsCollector(t *testing.T) {
	var _ collector.Collector = (*Cached)(nil)
}

func TestCached_HitAfterMiss(t *testing.T) {
	ctx := context.Background()
	upstream := &fakeCollector{bars: sampleBars()}
	obs := &countingObserver{}
	c := NewCached(upstream, NewMemoryStore(), time.Hour, zap.NewNop())
	c.SetObserver(obs)

	first, err := c.FetchHistory(ctx, testQuery)
	require.NoError(t, err)
	second, err := c.FetchHistory(ctx, testQuery)
	require.NoError(t, err)

	assert.Equal(t, int32(1), upstream.calls.Load())
	assertBarsEqual(t, first, second)
	assert.Equal(t, 1, obs.hits)
	assert.Equal(t, 1, obs.misses)
	assert.Equal(t, "fake", c.Name())
}

func TestCached_KeyIncludesPeriodAndInterval(t *testing.T) {
	ctx := context.Background()
	upstream := &fakeCollector{bars: sampleBars()}
	c := NewCached(upstream, NewMemoryStore(), time.Hour, nil)

	_, err := c.FetchHistory(ctx, testQuery)
	require.NoError(t, err)
	_, err = c.FetchHistory(ctx, core.Query{Symbol: "AAPL", Period: core.Period1Y, Interval: core.Interval1D})
	require.NoError(t, err)
	_, err = c.FetchHistory(ctx, core.Query{Symbol: "AAPL", Period: core.Period3Mo, Interval: core.Interval1Wk})
	require.NoError(t, err)

	assert.Equal(t, int32(3), upstream.calls.Load())
}

func TestCached_ExpiredEntryRefetches(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	store.now = func() time.Time { return now }

	upstream := &fakeCollector{bars: sampleBars()}
	c := NewCached(upstream, store, time.Hour, nil)

	_, err := c.FetchHistory(ctx, testQuery)
	require.NoError(t, err)

	now = now.Add(2 * time.Hour)
	_, err = c.FetchHistory(ctx, testQuery)
	require.NoError(t, err)

	assert.Equal(t, int32(2), upstream.calls.Load())
}

func TestCached_EmptyResultNotCached(t *testing.T) {
	ctx := context.Background()
	upstream := &fakeCollector{bars: []core.Bar{}}
	store := NewMemoryStore()
	c := NewCached(upstream, store, time.Hour, nil)

	bars, err := c.FetchHistory(ctx, testQuery)
	require.NoError(t, err)
	assert.Empty(t, bars)
	assert.Equal(t, 0, store.Len())
}

func TestCached_ErrorNotCached(t *testing.T) {
	ctx := context.Background()
	upstream := &fakeCollector{err: core.WrapError(core.ErrCollectorFailed, errors.New("boom"))}
	store := NewMemoryStore()
	c := NewCached(upstream, store, time.Hour, nil)

	bars, err := c.FetchHistory(ctx, testQuery)
	require.Error(t, err)
	assert.Nil(t, bars)
	assert.True(t, errors.Is(err, core.ErrCollectorFailed))
	assert.Equal(t, 0, store.Len())

	_, _ = c.FetchHistory(ctx, testQuery)
	assert.Equal(t, int32(2), upstream.calls.Load(), "failed fetches are retried by the caller")
}

func TestCached_ConcurrentMissesShareFetch(t *testing.T) {
	ctx := context.Background()
	upstream := &fakeCollector{
		bars:    sampleBars(),
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	c := NewCached(upstream, NewMemoryStore(), time.Hour, nil)

	const workers = 8
	var wg sync.WaitGroup
	results := make([][]core.Bar, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			bars, err := c.FetchHistory(ctx, testQuery)
			assert.NoError(t, err)
			results[i] = bars
		}(i)
	}

	<-upstream.entered
	time.Sleep(50 * time.Millisecond)
	close(upstream.release)
	wg.Wait()

	assert.Equal(t, int32(1), upstream.calls.Load())
	for _, r := range results {
		assertBarsEqual(t, sampleBars(), r)
	}
}

func TestCached_CancelledCallerDoesNotFailSharedWaiters(t *testing.T) {
	upstream := &fakeCollector{
		bars:    sampleBars(),
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	c := NewCached(upstream, NewMemoryStore(), time.Hour, nil)

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := c.FetchHistory(ctxA, testQuery)
		errA <- err
	}()
	<-upstream.entered

	type outcome struct {
		bars []core.Bar
		err  error
	}
	doneB := make(chan outcome, 1)
	go func() {
		bars, err := c.FetchHistory(context.Background(), testQuery)
		doneB <- outcome{bars, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancelA()
	select {
	case err := <-errA:
		assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller kept waiting on the shared fetch")
	}

	select {
	case got := <-doneB:
		t.Fatalf("waiter returned before the fetch finished: %v", got.err)
	default:
	}

	close(upstream.release)
	got := <-doneB
	require.NoError(t, got.err)
	assertBarsEqual(t, sampleBars(), got.bars)
	assert.Equal(t, int32(1), upstream.calls.Load())
}

func TestCached_AbandonedFetchStillFillsCache(t *testing.T) {
	upstream := &fakeCollector{
		bars:    sampleBars(),
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	store := NewMemoryStore()
	c := NewCached(upstream, store, time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := c.FetchHistory(ctx, testQuery)
		errCh <- err
	}()
	<-upstream.entered
	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)

	close(upstream.release)
	require.Eventually(t, func() bool { return store.Len() == 1 }, time.Second, 10*time.Millisecond)

	bars, err := c.FetchHistory(context.Background(), testQuery)
	require.NoError(t, err)
	assertBarsEqual(t, sampleBars(), bars)
	assert.Equal(t, int32(1), upstream.calls.Load())
}

func TestCached_SharedFetchTimeout(t *testing.T) {
	upstream := &fakeCollector{bars: sampleBars(), release: make(chan struct{})}
	defer close(upstream.release)
	c := NewCached(upstream, NewMemoryStore(), time.Hour, nil)
	c.SetFetchTimeout(50 * time.Millisecond)

	_, err := c.FetchHistory(context.Background(), testQuery)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
}

type failingStore struct{}

func (failingStore) Get(ctx context.Context, key string) ([]core.Bar, bool, error) {
	return nil, false, errors.New("store down")
}
func (failingStore) Set(ctx context.Context, key string, bars []core.Bar, ttl time.Duration) error {
	return errors.New("store down")
}
func (failingStore) Close() error { return nil }

func TestCached_BrokenStoreFallsThrough(t *testing.T) {
	upstream := &fakeCollector{bars: sampleBars()}
	c := NewCached(upstream, failingStore{}, time.Hour, nil)

	bars, err := c.FetchHistory(context.Background(), testQuery)
	require.NoError(t, err)
	assertBarsEqual(t, sampleBars(), bars)
}

func TestCached_Refresh(t *testing.T) {
	ctx := context.Background()
	upstream := &fakeCollector{bars: sampleBars()}
	store := NewMemoryStore()
	c := NewCached(upstream, store, time.Hour, nil)

	n, err := c.Refresh(ctx, testQuery)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = c.FetchHistory(ctx, testQuery)
	require.NoError(t, err)
	assert.Equal(t, int32(1), upstream.calls.Load(), "refreshed entry should serve the next read")

	_, err = NewCached(upstream, failingStore{}, time.Hour, nil).Refresh(ctx, testQuery)
	assert.True(t, errors.Is(err, core.ErrCacheFailed))
}
