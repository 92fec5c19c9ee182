package cache

import (
	"context"
	"time"

	"github.com/newthinker/tadash/internal/collector"
	"github.com/newthinker/tadash/internal/core"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultFetchTimeout bounds one shared upstream fetch, including every page
const DefaultFetchTimeout = time.Minute

// Observer receives cache lookup outcomes
type Observer interface {
	RecordCacheLookup(hit bool)
}

// Cached wraps a Collector with a TTL cache keyed by (symbol, period, interval).
// Concurrent misses for the same key share one upstream fetch.
// Errors and empty results are never stored.
type Cached struct {
	next     collector.Collector
	store    Store
	ttl      time.Duration
	logger   *zap.Logger
	observer Observer
	group    singleflight.Group

	fetchTimeout time.Duration
}

// NewCached creates a caching collector in front of next
func NewCached(next collector.Collector, store Store, ttl time.Duration, logger *zap.Logger) *Cached {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cached{
		next:   next,
		store:  store,
		ttl:    ttl,
		logger: logger,

		fetchTimeout: DefaultFetchTimeout,
	}
}

// SetFetchTimeout bounds a shared upstream fetch, which outlives any single caller
func (c *Cached) SetFetchTimeout(d time.Duration) {
	if d > 0 {
		c.fetchTimeout = d
	}
}

// SetObserver registers a lookup observer, typically the metrics registry
func (c *Cached) SetObserver(o Observer) {
	c.observer = o
}

func (c *Cached) Name() string {
	return c.next.Name()
}

// FetchHistory serves q from cache when fresh, otherwise fetches and stores it
func (c *Cached) FetchHistory(ctx context.Context, q core.Query) ([]core.Bar, error) {
	key := q.Key()

	bars, ok, err := c.store.Get(ctx, key)
	if err != nil {
		// a broken cache degrades to a direct fetch
		c.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
	}
	if ok {
		c.observe(true)
		return bars, nil
	}
	c.observe(false)

	ch := c.group.DoChan(key, func() (any, error) {
		// shared by every waiter on key: only the timeout ends it
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
		defer cancel()

		fetched, err := c.next.FetchHistory(fetchCtx, q)
		if err != nil {
			return nil, err
		}
		if len(fetched) > 0 {
			if err := c.store.Set(fetchCtx, key, fetched, c.ttl); err != nil {
				c.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
			}
		}
		return fetched, nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, res.Err
	}

	fetched := res.Val.([]core.Bar)
	if res.Shared {
		fetched = cloneBars(fetched)
	}
	c.logger.Debug("cache miss",
		zap.String("key", key),
		zap.Int("bars", len(fetched)),
		zap.Bool("shared", res.Shared),
	)
	return fetched, nil
}

// Refresh fetches q upstream and overwrites the cached entry regardless of age
func (c *Cached) Refresh(ctx context.Context, q core.Query) (int, error) {
	bars, err := c.next.FetchHistory(ctx, q)
	if err != nil {
		return 0, err
	}
	if len(bars) == 0 {
		return 0, nil
	}
	if err := c.store.Set(ctx, q.Key(), bars, c.ttl); err != nil {
		return 0, core.WrapError(core.ErrCacheFailed, err)
	}
	return len(bars), nil
}

func (c *Cached) observe(hit bool) {
	if c.observer != nil {
		c.observer.RecordCacheLookup(hit)
	}
}
