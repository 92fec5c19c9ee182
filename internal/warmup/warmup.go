// Package warmup refreshes the fetch cache for a fixed symbol list on a cron
// schedule, so the first dashboard request for a popular ticker is a hit.
package warmup

import (
	"context"
	"fmt"
	"sync"

	"github.com/newthinker/tadash/internal/core"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Refresher re-fetches a query and stores the result, typically cache.Cached
type Refresher interface {
	Refresh(ctx context.Context, q core.Query) (int, error)
}

// Purger drops expired cache entries, implemented by the memory and sqlite stores
type Purger interface {
	Purge(ctx context.Context) (int64, error)
}

// Recorder receives one outcome per refreshed query
type Recorder interface {
	RecordWarmup(err error)
}

// Config describes what to refresh and when
type Config struct {
	// Schedule is a standard five-field cron expression
	Schedule string
	Symbols  []string
	Period   string
	Interval string
}

// Scheduler runs cache refreshes on a cron schedule
type Scheduler struct {
	cron      *cron.Cron
	refresher Refresher
	recorder  Recorder
	purger    Purger
	queries   []core.Query
	logger    *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	// running guards against overlapping rounds when a round outlasts the interval
	running sync.Mutex
}

// New validates cfg and creates a scheduler. Call Start to begin.
func New(cfg Config, refresher Refresher, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	queries := make([]core.Query, 0, len(cfg.Symbols))
	for _, symbol := range cfg.Symbols {
		q, err := core.NewQuery(symbol, cfg.Period, cfg.Interval)
		if err != nil {
			return nil, fmt.Errorf("warmup query %q: %w", symbol, err)
		}
		queries = append(queries, q)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:      cron.New(),
		refresher: refresher,
		queries:   queries,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}

	if _, err := s.cron.AddFunc(cfg.Schedule, func() { s.RunOnce(s.ctx) }); err != nil {
		cancel()
		return nil, fmt.Errorf("register warmup schedule: %w", err)
	}
	return s, nil
}

// SetRecorder registers an outcome recorder, typically the metrics registry
func (s *Scheduler) SetRecorder(r Recorder) {
	s.recorder = r
}

// SetPurger makes every round start by evicting expired entries
func (s *Scheduler) SetPurger(p Purger) {
	s.purger = p
}

// Queries returns the queries refreshed each round
func (s *Scheduler) Queries() []core.Query {
	out := make([]core.Query, len(s.queries))
	copy(out, s.queries)
	return out
}

// Start starts the cron scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("warmup scheduler started", zap.Int("symbols", len(s.queries)))
}

// Stop cancels any running round and waits for the scheduler to finish
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.logger.Info("warmup scheduler stopped")
}

// RunOnce refreshes every query sequentially. A round that starts while
// another is in progress is skipped. Returns the number of successful refreshes.
func (s *Scheduler) RunOnce(ctx context.Context) int {
	if !s.running.TryLock() {
		s.logger.Warn("warmup round still running, skipping")
		return 0
	}
	defer s.running.Unlock()

	if s.purger != nil {
		if n, err := s.purger.Purge(ctx); err != nil {
			s.logger.Warn("cache purge failed", zap.Error(err))
		} else if n > 0 {
			s.logger.Debug("purged expired cache entries", zap.Int64("entries", n))
		}
	}

	ok := 0
	for _, q := range s.queries {
		if ctx.Err() != nil {
			break
		}
		n, err := s.refresher.Refresh(ctx, q)
		if s.recorder != nil {
			s.recorder.RecordWarmup(err)
		}
		if err != nil {
			s.logger.Warn("warmup refresh failed", zap.String("query", q.String()), zap.Error(err))
			continue
		}
		ok++
		s.logger.Debug("warmup refreshed", zap.String("query", q.String()), zap.Int("bars", n))
	}
	return ok
}
