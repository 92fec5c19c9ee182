package cache

import (
	"context"
	"sync"
	"time"

	"github.com/newthinker/tadash/internal/core"
)

type memoryEntry struct {
	bars    []core.Bar
	expires time.Time
}

// sweepInterval is the minimum gap between expiry sweeps triggered by Set
const sweepInterval = time.Minute

// MemoryStore is a process-wide in-memory Store.
// Expired entries are dropped on read and swept at most once per sweepInterval on write.
type MemoryStore struct {
	mu        sync.RWMutex
	entries   map[string]memoryEntry
	now       func() time.Time
	lastSweep time.Time
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (m *MemoryStore) Get(ctx context.Context, key string) ([]core.Bar, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}
	if !m.now().Before(e.expires) {
		m.mu.Lock()
		// re-check: a concurrent Set may have refreshed the entry
		if cur, ok := m.entries[key]; ok && !m.now().Before(cur.expires) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return nil, false, nil
	}
	return cloneBars(e.bars), true, nil
}

func (m *MemoryStore) Set(ctx context.Context, key string, bars []core.Bar, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if now.Sub(m.lastSweep) >= sweepInterval {
		m.sweep(now)
	}
	m.entries[key] = memoryEntry{
		bars:    cloneBars(bars),
		expires: now.Add(ttl),
	}
	return nil
}

// Len returns the number of entries, including expired ones not yet evicted
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Purge removes every expired entry and reports how many were dropped
func (m *MemoryStore) Purge(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sweep(m.now()), nil
}

// sweep requires m.mu held for writing
func (m *MemoryStore) sweep(now time.Time) int64 {
	var n int64
	for key, e := range m.entries {
		if !now.Before(e.expires) {
			delete(m.entries, key)
			n++
		}
	}
	m.lastSweep = now
	return n
}

func (m *MemoryStore) Close() error {
	return nil
}
