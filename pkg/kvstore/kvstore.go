// Package kvstore abstracts the counter storage behind rate limiting. The
// in-memory implementation serves single-instance deployments; the Redis
// implementation is the extension point for running more than one gateway
// instance, where per-process counters would silently under-count.
package kvstore

import (
	"context"
	"sync"
	"time"
)

// CounterStore increments named counters that expire after a window.
type CounterStore interface {
	// Incr adds one to key and returns the new count. On first increment
	// the key's lifetime is set to window.
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

type memoryCounter struct {
	count     int64
	expiresAt time.Time
}

// MemoryStore is a process-local CounterStore.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]*memoryCounter
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		counters: make(map[string]*memoryCounter),
		now:      time.Now,
	}
}

// NewMemoryStoreWithClock is NewMemoryStore with an injected clock for tests.
func NewMemoryStoreWithClock(now func() time.Time) *MemoryStore {
	return &MemoryStore{
		counters: make(map[string]*memoryCounter),
		now:      now,
	}
}

func (s *MemoryStore) Incr(_ context.Context, key string, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	c, ok := s.counters[key]
	if !ok || now.After(c.expiresAt) {
		c = &memoryCounter{expiresAt: now.Add(window)}
		s.counters[key] = c
	}
	c.count++

	// Opportunistic sweep of dead windows so long-running processes do not
	// accumulate one counter per key per window forever.
	if len(s.counters) > 10000 {
		for k, v := range s.counters {
			if now.After(v.expiresAt) {
				delete(s.counters, k)
			}
		}
	}
	return c.count, nil
}
