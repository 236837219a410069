package cache

import (
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/sirupsen/logrus"
)

// sweepThreshold is the store size above which Set triggers a full sweep of
// expired entries. It bounds unreferenced growth between janitor runs without
// paying a timer on every write.
const sweepThreshold = 1000

// janitorInterval is how often the background janitor sweeps expired entries
// independent of traffic.
const janitorInterval = 5 * time.Minute

type entry struct {
	value     interface{}
	createdAt time.Time
	expiresAt time.Time // zero means never expires
}

// Stats is a point-in-time snapshot of store counters. MemoryBytes is an
// approximation (key length plus serialized value length, two bytes per
// character) and is diagnostic only.
type Stats struct {
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	Sets        int64   `json:"sets"`
	Evictions   int64   `json:"evictions"`
	HitRate     float64 `json:"hit_rate"`
	Size        int     `json:"size"`
	MemoryBytes int64   `json:"memory_bytes"`
}

// Store is an in-process TTL cache. It is a freshness cache, not a
// capacity-bounded cache: entries leave only on TTL expiry, explicit delete,
// or Clear. Storing unbounded keys with ttl <= 0 is a caller error, not a
// store responsibility.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry

	hits      int64
	misses    int64
	sets      int64
	evictions int64

	now    func() time.Time
	logger logrus.FieldLogger

	stopJanitor chan struct{}
	stopOnce    sync.Once
}

// NewStore creates a store and starts its background janitor. The caller owns
// the lifecycle and must call Stop when done.
func NewStore(logger logrus.FieldLogger) *Store {
	s := &Store{
		entries:     make(map[string]*entry),
		now:         time.Now,
		logger:      logger,
		stopJanitor: make(chan struct{}),
	}
	go s.janitor()
	return s
}

// NewStoreWithClock is NewStore with an injected clock and no janitor,
// for tests that need deterministic expiry.
func NewStoreWithClock(logger logrus.FieldLogger, now func() time.Time) *Store {
	return &Store{
		entries:     make(map[string]*entry),
		now:         now,
		logger:      logger,
		stopJanitor: make(chan struct{}),
	}
}

func (s *Store) janitor() {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			removed := s.Cleanup()
			if removed > 0 {
				s.logger.WithField("removed", removed).Debug("cache janitor sweep")
			}
		case <-s.stopJanitor:
			return
		}
	}
}

// Stop terminates the janitor. Safe to call more than once.
func (s *Store) Stop() {
	s.stopOnce.Do(func() { close(s.stopJanitor) })
}

// Get returns the value for key, or false on a miss. A present-but-expired
// entry is removed and counted as both an eviction and a miss.
func (s *Store) Get(key string) (interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.entries[key]
	if !ok {
		s.misses++
		return nil, false
	}
	if !ent.expiresAt.IsZero() && s.now().After(ent.expiresAt) {
		delete(s.entries, key)
		s.evictions++
		s.misses++
		return nil, false
	}
	s.hits++
	return ent.value, true
}

// Set stores value under key. ttlSeconds <= 0 stores a non-expiring entry.
func (s *Store) Set(key string, value interface{}, ttlSeconds int) {
	s.mu.Lock()
	ent := &entry{value: value, createdAt: s.now()}
	if ttlSeconds > 0 {
		ent.expiresAt = s.now().Add(time.Duration(ttlSeconds) * time.Second)
	}
	s.entries[key] = ent
	s.sets++
	needSweep := len(s.entries) > sweepThreshold
	s.mu.Unlock()

	if needSweep {
		s.Cleanup()
	}
}

// Delete removes key, reporting whether it was present.
func (s *Store) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[key]
	delete(s.entries, key)
	return ok
}

// Clear removes every entry. Counters are preserved.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*entry)
}

// Cleanup removes all expired entries and returns how many were removed.
func (s *Store) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, ent := range s.entries {
		if !ent.expiresAt.IsZero() && now.After(ent.expiresAt) {
			delete(s.entries, key)
			s.evictions++
			removed++
		}
	}
	return removed
}

// Stats returns a snapshot of the store's counters.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		Hits:      s.hits,
		Misses:    s.misses,
		Sets:      s.sets,
		Evictions: s.evictions,
		Size:      len(s.entries),
	}
	if total := s.hits + s.misses; total > 0 {
		st.HitRate = float64(s.hits) / float64(total)
	}
	for key, ent := range s.entries {
		st.MemoryBytes += int64(len(key) * 2)
		data, err := sonic.Marshal(ent.value)
		if err != nil {
			// Unserializable values contribute nothing to the estimate.
			continue
		}
		st.MemoryBytes += int64(len(data) * 2)
	}
	return st
}
