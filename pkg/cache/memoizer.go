package cache

import (
	"strings"

	"golang.org/x/sync/singleflight"
)

// DefaultFilterToken stands in for an absent filter parameter in cache keys,
// so that "no filter" and "filter=all" resolve to the same entry and two
// different filter sets never collide.
const DefaultFilterToken = "all"

// Memoizer runs a loader at most once per key per TTL window. Concurrent
// misses for the same key collapse onto a single in-flight loader call
// instead of each running it (the cache-stampede gap a bare check-then-set
// sequence leaves open).
type Memoizer struct {
	store *Store
	group singleflight.Group
}

func NewMemoizer(store *Store) *Memoizer {
	return &Memoizer{store: store}
}

// Do returns the cached value for key if fresh, otherwise invokes load and
// caches its result for ttlSeconds. The boolean reports whether the value
// came from cache.
func (m *Memoizer) Do(key string, ttlSeconds int, load func() (interface{}, error)) (interface{}, bool, error) {
	if value, ok := m.store.Get(key); ok {
		return value, true, nil
	}

	value, err, _ := m.group.Do(key, func() (interface{}, error) {
		// Re-check inside the flight: a concurrent caller may have
		// populated the entry while this one waited.
		if cached, ok := m.store.Get(key); ok {
			return cached, nil
		}
		fresh, err := load()
		if err != nil {
			return nil, err
		}
		m.store.Set(key, fresh, ttlSeconds)
		return fresh, nil
	})
	if err != nil {
		return nil, false, err
	}
	return value, false, nil
}

// keyEscaper keeps the join delimiter out of component values, so a filter
// value containing ":" cannot collide with a differently-split request.
var keyEscaper = strings.NewReplacer("%", "%25", ":", "%3A")

// Key builds a cache key from a prefix and ordered filter values, replacing
// empty values with DefaultFilterToken.
func Key(prefix string, params ...string) string {
	parts := make([]string, 0, len(params)+1)
	parts = append(parts, prefix)
	for _, p := range params {
		if p == "" {
			p = DefaultFilterToken
		}
		parts = append(parts, keyEscaper.Replace(p))
	}
	return strings.Join(parts, ":")
}
