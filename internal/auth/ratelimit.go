package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/corridorx/corridor-gateway/internal/models"
	"github.com/corridorx/corridor-gateway/pkg/kvstore"
)

// RateLimitStatus reports the current window for response headers.
type RateLimitStatus struct {
	Limit     int
	Remaining int
	Reset     time.Time
}

// RateLimiter enforces each key's hourly allowance with a fixed window over
// a CounterStore. With the in-memory store the window is per process; the
// Redis store shares it across instances.
type RateLimiter struct {
	counters kvstore.CounterStore
	now      func() time.Time
}

func NewRateLimiter(counters kvstore.CounterStore) *RateLimiter {
	return &RateLimiter{counters: counters, now: time.Now}
}

// NewRateLimiterWithClock is NewRateLimiter with an injected clock for tests.
func NewRateLimiterWithClock(counters kvstore.CounterStore, now func() time.Time) *RateLimiter {
	return &RateLimiter{counters: counters, now: now}
}

// Allow counts one request against key's current hour window. It returns
// ErrRateLimited once the allowance is exhausted. Unlimited-tier keys (limit
// zero) never consume a counter.
func (r *RateLimiter) Allow(ctx context.Context, key *models.APIKey) (RateLimitStatus, error) {
	limit := key.RateLimitPerHour
	if limit == 0 {
		limit = models.TierRateLimits[key.Tier]
	}

	windowStart := r.now().Truncate(time.Hour)
	status := RateLimitStatus{
		Limit: limit,
		Reset: windowStart.Add(time.Hour),
	}
	if limit <= 0 {
		return status, nil
	}

	counterKey := fmt.Sprintf("ratelimit:%s:%d", key.ID, windowStart.Unix())
	count, err := r.counters.Incr(ctx, counterKey, time.Hour)
	if err != nil {
		return status, fmt.Errorf("rate limit counter failed: %w", err)
	}

	status.Remaining = limit - int(count)
	if status.Remaining < 0 {
		status.Remaining = 0
	}
	if count > int64(limit) {
		return status, ErrRateLimited
	}
	return status, nil
}
