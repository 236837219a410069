package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corridorx/corridor-gateway/internal/models"
	"github.com/corridorx/corridor-gateway/pkg/kvstore"
)

func TestRateLimiterEnforcesHourlyWindow(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	limiter := NewRateLimiterWithClock(kvstore.NewMemoryStoreWithClock(clock), clock)

	key := &models.APIKey{ID: "key-1", Tier: models.TierBasic, RateLimitPerHour: 3}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		status, err := limiter.Allow(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, 3, status.Limit)
		assert.Equal(t, 2-i, status.Remaining)
	}

	status, err := limiter.Allow(ctx, key)
	require.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, 0, status.Remaining)
	assert.Equal(t, time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC), status.Reset)

	// The next hour window starts fresh.
	now = now.Add(time.Hour)
	_, err = limiter.Allow(ctx, key)
	assert.NoError(t, err)
}

func TestRateLimiterFallsBackToTierLimit(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	limiter := NewRateLimiterWithClock(kvstore.NewMemoryStoreWithClock(clock), clock)

	key := &models.APIKey{ID: "key-1", Tier: models.TierBasic}
	status, err := limiter.Allow(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, models.TierRateLimits[models.TierBasic], status.Limit)
}

func TestRateLimiterUnlimitedTier(t *testing.T) {
	limiter := NewRateLimiter(kvstore.NewMemoryStore())
	key := &models.APIKey{ID: "key-1", Tier: models.TierUnlimited}

	for i := 0; i < 100; i++ {
		_, err := limiter.Allow(context.Background(), key)
		require.NoError(t, err)
	}
}

func TestRateLimiterIsolatesKeys(t *testing.T) {
	limiter := NewRateLimiter(kvstore.NewMemoryStore())

	a := &models.APIKey{ID: "key-a", RateLimitPerHour: 1}
	b := &models.APIKey{ID: "key-b", RateLimitPerHour: 1}
	ctx := context.Background()

	_, err := limiter.Allow(ctx, a)
	require.NoError(t, err)
	_, err = limiter.Allow(ctx, a)
	require.ErrorIs(t, err, ErrRateLimited)

	_, err = limiter.Allow(ctx, b)
	assert.NoError(t, err, "one key's exhaustion must not affect another")
}
