package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/corridorx/corridor-gateway/pkg/cache"
	"github.com/corridorx/corridor-gateway/pkg/httpcond"
	"github.com/corridorx/corridor-gateway/pkg/metrics"
)

// CachedJSON wraps read handlers with response memoization and conditional
// HTTP semantics. The load function runs at most once per cache key per TTL
// window; concurrent misses for one key collapse onto a single execution.
type CachedJSON struct {
	memoizer *cache.Memoizer
	ttl      int
	public   bool
	logger   *logrus.Logger
}

func NewCachedJSON(memoizer *cache.Memoizer, ttlSeconds int, public bool, logger *logrus.Logger) *CachedJSON {
	return &CachedJSON{
		memoizer: memoizer,
		ttl:      ttlSeconds,
		public:   public,
		logger:   logger,
	}
}

// Handle returns a gin handler serving load's result under the key produced
// by keyFn. keyFn must fold in every query parameter that affects the
// result, with explicit default tokens for absent filters.
func (cc *CachedJSON) Handle(keyFn func(*gin.Context) string, load func(*gin.Context) (interface{}, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := keyFn(c)

		value, hit, err := cc.memoizer.Do(key, cc.ttl, func() (interface{}, error) {
			return load(c)
		})
		if err != nil {
			cc.logger.WithError(err).WithField("cache_key", key).Error("handler failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			return
		}

		if hit {
			c.Header(CacheStatusHeader, "HIT")
			metrics.CacheOperations.WithLabelValues("hit").Inc()
		} else {
			c.Header(CacheStatusHeader, "MISS")
			metrics.CacheOperations.WithLabelValues("miss").Inc()
		}

		etag, err := httpcond.ComputeETag(value)
		if err != nil {
			// Diagnostic failure only; serve the body without validators.
			cc.logger.WithError(err).Warn("failed to compute etag")
			c.JSON(http.StatusOK, value)
			return
		}

		c.Header("ETag", etag)
		c.Header("Cache-Control", httpcond.CacheControl(cc.public, cc.ttl))
		// The underlying data has no natural modification timestamp, so
		// Last-Modified is the serving time. If-Modified-Since is not
		// honored: the source data changes far faster than the header's
		// date granularity can express.
		c.Header("Last-Modified", time.Now().UTC().Format(http.TimeFormat))

		if httpcond.Matches(c.GetHeader("If-None-Match"), etag) {
			// Cache population already happened above, so the next
			// unconditional request is still fast.
			c.Status(http.StatusNotModified)
			return
		}
		c.JSON(http.StatusOK, value)
	}
}
