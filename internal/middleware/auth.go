package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/corridorx/corridor-gateway/internal/auth"
	"github.com/corridorx/corridor-gateway/internal/models"
	"github.com/corridorx/corridor-gateway/pkg/metrics"
)

// UsageWriter is the slice of the persistence collaborator the middleware
// needs for usage logging.
type UsageWriter interface {
	AppendUsageLog(ctx context.Context, entry *models.UsageLog) error
}

// AuthMiddleware authenticates machine clients, enforces their rate limits
// and records one usage-log row per completed request.
type AuthMiddleware struct {
	authenticator *auth.Authenticator
	limiter       *auth.RateLimiter
	usage         UsageWriter
	logger        *logrus.Logger
}

func NewAuthMiddleware(authenticator *auth.Authenticator, limiter *auth.RateLimiter, usage UsageWriter, logger *logrus.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		authenticator: authenticator,
		limiter:       limiter,
		usage:         usage,
		logger:        logger,
	}
}

// RequireAPIKey validates the key presented in the X-Api-Key header or the
// api_key query parameter. Absence yields 401; invalidity yields 403 with a
// machine-readable reason; an exhausted allowance yields 429.
func (m *AuthMiddleware) RequireAPIKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		presented := c.GetHeader(APIKeyHeader)
		if presented == "" {
			presented = c.Query(APIKeyQueryParam)
		}
		if presented == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "API key is required"})
			c.Abort()
			m.record(c, nil, start, strPtr("missing api key"))
			return
		}

		key, err := m.authenticator.Authenticate(c.Request.Context(), presented, c.Request.URL.Path)
		if err != nil {
			var authErr *auth.AuthError
			if errors.As(err, &authErr) {
				m.logger.WithFields(logrus.Fields{
					"reason": authErr.Reason,
					"path":   c.Request.URL.Path,
				}).Warn("rejected api key")
				c.JSON(http.StatusForbidden, gin.H{"error": "Invalid API key", "reason": authErr.Reason})
				c.Abort()
				m.record(c, nil, start, strPtr(authErr.Reason))
				return
			}
			m.logger.WithError(err).Error("api key lookup failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to validate API key"})
			c.Abort()
			m.record(c, nil, start, strPtr("key lookup failed"))
			return
		}

		status, err := m.limiter.Allow(c.Request.Context(), key)
		c.Header("X-RateLimit-Limit", strconv.Itoa(status.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(status.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(status.Reset.Unix(), 10))
		if err != nil {
			if errors.Is(err, auth.ErrRateLimited) {
				metrics.RateLimitRejections.WithLabelValues(key.Tier).Inc()
				c.Header("Retry-After", strconv.Itoa(int(time.Until(status.Reset).Seconds())))
				c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded", "reason": "rate_limit_exceeded"})
				c.Abort()
				m.record(c, &key.ID, start, strPtr("rate limit exceeded"))
				return
			}
			m.logger.WithError(err).Error("rate limit check failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check rate limit"})
			c.Abort()
			m.record(c, &key.ID, start, strPtr("rate limit check failed"))
			return
		}

		c.Set(APIKeyContextKey, key)
		c.Next()

		m.record(c, &key.ID, start, nil)
	}
}

// record appends a usage-log row after the response has been written. The
// write happens in a goroutine so it never adds latency to the response
// path; everything needed is copied out of the gin context first.
func (m *AuthMiddleware) record(c *gin.Context, keyID *string, start time.Time, errMsg *string) {
	entry := &models.UsageLog{
		APIKeyID:       keyID,
		Path:           c.Request.URL.Path,
		Method:         c.Request.Method,
		StatusCode:     c.Writer.Status(),
		ResponseTimeMs: time.Since(start).Milliseconds(),
		ClientIP:       c.ClientIP(),
		UserAgent:      c.Request.UserAgent(),
		ErrorMessage:   errMsg,
		CreatedAt:      time.Now(),
	}
	go func() {
		if err := m.usage.AppendUsageLog(context.Background(), entry); err != nil {
			m.logger.WithError(err).WithField("path", entry.Path).Warn("failed to append usage log")
		}
	}()
}

func strPtr(s string) *string {
	return &s
}
