package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/corridorx/corridor-gateway/pkg/metrics"
)

// Metrics records request totals and latency for every route.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.RequestLatency.WithLabelValues(path).
			Observe(float64(time.Since(start).Milliseconds()))
		metrics.RequestTotal.WithLabelValues(
			c.Request.Method,
			path,
			metrics.StatusClass(c.Writer.Status()),
		).Inc()
	}
}
