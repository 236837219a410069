package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Custom registry so tests and embedding applications do not collide with
// the default global registry.
var registry = prometheus.NewRegistry()

var registerer = prometheus.WrapRegistererWith(nil, registry)

var (
	// Latency buckets in milliseconds.
	latencyBuckets = []float64{
		5, 10, 25,
		50, 100, 250,
		500, 1000, 2500,
		5000, 10000, 30000,
	}

	RequestTotal = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "corridor_gateway_requests_total",
			Help: "Total number of requests processed",
		},
		[]string{"method", "path", "status"},
	)

	RequestLatency = promauto.With(registerer).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "corridor_gateway_latency_ms",
			Help:    "Request latency in milliseconds",
			Buckets: latencyBuckets,
		},
		[]string{"path"},
	)

	CacheOperations = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "corridor_gateway_cache_operations_total",
			Help: "Cache lookups by outcome",
		},
		[]string{"outcome"}, // hit, miss
	)

	RateLimitRejections = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "corridor_gateway_rate_limit_rejections_total",
			Help: "Requests rejected by the per-key rate limiter",
		},
		[]string{"tier"},
	)

	ContributionsIngested = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "corridor_gateway_contributions_total",
			Help: "Contributions accepted by the ingestion pipeline",
		},
		[]string{"type"},
	)
)

// Initialize registers process collectors with the custom registry.
func Initialize() {
	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
}

// Handler returns the HTTP handler serving the registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// StatusClass collapses a status code into its class ("2xx", "4xx"), keeping
// label cardinality down.
func StatusClass(status int) string {
	return fmt.Sprintf("%dxx", status/100)
}
