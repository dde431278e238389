package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestDuration tracks API latency by route pattern.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "benchd_http_request_duration_seconds",
		Help:    "HTTP request latency by method, route and status",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	// HTTPInFlight gauges requests currently being served.
	HTTPInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "benchd_http_requests_in_flight",
		Help: "HTTP requests currently being served",
	})

	// RateLimitThrottledTotal counts requests rejected by the per-IP
	// limiter.
	RateLimitThrottledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "benchd_ratelimit_throttled_total",
		Help: "Total API requests rejected by the rate limiter",
	})
)

// ObserveHTTPRequest records one served request.
func ObserveHTTPRequest(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// IncRateLimitThrottled records a request bounced by the rate limiter.
func IncRateLimitThrottled() {
	RateLimitThrottledTotal.Inc()
}
