// Package observability holds the prometheus instrumentation for the
// advisor core.
package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status"},
	)

	cacheResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommendation_cache_results_total",
			Help: "Result cache lookups by tier and outcome.",
		},
		[]string{"tier", "outcome"},
	)

	cacheOpSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cache_op_duration_seconds",
			Help:    "Duration of redis cache operations in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"op", "ok"},
	)

	computeSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "recommendation_compute_duration_seconds",
			Help:    "Duration of full recommendation computations in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		},
	)

	recommendationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommendations_total",
			Help: "Recommendations served by source.",
		},
		[]string{"source"},
	)

	webhookDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_deliveries_total",
			Help: "Webhook delivery outcomes.",
		},
		[]string{"event_type", "status"},
	)

	webhookAttempts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "webhook_delivery_attempts_total",
			Help: "Individual webhook POST attempts, including retries.",
		},
	)

	telemetryLatencySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "telemetry_query_duration_seconds",
			Help:    "Latency of telemetry store queries in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"series"},
	)

	buildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_build_info",
			Help: "Build information for the binary.",
		},
		[]string{"version"},
	)
)

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func ObserveCacheOp(op string, err error, durationSeconds float64) {
	ok := "true"
	if err != nil {
		ok = "false"
	}
	cacheOpSeconds.WithLabelValues(op, ok).Observe(durationSeconds)
}

func IncCacheResult(tier, outcome string) {
	cacheResults.WithLabelValues(tier, outcome).Inc()
}

func ObserveComputeLatency(durationSeconds float64) {
	computeSeconds.Observe(durationSeconds)
}

func IncRecommendation(source string) {
	recommendationsTotal.WithLabelValues(source).Inc()
}

func IncWebhookDelivery(eventType, status string) {
	webhookDeliveries.WithLabelValues(eventType, status).Inc()
}

func IncWebhookAttempt() {
	webhookAttempts.Inc()
}

func ObserveTelemetryLatency(series string, durationSeconds float64) {
	telemetryLatencySeconds.WithLabelValues(series).Observe(durationSeconds)
}

func ExposeBuildInfo(version string) {
	if version == "" {
		version = "dev"
	}
	buildInfo.WithLabelValues(version).Set(1)
}
