// Package observability holds the Prometheus instrumentation shared by the
// HTTP surface and the pipeline.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the service's Prometheus collectors. Registered once at
// construction against the default registry.
type Metrics struct {
	ValidationsTotal    *prometheus.CounterVec
	ValidationDuration  prometheus.Histogram
	ScoresTotal         prometheus.Counter
	ScoreDistribution   prometheus.Histogram
	AdvisoryCallsTotal  *prometheus.CounterVec
	ReplayTicksTotal    prometheus.Counter
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New registers and returns the service metrics.
func New() *Metrics {
	return &Metrics{
		ValidationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "harrier_validations_total",
			Help: "Validation pipeline outcomes by verdict.",
		}, []string{"outcome"}),

		ValidationDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "harrier_validation_duration_seconds",
			Help:    "End-to-end validation latency.",
			Buckets: prometheus.DefBuckets,
		}),

		ScoresTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "harrier_scores_total",
			Help: "Transactions scored by the classifier.",
		}),

		ScoreDistribution: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "harrier_score_distribution",
			Help:    "Distribution of 0-100 risk scores.",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		}),

		AdvisoryCallsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "harrier_advisory_calls_total",
			Help: "Advisory oracle call outcomes.",
		}, []string{"outcome"}),

		ReplayTicksTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "harrier_replay_ticks_total",
			Help: "Stream replay events emitted.",
		}),

		HTTPRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "harrier_http_requests_total",
			Help: "HTTP requests by route and status.",
		}, []string{"route", "status"}),

		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "harrier_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
}
