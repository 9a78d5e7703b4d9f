// Package metrics provides Prometheus metrics for trendcollector.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CyclesTotal counts collection cycles by trigger.
	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trendcollector",
			Name:      "cycles_total",
			Help:      "Total number of collection cycles",
		},
		[]string{"trigger"},
	)

	// CycleDuration measures full cycle duration.
	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "trendcollector",
			Name:      "cycle_duration_seconds",
			Help:      "Duration of collection cycles in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// CyclesSkipped counts timer ticks dropped because a cycle was running.
	CyclesSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "trendcollector",
			Name:      "cycles_skipped_total",
			Help:      "Timer ticks coalesced into a running cycle",
		},
	)

	// TrendsSaved counts stored trend records by source.
	TrendsSaved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trendcollector",
			Name:      "trends_saved_total",
			Help:      "Total number of trend records stored",
		},
		[]string{"source"},
	)

	// AdapterDuration measures adapter call duration.
	AdapterDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "trendcollector",
			Name:      "adapter_duration_seconds",
			Help:      "Duration of source adapter calls in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	// ErrorsTotal counts errors by operation.
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trendcollector",
			Name:      "errors_total",
			Help:      "Total number of errors",
		},
		[]string{"operation", "source"},
	)

	// HTTPRequests counts API requests by route and status code.
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trendcollector",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"route", "method", "code"},
	)

	// CacheLookups counts response cache hits and misses.
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trendcollector",
			Name:      "cache_lookups_total",
			Help:      "Response cache lookups by result",
		},
		[]string{"result"},
	)
)

// RecordCycle records a finished collection cycle.
func RecordCycle(trigger string, seconds float64) {
	CyclesTotal.WithLabelValues(trigger).Inc()
	CycleDuration.Observe(seconds)
}

// RecordAdapter records one adapter call.
func RecordAdapter(source string, seconds float64, err error) {
	AdapterDuration.WithLabelValues(source).Observe(seconds)
	if err != nil {
		ErrorsTotal.WithLabelValues("adapter", source).Inc()
	}
}

// RecordSaved adds n stored records for source.
func RecordSaved(source string, n int) {
	TrendsSaved.WithLabelValues(source).Add(float64(n))
}

// RecordError records an error for operation. source may be empty.
func RecordError(operation, source string) {
	ErrorsTotal.WithLabelValues(operation, source).Inc()
}

// RecordCache records a cache lookup.
func RecordCache(hit bool) {
	if hit {
		CacheLookups.WithLabelValues("hit").Inc()
		return
	}
	CacheLookups.WithLabelValues("miss").Inc()
}
