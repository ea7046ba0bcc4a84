// Package metrics exposes Prometheus instrumentation for the retrieval
// engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// retrievals counts retrieval calls by outcome.
	// Labels: outcome (ok, degraded, empty, error)
	retrievals = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cerca",
		Subsystem: "retrieval",
		Name:      "requests_total",
		Help:      "Total retrieval calls by outcome",
	}, []string{"outcome"})

	// degradedReasons counts degradation reasons across bundles.
	// Labels: reason (vector_index_unavailable, reranker_timeout, ...)
	degradedReasons = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cerca",
		Subsystem: "retrieval",
		Name:      "degraded_total",
		Help:      "Total degraded bundles by reason",
	}, []string{"reason"})

	// retrievalDuration measures end-to-end retrieval latency.
	retrievalDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "cerca",
		Subsystem: "retrieval",
		Name:      "duration_seconds",
		Help:      "End-to-end retrieval latency in seconds",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"intent"})

	// bundleItems tracks the size of returned bundles.
	bundleItems = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "cerca",
		Subsystem: "retrieval",
		Name:      "bundle_items",
		Help:      "Number of items in returned context bundles",
		Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
	})

	// scoringCalls counts relevance scoring calls by status.
	// Labels: status (ok, timeout, unavailable, error)
	scoringCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cerca",
		Subsystem: "scoring",
		Name:      "calls_total",
		Help:      "Total relevance scoring calls by status",
	}, []string{"status"})
)

// ObserveRetrieval records one completed retrieval call.
func ObserveRetrieval(intent, outcome string, items int, reasons []string, elapsed time.Duration) {
	retrievals.WithLabelValues(outcome).Inc()
	retrievalDuration.WithLabelValues(intent).Observe(elapsed.Seconds())
	bundleItems.Observe(float64(items))
	for _, reason := range reasons {
		degradedReasons.WithLabelValues(reason).Inc()
	}
}

// ObserveScoringCall records one relevance scoring call.
func ObserveScoringCall(status string) {
	scoringCalls.WithLabelValues(status).Inc()
}
