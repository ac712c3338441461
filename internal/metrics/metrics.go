// Cadence - Track Similarity and Taste Clustering Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cadence

// Package metrics holds the Prometheus instrumentation for Cadence.
//
// Metrics are registered on the default registry through promauto and exposed
// at /metrics by the API router.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Similarity query metrics
	SimilarityQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cadence_similarity_query_duration_seconds",
			Help:    "Duration of similarity queries against the catalog store",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "outcome"},
	)

	SimilarityQueriesInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cadence_similarity_queries_in_flight",
			Help: "Number of similarity queries currently holding a store slot",
		},
	)

	// Similarity cache metrics
	SimilarityCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cadence_similarity_cache_hits_total",
			Help: "Total number of similarity cache hits",
		},
		[]string{"method"},
	)

	SimilarityCacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cadence_similarity_cache_misses_total",
			Help: "Total number of similarity cache misses",
		},
		[]string{"method"},
	)

	SimilarityCacheDegraded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cadence_similarity_cache_degraded_total",
			Help: "Requests served without the cache because the backend was unavailable",
		},
		[]string{"operation"}, // "get", "set"
	)

	SimilarityCacheShared = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cadence_similarity_cache_shared_total",
			Help: "Cache misses that joined an in-flight computation for the same key",
		},
	)

	// Cache backend metrics
	CacheBackendErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cadence_cache_backend_errors_total",
			Help: "Total number of cache backend errors",
		},
		[]string{"backend", "operation"},
	)

	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cadence_cache_evictions_total",
			Help: "Total number of entries evicted from in-process caches",
		},
		[]string{"backend", "reason"}, // "expired", "capacity"
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cadence_circuit_breaker_requests_total",
			Help: "Requests through circuit breakers by result",
		},
		[]string{"name", "result"}, // "success", "failure", "rejected"
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cadence_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cadence_circuit_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// Taste clustering metrics
	ClusteringRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cadence_clustering_runs_total",
			Help: "Total number of taste clustering runs",
		},
		[]string{"outcome"}, // "clustered", "trivial", "error"
	)

	ClusteringDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cadence_clustering_duration_seconds",
			Help:    "Duration of taste clustering runs",
			Buckets: prometheus.DefBuckets,
		},
	)

	ClusteringChosenK = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cadence_clustering_chosen_k",
			Help:    "Cluster count selected by taste clustering",
			Buckets: []float64{1, 2, 3, 4, 5, 6},
		},
	)

	ClusteringSilhouette = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cadence_clustering_silhouette",
			Help:    "Silhouette coefficient of the selected clustering",
			Buckets: []float64{-0.5, 0, 0.1, 0.25, 0.4, 0.5, 0.7, 0.9, 1},
		},
	)

	BatchQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cadence_batch_queue_depth",
			Help: "Number of clustering jobs waiting for a batch worker",
		},
	)

	BatchRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cadence_batch_rejected_total",
			Help: "Clustering jobs rejected because the batch queue was full",
		},
	)

	// Prefetch metrics
	PrefetchPredictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cadence_prefetch_predictions_total",
			Help: "Total number of prefetch predictions",
		},
		[]string{"mode", "outcome"},
	)

	PrefetchTracks = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cadence_prefetch_tracks",
			Help:    "Number of tracks staged per prefetch prediction",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"mode"},
	)

	// API metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cadence_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cadence_api_request_duration_seconds",
			Help:    "Duration of API requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)
)

// RecordSimilarityQuery records the duration and outcome of one engine query.
func RecordSimilarityQuery(method, outcome string, duration time.Duration) {
	SimilarityQueryDuration.WithLabelValues(method, outcome).Observe(duration.Seconds())
}

// RecordClustering records a clustering run. k is 1 for the trivial result.
func RecordClustering(outcome string, k int, silhouette float64, duration time.Duration) {
	ClusteringRuns.WithLabelValues(outcome).Inc()
	ClusteringDuration.Observe(duration.Seconds())
	if outcome == "error" {
		return
	}
	ClusteringChosenK.Observe(float64(k))
	if k > 1 {
		ClusteringSilhouette.Observe(silhouette)
	}
}

// RecordPrefetch records a prefetch prediction.
func RecordPrefetch(mode, outcome string, tracks int) {
	PrefetchPredictions.WithLabelValues(mode, outcome).Inc()
	if outcome == "success" {
		PrefetchTracks.WithLabelValues(mode).Observe(float64(tracks))
	}
}

// RecordAPIRequest records an API request metric.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordBreakerTransition updates breaker gauges on a state change.
func RecordBreakerTransition(name, from, to string, state float64) {
	CircuitBreakerState.WithLabelValues(name).Set(state)
	CircuitBreakerTransitions.WithLabelValues(name, from, to).Inc()
}
