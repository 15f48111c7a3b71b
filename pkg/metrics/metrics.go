// Package metrics exposes Prometheus collectors for the daemon, the cache,
// and the temporal indexer.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Cache metrics
	CacheSemanticLoaded = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cidx_cache_semantic_loaded",
			Help: "Whether the semantic index slot is populated (1) or empty (0)",
		},
	)

	CacheLexicalLoaded = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cidx_cache_lexical_loaded",
			Help: "Whether the lexical index slot is populated (1) or empty (0)",
		},
	)

	CacheAccessCount = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cidx_cache_access_total",
			Help: "Total number of successful cache reads and writes",
		},
	)

	CacheEvictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cidx_cache_evictions_total",
			Help: "Total number of TTL-driven cache evictions",
		},
	)

	CacheLoadDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cidx_cache_load_duration_seconds",
			Help:    "Time taken to load an index slot from disk",
			Buckets: prometheus.DefBuckets,
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cidx_api_requests_total",
			Help: "Total number of RPC requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cidx_api_request_duration_seconds",
			Help:    "RPC request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// Watch metrics
	WatchFilesProcessed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cidx_watch_files_processed_total",
			Help: "Total number of filesystem events processed by the watch handler",
		},
	)

	WatchUpdatesApplied = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cidx_watch_updates_applied_total",
			Help: "Total number of in-place cache updates applied by the watch handler",
		},
	)

	// Vector calculation manager metrics
	EmbeddingBatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cidx_embedding_batches_total",
			Help: "Total number of embedding provider batch calls by outcome",
		},
		[]string{"outcome"},
	)

	EmbeddingBatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cidx_embedding_batch_duration_seconds",
			Help:    "Embedding provider batch call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ChunksTooLargeTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cidx_chunks_too_large_total",
			Help: "Total number of chunks skipped for exceeding the provider token cap",
		},
	)

	// Temporal indexer metrics
	TemporalCommitsProcessed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cidx_temporal_commits_processed_total",
			Help: "Total number of commits processed by the temporal indexer",
		},
	)

	TemporalBlobsDeduped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cidx_temporal_blobs_deduped_total",
			Help: "Total number of blobs skipped because they were already in the blob registry",
		},
	)

	TemporalBlobsEmbedded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cidx_temporal_blobs_embedded_total",
			Help: "Total number of blobs newly embedded by the temporal indexer",
		},
	)

	TemporalRunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cidx_temporal_run_duration_seconds",
			Help:    "Duration of a complete index_commits run",
			Buckets: []float64{1, 5, 30, 60, 300, 900, 3600, 7200},
		},
	)

	TemporalCheckpointsWritten = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cidx_temporal_checkpoints_written_total",
			Help: "Total number of checkpoint files written",
		},
	)
)

func init() {
	prometheus.MustRegister(
		CacheSemanticLoaded,
		CacheLexicalLoaded,
		CacheAccessCount,
		CacheEvictionsTotal,
		CacheLoadDuration,
		APIRequestsTotal,
		APIRequestDuration,
		WatchFilesProcessed,
		WatchUpdatesApplied,
		EmbeddingBatchesTotal,
		EmbeddingBatchDuration,
		ChunksTooLargeTotal,
		TemporalCommitsProcessed,
		TemporalBlobsDeduped,
		TemporalBlobsEmbedded,
		TemporalRunDuration,
		TemporalCheckpointsWritten,
	)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
