/*
Package metrics provides Prometheus metrics collection and exposition for the
cidx daemon.

All metrics are registered at package init against the default Prometheus
registry and exposed over HTTP via Handler(), matching the
promhttp.Handler pattern.

# Metrics catalog

Cache:
  - cidx_cache_semantic_loaded (gauge) - whether the semantic index slot is populated
  - cidx_cache_lexical_loaded (gauge) - whether the lexical index slot is populated
  - cidx_cache_access_total (counter) - successful cache reads and writes
  - cidx_cache_evictions_total (counter) - TTL-driven evictions
  - cidx_cache_load_duration_seconds (histogram) - time to load an index slot from disk

RPC:
  - cidx_api_requests_total{method,status} (counter)
  - cidx_api_request_duration_seconds{method} (histogram)

Watch:
  - cidx_watch_files_processed_total (counter)
  - cidx_watch_updates_applied_total (counter)

Vector calculation manager:
  - cidx_embedding_batches_total{outcome} (counter)
  - cidx_embedding_batch_duration_seconds (histogram)
  - cidx_chunks_too_large_total (counter)

Temporal indexer:
  - cidx_temporal_commits_processed_total (counter)
  - cidx_temporal_blobs_deduped_total (counter)
  - cidx_temporal_blobs_embedded_total (counter)
  - cidx_temporal_run_duration_seconds (histogram)
  - cidx_temporal_checkpoints_written_total (counter)

# Usage

	timer := metrics.NewTimer()
	// ... do work ...
	timer.ObserveDurationVec(metrics.APIRequestDuration, "query")
	metrics.APIRequestsTotal.WithLabelValues("query", "ok").Inc()

# Integration points

  - pkg/cache sets CacheSemanticLoaded, CacheLexicalLoaded, CacheAccessCount, CacheEvictionsTotal, CacheLoadDuration
  - pkg/daemon records APIRequestsTotal / APIRequestDuration around every RPC handler
  - pkg/watch increments WatchFilesProcessed / WatchUpdatesApplied
  - pkg/vcm records EmbeddingBatchesTotal / EmbeddingBatchDuration / ChunksTooLargeTotal
  - pkg/temporal records the Temporal* family and drives checkpoint counts

This package also exposes a small component health registry
(RegisterComponent, GetHealth, GetReadiness) used by the daemon's /health
and /ready HTTP endpoints. Critical components for readiness are "cache",
"storage", and "rpc" - the daemon registers each once its corresponding
subsystem has finished initializing.
*/
package metrics
