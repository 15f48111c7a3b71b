package rpcapi

import "github.com/jsbattig/cidx/pkg/cidxtypes"

// RepoRequest is the envelope shared by every call that scopes to one
// repository; the daemon compares RepoPath against its configured root and
// fails with WrongRepository on mismatch.
type RepoRequest struct {
	RepoPath      string `json:"repo_path"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// QueryRequest is shared by Query, QueryFTS, and QueryHybrid.
type QueryRequest struct {
	RepoRequest
	Text  string `json:"text"`
	Limit int    `json:"limit"`
}

// QueryResponse wraps a normalized result list.
type QueryResponse struct {
	Results []cidxtypes.QueryResult `json:"results"`
}

// IndexRequest drives both current-HEAD and temporal indexing.
type IndexRequest struct {
	RepoRequest
	Mode           cidxtypes.IndexingMode `json:"mode"`
	BranchPatterns []string               `json:"branch_patterns,omitempty"`
	SinceUnix      int64                  `json:"since_unix,omitempty"`
	MaxCommits     int                    `json:"max_commits,omitempty"`
	Resume         bool                   `json:"resume,omitempty"`
}

// IndexResponse is the terminal message of an Index stream.
type IndexResponse struct {
	Status             string  `json:"status"`
	TotalCommits        int     `json:"total_commits,omitempty"`
	NewBlobsIndexed     int     `json:"new_blobs_indexed,omitempty"`
	DeduplicationRatio  float64 `json:"deduplication_ratio,omitempty"`
}

// WatchStartRequest starts the watch handler for a repo.
type WatchStartRequest struct {
	RepoRequest
}

// WatchStartResponse is the terminal message of a WatchStart stream.
type WatchStartResponse struct {
	Status string `json:"status"` // started | already_running
}

// WatchStopResponse answers watch_stop.
type WatchStopResponse struct {
	Status         string `json:"status"` // stopped | not_running
	FilesProcessed int    `json:"files_processed"`
	UpdatesApplied int    `json:"updates_applied"`
}

// WatchStatusResponse answers watch_status.
type WatchStatusResponse struct {
	Watching       bool   `json:"watching"`
	Project        string `json:"project,omitempty"`
	FilesProcessed int    `json:"files_processed"`
	LastUpdateUnix int64  `json:"last_update_unix,omitempty"`
}

// CleanRequest is shared by Clean and CleanData.
type CleanRequest struct {
	RepoRequest
	All      bool   `json:"all,omitempty"`
	FilePath string `json:"file_path,omitempty"`
}

// CleanResponse answers clean/clean_data.
type CleanResponse struct {
	CacheInvalidated bool   `json:"cache_invalidated"`
	Result           string `json:"result"`
}

// StatusResponse answers status(repo).
type StatusResponse struct {
	Daemon  GetStatusResponse `json:"daemon"`
	Storage string            `json:"storage"`
	Mode    string            `json:"mode"`
}

// GetStatusResponse answers get_status.
type GetStatusResponse struct {
	Running        bool   `json:"running"`
	CacheEmpty     bool   `json:"cache_empty,omitempty"`
	Project        string `json:"project,omitempty"`
	SemanticCached bool   `json:"semantic_cached"`
	FTSAvailable   bool   `json:"fts_available"`
	FTSCached      bool   `json:"fts_cached"`
	LastAccessUnix int64  `json:"last_accessed,omitempty"`
	AccessCount    int64  `json:"access_count"`
	TTLMinutes     int    `json:"ttl_minutes"`
}

// SimpleStatusResponse answers clear_cache and shutdown.
type SimpleStatusResponse struct {
	Status string `json:"status"`
}

// StreamEnvelope is the single wire message for both server-streaming
// methods (Index, WatchStart): either a progress update or (on the final
// message) the terminal result, never both.
type StreamEnvelope struct {
	Progress *cidxtypes.ProgressEvent `json:"progress,omitempty"`
	Index    *IndexResponse           `json:"index_result,omitempty"`
	Watch    *WatchStartResponse      `json:"watch_result,omitempty"`
}
