// Package cidxtypes holds the plain data types shared across the daemon,
// the temporal indexer, and the on-disk stores. Types that carry their own
// locks (the Cache Entry) live in their owning package instead.
package cidxtypes

import "time"

// BlobRegistryRow is a single (blob_hash, point_id) dedup mapping.
type BlobRegistryRow struct {
	BlobHash string `json:"blob_hash"`
	PointID  string `json:"point_id"`
}

// Commit mirrors the commits table row.
type Commit struct {
	Hash         string    `json:"hash"`
	Timestamp    time.Time `json:"timestamp"`
	AuthorName   string    `json:"author_name"`
	AuthorEmail  string    `json:"author_email"`
	Message      string    `json:"message"`
	ParentHashes []string  `json:"parent_hashes"`
}

// TreeEntry mirrors a trees table row: one file at one commit.
type TreeEntry struct {
	CommitHash string `json:"commit_hash"`
	FilePath   string `json:"file_path"`
	BlobHash   string `json:"blob_hash"`
	Size       int64  `json:"size"`
}

// CommitBranchRow mirrors a commit_branches table row.
type CommitBranchRow struct {
	CommitHash string    `json:"commit_hash"`
	BranchName string    `json:"branch_name"`
	IsHead     bool      `json:"is_head"`
	IndexedAt  time.Time `json:"indexed_at"`
}

// IndexingMode is the temporal indexer's branch strategy.
type IndexingMode string

const (
	ModeCurrent  IndexingMode = "current"
	ModeAll      IndexingMode = "all"
	ModePatterns IndexingMode = "patterns"
)

// TemporalMetadata is the file-backed summary of the last completed
// index_commits run, written atomically via pkg/atomicfile.
type TemporalMetadata struct {
	LastIndexedCommit    string       `json:"last_indexed_commit"`
	IndexVersion         int          `json:"index_version"`
	TotalCommits         int          `json:"total_commits"`
	TotalUniqueBlobs     int          `json:"total_unique_blobs"`
	DeduplicationRatio   float64      `json:"deduplication_ratio"`
	IndexingMode         IndexingMode `json:"indexing_mode"`
	IndexedBranches      []string     `json:"indexed_branches"`
	LastUpdated          time.Time    `json:"last_updated"`
	IncrementalUpdates   int          `json:"incremental_updates"`
}

// Checkpoint is the file-backed, atomically-written resume marker for an
// in-progress index_commits run. Present only while a run is active.
type Checkpoint struct {
	Version           int       `json:"version"`
	Timestamp         time.Time `json:"timestamp"`
	LastCommit        string    `json:"last_commit"`
	CommitsProcessed  int       `json:"commits_processed"`
	TotalBlobs        int       `json:"total_blobs"`
	TotalVectors      int       `json:"total_vectors"`
	AllBranches       bool      `json:"all_branches"`
	RepoIdentityHash  string    `json:"repo_identity_hash"`
}

// ProgressEvent is the wire shape for progress callbacks streamed from the
// daemon to the client over an RPC's server-streaming leg.
type ProgressEvent struct {
	Current       int    `json:"current"`
	Total         int    `json:"total"`
	Path          string `json:"path"`
	Info          string `json:"info"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// Point is a single embedded chunk, as upserted into the Index Store.
type Point struct {
	ID         string    `json:"id"`
	Vector     []float32 `json:"vector"`
	BlobHash   string    `json:"blob_hash,omitempty"`
	FilePath   string    `json:"file_path"`
	CommitHash string    `json:"commit_hash,omitempty"`
	ChunkIndex int       `json:"chunk_index"`
	Text       string    `json:"text"`
}

// QueryResult is a single normalized search hit.
type QueryResult struct {
	PointID  string  `json:"point_id"`
	FilePath string  `json:"file_path"`
	Score    float64 `json:"score"`
	Source   string  `json:"source"` // "semantic" | "lexical"
	Snippet  string  `json:"snippet,omitempty"`
}

// CostEstimate is returned by the Temporal Indexer before an all/patterns run.
type CostEstimate struct {
	AdditionalCommits     int     `json:"additional_commits"`
	EstimatedNewBlobs     int     `json:"estimated_new_blobs"`
	EstimatedStorageBytes int64   `json:"estimated_storage_bytes"`
	EstimatedCostUSD      float64 `json:"estimated_cost_usd"`
}
