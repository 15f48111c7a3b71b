// Package indexstore defines the Index Store contract the spec treats as an
// opaque external collaborator (the HNSW semantic index, the lexical/FTS
// index, and the on-disk vector store format are all out of scope). Store
// provides the load/query/upsert/clean surface the Cache Entry and the
// Temporal Indexer depend on; the default implementation is a simple
// JSON-backed, brute-force index sufficient to exercise the contract.
package indexstore

import (
	"context"
	"errors"

	"github.com/jsbattig/cidx/pkg/cidxtypes"
)

// ErrFTSUnavailable is returned by LoadFTS when no lexical index exists on
// disk for the repository.
var ErrFTSUnavailable = errors.New("indexstore: fts index unavailable")

// Semantic is the loaded HNSW index plus id mapping. Both fields are either
// absent (nil Vectors) or both present, per spec.md §3's Cache Entry
// invariant.
type Semantic struct {
	Vectors map[string][]float32 // point_id -> vector, stands in for the HNSW graph
	IDMap   map[string]string    // point_id -> file_path
}

// Lexical is the loaded full-text searcher.
type Lexical struct {
	Documents map[string]string // point_id -> text
}

// CleanScope selects what a clean/clean_data call removes.
type CleanScope struct {
	All      bool
	FilePath string
}

// Store is the contract the Cache Entry and Temporal Indexer use to reach
// the on-disk index. Implementations must be safe for concurrent Query*
// calls; Upsert/Clean/CleanData are only ever called under the Cache
// Entry's mutation lock.
type Store interface {
	Load(ctx context.Context, repoPath string) (*Semantic, error)
	LoadFTS(ctx context.Context, repoPath string) (*Lexical, error)
	QuerySemantic(ctx context.Context, sem *Semantic, text string, limit int) ([]cidxtypes.QueryResult, error)
	QueryLexical(ctx context.Context, lex *Lexical, text string, limit int) ([]cidxtypes.QueryResult, error)
	Upsert(ctx context.Context, repoPath string, points []cidxtypes.Point) error
	Clean(ctx context.Context, repoPath string, scope CleanScope) error
	CleanData(ctx context.Context, repoPath string, scope CleanScope) error
}
