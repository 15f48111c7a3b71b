// Package checkpoint manages the Temporal Indexer's file-backed
// checkpoint.json and temporal_meta.json, both written atomically
// (temp + rename) per spec.md §3/§5. checkpoint.json is present only during
// an active index_commits run; temporal_meta.json persists across runs.
package checkpoint

import (
	"os"
	"path/filepath"

	"github.com/jsbattig/cidx/pkg/atomicfile"
	"github.com/jsbattig/cidx/pkg/cidxtypes"
	"github.com/jsbattig/cidx/pkg/metrics"
)

// Store manages checkpoint.json and temporal_meta.json under dir
// (<repo>/.code-indexer/index/temporal/).
type Store struct {
	dir string
}

// New returns a Store rooted at dir, creating it if absent.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Store{dir: dir}, nil
}

func (s *Store) checkpointPath() string { return filepath.Join(s.dir, "checkpoint.json") }
func (s *Store) metadataPath() string   { return filepath.Join(s.dir, "temporal_meta.json") }

// WriteCheckpoint atomically writes cp, replacing any prior checkpoint.
func (s *Store) WriteCheckpoint(cp cidxtypes.Checkpoint) error {
	if err := atomicfile.WriteJSON(s.checkpointPath(), cp); err != nil {
		return err
	}
	metrics.TemporalCheckpointsWritten.Inc()
	return nil
}

// ReadCheckpoint returns the current checkpoint, or (nil, nil) if absent.
func (s *Store) ReadCheckpoint() (*cidxtypes.Checkpoint, error) {
	if !atomicfile.Exists(s.checkpointPath()) {
		return nil, nil
	}
	var cp cidxtypes.Checkpoint
	if err := atomicfile.ReadJSON(s.checkpointPath(), &cp); err != nil {
		// Corruption is treated as absent per spec.md §4.6's error handling.
		return nil, nil
	}
	return &cp, nil
}

// DeleteCheckpoint removes checkpoint.json; called on successful completion.
func (s *Store) DeleteCheckpoint() error {
	return atomicfile.Remove(s.checkpointPath())
}

// HasCheckpoint reports whether a checkpoint is currently present.
func (s *Store) HasCheckpoint() bool {
	return atomicfile.Exists(s.checkpointPath())
}

// WriteMetadata atomically writes the finalization summary.
func (s *Store) WriteMetadata(meta cidxtypes.TemporalMetadata) error {
	return atomicfile.WriteJSON(s.metadataPath(), meta)
}

// ReadMetadata returns the last finalized metadata, or (nil, nil) if none
// exists yet (first run).
func (s *Store) ReadMetadata() (*cidxtypes.TemporalMetadata, error) {
	if !atomicfile.Exists(s.metadataPath()) {
		return nil, nil
	}
	var meta cidxtypes.TemporalMetadata
	if err := atomicfile.ReadJSON(s.metadataPath(), &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}
