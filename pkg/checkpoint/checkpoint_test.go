package checkpoint

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsbattig/cidx/pkg/cidxtypes"
)

func TestReadCheckpointAbsentReturnsNil(t *testing.T) {
	dir := t.TempDir()
	s, err := New(filepath.Join(dir, "temporal"))
	require.NoError(t, err)

	cp, err := s.ReadCheckpoint()
	require.NoError(t, err)
	assert.Nil(t, cp)
	assert.False(t, s.HasCheckpoint())
}

func TestWriteThenReadCheckpointRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := New(filepath.Join(dir, "temporal"))
	require.NoError(t, err)

	in := cidxtypes.Checkpoint{Version: 1, LastCommit: "h1", CommitsProcessed: 1000, Timestamp: time.Now()}
	require.NoError(t, s.WriteCheckpoint(in))
	assert.True(t, s.HasCheckpoint())

	out, err := s.ReadCheckpoint()
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, "h1", out.LastCommit)
}

func TestDeleteCheckpointOnCompletion(t *testing.T) {
	dir := t.TempDir()
	s, err := New(filepath.Join(dir, "temporal"))
	require.NoError(t, err)

	require.NoError(t, s.WriteCheckpoint(cidxtypes.Checkpoint{LastCommit: "h1"}))
	require.NoError(t, s.DeleteCheckpoint())
	assert.False(t, s.HasCheckpoint())
}

func TestCorruptCheckpointTreatedAsAbsent(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "temporal")
	s, err := New(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "checkpoint.json"), []byte("{not json"), 0o644))

	cp, err := s.ReadCheckpoint()
	require.NoError(t, err)
	assert.Nil(t, cp)
}

func TestMetadataRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := New(filepath.Join(dir, "temporal"))
	require.NoError(t, err)

	meta, err := s.ReadMetadata()
	require.NoError(t, err)
	assert.Nil(t, meta)

	require.NoError(t, s.WriteMetadata(cidxtypes.TemporalMetadata{TotalCommits: 10, LastUpdated: time.Now()}))
	meta, err = s.ReadMetadata()
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, 10, meta.TotalCommits)
}
