package atomicfile

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestWriteJSONReadJSONRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "meta.json")

	in := sample{Name: "repo", Count: 42}
	require.NoError(t, WriteJSON(path, in))

	var out sample
	require.NoError(t, ReadJSON(path, &out))
	assert.Equal(t, in, out)
}

func TestWriteJSONOverwritesAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "checkpoint.json")

	require.NoError(t, WriteJSON(path, sample{Name: "a", Count: 1}))
	require.NoError(t, WriteJSON(path, sample{Name: "b", Count: 2}))

	var out sample
	require.NoError(t, ReadJSON(path, &out))
	assert.Equal(t, sample{Name: "b", Count: 2}, out)

	entries, err := filepathGlobTmp(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "no leftover temp files")
}

func filepathGlobTmp(dir string) ([]string, error) {
	return filepath.Glob(filepath.Join(dir, ".tmp-*"))
}

func TestRemoveMissingIsNoop(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, Remove(filepath.Join(dir, "absent.json")))
}

func TestExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "checkpoint.json")
	assert.False(t, Exists(path))
	require.NoError(t, WriteJSON(path, sample{Name: "x"}))
	assert.True(t, Exists(path))
	require.NoError(t, Remove(path))
	assert.False(t, Exists(path))
}
