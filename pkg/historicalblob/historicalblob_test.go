package historicalblob

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsbattig/cidx/pkg/cidxtypes"
	"github.com/jsbattig/cidx/pkg/embedding"
	"github.com/jsbattig/cidx/pkg/gitscan"
	"github.com/jsbattig/cidx/pkg/indexstore"
	"github.com/jsbattig/cidx/pkg/registry"
	"github.com/jsbattig/cidx/pkg/vcm"
)

func setupRepoWithOneCommit(t *testing.T) (*gitscan.Repo, string, cidxtypes.Commit) {
	t.Helper()
	dir := t.TempDir()
	raw, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	wt, err := raw.Worktree()
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.go"), []byte("package main\n\nfunc main() {}\n"), 0o644))
	_, err = wt.Add("a.go")
	require.NoError(t, err)
	sig := &object.Signature{Name: "t", Email: "t@example.com", When: time.Now()}
	hash, err := wt.Commit("initial", &git.CommitOptions{Author: sig})
	require.NoError(t, err)

	repo, err := gitscan.Open(dir)
	require.NoError(t, err)
	return repo, dir, cidxtypes.Commit{Hash: hash.String(), Timestamp: sig.When}
}

func TestProcessEmbedsAndRegistersNewBlobs(t *testing.T) {
	repo, dir, commit := setupRepoWithOneCommit(t)
	blobs, err := repo.ListBlobs(commit.Hash)
	require.NoError(t, err)
	require.Len(t, blobs, 1)

	reg := openRegistry(t)
	store := indexstore.NewJSONStore()
	manager := vcm.New(embedding.NewHashProvider(16, 120000), vcm.Options{})
	p := New(repo, dir, manager, store, reg, 2)

	stats, err := p.Process(context.Background(), commit, blobs)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.BlobsProcessed)
	assert.Greater(t, stats.VectorsCreated, 0)
	assert.Equal(t, 0, stats.FailedBlobs)

	has, err := reg.Has(context.Background(), blobs[0].BlobHash)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestProcessEmptyBlobListIsNoop(t *testing.T) {
	repo, dir, commit := setupRepoWithOneCommit(t)
	reg := openRegistry(t)
	store := indexstore.NewJSONStore()
	manager := vcm.New(embedding.NewHashProvider(16, 120000), vcm.Options{})
	p := New(repo, dir, manager, store, reg, 2)

	stats, err := p.Process(context.Background(), commit, nil)
	require.NoError(t, err)
	assert.Equal(t, Stats{}, stats)
}

func openRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	dir := t.TempDir()
	r, err := registry.Open(filepath.Join(dir, "blob_registry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}
