package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsbattig/cidx/pkg/cache"
	"github.com/jsbattig/cidx/pkg/embedding"
	"github.com/jsbattig/cidx/pkg/indexstore"
	"github.com/jsbattig/cidx/pkg/vcm"
)

func setupHandler(t *testing.T) (*Handler, string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git"), 0o755))

	store := indexstore.NewJSONStore()
	manager := vcm.New(embedding.NewHashProvider(16, 120000), vcm.Options{})
	entry := cache.New(30 * time.Minute)

	h := New(dir, manager, store, entry)
	return h, dir
}

func TestWatchStopWithoutEventsReportsZeroUpdates(t *testing.T) {
	h, _ := setupHandler(t)
	require.NoError(t, h.Start(context.Background()))

	result := h.Stop()
	assert.True(t, result.Stopped)
	assert.Equal(t, 0, result.UpdatesApplied)
	assert.Equal(t, 0, result.FilesProcessed)
}

func TestWatchProcessesFileChangeAndAppliesUpdate(t *testing.T) {
	h, dir := setupHandler(t)
	require.NoError(t, h.Start(context.Background()))

	path := filepath.Join(dir, "a.go")
	require.NoError(t, os.WriteFile(path, []byte("package main\n\nfunc main() {}\n"), 0o644))

	require.Eventually(t, func() bool {
		return h.Status().FilesProcessed > 0
	}, 3*time.Second, 20*time.Millisecond)

	result := h.Stop()
	assert.True(t, result.Stopped)
	assert.GreaterOrEqual(t, result.FilesProcessed, 1)
}

func TestWatchUpdateIsVisibleToAnAlreadyPopulatedCache(t *testing.T) {
	h, dir := setupHandler(t)
	ctx := context.Background()

	// Populate the semantic slot before any watch event arrives, simulating
	// a session mid-query, so the in-place merge -- not a reload -- is what
	// has to surface the update.
	err := h.entry.WithRead(ctx, func(context.Context) (*indexstore.Semantic, error) {
		return &indexstore.Semantic{Vectors: map[string][]float32{}, IDMap: map[string]string{}}, nil
	}, func(*indexstore.Semantic) error { return nil })
	require.NoError(t, err)

	require.NoError(t, h.Start(ctx))
	path := filepath.Join(dir, "a.go")
	require.NoError(t, os.WriteFile(path, []byte("package main\n\nfunc main() {}\n"), 0o644))

	require.Eventually(t, func() bool {
		return h.Status().FilesProcessed > 0
	}, 3*time.Second, 20*time.Millisecond)
	h.Stop()

	panicLoader := func(context.Context) (*indexstore.Semantic, error) {
		t.Fatal("slot was already populated; a reload should not have been triggered")
		return nil, nil
	}
	err = h.entry.WithRead(ctx, panicLoader, func(sem *indexstore.Semantic) error {
		assert.NotEmpty(t, sem.Vectors, "watch update should have merged directly into the cached slot")
		return nil
	})
	require.NoError(t, err)
}

func TestWatchSkipsGitDirectory(t *testing.T) {
	h, dir := setupHandler(t)
	require.NoError(t, h.Start(context.Background()))

	path := filepath.Join(dir, ".git", "ignored.txt")
	require.NoError(t, os.WriteFile(path, []byte("noise"), 0o644))
	time.Sleep(100 * time.Millisecond)

	result := h.Stop()
	assert.Equal(t, 0, result.FilesProcessed)
}
