package daemon

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

	"github.com/jsbattig/cidx/pkg/cidxerr"
	"github.com/jsbattig/cidx/pkg/cidxtypes"
	"github.com/jsbattig/cidx/pkg/config"
	"github.com/jsbattig/cidx/pkg/rpcapi"
)

func setupDaemon(t *testing.T) (*Daemon, string) {
	t.Helper()
	dir := t.TempDir()
	raw, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	wt, err := raw.Worktree()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.go"), []byte("package main\n"), 0o644))
	_, err = wt.Add("a.go")
	require.NoError(t, err)
	sig := &object.Signature{Name: "t", Email: "t@example.com", When: time.Now()}
	_, err = wt.Commit("initial", &git.CommitOptions{Author: sig})
	require.NoError(t, err)

	cfg := config.Default()
	d, err := New(cfg, dir)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d, dir
}

func TestGetStatusReportsRunning(t *testing.T) {
	d, _ := setupDaemon(t)
	st, err := d.GetStatus(context.Background())
	require.NoError(t, err)
	assert.True(t, st.Running)
}

func TestWrongRepositoryRejected(t *testing.T) {
	d, _ := setupDaemon(t)
	_, err := d.Query(context.Background(), rpcapi.QueryRequest{RepoRequest: rpcapi.RepoRequest{RepoPath: "/somewhere/else"}, Text: "x"})
	require.Error(t, err)
	assert.True(t, cidxerr.Is(err, cidxerr.WrongRepository))
}

func TestWatchStartThenStopRoundTrip(t *testing.T) {
	d, dir := setupDaemon(t)
	resp, err := d.WatchStart(context.Background(), rpcapi.WatchStartRequest{RepoRequest: rpcapi.RepoRequest{RepoPath: dir}}, func(cidxtypes.ProgressEvent) {})
	require.NoError(t, err)
	assert.Equal(t, "started", resp.Status)

	again, err := d.WatchStart(context.Background(), rpcapi.WatchStartRequest{RepoRequest: rpcapi.RepoRequest{RepoPath: dir}}, func(cidxtypes.ProgressEvent) {})
	require.NoError(t, err)
	assert.Equal(t, "already_running", again.Status)

	stop, err := d.WatchStop(context.Background(), rpcapi.RepoRequest{RepoPath: dir})
	require.NoError(t, err)
	assert.Equal(t, "stopped", stop.Status)
	assert.Equal(t, 0, stop.UpdatesApplied)
}

func TestIndexRejectedWhileWatchActive(t *testing.T) {
	d, dir := setupDaemon(t)
	_, err := d.WatchStart(context.Background(), rpcapi.WatchStartRequest{RepoRequest: rpcapi.RepoRequest{RepoPath: dir}}, func(cidxtypes.ProgressEvent) {})
	require.NoError(t, err)
	defer d.WatchStop(context.Background(), rpcapi.RepoRequest{RepoPath: dir})

	_, err = d.Index(context.Background(), rpcapi.IndexRequest{
		RepoRequest: rpcapi.RepoRequest{RepoPath: dir},
		Mode:        cidxtypes.ModeCurrent,
	}, func(cidxtypes.ProgressEvent) {})
	require.Error(t, err)
	assert.True(t, cidxerr.Is(err, cidxerr.WatchActive))
}

func TestIndexThenQueryFindsIndexedContent(t *testing.T) {
	d, dir := setupDaemon(t)
	_, err := d.Index(context.Background(), rpcapi.IndexRequest{
		RepoRequest: rpcapi.RepoRequest{RepoPath: dir},
		Mode:        cidxtypes.ModeCurrent,
	}, func(cidxtypes.ProgressEvent) {})
	require.NoError(t, err)

	resp, err := d.Query(context.Background(), rpcapi.QueryRequest{RepoRequest: rpcapi.RepoRequest{RepoPath: dir}, Text: "main", Limit: 5})
	require.NoError(t, err)
	assert.NotNil(t, resp.Results)
}

func TestClearCacheDropsSlotsWithoutTouchingDisk(t *testing.T) {
	d, _ := setupDaemon(t)
	resp, err := d.ClearCache(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "cleared", resp.Status)
}

func TestShutdownStopsWatchAndClearsCache(t *testing.T) {
	d, dir := setupDaemon(t)
	_, err := d.WatchStart(context.Background(), rpcapi.WatchStartRequest{RepoRequest: rpcapi.RepoRequest{RepoPath: dir}}, func(cidxtypes.ProgressEvent) {})
	require.NoError(t, err)

	resp, err := d.Shutdown(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "shutting_down", resp.Status)

	status, err := d.WatchStatus(context.Background())
	require.NoError(t, err)
	assert.False(t, status.Watching)
}
