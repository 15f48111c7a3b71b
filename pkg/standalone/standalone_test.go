package standalone

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
	"github.com/jsbattig/cidx/pkg/config"
	"github.com/jsbattig/cidx/pkg/rpcapi"
)

func setupRepo(t *testing.T) string {
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
	return dir
}

func TestStatusStandaloneReportsRunning(t *testing.T) {
	dir := setupRepo(t)
	resp, err := Status(context.Background(), config.Default(), dir)
	require.NoError(t, err)
	assert.Equal(t, "daemon", resp.Mode)
}

func TestIndexStandaloneProducesResult(t *testing.T) {
	dir := setupRepo(t)
	req := rpcapi.IndexRequest{RepoRequest: rpcapi.RepoRequest{RepoPath: dir}, Mode: cidxtypes.ModeCurrent}
	resp, err := Index(context.Background(), config.Default(), dir, req, func(cidxtypes.ProgressEvent) {})
	require.NoError(t, err)
	assert.Equal(t, "completed", resp.Status)
	assert.Equal(t, 1, resp.TotalCommits)
}
