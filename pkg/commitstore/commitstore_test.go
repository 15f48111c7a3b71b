package commitstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsbattig/cidx/pkg/cidxtypes"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "commits.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestWriteCommitProducesTreesAndBranches(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	commit := cidxtypes.Commit{Hash: "h1", Timestamp: time.Now(), AuthorName: "a", Message: "m"}
	trees := []cidxtypes.TreeEntry{{CommitHash: "h1", FilePath: "a.go", BlobHash: "b1"}}
	branches := []cidxtypes.CommitBranchRow{{CommitHash: "h1", BranchName: "main", IsHead: true, IndexedAt: time.Now()}}

	require.NoError(t, s.WriteCommit(ctx, commit, trees, branches))

	has, err := s.HasCommit(ctx, "h1")
	require.NoError(t, err)
	assert.True(t, has)

	gotTrees, err := s.TreesForCommit(ctx, "h1")
	require.NoError(t, err)
	assert.Len(t, gotTrees, 1)

	gotBranches, err := s.BranchesForCommit(ctx, "h1")
	require.NoError(t, err)
	require.Len(t, gotBranches, 1)
	assert.True(t, gotBranches[0].IsHead)
}

func TestWriteCommitIdempotentReplace(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	commit := cidxtypes.Commit{Hash: "h1", Timestamp: time.Now(), Message: "first"}

	require.NoError(t, s.WriteCommit(ctx, commit, nil, nil))
	commit.Message = "second"
	require.NoError(t, s.WriteCommit(ctx, commit, nil, nil))

	total, err := s.TotalCommits(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestLatestCommitEmptyStore(t *testing.T) {
	s := openTestStore(t)
	hash, err := s.LatestCommit(context.Background())
	require.NoError(t, err)
	assert.Empty(t, hash)
}
