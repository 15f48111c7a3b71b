package indexstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsbattig/cidx/pkg/cidxtypes"
)

func TestLoadEmptyRepoReturnsEmptySemantic(t *testing.T) {
	store := NewJSONStore()
	repo := t.TempDir()

	sem, err := store.Load(context.Background(), repo)
	require.NoError(t, err)
	assert.Empty(t, sem.Vectors)
}

func TestLoadFTSUnavailableBeforeFirstIndex(t *testing.T) {
	store := NewJSONStore()
	repo := t.TempDir()

	_, err := store.LoadFTS(context.Background(), repo)
	assert.ErrorIs(t, err, ErrFTSUnavailable)
}

func TestUpsertThenLoadRoundTrip(t *testing.T) {
	store := NewJSONStore()
	repo := t.TempDir()
	ctx := context.Background()

	err := store.Upsert(ctx, repo, []cidxtypes.Point{
		{ID: "p1", FilePath: "a.go", Text: "package main func auth()", Vector: []float32{1, 0, 0}},
		{ID: "p2", FilePath: "b.go", Text: "unrelated content", Vector: []float32{0, 1, 0}},
	})
	require.NoError(t, err)

	sem, err := store.Load(ctx, repo)
	require.NoError(t, err)
	assert.Len(t, sem.Vectors, 2)

	lex, err := store.LoadFTS(ctx, repo)
	require.NoError(t, err)
	assert.Len(t, lex.Documents, 2)

	results, err := store.QueryLexical(ctx, lex, "auth", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "p1", results[0].PointID)
}

func TestCleanDataAllRemovesEverything(t *testing.T) {
	store := NewJSONStore()
	repo := t.TempDir()
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, repo, []cidxtypes.Point{
		{ID: "p1", FilePath: "a.go", Text: "hello", Vector: []float32{1}},
	}))
	require.NoError(t, store.CleanData(ctx, repo, CleanScope{All: true}))

	sem, err := store.Load(ctx, repo)
	require.NoError(t, err)
	assert.Empty(t, sem.Vectors)

	_, err = store.LoadFTS(ctx, repo)
	assert.ErrorIs(t, err, ErrFTSUnavailable)
}

func TestCleanDataByFilePath(t *testing.T) {
	store := NewJSONStore()
	repo := t.TempDir()
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, repo, []cidxtypes.Point{
		{ID: "p1", FilePath: "a.go", Text: "hello", Vector: []float32{1}},
		{ID: "p2", FilePath: "b.go", Text: "world", Vector: []float32{1}},
	}))
	require.NoError(t, store.CleanData(ctx, repo, CleanScope{FilePath: "a.go"}))

	sem, err := store.Load(ctx, repo)
	require.NoError(t, err)
	assert.Len(t, sem.Vectors, 1)
	assert.Equal(t, "b.go", sem.IDMap["p2"])
}
