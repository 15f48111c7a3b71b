package registry

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsbattig/cidx/pkg/cidxtypes"
)

func openTestRegistry(t *testing.T) *Registry {
	t.Helper()
	dir := t.TempDir()
	r, err := Open(filepath.Join(dir, "blob_registry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestHasFalseForUnknownBlob(t *testing.T) {
	r := openTestRegistry(t)
	has, err := r.Has(context.Background(), "deadbeef")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestRegisterThenHasIsIdempotent(t *testing.T) {
	r := openTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, r.Register(ctx, "abc123", "p1"))
	require.NoError(t, r.Register(ctx, "abc123", "p1")) // re-register, no error

	has, err := r.Has(ctx, "abc123")
	require.NoError(t, err)
	assert.True(t, has)

	count, err := r.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestHasManyPartitions(t *testing.T) {
	r := openTestRegistry(t)
	ctx := context.Background()
	require.NoError(t, r.Register(ctx, "known", "p1"))

	result, err := r.HasMany(ctx, []string{"known", "unknown"})
	require.NoError(t, err)
	assert.True(t, result["known"])
	assert.False(t, result["unknown"])
}

func TestRegisterManyIsAtomicAndIdempotent(t *testing.T) {
	r := openTestRegistry(t)
	ctx := context.Background()

	rows := []cidxtypes.BlobRegistryRow{
		{BlobHash: "h1", PointID: "p1"},
		{BlobHash: "h1", PointID: "p2"},
		{BlobHash: "h2", PointID: "p3"},
	}
	require.NoError(t, r.RegisterMany(ctx, rows))
	require.NoError(t, r.RegisterMany(ctx, rows)) // idempotent re-run

	count, err := r.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
