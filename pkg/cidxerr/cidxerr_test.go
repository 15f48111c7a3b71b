package cidxerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindRetryable(t *testing.T) {
	assert.True(t, EmbeddingTransient.Retryable())
	assert.True(t, Timeout.Retryable())
	assert.False(t, WrongRepository.Retryable())
	assert.False(t, StorageError.Retryable())
}

func TestErrorIsMatchesKind(t *testing.T) {
	err := New(StorageError, "disk full")
	target := New(StorageError, "")
	assert.True(t, errors.Is(err, target))

	other := New(WrongRepository, "")
	assert.False(t, errors.Is(err, other))
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("ENOSPC")
	err := Wrap(StorageError, "write failed", cause)
	require.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "ENOSPC")
}

func TestKindOf(t *testing.T) {
	k, ok := KindOf(New(ChunkTooLarge, "too big"))
	require.True(t, ok)
	assert.Equal(t, ChunkTooLarge, k)

	_, ok = KindOf(errors.New("plain"))
	assert.False(t, ok)
}

func TestIsHelper(t *testing.T) {
	err := Wrap(EmbeddingFatal, "provider down", errors.New("503"))
	assert.True(t, Is(err, EmbeddingFatal))
	assert.False(t, Is(err, EmbeddingTransient))
}
