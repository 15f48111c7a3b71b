package chunker

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeLines(n int) string {
	lines := make([]string, n)
	for i := range lines {
		lines[i] = "line " + strconv.Itoa(i)
	}
	return strings.Join(lines, "\n")
}

func TestChunkTextSingleChunkWhenShort(t *testing.T) {
	chunks := ChunkText("a\nb\nc", DefaultOptions())
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Index)
}

func TestChunkTextSplitsLongInput(t *testing.T) {
	text := makeLines(200)
	chunks := ChunkText(text, Options{MaxLines: 60, Overlap: 5})
	require.Greater(t, len(chunks), 1)
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
	}
}

func TestChunkTextEmptyInput(t *testing.T) {
	chunks := ChunkText("", DefaultOptions())
	assert.Empty(t, chunks)
}

func TestChunkTextSkipsBlankOnlyChunks(t *testing.T) {
	chunks := ChunkText("   \n\n  ", DefaultOptions())
	assert.Empty(t, chunks)
}
