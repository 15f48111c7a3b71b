// Package chunker splits text into semantically sized pieces for
// embedding. It is a stand-in for the out-of-scope production chunker
// referenced in spec.md §1/§2: simple, but it honors the same contract
// (file-path and in-memory-text inputs, bounded chunk size).
package chunker

import "strings"

// Chunk is one piece of chunked text.
type Chunk struct {
	Text  string
	Index int
}

// Options controls chunk sizing.
type Options struct {
	MaxLines int // lines per chunk; default 60
	Overlap  int // lines of overlap between consecutive chunks; default 5
}

// DefaultOptions returns sane chunking defaults.
func DefaultOptions() Options {
	return Options{MaxLines: 60, Overlap: 5}
}

// ChunkText splits text into overlapping line-bounded chunks.
func ChunkText(text string, opts Options) []Chunk {
	if opts.MaxLines <= 0 {
		opts = DefaultOptions()
	}
	lines := strings.Split(text, "\n")
	if len(lines) == 0 {
		return nil
	}
	var chunks []Chunk
	step := opts.MaxLines - opts.Overlap
	if step <= 0 {
		step = opts.MaxLines
	}
	for start := 0; start < len(lines); start += step {
		end := start + opts.MaxLines
		if end > len(lines) {
			end = len(lines)
		}
		chunkText := strings.Join(lines[start:end], "\n")
		if strings.TrimSpace(chunkText) != "" {
			chunks = append(chunks, Chunk{Text: chunkText, Index: len(chunks)})
		}
		if end == len(lines) {
			break
		}
	}
	return chunks
}

// FileReader is how ChunkFile reads a file's content before chunking it the
// same way ChunkText does. Kept separate from ChunkText so callers needing
// file metadata (size, mtime) can layer that on without changing the
// in-memory-text path.
type FileReader interface {
	ReadFile(path string) ([]byte, error)
}

// ChunkFile splits the content at path using r to read it.
func ChunkFile(r FileReader, path string, opts Options) ([]Chunk, error) {
	data, err := r.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ChunkText(string(data), opts), nil
}
