// Package embedding defines the Embedding Provider contract: an opaque
// external collaborator per spec.md §1/§2 that turns a batch of text chunks
// into fixed-length vectors, subject to a provider-imposed per-batch token
// cap. The Vector Calculation Manager (pkg/vcm) is the only caller.
package embedding

import (
	"context"

	"github.com/jsbattig/cidx/pkg/cidxerr"
)

// Provider embeds a batch of texts into vectors, one per input, in order.
type Provider interface {
	// Embed returns one vector per text, in the same order as texts.
	// Implementations classify failures as cidxerr.EmbeddingTransient
	// (retryable at the batch level) or cidxerr.EmbeddingFatal.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// MaxBatchTokens is the provider-imposed cap the token-aware packer
	// in pkg/vcm must never exceed for a single Embed call.
	MaxBatchTokens() int

	// Dimensions reports the vector length Embed produces.
	Dimensions() int
}

// TokenCounter estimates the token cost of a string. A pluggable interface
// so pkg/vcm's packer doesn't depend on any particular tokenizer.
type TokenCounter interface {
	Count(text string) int
}

// WhitespaceTokenCounter is the default TokenCounter: a word-count heuristic
// good enough to pack batches without pulling in a tokenizer dependency,
// since the tokenizer itself is out of scope per spec.md §1.
type WhitespaceTokenCounter struct{}

// Count implements TokenCounter as words + words/3 (integer division, about
// 1.33 tokens per word), a rule-of-thumb ratio between words and subword
// tokens.
func (WhitespaceTokenCounter) Count(text string) int {
	n := 0
	inWord := false
	for _, r := range text {
		if r == ' ' || r == '\n' || r == '\t' {
			inWord = false
			continue
		}
		if !inWord {
			n++
			inWord = true
		}
	}
	return n + n/3
}

// HashProvider is a deterministic, dependency-free Provider used in tests
// and standalone fallback mode: a call fails only when its context is
// already cancelled, vectors are derived
// from a character sum so identical text always embeds identically.
type HashProvider struct {
	Dims     int
	BatchCap int
}

// NewHashProvider returns a HashProvider with the given dimensions and
// per-batch token cap (the spec's example constant is 120,000).
func NewHashProvider(dims, batchCap int) *HashProvider {
	if dims <= 0 {
		dims = 32
	}
	if batchCap <= 0 {
		batchCap = 120000
	}
	return &HashProvider{Dims: dims, BatchCap: batchCap}
}

func (p *HashProvider) MaxBatchTokens() int { return p.BatchCap }
func (p *HashProvider) Dimensions() int     { return p.Dims }

// Embed implements Provider.
func (p *HashProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	select {
	case <-ctx.Done():
		return nil, cidxerr.Wrap(cidxerr.Cancelled, "embed cancelled", ctx.Err())
	default:
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, p.Dims)
		for j, r := range text {
			vec[j%p.Dims] += float32(r)
		}
		out[i] = vec
	}
	return out, nil
}
