// Package vcm implements the Vector Calculation Manager: a bounded worker
// pool and token-aware batch packer in front of an embedding.Provider, per
// spec.md §4.5. Futures preserve input order regardless of which sub-batch
// completes first.
package vcm

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/jsbattig/cidx/pkg/cidxerr"
	"github.com/jsbattig/cidx/pkg/embedding"
	"github.com/jsbattig/cidx/pkg/metrics"
)

// embedRetryDelays bounds the batch-level retry spec.md §4.1/§7 require for
// cidxerr.EmbeddingTransient failures; EmbeddingFatal is never retried.
var embedRetryDelays = []time.Duration{100 * time.Millisecond, 500 * time.Millisecond, 1 * time.Second}

// Result is a resolved future: either a vector or an error.
type Result struct {
	Vector []float32
	Err    error
}

// Future is a channel that yields exactly one Result.
type Future <-chan Result

// Manager owns the worker pool and packer.
type Manager struct {
	provider    embedding.Provider
	counter     embedding.TokenCounter
	concurrency int64
}

// Options configures a Manager.
type Options struct {
	Concurrency  int64 // default 4
	TokenCounter embedding.TokenCounter
}

// New creates a Manager over provider.
func New(provider embedding.Provider, opts Options) *Manager {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.TokenCounter == nil {
		opts.TokenCounter = embedding.WhitespaceTokenCounter{}
	}
	return &Manager{provider: provider, counter: opts.TokenCounter, concurrency: opts.Concurrency}
}

// SubmitChunks packs texts into sub-batches bounded by the provider's token
// cap, dispatches them across a bounded worker pool, and returns one future
// per input text in input order.
func (m *Manager) SubmitChunks(ctx context.Context, texts []string) ([]Future, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	tokenCap := m.provider.MaxBatchTokens()
	batches, oversized := pack(texts, m.counter, tokenCap)

	channels := make([]chan Result, len(texts))
	for i := range channels {
		channels[i] = make(chan Result, 1)
	}

	for _, it := range oversized {
		channels[it.index] <- Result{Err: cidxerr.ErrChunkTooLarge}
		close(channels[it.index])
		metrics.ChunksTooLargeTotal.Inc()
	}

	group, gctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(m.concurrency)

	for _, b := range batches {
		b := b
		if err := sem.Acquire(gctx, 1); err != nil {
			// Context already cancelled before dispatch; resolve this
			// batch's futures with the cancellation and move on.
			m.resolveCancelled(channels, b)
			continue
		}
		group.Go(func() error {
			defer sem.Release(1)
			return m.runBatch(gctx, channels, b)
		})
	}

	futures := make([]Future, len(texts))
	for i, ch := range channels {
		futures[i] = ch
	}

	// Errors from individual batches are delivered via their futures, not
	// the group error; Wait only surfaces unexpected panics/cancellation
	// bookkeeping so callers don't need to inspect it directly.
	go func() {
		_ = group.Wait()
	}()

	return futures, nil
}

func (m *Manager) resolveCancelled(channels []chan Result, b batch) {
	for _, it := range b.items {
		channels[it.index] <- Result{Err: cidxerr.ErrCancelled}
		close(channels[it.index])
	}
}

func (m *Manager) runBatch(ctx context.Context, channels []chan Result, b batch) error {
	texts := make([]string, len(b.items))
	for i, it := range b.items {
		texts[i] = it.text
	}

	var vectors [][]float32
	var err error
	for attempt := 0; ; attempt++ {
		timer := metrics.NewTimer()
		vectors, err = m.provider.Embed(ctx, texts)
		timer.ObserveDuration(metrics.EmbeddingBatchDuration)
		if err == nil {
			break
		}

		kind, ok := cidxerr.KindOf(err)
		if !ok || kind != cidxerr.EmbeddingTransient || attempt >= len(embedRetryDelays) {
			outcome := "fatal"
			if ok && kind == cidxerr.EmbeddingTransient {
				outcome = "transient"
			}
			metrics.EmbeddingBatchesTotal.WithLabelValues(outcome).Inc()
			for _, it := range b.items {
				channels[it.index] <- Result{Err: err}
				close(channels[it.index])
			}
			return nil
		}

		select {
		case <-ctx.Done():
			for _, it := range b.items {
				channels[it.index] <- Result{Err: cidxerr.ErrCancelled}
				close(channels[it.index])
			}
			return nil
		case <-time.After(embedRetryDelays[attempt]):
		}
	}

	if len(vectors) != len(b.items) {
		err := fmt.Errorf("vcm: provider returned %d vectors for %d inputs", len(vectors), len(b.items))
		for _, it := range b.items {
			channels[it.index] <- Result{Err: err}
			close(channels[it.index])
		}
		return nil
	}

	metrics.EmbeddingBatchesTotal.WithLabelValues("ok").Inc()
	for i, it := range b.items {
		channels[it.index] <- Result{Vector: vectors[i]}
		close(channels[it.index])
	}
	return nil
}
