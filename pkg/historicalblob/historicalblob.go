// Package historicalblob implements the Historical Blob Processor: for a
// list of new blobs within one commit, read content, chunk, submit to the
// Vector Calculation Manager, upsert vectors, and register in the Blob
// Registry, all bounded by a worker pool, per spec.md §4.7.
package historicalblob

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/google/uuid"

	"github.com/jsbattig/cidx/pkg/chunker"
	"github.com/jsbattig/cidx/pkg/cidxtypes"
	"github.com/jsbattig/cidx/pkg/gitscan"
	"github.com/jsbattig/cidx/pkg/indexstore"
	"github.com/jsbattig/cidx/pkg/registry"
	"github.com/jsbattig/cidx/pkg/vcm"
)

// Stats is the per-invocation result, per spec.md §4.7.
type Stats struct {
	BlobsProcessed int
	VectorsCreated int
	FailedBlobs    int
}

// Processor owns the bounded worker pool.
type Processor struct {
	repo       *gitscan.Repo
	manager    *vcm.Manager
	store      indexstore.Store
	reg        *registry.Registry
	workers    int64
	chunkOpts  chunker.Options
	repoPath   string
}

// New creates a Processor. workers bounds parallelism; <=0 defaults to 4.
func New(repo *gitscan.Repo, repoPath string, manager *vcm.Manager, store indexstore.Store, reg *registry.Registry, workers int64) *Processor {
	if workers <= 0 {
		workers = 4
	}
	return &Processor{repo: repo, repoPath: repoPath, manager: manager, store: store, reg: reg, workers: workers, chunkOpts: chunker.DefaultOptions()}
}

// Process reads, chunks, embeds, and upserts blobs for one commit. Stops
// early on cancellation without failing already-processed blobs.
func (p *Processor) Process(ctx context.Context, commit cidxtypes.Commit, blobs []gitscan.BlobEntry) (Stats, error) {
	var stats Stats
	if len(blobs) == 0 {
		return stats, nil
	}

	group, gctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(p.workers)

	type outcome struct {
		processed int
		vectors   int
		failed    int
	}
	results := make([]outcome, len(blobs))

	for i, b := range blobs {
		i, b := i, b
		if err := sem.Acquire(gctx, 1); err != nil {
			break // context cancelled; stop dispatching new work
		}
		group.Go(func() error {
			defer sem.Release(1)
			n, err := p.processOne(gctx, commit, b)
			if err != nil {
				results[i].failed = 1
				return nil // one blob's failure doesn't abort the others
			}
			results[i].processed = 1
			results[i].vectors = n
			return nil
		})
	}
	_ = group.Wait()

	for _, r := range results {
		stats.BlobsProcessed += r.processed
		stats.VectorsCreated += r.vectors
		stats.FailedBlobs += r.failed
	}
	return stats, nil
}

func (p *Processor) processOne(ctx context.Context, commit cidxtypes.Commit, blob gitscan.BlobEntry) (int, error) {
	content, err := p.repo.ReadBlob(blob.BlobHash)
	if err != nil {
		return 0, err
	}

	chunks := chunker.ChunkText(string(content), p.chunkOpts)
	if len(chunks) == 0 {
		return 0, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	futures, err := p.manager.SubmitChunks(ctx, texts)
	if err != nil {
		return 0, err
	}

	var points []cidxtypes.Point
	var regRows []cidxtypes.BlobRegistryRow
	for i, f := range futures {
		result := <-f
		if result.Err != nil {
			continue // chunk_too_large or embedding failure: skip, per spec.md §4.6
		}
		pointID := uuid.NewString()
		points = append(points, cidxtypes.Point{
			ID:         pointID,
			Vector:     result.Vector,
			BlobHash:   blob.BlobHash,
			FilePath:   blob.FilePath,
			CommitHash: commit.Hash,
			ChunkIndex: i,
			Text:       texts[i],
		})
		regRows = append(regRows, cidxtypes.BlobRegistryRow{BlobHash: blob.BlobHash, PointID: pointID})
	}

	if len(points) == 0 {
		return 0, nil
	}
	if err := p.store.Upsert(ctx, p.repoPath, points); err != nil {
		return 0, err
	}
	if err := p.reg.RegisterMany(ctx, regRows); err != nil {
		return 0, err
	}
	return len(points), nil
}
