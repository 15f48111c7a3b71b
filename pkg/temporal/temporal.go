// Package temporal implements the Temporal Indexer: the single
// index_commits call described in spec.md §4.6, orchestrating blob
// discovery, deduplication, commit/tree/branch persistence, and
// checkpointing.
package temporal

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"
	"time"

	"github.com/jsbattig/cidx/pkg/checkpoint"
	"github.com/jsbattig/cidx/pkg/cidxerr"
	"github.com/jsbattig/cidx/pkg/cidxtypes"
	"github.com/jsbattig/cidx/pkg/commitstore"
	"github.com/jsbattig/cidx/pkg/gitscan"
	"github.com/jsbattig/cidx/pkg/historicalblob"
	"github.com/jsbattig/cidx/pkg/indexstore"
	"github.com/jsbattig/cidx/pkg/log"
	"github.com/jsbattig/cidx/pkg/metrics"
	"github.com/jsbattig/cidx/pkg/registry"
	"github.com/jsbattig/cidx/pkg/vcm"
)

// Options configures one index_commits run.
type Options struct {
	BranchStrategy cidxtypes.IndexingMode
	BranchPatterns []string
	MaxCommits     int
	SinceUnix      int64
	Resume         bool

	CheckpointInterval int // default 1000
	Workers            int64

	Callback func(cidxtypes.ProgressEvent)
}

// Result summarizes a completed or interrupted run.
type Result struct {
	TotalCommits       int
	NewBlobsIndexed    int
	TotalUniqueBlobs   int
	DeduplicationRatio float64
	Partial            bool
}

// Indexer drives index_commits against one repository's stores.
type Indexer struct {
	repo      *gitscan.Repo
	repoPath  string
	store     indexstore.Store
	reg       *registry.Registry
	commits   *commitstore.Store
	cp        *checkpoint.Store
	manager   *vcm.Manager
}

// New constructs an Indexer wired to the given stores.
func New(repo *gitscan.Repo, repoPath string, store indexstore.Store, reg *registry.Registry, commits *commitstore.Store, cp *checkpoint.Store, manager *vcm.Manager) *Indexer {
	return &Indexer{repo: repo, repoPath: repoPath, store: store, reg: reg, commits: commits, cp: cp, manager: manager}
}

// CostEstimate computes the read-only estimate for an all/patterns run,
// informed by an assumed deduplication rate, per spec.md §4.6.
func (idx *Indexer) CostEstimate(ctx context.Context, strategy cidxtypes.IndexingMode, patterns []string) (cidxtypes.CostEstimate, error) {
	commits, err := idx.discoverCommits(strategy, patterns, 0, 0)
	if err != nil {
		return cidxtypes.CostEstimate{}, err
	}

	total, err := idx.commits.TotalCommits(ctx)
	if err != nil {
		return cidxtypes.CostEstimate{}, err
	}
	additional := len(commits) - total
	if additional < 0 {
		additional = 0
	}

	const assumedDedupRate = 0.6
	const avgBlobsPerCommit = 3
	const avgBlobBytes = 2048
	const costPerThousandBlobsUSD = 0.02

	estimatedBlobs := additional * avgBlobsPerCommit
	estimatedNew := int(float64(estimatedBlobs) * (1 - assumedDedupRate))

	return cidxtypes.CostEstimate{
		AdditionalCommits:     additional,
		EstimatedNewBlobs:     estimatedNew,
		EstimatedStorageBytes: int64(estimatedNew) * avgBlobBytes,
		EstimatedCostUSD:      float64(estimatedNew) / 1000 * costPerThousandBlobsUSD,
	}, nil
}

func (idx *Indexer) discoverCommits(strategy cidxtypes.IndexingMode, patterns []string, sinceUnix int64, maxCommits int) ([]cidxtypes.Commit, error) {
	switch strategy {
	case cidxtypes.ModeCurrent:
		return idx.repo.ListCommits(false, sinceUnix, maxCommits)
	case cidxtypes.ModeAll:
		return idx.repo.ListCommits(true, sinceUnix, maxCommits)
	case cidxtypes.ModePatterns:
		all, err := idx.repo.ListBranches()
		if err != nil {
			return nil, err
		}
		var matched []string
		for _, b := range all {
			for _, pattern := range patterns {
				if ok, _ := path.Match(pattern, b); ok {
					matched = append(matched, b)
					break
				}
			}
		}
		if len(matched) == 0 {
			return nil, cidxerr.New(cidxerr.NoMatchingBranches,
				fmt.Sprintf("no branch matches patterns %v; available: %v", patterns, all))
		}
		return idx.repo.ListCommits(true, sinceUnix, maxCommits)
	default:
		return nil, fmt.Errorf("temporal: unknown branch strategy %q", strategy)
	}
}

// IndexCommits runs the full algorithm from spec.md §4.6.
func (idx *Indexer) IndexCommits(ctx context.Context, opts Options) (Result, error) {
	if opts.CheckpointInterval <= 0 {
		opts.CheckpointInterval = 1000
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.TemporalRunDuration)

	logger := log.WithComponent("temporal")

	if err := idx.warmUpBlobRegistry(ctx); err != nil {
		return Result{}, fmt.Errorf("temporal: blob registry warm-up: %w", err)
	}

	commits, err := idx.discoverCommits(opts.BranchStrategy, opts.BranchPatterns, opts.SinceUnix, opts.MaxCommits)
	if err != nil {
		return Result{}, err
	}
	if len(commits) == 0 {
		return Result{TotalCommits: 0}, nil
	}

	startIdx, err := idx.resumePosition(ctx, commits, opts.Resume)
	if err != nil {
		return Result{}, err
	}

	processor := historicalblob.New(idx.repo, idx.repoPath, idx.manager, idx.store, idx.reg, opts.Workers)

	var newBlobs, totalSeen, processedCount int
	identity, err := idx.repo.IdentityHash()
	if err != nil {
		return Result{}, err
	}

	var partial bool
	for i := startIdx; i < len(commits); i++ {
		select {
		case <-ctx.Done():
			partial = true
		default:
		}
		if partial {
			break
		}

		commit := commits[i]
		if err := idx.processCommit(ctx, commit, opts, processor, &newBlobs, &totalSeen); err != nil {
			logger.Warn().Str("commit", commit.Hash).Err(err).Msg("skipping commit after processing error")
			continue
		}
		processedCount++
		metrics.TemporalCommitsProcessed.Inc()

		if opts.Callback != nil {
			opts.Callback(cidxtypes.ProgressEvent{Current: i + 1, Total: len(commits), Path: commit.Hash, Info: "indexed"})
		}

		if (i+1)%opts.CheckpointInterval == 0 {
			if err := idx.cp.WriteCheckpoint(cidxtypes.Checkpoint{
				Version:          1,
				Timestamp:        time.Now(),
				LastCommit:       commit.Hash,
				CommitsProcessed: i + 1,
				TotalBlobs:       totalSeen,
				TotalVectors:     newBlobs,
				AllBranches:      opts.BranchStrategy == cidxtypes.ModeAll,
				RepoIdentityHash: identity,
			}); err != nil {
				return Result{}, err
			}
		}
	}

	if partial {
		return Result{TotalCommits: processedCount, NewBlobsIndexed: newBlobs, Partial: true}, nil
	}

	return idx.finalize(ctx, commits, processedCount, newBlobs, totalSeen, opts, identity)
}

func (idx *Indexer) processCommit(ctx context.Context, commit cidxtypes.Commit, opts Options, processor *historicalblob.Processor, newBlobs, totalSeen *int) error {
	blobs, err := idx.repo.ListBlobs(commit.Hash)
	if err != nil {
		return err
	}

	var newEntries []gitscan.BlobEntry
	hashes := make([]string, len(blobs))
	for i, b := range blobs {
		hashes[i] = b.BlobHash
	}
	known, err := idx.reg.HasMany(ctx, hashes)
	if err != nil {
		return err
	}
	for _, b := range blobs {
		if !known[b.BlobHash] {
			newEntries = append(newEntries, b)
		}
	}
	*totalSeen += len(blobs)
	metrics.TemporalBlobsDeduped.Add(float64(len(blobs) - len(newEntries)))

	if len(newEntries) > 0 {
		stats, err := processor.Process(ctx, commit, newEntries)
		if err != nil {
			return err
		}
		metrics.TemporalBlobsEmbedded.Add(float64(stats.BlobsProcessed))
		*newBlobs += stats.VectorsCreated
	}

	var trees []cidxtypes.TreeEntry
	for _, b := range blobs {
		trees = append(trees, cidxtypes.TreeEntry{CommitHash: commit.Hash, FilePath: b.FilePath, BlobHash: b.BlobHash, Size: b.Size})
	}

	branches, err := idx.branchRowsFor(commit, opts.BranchStrategy)
	if err != nil {
		return err
	}

	return idx.commits.WriteCommit(ctx, commit, trees, branches)
}

func (idx *Indexer) branchRowsFor(commit cidxtypes.Commit, strategy cidxtypes.IndexingMode) ([]cidxtypes.CommitBranchRow, error) {
	now := time.Now()
	if strategy != cidxtypes.ModeAll && strategy != cidxtypes.ModePatterns {
		current, err := idx.repo.CurrentBranch()
		if err != nil {
			return nil, err
		}
		return []cidxtypes.CommitBranchRow{{CommitHash: commit.Hash, BranchName: current, IsHead: true, IndexedAt: now}}, nil
	}

	branches, err := idx.repo.BranchesContaining(commit.Hash)
	if err != nil {
		return nil, err
	}
	current, _ := idx.repo.CurrentBranch()
	rows := make([]cidxtypes.CommitBranchRow, 0, len(branches))
	for _, b := range branches {
		rows = append(rows, cidxtypes.CommitBranchRow{
			CommitHash: commit.Hash,
			BranchName: b,
			IsHead:     b == current,
			IndexedAt:  now,
		})
	}
	return rows, nil
}

func (idx *Indexer) warmUpBlobRegistry(ctx context.Context) error {
	// No backfill is done: vectors already in the Index Store that were
	// never registered stay absent from the Blob Registry. Blobs are
	// registered only by the Historical Blob Processor as it upserts them.
	return nil
}

func (idx *Indexer) resumePosition(ctx context.Context, commits []cidxtypes.Commit, resume bool) (int, error) {
	if !resume {
		return 0, nil
	}
	cp, err := idx.cp.ReadCheckpoint()
	if err != nil {
		return 0, err
	}
	if cp == nil {
		return 0, nil
	}

	identity, err := idx.repo.IdentityHash()
	if err != nil {
		return 0, err
	}
	if cp.RepoIdentityHash != identity {
		return 0, nil // checkpoint invalid for this repo; start from beginning
	}

	indexByHash := make(map[string]int, len(commits))
	for i, c := range commits {
		indexByHash[c.Hash] = i
	}

	if i, ok := indexByHash[cp.LastCommit]; ok {
		return i + 1, nil
	}

	// lastCommit no longer in the discovered set (rewritten history); walk
	// its ancestry looking for the nearest commit that is, per spec.md
	// §4.6 step 3.
	candidates := make(map[string]bool, len(commits))
	for _, c := range commits {
		candidates[c.Hash] = true
	}
	ancestor, err := idx.repo.FindCommonAncestorInReflog(cp.LastCommit, candidates)
	if err != nil {
		return 0, err
	}
	if ancestor == "" {
		return 0, nil
	}
	if i, ok := indexByHash[ancestor]; ok {
		return i + 1, nil
	}
	return 0, nil
}

func (idx *Indexer) finalize(ctx context.Context, commits []cidxtypes.Commit, processedCount, newBlobs, totalSeen int, opts Options, identity string) (Result, error) {
	dedupRatio := 0.0
	if totalSeen > 0 {
		dedupRatio = 1 - float64(newBlobs)/float64(totalSeen)
	}

	prevMeta, err := idx.cp.ReadMetadata()
	if err != nil {
		return Result{}, err
	}
	incremental := 0
	if prevMeta != nil {
		incremental = prevMeta.IncrementalUpdates + 1
	}

	lastCommit := ""
	if len(commits) > 0 {
		lastCommit = commits[len(commits)-1].Hash
	}

	var branches []string
	if opts.BranchStrategy == cidxtypes.ModeCurrent {
		if b, err := idx.repo.CurrentBranch(); err == nil {
			branches = []string{b}
		}
	} else {
		branches, _ = idx.repo.ListBranches()
	}

	if err := idx.cp.WriteMetadata(cidxtypes.TemporalMetadata{
		LastIndexedCommit:  lastCommit,
		IndexVersion:       1,
		TotalCommits:       processedCount,
		TotalUniqueBlobs:   totalSeen,
		DeduplicationRatio: dedupRatio,
		IndexingMode:       opts.BranchStrategy,
		IndexedBranches:    branches,
		LastUpdated:        time.Now(),
		IncrementalUpdates: incremental,
	}); err != nil {
		return Result{}, err
	}
	if err := idx.cp.DeleteCheckpoint(); err != nil {
		return Result{}, err
	}

	return Result{
		TotalCommits:       processedCount,
		NewBlobsIndexed:    newBlobs,
		TotalUniqueBlobs:   totalSeen,
		DeduplicationRatio: dedupRatio,
	}, nil
}

// identityHashOf returns the first 8 bytes of the SHA-256 of repoPath, hex
// encoded. It has no caller in this package and is not the fingerprint the
// Temporal Indexer stores, which comes from gitscan.Repo.IdentityHash.
func identityHashOf(repoPath string) string {
	sum := sha256.Sum256([]byte(repoPath))
	return hex.EncodeToString(sum[:8])
}
