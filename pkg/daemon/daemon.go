// Package daemon wires the Cache Entry, Index Store, Watch Handler, and
// Temporal Indexer into the single-repository service described by
// spec.md §4.1, exposing it through the pkg/rpcapi.Backend contract.
package daemon

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/jsbattig/cidx/pkg/cache"
	"github.com/jsbattig/cidx/pkg/checkpoint"
	"github.com/jsbattig/cidx/pkg/cidxerr"
	"github.com/jsbattig/cidx/pkg/cidxtypes"
	"github.com/jsbattig/cidx/pkg/commitstore"
	"github.com/jsbattig/cidx/pkg/config"
	"github.com/jsbattig/cidx/pkg/embedding"
	"github.com/jsbattig/cidx/pkg/gitscan"
	"github.com/jsbattig/cidx/pkg/indexstore"
	"github.com/jsbattig/cidx/pkg/log"
	"github.com/jsbattig/cidx/pkg/metrics"
	"github.com/jsbattig/cidx/pkg/registry"
	"github.com/jsbattig/cidx/pkg/rpcapi"
	"github.com/jsbattig/cidx/pkg/temporal"
	"github.com/jsbattig/cidx/pkg/vcm"
	"github.com/jsbattig/cidx/pkg/watch"
)

// Daemon is the single-repository service behind pkg/rpcapi's transport.
type Daemon struct {
	cfg      *config.Config
	repoRoot string

	store   indexstore.Store
	entry   *cache.Entry
	manager *vcm.Manager
	repo    *gitscan.Repo
	reg     *registry.Registry
	commits *commitstore.Store
	cp      *checkpoint.Store
	indexer *temporal.Indexer

	watchMu sync.Mutex
	watching *watch.Handler

	startedAt time.Time
	stopEvict chan struct{}
}

// New wires every collaborator for repoRoot per cfg. Callers should defer
// Close.
func New(cfg *config.Config, repoRoot string) (*Daemon, error) {
	absRoot, err := filepath.Abs(repoRoot)
	if err != nil {
		return nil, err
	}

	repo, err := gitscan.Open(absRoot)
	if err != nil {
		return nil, cidxerr.Wrap(cidxerr.StorageError, "open repository", err)
	}

	indexDir := filepath.Join(absRoot, ".code-indexer", "index")
	reg, err := registry.Open(filepath.Join(indexDir, "blob_registry.db"))
	if err != nil {
		return nil, cidxerr.Wrap(cidxerr.StorageError, "open blob registry", err)
	}
	commits, err := commitstore.Open(filepath.Join(indexDir, "commits.db"))
	if err != nil {
		return nil, cidxerr.Wrap(cidxerr.StorageError, "open commit store", err)
	}
	cp, err := checkpoint.New(filepath.Join(indexDir, "temporal"))
	if err != nil {
		return nil, cidxerr.Wrap(cidxerr.StorageError, "open checkpoint store", err)
	}

	store := indexstore.NewJSONStore()
	manager := vcm.New(embedding.NewHashProvider(256, 120000), vcm.Options{})
	indexer := temporal.New(repo, absRoot, store, reg, commits, cp, manager)

	ttl := time.Duration(cfg.Daemon.TTLMinutes) * time.Minute
	entry := cache.New(ttl)

	d := &Daemon{
		cfg:       cfg,
		repoRoot:  absRoot,
		store:     store,
		entry:     entry,
		manager:   manager,
		repo:      repo,
		reg:       reg,
		commits:   commits,
		cp:        cp,
		indexer:   indexer,
		startedAt: time.Now(),
		stopEvict: make(chan struct{}),
	}
	go d.evictionLoop()
	return d, nil
}

// Close releases sqlite handles; called on shutdown.
func (d *Daemon) Close() error {
	close(d.stopEvict)
	if err := d.reg.Close(); err != nil {
		return err
	}
	return d.commits.Close()
}

func (d *Daemon) evictionLoop() {
	interval := time.Duration(d.cfg.Daemon.EvictionCheckIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if d.entry.TryEvictIfIdle(time.Now()) {
				log.WithComponent("daemon").Info().Msg("evicted idle cache entry")
			}
		case <-d.stopEvict:
			return
		}
	}
}

// checkRepo enforces the WrongRepository rule from spec.md §4.1.
func (d *Daemon) checkRepo(repoPath string) error {
	if repoPath == "" {
		return nil
	}
	clean, err := filepath.Abs(repoPath)
	if err != nil {
		return cidxerr.Wrap(cidxerr.WrongRepository, "resolve repo path", err)
	}
	if filepath.Clean(clean) != filepath.Clean(d.repoRoot) {
		return cidxerr.New(cidxerr.WrongRepository,
			fmt.Sprintf("daemon serves %s, not %s", d.repoRoot, clean))
	}
	return nil
}

func (d *Daemon) withMetrics(method string, fn func() error) error {
	timer := metrics.NewTimer()
	logger := log.WithComponent("daemon")
	err := fn()
	status := "ok"
	if err != nil {
		status = "error"
		logger.Warn().Str("rpc", method).Str("repo", d.repoRoot).Err(err).Msg("rpc failed")
	} else {
		logger.Debug().Str("rpc", method).Str("repo", d.repoRoot).Msg("rpc completed")
	}
	metrics.APIRequestsTotal.WithLabelValues(method, status).Inc()
	timer.ObserveDurationVec(metrics.APIRequestDuration, method)
	return err
}

// Query implements rpcapi.Backend.
func (d *Daemon) Query(ctx context.Context, req rpcapi.QueryRequest) (rpcapi.QueryResponse, error) {
	var resp rpcapi.QueryResponse
	err := d.withMetrics("Query", func() error {
		if err := d.checkRepo(req.RepoPath); err != nil {
			return err
		}
		return d.entry.WithRead(ctx, d.loadSemantic, func(sem *indexstore.Semantic) error {
			results, err := d.store.QuerySemantic(ctx, sem, req.Text, req.Limit)
			if err != nil {
				return err
			}
			resp.Results = results
			return nil
		})
	})
	return resp, err
}

// QueryFTS implements rpcapi.Backend.
func (d *Daemon) QueryFTS(ctx context.Context, req rpcapi.QueryRequest) (rpcapi.QueryResponse, error) {
	var resp rpcapi.QueryResponse
	err := d.withMetrics("QueryFTS", func() error {
		if err := d.checkRepo(req.RepoPath); err != nil {
			return err
		}
		return d.entry.WithReadFTS(ctx, d.loadLexical, func(lex *indexstore.Lexical) error {
			results, err := d.store.QueryLexical(ctx, lex, req.Text, req.Limit)
			if err != nil {
				return err
			}
			resp.Results = results
			return nil
		})
	})
	return resp, err
}

// QueryHybrid implements rpcapi.Backend, fanning Query and QueryFTS out as
// concurrent sub-tasks and merging by score, tagging each hit's source.
func (d *Daemon) QueryHybrid(ctx context.Context, req rpcapi.QueryRequest) (rpcapi.QueryResponse, error) {
	var resp rpcapi.QueryResponse
	err := d.withMetrics("QueryHybrid", func() error {
		if err := d.checkRepo(req.RepoPath); err != nil {
			return err
		}

		var semResults, lexResults []cidxtypes.QueryResult
		var semErr, lexErr error
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			semErr = d.entry.WithRead(ctx, d.loadSemantic, func(sem *indexstore.Semantic) error {
				r, err := d.store.QuerySemantic(ctx, sem, req.Text, req.Limit)
				semResults = r
				return err
			})
		}()
		go func() {
			defer wg.Done()
			lexErr = d.entry.WithReadFTS(ctx, d.loadLexical, func(lex *indexstore.Lexical) error {
				r, err := d.store.QueryLexical(ctx, lex, req.Text, req.Limit)
				lexResults = r
				return err
			})
		}()
		wg.Wait()

		if semErr != nil && lexErr != nil {
			return semErr
		}
		merged := append(append([]cidxtypes.QueryResult{}, semResults...), lexResults...)
		sortByScoreDesc(merged)
		if req.Limit > 0 && len(merged) > req.Limit {
			merged = merged[:req.Limit]
		}
		resp.Results = merged
		return nil
	})
	return resp, err
}

func sortByScoreDesc(results []cidxtypes.QueryResult) {
	for i := 1; i < len(results); i++ {
		for j := i; j > 0 && results[j].Score > results[j-1].Score; j-- {
			results[j], results[j-1] = results[j-1], results[j]
		}
	}
}

func (d *Daemon) loadSemantic(ctx context.Context) (*indexstore.Semantic, error) {
	return d.store.Load(ctx, d.repoRoot)
}

func (d *Daemon) loadLexical(ctx context.Context) (*indexstore.Lexical, error) {
	return d.store.LoadFTS(ctx, d.repoRoot)
}

// Index implements rpcapi.Backend. index_commits is rejected with
// cidxerr.WatchActive while a watch session is live, per SPEC_FULL.md §9.
func (d *Daemon) Index(ctx context.Context, req rpcapi.IndexRequest, progress func(cidxtypes.ProgressEvent)) (rpcapi.IndexResponse, error) {
	var resp rpcapi.IndexResponse
	err := d.withMetrics("Index", func() error {
		if err := d.checkRepo(req.RepoPath); err != nil {
			return err
		}
		d.watchMu.Lock()
		active := d.watching != nil
		d.watchMu.Unlock()
		if active {
			return cidxerr.New(cidxerr.WatchActive, "cannot run index while a watch session is active")
		}

		return d.entry.WithWrite(func() error {
			result, err := d.indexer.IndexCommits(ctx, temporal.Options{
				BranchStrategy: req.Mode,
				BranchPatterns: req.BranchPatterns,
				SinceUnix:      req.SinceUnix,
				MaxCommits:     req.MaxCommits,
				Resume:         req.Resume,
				Callback:       progress,
			})
			if err != nil {
				return err
			}
			status := "completed"
			if result.Partial {
				status = "cancelled"
			}
			resp = rpcapi.IndexResponse{
				Status:             status,
				TotalCommits:       result.TotalCommits,
				NewBlobsIndexed:    result.NewBlobsIndexed,
				DeduplicationRatio: result.DeduplicationRatio,
			}
			return nil
		})
	})
	if err == nil {
		d.entry.Invalidate()
	}
	return resp, err
}

// WatchStart implements rpcapi.Backend.
func (d *Daemon) WatchStart(ctx context.Context, req rpcapi.WatchStartRequest, progress func(cidxtypes.ProgressEvent)) (rpcapi.WatchStartResponse, error) {
	var resp rpcapi.WatchStartResponse
	err := d.withMetrics("WatchStart", func() error {
		if err := d.checkRepo(req.RepoPath); err != nil {
			return err
		}
		d.watchMu.Lock()
		defer d.watchMu.Unlock()
		if d.watching != nil {
			resp.Status = "already_running"
			return nil
		}
		h := watch.New(d.repoRoot, d.manager, d.store, d.entry)
		if err := h.Start(ctx); err != nil {
			return err
		}
		d.watching = h
		resp.Status = "started"
		return nil
	})
	return resp, err
}

// WatchStop implements rpcapi.Backend.
func (d *Daemon) WatchStop(ctx context.Context, req rpcapi.RepoRequest) (rpcapi.WatchStopResponse, error) {
	var resp rpcapi.WatchStopResponse
	err := d.withMetrics("WatchStop", func() error {
		if err := d.checkRepo(req.RepoPath); err != nil {
			return err
		}
		d.watchMu.Lock()
		h := d.watching
		d.watching = nil
		d.watchMu.Unlock()

		if h == nil {
			resp.Status = "not_running"
			return nil
		}
		result := h.Stop()
		resp.Status = "stopped"
		resp.FilesProcessed = result.FilesProcessed
		resp.UpdatesApplied = result.UpdatesApplied
		return nil
	})
	return resp, err
}

// WatchStatus implements rpcapi.Backend.
func (d *Daemon) WatchStatus(ctx context.Context) (rpcapi.WatchStatusResponse, error) {
	var resp rpcapi.WatchStatusResponse
	err := d.withMetrics("WatchStatus", func() error {
		d.watchMu.Lock()
		h := d.watching
		d.watchMu.Unlock()
		if h == nil {
			resp.Watching = false
			return nil
		}
		st := h.Status()
		resp.Watching = st.Watching
		resp.Project = st.Project
		resp.FilesProcessed = st.FilesProcessed
		if !st.LastUpdate.IsZero() {
			resp.LastUpdateUnix = st.LastUpdate.Unix()
		}
		return nil
	})
	return resp, err
}

// Clean implements rpcapi.Backend: invalidates the Cache Entry before
// calling Index Store Clean, per spec.md §4.1's ordering requirement.
func (d *Daemon) Clean(ctx context.Context, req rpcapi.CleanRequest) (rpcapi.CleanResponse, error) {
	return d.cleanLike(ctx, req, d.store.Clean)
}

// CleanData implements rpcapi.Backend with the same discipline as Clean.
func (d *Daemon) CleanData(ctx context.Context, req rpcapi.CleanRequest) (rpcapi.CleanResponse, error) {
	return d.cleanLike(ctx, req, d.store.CleanData)
}

func (d *Daemon) cleanLike(ctx context.Context, req rpcapi.CleanRequest, op func(context.Context, string, indexstore.CleanScope) error) (rpcapi.CleanResponse, error) {
	var resp rpcapi.CleanResponse
	err := d.withMetrics("Clean", func() error {
		if err := d.checkRepo(req.RepoPath); err != nil {
			return err
		}
		d.entry.Invalidate()
		return d.entry.WithWrite(func() error {
			if err := op(ctx, d.repoRoot, indexstore.CleanScope{All: req.All, FilePath: req.FilePath}); err != nil {
				return err
			}
			resp.CacheInvalidated = true
			resp.Result = "ok"
			return nil
		})
	})
	return resp, err
}

// Status implements rpcapi.Backend.
func (d *Daemon) Status(ctx context.Context, req rpcapi.RepoRequest) (rpcapi.StatusResponse, error) {
	var resp rpcapi.StatusResponse
	err := d.withMetrics("Status", func() error {
		if err := d.checkRepo(req.RepoPath); err != nil {
			return err
		}
		daemonStatus, err := d.GetStatus(ctx)
		if err != nil {
			return err
		}
		resp = rpcapi.StatusResponse{Daemon: daemonStatus, Storage: "ok", Mode: "daemon"}
		return nil
	})
	return resp, err
}

// GetStatus implements rpcapi.Backend.
func (d *Daemon) GetStatus(ctx context.Context) (rpcapi.GetStatusResponse, error) {
	semLoaded, lexLoaded := d.entry.IsLoaded()

	return rpcapi.GetStatusResponse{
		Running:        true,
		Project:        d.repoRoot,
		SemanticCached: semLoaded,
		FTSAvailable:   d.entry.FTSAvailable(),
		FTSCached:      lexLoaded,
		LastAccessUnix: d.entry.LastAccessed().Unix(),
		AccessCount:    d.entry.AccessCount(),
		TTLMinutes:     d.cfg.Daemon.TTLMinutes,
	}, nil
}

// ClearCache implements rpcapi.Backend: drops slots without touching disk.
func (d *Daemon) ClearCache(ctx context.Context) (rpcapi.SimpleStatusResponse, error) {
	var resp rpcapi.SimpleStatusResponse
	err := d.withMetrics("ClearCache", func() error {
		d.entry.Invalidate()
		resp.Status = "cleared"
		return nil
	})
	return resp, err
}

// Shutdown implements rpcapi.Backend: stops watch, clears cache, and
// signals termination; the caller (cmd/cidxd) performs the actual process
// exit after the response is flushed.
func (d *Daemon) Shutdown(ctx context.Context) (rpcapi.SimpleStatusResponse, error) {
	var resp rpcapi.SimpleStatusResponse
	err := d.withMetrics("Shutdown", func() error {
		d.watchMu.Lock()
		h := d.watching
		d.watching = nil
		d.watchMu.Unlock()
		if h != nil {
			h.Stop()
		}
		d.entry.Invalidate()
		resp.Status = "shutting_down"
		return nil
	})
	return resp, err
}
