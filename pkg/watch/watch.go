// Package watch implements the Watch Handler: a recursive filesystem
// subscription that debounces per-path change bursts and re-embeds
// changed files in place, per spec.md §4.4.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jsbattig/cidx/pkg/cache"
	"github.com/jsbattig/cidx/pkg/chunker"
	"github.com/jsbattig/cidx/pkg/cidxtypes"
	"github.com/jsbattig/cidx/pkg/indexstore"
	"github.com/jsbattig/cidx/pkg/log"
	"github.com/jsbattig/cidx/pkg/metrics"
	"github.com/jsbattig/cidx/pkg/vcm"
)

// DebounceWindow is the default per-path coalescing window.
const DebounceWindow = 500 * time.Millisecond

var skippedDirs = []string{".git", ".code-indexer"}

// Status is returned by watch_status.
type Status struct {
	Watching      bool
	Project       string
	FilesProcessed int
	LastUpdate    time.Time
}

// StopResult is returned by watch_stop.
type StopResult struct {
	Stopped        bool
	FilesProcessed int
	UpdatesApplied int
}

// Handler owns one active filesystem subscription for a repository.
type Handler struct {
	repoRoot string
	manager  *vcm.Manager
	store    indexstore.Store
	entry    *cache.Entry
	chunkOpts chunker.Options

	watcher *fsnotify.Watcher

	mu             sync.Mutex
	timers         map[string]*time.Timer
	pending        map[string]struct{}
	filesProcessed int
	updatesApplied int
	lastUpdate     time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New creates a Handler for repoRoot. Call Start to begin watching.
func New(repoRoot string, manager *vcm.Manager, store indexstore.Store, entry *cache.Entry) *Handler {
	return &Handler{
		repoRoot:  repoRoot,
		manager:   manager,
		store:     store,
		entry:     entry,
		chunkOpts: chunker.DefaultOptions(),
		timers:    make(map[string]*time.Timer),
		pending:   make(map[string]struct{}),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start registers the recursive subscription and begins the consumer
// goroutine. It returns once the watcher is attached to every directory.
func (h *Handler) Start(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	h.watcher = w

	if err := filepath.WalkDir(h.repoRoot, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if isSkipped(path, h.repoRoot) {
			return filepath.SkipDir
		}
		return w.Add(path)
	}); err != nil {
		w.Close()
		return err
	}

	go h.run(ctx)
	return nil
}

func isSkipped(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	for _, seg := range strings.Split(rel, string(filepath.Separator)) {
		for _, skip := range skippedDirs {
			if seg == skip {
				return true
			}
		}
	}
	return false
}

func (h *Handler) run(ctx context.Context) {
	defer close(h.doneCh)
	logger := log.WithComponent("watch")

	changed := make(chan string, 256)

	go func() {
		for {
			select {
			case event, ok := <-h.watcher.Events:
				if !ok {
					return
				}
				if isSkipped(event.Name, h.repoRoot) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				h.debounce(event.Name, changed)
			case _, ok := <-h.watcher.Errors:
				if !ok {
					return
				}
			case <-h.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case path := <-changed:
			h.process(ctx, path)
		case <-h.stopCh:
			h.flushPending(ctx)
			h.watcher.Close()
			return
		case <-ctx.Done():
			h.watcher.Close()
			return
		}
		_ = logger
	}
}

func (h *Handler) debounce(path string, changed chan<- string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.pending[path] = struct{}{}
	if t, ok := h.timers[path]; ok {
		t.Stop()
	}
	h.timers[path] = time.AfterFunc(DebounceWindow, func() {
		select {
		case changed <- path:
		default:
		}
	})
}

func (h *Handler) flushPending(ctx context.Context) {
	h.mu.Lock()
	for _, t := range h.timers {
		t.Stop()
	}
	paths := make([]string, 0, len(h.pending))
	for p := range h.pending {
		paths = append(paths, p)
	}
	h.pending = make(map[string]struct{})
	h.timers = make(map[string]*time.Timer)
	h.mu.Unlock()

	for _, p := range paths {
		h.process(ctx, p)
	}
}

func (h *Handler) process(ctx context.Context, path string) {
	h.mu.Lock()
	delete(h.pending, path)
	delete(h.timers, path)
	h.mu.Unlock()

	content, err := os.ReadFile(path)
	rel, relErr := filepath.Rel(h.repoRoot, path)
	if relErr != nil {
		rel = path
	}

	h.mu.Lock()
	h.filesProcessed++
	h.lastUpdate = time.Now()
	h.mu.Unlock()
	metrics.WatchFilesProcessed.Inc()

	if err != nil {
		// file removed or unreadable; a future operation could clean its
		// points from the store by file path.
		return
	}

	chunks := chunker.ChunkText(string(content), h.chunkOpts)
	if len(chunks) == 0 {
		return
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	futures, err := h.manager.SubmitChunks(ctx, texts)
	if err != nil {
		return
	}

	var points []cidxtypes.Point
	for i, f := range futures {
		result := <-f
		if result.Err != nil {
			continue
		}
		points = append(points, cidxtypes.Point{
			ID:         path + ":" + rel + ":" + strconv.Itoa(i),
			Vector:     result.Vector,
			FilePath:   rel,
			ChunkIndex: i,
			Text:       texts[i],
		})
	}
	if len(points) == 0 {
		return
	}

	_ = h.entry.WithWritePoints(points, func() error {
		err := h.store.Upsert(ctx, h.repoRoot, points)
		if err == nil {
			h.mu.Lock()
			h.updatesApplied++
			h.mu.Unlock()
			metrics.WatchUpdatesApplied.Inc()
		}
		return err
	})
}

// Stop halts the subscription, flushing any pending debounce timers
// (processing them synchronously) before returning StopResult.
func (h *Handler) Stop() StopResult {
	h.stopOnce.Do(func() { close(h.stopCh) })
	<-h.doneCh

	h.mu.Lock()
	defer h.mu.Unlock()
	return StopResult{Stopped: true, FilesProcessed: h.filesProcessed, UpdatesApplied: h.updatesApplied}
}

// Status reports the current watch state for watch_status.
func (h *Handler) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Status{
		Watching:       true,
		Project:        h.repoRoot,
		FilesProcessed: h.filesProcessed,
		LastUpdate:     h.lastUpdate,
	}
}
