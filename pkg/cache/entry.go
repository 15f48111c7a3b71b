// Package cache implements the Cache Entry: the daemon's single in-memory
// container for a repository's semantic and lexical indexes, per spec.md
// §3/§4.2. It owns synchronization only; loading is supplied by the caller
// (the Daemon Service) as a closure, since the Cache Entry "does not know
// how to load."
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jsbattig/cidx/pkg/cidxtypes"
	"github.com/jsbattig/cidx/pkg/indexstore"
	"github.com/jsbattig/cidx/pkg/metrics"
)

// SlotState models the Empty -> Loading -> Populated -> Invalidated -> Empty
// machine from spec.md §4.1, kept for assertions/tests; external callers
// only ever observe Empty or Populated since Loading is internal to the
// slot loaders run by WithRead and WithReadFTS.
type SlotState int

const (
	Empty SlotState = iota
	Loading
	Populated
)

// Entry is the Cache Entry for one repository.
type Entry struct {
	mu           rwPreferWriter // guards semantic/lexical slots together
	mutationLock sync.Mutex     // serializes write-class operations

	semantic *indexstore.Semantic
	semState SlotState

	lexical       *indexstore.Lexical
	lexState      SlotState
	lexAvailable  *bool // nil = unknown, cached after first LoadFTS attempt

	lastAccessed time.Time
	accessCount  int64

	ttl time.Duration
}

// New creates an empty Cache Entry with the given TTL.
func New(ttl time.Duration) *Entry {
	return &Entry{ttl: ttl, lastAccessed: time.Now()}
}

// TTL returns the entry's configured time-to-live.
func (e *Entry) TTL() time.Duration { return e.ttl }

// IsLoaded reports whether the semantic and/or lexical slots are populated.
func (e *Entry) IsLoaded() (semantic, lexical bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.semState == Populated, e.lexState == Populated
}

// FTSAvailable reports whether a lexical index is known to exist on disk
// for this repository, per spec.md §3's lexical-slot `available` field --
// distinct from "currently cached" (see IsLoaded). It returns true until
// the first LoadFTS attempt proves otherwise (ErrFTSUnavailable), since an
// index that has simply never been loaded yet is not the same as one
// confirmed absent.
func (e *Entry) FTSAvailable() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.lexAvailable == nil {
		return true
	}
	return *e.lexAvailable
}

// LastAccessed returns the last successful read/write timestamp.
func (e *Entry) LastAccessed() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastAccessed
}

// AccessCount returns the number of successful reads/writes.
func (e *Entry) AccessCount() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.accessCount
}

func (e *Entry) touch() {
	e.lastAccessed = time.Now()
	e.accessCount++
}

// SemanticLoader loads the semantic slot from disk.
type SemanticLoader func(ctx context.Context) (*indexstore.Semantic, error)

// LexicalLoader loads the lexical slot from disk. Returns
// indexstore.ErrFTSUnavailable if no lexical index exists.
type LexicalLoader func(ctx context.Context) (*indexstore.Lexical, error)

// WithRead runs fn against the semantic slot, loading it first if empty.
// Loading upgrades to the write path (mutation lock + write lock), then
// downgrades back to a read lock before calling fn, per spec.md §4.1.
func (e *Entry) WithRead(ctx context.Context, load SemanticLoader, fn func(*indexstore.Semantic) error) error {
	e.mu.RLock()
	needsLoad := e.semState != Populated
	e.mu.RUnlock()

	if needsLoad {
		if err := e.loadSemantic(ctx, load); err != nil {
			return err
		}
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	e.touch()
	return fn(e.semantic)
}

func (e *Entry) loadSemantic(ctx context.Context, load SemanticLoader) error {
	e.mutationLock.Lock()
	defer e.mutationLock.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.semState == Populated {
		return nil // another writer already loaded it while we waited
	}
	e.semState = Loading
	timer := metrics.NewTimer()
	sem, err := load(ctx)
	timer.ObserveDuration(metrics.CacheLoadDuration)
	if err != nil {
		e.semState = Empty
		return err
	}
	e.semantic = sem
	e.semState = Populated
	metrics.CacheSemanticLoaded.Set(1)
	return nil
}

// WithReadFTS is WithRead's counterpart for the lexical slot. A negative
// result (ErrFTSUnavailable) is cached until the next Invalidate, per
// spec.md §4.1's "first query_fts... caches that negative result" rule.
func (e *Entry) WithReadFTS(ctx context.Context, load LexicalLoader, fn func(*indexstore.Lexical) error) error {
	e.mu.RLock()
	available := e.lexAvailable
	populated := e.lexState == Populated
	e.mu.RUnlock()

	if available != nil && !*available {
		return indexstore.ErrFTSUnavailable
	}

	if !populated {
		if err := e.loadLexical(ctx, load); err != nil {
			return err
		}
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	e.touch()
	return fn(e.lexical)
}

func (e *Entry) loadLexical(ctx context.Context, load LexicalLoader) error {
	e.mutationLock.Lock()
	defer e.mutationLock.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.lexState == Populated {
		return nil
	}
	e.lexState = Loading
	timer := metrics.NewTimer()
	lex, err := load(ctx)
	timer.ObserveDuration(metrics.CacheLoadDuration)
	if err != nil {
		e.lexState = Empty
		unavailable := false
		if err == indexstore.ErrFTSUnavailable {
			e.lexAvailable = &unavailable
		}
		return err
	}
	e.lexical = lex
	e.lexState = Populated
	available := true
	e.lexAvailable = &available
	metrics.CacheLexicalLoaded.Set(1)
	return nil
}

// WithWrite runs fn under the mutation lock and the entry's exclusive write
// lock. Per spec.md §4.2's lock pairing rule, the mutation lock is always
// acquired first and released last.
func (e *Entry) WithWrite(fn func() error) error {
	e.mutationLock.Lock()
	defer e.mutationLock.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := fn(); err != nil {
		return err
	}
	e.touch()
	metrics.CacheAccessCount.Inc()
	return nil
}

// WithWritePoints runs fn (typically the disk-level upsert) under the
// mutation and write locks, then merges points directly into any
// already-populated semantic/lexical slots. Per spec.md §4.4 a watch
// update must mutate the live cache in place rather than rely on a
// reload, so a query running against an already-Populated slot observes
// the change immediately. A slot that is still Empty is left alone: the
// next read loads it from disk, points included, so nothing is lost.
func (e *Entry) WithWritePoints(points []cidxtypes.Point, fn func() error) error {
	e.mutationLock.Lock()
	defer e.mutationLock.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := fn(); err != nil {
		return err
	}

	if e.semState == Populated && e.semantic != nil {
		for _, p := range points {
			e.semantic.Vectors[p.ID] = p.Vector
			e.semantic.IDMap[p.ID] = p.FilePath
		}
	}
	if e.lexState == Populated && e.lexical != nil {
		for _, p := range points {
			e.lexical.Documents[p.ID] = p.Text
		}
	}

	e.touch()
	metrics.CacheAccessCount.Inc()
	return nil
}

// Invalidate drops both slots. Idempotent, per spec.md §4.2.
func (e *Entry) Invalidate() {
	e.mutationLock.Lock()
	defer e.mutationLock.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	e.semantic = nil
	e.semState = Empty
	e.lexical = nil
	e.lexState = Empty
	e.lexAvailable = nil
	metrics.CacheSemanticLoaded.Set(0)
	metrics.CacheLexicalLoaded.Set(0)
}

// TryEvictIfIdle invalidates the entry if now-lastAccessed exceeds ttl,
// without blocking on an in-progress mutation (pkg/daemon's eviction loop
// calls this once per tick under TryLock semantics, per spec.md §4.3 and
// the Open Question in §9 on bounding auto-shutdown against active
// connections). Returns true if it evicted.
func (e *Entry) TryEvictIfIdle(now time.Time) bool {
	if !e.mutationLock.TryLock() {
		return false // a writer is active; retry next tick
	}
	defer e.mutationLock.Unlock()

	e.mu.Lock()
	idle := now.Sub(e.lastAccessed) > e.ttl
	if idle {
		e.semantic = nil
		e.semState = Empty
		e.lexical = nil
		e.lexState = Empty
		e.lexAvailable = nil
		metrics.CacheSemanticLoaded.Set(0)
		metrics.CacheLexicalLoaded.Set(0)
		metrics.CacheEvictionsTotal.Inc()
	}
	e.mu.Unlock()
	return idle
}

// MutationLockHeld reports whether a write-class operation currently holds
// the mutation lock, without blocking. Informational only: the eviction loop
// does not call it and relies on TryEvictIfIdle's own TryLock instead.
func (e *Entry) MutationLockHeld() bool {
	if e.mutationLock.TryLock() {
		e.mutationLock.Unlock()
		return false
	}
	return true
}
