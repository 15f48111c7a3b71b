package indexstore

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/jsbattig/cidx/pkg/atomicfile"
	"github.com/jsbattig/cidx/pkg/cidxtypes"
)

// JSONStore is a brute-force Store implementation backed by a single JSON
// file of points under <repo>/.code-indexer/index/. It is not a production
// vector or FTS engine; it exists to exercise the Store contract end to end.
type JSONStore struct {
	mu sync.Mutex
}

// NewJSONStore returns a Store using on-disk JSON persistence.
func NewJSONStore() *JSONStore {
	return &JSONStore{}
}

type onDiskPoint struct {
	cidxtypes.Point
}

func indexDir(repoPath string) string {
	return filepath.Join(repoPath, ".code-indexer", "index")
}

func pointsPath(repoPath string) string {
	return filepath.Join(indexDir(repoPath), "points.json")
}

func ftsMarkerPath(repoPath string) string {
	return filepath.Join(indexDir(repoPath), "fts_enabled")
}

func (s *JSONStore) readPoints(repoPath string) ([]onDiskPoint, error) {
	var pts []onDiskPoint
	err := atomicfile.ReadJSON(pointsPath(repoPath), &pts)
	if os.IsNotExist(err) {
		return nil, nil
	}
	return pts, err
}

// Load implements Store.
func (s *JSONStore) Load(ctx context.Context, repoPath string) (*Semantic, error) {
	pts, err := s.readPoints(repoPath)
	if err != nil {
		return nil, err
	}
	if len(pts) == 0 {
		return &Semantic{}, nil
	}
	sem := &Semantic{Vectors: map[string][]float32{}, IDMap: map[string]string{}}
	for _, p := range pts {
		sem.Vectors[p.ID] = p.Vector
		sem.IDMap[p.ID] = p.FilePath
	}
	return sem, nil
}

// LoadFTS implements Store. Returns ErrFTSUnavailable unless a marker file
// (written by the first successful index) is present.
func (s *JSONStore) LoadFTS(ctx context.Context, repoPath string) (*Lexical, error) {
	if !atomicfile.Exists(ftsMarkerPath(repoPath)) {
		return nil, ErrFTSUnavailable
	}
	pts, err := s.readPoints(repoPath)
	if err != nil {
		return nil, err
	}
	lex := &Lexical{Documents: map[string]string{}}
	for _, p := range pts {
		lex.Documents[p.ID] = p.Text
	}
	return lex, nil
}

// QuerySemantic implements Store using cosine similarity over Semantic.Vectors.
func (s *JSONStore) QuerySemantic(ctx context.Context, sem *Semantic, text string, limit int) ([]cidxtypes.QueryResult, error) {
	if sem == nil || len(sem.Vectors) == 0 || text == "" {
		return nil, nil
	}
	query := hashEmbed(text)
	type scored struct {
		id    string
		score float64
	}
	scoredAll := make([]scored, 0, len(sem.Vectors))
	for id, vec := range sem.Vectors {
		scoredAll = append(scoredAll, scored{id: id, score: cosine(query, vec)})
	}
	sort.Slice(scoredAll, func(i, j int) bool { return scoredAll[i].score > scoredAll[j].score })
	if limit > 0 && len(scoredAll) > limit {
		scoredAll = scoredAll[:limit]
	}
	results := make([]cidxtypes.QueryResult, 0, len(scoredAll))
	for _, sc := range scoredAll {
		results = append(results, cidxtypes.QueryResult{
			PointID:  sc.id,
			FilePath: sem.IDMap[sc.id],
			Score:    sc.score,
			Source:   "semantic",
		})
	}
	return results, nil
}

// QueryLexical implements Store using a naive substring/term-overlap score.
func (s *JSONStore) QueryLexical(ctx context.Context, lex *Lexical, text string, limit int) ([]cidxtypes.QueryResult, error) {
	if lex == nil || text == "" {
		return nil, nil
	}
	terms := strings.Fields(strings.ToLower(text))
	type scored struct {
		id    string
		score float64
	}
	var scoredAll []scored
	for id, doc := range lex.Documents {
		lower := strings.ToLower(doc)
		var hits int
		for _, term := range terms {
			hits += strings.Count(lower, term)
		}
		if hits > 0 {
			scoredAll = append(scoredAll, scored{id: id, score: float64(hits)})
		}
	}
	sort.Slice(scoredAll, func(i, j int) bool { return scoredAll[i].score > scoredAll[j].score })
	if limit > 0 && len(scoredAll) > limit {
		scoredAll = scoredAll[:limit]
	}
	results := make([]cidxtypes.QueryResult, 0, len(scoredAll))
	for _, sc := range scoredAll {
		results = append(results, cidxtypes.QueryResult{
			PointID: sc.id,
			Score:   sc.score,
			Source:  "lexical",
			Snippet: snippet(lex.Documents[sc.id]),
		})
	}
	return results, nil
}

// Upsert implements Store, merging points into the on-disk file keyed by ID.
func (s *JSONStore) Upsert(ctx context.Context, repoPath string, points []cidxtypes.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(indexDir(repoPath), 0o755); err != nil {
		return err
	}
	existing, err := s.readPoints(repoPath)
	if err != nil {
		return err
	}
	byID := make(map[string]onDiskPoint, len(existing)+len(points))
	for _, p := range existing {
		byID[p.ID] = p
	}
	for _, p := range points {
		byID[p.ID] = onDiskPoint{p}
	}
	merged := make([]onDiskPoint, 0, len(byID))
	for _, p := range byID {
		merged = append(merged, p)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].ID < merged[j].ID })
	if err := writePoints(repoPath, merged); err != nil {
		return err
	}
	return atomicfile.Write(ftsMarkerPath(repoPath), []byte("1"), 0o644)
}

func writePoints(repoPath string, pts []onDiskPoint) error {
	data, err := json.Marshal(pts)
	if err != nil {
		return err
	}
	return atomicfile.Write(pointsPath(repoPath), data, 0o644)
}

// Clean implements Store: drops points matching scope.
func (s *JSONStore) Clean(ctx context.Context, repoPath string, scope CleanScope) error {
	return s.CleanData(ctx, repoPath, scope)
}

// CleanData implements Store: drops points matching scope, or everything.
func (s *JSONStore) CleanData(ctx context.Context, repoPath string, scope CleanScope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if scope.All || scope.FilePath == "" {
		if err := atomicfile.Remove(pointsPath(repoPath)); err != nil {
			return err
		}
		return atomicfile.Remove(ftsMarkerPath(repoPath))
	}
	existing, err := s.readPoints(repoPath)
	if err != nil {
		return err
	}
	kept := existing[:0]
	for _, p := range existing {
		if p.FilePath != scope.FilePath {
			kept = append(kept, p)
		}
	}
	return writePoints(repoPath, kept)
}

func snippet(text string) string {
	const maxLen = 160
	if len(text) <= maxLen {
		return text
	}
	return text[:maxLen] + "..."
}

// hashEmbed is a deterministic stand-in for the out-of-scope embedding
// provider: it gives QuerySemantic something vector-shaped to compare
// against without depending on pkg/embedding directly.
func hashEmbed(text string) []float32 {
	const dims = 32
	vec := make([]float32, dims)
	for i, r := range text {
		vec[i%dims] += float32(r)
	}
	return vec
}

func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
