// Package memory provides an in-memory store implementing the retrieval
// gateway contracts. Intended for tests, local development and small corpora.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/graphrag/rag"
)

// Store keeps passages, entities, relations and documents in maps guarded by
// a single RWMutex. Vector search is a brute-force cosine scan.
type Store struct {
	mu        sync.RWMutex
	documents map[string]rag.Document
	passages  map[string]rag.Passage
	entities  map[string]rag.Entity
	relations map[string]rag.Relation
	logger    *zap.Logger
}

// New creates an empty store.
func New(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		documents: make(map[string]rag.Document),
		passages:  make(map[string]rag.Passage),
		entities:  make(map[string]rag.Entity),
		relations: make(map[string]rag.Relation),
		logger:    logger.With(zap.String("component", "memory_store")),
	}
}

// AddDocument stores a document, assigning an ID when missing.
func (s *Store) AddDocument(_ context.Context, doc rag.Document) (rag.Document, error) {
	if doc.Workspace == "" {
		return rag.Document{}, fmt.Errorf("document requires a workspace")
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents[doc.ID] = doc
	return doc, nil
}

// AddPassages stores passages. Every passage needs a workspace and document.
func (s *Store) AddPassages(_ context.Context, passages []rag.Passage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range passages {
		if p.Workspace == "" || p.DocumentID == "" {
			return fmt.Errorf("passage %s requires workspace and document", p.ID)
		}
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		s.passages[p.ID] = p
	}
	s.logger.Debug("passages added", zap.Int("count", len(passages)))
	return nil
}

// AddEntities stores entities. A persisted entity must reference at least one
// source passage.
func (s *Store) AddEntities(_ context.Context, entities []rag.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entities {
		if e.Workspace == "" {
			return fmt.Errorf("entity %s requires a workspace", e.Name)
		}
		if len(e.SourcePassageIDs) == 0 {
			return fmt.Errorf("entity %s has no source passages", e.Name)
		}
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		s.entities[e.ID] = e
	}
	return nil
}

// AddRelations stores relations. Both endpoints must resolve to entities in
// the same workspace.
func (s *Store) AddRelations(_ context.Context, relations []rag.Relation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range relations {
		if r.Workspace == "" {
			return fmt.Errorf("relation %s requires a workspace", r.ID)
		}
		src, okSrc := s.entities[r.SourceEntityID]
		tgt, okTgt := s.entities[r.TargetEntityID]
		if !okSrc || !okTgt || src.Workspace != r.Workspace || tgt.Workspace != r.Workspace {
			return fmt.Errorf("relation %s endpoints do not resolve in workspace %s", r.ID, r.Workspace)
		}
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		s.relations[r.ID] = r
	}
	return nil
}

// SearchPassages ranks workspace passages by cosine similarity.
func (s *Store) SearchPassages(_ context.Context, workspace string, vector []float64, limit int, threshold float64) ([]rag.ScoredPassage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []rag.ScoredPassage
	for _, p := range s.passages {
		if p.Workspace != workspace || p.Embedding == nil {
			continue
		}
		score := cosineSimilarity(vector, p.Embedding)
		if score < threshold {
			continue
		}
		results = append(results, rag.ScoredPassage{Passage: p, Score: score})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return capResults(results, limit), nil
}

// SearchEntities ranks workspace entities by cosine similarity.
func (s *Store) SearchEntities(_ context.Context, workspace string, vector []float64, limit int, threshold float64) ([]rag.ScoredEntity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []rag.ScoredEntity
	for _, e := range s.entities {
		if e.Workspace != workspace || e.Embedding == nil {
			continue
		}
		score := cosineSimilarity(vector, e.Embedding)
		if score < threshold {
			continue
		}
		results = append(results, rag.ScoredEntity{Entity: e, Score: score})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return capResults(results, limit), nil
}

// SearchRelations ranks workspace relations by cosine similarity.
func (s *Store) SearchRelations(_ context.Context, workspace string, vector []float64, limit int, threshold float64) ([]rag.ScoredRelation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []rag.ScoredRelation
	for _, r := range s.relations {
		if r.Workspace != workspace || r.Embedding == nil {
			continue
		}
		score := cosineSimilarity(vector, r.Embedding)
		if score < threshold {
			continue
		}
		results = append(results, rag.ScoredRelation{Relation: r, Score: score})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return capResults(results, limit), nil
}

// PassagesByIDs resolves passages within one workspace, preserving the
// requested ID order and skipping missing IDs.
func (s *Store) PassagesByIDs(_ context.Context, workspace string, ids []string) ([]rag.Passage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]rag.Passage, 0, len(ids))
	for _, id := range ids {
		if p, ok := s.passages[id]; ok && p.Workspace == workspace {
			out = append(out, p)
		}
	}
	return out, nil
}

// EntitiesByIDs resolves entities within one workspace.
func (s *Store) EntitiesByIDs(_ context.Context, workspace string, ids []string) ([]rag.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]rag.Entity, 0, len(ids))
	for _, id := range ids {
		if e, ok := s.entities[id]; ok && e.Workspace == workspace {
			out = append(out, e)
		}
	}
	return out, nil
}

// DocumentsByIDs resolves documents within one workspace.
func (s *Store) DocumentsByIDs(_ context.Context, workspace string, ids []string) ([]rag.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]rag.Document, 0, len(ids))
	for _, id := range ids {
		if d, ok := s.documents[id]; ok && d.Workspace == workspace {
			out = append(out, d)
		}
	}
	return out, nil
}

func capResults[T any](results []T, limit int) []T {
	if limit > 0 && len(results) > limit {
		return results[:limit]
	}
	return results
}

func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0.0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0.0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
