package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/graphrag/rag"
)

func seed(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	s := New(zap.NewNop())

	_, err := s.AddDocument(ctx, rag.Document{ID: "d1", Workspace: "ws1", Name: "doc one", Type: "txt"})
	require.NoError(t, err)

	require.NoError(t, s.AddPassages(ctx, []rag.Passage{
		{ID: "p1", Workspace: "ws1", DocumentID: "d1", Content: "one", Embedding: []float64{1, 0}},
		{ID: "p2", Workspace: "ws1", DocumentID: "d1", Content: "two", Embedding: []float64{0.8, 0.2}},
		{ID: "p3", Workspace: "ws2", DocumentID: "d1", Content: "other tenant", Embedding: []float64{1, 0}},
		{ID: "p4", Workspace: "ws1", DocumentID: "d1", Content: "no vector"},
	}))

	require.NoError(t, s.AddEntities(ctx, []rag.Entity{
		{ID: "e1", Workspace: "ws1", Name: "One", Embedding: []float64{1, 0}, SourcePassageIDs: []string{"p1"}},
	}))

	return s
}

func TestAddDocumentAssignsID(t *testing.T) {
	s := New(nil)

	doc, err := s.AddDocument(context.Background(), rag.Document{Workspace: "ws1", Name: "x"})
	require.NoError(t, err)
	require.NotEmpty(t, doc.ID)

	_, err = s.AddDocument(context.Background(), rag.Document{Name: "no workspace"})
	require.Error(t, err)
}

func TestAddEntitiesRequiresSourcePassages(t *testing.T) {
	s := New(nil)

	err := s.AddEntities(context.Background(), []rag.Entity{
		{Workspace: "ws1", Name: "Orphan"},
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "no source passages")
}

func TestAddRelationsValidatesEndpoints(t *testing.T) {
	s := seed(t)
	ctx := context.Background()

	// Both endpoints must exist in the relation's workspace.
	err := s.AddRelations(ctx, []rag.Relation{
		{ID: "r1", Workspace: "ws1", SourceEntityID: "e1", TargetEntityID: "missing", Type: "x"},
	})
	require.Error(t, err)

	require.NoError(t, s.AddEntities(ctx, []rag.Entity{
		{ID: "e2", Workspace: "ws1", Name: "Two", SourcePassageIDs: []string{"p2"}},
	}))
	require.NoError(t, s.AddRelations(ctx, []rag.Relation{
		{ID: "r1", Workspace: "ws1", SourceEntityID: "e1", TargetEntityID: "e2", Type: "x"},
	}))

	// Cross-workspace endpoints are rejected even when the entities exist.
	err = s.AddRelations(ctx, []rag.Relation{
		{ID: "r2", Workspace: "ws2", SourceEntityID: "e1", TargetEntityID: "e2", Type: "x"},
	})
	require.Error(t, err)
}

func TestSearchPassagesRankingAndThreshold(t *testing.T) {
	s := seed(t)

	results, err := s.SearchPassages(context.Background(), "ws1", []float64{1, 0}, 10, 0.2)
	require.NoError(t, err)

	// p3 belongs to another workspace, p4 has no embedding.
	require.Len(t, results, 2)
	require.Equal(t, "p1", results[0].ID)
	require.Equal(t, "p2", results[1].ID)
	require.Greater(t, results[0].Score, results[1].Score)

	// A raised threshold drops the weaker match.
	results, err = s.SearchPassages(context.Background(), "ws1", []float64{1, 0}, 10, 0.999)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "p1", results[0].ID)
}

func TestSearchPassagesLimit(t *testing.T) {
	s := seed(t)

	results, err := s.SearchPassages(context.Background(), "ws1", []float64{1, 0}, 1, 0.0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "p1", results[0].ID)
}

func TestPassagesByIDsOrderAndWorkspace(t *testing.T) {
	s := seed(t)

	got, err := s.PassagesByIDs(context.Background(), "ws1", []string{"p2", "missing", "p1", "p3"})
	require.NoError(t, err)

	// Requested order preserved, missing and cross-workspace IDs skipped.
	require.Len(t, got, 2)
	require.Equal(t, "p2", got[0].ID)
	require.Equal(t, "p1", got[1].ID)
}

func TestDocumentsByIDs(t *testing.T) {
	s := seed(t)

	got, err := s.DocumentsByIDs(context.Background(), "ws1", []string{"d1", "nope"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "doc one", got[0].Name)

	got, err = s.DocumentsByIDs(context.Background(), "ws2", []string{"d1"})
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestCosineSimilarity(t *testing.T) {
	require.InDelta(t, 1.0, cosineSimilarity([]float64{1, 0}, []float64{2, 0}), 1e-9)
	require.InDelta(t, 0.0, cosineSimilarity([]float64{1, 0}, []float64{0, 1}), 1e-9)
	require.Equal(t, 0.0, cosineSimilarity([]float64{1, 0}, []float64{1}))
	require.Equal(t, 0.0, cosineSimilarity([]float64{0, 0}, []float64{1, 0}))
}
