package rag_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/graphrag/rag"
	"github.com/BaSui01/graphrag/store/memory"
	"github.com/BaSui01/graphrag/types"
)

type fakeEmbedder struct {
	vector []float64
	err    error
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, _ string) ([]float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vector, nil
}

// failingPassageSearch wraps a store and fails every direct passage search.
type failingPassageSearch struct {
	rag.Store
}

func (f *failingPassageSearch) SearchPassages(_ context.Context, _ string, _ []float64, _ int, _ float64) ([]rag.ScoredPassage, error) {
	return nil, errors.New("index offline")
}

// queryVector aligns exactly with passage p1 and entity e1.
var queryVector = []float64{1, 0, 0}

// seedStore populates two workspaces. In "wsA":
//
//	p1..p3 score above the 0.2 floor against queryVector, p4 and p5 below;
//	e1 links p1,p2 and e2 links p3;
//	r1 connects e1 to e2 and links p4.
//
// "wsB" holds a single passage to verify workspace isolation.
func seedStore(t *testing.T) *memory.Store {
	t.Helper()
	ctx := context.Background()
	store := memory.New(zap.NewNop())

	_, err := store.AddDocument(ctx, rag.Document{ID: "d1", Workspace: "wsA", Name: "manual.pdf", Type: "pdf"})
	require.NoError(t, err)
	_, err = store.AddDocument(ctx, rag.Document{ID: "dB", Workspace: "wsB", Name: "other.txt", Type: "txt"})
	require.NoError(t, err)

	require.NoError(t, store.AddPassages(ctx, []rag.Passage{
		{ID: "p1", Workspace: "wsA", DocumentID: "d1", Index: 0, Content: "exact match", Type: rag.PassageText, Embedding: []float64{1, 0, 0}},
		{ID: "p2", Workspace: "wsA", DocumentID: "d1", Index: 1, Content: "close match", Type: rag.PassageText, Embedding: []float64{0.9, 0.1, 0}},
		{ID: "p3", Workspace: "wsA", DocumentID: "d1", Index: 2, Content: "partial match", Type: rag.PassageText, Embedding: []float64{0.5, 0.5, 0}},
		{ID: "p4", Workspace: "wsA", DocumentID: "d1", Index: 3, Content: "orthogonal", Type: rag.PassageText, Embedding: []float64{0, 1, 0}},
		{ID: "p5", Workspace: "wsA", DocumentID: "d1", Index: 4, Content: "also orthogonal", Type: rag.PassageText, Embedding: []float64{0, 0.9, 0.1}},
		{ID: "pB", Workspace: "wsB", DocumentID: "dB", Index: 0, Content: "other tenant", Type: rag.PassageText, Embedding: []float64{1, 0, 0}},
	}))

	require.NoError(t, store.AddEntities(ctx, []rag.Entity{
		{ID: "e1", Workspace: "wsA", Name: "VectorIndex", Type: "concept", Embedding: []float64{1, 0, 0}, SourcePassageIDs: []string{"p1", "p2"}},
		{ID: "e2", Workspace: "wsA", Name: "Recall", Type: "concept", Embedding: []float64{0.6, 0.4, 0}, SourcePassageIDs: []string{"p3"}},
	}))

	require.NoError(t, store.AddRelations(ctx, []rag.Relation{
		{ID: "r1", Workspace: "wsA", SourceEntityID: "e1", TargetEntityID: "e2", Type: "improves", Embedding: []float64{1, 0, 0}, SourcePassageIDs: []string{"p4"}},
	}))

	return store
}

func newRetriever(t *testing.T, store rag.Store) *rag.Retriever {
	t.Helper()
	return rag.NewRetriever(store, &fakeEmbedder{vector: queryVector}, rag.DefaultRetrieverConfig(), zap.NewNop())
}

func passageIDs(passages []rag.ScoredPassage) []string {
	ids := make([]string, 0, len(passages))
	for _, p := range passages {
		ids = append(ids, p.ID)
	}
	return ids
}

func TestRetrieveNaive(t *testing.T) {
	r := newRetriever(t, seedStore(t))

	result, err := r.Retrieve(context.Background(), "query", rag.ModeNaive, "wsA", 10)
	require.NoError(t, err)

	require.Equal(t, rag.ModeNaive, result.Mode)
	require.Equal(t, []string{"p1", "p2", "p3"}, passageIDs(result.Passages))
	for i := 1; i < len(result.Passages); i++ {
		require.GreaterOrEqual(t, result.Passages[i-1].Score, result.Passages[i].Score)
	}
	require.Empty(t, result.Entities)
	require.Empty(t, result.Relations)
	require.NotEmpty(t, result.Context)
}

func TestRetrieveWorkspaceIsolation(t *testing.T) {
	r := newRetriever(t, seedStore(t))

	result, err := r.Retrieve(context.Background(), "query", rag.ModeNaive, "wsB", 10)
	require.NoError(t, err)
	require.Equal(t, []string{"pB"}, passageIDs(result.Passages))
}

func TestRetrieveUnknownModeFallsBackToMix(t *testing.T) {
	r := newRetriever(t, seedStore(t))

	result, err := r.Retrieve(context.Background(), "query", rag.Mode("bogus"), "wsA", 10)
	require.NoError(t, err)
	require.Equal(t, rag.ModeMix, result.Mode)
}

func TestRetrieveLocal(t *testing.T) {
	r := newRetriever(t, seedStore(t))

	result, err := r.Retrieve(context.Background(), "query", rag.ModeLocal, "wsA", 10)
	require.NoError(t, err)

	require.Len(t, result.Entities, 2)
	require.Equal(t, "e1", result.Entities[0].ID)

	// Linked passages carry the synthetic provenance score.
	require.ElementsMatch(t, []string{"p1", "p2", "p3"}, passageIDs(result.Passages))
	for _, p := range result.Passages {
		require.Equal(t, 0.8, p.Score)
	}
	require.Empty(t, result.Relations)
}

func TestRetrieveGlobal(t *testing.T) {
	r := newRetriever(t, seedStore(t))

	result, err := r.Retrieve(context.Background(), "query", rag.ModeGlobal, "wsA", 10)
	require.NoError(t, err)

	require.Len(t, result.Relations, 1)
	require.Equal(t, "r1", result.Relations[0].ID)

	// Referenced entities resolve at the fixed referenced-entity score.
	require.Len(t, result.Entities, 2)
	for _, e := range result.Entities {
		require.Equal(t, 0.7, e.Score)
	}

	// p4 is below the similarity floor but linked from r1.
	require.Equal(t, []string{"p4"}, passageIDs(result.Passages))
	require.Equal(t, 0.8, result.Passages[0].Score)
}

func TestRetrieveHybridMergesByMaxScore(t *testing.T) {
	r := newRetriever(t, seedStore(t))

	result, err := r.Retrieve(context.Background(), "query", rag.ModeHybrid, "wsA", 10)
	require.NoError(t, err)

	// Local and global passage sets union without duplicates.
	require.ElementsMatch(t, []string{"p1", "p2", "p3", "p4"}, passageIDs(result.Passages))

	// e1 appears in both branches; the higher vector score wins over the
	// fixed referenced-entity score.
	byID := map[string]rag.ScoredEntity{}
	for _, e := range result.Entities {
		byID[e.ID] = e
	}
	require.Len(t, byID, 2)
	require.InDelta(t, 1.0, byID["e1"].Score, 1e-9)
	require.Greater(t, byID["e2"].Score, 0.7)

	require.Len(t, result.Relations, 1)
}

func TestRetrieveMixSkipsAlreadyPresentAndTruncates(t *testing.T) {
	r := newRetriever(t, seedStore(t))

	result, err := r.Retrieve(context.Background(), "query", rag.ModeMix, "wsA", 3)
	require.NoError(t, err)

	// Direct hits p1..p3 keep their vector scores; p4 folds in from r1 at
	// 0.8 and displaces p3 after the topK cut.
	require.Equal(t, []string{"p1", "p2", "p4"}, passageIDs(result.Passages))
	require.InDelta(t, 1.0, result.Passages[0].Score, 1e-9)
	require.Equal(t, 0.8, result.Passages[2].Score)
	require.Len(t, result.Passages, 3)
}

func TestRetrieveMixDegradesOnPassageSearchFailure(t *testing.T) {
	store := seedStore(t)
	r := newRetriever(t, &failingPassageSearch{Store: store})

	result, err := r.Retrieve(context.Background(), "query", rag.ModeMix, "wsA", 10)
	require.NoError(t, err)

	// With the direct search down, provenance links still fill the result.
	require.ElementsMatch(t, []string{"p1", "p2", "p3", "p4"}, passageIDs(result.Passages))
	for _, p := range result.Passages {
		require.Equal(t, 0.8, p.Score)
	}
}

func TestRetrieveEmbeddingFailure(t *testing.T) {
	store := seedStore(t)
	r := rag.NewRetriever(store, &fakeEmbedder{err: errors.New("upstream down")}, rag.DefaultRetrieverConfig(), zap.NewNop())

	result, err := r.Retrieve(context.Background(), "query", rag.ModeNaive, "wsA", 10)
	require.Error(t, err)
	require.Nil(t, result)
	code, ok := types.CodeOf(err)
	require.True(t, ok)
	require.Equal(t, types.ErrEmbeddingUnavailable, code)
}

func TestRetrieveCancellation(t *testing.T) {
	r := newRetriever(t, seedStore(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Retrieve(ctx, "query", rag.ModeMix, "wsA", 10)
	require.ErrorIs(t, err, context.Canceled)
}
