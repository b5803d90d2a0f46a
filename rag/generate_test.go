package rag_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/graphrag/rag"
	"github.com/BaSui01/graphrag/store/memory"
)

type fakeGenerator struct {
	text      string
	err       error
	gotModel  string
	gotPrompt string
}

func (f *fakeGenerator) GenerateText(_ context.Context, model, prompt string) (string, error) {
	f.gotModel = model
	f.gotPrompt = prompt
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

type channelRecorder struct {
	records chan rag.RetrievalUsage
}

func (c *channelRecorder) RecordRetrieval(_ context.Context, usage rag.RetrievalUsage) error {
	c.records <- usage
	return nil
}

func newEngine(t *testing.T, store rag.Store, gen rag.Generator) *rag.Engine {
	t.Helper()
	retriever := newRetriever(t, store)
	return rag.NewEngine(retriever, gen, store, rag.EngineConfig{Model: "gpt-4o-mini"}, zap.NewNop())
}

func TestAskGenerated(t *testing.T) {
	gen := &fakeGenerator{text: "Vector indexes trade recall for speed."}
	engine := newEngine(t, seedStore(t), gen)

	answer, err := engine.Ask(context.Background(), "how do vector indexes work?", rag.ModeNaive, "wsA", 10, rag.AskOptions{})
	require.NoError(t, err)

	require.Equal(t, rag.AnswerGenerated, answer.Status)
	require.Equal(t, "Vector indexes trade recall for speed.", answer.Text)
	require.Equal(t, "gpt-4o-mini", gen.gotModel)

	require.Len(t, answer.Sources, 3)
	require.Equal(t, "p1", answer.Sources[0].PassageID)
	require.Equal(t, 1, answer.Sources[0].Index)
	require.Equal(t, "manual.pdf", answer.Sources[0].DocumentName)
	require.Equal(t, "pdf", answer.Sources[0].DocumentType)

	require.Contains(t, gen.gotPrompt, "---Context---")
	require.Contains(t, gen.gotPrompt, "how do vector indexes work?")
}

func TestAskNoEvidence(t *testing.T) {
	gen := &fakeGenerator{text: "should not be called"}
	engine := newEngine(t, seedStore(t), gen)

	// Empty workspace: nothing to retrieve.
	answer, err := engine.Ask(context.Background(), "anything", rag.ModeNaive, "wsEmpty", 10, rag.AskOptions{})
	require.NoError(t, err)

	require.Equal(t, rag.AnswerNoEvidence, answer.Status)
	require.NotEmpty(t, answer.Text)
	require.NotNil(t, answer.Sources)
	require.Empty(t, answer.Sources)
	require.NotNil(t, answer.Entities)
	require.Empty(t, answer.Entities)
	require.Empty(t, gen.gotPrompt, "generator must not run without evidence")
}

func TestAskGenerationFailedKeepsSources(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("model overloaded")}
	engine := newEngine(t, seedStore(t), gen)

	answer, err := engine.Ask(context.Background(), "anything", rag.ModeNaive, "wsA", 10, rag.AskOptions{})
	require.NoError(t, err)

	require.Equal(t, rag.AnswerGenerationFailed, answer.Status)
	require.Contains(t, answer.Text, "could not be generated")
	require.Len(t, answer.Sources, 3)
}

func TestAskOptionOverrides(t *testing.T) {
	gen := &fakeGenerator{text: "ok"}
	engine := newEngine(t, seedStore(t), gen)

	_, err := engine.Ask(context.Background(), "q", rag.ModeNaive, "wsA", 10, rag.AskOptions{
		SystemPrompt: "Answer in French.",
		Model:        "gpt-4o",
	})
	require.NoError(t, err)

	require.Equal(t, "gpt-4o", gen.gotModel)
	require.True(t, strings.HasPrefix(gen.gotPrompt, "Answer in French."))
}

func TestAskTruncatesSourceContent(t *testing.T) {
	ctx := context.Background()
	store := memory.New(zap.NewNop())

	_, err := store.AddDocument(ctx, rag.Document{ID: "d1", Workspace: "wsA", Name: "long.txt", Type: "txt"})
	require.NoError(t, err)
	long := strings.Repeat("é", 600)
	require.NoError(t, store.AddPassages(ctx, []rag.Passage{
		{ID: "p1", Workspace: "wsA", DocumentID: "d1", Content: long, Type: rag.PassageText, Embedding: []float64{1, 0, 0}},
	}))

	gen := &fakeGenerator{text: "ok"}
	engine := newEngine(t, store, gen)

	answer, err := engine.Ask(ctx, "q", rag.ModeNaive, "wsA", 10, rag.AskOptions{})
	require.NoError(t, err)

	require.Len(t, answer.Sources, 1)
	content := answer.Sources[0].Content
	require.True(t, strings.HasSuffix(content, "..."))
	require.Equal(t, 500, len([]rune(strings.TrimSuffix(content, "..."))))
}

type slowRecorder struct {
	mu       sync.Mutex
	recorded []rag.RetrievalUsage
}

func (r *slowRecorder) RecordRetrieval(_ context.Context, usage rag.RetrievalUsage) error {
	time.Sleep(50 * time.Millisecond)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recorded = append(r.recorded, usage)
	return nil
}

func (r *slowRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.recorded)
}

func TestAskWaitDrainsUsageRecording(t *testing.T) {
	gen := &fakeGenerator{text: "ok"}
	rec := &slowRecorder{}
	engine := newEngine(t, seedStore(t), gen).WithUsageRecorder(rec)

	_, err := engine.Ask(context.Background(), "q", rag.ModeNaive, "wsA", 10, rag.AskOptions{})
	require.NoError(t, err)
	_, err = engine.Ask(context.Background(), "q", rag.ModeLocal, "wsA", 10, rag.AskOptions{})
	require.NoError(t, err)

	engine.Wait()
	require.Equal(t, 2, rec.count(), "both usage records must be complete after Wait")
}

func TestAskRecordsUsage(t *testing.T) {
	gen := &fakeGenerator{text: "ok"}
	rec := &channelRecorder{records: make(chan rag.RetrievalUsage, 1)}
	engine := newEngine(t, seedStore(t), gen).WithUsageRecorder(rec)

	_, err := engine.Ask(context.Background(), "q", rag.ModeNaive, "wsA", 10, rag.AskOptions{})
	require.NoError(t, err)

	select {
	case usage := <-rec.records:
		require.Equal(t, "wsA", usage.Workspace)
		require.Equal(t, rag.ModeNaive, usage.Mode)
		require.Equal(t, 3, usage.Passages)
		require.Positive(t, usage.Duration)
	case <-time.After(2 * time.Second):
		t.Fatal("usage record never arrived")
	}
}
