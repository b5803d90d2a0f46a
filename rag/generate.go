package rag

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// AnswerStatus tags the outcome of an Ask call so callers can tell "no
// evidence" apart from "evidence found, generation failed".
type AnswerStatus string

const (
	AnswerGenerated        AnswerStatus = "generated"
	AnswerNoEvidence       AnswerStatus = "no_evidence"
	AnswerGenerationFailed AnswerStatus = "generation_failed"
)

// Fixed fallback answers. Both cases still return a well-formed Answer.
const (
	noEvidenceText       = "No relevant information was found in the knowledge base for this question."
	generationFailedText = "Sorry, an answer could not be generated right now. The retrieved sources are still included; please try again."
)

// defaultSystemPrompt instructs the model to stay inside the supplied context.
const defaultSystemPrompt = "You are a helpful assistant. Answer the question using only the provided context. " +
	"If the context does not contain the answer, say you do not know. Cite sources as [Source N] where relevant."

// sourceContentLimit caps passage content returned in source metadata.
const sourceContentLimit = 500

// Source is citation-ready metadata for one passage used in an answer.
type Source struct {
	PassageID    string  `json:"passage_id"`
	DocumentID   string  `json:"document_id"`
	DocumentName string  `json:"document_name,omitempty"`
	DocumentType string  `json:"document_type,omitempty"`
	Index        int     `json:"index"`
	Score        float64 `json:"score"`
	Content      string  `json:"content"`
}

// Answer is the complete response envelope returned by Engine.Ask.
type Answer struct {
	Status   AnswerStatus `json:"status"`
	Text     string       `json:"text"`
	Sources  []Source     `json:"sources"`
	Entities []string     `json:"entities"`
}

// AskOptions tweak a single Ask call.
type AskOptions struct {
	// SystemPrompt overrides the built-in system instruction.
	SystemPrompt string
	// Model overrides the engine's default generation model.
	Model string
}

// EngineConfig configures the ask orchestration.
type EngineConfig struct {
	// Model is the default generation model identifier.
	Model string `json:"model"`
}

// Engine combines retrieval, context assembly and answer generation.
type Engine struct {
	retriever *Retriever
	generator Generator
	lookup    Lookup
	config    EngineConfig
	usage     UsageRecorder
	usageWG   sync.WaitGroup
	logger    *zap.Logger
}

// NewEngine creates the ask orchestrator. lookup resolves parent documents
// for source metadata and is usually the same store the retriever reads.
func NewEngine(retriever *Retriever, generator Generator, lookup Lookup, config EngineConfig, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		retriever: retriever,
		generator: generator,
		lookup:    lookup,
		config:    config,
		logger:    logger.With(zap.String("component", "engine")),
	}
}

// WithUsageRecorder attaches an async usage side-channel. Recorder failures
// are logged and never block or fail the request path.
func (e *Engine) WithUsageRecorder(rec UsageRecorder) *Engine {
	e.usage = rec
	return e
}

// Ask answers a natural-language question against one workspace.
//
// Configuration errors (unavailable embedding) propagate as typed errors.
// A result without passages and entities short-circuits to AnswerNoEvidence;
// a generation failure after successful retrieval yields
// AnswerGenerationFailed with the retrieved sources intact.
func (e *Engine) Ask(ctx context.Context, query string, mode Mode, workspace string, topK int, opts AskOptions) (*Answer, error) {
	start := time.Now()

	result, err := e.retriever.Retrieve(ctx, query, mode, workspace, topK)
	if err != nil {
		return nil, err
	}
	e.recordUsage(ctx, workspace, result, time.Since(start))

	if len(result.Passages) == 0 && len(result.Entities) == 0 {
		return &Answer{
			Status:   AnswerNoEvidence,
			Text:     noEvidenceText,
			Sources:  []Source{},
			Entities: []string{},
		}, nil
	}

	sources := e.resolveSources(ctx, workspace, result.Passages)
	entityNames := make([]string, 0, len(result.Entities))
	for _, ent := range result.Entities {
		entityNames = append(entityNames, ent.Name)
	}

	systemPrompt := opts.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	}
	model := opts.Model
	if model == "" {
		model = e.config.Model
	}
	prompt := buildPrompt(systemPrompt, result.Context, query)

	text, err := e.generator.GenerateText(ctx, model, prompt)
	if err != nil {
		e.logger.Error("answer generation failed",
			zap.String("workspace", workspace),
			zap.String("mode", string(result.Mode)),
			zap.Error(err))
		return &Answer{
			Status:   AnswerGenerationFailed,
			Text:     generationFailedText,
			Sources:  sources,
			Entities: entityNames,
		}, nil
	}

	return &Answer{
		Status:   AnswerGenerated,
		Text:     text,
		Sources:  sources,
		Entities: entityNames,
	}, nil
}

// buildPrompt concatenates the system instruction, the assembled context and
// the literal question.
func buildPrompt(systemPrompt, contextText, query string) string {
	return fmt.Sprintf("%s\n\n---Context---\n%s\n\n---Question---\n%s", systemPrompt, contextText, query)
}

// resolveSources builds citation metadata, truncating content and resolving
// parent-document display names in one keyed lookup.
func (e *Engine) resolveSources(ctx context.Context, workspace string, passages []ScoredPassage) []Source {
	var docIDs []string
	for _, p := range passages {
		docIDs = append(docIDs, p.DocumentID)
	}
	docs := make(map[string]Document)
	if ids := uniqueStrings(docIDs); len(ids) > 0 {
		found, err := e.lookup.DocumentsByIDs(ctx, workspace, ids)
		if err != nil {
			e.logger.Warn("document lookup failed, sources keep bare IDs",
				zap.String("workspace", workspace), zap.Error(err))
		}
		for _, d := range found {
			docs[d.ID] = d
		}
	}

	sources := make([]Source, 0, len(passages))
	for i, p := range passages {
		src := Source{
			PassageID:  p.ID,
			DocumentID: p.DocumentID,
			Index:      i + 1,
			Score:      p.Score,
			Content:    truncateContent(p.Content, sourceContentLimit),
		}
		if d, ok := docs[p.DocumentID]; ok {
			src.DocumentName = d.Name
			src.DocumentType = d.Type
		}
		sources = append(sources, src)
	}
	return sources
}

// truncateContent cuts content to limit characters with an ellipsis marker,
// snapping to a rune boundary.
func truncateContent(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}

// Wait blocks until every usage record handed off by earlier Ask calls has
// completed. Callers that need the side-channel drained, shutdown paths and
// tests, call it; the request path never does.
func (e *Engine) Wait() {
	e.usageWG.Wait()
}

// recordUsage hands the usage record to the recorder on a detached context so
// an abandoned request cannot cancel it. The task is tracked by the engine's
// wait group and observable through Wait; failures are logged only.
func (e *Engine) recordUsage(ctx context.Context, workspace string, result *RetrievalResult, elapsed time.Duration) {
	if e.usage == nil {
		return
	}
	usage := RetrievalUsage{
		Workspace: workspace,
		Mode:      result.Mode,
		Passages:  len(result.Passages),
		Entities:  len(result.Entities),
		Relations: len(result.Relations),
		Duration:  elapsed,
	}
	detached := context.WithoutCancel(ctx)
	e.usageWG.Add(1)
	go func() {
		defer e.usageWG.Done()
		if err := e.usage.RecordRetrieval(detached, usage); err != nil {
			e.logger.Warn("usage recording failed", zap.Error(err))
		}
	}()
}
