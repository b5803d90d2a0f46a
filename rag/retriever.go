package rag

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/graphrag/internal/metrics"
	"github.com/BaSui01/graphrag/types"
)

// Synthetic scores for graph-derived items. Provenance-linked passages and
// relation-referenced entities are not directly ranked by vector search, so
// they carry fixed scores. These constants are not calibrated against vector
// similarity scores; keep them as documented.
const (
	linkedPassageScore    = 0.8
	referencedEntityScore = 0.7
)

// topK bounds of the upward contract.
const (
	minTopK     = 1
	maxTopK     = 50
	defaultTopK = 10
)

// RetrieverConfig configures the retriever.
type RetrieverConfig struct {
	// MinScore is the similarity threshold applied to vector searches.
	MinScore float64 `json:"min_score"`
}

// DefaultRetrieverConfig returns the production retrieval configuration.
func DefaultRetrieverConfig() RetrieverConfig {
	return RetrieverConfig{MinScore: 0.2}
}

// Retriever selects and merges passages, entities and relations according to
// one of five retrieval modes. It is stateless between calls; every shared
// resource it touches is read-only.
type Retriever struct {
	store    Store
	embedder Embedder
	config   RetrieverConfig
	metrics  *metrics.Collector
	tracer   trace.Tracer
	logger   *zap.Logger
}

// NewRetriever creates a retriever over the given storage and embedding gateways.
func NewRetriever(store Store, embedder Embedder, config RetrieverConfig, logger *zap.Logger) *Retriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{
		store:    store,
		embedder: embedder,
		config:   config,
		tracer:   otel.Tracer("graphrag/rag"),
		logger:   logger.With(zap.String("component", "retriever")),
	}
}

// WithMetrics attaches a metrics collector. Safe to skip; a nil collector
// records nothing.
func (r *Retriever) WithMetrics(c *metrics.Collector) *Retriever {
	r.metrics = c
	return r
}

// Retrieve answers a query with the given mode, scoped to one workspace.
//
// It fails with an EMBEDDING_UNAVAILABLE error when the query cannot be
// embedded. Downstream search failures degrade to empty collections; finding
// nothing is not an error.
func (r *Retriever) Retrieve(ctx context.Context, query string, mode Mode, workspace string, topK int) (*RetrievalResult, error) {
	start := time.Now()
	mode = ParseMode(string(mode))
	topK = clampTopK(topK)

	ctx, span := r.tracer.Start(ctx, "rag.Retrieve",
		trace.WithAttributes(
			attribute.String("rag.mode", string(mode)),
			attribute.String("rag.workspace", workspace),
			attribute.Int("rag.top_k", topK),
		))
	defer span.End()

	vector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		r.observe(mode, "embedding_error", start)
		return nil, types.NewError(types.ErrEmbeddingUnavailable, "embed query").WithCause(err)
	}

	var result *RetrievalResult
	switch mode {
	case ModeNaive:
		result, err = r.retrieveNaive(ctx, workspace, vector, topK)
	case ModeLocal:
		result, err = r.retrieveLocal(ctx, workspace, vector, topK)
	case ModeGlobal:
		result, err = r.retrieveGlobal(ctx, workspace, vector, topK)
	case ModeHybrid:
		result, err = r.retrieveHybrid(ctx, workspace, vector, topK)
	default:
		result, err = r.retrieveMix(ctx, workspace, vector, topK)
	}
	if err != nil {
		// Only context cancellation crosses this boundary; search failures
		// already degraded to empty collections.
		r.observe(mode, "canceled", start)
		return nil, err
	}

	result.Mode = mode
	result.Context = BuildContext(result.Passages, result.Entities, result.Relations)

	span.SetAttributes(
		attribute.Int("rag.passages", len(result.Passages)),
		attribute.Int("rag.entities", len(result.Entities)),
		attribute.Int("rag.relations", len(result.Relations)),
	)
	r.observe(mode, "ok", start)
	r.logger.Debug("retrieval completed",
		zap.String("mode", string(mode)),
		zap.String("workspace", workspace),
		zap.Int("passages", len(result.Passages)),
		zap.Int("entities", len(result.Entities)),
		zap.Int("relations", len(result.Relations)),
		zap.Duration("elapsed", time.Since(start)))

	return result, nil
}

// retrieveNaive is a plain vector search over passages.
func (r *Retriever) retrieveNaive(ctx context.Context, workspace string, vector []float64, topK int) (*RetrievalResult, error) {
	passages := r.searchPassages(ctx, workspace, vector, topK)
	sortPassagesByScore(passages)
	return &RetrievalResult{Passages: passages}, nil
}

// retrieveLocal searches entities and resolves their linked source passages.
func (r *Retriever) retrieveLocal(ctx context.Context, workspace string, vector []float64, topK int) (*RetrievalResult, error) {
	entities := r.searchEntities(ctx, workspace, vector, topK)

	var passageIDs []string
	for _, e := range entities {
		passageIDs = append(passageIDs, e.SourcePassageIDs...)
	}
	passages := r.lookupPassages(ctx, workspace, uniqueStrings(passageIDs), linkedPassageScore)
	sortPassagesByScore(passages)

	return &RetrievalResult{Passages: passages, Entities: entities}, nil
}

// retrieveGlobal searches relations, resolves every referenced entity and the
// union of relation-linked source passages.
func (r *Retriever) retrieveGlobal(ctx context.Context, workspace string, vector []float64, topK int) (*RetrievalResult, error) {
	relations := r.searchRelations(ctx, workspace, vector, topK)

	var entityIDs, passageIDs []string
	for _, rel := range relations {
		entityIDs = append(entityIDs, rel.SourceEntityID, rel.TargetEntityID)
		passageIDs = append(passageIDs, rel.SourcePassageIDs...)
	}

	entities := r.lookupEntities(ctx, workspace, uniqueStrings(entityIDs), referencedEntityScore)
	passages := r.lookupPassages(ctx, workspace, uniqueStrings(passageIDs), linkedPassageScore)
	sortPassagesByScore(passages)

	return &RetrievalResult{Passages: passages, Entities: entities, Relations: relations}, nil
}

// retrieveHybrid runs local and global concurrently, each capped at
// ceil(topK/2), and merges their results by identifier.
func (r *Retriever) retrieveHybrid(ctx context.Context, workspace string, vector []float64, topK int) (*RetrievalResult, error) {
	half := (topK + 1) / 2

	var local, global *RetrievalResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		local, err = r.retrieveLocal(gctx, workspace, vector, half)
		return err
	})
	g.Go(func() error {
		var err error
		global, err = r.retrieveGlobal(gctx, workspace, vector, half)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	passages := mergePassages(local.Passages, global.Passages)
	entities := mergeEntities(local.Entities, global.Entities)
	sortPassagesByScore(passages)
	sortEntitiesByScore(entities)

	return &RetrievalResult{
		Passages:  passages,
		Entities:  entities,
		Relations: global.Relations,
	}, nil
}

// retrieveMix fans out three vector searches, then folds in passages linked
// from the matched entities and relations that the direct passage search
// missed. Passages are merged by identifier and truncated to topK.
func (r *Retriever) retrieveMix(ctx context.Context, workspace string, vector []float64, topK int) (*RetrievalResult, error) {
	half := (topK + 1) / 2

	var (
		passages  []ScoredPassage
		entities  []ScoredEntity
		relations []ScoredRelation
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		passages = r.searchPassages(gctx, workspace, vector, topK)
		return gctx.Err()
	})
	g.Go(func() error {
		entities = r.searchEntities(gctx, workspace, vector, half)
		return gctx.Err()
	})
	g.Go(func() error {
		relations = r.searchRelations(gctx, workspace, vector, half)
		return gctx.Err()
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	direct := make(map[string]struct{}, len(passages))
	for _, p := range passages {
		direct[p.ID] = struct{}{}
	}
	var linkedIDs []string
	for _, e := range entities {
		linkedIDs = append(linkedIDs, e.SourcePassageIDs...)
	}
	for _, rel := range relations {
		linkedIDs = append(linkedIDs, rel.SourcePassageIDs...)
	}
	linkedIDs = uniqueStrings(linkedIDs)
	missing := linkedIDs[:0]
	for _, id := range linkedIDs {
		if _, ok := direct[id]; !ok {
			missing = append(missing, id)
		}
	}
	linked := r.lookupPassages(ctx, workspace, missing, linkedPassageScore)

	passages = mergePassages(passages, linked)
	sortPassagesByScore(passages)
	if len(passages) > topK {
		passages = passages[:topK]
	}
	sortEntitiesByScore(entities)

	return &RetrievalResult{Passages: passages, Entities: entities, Relations: relations}, nil
}

// searchPassages degrades a failing search to "found nothing".
func (r *Retriever) searchPassages(ctx context.Context, workspace string, vector []float64, limit int) []ScoredPassage {
	out, err := r.store.SearchPassages(ctx, workspace, vector, limit, r.config.MinScore)
	if err != nil {
		r.logger.Warn("passage search failed, continuing with empty result",
			zap.String("workspace", workspace), zap.Error(err))
		return nil
	}
	return out
}

func (r *Retriever) searchEntities(ctx context.Context, workspace string, vector []float64, limit int) []ScoredEntity {
	out, err := r.store.SearchEntities(ctx, workspace, vector, limit, r.config.MinScore)
	if err != nil {
		r.logger.Warn("entity search failed, continuing with empty result",
			zap.String("workspace", workspace), zap.Error(err))
		return nil
	}
	return out
}

func (r *Retriever) searchRelations(ctx context.Context, workspace string, vector []float64, limit int) []ScoredRelation {
	out, err := r.store.SearchRelations(ctx, workspace, vector, limit, r.config.MinScore)
	if err != nil {
		r.logger.Warn("relation search failed, continuing with empty result",
			zap.String("workspace", workspace), zap.Error(err))
		return nil
	}
	return out
}

// lookupPassages resolves provenance-linked passages with a synthetic score.
func (r *Retriever) lookupPassages(ctx context.Context, workspace string, ids []string, score float64) []ScoredPassage {
	if len(ids) == 0 {
		return nil
	}
	passages, err := r.store.PassagesByIDs(ctx, workspace, ids)
	if err != nil {
		r.logger.Warn("passage lookup failed, continuing with empty result",
			zap.String("workspace", workspace), zap.Error(err))
		return nil
	}
	out := make([]ScoredPassage, 0, len(passages))
	for _, p := range passages {
		out = append(out, ScoredPassage{Passage: p, Score: score})
	}
	return out
}

func (r *Retriever) lookupEntities(ctx context.Context, workspace string, ids []string, score float64) []ScoredEntity {
	if len(ids) == 0 {
		return nil
	}
	entities, err := r.store.EntitiesByIDs(ctx, workspace, ids)
	if err != nil {
		r.logger.Warn("entity lookup failed, continuing with empty result",
			zap.String("workspace", workspace), zap.Error(err))
		return nil
	}
	out := make([]ScoredEntity, 0, len(entities))
	for _, e := range entities {
		out = append(out, ScoredEntity{Entity: e, Score: score})
	}
	return out
}

func (r *Retriever) observe(mode Mode, status string, start time.Time) {
	if r.metrics == nil {
		return
	}
	r.metrics.ObserveRetrieval(string(mode), status, time.Since(start))
}

func clampTopK(topK int) int {
	switch {
	case topK <= 0:
		return defaultTopK
	case topK < minTopK:
		return minTopK
	case topK > maxTopK:
		return maxTopK
	default:
		return topK
	}
}
