package rag

import (
	"context"
	"time"
)

// Mode selects the retrieval strategy.
type Mode string

const (
	ModeNaive  Mode = "naive"  // passage vector search only
	ModeLocal  Mode = "local"  // entity search + linked passages
	ModeGlobal Mode = "global" // relation search + referenced entities + linked passages
	ModeHybrid Mode = "hybrid" // local + global, merged
	ModeMix    Mode = "mix"    // passage + entity + relation search, merged
)

// ParseMode maps a raw string to a Mode. Unrecognized values fall back to ModeMix.
func ParseMode(s string) Mode {
	switch Mode(s) {
	case ModeNaive, ModeLocal, ModeGlobal, ModeHybrid, ModeMix:
		return Mode(s)
	default:
		return ModeMix
	}
}

// PassageType tags the origin of a passage's content.
type PassageType string

const (
	PassageText  PassageType = "text"
	PassageTable PassageType = "table"
	PassageImage PassageType = "image" // image-derived text
)

// Document is the parent unit passages belong to. Read-only to this package.
type Document struct {
	ID        string    `json:"id"`
	Workspace string    `json:"workspace"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
}

// Passage is a bounded span of a document's text, the atomic retrieval unit.
// Index positions are contiguous and zero-based within a document.
type Passage struct {
	ID         string      `json:"id"`
	Workspace  string      `json:"workspace"`
	DocumentID string      `json:"document_id"`
	Index      int         `json:"index"`
	Content    string      `json:"content"`
	TokenCount int         `json:"token_count"`
	Type       PassageType `json:"type"`
	Embedding  []float64   `json:"embedding,omitempty"`
}

// Entity is a named concept extracted from one or more passages.
// SourcePassageIDs is never empty for a persisted entity.
type Entity struct {
	ID               string    `json:"id"`
	Workspace        string    `json:"workspace"`
	Name             string    `json:"name"`
	Type             string    `json:"type"`
	Description      string    `json:"description,omitempty"`
	Embedding        []float64 `json:"embedding,omitempty"`
	SourcePassageIDs []string  `json:"source_passage_ids"`
}

// Relation is a directed, typed edge between two entities in the same workspace.
type Relation struct {
	ID               string    `json:"id"`
	Workspace        string    `json:"workspace"`
	SourceEntityID   string    `json:"source_entity_id"`
	TargetEntityID   string    `json:"target_entity_id"`
	Type             string    `json:"type"`
	Description      string    `json:"description,omitempty"`
	Embedding        []float64 `json:"embedding,omitempty"`
	SourcePassageIDs []string  `json:"source_passage_ids"`
}

// ScoredPassage is a passage annotated with a similarity score in [0,1].
type ScoredPassage struct {
	Passage
	Score float64 `json:"score"`
}

// ScoredEntity is an entity annotated with a similarity score in [0,1].
type ScoredEntity struct {
	Entity
	Score float64 `json:"score"`
}

// ScoredRelation is a relation annotated with a similarity score in [0,1].
type ScoredRelation struct {
	Relation
	Score float64 `json:"score"`
}

// RetrievalResult is the request-scoped aggregate produced by a retrieval.
// It is never persisted and never shared across requests.
type RetrievalResult struct {
	Mode      Mode             `json:"mode"`
	Passages  []ScoredPassage  `json:"passages"`
	Entities  []ScoredEntity   `json:"entities"`
	Relations []ScoredRelation `json:"relations"`
	Context   string           `json:"context"`
}

// Embedder converts a query string into a fixed-dimension vector.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float64, error)
}

// VectorSearcher is the ranked-read half of the storage gateway.
// An error or empty result means "no matches", never a fatal condition.
type VectorSearcher interface {
	SearchPassages(ctx context.Context, workspace string, vector []float64, limit int, threshold float64) ([]ScoredPassage, error)
	SearchEntities(ctx context.Context, workspace string, vector []float64, limit int, threshold float64) ([]ScoredEntity, error)
	SearchRelations(ctx context.Context, workspace string, vector []float64, limit int, threshold float64) ([]ScoredRelation, error)
}

// Lookup is the keyed-read half of the storage gateway, used to resolve
// provenance links. Missing IDs are skipped, not errors.
type Lookup interface {
	PassagesByIDs(ctx context.Context, workspace string, ids []string) ([]Passage, error)
	EntitiesByIDs(ctx context.Context, workspace string, ids []string) ([]Entity, error)
	DocumentsByIDs(ctx context.Context, workspace string, ids []string) ([]Document, error)
}

// Store is the full storage gateway contract consumed by the retriever.
type Store interface {
	VectorSearcher
	Lookup
}

// Generator is the language-model gateway.
type Generator interface {
	GenerateText(ctx context.Context, model, prompt string) (string, error)
}

// RetrievalUsage summarizes a completed retrieval for the usage side-channel.
type RetrievalUsage struct {
	Workspace string        `json:"workspace"`
	Mode      Mode          `json:"mode"`
	Passages  int           `json:"passages"`
	Entities  int           `json:"entities"`
	Relations int           `json:"relations"`
	Duration  time.Duration `json:"duration"`
}

// UsageRecorder receives usage records as explicit async tasks. Failures are
// logged by the caller and never block or fail the request path.
type UsageRecorder interface {
	RecordRetrieval(ctx context.Context, usage RetrievalUsage) error
}
