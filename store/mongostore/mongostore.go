// Package mongostore provides a MongoDB-backed store implementing the
// retrieval gateway contracts. Similarity is scored in process over the
// workspace partition; swapping in Atlas $vectorSearch is a server-side
// change that keeps this interface intact.
package mongostore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"

	"github.com/BaSui01/graphrag/rag"
)

// Config selects the MongoDB deployment and database.
type Config struct {
	URI      string `yaml:"uri" json:"uri"`
	Database string `yaml:"database" json:"database"`
}

type documentDoc struct {
	ID        string    `bson:"_id"`
	Workspace string    `bson:"workspace"`
	Name      string    `bson:"name"`
	Type      string    `bson:"type"`
	CreatedAt time.Time `bson:"created_at"`
}

type passageDoc struct {
	ID         string    `bson:"_id"`
	Workspace  string    `bson:"workspace"`
	DocumentID string    `bson:"document_id"`
	Index      int       `bson:"index"`
	Content    string    `bson:"content"`
	TokenCount int       `bson:"token_count"`
	Type       string    `bson:"type"`
	Embedding  []float64 `bson:"embedding,omitempty"`
}

type entityDoc struct {
	ID               string    `bson:"_id"`
	Workspace        string    `bson:"workspace"`
	Name             string    `bson:"name"`
	Type             string    `bson:"type"`
	Description      string    `bson:"description,omitempty"`
	Embedding        []float64 `bson:"embedding,omitempty"`
	SourcePassageIDs []string  `bson:"source_passage_ids"`
}

type relationDoc struct {
	ID               string    `bson:"_id"`
	Workspace        string    `bson:"workspace"`
	SourceEntityID   string    `bson:"source_entity_id"`
	TargetEntityID   string    `bson:"target_entity_id"`
	Type             string    `bson:"type"`
	Description      string    `bson:"description,omitempty"`
	Embedding        []float64 `bson:"embedding,omitempty"`
	SourcePassageIDs []string  `bson:"source_passage_ids"`
}

// Store is a MongoDB-backed implementation of rag.Store.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	logger *zap.Logger
}

// Open connects to MongoDB and ensures the workspace indexes exist.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	db := client.Database(cfg.Database)

	for _, name := range []string{"documents", "passages", "entities", "relations"} {
		_, err := db.Collection(name).Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys: bson.D{{Key: "workspace", Value: 1}},
		})
		if err != nil {
			return nil, fmt.Errorf("ensure workspace index on %s: %w", name, err)
		}
	}

	logger.Info("mongo store opened", zap.String("database", cfg.Database))
	return &Store{
		client: client,
		db:     db,
		logger: logger.With(zap.String("component", "mongo_store")),
	}, nil
}

// Close disconnects the underlying client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// SaveDocument upserts a document.
func (s *Store) SaveDocument(ctx context.Context, doc rag.Document) error {
	_, err := s.db.Collection("documents").ReplaceOne(ctx,
		bson.M{"_id": doc.ID},
		documentDoc{ID: doc.ID, Workspace: doc.Workspace, Name: doc.Name, Type: doc.Type, CreatedAt: doc.CreatedAt},
		options.Replace().SetUpsert(true))
	return err
}

// SavePassages upserts passages one by one.
func (s *Store) SavePassages(ctx context.Context, passages []rag.Passage) error {
	coll := s.db.Collection("passages")
	for _, p := range passages {
		_, err := coll.ReplaceOne(ctx, bson.M{"_id": p.ID}, passageDoc{
			ID:         p.ID,
			Workspace:  p.Workspace,
			DocumentID: p.DocumentID,
			Index:      p.Index,
			Content:    p.Content,
			TokenCount: p.TokenCount,
			Type:       string(p.Type),
			Embedding:  p.Embedding,
		}, options.Replace().SetUpsert(true))
		if err != nil {
			return fmt.Errorf("save passage %s: %w", p.ID, err)
		}
	}
	return nil
}

// SaveEntities upserts entities one by one.
func (s *Store) SaveEntities(ctx context.Context, entities []rag.Entity) error {
	coll := s.db.Collection("entities")
	for _, e := range entities {
		if len(e.SourcePassageIDs) == 0 {
			return fmt.Errorf("entity %s has no source passages", e.Name)
		}
		_, err := coll.ReplaceOne(ctx, bson.M{"_id": e.ID}, entityDoc{
			ID:               e.ID,
			Workspace:        e.Workspace,
			Name:             e.Name,
			Type:             e.Type,
			Description:      e.Description,
			Embedding:        e.Embedding,
			SourcePassageIDs: e.SourcePassageIDs,
		}, options.Replace().SetUpsert(true))
		if err != nil {
			return fmt.Errorf("save entity %s: %w", e.ID, err)
		}
	}
	return nil
}

// SaveRelations upserts relations one by one.
func (s *Store) SaveRelations(ctx context.Context, relations []rag.Relation) error {
	coll := s.db.Collection("relations")
	for _, r := range relations {
		_, err := coll.ReplaceOne(ctx, bson.M{"_id": r.ID}, relationDoc{
			ID:               r.ID,
			Workspace:        r.Workspace,
			SourceEntityID:   r.SourceEntityID,
			TargetEntityID:   r.TargetEntityID,
			Type:             r.Type,
			Description:      r.Description,
			Embedding:        r.Embedding,
			SourcePassageIDs: r.SourcePassageIDs,
		}, options.Replace().SetUpsert(true))
		if err != nil {
			return fmt.Errorf("save relation %s: %w", r.ID, err)
		}
	}
	return nil
}

// SearchPassages ranks workspace passages by cosine similarity.
func (s *Store) SearchPassages(ctx context.Context, workspace string, vector []float64, limit int, threshold float64) ([]rag.ScoredPassage, error) {
	cursor, err := s.db.Collection("passages").Find(ctx, bson.M{
		"workspace": workspace,
		"embedding": bson.M{"$exists": true, "$ne": nil},
	})
	if err != nil {
		return nil, fmt.Errorf("find passages: %w", err)
	}
	var docs []passageDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode passages: %w", err)
	}

	var results []rag.ScoredPassage
	for _, d := range docs {
		score := cosineSimilarity(vector, d.Embedding)
		if score < threshold {
			continue
		}
		results = append(results, rag.ScoredPassage{Passage: d.toPassage(), Score: score})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return capResults(results, limit), nil
}

// SearchEntities ranks workspace entities by cosine similarity.
func (s *Store) SearchEntities(ctx context.Context, workspace string, vector []float64, limit int, threshold float64) ([]rag.ScoredEntity, error) {
	cursor, err := s.db.Collection("entities").Find(ctx, bson.M{
		"workspace": workspace,
		"embedding": bson.M{"$exists": true, "$ne": nil},
	})
	if err != nil {
		return nil, fmt.Errorf("find entities: %w", err)
	}
	var docs []entityDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode entities: %w", err)
	}

	var results []rag.ScoredEntity
	for _, d := range docs {
		score := cosineSimilarity(vector, d.Embedding)
		if score < threshold {
			continue
		}
		results = append(results, rag.ScoredEntity{Entity: d.toEntity(), Score: score})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return capResults(results, limit), nil
}

// SearchRelations ranks workspace relations by cosine similarity.
func (s *Store) SearchRelations(ctx context.Context, workspace string, vector []float64, limit int, threshold float64) ([]rag.ScoredRelation, error) {
	cursor, err := s.db.Collection("relations").Find(ctx, bson.M{
		"workspace": workspace,
		"embedding": bson.M{"$exists": true, "$ne": nil},
	})
	if err != nil {
		return nil, fmt.Errorf("find relations: %w", err)
	}
	var docs []relationDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode relations: %w", err)
	}

	var results []rag.ScoredRelation
	for _, d := range docs {
		score := cosineSimilarity(vector, d.Embedding)
		if score < threshold {
			continue
		}
		results = append(results, rag.ScoredRelation{Relation: d.toRelation(), Score: score})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return capResults(results, limit), nil
}

// PassagesByIDs resolves passages within one workspace.
func (s *Store) PassagesByIDs(ctx context.Context, workspace string, ids []string) ([]rag.Passage, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cursor, err := s.db.Collection("passages").Find(ctx, bson.M{
		"workspace": workspace,
		"_id":       bson.M{"$in": ids},
	})
	if err != nil {
		return nil, fmt.Errorf("lookup passages: %w", err)
	}
	var docs []passageDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode passages: %w", err)
	}
	out := make([]rag.Passage, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toPassage())
	}
	return out, nil
}

// EntitiesByIDs resolves entities within one workspace.
func (s *Store) EntitiesByIDs(ctx context.Context, workspace string, ids []string) ([]rag.Entity, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cursor, err := s.db.Collection("entities").Find(ctx, bson.M{
		"workspace": workspace,
		"_id":       bson.M{"$in": ids},
	})
	if err != nil {
		return nil, fmt.Errorf("lookup entities: %w", err)
	}
	var docs []entityDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode entities: %w", err)
	}
	out := make([]rag.Entity, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toEntity())
	}
	return out, nil
}

// DocumentsByIDs resolves documents within one workspace.
func (s *Store) DocumentsByIDs(ctx context.Context, workspace string, ids []string) ([]rag.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cursor, err := s.db.Collection("documents").Find(ctx, bson.M{
		"workspace": workspace,
		"_id":       bson.M{"$in": ids},
	})
	if err != nil {
		return nil, fmt.Errorf("lookup documents: %w", err)
	}
	var docs []documentDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode documents: %w", err)
	}
	out := make([]rag.Document, 0, len(docs))
	for _, d := range docs {
		out = append(out, rag.Document{
			ID:        d.ID,
			Workspace: d.Workspace,
			Name:      d.Name,
			Type:      d.Type,
			CreatedAt: d.CreatedAt,
		})
	}
	return out, nil
}

func (d passageDoc) toPassage() rag.Passage {
	return rag.Passage{
		ID:         d.ID,
		Workspace:  d.Workspace,
		DocumentID: d.DocumentID,
		Index:      d.Index,
		Content:    d.Content,
		TokenCount: d.TokenCount,
		Type:       rag.PassageType(d.Type),
		Embedding:  d.Embedding,
	}
}

func (d entityDoc) toEntity() rag.Entity {
	return rag.Entity{
		ID:               d.ID,
		Workspace:        d.Workspace,
		Name:             d.Name,
		Type:             d.Type,
		Description:      d.Description,
		Embedding:        d.Embedding,
		SourcePassageIDs: d.SourcePassageIDs,
	}
}

func (d relationDoc) toRelation() rag.Relation {
	return rag.Relation{
		ID:               d.ID,
		Workspace:        d.Workspace,
		SourceEntityID:   d.SourceEntityID,
		TargetEntityID:   d.TargetEntityID,
		Type:             d.Type,
		Description:      d.Description,
		Embedding:        d.Embedding,
		SourcePassageIDs: d.SourcePassageIDs,
	}
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
