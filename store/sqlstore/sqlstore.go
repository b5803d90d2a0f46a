// Package sqlstore provides a SQL-backed store implementing the retrieval
// gateway contracts via GORM. Embeddings are stored serialized; similarity is
// scored in process, which keeps the store portable across sqlite, postgres
// and mysql at the cost of a full workspace scan per search.
package sqlstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/BaSui01/graphrag/rag"
)

// Config selects the SQL backend.
type Config struct {
	// Driver is one of "sqlite", "postgres", "mysql".
	Driver string `yaml:"driver" json:"driver"`
	// DSN is the driver-specific connection string.
	DSN string `yaml:"dsn" json:"dsn"`
}

type documentRow struct {
	ID        string `gorm:"primaryKey;size:64"`
	Workspace string `gorm:"index;size:64"`
	Name      string
	Type      string `gorm:"size:32"`
	CreatedAt time.Time
}

func (documentRow) TableName() string { return "documents" }

type passageRow struct {
	ID         string `gorm:"primaryKey;size:64"`
	Workspace  string `gorm:"index;size:64"`
	DocumentID string `gorm:"index;size:64"`
	Idx        int    `gorm:"column:idx"`
	Content    string
	TokenCount int
	Type       string    `gorm:"size:32"`
	Embedding  []float64 `gorm:"serializer:json"`
}

func (passageRow) TableName() string { return "passages" }

type entityRow struct {
	ID               string `gorm:"primaryKey;size:64"`
	Workspace        string `gorm:"index;size:64"`
	Name             string `gorm:"index"`
	Type             string `gorm:"size:64"`
	Description      string
	Embedding        []float64 `gorm:"serializer:json"`
	SourcePassageIDs []string  `gorm:"serializer:json"`
}

func (entityRow) TableName() string { return "entities" }

type relationRow struct {
	ID               string `gorm:"primaryKey;size:64"`
	Workspace        string `gorm:"index;size:64"`
	SourceEntityID   string `gorm:"index;size:64"`
	TargetEntityID   string `gorm:"index;size:64"`
	Type             string `gorm:"size:64"`
	Description      string
	Embedding        []float64 `gorm:"serializer:json"`
	SourcePassageIDs []string  `gorm:"serializer:json"`
}

func (relationRow) TableName() string { return "relations" }

// Store is a SQL-backed implementation of rag.Store.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// Open connects to the configured database and migrates the schema.
func Open(cfg Config, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite", "":
		dialector = sqlite.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.Driver, err)
	}
	if err := db.AutoMigrate(&documentRow{}, &passageRow{}, &entityRow{}, &relationRow{}); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	logger.Info("sql store opened", zap.String("driver", cfg.Driver))
	return &Store{db: db, logger: logger.With(zap.String("component", "sql_store"))}, nil
}

// SaveDocument upserts a document.
func (s *Store) SaveDocument(ctx context.Context, doc rag.Document) error {
	row := documentRow{
		ID:        doc.ID,
		Workspace: doc.Workspace,
		Name:      doc.Name,
		Type:      doc.Type,
		CreatedAt: doc.CreatedAt,
	}
	return s.db.WithContext(ctx).Save(&row).Error
}

// SavePassages upserts passages in one batch.
func (s *Store) SavePassages(ctx context.Context, passages []rag.Passage) error {
	if len(passages) == 0 {
		return nil
	}
	rows := make([]passageRow, 0, len(passages))
	for _, p := range passages {
		rows = append(rows, passageRow{
			ID:         p.ID,
			Workspace:  p.Workspace,
			DocumentID: p.DocumentID,
			Idx:        p.Index,
			Content:    p.Content,
			TokenCount: p.TokenCount,
			Type:       string(p.Type),
			Embedding:  p.Embedding,
		})
	}
	return s.db.WithContext(ctx).Save(&rows).Error
}

// SaveEntities upserts entities in one batch.
func (s *Store) SaveEntities(ctx context.Context, entities []rag.Entity) error {
	if len(entities) == 0 {
		return nil
	}
	rows := make([]entityRow, 0, len(entities))
	for _, e := range entities {
		if len(e.SourcePassageIDs) == 0 {
			return fmt.Errorf("entity %s has no source passages", e.Name)
		}
		rows = append(rows, entityRow{
			ID:               e.ID,
			Workspace:        e.Workspace,
			Name:             e.Name,
			Type:             e.Type,
			Description:      e.Description,
			Embedding:        e.Embedding,
			SourcePassageIDs: e.SourcePassageIDs,
		})
	}
	return s.db.WithContext(ctx).Save(&rows).Error
}

// SaveRelations upserts relations in one batch.
func (s *Store) SaveRelations(ctx context.Context, relations []rag.Relation) error {
	if len(relations) == 0 {
		return nil
	}
	rows := make([]relationRow, 0, len(relations))
	for _, r := range relations {
		rows = append(rows, relationRow{
			ID:               r.ID,
			Workspace:        r.Workspace,
			SourceEntityID:   r.SourceEntityID,
			TargetEntityID:   r.TargetEntityID,
			Type:             r.Type,
			Description:      r.Description,
			Embedding:        r.Embedding,
			SourcePassageIDs: r.SourcePassageIDs,
		})
	}
	return s.db.WithContext(ctx).Save(&rows).Error
}

// SearchPassages ranks workspace passages by cosine similarity.
func (s *Store) SearchPassages(ctx context.Context, workspace string, vector []float64, limit int, threshold float64) ([]rag.ScoredPassage, error) {
	var rows []passageRow
	if err := s.db.WithContext(ctx).Where("workspace = ?", workspace).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load passages: %w", err)
	}
	var results []rag.ScoredPassage
	for _, row := range rows {
		if row.Embedding == nil {
			continue
		}
		score := cosineSimilarity(vector, row.Embedding)
		if score < threshold {
			continue
		}
		results = append(results, rag.ScoredPassage{Passage: row.toPassage(), Score: score})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return capResults(results, limit), nil
}

// SearchEntities ranks workspace entities by cosine similarity.
func (s *Store) SearchEntities(ctx context.Context, workspace string, vector []float64, limit int, threshold float64) ([]rag.ScoredEntity, error) {
	var rows []entityRow
	if err := s.db.WithContext(ctx).Where("workspace = ?", workspace).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load entities: %w", err)
	}
	var results []rag.ScoredEntity
	for _, row := range rows {
		if row.Embedding == nil {
			continue
		}
		score := cosineSimilarity(vector, row.Embedding)
		if score < threshold {
			continue
		}
		results = append(results, rag.ScoredEntity{Entity: row.toEntity(), Score: score})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return capResults(results, limit), nil
}

// SearchRelations ranks workspace relations by cosine similarity.
func (s *Store) SearchRelations(ctx context.Context, workspace string, vector []float64, limit int, threshold float64) ([]rag.ScoredRelation, error) {
	var rows []relationRow
	if err := s.db.WithContext(ctx).Where("workspace = ?", workspace).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load relations: %w", err)
	}
	var results []rag.ScoredRelation
	for _, row := range rows {
		if row.Embedding == nil {
			continue
		}
		score := cosineSimilarity(vector, row.Embedding)
		if score < threshold {
			continue
		}
		results = append(results, rag.ScoredRelation{Relation: row.toRelation(), Score: score})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return capResults(results, limit), nil
}

// PassagesByIDs resolves passages within one workspace.
func (s *Store) PassagesByIDs(ctx context.Context, workspace string, ids []string) ([]rag.Passage, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []passageRow
	if err := s.db.WithContext(ctx).
		Where("workspace = ? AND id IN ?", workspace, ids).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("lookup passages: %w", err)
	}
	out := make([]rag.Passage, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toPassage())
	}
	return out, nil
}

// EntitiesByIDs resolves entities within one workspace.
func (s *Store) EntitiesByIDs(ctx context.Context, workspace string, ids []string) ([]rag.Entity, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []entityRow
	if err := s.db.WithContext(ctx).
		Where("workspace = ? AND id IN ?", workspace, ids).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("lookup entities: %w", err)
	}
	out := make([]rag.Entity, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toEntity())
	}
	return out, nil
}

// DocumentsByIDs resolves documents within one workspace.
func (s *Store) DocumentsByIDs(ctx context.Context, workspace string, ids []string) ([]rag.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []documentRow
	if err := s.db.WithContext(ctx).
		Where("workspace = ? AND id IN ?", workspace, ids).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("lookup documents: %w", err)
	}
	out := make([]rag.Document, 0, len(rows))
	for _, row := range rows {
		out = append(out, rag.Document{
			ID:        row.ID,
			Workspace: row.Workspace,
			Name:      row.Name,
			Type:      row.Type,
			CreatedAt: row.CreatedAt,
		})
	}
	return out, nil
}

func (row passageRow) toPassage() rag.Passage {
	return rag.Passage{
		ID:         row.ID,
		Workspace:  row.Workspace,
		DocumentID: row.DocumentID,
		Index:      row.Idx,
		Content:    row.Content,
		TokenCount: row.TokenCount,
		Type:       rag.PassageType(row.Type),
		Embedding:  row.Embedding,
	}
}

func (row entityRow) toEntity() rag.Entity {
	return rag.Entity{
		ID:               row.ID,
		Workspace:        row.Workspace,
		Name:             row.Name,
		Type:             row.Type,
		Description:      row.Description,
		Embedding:        row.Embedding,
		SourcePassageIDs: row.SourcePassageIDs,
	}
}

func (row relationRow) toRelation() rag.Relation {
	return rag.Relation{
		ID:               row.ID,
		Workspace:        row.Workspace,
		SourceEntityID:   row.SourceEntityID,
		TargetEntityID:   row.TargetEntityID,
		Type:             row.Type,
		Description:      row.Description,
		Embedding:        row.Embedding,
		SourcePassageIDs: row.SourcePassageIDs,
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
