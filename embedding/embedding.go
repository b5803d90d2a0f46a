// Package embedding provides the embedding gateway: a unified provider
// interface, an OpenAI-compatible HTTP implementation, and a redis-backed
// vector cache decorator.
package embedding

import (
	"context"
	"time"
)

// Provider is the unified embedding provider interface. It satisfies
// rag.Embedder.
type Provider interface {
	// EmbedQuery embeds a single query string.
	EmbedQuery(ctx context.Context, query string) ([]float64, error)

	// EmbedDocuments embeds multiple documents in one batch.
	EmbedDocuments(ctx context.Context, documents []string) ([][]float64, error)

	// Name returns the provider name.
	Name() string

	// Dimensions returns the embedding dimension.
	Dimensions() int
}

// Config holds the common provider configuration.
type Config struct {
	BaseURL    string        `yaml:"base_url" json:"base_url"`
	APIKey     string        `yaml:"api_key" json:"api_key"`
	Model      string        `yaml:"model" json:"model"`
	Dimensions int           `yaml:"dimensions" json:"dimensions"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`
	// RequestsPerSecond caps the client-side request rate; 0 disables limiting.
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"`
}
