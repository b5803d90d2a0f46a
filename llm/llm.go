// Package llm provides the language-model gateway: a provider interface and
// an OpenAI-compatible chat-completions implementation.
package llm

import (
	"context"
	"time"
)

// Provider is the unified generation provider interface. Its GenerateText
// method satisfies rag.Generator.
type Provider interface {
	// Complete runs one chat completion.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// GenerateText is the convenience path used by the retrieval engine.
	GenerateText(ctx context.Context, model, prompt string) (string, error)

	// Name returns the provider name.
	Name() string
}

// CompletionRequest is one chat completion call.
type CompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionResponse is the provider's answer.
type CompletionResponse struct {
	Text         string `json:"text"`
	Model        string `json:"model"`
	PromptTokens int    `json:"prompt_tokens"`
	OutputTokens int    `json:"output_tokens"`
}

// Config holds the common provider configuration.
type Config struct {
	BaseURL string        `yaml:"base_url" json:"base_url"`
	APIKey  string        `yaml:"api_key" json:"api_key"`
	Model   string        `yaml:"model" json:"model"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
	// RequestsPerSecond caps the client-side request rate; 0 disables limiting.
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"`
}
