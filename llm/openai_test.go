package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/BaSui01/graphrag/types"
)

func completionBody(text string) map[string]any {
	return map[string]any{
		"model": "gpt-4o-mini",
		"choices": []map[string]any{
			{"message": map[string]any{"role": "assistant", "content": text}},
		},
		"usage": map[string]any{"prompt_tokens": 12, "completion_tokens": 7},
	}
}

func TestNewOpenAIRequiresAPIKey(t *testing.T) {
	_, err := NewOpenAI(Config{BaseURL: "http://localhost"})
	require.Error(t, err)

	code, ok := types.CodeOf(err)
	require.True(t, ok)
	require.Equal(t, types.ErrAuthentication, code)
}

func TestComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "gpt-4o-mini", req.Model)
		require.Len(t, req.Messages, 1)
		require.Equal(t, "user", req.Messages[0].Role)

		json.NewEncoder(w).Encode(completionBody("the answer"))
	}))
	defer server.Close()

	p, err := NewOpenAI(Config{BaseURL: server.URL, APIKey: "sk-test", Model: "gpt-4o-mini"})
	require.NoError(t, err)

	resp, err := p.Complete(context.Background(), &CompletionRequest{
		Messages: []Message{{Role: "user", Content: "question"}},
	})
	require.NoError(t, err)
	require.Equal(t, "the answer", resp.Text)
	require.Equal(t, "gpt-4o-mini", resp.Model)
	require.Equal(t, 12, resp.PromptTokens)
	require.Equal(t, 7, resp.OutputTokens)
}

func TestCompleteModelOverride(t *testing.T) {
	var gotModel string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		json.NewDecoder(r.Body).Decode(&req)
		gotModel = req.Model
		json.NewEncoder(w).Encode(completionBody("ok"))
	}))
	defer server.Close()

	p, err := NewOpenAI(Config{BaseURL: server.URL, APIKey: "sk-test", Model: "default-model"})
	require.NoError(t, err)

	_, err = p.Complete(context.Background(), &CompletionRequest{
		Model:    "override-model",
		Messages: []Message{{Role: "user", Content: "q"}},
	})
	require.NoError(t, err)
	require.Equal(t, "override-model", gotModel)
}

func TestGenerateText(t *testing.T) {
	var gotReq chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(completionBody("generated"))
	}))
	defer server.Close()

	p, err := NewOpenAI(Config{BaseURL: server.URL, APIKey: "sk-test"})
	require.NoError(t, err)

	text, err := p.GenerateText(context.Background(), "gpt-4o", "the prompt")
	require.NoError(t, err)
	require.Equal(t, "generated", text)
	require.Equal(t, "gpt-4o", gotReq.Model)
	require.Equal(t, []Message{{Role: "user", Content: "the prompt"}}, gotReq.Messages)
}

func TestCompleteNoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer server.Close()

	p, err := NewOpenAI(Config{BaseURL: server.URL, APIKey: "sk-test"})
	require.NoError(t, err)

	_, err = p.Complete(context.Background(), &CompletionRequest{
		Messages: []Message{{Role: "user", Content: "q"}},
	})
	require.Error(t, err)

	code, ok := types.CodeOf(err)
	require.True(t, ok)
	require.Equal(t, types.ErrUpstreamError, code)
}

func TestCompleteUpstreamErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantCode  types.ErrorCode
		wantRetry bool
	}{
		{"unauthorized", http.StatusUnauthorized, types.ErrAuthentication, false},
		{"rate limited", http.StatusTooManyRequests, types.ErrRateLimited, true},
		{"request timeout", http.StatusRequestTimeout, types.ErrTimeout, true},
		{"bad gateway", http.StatusBadGateway, types.ErrUpstreamError, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			p, err := NewOpenAI(Config{BaseURL: server.URL, APIKey: "sk-test"})
			require.NoError(t, err)

			_, err = p.Complete(context.Background(), &CompletionRequest{
				Messages: []Message{{Role: "user", Content: "q"}},
			})
			require.Error(t, err)

			var typed *types.Error
			require.True(t, errors.As(err, &typed))
			require.Equal(t, tt.wantCode, typed.Code)
			require.Equal(t, tt.wantRetry, typed.Retryable)
		})
	}
}
