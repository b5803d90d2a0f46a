package rag

import (
	"fmt"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// tokenCharRatio is the assumed characters-per-token ratio for English text.
const tokenCharRatio = 4

// Tokenizer counts tokens for chunk sizing decisions.
type Tokenizer interface {
	CountTokens(text string) int
}

// EstimateTokenizer estimates token counts as ceil(characters / tokenCharRatio).
// The estimate is deliberately cheap and consistent; exactness is not a goal.
type EstimateTokenizer struct{}

// CountTokens returns the estimated token count for text.
func (EstimateTokenizer) CountTokens(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + tokenCharRatio - 1) / tokenCharRatio
}

// TiktokenTokenizer counts tokens with a tiktoken encoding. Prefer it when
// chunk budgets must line up with a specific model's tokenizer; the chunker
// default stays EstimateTokenizer.
type TiktokenTokenizer struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenTokenizer creates a tokenizer for the given model
// (e.g. "gpt-4o", "gpt-3.5-turbo").
func NewTiktokenTokenizer(model string) (*TiktokenTokenizer, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return nil, fmt.Errorf("create tiktoken encoding for %s: %w", model, err)
	}
	return &TiktokenTokenizer{enc: enc}, nil
}

// CountTokens returns the exact token count for text.
func (t *TiktokenTokenizer) CountTokens(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}
