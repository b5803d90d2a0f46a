package rag

import (
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
)

// ChunkerConfig controls chunk sizing.
type ChunkerConfig struct {
	// TargetTokens is the estimated token budget per chunk.
	TargetTokens int `json:"target_tokens"`
	// OverlapTokens is the trailing window carried into the next chunk.
	OverlapTokens int `json:"overlap_tokens"`
}

// DefaultChunkerConfig returns the production chunking configuration.
func DefaultChunkerConfig() ChunkerConfig {
	return ChunkerConfig{
		TargetTokens:  512,
		OverlapTokens: 102, // 20% overlap
	}
}

// Chunk is one token-bounded passage of a normalized input text.
// StartOffset and EndOffset are byte offsets into the normalized input
// (CRLF folded to LF, leading/trailing whitespace trimmed).
type Chunk struct {
	Content     string `json:"content"`
	StartOffset int    `json:"start_offset"`
	EndOffset   int    `json:"end_offset"`
	TokenCount  int    `json:"token_count"`
	Index       int    `json:"index"`
}

// Chunker splits document text into ordered, overlap-aware passages.
//
// Splitting happens on paragraph boundaries (blank-line-delimited) and then on
// sentence boundaries (terminal punctuation followed by whitespace). Two sizing
// policies apply. A single sentence whose own estimate exceeds TargetTokens is
// emitted as an oversized chunk rather than hard-split. A chunk seeded with the
// overlap window may exceed TargetTokens by up to OverlapTokens when its first
// sentence is already near the target; the overlap is never trimmed to fit.
// Every chunk therefore stays within TargetTokens+OverlapTokens unless a
// single sentence is itself oversized.
type Chunker struct {
	config    ChunkerConfig
	tokenizer Tokenizer
	logger    *zap.Logger
}

// NewChunker creates a chunker. A nil tokenizer defaults to EstimateTokenizer.
func NewChunker(config ChunkerConfig, tokenizer Tokenizer, logger *zap.Logger) *Chunker {
	if tokenizer == nil {
		tokenizer = EstimateTokenizer{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chunker{
		config:    config,
		tokenizer: tokenizer,
		logger:    logger.With(zap.String("component", "chunker")),
	}
}

// Chunk splits text into passages. Output order matches input order and
// offsets are monotonically non-decreasing across the sequence.
func (c *Chunker) Chunk(text string) []Chunk {
	normalized := normalizeText(text)
	if normalized == "" {
		return nil
	}

	if c.tokenizer.CountTokens(normalized) <= c.config.TargetTokens {
		return []Chunk{{
			Content:     normalized,
			StartOffset: 0,
			EndOffset:   len(normalized),
			TokenCount:  c.tokenizer.CountTokens(normalized),
		}}
	}

	overlapBytes := c.config.OverlapTokens * tokenCharRatio
	spans := sentenceSpans(normalized)

	var chunks []Chunk
	bufStart := 0
	bufEnd := 0

	for _, sp := range spans {
		if bufEnd > bufStart && c.tokenizer.CountTokens(normalized[bufStart:sp.end]) > c.config.TargetTokens {
			chunks = c.emit(chunks, normalized, bufStart, bufEnd)
			// Seed the next chunk with the trailing overlap window of the
			// buffer just closed.
			bufStart = overlapStart(normalized, bufEnd, overlapBytes, bufStart)
		}
		bufEnd = sp.end
	}

	if strings.TrimSpace(normalized[bufStart:bufEnd]) != "" {
		chunks = c.emit(chunks, normalized, bufStart, bufEnd)
	}

	for i := range chunks {
		chunks[i].Index = i
	}

	c.logger.Debug("chunking completed",
		zap.Int("chunks", len(chunks)),
		zap.Int("target_tokens", c.config.TargetTokens),
		zap.Int("overlap_tokens", c.config.OverlapTokens))

	return chunks
}

func (c *Chunker) emit(chunks []Chunk, text string, start, end int) []Chunk {
	content := text[start:end]
	return append(chunks, Chunk{
		Content:     content,
		StartOffset: start,
		EndOffset:   end,
		TokenCount:  c.tokenizer.CountTokens(content),
	})
}

// normalizeText folds CRLF to LF and trims surrounding whitespace.
func normalizeText(text string) string {
	return strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n"))
}

type span struct {
	start int
	end   int
}

// sentenceSpans partitions text into contiguous spans, one per sentence,
// where a sentence ends at terminal punctuation followed by whitespace or at
// a paragraph break. Each span includes its trailing separator, so the spans
// exactly cover the input.
func sentenceSpans(text string) []span {
	var spans []span
	start := 0
	i := 0
	for i < len(text) {
		switch text[i] {
		case '.', '!', '?':
			j := i + 1
			for j < len(text) && (text[j] == '.' || text[j] == '!' || text[j] == '?') {
				j++
			}
			if j < len(text) && isSpaceByte(text[j]) {
				for j < len(text) && isSpaceByte(text[j]) {
					j++
				}
				spans = append(spans, span{start, j})
				start = j
				i = j
				continue
			}
			i = j
		case '\n':
			// A blank line is a paragraph boundary even without punctuation.
			j := i + 1
			blank := false
			for j < len(text) && isSpaceByte(text[j]) {
				if text[j] == '\n' {
					blank = true
				}
				j++
			}
			if blank {
				spans = append(spans, span{start, j})
				start = j
				i = j
				continue
			}
			i++
		default:
			i++
		}
	}
	if start < len(text) {
		spans = append(spans, span{start, len(text)})
	}
	return spans
}

// overlapStart walks back overlapBytes from end, clamped to floor and snapped
// forward to a rune boundary.
func overlapStart(text string, end, overlapBytes, floor int) int {
	start := end - overlapBytes
	if start < floor {
		start = floor
	}
	for start < end && !utf8.RuneStart(text[start]) {
		start++
	}
	return start
}

func isSpaceByte(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
