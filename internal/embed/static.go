package embed

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"unicode"
)

// StaticEmbedder generates embeddings by hashing word tokens and character
// n-grams into a fixed-dimension vector. It needs no network and no model
// download, is fully deterministic, and is the offline default and the
// test workhorse. Semantic quality is reduced accordingly: similarity
// reflects surface overlap, not meaning.
type StaticEmbedder struct {
	mu     sync.RWMutex
	closed bool
}

// Feature weights for vector generation. Word tokens carry most of the
// signal; character n-grams recover sub-word overlap for scripts without
// whitespace-delimited words.
const (
	staticTokenWeight = 0.7
	staticNgramWeight = 0.3
	staticNgramSize   = 2
)

// NewStaticEmbedder creates a new static embedder.
func NewStaticEmbedder() *StaticEmbedder {
	return &StaticEmbedder{}
}

// Embed generates the embedding for a single text.
func (e *StaticEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, fmt.Errorf("embedder is closed")
	}
	e.mu.RUnlock()

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return make([]float32, StaticDimensions), nil
	}

	return normalizeVector(e.generateVector(trimmed)), nil
}

// EmbedBatch generates embeddings for multiple texts, in order.
func (e *StaticEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors[i] = v
	}
	return vectors, nil
}

// Dimensions returns the embedding dimension.
func (e *StaticEmbedder) Dimensions() int { return StaticDimensions }

// ModelName returns the model identifier.
func (e *StaticEmbedder) ModelName() string { return "static-fnv-256" }

// Available checks if the embedder is ready.
func (e *StaticEmbedder) Available(ctx context.Context) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed
}

// Close releases resources.
func (e *StaticEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// generateVector hashes features into the vector.
func (e *StaticEmbedder) generateVector(text string) []float32 {
	vector := make([]float32, StaticDimensions)

	for _, tok := range staticTokens(text) {
		vector[hashToIndex(tok, StaticDimensions)] += staticTokenWeight

		// Character n-grams of each token, so "강남구는" and "강남구"
		// share features despite differing word boundaries.
		runes := []rune(tok)
		for i := 0; i+staticNgramSize <= len(runes); i++ {
			gram := string(runes[i : i+staticNgramSize])
			vector[hashToIndex(gram, StaticDimensions)] += staticNgramWeight
		}
	}

	return vector
}

// staticTokens splits on non-letter/digit runes and lowercases. All
// scripts are kept; nothing is ASCII-folded.
func staticTokens(text string) []string {
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make([]string, 0, len(words))
	for _, w := range words {
		tokens = append(tokens, strings.ToLower(w))
	}
	return tokens
}

// hashToIndex maps a feature string to a vector index via FNV-1a.
func hashToIndex(s string, dims int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return int(h.Sum32() % uint32(dims))
}

// Verify interface implementation
var _ Embedder = (*StaticEmbedder)(nil)
