package store

import (
	"fmt"
	"strings"
)

// Lexical backend names.
const (
	LexicalBackendMemory = "memory"
	LexicalBackendBleve  = "bleve"
)

// Vector backend names.
const (
	VectorBackendLinear = "linear"
	VectorBackendHNSW   = "hnsw"
)

// NewLexicalIndex creates a lexical index for the configured backend.
// path is only used by persistent backends; the memory backend ignores it.
func NewLexicalIndex(backend, path string, cfg BM25Config) (LexicalIndex, error) {
	switch strings.ToLower(backend) {
	case "", LexicalBackendMemory:
		return NewMemoryBM25Index(cfg), nil
	case LexicalBackendBleve:
		return NewBleveLexicalIndex(path)
	default:
		return nil, fmt.Errorf("unknown lexical backend: %q (supported: memory, bleve)", backend)
	}
}

// NewVectorIndex creates a vector index for the configured backend.
func NewVectorIndex(backend string, cfg VectorConfig) (VectorIndex, error) {
	if cfg.Dimensions < 1 {
		return nil, fmt.Errorf("vector index requires positive dimensions, got %d", cfg.Dimensions)
	}

	switch strings.ToLower(backend) {
	case "", VectorBackendLinear:
		return NewLinearVectorIndex(cfg.Dimensions), nil
	case VectorBackendHNSW:
		return NewHNSWVectorIndex(cfg), nil
	default:
		return nil, fmt.Errorf("unknown vector backend: %q (supported: linear, hnsw)", backend)
	}
}
