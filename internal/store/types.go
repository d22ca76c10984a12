// Package store provides the corpus store (SQLite) and the lexical and
// vector index backends. The corpus store is the single source of truth;
// both indexes are disposable caches rebuildable from it alone.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// CurrentSchemaVersion is the current corpus database schema version.
const CurrentSchemaVersion = 1

// Document represents an ingested source. Documents are immutable after
// ingestion; re-ingesting changed content yields a new ID because the ID is
// derived from the content.
type Document struct {
	ID          string     // SHA256 of the raw text, hex
	Title       string     // Display title
	Source      string     // Origin path or URL
	PublishedAt *time.Time // Optional publication date
	Text        string     // Raw text, page breaks joined
	Pages       []string   // Page-ordered text for page attribution (optional)
	CreatedAt   time.Time
}

// DocumentID computes the stable content-derived document ID.
func DocumentID(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// ChunkID builds the deterministic chunk ID for a document ordinal.
func ChunkID(documentID string, ordinal int) string {
	return fmt.Sprintf("%s_chunk_%d", documentID, ordinal)
}

// Chunk is the atomic retrievable unit. Chunks are owned by the corpus
// store; the indexes hold chunk IDs, never mutable copies.
type Chunk struct {
	ID         string    // <documentID>_chunk_<ordinal>
	DocumentID string    // Back-reference to the parent document
	Ordinal    int       // Position within the document, from 0
	Text       string    // Normalized text, one or more sentences, non-empty
	Tokens     []string  // Lowercased, stopword-filtered token list
	Embedding  []float32 // Fixed-dimension embedding vector
	Page       int       // 1-indexed page of the first sentence, 0 if unknown
	Source     string    // Origin path or URL (copied from the document)
	CreatedAt  time.Time
}

// CorpusStore persists chunks and documents durably. All derived indexes
// must be rebuildable from this store without re-invoking the embedding or
// tokenizing collaborators.
type CorpusStore interface {
	// PutDocument records document metadata. Idempotent on ID.
	PutDocument(ctx context.Context, doc *Document) error

	// Documents returns all document records ordered by ID.
	Documents(ctx context.Context) ([]*Document, error)

	// Add persists chunks. Idempotent on chunk ID: re-adding an existing
	// ID overwrites in place. On failure the visible store state is the
	// pre-call state.
	Add(ctx context.Context, chunks []*Chunk) error

	// Get returns the chunk with the given ID, or nil if absent.
	Get(ctx context.Context, id string) (*Chunk, error)

	// GetBatch returns the chunks for the given IDs. Missing IDs are
	// silently omitted from the result.
	GetBatch(ctx context.Context, ids []string) ([]*Chunk, error)

	// All returns every chunk ordered by ID.
	All(ctx context.Context) ([]*Chunk, error)

	// RemoveByDocument deletes all chunks of a document and the document
	// record itself.
	RemoveByDocument(ctx context.Context, documentID string) error

	// ChunkIDs returns every stored chunk ID ordered by ID, for
	// freshness checks against the derived indexes.
	ChunkIDs(ctx context.Context) ([]string, error)

	// ChunkCount returns the number of stored chunks.
	ChunkCount(ctx context.Context) (int, error)

	// DocumentCount returns the number of stored documents.
	DocumentCount(ctx context.Context) (int, error)

	// Close releases the underlying database and any held locks.
	Close() error
}

// LexicalResult is a single lexical index hit. Score is always > 0; the
// index never returns zero-score candidates.
type LexicalResult struct {
	ChunkID string
	Score   float64
}

// LexicalStats describes a lexical index snapshot.
type LexicalStats struct {
	DocumentCount int
	TermCount     int
	AvgDocLength  float64
}

// LexicalIndex ranks chunks by term overlap with a query token list.
// Implementations must be safe for concurrent readers with one writer.
type LexicalIndex interface {
	// Index adds chunks (their token lists) to the index.
	Index(ctx context.Context, chunks []*Chunk) error

	// Query returns up to topK chunks ranked by relevance to the tokens.
	// Results satisfy score > 0 and are ordered score descending, chunk ID
	// ascending on ties.
	Query(ctx context.Context, tokens []string, topK int) ([]*LexicalResult, error)

	// Delete removes chunks from the index by ID.
	Delete(ctx context.Context, ids []string) error

	// AllIDs returns all chunk IDs in the index, for freshness checks.
	AllIDs() ([]string, error)

	// Stats returns index statistics.
	Stats() *LexicalStats

	// Close releases index resources.
	Close() error
}

// VectorResult is a single vector index hit. Score is cosine similarity in
// [-1, 1]; the metric is identical between build and query.
type VectorResult struct {
	ChunkID string
	Score   float64
}

// VectorIndex finds nearest neighbors over chunk embeddings.
// Implementations must be safe for concurrent readers with one writer.
type VectorIndex interface {
	// Add inserts vectors keyed by chunk ID. Existing IDs are replaced.
	// Fails with a dimension mismatch error before any mutation of the
	// call is visible if a vector's dimension differs from the index's.
	Add(ctx context.Context, ids []string, vectors [][]float32) error

	// Query returns up to topK nearest chunks by cosine similarity,
	// ordered score descending, chunk ID ascending on ties.
	Query(ctx context.Context, vector []float32, topK int) ([]*VectorResult, error)

	// Delete removes vectors by chunk ID.
	Delete(ctx context.Context, ids []string) error

	// AllIDs returns all chunk IDs in the index, for freshness checks.
	AllIDs() []string

	// Count returns the number of indexed vectors.
	Count() int

	// Dimensions returns the configured embedding dimension.
	Dimensions() int

	// Close releases index resources.
	Close() error
}

// BM25Config configures the Okapi BM25 weighting of the memory lexical
// backend.
type BM25Config struct {
	// K1 is the term frequency saturation parameter (default: 1.2).
	K1 float64

	// B is the length normalization parameter (default: 0.75).
	B float64
}

// DefaultBM25Config returns the standard Okapi BM25 parameters.
func DefaultBM25Config() BM25Config {
	return BM25Config{K1: 1.2, B: 0.75}
}

// VectorConfig configures a vector index backend.
type VectorConfig struct {
	// Dimensions is the embedding dimension. Required.
	Dimensions int

	// M is the HNSW max connections per layer (hnsw backend only).
	M int

	// EfSearch is the HNSW query-time search width (hnsw backend only).
	EfSearch int
}

// DefaultVectorConfig returns defaults for the given dimension.
func DefaultVectorConfig(dimensions int) VectorConfig {
	return VectorConfig{
		Dimensions: dimensions,
		M:          16,
		EfSearch:   64,
	}
}
