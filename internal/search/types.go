// Package search implements the hybrid retrieval engine: it fans a
// query out to the lexical and vector indexes and fuses the two ranked
// candidate lists into one result set.
package search

import (
	"time"

	qerrors "github.com/quarrysearch/quarry/internal/errors"
)

// Mode selects the retrieval path for a search.
type Mode string

const (
	// ModeLexical queries the lexical index only.
	ModeLexical Mode = "lexical"
	// ModeVector queries the vector index only.
	ModeVector Mode = "vector"
	// ModeHybrid runs both paths and fuses the candidate lists.
	ModeHybrid Mode = "hybrid"
)

// ParseMode validates a mode string. The empty string means hybrid.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeLexical, ModeVector, ModeHybrid:
		return Mode(s), nil
	case "":
		return ModeHybrid, nil
	default:
		return "", qerrors.UnknownMode(s)
	}
}

// Weights controls the lexical/vector balance in hybrid fusion. The
// two weights need not sum to 1.
type Weights struct {
	Lexical float64
	Vector  float64
}

// DefaultWeights favors the vector signal, matching the observation
// that lexical matching is precise but sparse for analytic prose.
func DefaultWeights() Weights {
	return Weights{Lexical: 0.3, Vector: 0.7}
}

// SearchOptions configures a single search call.
type SearchOptions struct {
	// Mode selects the retrieval path. Default: hybrid.
	Mode Mode

	// TopK is the number of results to return. Must be positive.
	TopK int

	// Weights overrides the engine's fusion weights for this call.
	// Nil uses the engine defaults. Ignored outside hybrid mode.
	Weights *Weights
}

// SearchResult is one ranked hit, enriched with chunk data from the
// corpus store.
type SearchResult struct {
	ChunkID    string `json:"chunk_id"`
	DocumentID string `json:"document_id"`
	Text       string `json:"text"`
	Source     string `json:"source,omitempty"`
	Page       int    `json:"page,omitempty"`

	// LexicalScore and VectorScore are the raw per-index scores. A
	// result missing from one path carries 0 for that path.
	LexicalScore float64 `json:"lexical_score"`
	VectorScore  float64 `json:"vector_score"`

	// CombinedScore is the fused score in hybrid mode, or the raw
	// index score in single-path modes.
	CombinedScore float64 `json:"combined_score"`
}

// DocumentInput is one document handed to Ingest. The caller (the
// extract package or an API client) supplies the text content; the
// engine never reads files itself.
type DocumentInput struct {
	Title       string
	Source      string
	Text        string
	Pages       []string
	PublishedAt *time.Time
}

// DocumentError records a per-document ingestion failure that did not
// abort the batch.
type DocumentError struct {
	Source string `json:"source"`
	Err    string `json:"error"`
}

// IngestReport summarizes one Ingest call.
type IngestReport struct {
	BatchID            string          `json:"batch_id"`
	DocumentsProcessed int             `json:"documents_processed"`
	DocumentsSkipped   int             `json:"documents_skipped"`
	ChunksCreated      int             `json:"chunks_created"`
	Errors             []DocumentError `json:"errors,omitempty"`
	Duration           time.Duration   `json:"duration"`
}

// Stats reports corpus and index state.
type Stats struct {
	TotalDocuments int `json:"total_documents"`
	TotalChunks    int `json:"total_chunks"`

	// LexicalIndexed and VectorIndexed are the per-index entry counts.
	LexicalIndexed int `json:"lexical_indexed"`
	VectorIndexed  int `json:"vector_indexed"`

	// LexicalFresh and VectorFresh are true when that index holds
	// exactly the corpus chunk id set. Counts alone can coincide after
	// a remove plus an ingest, so freshness compares the ids.
	LexicalFresh bool `json:"lexical_fresh"`
	VectorFresh  bool `json:"vector_fresh"`

	// IndexFresh is true when both indexes are fresh, i.e. nothing is
	// waiting on a rebuild.
	IndexFresh bool `json:"index_fresh"`

	// LastRebuild is when the indexes were last rebuilt and swapped
	// in. Zero if this engine has not rebuilt yet.
	LastRebuild time.Time `json:"last_rebuild,omitempty"`

	EmbeddingModel      string `json:"embedding_model"`
	EmbeddingDimensions int    `json:"embedding_dimensions"`
}
