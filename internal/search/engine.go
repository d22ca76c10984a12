package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/quarrysearch/quarry/internal/chunk"
	"github.com/quarrysearch/quarry/internal/embed"
	qerrors "github.com/quarrysearch/quarry/internal/errors"
	"github.com/quarrysearch/quarry/internal/store"
	"github.com/quarrysearch/quarry/internal/token"
)

// EngineConfig holds the engine's tunable parameters.
type EngineConfig struct {
	// Weights is the default hybrid fusion balance.
	Weights Weights

	// OverfetchFactor multiplies top_k when fetching hybrid
	// candidates from each index, so a chunk ranked low on one path
	// but high on the other still reaches fusion. Default: 2.
	OverfetchFactor int

	// MaxTopK caps top_k per search call. Default: 100.
	MaxTopK int

	// EmbedBatchSize is the number of chunk texts embedded per batch
	// during ingestion. Default: embed.DefaultBatchSize.
	EmbedBatchSize int
}

// DefaultEngineConfig returns the documented defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Weights:         DefaultWeights(),
		OverfetchFactor: 2,
		MaxTopK:         100,
		EmbedBatchSize:  embed.DefaultBatchSize,
	}
}

func (c EngineConfig) withDefaults() EngineConfig {
	if c.Weights == (Weights{}) {
		c.Weights = DefaultWeights()
	}
	if c.OverfetchFactor <= 0 {
		c.OverfetchFactor = 2
	}
	if c.MaxTopK <= 0 {
		c.MaxTopK = 100
	}
	if c.EmbedBatchSize <= 0 {
		c.EmbedBatchSize = embed.DefaultBatchSize
	}
	return c
}

// LexicalFactory creates a fresh, empty lexical index. Each rebuild
// calls it once so the previous index stays live until the swap.
type LexicalFactory func() (store.LexicalIndex, error)

// VectorFactory creates a fresh, empty vector index.
type VectorFactory func() (store.VectorIndex, error)

// Engine is the retrieval engine. The corpus store is the source of
// truth; the lexical and vector indexes are disposable caches over it,
// rebuilt wholesale and swapped in atomically.
type Engine struct {
	corpus     store.CorpusStore
	tokenizer  token.Tokenizer
	embedder   embed.Embedder
	chunker    *chunk.Chunker
	newLexical LexicalFactory
	newVector  VectorFactory
	config     EngineConfig

	// mu guards the index pointers. Queries hold the read lock only
	// long enough to grab the current snapshots; a rebuild takes the
	// write lock only for the pointer swap.
	mu          sync.RWMutex
	lexical     store.LexicalIndex
	vector      store.VectorIndex
	lastRebuild time.Time
}

// NewEngine wires the engine from its collaborators and creates the
// initial (empty) index pair.
func NewEngine(
	corpus store.CorpusStore,
	tokenizer token.Tokenizer,
	embedder embed.Embedder,
	chunker *chunk.Chunker,
	newLexical LexicalFactory,
	newVector VectorFactory,
	config EngineConfig,
) (*Engine, error) {
	if corpus == nil {
		return nil, fmt.Errorf("corpus store is required")
	}
	if tokenizer == nil {
		return nil, fmt.Errorf("tokenizer is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if chunker == nil {
		return nil, fmt.Errorf("chunker is required")
	}
	if newLexical == nil || newVector == nil {
		return nil, fmt.Errorf("index factories are required")
	}

	lexical, err := newLexical()
	if err != nil {
		return nil, fmt.Errorf("creating lexical index: %w", err)
	}
	vector, err := newVector()
	if err != nil {
		_ = lexical.Close()
		return nil, fmt.Errorf("creating vector index: %w", err)
	}

	return &Engine{
		corpus:     corpus,
		tokenizer:  tokenizer,
		embedder:   embedder,
		chunker:    chunker,
		newLexical: newLexical,
		newVector:  newVector,
		config:     config.withDefaults(),
		lexical:    lexical,
		vector:     vector,
	}, nil
}

// indexes returns the current index snapshots.
func (e *Engine) indexes() (store.LexicalIndex, store.VectorIndex) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lexical, e.vector
}

// Search executes a query in the requested mode. "No results" is a
// normal empty return, never an error; errors are reserved for
// malformed requests and infrastructure failure.
func (e *Engine) Search(ctx context.Context, query string, opts SearchOptions) ([]*SearchResult, error) {
	if opts.TopK <= 0 {
		return nil, qerrors.InvalidArgument(fmt.Sprintf("top_k must be positive, got %d", opts.TopK))
	}
	if opts.TopK > e.config.MaxTopK {
		opts.TopK = e.config.MaxTopK
	}

	mode, err := ParseMode(string(opts.Mode))
	if err != nil {
		return nil, err
	}

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, qerrors.InvalidArgument("query must not be empty")
	}

	start := time.Now()
	var results []*SearchResult
	switch mode {
	case ModeLexical:
		results, err = e.searchLexical(ctx, query, opts.TopK)
	case ModeVector:
		results, err = e.searchVector(ctx, query, opts.TopK)
	case ModeHybrid:
		results, err = e.searchHybrid(ctx, query, opts)
	}
	if err != nil {
		return nil, err
	}

	slog.Debug("search_complete",
		slog.String("mode", string(mode)),
		slog.Int("top_k", opts.TopK),
		slog.Int("results", len(results)),
		slog.Duration("duration", time.Since(start)))
	return results, nil
}

func (e *Engine) searchLexical(ctx context.Context, query string, topK int) ([]*SearchResult, error) {
	tokens, err := e.tokenizer.Tokenize(query)
	if err != nil {
		return nil, qerrors.Tokenization("query", err)
	}
	if len(tokens) == 0 {
		return []*SearchResult{}, nil
	}

	lexical, _ := e.indexes()
	hits, err := lexical.Query(ctx, tokens, topK)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}

	candidates := make([]*FusedCandidate, len(hits))
	for i, h := range hits {
		candidates[i] = &FusedCandidate{
			ChunkID:       h.ChunkID,
			LexicalScore:  h.Score,
			CombinedScore: h.Score,
		}
	}
	return e.enrich(ctx, candidates)
}

func (e *Engine) searchVector(ctx context.Context, query string, topK int) ([]*SearchResult, error) {
	embedding, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	_, vector := e.indexes()
	hits, err := vector.Query(ctx, embedding, topK)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	candidates := make([]*FusedCandidate, len(hits))
	for i, h := range hits {
		candidates[i] = &FusedCandidate{
			ChunkID:       h.ChunkID,
			VectorScore:   h.Score,
			CombinedScore: h.Score,
		}
	}
	return e.enrich(ctx, candidates)
}

// searchHybrid runs both retrieval paths in parallel with over-fetch
// and fuses the candidate lists. Either path failing fails the search;
// a silently half-blind hybrid result would be worse than an error.
func (e *Engine) searchHybrid(ctx context.Context, query string, opts SearchOptions) ([]*SearchResult, error) {
	fetchK := opts.TopK * e.config.OverfetchFactor
	lexical, vector := e.indexes()

	var lexHits []*store.LexicalResult
	var vecHits []*store.VectorResult

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		tokens, err := e.tokenizer.Tokenize(query)
		if err != nil {
			return qerrors.Tokenization("query", err)
		}
		if len(tokens) == 0 {
			return nil
		}
		lexHits, err = lexical.Query(gctx, tokens, fetchK)
		if err != nil {
			return fmt.Errorf("lexical search: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		embedding, err := e.embedder.Embed(gctx, query)
		if err != nil {
			return fmt.Errorf("embedding query: %w", err)
		}
		vecHits, err = vector.Query(gctx, embedding, fetchK)
		if err != nil {
			return fmt.Errorf("vector search: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	weights := e.config.Weights
	if opts.Weights != nil {
		weights = *opts.Weights
	}
	fused := Fuse(lexHits, vecHits, weights, opts.TopK)
	return e.enrich(ctx, fused)
}

// enrich resolves candidates to full results via one batch corpus read,
// preserving candidate order.
func (e *Engine) enrich(ctx context.Context, candidates []*FusedCandidate) ([]*SearchResult, error) {
	if len(candidates) == 0 {
		return []*SearchResult{}, nil
	}

	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ChunkID
	}
	chunks, err := e.corpus.GetBatch(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*store.Chunk, len(chunks))
	for _, ch := range chunks {
		byID[ch.ID] = ch
	}

	results := make([]*SearchResult, 0, len(candidates))
	for _, c := range candidates {
		ch := byID[c.ChunkID]
		if ch == nil {
			// Index entry with no corpus record: stale index, skip.
			slog.Warn("search hit missing from corpus", slog.String("chunk_id", c.ChunkID))
			continue
		}
		results = append(results, &SearchResult{
			ChunkID:       ch.ID,
			DocumentID:    ch.DocumentID,
			Text:          ch.Text,
			Source:        ch.Source,
			Page:          ch.Page,
			LexicalScore:  c.LexicalScore,
			VectorScore:   c.VectorScore,
			CombinedScore: c.CombinedScore,
		})
	}
	return results, nil
}

// Ingest chunks, tokenizes, embeds, and persists a batch of documents.
// A tokenization failure skips that one document and the batch
// continues; a storage or embedding failure aborts the batch. Ingest
// does not update the indexes; call RebuildIndexes afterwards to
// restore freshness.
func (e *Engine) Ingest(ctx context.Context, docs []DocumentInput) (*IngestReport, error) {
	report := &IngestReport{BatchID: uuid.NewString()}
	start := time.Now()
	defer func() { report.Duration = time.Since(start) }()

	for _, input := range docs {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		doc := &store.Document{
			ID:          store.DocumentID(input.Text),
			Title:       input.Title,
			Source:      input.Source,
			Text:        input.Text,
			Pages:       input.Pages,
			PublishedAt: input.PublishedAt,
			CreatedAt:   time.Now().UTC(),
		}

		chunks, err := e.prepareDocument(ctx, doc)
		if err != nil {
			if qerrors.IsTokenization(err) {
				slog.Warn("skipping document after tokenization failure",
					slog.String("source", input.Source),
					slog.String("error", err.Error()))
				report.DocumentsSkipped++
				report.Errors = append(report.Errors, DocumentError{Source: input.Source, Err: err.Error()})
				continue
			}
			return report, err
		}
		if len(chunks) == 0 {
			report.DocumentsSkipped++
			continue
		}

		if err := e.corpus.PutDocument(ctx, doc); err != nil {
			return report, err
		}
		if err := e.corpus.Add(ctx, chunks); err != nil {
			return report, err
		}

		report.DocumentsProcessed++
		report.ChunksCreated += len(chunks)
	}

	slog.Info("ingest_complete",
		slog.String("batch_id", report.BatchID),
		slog.Int("documents", report.DocumentsProcessed),
		slog.Int("skipped", report.DocumentsSkipped),
		slog.Int("chunks", report.ChunksCreated),
		slog.Duration("duration", report.Duration))
	return report, nil
}

// RemoveBySource deletes every document ingested from the given source
// along with its chunks, and returns how many documents were removed.
// Like Ingest, it does not touch the indexes; call RebuildIndexes
// afterwards.
func (e *Engine) RemoveBySource(ctx context.Context, source string) (int, error) {
	docs, err := e.corpus.Documents(ctx)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, d := range docs {
		if d.Source != source {
			continue
		}
		if err := e.corpus.RemoveByDocument(ctx, d.ID); err != nil {
			return removed, err
		}
		removed++
	}

	if removed > 0 {
		slog.Info("documents_removed",
			slog.String("source", source),
			slog.Int("count", removed))
	}
	return removed, nil
}

// prepareDocument splits a document and fills each chunk's token list
// and embedding.
func (e *Engine) prepareDocument(ctx context.Context, doc *store.Document) ([]*store.Chunk, error) {
	chunks, err := e.chunker.Split(ctx, doc)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, nil
	}

	for _, c := range chunks {
		tokens, err := e.tokenizer.Tokenize(c.Text)
		if err != nil {
			return nil, qerrors.Tokenization(doc.ID, err)
		}
		c.Tokens = tokens
	}

	if err := e.embedChunks(ctx, chunks); err != nil {
		return nil, err
	}
	return chunks, nil
}

// embedChunks computes embeddings in batches with a cancellation check
// between batches.
func (e *Engine) embedChunks(ctx context.Context, chunks []*store.Chunk) error {
	wantDims := e.embedder.Dimensions()

	for start := 0; start < len(chunks); start += e.config.EmbedBatchSize {
		if err := ctx.Err(); err != nil {
			return err
		}

		end := min(start+e.config.EmbedBatchSize, len(chunks))
		batch := chunks[start:end]
		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}

		embeddings, err := e.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("embedding chunks: %w", err)
		}
		if len(embeddings) != len(batch) {
			return qerrors.Internal(
				fmt.Sprintf("embedder returned %d vectors for %d chunks", len(embeddings), len(batch)), nil)
		}
		for i, emb := range embeddings {
			if len(emb) != wantDims {
				return qerrors.DimensionMismatch(wantDims, len(emb))
			}
			batch[i].Embedding = emb
		}
	}
	return nil
}

// RebuildIndexes rebuilds both indexes from the corpus store into
// fresh structures, then swaps them in atomically. The previous pair
// stays authoritative until the swap, so a failed or cancelled rebuild
// leaves queries untouched.
func (e *Engine) RebuildIndexes(ctx context.Context) error {
	chunks, err := e.corpus.All(ctx)
	if err != nil {
		return err
	}

	newLexical, err := e.newLexical()
	if err != nil {
		return qerrors.New(qerrors.ErrCodeIndexBuild, "creating lexical index", err)
	}
	newVector, err := e.newVector()
	if err != nil {
		_ = newLexical.Close()
		return qerrors.New(qerrors.ErrCodeIndexBuild, "creating vector index", err)
	}

	// Both builds run in parallel in slices of the corpus, with a
	// cancellation check between slices.
	const buildBatch = 128
	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for s := 0; s < len(chunks); s += buildBatch {
			if err := gctx.Err(); err != nil {
				return err
			}
			batch := chunks[s:min(s+buildBatch, len(chunks))]
			if err := newLexical.Index(gctx, batch); err != nil {
				return fmt.Errorf("building lexical index: %w", err)
			}
		}
		return nil
	})
	g.Go(func() error {
		for s := 0; s < len(chunks); s += buildBatch {
			if err := gctx.Err(); err != nil {
				return err
			}
			batch := chunks[s:min(s+buildBatch, len(chunks))]
			ids := make([]string, 0, len(batch))
			vectors := make([][]float32, 0, len(batch))
			for _, c := range batch {
				if len(c.Embedding) == 0 {
					continue
				}
				ids = append(ids, c.ID)
				vectors = append(vectors, c.Embedding)
			}
			if len(ids) == 0 {
				continue
			}
			if err := newVector.Add(gctx, ids, vectors); err != nil {
				return fmt.Errorf("building vector index: %w", err)
			}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		_ = newLexical.Close()
		_ = newVector.Close()
		return err
	}

	e.mu.Lock()
	oldLexical, oldVector := e.lexical, e.vector
	e.lexical, e.vector = newLexical, newVector
	e.lastRebuild = time.Now()
	e.mu.Unlock()

	_ = oldLexical.Close()
	_ = oldVector.Close()

	slog.Info("indexes_rebuilt",
		slog.Int("chunks", len(chunks)),
		slog.Duration("duration", time.Since(start)))
	return nil
}

// Stats reports corpus and index counts and whether each index is
// fresh with respect to the corpus. Freshness compares chunk id sets,
// not counts: a remove followed by an ingest can leave the counts
// equal while the index still holds chunks the corpus has dropped.
func (e *Engine) Stats(ctx context.Context) (*Stats, error) {
	docCount, err := e.corpus.DocumentCount(ctx)
	if err != nil {
		return nil, err
	}
	corpusIDs, err := e.corpus.ChunkIDs(ctx)
	if err != nil {
		return nil, err
	}
	want := make(map[string]struct{}, len(corpusIDs))
	for _, id := range corpusIDs {
		want[id] = struct{}{}
	}

	e.mu.RLock()
	lexical, vector := e.lexical, e.vector
	lastRebuild := e.lastRebuild
	e.mu.RUnlock()

	lexIDs, err := lexical.AllIDs()
	if err != nil {
		return nil, err
	}
	vecIDs := vector.AllIDs()
	lexFresh := idSetEqual(want, lexIDs)
	vecFresh := idSetEqual(want, vecIDs)

	lexStats := lexical.Stats()
	return &Stats{
		TotalDocuments:      docCount,
		TotalChunks:         len(corpusIDs),
		LexicalIndexed:      lexStats.DocumentCount,
		VectorIndexed:       vector.Count(),
		LexicalFresh:        lexFresh,
		VectorFresh:         vecFresh,
		IndexFresh:          lexFresh && vecFresh,
		LastRebuild:         lastRebuild,
		EmbeddingModel:      e.embedder.ModelName(),
		EmbeddingDimensions: e.embedder.Dimensions(),
	}, nil
}

// idSetEqual reports whether ids contains exactly the keys of want.
func idSetEqual(want map[string]struct{}, ids []string) bool {
	if len(ids) != len(want) {
		return false
	}
	for _, id := range ids {
		if _, ok := want[id]; !ok {
			return false
		}
	}
	return true
}

// Close releases the indexes and the corpus store. The embedder is
// owned by the caller that injected it.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var firstErr error
	if err := e.lexical.Close(); err != nil {
		firstErr = err
	}
	if err := e.vector.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := e.corpus.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
