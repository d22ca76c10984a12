// Package retriever is the public entry point to a quarry corpus. It
// assembles the configuration, corpus store, tokenizer, embedder, and
// search engine into one handle with the four corpus operations:
// ingest, rebuild, search, stats.
package retriever

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/quarrysearch/quarry/internal/chunk"
	"github.com/quarrysearch/quarry/internal/config"
	"github.com/quarrysearch/quarry/internal/embed"
	"github.com/quarrysearch/quarry/internal/extract"
	"github.com/quarrysearch/quarry/internal/search"
	"github.com/quarrysearch/quarry/internal/store"
	"github.com/quarrysearch/quarry/internal/token"
)

// embedderWaitTimeout bounds how long Open waits for a remote
// embedding backend to come up.
const embedderWaitTimeout = 30 * time.Second

// Retriever is an open corpus handle. Safe for concurrent use.
type Retriever struct {
	root     string
	dataDir  string
	cfg      *config.Config
	engine   *search.Engine
	embedder embed.Embedder
}

// Option customizes Open.
type Option func(*options)

type options struct {
	cfg      *config.Config
	embedder embed.Embedder
}

// WithConfig uses the given configuration instead of loading it from
// the corpus root.
func WithConfig(cfg *config.Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithEmbedder injects a pre-built embedder, bypassing the configured
// backend. The retriever takes ownership and closes it.
func WithEmbedder(e embed.Embedder) Option {
	return func(o *options) { o.embedder = e }
}

// Open opens (or initializes) the corpus rooted at root and rebuilds
// the indexes from the stored chunks, so searches are immediately
// consistent with the corpus.
func Open(ctx context.Context, root string, opts ...Option) (*Retriever, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	cfg := o.cfg
	if cfg == nil {
		loaded, err := config.Load(root)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	dataDir := cfg.DataDir(root)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory %s: %w", dataDir, err)
	}
	// Index directories from a previous process are stale by
	// definition; the indexes are rebuilt below.
	cleanStaleIndexDirs(dataDir)

	corpus, err := store.OpenCorpus(filepath.Join(dataDir, "corpus.db"))
	if err != nil {
		return nil, err
	}

	tokenizer, err := token.New(cfg.Search.Tokenizer)
	if err != nil {
		_ = corpus.Close()
		return nil, err
	}

	embedder := o.embedder
	if embedder == nil {
		embedder, err = embed.NewFromConfig(ctx, cfg.Embedding, dataDir)
		if err != nil {
			_ = corpus.Close()
			return nil, err
		}
		// A remote backend may still be starting up; the rebuild below
		// embeds, so wait for readiness here with a bound.
		if cfg.Embedding.Backend == embed.BackendOllama {
			waitCtx, cancel := context.WithTimeout(ctx, embedderWaitTimeout)
			err = embed.WaitAvailable(waitCtx, embedder, 0)
			cancel()
			if err != nil {
				_ = embedder.Close()
				_ = corpus.Close()
				return nil, err
			}
		}
	}

	chunker, err := chunk.New(cfg.Chunking.ChunkSize, cfg.Chunking.ChunkOverlap)
	if err != nil {
		_ = embedder.Close()
		_ = corpus.Close()
		return nil, err
	}

	engine, err := search.NewEngine(
		corpus,
		tokenizer,
		embedder,
		chunker,
		lexicalFactory(cfg, dataDir),
		vectorFactory(cfg, embedder.Dimensions()),
		search.EngineConfig{
			Weights: search.Weights{
				Lexical: cfg.Search.LexicalWeight,
				Vector:  cfg.Search.VectorWeight,
			},
			OverfetchFactor: cfg.Search.TopKOverfetchFactor,
			MaxTopK:         cfg.Search.MaxTopK,
			EmbedBatchSize:  cfg.Embedding.BatchSize,
		},
	)
	if err != nil {
		_ = embedder.Close()
		_ = corpus.Close()
		return nil, err
	}

	r := &Retriever{
		root:     root,
		dataDir:  dataDir,
		cfg:      cfg,
		engine:   engine,
		embedder: embedder,
	}

	if err := engine.RebuildIndexes(ctx); err != nil {
		_ = r.Close()
		return nil, err
	}
	return r, nil
}

// lexicalFactory returns a factory producing fresh lexical indexes.
// The bleve backend gets a new directory per build so the previous
// index stays live until the engine swaps it out.
func lexicalFactory(cfg *config.Config, dataDir string) search.LexicalFactory {
	return func() (store.LexicalIndex, error) {
		path := ""
		if cfg.Search.LexicalBackend == store.LexicalBackendBleve {
			dir, err := os.MkdirTemp(dataDir, "lexical-")
			if err != nil {
				return nil, fmt.Errorf("creating lexical index directory: %w", err)
			}
			path = filepath.Join(dir, "index.bleve")
		}
		return store.NewLexicalIndex(cfg.Search.LexicalBackend, path, store.DefaultBM25Config())
	}
}

// vectorFactory returns a factory producing fresh vector indexes.
func vectorFactory(cfg *config.Config, dimensions int) search.VectorFactory {
	return func() (store.VectorIndex, error) {
		return store.NewVectorIndex(cfg.Search.VectorBackend, store.DefaultVectorConfig(dimensions))
	}
}

// cleanStaleIndexDirs removes lexical index directories left over from
// earlier processes.
func cleanStaleIndexDirs(dataDir string) {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), "lexical-") {
			_ = os.RemoveAll(filepath.Join(dataDir, e.Name()))
		}
	}
}

// Ingest adds documents to the corpus store. Indexes are not touched;
// call Rebuild to make the new chunks searchable. Stats reports
// whether the indexes are fresh.
func (r *Retriever) Ingest(ctx context.Context, docs []search.DocumentInput) (*search.IngestReport, error) {
	return r.engine.Ingest(ctx, docs)
}

// IngestPaths extracts and ingests the given files. Unsupported and
// unreadable files are reported as skipped, matching the per-document
// isolation of batch ingest.
func (r *Retriever) IngestPaths(ctx context.Context, paths []string) (*search.IngestReport, error) {
	var docs []search.DocumentInput
	var skipped []search.DocumentError

	for _, path := range paths {
		extractor := extract.ForPath(path)
		if extractor == nil {
			skipped = append(skipped, search.DocumentError{Source: path, Err: "unsupported file type"})
			continue
		}
		doc, err := extractor.Extract(path)
		if err != nil {
			skipped = append(skipped, search.DocumentError{Source: path, Err: err.Error()})
			continue
		}
		docs = append(docs, *doc)
	}

	report, err := r.Ingest(ctx, docs)
	if report != nil {
		report.DocumentsSkipped += len(skipped)
		report.Errors = append(report.Errors, skipped...)
	}
	return report, err
}

// RemoveBySource deletes every document ingested from source. Call
// Rebuild afterwards to drop the removed chunks from the indexes.
func (r *Retriever) RemoveBySource(ctx context.Context, source string) (int, error) {
	return r.engine.RemoveBySource(ctx, source)
}

// Search runs a query against the corpus. Options follow the engine
// contract: TopK must be positive, Mode defaults to hybrid.
func (r *Retriever) Search(ctx context.Context, query string, opts search.SearchOptions) ([]*search.SearchResult, error) {
	return r.engine.Search(ctx, query, opts)
}

// Rebuild rebuilds both indexes from the corpus store.
func (r *Retriever) Rebuild(ctx context.Context) error {
	return r.engine.RebuildIndexes(ctx)
}

// Stats reports corpus and index state.
func (r *Retriever) Stats(ctx context.Context) (*search.Stats, error) {
	return r.engine.Stats(ctx)
}

// Config returns the effective configuration.
func (r *Retriever) Config() *config.Config {
	return r.cfg
}

// DataDir returns the corpus data directory.
func (r *Retriever) DataDir() string {
	return r.dataDir
}

// Close releases the engine, the corpus store, and the embedder.
func (r *Retriever) Close() error {
	engineErr := r.engine.Close()
	embedErr := r.embedder.Close()
	cleanStaleIndexDirs(r.dataDir)
	if engineErr != nil {
		return engineErr
	}
	return embedErr
}
