package embed

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/quarrysearch/quarry/internal/config"
	qerrors "github.com/quarrysearch/quarry/internal/errors"
)

// Backend names accepted by NewFromConfig.
const (
	BackendStatic = "static"
	BackendOllama = "ollama"
)

// diskCacheFile is the bbolt cache filename under the data directory.
const diskCacheFile = "embeddings.db"

// NewFromConfig builds the embedder stack from configuration: the base
// backend wrapped with the in-memory LRU cache, plus the persistent
// disk cache when enabled and a data directory is available.
func NewFromConfig(ctx context.Context, cfg config.EmbeddingConfig, dataDir string) (Embedder, error) {
	base, err := newBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}

	embedder := base
	if cfg.DiskCache && dataDir != "" {
		wrapped, err := NewBoltCachedEmbedder(embedder, filepath.Join(dataDir, diskCacheFile))
		if err != nil {
			_ = base.Close()
			return nil, err
		}
		embedder = wrapped
	}

	// LRU layer goes outermost so repeated texts within a run never
	// touch the disk cache. Cache size zero disables it.
	if cfg.CacheSize > 0 {
		cached, err := NewCachedEmbedder(embedder, cfg.CacheSize)
		if err != nil {
			_ = embedder.Close()
			return nil, err
		}
		return cached, nil
	}
	return embedder, nil
}

func newBackend(ctx context.Context, cfg config.EmbeddingConfig) (Embedder, error) {
	switch cfg.Backend {
	case "", BackendStatic:
		return NewStaticEmbedder(), nil
	case BackendOllama:
		return NewOllamaEmbedder(ctx, OllamaConfig{
			Host:       cfg.OllamaHost,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			BatchSize:  cfg.BatchSize,
			Timeout:    DefaultTimeout,
			MaxRetries: DefaultMaxRetries,
		})
	default:
		return nil, qerrors.InvalidArgument(
			fmt.Sprintf("unknown embedding backend %q (want static or ollama)", cfg.Backend))
	}
}

// WaitAvailable polls the embedder until it reports ready or the
// context expires. Static embedders return immediately.
func WaitAvailable(ctx context.Context, e Embedder, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Second
	}
	for {
		if e.Available(ctx) {
			return nil
		}
		select {
		case <-ctx.Done():
			return qerrors.New(qerrors.ErrCodeEmbedderUnavailable,
				fmt.Sprintf("embedder %s did not become available", e.ModelName()), ctx.Err())
		case <-time.After(interval):
		}
	}
}
