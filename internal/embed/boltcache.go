package embed

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	bolt "go.etcd.io/bbolt"
)

var boltBucket = []byte("embeddings")

// BoltCachedEmbedder wraps another embedder with a persistent bbolt
// cache, so embeddings survive process restarts. Vectors are stored as
// little-endian float32 sequences keyed by sha256(model:text).
type BoltCachedEmbedder struct {
	inner Embedder
	db    *bolt.DB
}

// NewBoltCachedEmbedder opens (or creates) the cache database at path
// and wraps inner with it.
func NewBoltCachedEmbedder(inner Embedder, path string) (*BoltCachedEmbedder, error) {
	if inner == nil {
		return nil, fmt.Errorf("inner embedder is nil")
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening embedding cache %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing embedding cache: %w", err)
	}
	return &BoltCachedEmbedder{inner: inner, db: db}, nil
}

func (b *BoltCachedEmbedder) cacheKey(text string) []byte {
	sum := sha256.Sum256([]byte(b.inner.ModelName() + ":" + text))
	return sum[:]
}

func (b *BoltCachedEmbedder) get(key []byte) ([]float32, bool) {
	var vector []float32
	_ = b.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(boltBucket).Get(key)
		if raw == nil || len(raw)%4 != 0 {
			return nil
		}
		vector = make([]float32, len(raw)/4)
		for i := range vector {
			bits := binary.LittleEndian.Uint32(raw[i*4:])
			vector[i] = math.Float32frombits(bits)
		}
		return nil
	})
	return vector, vector != nil
}

func (b *BoltCachedEmbedder) putAll(keys [][]byte, vectors [][]float32) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(boltBucket)
		for i, key := range keys {
			raw := make([]byte, len(vectors[i])*4)
			for j, v := range vectors[i] {
				binary.LittleEndian.PutUint32(raw[j*4:], math.Float32bits(v))
			}
			if err := bucket.Put(key, raw); err != nil {
				return err
			}
		}
		return nil
	})
}

// Embed returns a cached embedding or delegates to the inner embedder.
func (b *BoltCachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := b.cacheKey(text)
	if v, ok := b.get(key); ok {
		return v, nil
	}
	v, err := b.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := b.putAll([][]byte{key}, [][]float32{v}); err != nil {
		return nil, fmt.Errorf("writing embedding cache: %w", err)
	}
	return v, nil
}

// EmbedBatch serves cached entries and computes only the misses, writing
// new vectors back in a single transaction.
func (b *BoltCachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	var missTexts []string
	var missIdx []int
	var missKeys [][]byte

	for i, text := range texts {
		key := b.cacheKey(text)
		if v, ok := b.get(key); ok {
			results[i] = v
			continue
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
		missKeys = append(missKeys, key)
	}

	if len(missTexts) == 0 {
		return results, nil
	}

	vectors, err := b.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(missTexts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(missTexts))
	}
	if err := b.putAll(missKeys, vectors); err != nil {
		return nil, fmt.Errorf("writing embedding cache: %w", err)
	}
	for j, v := range vectors {
		results[missIdx[j]] = v
	}
	return results, nil
}

// Dimensions returns the inner embedder's dimension.
func (b *BoltCachedEmbedder) Dimensions() int { return b.inner.Dimensions() }

// ModelName returns the inner embedder's model identifier.
func (b *BoltCachedEmbedder) ModelName() string { return b.inner.ModelName() }

// Available reports whether the inner embedder is ready.
func (b *BoltCachedEmbedder) Available(ctx context.Context) bool { return b.inner.Available(ctx) }

// Close closes the cache database and the inner embedder.
func (b *BoltCachedEmbedder) Close() error {
	dbErr := b.db.Close()
	innerErr := b.inner.Close()
	if dbErr != nil {
		return dbErr
	}
	return innerErr
}

// Verify interface implementation
var _ Embedder = (*BoltCachedEmbedder)(nil)
