package store

import (
	"context"
	"math"
	"sort"
	"sync"

	qerrors "github.com/quarrysearch/quarry/internal/errors"
)

// LinearVectorIndex is the exact brute-force vector backend and the
// correctness baseline any approximate backend is validated against.
// Vectors are unit-normalized at insert so a query is one dot product per
// chunk; scores are cosine similarity in [-1, 1]. Query cost is O(corpus),
// which bounds worst-case search latency linearly in corpus size.
type LinearVectorIndex struct {
	mu         sync.RWMutex
	dimensions int
	vectors    map[string][]float32
	closed     bool
}

// Verify interface implementation at compile time
var _ VectorIndex = (*LinearVectorIndex)(nil)

// NewLinearVectorIndex creates an empty linear-scan index for the given
// embedding dimension.
func NewLinearVectorIndex(dimensions int) *LinearVectorIndex {
	return &LinearVectorIndex{
		dimensions: dimensions,
		vectors:    make(map[string][]float32),
	}
}

// Add inserts vectors keyed by chunk ID. All dimensions are validated
// before any insertion, so a mismatch leaves the index untouched.
func (l *LinearVectorIndex) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(vectors) {
		return qerrors.InvalidArgument("ids and vectors length mismatch")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return qerrors.StoreClosed("add vectors")
	}

	for _, v := range vectors {
		if len(v) != l.dimensions {
			return qerrors.DimensionMismatch(l.dimensions, len(v))
		}
	}

	for i, id := range ids {
		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		normalizeInPlace(vec)
		l.vectors[id] = vec
	}
	return nil
}

// Query returns the exact topK nearest chunks by cosine similarity,
// ordered score descending with chunk ID ascending on ties.
func (l *LinearVectorIndex) Query(ctx context.Context, vector []float32, topK int) ([]*VectorResult, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return nil, qerrors.StoreClosed("query vector index")
	}
	if len(vector) != l.dimensions {
		return nil, qerrors.DimensionMismatch(l.dimensions, len(vector))
	}
	if topK <= 0 || len(l.vectors) == 0 {
		return []*VectorResult{}, nil
	}

	query := make([]float32, len(vector))
	copy(query, vector)
	normalizeInPlace(query)

	results := make([]*VectorResult, 0, len(l.vectors))
	for id, vec := range l.vectors {
		results = append(results, &VectorResult{
			ChunkID: id,
			Score:   dotProduct(query, vec),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkID < results[j].ChunkID
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Delete removes vectors by chunk ID.
func (l *LinearVectorIndex) Delete(ctx context.Context, ids []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return qerrors.StoreClosed("delete vectors")
	}

	for _, id := range ids {
		delete(l.vectors, id)
	}
	return nil
}

// AllIDs returns all chunk IDs in the index.
func (l *LinearVectorIndex) AllIDs() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return nil
	}

	ids := make([]string, 0, len(l.vectors))
	for id := range l.vectors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Count returns the number of indexed vectors.
func (l *LinearVectorIndex) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return 0
	}
	return len(l.vectors)
}

// Dimensions returns the configured embedding dimension.
func (l *LinearVectorIndex) Dimensions() int {
	return l.dimensions
}

// Close releases the index.
func (l *LinearVectorIndex) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	l.vectors = nil
	return nil
}

// normalizeInPlace scales a vector to unit length. The zero vector is left
// as-is and scores 0 against everything.
func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}

// dotProduct of two equal-length vectors. On unit vectors this is the
// cosine similarity.
func dotProduct(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
