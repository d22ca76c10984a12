package store

import (
	"context"
	"sort"
	"sync"

	"github.com/coder/hnsw"

	qerrors "github.com/quarrysearch/quarry/internal/errors"
)

// HNSWVectorIndex is the approximate vector backend, wrapping the
// coder/hnsw pure Go graph. It reports the same cosine-similarity scores
// as the linear baseline; only recall may differ, and only for corpora
// large enough for graph search to prune. Rebuilt from the corpus store
// on demand, so it carries no persistence of its own.
type HNSWVectorIndex struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config VectorConfig

	// ID mapping (string <-> uint64 graph key).
	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64

	closed bool
}

// Verify interface implementation at compile time
var _ VectorIndex = (*HNSWVectorIndex)(nil)

// NewHNSWVectorIndex creates an empty HNSW index.
func NewHNSWVectorIndex(cfg VectorConfig) *HNSWVectorIndex {
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 64
	}

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	return &HNSWVectorIndex{
		graph:  graph,
		config: cfg,
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
	}
}

// Add inserts vectors keyed by chunk ID. All dimensions are validated
// before any insertion. Replacing an existing ID uses lazy deletion: the
// old graph node is orphaned rather than removed, which sidesteps
// coder/hnsw issues when deleting the last node.
func (h *HNSWVectorIndex) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(vectors) {
		return qerrors.InvalidArgument("ids and vectors length mismatch")
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return qerrors.StoreClosed("add vectors")
	}

	for _, v := range vectors {
		if len(v) != h.config.Dimensions {
			return qerrors.DimensionMismatch(h.config.Dimensions, len(v))
		}
	}

	for i, id := range ids {
		if existingKey, exists := h.idMap[id]; exists {
			delete(h.keyMap, existingKey)
			delete(h.idMap, id)
		}

		key := h.nextKey
		h.nextKey++

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		normalizeInPlace(vec)

		h.graph.Add(hnsw.MakeNode(key, vec))
		h.idMap[id] = key
		h.keyMap[key] = id
	}
	return nil
}

// Query returns up to topK approximate nearest chunks by cosine
// similarity, ordered score descending with chunk ID ascending on ties.
func (h *HNSWVectorIndex) Query(ctx context.Context, vector []float32, topK int) ([]*VectorResult, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return nil, qerrors.StoreClosed("query vector index")
	}
	if len(vector) != h.config.Dimensions {
		return nil, qerrors.DimensionMismatch(h.config.Dimensions, len(vector))
	}
	if topK <= 0 || h.graph.Len() == 0 {
		return []*VectorResult{}, nil
	}

	query := make([]float32, len(vector))
	copy(query, vector)
	normalizeInPlace(query)

	// Over-fetch to compensate for lazily deleted orphan nodes.
	fetch := topK + (h.graph.Len() - len(h.idMap))
	nodes := h.graph.Search(query, fetch)

	results := make([]*VectorResult, 0, len(nodes))
	for _, node := range nodes {
		id, exists := h.keyMap[node.Key]
		if !exists {
			// Orphaned by lazy deletion.
			continue
		}
		// CosineDistance is 1 - similarity, so invert it back.
		distance := h.graph.Distance(query, node.Value)
		results = append(results, &VectorResult{
			ChunkID: id,
			Score:   1 - float64(distance),
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

// Delete removes vectors by chunk ID using lazy deletion.
func (h *HNSWVectorIndex) Delete(ctx context.Context, ids []string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return qerrors.StoreClosed("delete vectors")
	}

	for _, id := range ids {
		if key, exists := h.idMap[id]; exists {
			delete(h.keyMap, key)
			delete(h.idMap, id)
		}
	}
	return nil
}

// AllIDs returns all chunk IDs in the index.
func (h *HNSWVectorIndex) AllIDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return nil
	}

	ids := make([]string, 0, len(h.idMap))
	for id := range h.idMap {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Count returns the number of indexed vectors (orphans excluded).
func (h *HNSWVectorIndex) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return 0
	}
	return len(h.idMap)
}

// Dimensions returns the configured embedding dimension.
func (h *HNSWVectorIndex) Dimensions() int {
	return h.config.Dimensions
}

// Close releases the graph.
func (h *HNSWVectorIndex) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true
	h.graph = nil
	return nil
}
