package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tokenChunk(id string, tokens ...string) *Chunk {
	return &Chunk{ID: id, DocumentID: "doc", Text: "text", Tokens: tokens}
}

// TS01: Basic Ranking
func TestMemoryBM25Index_QueryRanksByOverlap(t *testing.T) {
	// Given: an index with three chunks
	idx := NewMemoryBM25Index(DefaultBM25Config())
	defer func() { _ = idx.Close() }()

	ctx := context.Background()
	require.NoError(t, idx.Index(ctx, []*Chunk{
		tokenChunk("a", "cafe", "district", "startup"),
		tokenChunk("b", "cafe", "district"),
		tokenChunk("c", "university", "district"),
	}))

	// When: querying with two terms
	results, err := idx.Query(ctx, []string{"cafe", "startup"}, 10)
	require.NoError(t, err)

	// Then: the chunk matching both terms ranks first
	require.NotEmpty(t, results)
	assert.Equal(t, "a", results[0].ChunkID)
}

// TS02: No Zero-Score Leakage
func TestMemoryBM25Index_NeverReturnsZeroScores(t *testing.T) {
	idx := NewMemoryBM25Index(DefaultBM25Config())
	defer func() { _ = idx.Close() }()

	ctx := context.Background()
	require.NoError(t, idx.Index(ctx, []*Chunk{
		tokenChunk("a", "cafe"),
		tokenChunk("b", "university"),
	}))

	// When: the query matches only one chunk
	results, err := idx.Query(ctx, []string{"cafe"}, 10)
	require.NoError(t, err)

	// Then: the unmatched chunk is excluded, not returned with score 0
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ChunkID)
	assert.Greater(t, results[0].Score, 0.0)

	// And: a query with no matches returns an empty slice
	results, err = idx.Query(ctx, []string{"missing"}, 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

// TS03: Rare Terms Score Higher
func TestMemoryBM25Index_RareTermsDominate(t *testing.T) {
	// Given: "common" appears everywhere, "rare" appears once
	idx := NewMemoryBM25Index(DefaultBM25Config())
	defer func() { _ = idx.Close() }()

	ctx := context.Background()
	require.NoError(t, idx.Index(ctx, []*Chunk{
		tokenChunk("a", "common", "rare"),
		tokenChunk("b", "common", "other"),
		tokenChunk("c", "common", "another"),
		tokenChunk("d", "common", "more"),
	}))

	rareHits, err := idx.Query(ctx, []string{"rare"}, 1)
	require.NoError(t, err)
	commonHits, err := idx.Query(ctx, []string{"common"}, 1)
	require.NoError(t, err)

	// Then: the rare term contributes a higher score than the common one
	require.Len(t, rareHits, 1)
	require.Len(t, commonHits, 1)
	assert.Greater(t, rareHits[0].Score, commonHits[0].Score)
}

// TS04: Term Frequency Monotonicity
func TestMemoryBM25Index_TermFrequencyMonotonic(t *testing.T) {
	// Given: two same-length chunks differing only in term frequency
	idx := NewMemoryBM25Index(DefaultBM25Config())
	defer func() { _ = idx.Close() }()

	ctx := context.Background()
	require.NoError(t, idx.Index(ctx, []*Chunk{
		tokenChunk("twice", "cafe", "cafe", "filler"),
		tokenChunk("once", "cafe", "filler", "filler"),
	}))

	results, err := idx.Query(ctx, []string{"cafe"}, 10)
	require.NoError(t, err)

	// Then: higher term frequency ranks first
	require.Len(t, results, 2)
	assert.Equal(t, "twice", results[0].ChunkID)
	assert.Greater(t, results[0].Score, results[1].Score)
}

// TS05: Length Normalization
func TestMemoryBM25Index_LengthNormalization(t *testing.T) {
	// Given: a short chunk and a long chunk, each with one "cafe"
	idx := NewMemoryBM25Index(DefaultBM25Config())
	defer func() { _ = idx.Close() }()

	longTokens := []string{"cafe"}
	for i := 0; i < 50; i++ {
		longTokens = append(longTokens, "filler")
	}

	ctx := context.Background()
	require.NoError(t, idx.Index(ctx, []*Chunk{
		tokenChunk("short", "cafe", "note"),
		tokenChunk("long", longTokens...),
	}))

	results, err := idx.Query(ctx, []string{"cafe"}, 10)
	require.NoError(t, err)

	// Then: the long chunk is not favored purely by length
	require.Len(t, results, 2)
	assert.Equal(t, "short", results[0].ChunkID)
}

// TS06: Deterministic Ordering With Tied Scores
func TestMemoryBM25Index_TiesBrokenByID(t *testing.T) {
	idx := NewMemoryBM25Index(DefaultBM25Config())
	defer func() { _ = idx.Close() }()

	ctx := context.Background()
	require.NoError(t, idx.Index(ctx, []*Chunk{
		tokenChunk("z", "cafe"),
		tokenChunk("a", "cafe"),
		tokenChunk("m", "cafe"),
	}))

	results, err := idx.Query(ctx, []string{"cafe"}, 10)
	require.NoError(t, err)

	// Identical scores order by chunk ID ascending
	require.Len(t, results, 3)
	assert.Equal(t, "a", results[0].ChunkID)
	assert.Equal(t, "m", results[1].ChunkID)
	assert.Equal(t, "z", results[2].ChunkID)
}

// TS07: Re-Index Replaces Postings
func TestMemoryBM25Index_ReindexReplaces(t *testing.T) {
	idx := NewMemoryBM25Index(DefaultBM25Config())
	defer func() { _ = idx.Close() }()

	ctx := context.Background()
	require.NoError(t, idx.Index(ctx, []*Chunk{tokenChunk("a", "oldterm")}))
	require.NoError(t, idx.Index(ctx, []*Chunk{tokenChunk("a", "newterm")}))

	old, err := idx.Query(ctx, []string{"oldterm"}, 10)
	require.NoError(t, err)
	assert.Empty(t, old)

	fresh, err := idx.Query(ctx, []string{"newterm"}, 10)
	require.NoError(t, err)
	require.Len(t, fresh, 1)

	assert.Equal(t, 1, idx.Stats().DocumentCount)
}

// TS08: Delete and AllIDs
func TestMemoryBM25Index_DeleteAndAllIDs(t *testing.T) {
	idx := NewMemoryBM25Index(DefaultBM25Config())
	defer func() { _ = idx.Close() }()

	ctx := context.Background()
	require.NoError(t, idx.Index(ctx, []*Chunk{
		tokenChunk("a", "cafe"),
		tokenChunk("b", "cafe"),
	}))

	require.NoError(t, idx.Delete(ctx, []string{"a"}))

	ids, err := idx.AllIDs()
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids)

	results, err := idx.Query(ctx, []string{"cafe"}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].ChunkID)
}

// TS09: TopK Truncation
func TestMemoryBM25Index_TopKTruncates(t *testing.T) {
	idx := NewMemoryBM25Index(DefaultBM25Config())
	defer func() { _ = idx.Close() }()

	ctx := context.Background()
	require.NoError(t, idx.Index(ctx, []*Chunk{
		tokenChunk("a", "cafe"),
		tokenChunk("b", "cafe"),
		tokenChunk("c", "cafe"),
	}))

	results, err := idx.Query(ctx, []string{"cafe"}, 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}
