package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TS01: Index and Query Pre-Tokenized Input
func TestBleveLexicalIndex_IndexAndQuery(t *testing.T) {
	// Given: an in-memory bleve index
	idx, err := NewBleveLexicalIndex("")
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	ctx := context.Background()
	require.NoError(t, idx.Index(ctx, []*Chunk{
		tokenChunk("a", "cafe", "district", "startup"),
		tokenChunk("b", "university", "district"),
	}))

	// When: querying with the engine's tokens
	results, err := idx.Query(ctx, []string{"cafe", "startup"}, 10)
	require.NoError(t, err)

	// Then: only the matching chunk is returned with a positive score
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ChunkID)
	assert.Greater(t, results[0].Score, 0.0)
}

// TS02: Tokens Are Not Re-Analyzed
func TestBleveLexicalIndex_TrustsPretokenizedTerms(t *testing.T) {
	// Given: Korean bigram tokens that a default analyzer would mangle
	idx, err := NewBleveLexicalIndex("")
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	ctx := context.Background()
	require.NoError(t, idx.Index(ctx, []*Chunk{
		tokenChunk("kr", "강남구는", "강남", "남구", "구는"),
	}))

	results, err := idx.Query(ctx, []string{"강남"}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "kr", results[0].ChunkID)
}

// TS03: Delete and AllIDs
func TestBleveLexicalIndex_DeleteAndAllIDs(t *testing.T) {
	idx, err := NewBleveLexicalIndex("")
	require.NoError(t, err)
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
	assert.Equal(t, 1, idx.Stats().DocumentCount)
}

// TS04: Persistent Index Reopens
func TestBleveLexicalIndex_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lexical.bleve")

	idx, err := NewBleveLexicalIndex(path)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, idx.Index(ctx, []*Chunk{tokenChunk("a", "durable")}))
	require.NoError(t, idx.Close())

	// When: reopening the same path
	idx2, err := NewBleveLexicalIndex(path)
	require.NoError(t, err)
	defer func() { _ = idx2.Close() }()

	// Then: the indexed chunk is still queryable
	results, err := idx2.Query(ctx, []string{"durable"}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ChunkID)
}

// TS05: Empty Query Returns Empty
func TestBleveLexicalIndex_EmptyQuery(t *testing.T) {
	idx, err := NewBleveLexicalIndex("")
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	results, err := idx.Query(context.Background(), nil, 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

// TS06: Factory Backend Selection
func TestNewLexicalIndex_Factory(t *testing.T) {
	mem, err := NewLexicalIndex("memory", "", DefaultBM25Config())
	require.NoError(t, err)
	assert.IsType(t, &MemoryBM25Index{}, mem)

	blv, err := NewLexicalIndex("bleve", "", DefaultBM25Config())
	require.NoError(t, err)
	assert.IsType(t, &BleveLexicalIndex{}, blv)
	_ = blv.Close()

	_, err = NewLexicalIndex("lucene", "", DefaultBM25Config())
	assert.Error(t, err)
}
