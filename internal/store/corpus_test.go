package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qerrors "github.com/quarrysearch/quarry/internal/errors"
)

func testChunk(id, docID string, ordinal int, text string) *Chunk {
	return &Chunk{
		ID:         id,
		DocumentID: docID,
		Ordinal:    ordinal,
		Text:       text,
		Tokens:     []string{"alpha", "beta"},
		Embedding:  []float32{0.1, 0.2, 0.3},
		Page:       1,
		Source:     "report.pdf",
	}
}

// TS01: Add and Get Round-Trip
func TestSQLiteCorpusStore_AddAndGet(t *testing.T) {
	// Given: an in-memory corpus store
	s, err := OpenCorpus("")
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	ctx := context.Background()
	chunk := testChunk("doc1_chunk_0", "doc1", 0, "강남구는 카페 상권이 발달했다.")

	// When: adding and retrieving the chunk
	require.NoError(t, s.Add(ctx, []*Chunk{chunk}))
	got, err := s.Get(ctx, "doc1_chunk_0")
	require.NoError(t, err)

	// Then: all fields survive the round trip
	require.NotNil(t, got)
	assert.Equal(t, chunk.ID, got.ID)
	assert.Equal(t, chunk.DocumentID, got.DocumentID)
	assert.Equal(t, chunk.Text, got.Text)
	assert.Equal(t, chunk.Tokens, got.Tokens)
	assert.Equal(t, chunk.Embedding, got.Embedding)
	assert.Equal(t, chunk.Page, got.Page)
	assert.Equal(t, chunk.Source, got.Source)
}

// TS02: Idempotent Add Overwrites In Place
func TestSQLiteCorpusStore_AddIsIdempotent(t *testing.T) {
	s, err := OpenCorpus("")
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	ctx := context.Background()

	// Given: a stored chunk
	require.NoError(t, s.Add(ctx, []*Chunk{testChunk("c1", "d1", 0, "first version")}))

	// When: re-adding the same ID with new text
	updated := testChunk("c1", "d1", 0, "second version")
	require.NoError(t, s.Add(ctx, []*Chunk{updated}))

	// Then: the chunk is overwritten, not duplicated
	count, err := s.ChunkCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err := s.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "second version", got.Text)
}

// TS03: Missing Chunk Returns Nil
func TestSQLiteCorpusStore_GetMissing(t *testing.T) {
	s, err := OpenCorpus("")
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	got, err := s.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

// TS04: Empty Text Rejected
func TestSQLiteCorpusStore_AddRejectsEmptyText(t *testing.T) {
	s, err := OpenCorpus("")
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	err = s.Add(context.Background(), []*Chunk{{ID: "c1", DocumentID: "d1"}})
	require.Error(t, err)
	assert.True(t, qerrors.IsInvalidArgument(err))
}

// TS05: Batch Retrieval Preserves Request Order
func TestSQLiteCorpusStore_GetBatch(t *testing.T) {
	s, err := OpenCorpus("")
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	ctx := context.Background()
	require.NoError(t, s.Add(ctx, []*Chunk{
		testChunk("a", "d1", 0, "one"),
		testChunk("b", "d1", 1, "two"),
		testChunk("c", "d1", 2, "three"),
	}))

	// When: fetching with a missing ID interleaved
	got, err := s.GetBatch(ctx, []string{"c", "missing", "a"})
	require.NoError(t, err)

	// Then: hits come back in request order, missing IDs are omitted
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].ID)
	assert.Equal(t, "a", got[1].ID)
}

// TS06: RemoveByDocument Deletes Chunks and Document
func TestSQLiteCorpusStore_RemoveByDocument(t *testing.T) {
	s, err := OpenCorpus("")
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	ctx := context.Background()
	require.NoError(t, s.PutDocument(ctx, &Document{ID: "d1", Title: "Report"}))
	require.NoError(t, s.PutDocument(ctx, &Document{ID: "d2", Title: "Other"}))
	require.NoError(t, s.Add(ctx, []*Chunk{
		testChunk("d1_chunk_0", "d1", 0, "text a"),
		testChunk("d1_chunk_1", "d1", 1, "text b"),
		testChunk("d2_chunk_0", "d2", 0, "text c"),
	}))

	// When: removing document d1
	require.NoError(t, s.RemoveByDocument(ctx, "d1"))

	// Then: only d2's data remains
	count, err := s.ChunkCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	docs, err := s.Documents(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "d2", docs[0].ID)
}

// TS07: Durable Round-Trip Across Reopen
func TestSQLiteCorpusStore_SurvivesReopen(t *testing.T) {
	// Given: a file-backed store with a chunk and its embedding
	path := filepath.Join(t.TempDir(), "corpus.db")

	s, err := OpenCorpus(path)
	require.NoError(t, err)

	ctx := context.Background()
	published := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.PutDocument(ctx, &Document{
		ID: "d1", Title: "Policy Report", Source: "policy.pdf", PublishedAt: &published,
	}))
	require.NoError(t, s.Add(ctx, []*Chunk{testChunk("d1_chunk_0", "d1", 0, "durable text")}))
	require.NoError(t, s.Close())

	// When: reopening the same path
	s2, err := OpenCorpus(path)
	require.NoError(t, err)
	defer func() { _ = s2.Close() }()

	// Then: chunk, tokens, and embedding are intact without re-embedding
	got, err := s2.Get(ctx, "d1_chunk_0")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "durable text", got.Text)
	assert.Equal(t, []string{"alpha", "beta"}, got.Tokens)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, got.Embedding)

	docs, err := s2.Documents(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "Policy Report", docs[0].Title)
	require.NotNil(t, docs[0].PublishedAt)
	assert.True(t, published.Equal(*docs[0].PublishedAt))
}

// TS08: Lock Excludes a Second Writer
func TestSQLiteCorpusStore_LockHeld(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corpus.db")

	s, err := OpenCorpus(path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	// When: a second open targets the same data directory
	_, err = OpenCorpus(path)

	// Then: it fails fast with the lock-held code
	require.Error(t, err)
	assert.Equal(t, qerrors.ErrCodeLockHeld, qerrors.GetCode(err))
}

// TS09: Closed Store Rejects Operations
func TestSQLiteCorpusStore_ClosedStore(t *testing.T) {
	s, err := OpenCorpus("")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	ctx := context.Background()

	err = s.Add(ctx, []*Chunk{testChunk("c1", "d1", 0, "text")})
	assert.True(t, qerrors.IsStorage(err))

	_, err = s.Get(ctx, "c1")
	assert.True(t, qerrors.IsStorage(err))

	_, err = s.All(ctx)
	assert.True(t, qerrors.IsStorage(err))

	// Double close is a no-op
	assert.NoError(t, s.Close())
}

// TS10: All Returns Chunks Ordered By ID
func TestSQLiteCorpusStore_AllOrdered(t *testing.T) {
	s, err := OpenCorpus("")
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	ctx := context.Background()
	require.NoError(t, s.Add(ctx, []*Chunk{
		testChunk("b", "d1", 1, "two"),
		testChunk("a", "d1", 0, "one"),
	}))

	all, err := s.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].ID)
	assert.Equal(t, "b", all[1].ID)
}

// TS11: Embedding Encoding Round-Trip
func TestEncodeDecodeEmbedding(t *testing.T) {
	tests := []struct {
		name string
		in   []float32
	}{
		{"nil", nil},
		{"single", []float32{1.5}},
		{"negative and small", []float32{-0.25, 1e-7, 3.75}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := decodeEmbedding(encodeEmbedding(tt.in))
			assert.Equal(t, tt.in, got)
		})
	}
}

func TestSQLiteCorpusStore_ChunkIDsOrderedByID(t *testing.T) {
	s, err := OpenCorpus("")
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	ctx := context.Background()
	require.NoError(t, s.Add(ctx, []*Chunk{
		testChunk("doc2_chunk_0", "doc2", 0, "마포구 홍대는 대학가 상권이다."),
		testChunk("doc1_chunk_0", "doc1", 0, "강남구는 카페 상권이 발달했다."),
	}))

	ids, err := s.ChunkIDs(ctx)

	require.NoError(t, err)
	assert.Equal(t, []string{"doc1_chunk_0", "doc2_chunk_0"}, ids)
}
