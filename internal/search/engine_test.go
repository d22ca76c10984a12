package search

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarrysearch/quarry/internal/chunk"
	"github.com/quarrysearch/quarry/internal/embed"
	qerrors "github.com/quarrysearch/quarry/internal/errors"
	"github.com/quarrysearch/quarry/internal/store"
	"github.com/quarrysearch/quarry/internal/token"
)

// newTestEngine builds an engine on the in-memory backends: SQLite
// in-memory corpus, bigram tokenizer, static embedder, memory BM25,
// linear vector scan. corpusPath "" means in-memory.
func newTestEngine(t *testing.T, corpusPath string) *Engine {
	t.Helper()

	corpus, err := store.OpenCorpus(corpusPath)
	require.NoError(t, err)

	embedder := embed.NewStaticEmbedder()
	chunker, err := chunk.New(1000, 200)
	require.NoError(t, err)

	engine, err := NewEngine(
		corpus,
		token.NewBigram(),
		embedder,
		chunker,
		func() (store.LexicalIndex, error) {
			return store.NewMemoryBM25Index(store.DefaultBM25Config()), nil
		},
		func() (store.VectorIndex, error) {
			return store.NewLinearVectorIndex(embedder.Dimensions()), nil
		},
		DefaultEngineConfig(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })
	return engine
}

var koreanDocs = []DocumentInput{
	{Title: "Gangnam report", Source: "gangnam.pdf", Text: "강남구는 카페 상권이 발달했다. IT 스타트업도 많다."},
	{Title: "Mapo report", Source: "mapo.pdf", Text: "마포구 홍대는 대학가 상권이다."},
}

func TestEngine_HybridSearchRanksLexicalOverlapFirst(t *testing.T) {
	// Given a corpus of two Korean documents, indexed
	e := newTestEngine(t, "")
	ctx := context.Background()

	report, err := e.Ingest(ctx, koreanDocs)
	require.NoError(t, err)
	require.Equal(t, 2, report.DocumentsProcessed)
	require.NoError(t, e.RebuildIndexes(ctx))

	// When querying terms that only the first document contains
	results, err := e.Search(ctx, "강남구 스타트업", SearchOptions{Mode: ModeHybrid, TopK: 1})
	require.NoError(t, err)

	// Then the Gangnam chunk is the single top result
	require.Len(t, results, 1)
	assert.Equal(t, "gangnam.pdf", results[0].Source)
	assert.Contains(t, results[0].Text, "강남구")
	assert.Positive(t, results[0].CombinedScore)
	assert.Positive(t, results[0].LexicalScore)
}

func TestEngine_TopKZeroIsInvalidArgument(t *testing.T) {
	e := newTestEngine(t, "")

	_, err := e.Search(context.Background(), "query", SearchOptions{TopK: 0})

	require.Error(t, err)
	assert.True(t, qerrors.IsInvalidArgument(err))
}

func TestEngine_UnknownModeRejected(t *testing.T) {
	e := newTestEngine(t, "")

	_, err := e.Search(context.Background(), "query", SearchOptions{Mode: "fuzzy", TopK: 5})

	require.Error(t, err)
	assert.Equal(t, qerrors.ErrCodeUnknownMode, qerrors.GetCode(err))
}

func TestEngine_EmptyQueryRejected(t *testing.T) {
	e := newTestEngine(t, "")

	_, err := e.Search(context.Background(), "   ", SearchOptions{TopK: 5})

	require.Error(t, err)
	assert.True(t, qerrors.IsInvalidArgument(err))
}

func TestEngine_EmptyCorpusReturnsEmptyNotError(t *testing.T) {
	// Given an engine with nothing ingested
	e := newTestEngine(t, "")

	for _, mode := range []Mode{ModeLexical, ModeVector, ModeHybrid} {
		results, err := e.Search(context.Background(), "아무거나", SearchOptions{Mode: mode, TopK: 5})
		require.NoError(t, err, "mode %s", mode)
		assert.Empty(t, results, "mode %s", mode)
	}
}

func TestEngine_LexicalModeForcesVectorScoreZero(t *testing.T) {
	e := newTestEngine(t, "")
	ctx := context.Background()
	_, err := e.Ingest(ctx, koreanDocs)
	require.NoError(t, err)
	require.NoError(t, e.RebuildIndexes(ctx))

	results, err := e.Search(ctx, "강남구", SearchOptions{Mode: ModeLexical, TopK: 5})
	require.NoError(t, err)

	require.NotEmpty(t, results)
	for _, r := range results {
		assert.Zero(t, r.VectorScore)
		assert.Positive(t, r.LexicalScore)
		assert.Equal(t, r.LexicalScore, r.CombinedScore)
	}
}

func TestEngine_VectorModeForcesLexicalScoreZero(t *testing.T) {
	e := newTestEngine(t, "")
	ctx := context.Background()
	_, err := e.Ingest(ctx, koreanDocs)
	require.NoError(t, err)
	require.NoError(t, e.RebuildIndexes(ctx))

	results, err := e.Search(ctx, "강남구 카페", SearchOptions{Mode: ModeVector, TopK: 5})
	require.NoError(t, err)

	require.NotEmpty(t, results)
	for _, r := range results {
		assert.Zero(t, r.LexicalScore)
	}
}

func TestEngine_IngestReportCountsChunksAndDocuments(t *testing.T) {
	e := newTestEngine(t, "")

	report, err := e.Ingest(context.Background(), koreanDocs)
	require.NoError(t, err)

	assert.Equal(t, 2, report.DocumentsProcessed)
	assert.Zero(t, report.DocumentsSkipped)
	assert.GreaterOrEqual(t, report.ChunksCreated, 2)
	assert.NotEmpty(t, report.BatchID)
	assert.Empty(t, report.Errors)
}

func TestEngine_IngestSkipsEmptyDocuments(t *testing.T) {
	e := newTestEngine(t, "")

	report, err := e.Ingest(context.Background(), []DocumentInput{
		{Title: "empty", Source: "empty.txt", Text: "   "},
		{Title: "real", Source: "real.txt", Text: "실제 내용이 있는 문서다."},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, report.DocumentsProcessed)
	assert.Equal(t, 1, report.DocumentsSkipped)
}

func TestEngine_IngestIsIdempotentOnContent(t *testing.T) {
	// Re-ingesting identical content overwrites in place rather than
	// duplicating chunks, because IDs are content-derived
	e := newTestEngine(t, "")
	ctx := context.Background()

	_, err := e.Ingest(ctx, koreanDocs)
	require.NoError(t, err)
	_, err = e.Ingest(ctx, koreanDocs)
	require.NoError(t, err)
	require.NoError(t, e.RebuildIndexes(ctx))

	stats, err := e.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalDocuments)
	assert.Equal(t, stats.TotalChunks, stats.LexicalIndexed)
}

func TestEngine_StatsTracksIndexFreshness(t *testing.T) {
	e := newTestEngine(t, "")
	ctx := context.Background()

	// Ingest alone leaves the indexes stale
	_, err := e.Ingest(ctx, koreanDocs)
	require.NoError(t, err)

	stats, err := e.Stats(ctx)
	require.NoError(t, err)
	assert.False(t, stats.IndexFresh)
	assert.False(t, stats.LexicalFresh)
	assert.False(t, stats.VectorFresh)
	assert.Zero(t, stats.LexicalIndexed)
	assert.Zero(t, stats.LastRebuild)

	// Rebuild restores freshness
	require.NoError(t, e.RebuildIndexes(ctx))
	stats, err = e.Stats(ctx)
	require.NoError(t, err)
	assert.True(t, stats.IndexFresh)
	assert.True(t, stats.LexicalFresh)
	assert.True(t, stats.VectorFresh)
	assert.False(t, stats.LastRebuild.IsZero())
	assert.Equal(t, stats.TotalChunks, stats.LexicalIndexed)
	assert.Equal(t, stats.TotalChunks, stats.VectorIndexed)
	assert.Equal(t, "static-fnv-256", stats.EmbeddingModel)
}

func TestEngine_StatsFreshnessComparesChunkIDSets(t *testing.T) {
	// Given two indexed documents
	e := newTestEngine(t, "")
	ctx := context.Background()
	_, err := e.Ingest(ctx, koreanDocs)
	require.NoError(t, err)
	require.NoError(t, e.RebuildIndexes(ctx))

	// When one document is removed and another ingested without a
	// rebuild, the corpus and index chunk counts coincide again
	_, err = e.RemoveBySource(ctx, "gangnam.pdf")
	require.NoError(t, err)
	_, err = e.Ingest(ctx, []DocumentInput{
		{Title: "Jongno report", Source: "jongno.pdf", Text: "종로구는 관광 상권이 유지되고 있다."},
	})
	require.NoError(t, err)

	stats, err := e.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, stats.TotalChunks, stats.LexicalIndexed)
	require.Equal(t, stats.TotalChunks, stats.VectorIndexed)

	// Then the id sets differ, so the indexes are stale despite the
	// matching counts
	assert.False(t, stats.LexicalFresh)
	assert.False(t, stats.VectorFresh)
	assert.False(t, stats.IndexFresh)

	require.NoError(t, e.RebuildIndexes(ctx))
	stats, err = e.Stats(ctx)
	require.NoError(t, err)
	assert.True(t, stats.IndexFresh)
}

func TestEngine_RebuildIsIdempotent(t *testing.T) {
	// Given an indexed corpus
	e := newTestEngine(t, "")
	ctx := context.Background()
	_, err := e.Ingest(ctx, koreanDocs)
	require.NoError(t, err)
	require.NoError(t, e.RebuildIndexes(ctx))

	first, err := e.Search(ctx, "상권", SearchOptions{Mode: ModeHybrid, TopK: 5})
	require.NoError(t, err)
	require.NotEmpty(t, first)

	// When rebuilding again with no intervening ingest
	require.NoError(t, e.RebuildIndexes(ctx))
	second, err := e.Search(ctx, "상권", SearchOptions{Mode: ModeHybrid, TopK: 5})
	require.NoError(t, err)

	// Then ordering and scores are identical
	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].ChunkID, second[i].ChunkID)
		assert.Equal(t, first[i].CombinedScore, second[i].CombinedScore)
	}
}

func TestEngine_RoundTripPersistence(t *testing.T) {
	// Given a file-backed corpus searched once
	path := filepath.Join(t.TempDir(), "corpus.db")
	ctx := context.Background()

	first := newTestEngine(t, path)
	_, err := first.Ingest(ctx, koreanDocs)
	require.NoError(t, err)
	require.NoError(t, first.RebuildIndexes(ctx))

	before, err := first.Search(ctx, "강남구 스타트업", SearchOptions{Mode: ModeHybrid, TopK: 3})
	require.NoError(t, err)
	require.NotEmpty(t, before)
	require.NoError(t, first.Close())

	// When reopening the corpus and rebuilding from stored chunks
	second := newTestEngine(t, path)
	require.NoError(t, second.RebuildIndexes(ctx))

	after, err := second.Search(ctx, "강남구 스타트업", SearchOptions{Mode: ModeHybrid, TopK: 3})
	require.NoError(t, err)

	// Then results match the pre-restart run exactly
	require.Len(t, after, len(before))
	for i := range before {
		assert.Equal(t, before[i].ChunkID, after[i].ChunkID)
		assert.Equal(t, before[i].CombinedScore, after[i].CombinedScore)
	}
}

func TestEngine_RebuildCancellationLeavesOldIndexesIntact(t *testing.T) {
	// Given a built index pair
	e := newTestEngine(t, "")
	ctx := context.Background()
	_, err := e.Ingest(ctx, koreanDocs)
	require.NoError(t, err)
	require.NoError(t, e.RebuildIndexes(ctx))

	before, err := e.Search(ctx, "상권", SearchOptions{Mode: ModeLexical, TopK: 5})
	require.NoError(t, err)
	require.NotEmpty(t, before)

	// When a rebuild is cancelled before it starts
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	err = e.RebuildIndexes(cancelled)
	require.Error(t, err)

	// Then the previous snapshot still answers queries
	after, err := e.Search(ctx, "상권", SearchOptions{Mode: ModeLexical, TopK: 5})
	require.NoError(t, err)
	assert.Equal(t, len(before), len(after))
}

func TestEngine_TopKCappedAtMax(t *testing.T) {
	e := newTestEngine(t, "")
	ctx := context.Background()
	_, err := e.Ingest(ctx, koreanDocs)
	require.NoError(t, err)
	require.NoError(t, e.RebuildIndexes(ctx))

	// A huge top_k is capped, not rejected
	results, err := e.Search(ctx, "상권", SearchOptions{Mode: ModeHybrid, TopK: 100000})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(results), e.config.MaxTopK)
}

func TestEngine_RemoveBySourceDeletesDocumentAndChunks(t *testing.T) {
	// Given an indexed corpus
	e := newTestEngine(t, "")
	ctx := context.Background()

	_, err := e.Ingest(ctx, koreanDocs)
	require.NoError(t, err)
	require.NoError(t, e.RebuildIndexes(ctx))

	// When removing one source and rebuilding
	removed, err := e.RemoveBySource(ctx, "gangnam.pdf")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	require.NoError(t, e.RebuildIndexes(ctx))

	// Then the removed document no longer matches and the other survives
	results, err := e.Search(ctx, "강남구", SearchOptions{Mode: ModeLexical, TopK: 5})
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = e.Search(ctx, "마포구", SearchOptions{Mode: ModeLexical, TopK: 5})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "mapo.pdf", results[0].Source)

	stats, err := e.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalDocuments)
}

func TestEngine_RemoveBySourceUnknownSourceIsNoop(t *testing.T) {
	e := newTestEngine(t, "")

	removed, err := e.RemoveBySource(context.Background(), "nonexistent.pdf")

	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		input   string
		want    Mode
		wantErr bool
	}{
		{"lexical", ModeLexical, false},
		{"vector", ModeVector, false},
		{"hybrid", ModeHybrid, false},
		{"", ModeHybrid, false},
		{"semantic", "", true},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.input)
		if tt.wantErr {
			assert.Error(t, err, "input %q", tt.input)
			continue
		}
		require.NoError(t, err, "input %q", tt.input)
		assert.Equal(t, tt.want, got)
	}
}
