package embed

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarrysearch/quarry/internal/config"
)

func defaultEmbeddingConfig() config.EmbeddingConfig {
	return config.NewConfig().Embedding
}

// countingEmbedder wraps StaticEmbedder and counts delegated calls, so
// cache tests can verify hit behavior.
type countingEmbedder struct {
	*StaticEmbedder
	mu         sync.Mutex
	embedCalls int
	batchTexts int
}

func newCountingEmbedder() *countingEmbedder {
	return &countingEmbedder{StaticEmbedder: NewStaticEmbedder()}
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.mu.Lock()
	c.embedCalls++
	c.mu.Unlock()
	return c.StaticEmbedder.Embed(ctx, text)
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.mu.Lock()
	c.batchTexts += len(texts)
	c.mu.Unlock()
	return c.StaticEmbedder.EmbedBatch(ctx, texts)
}

func vectorNorm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func TestStaticEmbedder_Deterministic(t *testing.T) {
	// Given a static embedder
	e := NewStaticEmbedder()
	ctx := context.Background()

	// When embedding the same text twice
	v1, err := e.Embed(ctx, "강남구는 카페 상권이 발달했다")
	require.NoError(t, err)
	v2, err := e.Embed(ctx, "강남구는 카페 상권이 발달했다")
	require.NoError(t, err)

	// Then the vectors are identical and unit length
	assert.Equal(t, v1, v2)
	assert.Len(t, v1, StaticDimensions)
	assert.InDelta(t, 1.0, vectorNorm(v1), 1e-5)
}

func TestStaticEmbedder_EmptyTextYieldsZeroVector(t *testing.T) {
	e := NewStaticEmbedder()

	v, err := e.Embed(context.Background(), "   ")
	require.NoError(t, err)

	require.Len(t, v, StaticDimensions)
	for _, x := range v {
		assert.Zero(t, x)
	}
}

func TestStaticEmbedder_OverlapScoresHigherThanDisjoint(t *testing.T) {
	// Given embeddings for a query and two candidate texts
	e := NewStaticEmbedder()
	ctx := context.Background()

	query, err := e.Embed(ctx, "카페 상권 분석")
	require.NoError(t, err)
	related, err := e.Embed(ctx, "강남구 카페 상권이 성장했다")
	require.NoError(t, err)
	unrelated, err := e.Embed(ctx, "반도체 수출 실적 보고")
	require.NoError(t, err)

	dot := func(a, b []float32) float64 {
		var s float64
		for i := range a {
			s += float64(a[i]) * float64(b[i])
		}
		return s
	}

	// Then the text sharing tokens scores higher
	assert.Greater(t, dot(query, related), dot(query, unrelated))
}

func TestStaticEmbedder_BatchMatchesSingle(t *testing.T) {
	e := NewStaticEmbedder()
	ctx := context.Background()
	texts := []string{"first text", "", "세번째 텍스트"}

	batch, err := e.EmbedBatch(ctx, texts)
	require.NoError(t, err)
	require.Len(t, batch, 3)

	for i, text := range texts {
		single, err := e.Embed(ctx, text)
		require.NoError(t, err)
		assert.Equal(t, single, batch[i], "index %d", i)
	}
}

func TestStaticEmbedder_ClosedReturnsError(t *testing.T) {
	e := NewStaticEmbedder()
	require.NoError(t, e.Close())

	_, err := e.Embed(context.Background(), "text")
	assert.Error(t, err)
	assert.False(t, e.Available(context.Background()))
}

func TestCachedEmbedder_ServesHitsWithoutDelegating(t *testing.T) {
	// Given a cached embedder over a call-counting inner embedder
	inner := newCountingEmbedder()
	cached, err := NewCachedEmbedder(inner, 16)
	require.NoError(t, err)
	ctx := context.Background()

	// When embedding the same text repeatedly
	v1, err := cached.Embed(ctx, "repeat me")
	require.NoError(t, err)
	v2, err := cached.Embed(ctx, "repeat me")
	require.NoError(t, err)

	// Then only the first call reaches the inner embedder
	assert.Equal(t, v1, v2)
	assert.Equal(t, 1, inner.embedCalls)
	assert.Equal(t, 1, cached.Len())
}

func TestCachedEmbedder_BatchOnlyDelegatesMisses(t *testing.T) {
	inner := newCountingEmbedder()
	cached, err := NewCachedEmbedder(inner, 16)
	require.NoError(t, err)
	ctx := context.Background()

	// Warm one entry
	warm, err := cached.Embed(ctx, "alpha")
	require.NoError(t, err)

	// Batch with one hit and two misses
	results, err := cached.EmbedBatch(ctx, []string{"beta", "alpha", "gamma"})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, warm, results[1])
	assert.Equal(t, 2, inner.batchTexts)

	// Order is preserved against direct embedding
	direct, err := inner.StaticEmbedder.Embed(ctx, "beta")
	require.NoError(t, err)
	assert.Equal(t, direct, results[0])
}

func TestBoltCachedEmbedder_SurvivesReopen(t *testing.T) {
	// Given a disk-cached embedder that has embedded one text
	path := filepath.Join(t.TempDir(), "embeddings.db")
	ctx := context.Background()

	first, err := NewBoltCachedEmbedder(newCountingEmbedder(), path)
	require.NoError(t, err)
	v1, err := first.Embed(ctx, "persisted text")
	require.NoError(t, err)
	require.NoError(t, first.Close())

	// When reopening with a fresh inner embedder that counts calls
	inner := newCountingEmbedder()
	second, err := NewBoltCachedEmbedder(inner, path)
	require.NoError(t, err)
	defer func() { require.NoError(t, second.Close()) }()

	v2, err := second.Embed(ctx, "persisted text")
	require.NoError(t, err)

	// Then the vector comes from disk, not the inner embedder
	assert.Equal(t, v1, v2)
	assert.Equal(t, 0, inner.embedCalls)
}

func TestBoltCachedEmbedder_BatchMixesCacheAndMisses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "embeddings.db")
	ctx := context.Background()
	inner := newCountingEmbedder()

	b, err := NewBoltCachedEmbedder(inner, path)
	require.NoError(t, err)
	defer func() { require.NoError(t, b.Close()) }()

	_, err = b.Embed(ctx, "cached")
	require.NoError(t, err)

	results, err := b.EmbedBatch(ctx, []string{"cached", "fresh"})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, 1, inner.batchTexts)
	assert.InDelta(t, 1.0, vectorNorm(results[1]), 1e-5)
}

func TestNewFromConfig_StaticDefaultWithCaches(t *testing.T) {
	cfg := defaultEmbeddingConfig()
	cfg.DiskCache = true

	e, err := NewFromConfig(context.Background(), cfg, t.TempDir())
	require.NoError(t, err)
	defer func() { require.NoError(t, e.Close()) }()

	assert.Equal(t, StaticDimensions, e.Dimensions())
	assert.Equal(t, "static-fnv-256", e.ModelName())
	assert.True(t, e.Available(context.Background()))
}

func TestNewFromConfig_UnknownBackendFails(t *testing.T) {
	cfg := defaultEmbeddingConfig()
	cfg.Backend = "tensorflow"

	_, err := NewFromConfig(context.Background(), cfg, "")
	assert.Error(t, err)
}

func TestOllamaEmbedder_AgainstStubServer(t *testing.T) {
	// Given a stub Ollama server with one pulled model
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"models": []map[string]string{{"name": "nomic-embed-text:latest"}},
			})
		case "/api/embed":
			var req map[string]any
			_ = json.NewDecoder(r.Body).Decode(&req)
			count := 1
			if arr, ok := req["input"].([]any); ok {
				count = len(arr)
			}
			embeddings := make([][]float64, count)
			for i := range embeddings {
				embeddings[i] = []float64{3, 4, 0}
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": embeddings})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	// When creating the embedder with health check enabled
	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host:  server.URL,
		Model: "nomic-embed-text",
	})
	require.NoError(t, err)
	defer func() { require.NoError(t, e.Close()) }()

	// Then the model name resolves and dimensions auto-detect
	assert.Equal(t, "nomic-embed-text:latest", e.ModelName())
	assert.Equal(t, 3, e.Dimensions())
	assert.True(t, e.Available(context.Background()))

	// And vectors come back unit-normalized
	v, err := e.Embed(context.Background(), "some text")
	require.NoError(t, err)
	require.Len(t, v, 3)
	assert.InDelta(t, 0.6, float64(v[0]), 1e-5)
	assert.InDelta(t, 0.8, float64(v[1]), 1e-5)

	batch, err := e.EmbedBatch(context.Background(), []string{"a", "b", ""})
	require.NoError(t, err)
	require.Len(t, batch, 3)
	assert.Equal(t, make([]float32, 3), batch[2])
}

func TestOllamaEmbedder_UnreachableHostFails(t *testing.T) {
	_, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host:       "http://127.0.0.1:1",
		Model:      "nomic-embed-text",
		Timeout:    DefaultTimeout,
		MaxRetries: 1,
	})
	require.Error(t, err)
	assert.Contains(t, fmt.Sprintf("%v", err), "not available")
}

// flakyEmbedder reports unavailable for the first few polls, like an
// Ollama server that is still loading its model.
type flakyEmbedder struct {
	*StaticEmbedder
	mu    sync.Mutex
	polls int
	ready int // poll count at which Available flips to true, 0 = never
}

func (f *flakyEmbedder) Available(ctx context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	return f.ready > 0 && f.polls >= f.ready
}

func TestWaitAvailable_ReadyEmbedderReturnsImmediately(t *testing.T) {
	e := NewStaticEmbedder()
	defer func() { _ = e.Close() }()

	err := WaitAvailable(context.Background(), e, time.Millisecond)

	require.NoError(t, err)
}

func TestWaitAvailable_PollsUntilBackendComesUp(t *testing.T) {
	// Given a backend that becomes ready on the third poll
	e := &flakyEmbedder{StaticEmbedder: NewStaticEmbedder(), ready: 3}

	err := WaitAvailable(context.Background(), e, time.Millisecond)

	require.NoError(t, err)
	assert.GreaterOrEqual(t, e.polls, 3)
}

func TestWaitAvailable_ContextExpiryFails(t *testing.T) {
	// Given a backend that never comes up
	e := &flakyEmbedder{StaticEmbedder: NewStaticEmbedder()}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := WaitAvailable(ctx, e, time.Millisecond)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "did not become available")
}
