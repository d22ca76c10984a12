package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarrysearch/quarry/internal/store"
)

func lexHits(pairs ...any) []*store.LexicalResult {
	var out []*store.LexicalResult
	for i := 0; i < len(pairs); i += 2 {
		out = append(out, &store.LexicalResult{ChunkID: pairs[i].(string), Score: pairs[i+1].(float64)})
	}
	return out
}

func vecHits(pairs ...any) []*store.VectorResult {
	var out []*store.VectorResult
	for i := 0; i < len(pairs); i += 2 {
		out = append(out, &store.VectorResult{ChunkID: pairs[i].(string), Score: pairs[i+1].(float64)})
	}
	return out
}

func TestFuse_NormalizesAgainstEachListsOwnMax(t *testing.T) {
	// Given lexical scores on a different scale than vector scores
	lex := lexHits("a", 8.0, "b", 4.0)
	vec := vecHits("a", 0.9, "b", 0.45)

	// When fusing with default weights
	fused := Fuse(lex, vec, DefaultWeights(), 10)

	// Then each list normalizes to its own max before weighting
	require.Len(t, fused, 2)
	assert.Equal(t, "a", fused[0].ChunkID)
	assert.InDelta(t, 0.3*1.0+0.7*1.0, fused[0].CombinedScore, 1e-9)
	assert.InDelta(t, 0.3*0.5+0.7*0.5, fused[1].CombinedScore, 1e-9)
}

func TestFuse_OneSidedCandidateKept(t *testing.T) {
	// Given a chunk present only in the vector list
	lex := lexHits("a", 2.0)
	vec := vecHits("b", 0.8)

	fused := Fuse(lex, vec, DefaultWeights(), 10)

	// Then both chunks appear, each with its single-path contribution
	require.Len(t, fused, 2)
	byID := map[string]*FusedCandidate{}
	for _, f := range fused {
		byID[f.ChunkID] = f
	}
	assert.InDelta(t, 0.3, byID["a"].CombinedScore, 1e-9)
	assert.InDelta(t, 0.7, byID["b"].CombinedScore, 1e-9)
	assert.Zero(t, byID["a"].VectorScore)
	assert.Zero(t, byID["b"].LexicalScore)
}

func TestFuse_LoneResultNormalizesToFullWeight(t *testing.T) {
	// A single lexical hit is its own list maximum
	fused := Fuse(lexHits("only", 0.001), nil, Weights{Lexical: 1, Vector: 0}, 5)

	require.Len(t, fused, 1)
	assert.InDelta(t, 1.0, fused[0].CombinedScore, 1e-9)
}

func TestFuse_NegativeSimilarityClampsToZero(t *testing.T) {
	// Given a vector list whose max is positive but one entry is negative
	vec := vecHits("pos", 0.5, "neg", -0.25)

	fused := Fuse(nil, vec, DefaultWeights(), 10)

	require.Len(t, fused, 2)
	byID := map[string]*FusedCandidate{}
	for _, f := range fused {
		byID[f.ChunkID] = f
	}
	assert.InDelta(t, 0.7, byID["pos"].CombinedScore, 1e-9)
	assert.Zero(t, byID["neg"].CombinedScore)
}

func TestFuse_AllNonPositiveListContributesZero(t *testing.T) {
	// A vector list whose max is <= 0 contributes nothing, but its
	// members are still present in the merge
	vec := vecHits("a", -0.1, "b", -0.9)
	lex := lexHits("a", 3.0)

	fused := Fuse(lex, vec, DefaultWeights(), 10)

	require.Len(t, fused, 2)
	assert.Equal(t, "a", fused[0].ChunkID)
	assert.InDelta(t, 0.3, fused[0].CombinedScore, 1e-9)
	assert.Zero(t, fused[1].CombinedScore)
}

func TestFuse_TiesBreakByChunkIDAscending(t *testing.T) {
	lex := lexHits("zeta", 5.0, "alpha", 5.0)

	fused := Fuse(lex, nil, DefaultWeights(), 10)

	require.Len(t, fused, 2)
	assert.Equal(t, "alpha", fused[0].ChunkID)
	assert.Equal(t, "zeta", fused[1].ChunkID)
}

func TestFuse_TruncatesToTopK(t *testing.T) {
	lex := lexHits("a", 5.0, "b", 4.0, "c", 3.0, "d", 2.0)

	fused := Fuse(lex, nil, DefaultWeights(), 2)

	require.Len(t, fused, 2)
	assert.Equal(t, "a", fused[0].ChunkID)
	assert.Equal(t, "b", fused[1].ChunkID)
}

func TestFuse_EmptyInputsYieldEmpty(t *testing.T) {
	assert.Empty(t, Fuse(nil, nil, DefaultWeights(), 5))
}

func TestFuse_WeightsNeedNotSumToOne(t *testing.T) {
	lex := lexHits("a", 1.0)
	vec := vecHits("a", 1.0)

	fused := Fuse(lex, vec, Weights{Lexical: 2, Vector: 3}, 5)

	require.Len(t, fused, 1)
	assert.InDelta(t, 5.0, fused[0].CombinedScore, 1e-9)
}
