package search

import (
	"sort"

	"github.com/quarrysearch/quarry/internal/store"
)

// FusedCandidate is one merged hybrid candidate before enrichment.
type FusedCandidate struct {
	ChunkID       string
	LexicalScore  float64
	VectorScore   float64
	CombinedScore float64
}

// Fuse merges the lexical and vector candidate lists into one ranking.
//
// Each list's scores are first normalized to [0,1] against that list's
// own maximum (an empty list or a non-positive max normalizes to all
// zeros). Candidates are then merged keyed by chunk ID, the combined
// score is the weighted sum of the two normalized scores, and the
// merged list is sorted by combined score descending with ties broken
// by chunk ID ascending. A chunk present in only one list keeps that
// list's weighted contribution; it is never dropped for lacking the
// other signal.
func Fuse(lexical []*store.LexicalResult, vector []*store.VectorResult, weights Weights, topK int) []*FusedCandidate {
	byID := make(map[string]*FusedCandidate, len(lexical)+len(vector))

	lexMax := 0.0
	for _, r := range lexical {
		if r.Score > lexMax {
			lexMax = r.Score
		}
	}
	vecMax := 0.0
	for _, r := range vector {
		if r.Score > vecMax {
			vecMax = r.Score
		}
	}

	for _, r := range lexical {
		c := &FusedCandidate{ChunkID: r.ChunkID, LexicalScore: r.Score}
		byID[r.ChunkID] = c
	}
	for _, r := range vector {
		c, ok := byID[r.ChunkID]
		if !ok {
			c = &FusedCandidate{ChunkID: r.ChunkID}
			byID[r.ChunkID] = c
		}
		c.VectorScore = r.Score
	}

	results := make([]*FusedCandidate, 0, len(byID))
	for _, c := range byID {
		c.CombinedScore = weights.Lexical*normalize(c.LexicalScore, lexMax) +
			weights.Vector*normalize(c.VectorScore, vecMax)
		results = append(results, c)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].CombinedScore != results[j].CombinedScore {
			return results[i].CombinedScore > results[j].CombinedScore
		}
		return results[i].ChunkID < results[j].ChunkID
	})

	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results
}

// normalize maps score into [0,1] against the list maximum. A list
// with no positive max contributes zero for every member; negative
// cosine similarities clamp to zero rather than going below the range.
func normalize(score, max float64) float64 {
	if max <= 0 {
		return 0
	}
	n := score / max
	if n < 0 {
		return 0
	}
	if n > 1 {
		return 1
	}
	return n
}
