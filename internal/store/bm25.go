package store

import (
	"context"
	"math"
	"sort"
	"sync"

	qerrors "github.com/quarrysearch/quarry/internal/errors"
)

// MemoryBM25Index is the reference lexical backend: textbook Okapi BM25
// over pre-tokenized chunks, held entirely in memory. It is exact,
// deterministic, and rebuildable from the corpus store in O(total tokens).
//
// Weighting properties: score is monotonic in term frequency (saturating
// via K1), monotonic-decreasing in document frequency (rare terms score
// higher), and length-normalized via B so long chunks are not favored
// purely by length.
type MemoryBM25Index struct {
	mu     sync.RWMutex
	config BM25Config
	closed bool

	// postings maps term -> chunk ID -> term frequency.
	postings map[string]map[string]int
	// docLens maps chunk ID -> token count.
	docLens map[string]int
	// totalLen is the sum of all token counts, for the average.
	totalLen int
}

// Verify interface implementation at compile time
var _ LexicalIndex = (*MemoryBM25Index)(nil)

// NewMemoryBM25Index creates an empty in-memory BM25 index.
func NewMemoryBM25Index(config BM25Config) *MemoryBM25Index {
	if config.K1 == 0 {
		config.K1 = 1.2
	}
	if config.B == 0 {
		config.B = 0.75
	}
	return &MemoryBM25Index{
		config:   config,
		postings: make(map[string]map[string]int),
		docLens:  make(map[string]int),
	}
}

// Index adds chunks to the index. Re-indexing an existing chunk ID
// replaces its previous postings.
func (m *MemoryBM25Index) Index(ctx context.Context, chunks []*Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return qerrors.StoreClosed("index chunks")
	}

	for _, c := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, exists := m.docLens[c.ID]; exists {
			m.removeLocked(c.ID)
		}

		m.docLens[c.ID] = len(c.Tokens)
		m.totalLen += len(c.Tokens)

		for _, term := range c.Tokens {
			posting := m.postings[term]
			if posting == nil {
				posting = make(map[string]int)
				m.postings[term] = posting
			}
			posting[c.ID]++
		}
	}

	return nil
}

// Query ranks chunks by Okapi BM25 against the query tokens. Chunks with a
// zero score never appear in the result; callers can rely on score > 0 to
// distinguish "no match" from "very weak match".
func (m *MemoryBM25Index) Query(ctx context.Context, tokens []string, topK int) ([]*LexicalResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, qerrors.StoreClosed("query lexical index")
	}
	if topK <= 0 || len(tokens) == 0 || len(m.docLens) == 0 {
		return []*LexicalResult{}, nil
	}

	n := float64(len(m.docLens))
	avgLen := float64(m.totalLen) / n

	scores := make(map[string]float64)
	for _, term := range tokens {
		posting, ok := m.postings[term]
		if !ok {
			continue
		}

		df := float64(len(posting))
		// Okapi IDF with the +1 inside the log keeps the weight positive
		// even for terms present in most of the corpus.
		idf := math.Log(1 + (n-df+0.5)/(df+0.5))

		for id, tf := range posting {
			docLen := float64(m.docLens[id])
			norm := 1 - m.config.B + m.config.B*docLen/avgLen
			tfF := float64(tf)
			scores[id] += idf * (tfF * (m.config.K1 + 1)) / (tfF + m.config.K1*norm)
		}
	}

	results := make([]*LexicalResult, 0, len(scores))
	for id, score := range scores {
		if score <= 0 {
			continue
		}
		results = append(results, &LexicalResult{ChunkID: id, Score: score})
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

// Delete removes chunks from the index by ID.
func (m *MemoryBM25Index) Delete(ctx context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return qerrors.StoreClosed("delete from lexical index")
	}

	for _, id := range ids {
		m.removeLocked(id)
	}
	return nil
}

// removeLocked removes one chunk's postings. Caller holds the write lock.
func (m *MemoryBM25Index) removeLocked(id string) {
	length, ok := m.docLens[id]
	if !ok {
		return
	}
	delete(m.docLens, id)
	m.totalLen -= length

	for term, posting := range m.postings {
		if _, ok := posting[id]; ok {
			delete(posting, id)
			if len(posting) == 0 {
				delete(m.postings, term)
			}
		}
	}
}

// AllIDs returns all chunk IDs in the index.
func (m *MemoryBM25Index) AllIDs() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, qerrors.StoreClosed("list lexical index ids")
	}

	ids := make([]string, 0, len(m.docLens))
	for id := range m.docLens {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Stats returns index statistics.
func (m *MemoryBM25Index) Stats() *LexicalStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed || len(m.docLens) == 0 {
		return &LexicalStats{}
	}

	return &LexicalStats{
		DocumentCount: len(m.docLens),
		TermCount:     len(m.postings),
		AvgDocLength:  float64(m.totalLen) / float64(len(m.docLens)),
	}
}

// Close releases the index.
func (m *MemoryBM25Index) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	m.postings = nil
	m.docLens = nil
	return nil
}
