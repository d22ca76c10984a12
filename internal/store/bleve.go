package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"
	"github.com/blevesearch/bleve/v2/search/query"

	qerrors "github.com/quarrysearch/quarry/internal/errors"
)

const (
	// PretokenizedTokenizerName is the bleve tokenizer that splits on the
	// single spaces we join pre-tokenized input with.
	PretokenizedTokenizerName = "quarry_pretokenized"

	// PretokenizedAnalyzerName is the analyzer built on that tokenizer.
	// It applies no filters: the engine's tokenizer collaborator already
	// lowercased and stopword-filtered the tokens, and re-filtering here
	// would make query and corpus tokenization diverge.
	PretokenizedAnalyzerName = "quarry_pretokenized_analyzer"
)

func init() {
	_ = registry.RegisterTokenizer(PretokenizedTokenizerName, pretokenizedTokenizerConstructor)
}

// BleveLexicalIndex is the persistent lexical backend, wrapping a Bleve v2
// index over space-joined token lists. Scoring is Bleve's BM25-family
// weighting over the exact tokens the engine produced.
type BleveLexicalIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
}

// bleveChunkDoc is the document shape stored in bleve.
type bleveChunkDoc struct {
	Tokens string `json:"tokens"`
}

// Verify interface implementation at compile time
var _ LexicalIndex = (*BleveLexicalIndex)(nil)

// NewBleveLexicalIndex creates or opens a bleve index at path. An empty
// path creates an in-memory index for testing.
func NewBleveLexicalIndex(path string) (*BleveLexicalIndex, error) {
	indexMapping, err := createLexicalMapping()
	if err != nil {
		return nil, qerrors.New(qerrors.ErrCodeIndexBuild, "create bleve mapping", err)
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, qerrors.StorageWrite("create index directory", err)
		}
		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, indexMapping)
		}
	}
	if err != nil {
		return nil, qerrors.New(qerrors.ErrCodeIndexBuild, fmt.Sprintf("open bleve index at %s", path), err)
	}

	return &BleveLexicalIndex{index: idx, path: path}, nil
}

// createLexicalMapping builds the index mapping around the pretokenized
// analyzer.
func createLexicalMapping() (*mapping.IndexMappingImpl, error) {
	indexMapping := bleve.NewIndexMapping()

	err := indexMapping.AddCustomAnalyzer(PretokenizedAnalyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": PretokenizedTokenizerName,
	})
	if err != nil {
		return nil, fmt.Errorf("add custom analyzer: %w", err)
	}

	indexMapping.DefaultAnalyzer = PretokenizedAnalyzerName
	return indexMapping, nil
}

// Index adds chunks to the index.
func (b *BleveLexicalIndex) Index(ctx context.Context, chunks []*Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return qerrors.StoreClosed("index chunks")
	}

	batch := b.index.NewBatch()
	for _, c := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		doc := bleveChunkDoc{Tokens: strings.Join(c.Tokens, " ")}
		if err := batch.Index(c.ID, doc); err != nil {
			return qerrors.New(qerrors.ErrCodeIndexBuild, fmt.Sprintf("index chunk %s", c.ID), err)
		}
	}

	if err := b.index.Batch(batch); err != nil {
		return qerrors.New(qerrors.ErrCodeIndexBuild, "execute index batch", err)
	}
	return nil
}

// Query returns up to topK chunks matching any of the tokens, ordered by
// score descending with chunk ID ascending on ties. Zero-score hits are
// dropped.
func (b *BleveLexicalIndex) Query(ctx context.Context, tokens []string, topK int) ([]*LexicalResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, qerrors.StoreClosed("query lexical index")
	}
	if topK <= 0 || len(tokens) == 0 {
		return []*LexicalResult{}, nil
	}

	// One term query per token, OR-combined. A match query would re-run
	// the analyzer; term queries keep the engine's tokenization authoritative.
	terms := make([]query.Query, 0, len(tokens))
	for _, tok := range tokens {
		tq := bleve.NewTermQuery(tok)
		tq.SetField("tokens")
		terms = append(terms, tq)
	}

	req := bleve.NewSearchRequest(bleve.NewDisjunctionQuery(terms...))
	req.Size = topK

	result, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, qerrors.StorageRead("bleve search", err)
	}

	results := make([]*LexicalResult, 0, len(result.Hits))
	for _, hit := range result.Hits {
		if hit.Score <= 0 {
			continue
		}
		results = append(results, &LexicalResult{ChunkID: hit.ID, Score: hit.Score})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkID < results[j].ChunkID
	})

	return results, nil
}

// Delete removes chunks from the index.
func (b *BleveLexicalIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return qerrors.StoreClosed("delete from lexical index")
	}

	batch := b.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	if err := b.index.Batch(batch); err != nil {
		return qerrors.StorageWrite("delete batch", err)
	}
	return nil
}

// AllIDs returns all chunk IDs in the index.
func (b *BleveLexicalIndex) AllIDs() ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, qerrors.StoreClosed("list lexical index ids")
	}

	docCount, err := b.index.DocCount()
	if err != nil {
		return nil, qerrors.StorageRead("count index docs", err)
	}

	req := bleve.NewSearchRequest(bleve.NewMatchAllQuery())
	req.Size = int(docCount)
	req.Fields = []string{}

	result, err := b.index.Search(req)
	if err != nil {
		return nil, qerrors.StorageRead("list index ids", err)
	}

	ids := make([]string, len(result.Hits))
	for i, hit := range result.Hits {
		ids[i] = hit.ID
	}
	sort.Strings(ids)
	return ids, nil
}

// Stats returns index statistics. Bleve does not expose term count or
// average length directly; only the document count is reported.
func (b *BleveLexicalIndex) Stats() *LexicalStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return &LexicalStats{}
	}

	docCount, _ := b.index.DocCount()
	return &LexicalStats{DocumentCount: int(docCount)}
}

// Close closes the index.
func (b *BleveLexicalIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	if b.index != nil {
		return b.index.Close()
	}
	return nil
}

// pretokenizedTokenizerConstructor creates the space-splitting tokenizer.
func pretokenizedTokenizerConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.Tokenizer, error) {
	return &pretokenizedTokenizer{}, nil
}

// pretokenizedTokenizer splits input on single spaces. The input is the
// space-joined token list produced by the engine's tokenizer, so no
// further analysis is wanted.
type pretokenizedTokenizer struct{}

// Tokenize implements analysis.Tokenizer.
func (t *pretokenizedTokenizer) Tokenize(input []byte) analysis.TokenStream {
	text := string(input)
	parts := strings.Split(text, " ")

	result := make(analysis.TokenStream, 0, len(parts))
	pos := 1
	offset := 0
	for _, part := range parts {
		if part == "" {
			offset++
			continue
		}
		result = append(result, &analysis.Token{
			Term:     []byte(part),
			Start:    offset,
			End:      offset + len(part),
			Position: pos,
			Type:     analysis.AlphaNumeric,
		})
		pos++
		offset += len(part) + 1
	}
	return result
}
