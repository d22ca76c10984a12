// Package chunk splits documents into overlapping, sentence-respecting
// chunks. Splitting is a pure function of the document and the chunker
// configuration: the same input always produces the same chunk boundaries
// and the same chunk IDs.
package chunk

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/quarrysearch/quarry/internal/store"
	"github.com/quarrysearch/quarry/internal/token"
)

// Chunker accumulates sentences into chunks of at most Size characters,
// seeding each chunk with the trailing Overlap characters of the previous
// one. Lengths are counted in runes so multi-byte scripts are not
// penalized.
type Chunker struct {
	size    int
	overlap int
}

// New creates a chunker. Size must be positive and overlap must be
// non-negative and smaller than size.
func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap must be in [0, size), got %d", overlap)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Split chunks a document. Page breaks act as sentence breaks; a chunk's
// page is the page of its first accumulated (non-seed) sentence. A single
// sentence longer than the chunk size is emitted as its own chunk,
// unsplit — long sentences are never dropped or truncated. Empty or
// whitespace-only input yields zero chunks.
func (c *Chunker) Split(ctx context.Context, doc *store.Document) ([]*store.Chunk, error) {
	pages := doc.Pages
	if len(pages) == 0 {
		pages = []string{doc.Text}
	}

	var (
		chunks  []*store.Chunk
		cur     string // current chunk text, including any overlap seed
		curPage int    // page of the first accumulated sentence
		hasSent bool   // cur holds at least one sentence beyond the seed
	)

	emit := func() {
		chunks = append(chunks, &store.Chunk{
			ID:         store.ChunkID(doc.ID, len(chunks)),
			DocumentID: doc.ID,
			Ordinal:    len(chunks),
			Text:       cur,
			Page:       curPage,
			Source:     doc.Source,
		})
	}

	for pageIdx, page := range pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		normalized := token.NormalizeText(page)
		if normalized == "" {
			continue
		}

		for _, sent := range SplitSentences(normalized) {
			sentLen := utf8.RuneCountInString(sent)
			curLen := utf8.RuneCountInString(cur)

			// Emit before the accumulated chunk would overflow. The
			// seed alone never forces an emit, so an oversized sentence
			// still lands in exactly one chunk.
			if hasSent && curLen+1+sentLen > c.size {
				emit()
				cur = tailRunes(cur, c.overlap)
				hasSent = false
			}

			if cur == "" {
				cur = sent
			} else {
				cur += " " + sent
			}
			if !hasSent {
				curPage = pageIdx + 1
				hasSent = true
			}
		}
	}

	if hasSent {
		emit()
	}
	return chunks, nil
}

// sentence-terminal punctuation across the supported scripts.
func isTerminal(r rune) bool {
	switch r {
	case '.', '!', '?', '…', '。', '！', '？':
		return true
	}
	return false
}

// SplitSentences splits normalized text on terminal punctuation followed
// by a space or end of input. Consecutive terminals ("?!", "...") stay
// attached to their sentence, and interior punctuation (decimals,
// abbreviating dots inside words) does not split because it is not
// followed by a space.
func SplitSentences(text string) []string {
	var sents []string
	runes := []rune(text)
	start := 0

	for i := 0; i < len(runes); i++ {
		if !isTerminal(runes[i]) {
			continue
		}

		end := i
		for end+1 < len(runes) && isTerminal(runes[end+1]) {
			end++
		}

		if end+1 == len(runes) || runes[end+1] == ' ' {
			sent := strings.TrimSpace(string(runes[start : end+1]))
			if sent != "" {
				sents = append(sents, sent)
			}
			start = end + 1
		}
		i = end
	}

	if tail := strings.TrimSpace(string(runes[start:])); tail != "" {
		sents = append(sents, tail)
	}
	return sents
}

// tailRunes returns the last n runes of s.
func tailRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}
