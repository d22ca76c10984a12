// Package token provides text normalization and tokenization for the
// retrieval engine. Tokenizers produce the lowercased, stopword-filtered
// token lists that feed the lexical index; the same tokenizer must be used
// for corpus chunks and for queries.
package token

import (
	"fmt"
	"strings"
	"unicode"
)

// MinTokenRunes is the minimum token length in runes. Shorter tokens carry
// almost no ranking signal and bloat the posting lists.
const MinTokenRunes = 2

// Tokenizer converts text into the token list used for lexical indexing.
type Tokenizer interface {
	// Tokenize returns lowercased, stopword-filtered tokens for text.
	// An empty result is valid (e.g. all-stopword input).
	Tokenize(text string) ([]string, error)

	// Name returns the tokenizer identifier used in configuration.
	Name() string
}

// New creates a tokenizer by configuration name.
func New(name string) (Tokenizer, error) {
	switch strings.ToLower(name) {
	case "", "whitespace":
		return NewWhitespace(), nil
	case "bigram":
		return NewBigram(), nil
	default:
		return nil, fmt.Errorf("unknown tokenizer: %q", name)
	}
}

// DefaultStopWords are filtered from token lists. The list mixes common
// English function words with frequent Korean conjunctions, matching the
// bilingual corpora the engine is built for.
var DefaultStopWords = []string{
	"a", "an", "and", "are", "as", "at", "be", "by", "for", "from",
	"has", "in", "is", "it", "of", "on", "or", "that", "the", "to",
	"was", "were", "will", "with",
	"그리고", "그러나", "하지만", "또한", "및", "등", "의", "이", "가",
}

// BuildStopWordMap converts a stop word list to a lookup set.
func BuildStopWordMap(words []string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[strings.ToLower(w)] = struct{}{}
	}
	return m
}

// WhitespaceTokenizer splits on non-word runes, lowercases, and filters
// stop words and sub-minimum tokens.
//
// Known limitation: languages without whitespace-delimited words (Korean in
// the source domain) get whole-eojeol tokens, so "강남구는" does not match a
// query for "강남구". Use the bigram tokenizer to recover that recall.
type WhitespaceTokenizer struct {
	stopWords map[string]struct{}
}

// NewWhitespace creates a whitespace tokenizer with the default stop words.
func NewWhitespace() *WhitespaceTokenizer {
	return &WhitespaceTokenizer{stopWords: BuildStopWordMap(DefaultStopWords)}
}

// Name implements Tokenizer.
func (t *WhitespaceTokenizer) Name() string { return "whitespace" }

// Tokenize implements Tokenizer.
func (t *WhitespaceTokenizer) Tokenize(text string) ([]string, error) {
	words := splitWords(text)

	tokens := make([]string, 0, len(words))
	for _, w := range words {
		lower := strings.ToLower(w)
		if runeLen(lower) < MinTokenRunes {
			continue
		}
		if _, stop := t.stopWords[lower]; stop {
			continue
		}
		tokens = append(tokens, lower)
	}
	return tokens, nil
}

// BigramTokenizer extends whitespace tokenization with Hangul character
// bigrams. Each Hangul word token additionally emits its overlapping
// two-character substrings, so "강남구는" also yields "강남", "남구", "구는"
// and a query for "강남구" ("강남", "남구") still matches.
type BigramTokenizer struct {
	base *WhitespaceTokenizer
}

// NewBigram creates a bigram tokenizer with the default stop words.
func NewBigram() *BigramTokenizer {
	return &BigramTokenizer{base: NewWhitespace()}
}

// Name implements Tokenizer.
func (t *BigramTokenizer) Name() string { return "bigram" }

// Tokenize implements Tokenizer.
func (t *BigramTokenizer) Tokenize(text string) ([]string, error) {
	tokens, err := t.base.Tokenize(text)
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(tokens)*2)
	for _, tok := range tokens {
		out = append(out, tok)
		if !containsHangul(tok) {
			continue
		}
		runes := []rune(tok)
		for i := 0; i+2 <= len(runes); i++ {
			out = append(out, string(runes[i:i+2]))
		}
	}
	return out, nil
}

// splitWords splits text on any rune that is not a letter or digit.
func splitWords(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// containsHangul reports whether s has at least one Hangul syllable or jamo.
func containsHangul(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Hangul, r) {
			return true
		}
	}
	return false
}

func runeLen(s string) int {
	n := 0
	for range s {
		n++
	}
	return n
}
