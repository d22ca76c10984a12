package token

import (
	"strings"
	"unicode"
)

// NormalizeText prepares raw document text for chunking and indexing.
// It strips markup tags and control characters and collapses whitespace
// runs to a single space. Characters of non-Latin scripts (Hangul, CJK,
// etc.) are preserved as-is; the text is never ASCII-folded.
func NormalizeText(text string) string {
	stripped := stripMarkup(text)

	var b strings.Builder
	b.Grow(len(stripped))

	inSpace := false
	for _, r := range stripped {
		if unicode.IsSpace(r) {
			inSpace = true
			continue
		}
		if unicode.IsControl(r) {
			continue
		}
		if inSpace && b.Len() > 0 {
			b.WriteByte(' ')
		}
		inSpace = false
		b.WriteRune(r)
	}

	return b.String()
}

// stripMarkup removes <...> tag spans. An unclosed '<' is kept literally.
func stripMarkup(text string) string {
	if !strings.ContainsRune(text, '<') {
		return text
	}

	var b strings.Builder
	b.Grow(len(text))

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		if runes[i] != '<' {
			b.WriteRune(runes[i])
			continue
		}

		end := -1
		for j := i + 1; j < len(runes); j++ {
			if runes[j] == '>' {
				end = j
				break
			}
		}
		if end == -1 {
			// No closing bracket; treat as literal text.
			b.WriteRune(runes[i])
			continue
		}
		// Tags act as word boundaries.
		b.WriteByte(' ')
		i = end
	}

	return b.String()
}
