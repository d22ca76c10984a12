// Package extract turns source files into ingestible document text.
// It is the engine's file-reading collaborator; the engine itself only
// ever sees extracted text.
package extract

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/quarrysearch/quarry/internal/search"
)

// Extractor produces a document from a file path.
type Extractor interface {
	// Extract reads the file and returns its text content. Pages is
	// populated when the format has page structure, one entry per page.
	Extract(path string) (*search.DocumentInput, error)

	// Supports reports whether this extractor handles the extension.
	Supports(ext string) bool
}

// ForPath selects an extractor for the file, or nil if the format is
// unsupported.
func ForPath(path string) Extractor {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range []Extractor{NewPDFExtractor(), NewTextExtractor()} {
		if e.Supports(ext) {
			return e
		}
	}
	return nil
}

// PDFExtractor extracts page-ordered text from PDF files.
type PDFExtractor struct{}

// NewPDFExtractor creates a PDF extractor.
func NewPDFExtractor() *PDFExtractor { return &PDFExtractor{} }

// Supports reports whether ext is a PDF extension.
func (e *PDFExtractor) Supports(ext string) bool { return ext == ".pdf" }

// Extract reads the PDF page by page so chunk page attribution stays
// possible downstream. Pages that fail to decode are skipped with a
// warning rather than failing the whole document.
func (e *PDFExtractor) Extract(path string) (*search.DocumentInput, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	pages := make([]string, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			slog.Warn("skipping unreadable pdf page",
				slog.String("path", path),
				slog.Int("page", i),
				slog.String("error", err.Error()))
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		pages = append(pages, text)
	}

	if len(pages) == 0 {
		return nil, fmt.Errorf("no extractable text in %s", path)
	}

	return &search.DocumentInput{
		Title:  titleFromPath(path),
		Source: path,
		Text:   strings.Join(pages, "\n"),
		Pages:  pages,
	}, nil
}

// TextExtractor reads plain-text and markdown files whole.
type TextExtractor struct{}

// NewTextExtractor creates a plain-text extractor.
func NewTextExtractor() *TextExtractor { return &TextExtractor{} }

// Supports reports whether ext is a plain-text extension.
func (e *TextExtractor) Supports(ext string) bool {
	switch ext {
	case ".txt", ".md", ".markdown":
		return true
	}
	return false
}

// Extract reads the whole file as one page.
func (e *TextExtractor) Extract(path string) (*search.DocumentInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	text := strings.TrimSpace(string(data))
	if text == "" {
		return nil, fmt.Errorf("no extractable text in %s", path)
	}

	return &search.DocumentInput{
		Title:  titleFromPath(path),
		Source: path,
		Text:   text,
	}, nil
}

// titleFromPath derives a display title from the filename.
func titleFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
