package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quarrysearch/quarry/internal/output"
	"github.com/quarrysearch/quarry/internal/search"
)

// searchFlags holds CLI flags for search.
type searchFlags struct {
	limit         int
	mode          string
	format        string
	lexicalWeight float64
	vectorWeight  float64
}

func newSearchCmd() *cobra.Command {
	var flags searchFlags

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the corpus",
		Long: `Search the corpus with hybrid retrieval.

Hybrid mode (the default) fuses BM25 keyword scores with embedding
similarity; lexical and vector modes use a single path.

Examples:
  quarry search "quarterly revenue breakdown"
  quarry search "상권 분석" --mode lexical --top-k 3
  quarry search "churn drivers" --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd.Context(), cmd, query, flags)
		},
	}

	cmd.Flags().IntVarP(&flags.limit, "top-k", "k", 0, "Maximum number of results (default: configured default_top_k)")
	cmd.Flags().StringVarP(&flags.mode, "mode", "m", "", "Search mode: hybrid, lexical, vector (default: hybrid)")
	cmd.Flags().StringVarP(&flags.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().Float64Var(&flags.lexicalWeight, "lexical-weight", 0, "Override the lexical fusion weight for this query")
	cmd.Flags().Float64Var(&flags.vectorWeight, "vector-weight", 0, "Override the vector fusion weight for this query")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, flags searchFlags) error {
	out := output.New(cmd.OutOrStdout())

	r, root, err := openRetriever(ctx)
	if err != nil {
		return fmt.Errorf("opening corpus at %s: %w", root, err)
	}
	defer func() { _ = r.Close() }()

	opts := search.SearchOptions{
		Mode: search.Mode(flags.mode),
		TopK: flags.limit,
	}
	if opts.TopK <= 0 {
		opts.TopK = r.Config().Search.DefaultTopK
	}
	if cmd.Flags().Changed("lexical-weight") || cmd.Flags().Changed("vector-weight") {
		w := search.Weights{
			Lexical: r.Config().Search.LexicalWeight,
			Vector:  r.Config().Search.VectorWeight,
		}
		if cmd.Flags().Changed("lexical-weight") {
			w.Lexical = flags.lexicalWeight
		}
		if cmd.Flags().Changed("vector-weight") {
			w.Vector = flags.vectorWeight
		}
		opts.Weights = &w
	}

	results, err := r.Search(ctx, query, opts)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if flags.format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	return renderResults(out, query, results)
}

// renderResults prints results in human-readable form.
func renderResults(out *output.Writer, query string, results []*search.SearchResult) error {
	if len(results) == 0 {
		out.Statusf("", "No results found for %q", query)
		return nil
	}

	out.Statusf("🔍", "Found %d results for %q:", len(results), query)
	out.Newline()

	for i, r := range results {
		location := r.Source
		if location == "" {
			location = r.DocumentID
		}
		if r.Page > 0 {
			location = fmt.Sprintf("%s (page %d)", location, r.Page)
		}
		out.Statusf("", "%d. %s (score: %.3f)", i+1, location, r.CombinedScore)
		if r.LexicalScore > 0 || r.VectorScore > 0 {
			out.Detailf("lexical: %.3f | vector: %.3f", r.LexicalScore, r.VectorScore)
		}
		for _, line := range snippetLines(r.Text, 3) {
			out.Status("", "   "+line)
		}
		out.Newline()
	}
	return nil
}

// snippetLines returns the first n non-empty-tail lines of text.
func snippetLines(text string, n int) []string {
	lines := strings.Split(text, "\n")
	if len(lines) > n {
		lines = lines[:n]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
