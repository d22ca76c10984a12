package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quarrysearch/quarry/internal/output"
)

func newStatsCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show corpus and index statistics",
		Long:  `Display document and chunk counts, index freshness, and the active embedding model.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStats(cmd.Context(), cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runStats(ctx context.Context, cmd *cobra.Command, jsonOutput bool) error {
	out := output.New(cmd.OutOrStdout())

	r, root, err := openRetriever(ctx)
	if err != nil {
		return fmt.Errorf("opening corpus at %s: %w", root, err)
	}
	defer func() { _ = r.Close() }()

	stats, err := r.Stats(ctx)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}

	out.Statusf("📊", "Corpus at %s", root)
	out.Detailf("documents:  %d", stats.TotalDocuments)
	out.Detailf("chunks:     %d", stats.TotalChunks)
	out.Detailf("lexical:    %d indexed, %s", stats.LexicalIndexed, freshness(stats.LexicalFresh))
	out.Detailf("vector:     %d indexed, %s", stats.VectorIndexed, freshness(stats.VectorFresh))
	out.Detailf("embeddings: %s (%d dimensions)", stats.EmbeddingModel, stats.EmbeddingDimensions)
	if !stats.LastRebuild.IsZero() {
		out.Detailf("rebuilt:    %s", stats.LastRebuild.Format("2006-01-02 15:04:05"))
	}
	if stats.IndexFresh {
		out.Success("Indexes are up to date")
	} else {
		out.Warning("Indexes are stale; run 'quarry rebuild'")
	}
	return nil
}

func freshness(fresh bool) string {
	if fresh {
		return "fresh"
	}
	return "stale"
}
