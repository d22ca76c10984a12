package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/quarrysearch/quarry/internal/output"
)

func newRebuildCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild the search indexes from the corpus",
		Long: `Rebuild both the lexical and vector indexes from the stored
chunks. Needed after ingesting with --no-rebuild; otherwise indexes
are rebuilt automatically.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRebuild(cmd.Context(), cmd)
		},
	}
}

func runRebuild(ctx context.Context, cmd *cobra.Command) error {
	out := output.New(cmd.OutOrStdout())

	// Open already rebuilds from the corpus, so opening is the work.
	start := time.Now()
	r, root, err := openRetriever(ctx)
	if err != nil {
		return fmt.Errorf("rebuild failed for corpus at %s: %w", root, err)
	}
	defer func() { _ = r.Close() }()

	stats, err := r.Stats(ctx)
	if err != nil {
		return err
	}

	out.Successf("Rebuilt indexes in %s", time.Since(start).Round(time.Millisecond))
	out.Detailf("%d chunks indexed across %d documents", stats.TotalChunks, stats.TotalDocuments)
	return nil
}
