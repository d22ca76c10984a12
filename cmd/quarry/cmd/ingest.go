package cmd

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/quarrysearch/quarry/internal/extract"
	"github.com/quarrysearch/quarry/internal/output"
)

// ingestOptions holds CLI flags for ingest.
type ingestOptions struct {
	noRebuild bool
}

func newIngestCmd() *cobra.Command {
	var opts ingestOptions

	cmd := &cobra.Command{
		Use:   "ingest <path>...",
		Short: "Add documents to the corpus",
		Long: `Extract and ingest documents into the corpus, then rebuild the
indexes so they are immediately searchable.

Paths can be files or directories. Directories are walked recursively;
supported formats are PDF (.pdf), plain text (.txt), and markdown
(.md, .markdown).

Examples:
  quarry ingest reports/
  quarry ingest q3-analysis.pdf notes.md
  quarry ingest archive/ --no-rebuild`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd.Context(), cmd, args, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.noRebuild, "no-rebuild", false, "Skip the index rebuild after ingesting")

	return cmd
}

func runIngest(ctx context.Context, cmd *cobra.Command, args []string, opts ingestOptions) error {
	out := output.New(cmd.OutOrStdout())

	paths, err := collectPaths(args)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		out.Warning("No supported documents found (looking for .pdf, .txt, .md, .markdown)")
		return nil
	}

	r, root, err := openRetriever(ctx)
	if err != nil {
		return fmt.Errorf("opening corpus at %s: %w", root, err)
	}
	defer func() { _ = r.Close() }()

	out.Statusf("📥", "Ingesting %d documents...", len(paths))

	report, err := r.IngestPaths(ctx, paths)
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}

	if !opts.noRebuild && report.ChunksCreated > 0 {
		if err := r.Rebuild(ctx); err != nil {
			return fmt.Errorf("index rebuild failed: %w", err)
		}
	}

	out.Successf("Ingested %d documents in %s", report.DocumentsProcessed, report.Duration.Round(time.Millisecond))
	out.Detailf("%d chunks created", report.ChunksCreated)
	if report.DocumentsSkipped > 0 {
		out.Warningf("%d documents skipped", report.DocumentsSkipped)
		for _, e := range report.Errors {
			out.Detailf("%s: %s", e.Source, e.Err)
		}
	}
	if opts.noRebuild && report.ChunksCreated > 0 {
		out.Status("", "Indexes are stale; run 'quarry rebuild' before searching")
	}
	return nil
}

// collectPaths expands the argument list into supported document files.
func collectPaths(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("cannot read %s: %w", arg, err)
		}

		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}

		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			name := d.Name()
			if d.IsDir() {
				if strings.HasPrefix(name, ".") && path != arg {
					return filepath.SkipDir
				}
				return nil
			}
			if strings.HasPrefix(name, ".") {
				return nil
			}
			if extract.ForPath(path) != nil {
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking %s: %w", arg, err)
		}
	}
	return paths, nil
}
