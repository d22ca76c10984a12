package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/quarrysearch/quarry/internal/output"
	"github.com/quarrysearch/quarry/internal/watcher"
	"github.com/quarrysearch/quarry/pkg/retriever"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [path]",
		Short: "Watch a directory and keep the corpus in sync",
		Long: `Watch a directory for document changes and ingest them as they
appear. New and modified files are re-ingested, deleted files are
removed from the corpus, and the indexes are rebuilt after each
batch of changes.

Runs until interrupted. Events are debounced, so an editor saving a
file several times in quick succession triggers one ingest.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			return runWatch(cmd.Context(), cmd, dir)
		},
	}

	return cmd
}

func runWatch(ctx context.Context, cmd *cobra.Command, dir string) error {
	out := output.New(cmd.OutOrStdout())

	watchDir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolving watch path: %w", err)
	}
	if info, err := os.Stat(watchDir); err != nil || !info.IsDir() {
		return fmt.Errorf("%s is not a directory", watchDir)
	}

	r, root, err := openRetriever(ctx)
	if err != nil {
		return fmt.Errorf("opening corpus at %s: %w", root, err)
	}
	defer func() { _ = r.Close() }()

	w, err := watcher.New(watcher.DefaultOptions())
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer func() { _ = w.Stop() }()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	watchErr := make(chan error, 1)
	go func() {
		watchErr <- w.Start(ctx, watchDir)
	}()

	out.Statusf("👀", "Watching %s (Ctrl+C to stop)", watchDir)

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-watchErr:
			if err != nil && ctx.Err() == nil {
				return fmt.Errorf("watcher stopped: %w", err)
			}
			return nil
		case err := <-w.Errors():
			out.Warningf("watch error: %s", err)
		case batch := <-w.Events():
			if err := applyBatch(ctx, out, r, watchDir, batch); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				out.Errorf("sync failed: %s", err)
			}
		}
	}
}

// applyBatch syncs one debounced batch of file events into the corpus
// and rebuilds the indexes once at the end.
func applyBatch(ctx context.Context, out *output.Writer, r *retriever.Retriever, watchDir string, batch []watcher.FileEvent) error {
	var ingest []string
	changed := false

	for _, ev := range batch {
		if ev.IsDir {
			continue
		}
		path := filepath.Join(watchDir, ev.Path)

		switch ev.Operation {
		case watcher.OpCreate, watcher.OpModify:
			ingest = append(ingest, path)
		case watcher.OpDelete, watcher.OpRename:
			removed, err := r.RemoveBySource(ctx, path)
			if err != nil {
				return err
			}
			if removed > 0 {
				out.Statusf("🗑", "Removed %s", ev.Path)
				changed = true
			}
		}
	}

	if len(ingest) > 0 {
		report, err := r.IngestPaths(ctx, ingest)
		if err != nil {
			return err
		}
		if report.DocumentsProcessed > 0 {
			out.Statusf("📥", "Ingested %d documents (%d chunks)",
				report.DocumentsProcessed, report.ChunksCreated)
			changed = true
		}
		for _, e := range report.Errors {
			out.Warningf("skipped %s: %s", e.Source, e.Err)
		}
	}

	if changed {
		if err := r.Rebuild(ctx); err != nil {
			return err
		}
	}
	return nil
}
