// Package cmd provides the CLI commands for quarry.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/quarrysearch/quarry/internal/config"
	"github.com/quarrysearch/quarry/internal/logging"
	"github.com/quarrysearch/quarry/pkg/retriever"
	"github.com/quarrysearch/quarry/pkg/version"
)

// Flags shared by all commands.
var (
	debugMode      bool
	dataDirFlag    string
	loggingCleanup func()
)

// NewRootCmd creates the root command for the quarry CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quarry",
		Short: "Hybrid lexical and semantic search over document collections",
		Long: `Quarry indexes business documents (PDF, text, markdown) into a local
corpus and searches them with hybrid retrieval: BM25 keyword matching
fused with embedding similarity.

Run 'quarry init' in a directory to create a corpus, 'quarry ingest'
to add documents, and 'quarry search' to query them.`,
		Version: version.Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.SetVersionTemplate("quarry version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	cmd.PersistentFlags().StringVar(&dataDirFlag, "data-dir", "", "Override the corpus data directory")
	cmd.PersistentPreRunE = setupLogging
	cmd.PersistentPostRunE = teardownLogging

	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newRebuildCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// setupLogging installs the process logger before any command runs. The
// level comes from configuration unless --debug overrides it.
func setupLogging(_ *cobra.Command, _ []string) error {
	root := corpusRoot()
	cfg, err := config.Load(root)
	if err != nil {
		cfg = config.NewConfig()
	}

	if dataDirFlag != "" {
		cfg.Storage.DataDir = dataDirFlag
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Logging.Level
	if cfg.Logging.ToFile {
		logCfg = logging.FileConfig(cfg.DataDir(root))
		logCfg.Level = cfg.Logging.Level
	}
	if debugMode {
		logCfg.Level = "debug"
	}

	cleanup, err := logging.SetupDefault(logCfg)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	loggingCleanup = cleanup
	return nil
}

func teardownLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// corpusRoot resolves the corpus root for the working directory.
func corpusRoot() string {
	root, err := config.FindCorpusRoot(".")
	if err != nil {
		root, _ = os.Getwd()
	}
	return root
}

// openRetriever opens the corpus for the working directory, honoring
// the --data-dir override.
func openRetriever(ctx context.Context) (*retriever.Retriever, string, error) {
	root := corpusRoot()

	var opts []retriever.Option
	if dataDirFlag != "" {
		cfg, err := config.Load(root)
		if err != nil {
			return nil, root, err
		}
		cfg.Storage.DataDir = dataDirFlag
		opts = append(opts, retriever.WithConfig(cfg))
	}

	r, err := retriever.Open(ctx, root, opts...)
	if err != nil {
		return nil, root, err
	}
	return r, root, nil
}
