package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/quarrysearch/quarry/configs"
	"github.com/quarrysearch/quarry/internal/config"
	"github.com/quarrysearch/quarry/internal/output"
)

func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Initialize a quarry corpus",
		Long: `Create a .quarry.yaml configuration file and the .quarry data
directory in the given path (default: current directory).

The generated config documents every setting with its default value,
so a fresh corpus works without editing anything.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) > 0 {
				root = args[0]
			}
			return runInit(cmd, root, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing .quarry.yaml")

	return cmd
}

func runInit(cmd *cobra.Command, root string, force bool) error {
	out := output.New(cmd.OutOrStdout())

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolving corpus root: %w", err)
	}

	configPath := filepath.Join(absRoot, config.ProjectConfigName)
	if _, err := os.Stat(configPath); err == nil && !force {
		out.Warningf("%s already exists (use --force to overwrite)", config.ProjectConfigName)
		return nil
	}

	if err := os.WriteFile(configPath, []byte(configs.ProjectConfigTemplate), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", configPath, err)
	}

	dataDir := filepath.Join(absRoot, config.DataDirName)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	out.Successf("Initialized corpus at %s", absRoot)
	out.Detailf("config: %s", configPath)
	out.Detailf("data:   %s", dataDir)
	out.Newline()
	out.Status("", "Next: quarry ingest <files or directories>")
	return nil
}
