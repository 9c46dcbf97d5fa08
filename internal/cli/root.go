// Package cli wires the litemono commands: a write-once import of
// downloaded issues into the monorepo, and read-only retrieval on top of it.
package cli

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	dataDir string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "litemono",
	Short: "Synthetic multi-peer collaborative-object monorepo",
	Long: `litemono imports downloaded issues into a content-addressed monorepo,
spreading each issue's history across a pool of synthetic peer identities,
and reads them back through a cached retrieval engine.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	SilenceUsage: true,
}

// Execute runs the root command. Called once from main.
func Execute(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger().Error("command failed", "err", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", "./data", "monorepo data directory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(
		newImportCmd(),
		newShowCmd(),
		newListCmd(),
		newGraphCmd(),
		newPeersCmd(),
	)
}

// logger builds the process logger. Debug level behind --verbose.
func logger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
