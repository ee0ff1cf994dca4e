// Package cmd defines and implements the CLI commands for the rollcallsyncd executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mentionmarkets/rollcall-sync/internal/config"
	"github.com/mentionmarkets/rollcall-sync/internal/logging"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rollcallsyncd",
		Short: "Keeps a Postgres mirror of Roll Call transcripts in sync.",
		Long: `rollcallsyncd discovers speaker-attributed transcripts on the Roll Call
FactBase listing, extracts and normalizes their dialogue, and keeps a
Postgres store incrementally synchronized.

The serve command runs the long-lived HTTP service; the sync command
performs a single synchronization pass and exits.`,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: built-in defaults plus ROLLCALL_* environment)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newSyncCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfigAndLogger is shared setup for the serve and sync commands. The
// returned cleanup flushes the logger.
func loadConfigAndLogger() (config.Config, *zap.Logger, func(), error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return config.Config{}, nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return config.Config{}, nil, nil, fmt.Errorf("init logger: %w", err)
	}
	zap.ReplaceGlobals(logger)
	cleanup := func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}
	return cfg, logger, cleanup, nil
}
