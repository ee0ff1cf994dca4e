package cmd

import (
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Performs a single synchronization pass and exits",
		Long: `Discovers transcripts inside the incremental window, fetches and
normalizes each document, updates the Postgres store, and exits. Useful
for cron-style scheduling without the long-lived service.`,
		RunE: runSyncCommand,
	}
}

func runSyncCommand(cmd *cobra.Command, _ []string) error {
	cfg, logger, cleanup, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p, err := buildPipeline(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer p.close()

	summary, err := p.orchestrator.RunSync(ctx)
	logger.Info("sync pass finished",
		zap.Bool("succeeded", summary.Succeeded),
		zap.Int("discovered", summary.Discovered),
		zap.Int("added", summary.Added),
		zap.Int("updated", summary.Updated),
		zap.Int("failed", summary.Failed),
	)
	if err != nil {
		return errors.New("sync pass completed with errors")
	}
	return nil
}
