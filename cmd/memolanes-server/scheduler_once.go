package main

import (
	"log/slog"

	"github.com/spf13/cobra"
)

// newSchedulerOnceCmd leases and runs at most one due snapshot task, then
// exits — for deployments that prefer an external cron trigger over the
// long-lived serve loop.
func newSchedulerOnceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scheduler-once",
		Short: "Run at most one scheduled snapshot fetch and exit",
		RunE:  runSchedulerOnce,
	}
}

func runSchedulerOnce(cmd *cobra.Command, _ []string) error {
	a, err := buildApp(cmd.Context(), flagBootstrapFile)
	if err != nil {
		return err
	}
	defer a.close()

	ran, err := a.scheduler.RunOnce(cmd.Context())
	if err != nil {
		return err
	}

	if ran {
		a.logger.Info("ran one scheduled task")
	} else {
		a.logger.Info("no task was due")
	}

	return nil
}
