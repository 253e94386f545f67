package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Lumos-Labs-HQ/datagen/internal/logger"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run every RUNNING task on its schedule",
	Long: `Start the scheduler. Every task whose status is RUNNING runs at once
and then again Frequency seconds after each run ends. The tasks file is
re-read on the reconcile interval, so tasks started or stopped there are
picked up without a restart.

Stop with Ctrl+C; in-flight runs are cancelled and recorded as STOPPED.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, false)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.scheduler.Start(ctx); err != nil {
			return err
		}
		logger.Success("✅ Serving tasks from %s", a.tasks.Path())

		<-ctx.Done()
		logger.Info("🛑 Shutting down...")
		a.scheduler.Stop()
		return nil
	},
}
