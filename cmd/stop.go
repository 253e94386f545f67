package cmd

import (
	"context"

	"github.com/Lumos-Labs-HQ/datagen/internal/logger"
	"github.com/spf13/cobra"
)

var stopCmd = &cobra.Command{
	Use:   "stop <task-id>",
	Short: "Stop a task",
	Long: `Mark a task STOPPED in the tasks file and close its RUNNING execution
record. A serving scheduler sees the new status before its next write and
ends the run.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseTaskID(args[0])
		if err != nil {
			return err
		}

		ctx := context.Background()
		a, err := newApp(ctx, false)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.scheduler.StopTask(ctx, id); err != nil {
			return err
		}
		logger.Success("✅ Task %d stopped", id)
		return nil
	},
}
