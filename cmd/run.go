package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var runNoHistory bool

var runCmd = &cobra.Command{
	Use:   "run <task-id>",
	Short: "Run one task once",
	Long: `Run a task immediately, regardless of its status or schedule.

The run is recorded in the execution history unless --no-history is set.
The command fails when the run does not finish with SUCCESS.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseTaskID(args[0])
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		a, err := newApp(ctx, runNoHistory)
		if err != nil {
			return err
		}
		defer a.Close()

		if !a.scheduler.ExecuteTask(ctx, id) {
			return fmt.Errorf("task %d did not complete successfully", id)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&runNoHistory, "no-history", false, "Keep execution records in memory only")
}
