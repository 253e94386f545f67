package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/Lumos-Labs-HQ/datagen/internal/types"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	historyTask  int64
	historyLimit int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent task executions",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := newApp(ctx, false)
		if err != nil {
			return err
		}
		defer a.Close()

		records, err := a.history.List(ctx, historyTask, historyLimit)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			color.Yellow("No executions recorded yet")
			return nil
		}

		fmt.Printf("%-6s %-6s %-20s %-10s %8s %8s %8s  %s\n", "ID", "TASK", "STARTED", "STATUS", "TOTAL", "OK", "ERRORS", "MESSAGE")
		for _, rec := range records {
			line := fmt.Sprintf("%-6d %-6d %-20s %-10s %8d %8d %8d  %s",
				rec.ID, rec.TaskID, rec.StartTime.Local().Format(time.DateTime), rec.Status,
				rec.TotalCount, rec.SuccessCount, rec.ErrorCount, rec.ErrorMessage)
			switch rec.Status {
			case types.ExecutionSuccess:
				color.Green("%s", line)
			case types.ExecutionFailed:
				color.Red("%s", line)
			case types.ExecutionStopped:
				color.Yellow("%s", line)
			default:
				fmt.Println(line)
			}
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the CLI version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("datagen version %s\n", Version)
	},
}

func init() {
	historyCmd.Flags().Int64Var(&historyTask, "task", 0, "Only show executions of this task")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Number of executions to show")
}
