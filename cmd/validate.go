package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/Lumos-Labs-HQ/datagen/internal/rules"
	"github.com/Lumos-Labs-HQ/datagen/internal/store"
	"github.com/Lumos-Labs-HQ/datagen/internal/types"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the config, the tasks file and every template",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := newApp(ctx, true)
		if err != nil {
			return err
		}
		defer a.Close()

		tasks, err := a.tasks.ListTasks(ctx)
		if err != nil {
			return err
		}

		failed := 0
		for _, task := range tasks {
			if err := validateTask(ctx, a.tasks, task); err != nil {
				failed++
				color.Red("❌ Task %d (%s): %v", task.ID, task.Name, err)
				continue
			}
			color.Green("✅ Task %d (%s)", task.ID, task.Name)
		}

		if failed > 0 {
			return fmt.Errorf("%d of %d tasks are invalid", failed, len(tasks))
		}
		color.Green("✅ %d tasks are valid", len(tasks))
		return nil
	},
}

func validateTask(ctx context.Context, sources store.DataSourceStore, task *types.Task) error {
	if task.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive")
	}
	if task.Frequency <= 0 {
		return fmt.Errorf("frequency must be positive")
	}

	src, err := sources.GetDataSource(ctx, task.DataSourceID)
	if err != nil {
		return err
	}

	switch task.TargetType {
	case types.TargetTable:
		if src.IsStream() {
			return fmt.Errorf("data source %s is a stream and cannot hold tables", src.Name)
		}
		if len(task.Targets()) == 0 {
			return fmt.Errorf("no target tables")
		}
	case types.TargetTopic:
		if !src.IsStream() {
			return fmt.Errorf("data source %s cannot hold topics", src.Name)
		}
		if task.Template == "" {
			return fmt.Errorf("a topic task needs a template")
		}
	default:
		return fmt.Errorf("unknown target type %q", task.TargetType)
	}

	if _, err := rules.Compile([]byte(task.Template)); err != nil {
		var cfgErr *rules.ConfigError
		if errors.As(err, &cfgErr) {
			return fmt.Errorf("template: %w", cfgErr)
		}
		return err
	}
	return nil
}
