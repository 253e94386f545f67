package cmd

import (
	"context"
	"fmt"

	"github.com/Lumos-Labs-HQ/datagen/internal/database"
	"github.com/Lumos-Labs-HQ/datagen/internal/metadata"
	"github.com/Lumos-Labs-HQ/datagen/internal/resolver"
	"github.com/Lumos-Labs-HQ/datagen/internal/types"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var planCmd = &cobra.Command{
	Use:   "plan <task-id>",
	Short: "Show the order a task writes its tables in",
	Long: `Connect to the task's data source, read the target tables and print
the insert order, the clear order for OVERWRITE, and each table's keys.
Nothing is written.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseTaskID(args[0])
		if err != nil {
			return err
		}

		ctx := context.Background()
		a, err := newApp(ctx, true)
		if err != nil {
			return err
		}
		defer a.Close()

		task, err := a.tasks.GetTask(ctx, id)
		if err != nil {
			return err
		}
		src, err := a.tasks.GetDataSource(ctx, task.DataSourceID)
		if err != nil {
			return err
		}

		if task.TargetType == types.TargetTopic {
			color.Cyan("📨 Task %d sends %d messages per run to topic %q on %s", task.ID, task.BatchSize, task.TargetName, src.Name)
			return nil
		}

		adapter, err := database.Open(ctx, src)
		if err != nil {
			return fmt.Errorf("failed to connect to %s: %w", src.Name, err)
		}
		defer adapter.Close()

		targets := task.Targets()
		tables, err := adapter.Introspect(ctx, targets)
		if err != nil {
			return fmt.Errorf("failed to read table metadata: %w", err)
		}
		for _, name := range targets {
			if _, ok := tables[name]; !ok {
				return fmt.Errorf("table %s does not exist in %s", name, src.Name)
			}
		}

		deps := metadata.DependencyMap(tables)
		insert := resolver.Resolve(targets, deps, types.ModeAppend)

		color.Cyan("📋 Insert order (%s):", insert.Outcome)
		for i, name := range insert.Order {
			printTable(i+1, tables[name])
		}

		if task.Mode() == types.ModeOverwrite {
			clearing := resolver.Resolve(targets, deps, types.ModeOverwrite)
			fmt.Println()
			color.Cyan("🧹 Clear order:")
			for i, name := range clearing.Order {
				fmt.Printf("  %d. %s\n", i+1, name)
			}
		}

		if insert.Fallback() {
			fmt.Println()
			color.Yellow("⚠️  The tables form a cycle; some foreign keys may be repaired during the run")
		}
		return nil
	},
}

func printTable(n int, table *metadata.TableMetadata) {
	fmt.Printf("  %d. %s (%d columns)\n", n, table.Name, len(table.Columns))
	if table.PrimaryKey != "" {
		pk := table.PrimaryKey
		if table.PKAutoIncrement {
			pk += ", store assigned"
		}
		fmt.Printf("     🔑 %s\n", pk)
	}
	for _, fk := range table.ForeignKeys {
		fmt.Printf("     🔗 %s → %s.%s\n", fk.Column, fk.RefTable, fk.RefColumn)
	}
}
