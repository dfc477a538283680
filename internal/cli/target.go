package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newTargetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "target",
		Short: "Inspect the target database",
	}

	cmd.AddCommand(newTargetTestCmd())
	cmd.AddCommand(newTargetSchemaCmd())

	return cmd
}

func newTargetTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Test target database connectivity",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := apiClient.Target().Test(context.Background())
			if err != nil {
				return fmt.Errorf("failed to test target: %w", err)
			}

			if getOutputFormat() != "table" {
				return printOutput(status)
			}

			if status.Reachable {
				fmt.Printf("Target reachable (%dms)\n", status.LatencyMS)
			} else {
				fmt.Printf("Target unreachable: %s\n", status.Error)
			}
			return nil
		},
	}
}

func newTargetSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Show the current target schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, err := apiClient.Target().Schema(context.Background())
			if err != nil {
				return fmt.Errorf("failed to inspect schema: %w", err)
			}

			if getOutputFormat() != "table" {
				return printOutput(schema)
			}

			fmt.Printf("Schema hash: %s\n\n", schema.Hash)
			for _, table := range schema.Tables {
				fmt.Printf("%s\n", table.Name)
				t := NewTable("  COLUMN", "TYPE", "NULLABLE", "PK")
				for _, c := range table.Columns {
					nullable, pk := "", ""
					if c.Nullable {
						nullable = "yes"
					}
					if c.PrimaryKey {
						pk = "yes"
					}
					t.AddRow("  "+c.Name, c.DataType, nullable, pk)
				}
				t.Render()
				fmt.Println()
			}
			return nil
		},
	}
}
