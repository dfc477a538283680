package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/datapolicy/policyscan/pkg/client"
)

func newScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Manage scan runs",
	}

	cmd.AddCommand(newScanTriggerCmd())
	cmd.AddCommand(newScanListCmd())
	cmd.AddCommand(newScanGetCmd())
	cmd.AddCommand(newScanStatusCmd())

	return cmd
}

func newScanTriggerCmd() *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Trigger a manual scan",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			run, err := apiClient.Scans().Trigger(ctx)
			if err != nil {
				if apiErr, ok := err.(*client.APIError); ok && apiErr.IsConflict() {
					return fmt.Errorf("a scan is already running")
				}
				return fmt.Errorf("failed to trigger scan: %w", err)
			}

			fmt.Printf("Scan %s started\n", run.ID)

			if !wait {
				return nil
			}

			for {
				time.Sleep(2 * time.Second)
				run, err = apiClient.Scans().Get(ctx, run.ID)
				if err != nil {
					return fmt.Errorf("failed to poll scan: %w", err)
				}
				if run.Status != "running" {
					break
				}
			}

			printRunSummary(run)
			return nil
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", false, "wait for the scan to finish")

	return cmd
}

func newScanListCmd() *cobra.Command {
	var page, pageSize int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List scan runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			runs, err := apiClient.Scans().List(context.Background(), &client.ListOptions{
				Page:     page,
				PageSize: pageSize,
			})
			if err != nil {
				return fmt.Errorf("failed to list scans: %w", err)
			}

			if getOutputFormat() != "table" {
				return printOutput(runs)
			}

			t := NewTable("ID", "STATUS", "TRIGGER", "STARTED", "NEW", "PERSISTING", "RESOLVED")
			for _, r := range runs {
				t.AddRow(
					r.ID,
					formatStatus(r.Status),
					r.Trigger,
					r.StartedAt.Local().Format(time.RFC3339),
					strconv.Itoa(r.NewCount),
					strconv.Itoa(r.PersistingCount),
					strconv.Itoa(r.ResolvedCount),
				)
			}
			t.Render()
			return nil
		},
	}

	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 20, "page size")

	return cmd
}

func newScanGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Get scan run details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			run, err := apiClient.Scans().Get(context.Background(), args[0])
			if err != nil {
				return fmt.Errorf("failed to get scan: %w", err)
			}

			if getOutputFormat() != "table" {
				return printOutput(run)
			}

			printRunSummary(run)

			if len(run.Outcomes) > 0 {
				fmt.Println()
				t := NewTable("RULE", "OUTCOME", "ROWS", "DURATION", "DETAIL")
				for _, o := range run.Outcomes {
					t.AddRow(
						o.RuleCode,
						formatStatus(o.Outcome),
						strconv.Itoa(o.RowCount),
						fmt.Sprintf("%dms", o.DurationMS),
						truncate(o.Detail, 60),
					)
				}
				t.Render()
			}
			return nil
		},
	}
}

func newScanStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current or most recent scan",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := apiClient.Scans().Status(context.Background())
			if err != nil {
				return fmt.Errorf("failed to get scan status: %w", err)
			}

			if getOutputFormat() != "table" {
				return printOutput(status)
			}

			fmt.Printf("Scheduler: %s\n", formatStatus(status.State))
			if status.Run == nil {
				fmt.Println("No scans have run yet")
				return nil
			}
			fmt.Println()
			printRunSummary(status.Run)
			return nil
		},
	}
}

func printRunSummary(run *client.ScanRun) {
	fmt.Printf("Scan %s\n", run.ID)
	fmt.Printf("  Status:     %s\n", formatStatus(run.Status))
	fmt.Printf("  Trigger:    %s\n", run.Trigger)
	fmt.Printf("  Started:    %s\n", run.StartedAt.Local().Format(time.RFC3339))
	if run.CompletedAt != nil {
		fmt.Printf("  Completed:  %s\n", run.CompletedAt.Local().Format(time.RFC3339))
	}
	if run.Error != "" {
		fmt.Printf("  Error:      %s\n", run.Error)
	}
	fmt.Printf("  Rules:      %d evaluated, %d succeeded\n", run.RulesEvaluated, run.RulesSucceeded)
	fmt.Printf("  Violations: %d new, %d persisting, %d resolved\n", run.NewCount, run.PersistingCount, run.ResolvedCount)
}
