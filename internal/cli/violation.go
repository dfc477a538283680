package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/datapolicy/policyscan/pkg/client"
)

func newViolationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "violation",
		Short: "Manage violations",
	}

	cmd.AddCommand(newViolationListCmd())
	cmd.AddCommand(newViolationGetCmd())
	cmd.AddCommand(newViolationConfirmCmd())
	cmd.AddCommand(newViolationFalsePositiveCmd())
	cmd.AddCommand(newViolationSummaryCmd())

	return cmd
}

func newViolationListCmd() *cobra.Command {
	var ruleID, status, reviewStatus, severity string
	var page, pageSize int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List violations",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := &client.ViolationListOptions{
				RuleID:       ruleID,
				Status:       status,
				ReviewStatus: reviewStatus,
				Severity:     severity,
			}
			opts.Page = page
			opts.PageSize = pageSize

			violations, err := apiClient.Violations().List(context.Background(), opts)
			if err != nil {
				return fmt.Errorf("failed to list violations: %w", err)
			}

			if getOutputFormat() != "table" {
				return printOutput(violations)
			}

			t := NewTable("ID", "RECORD", "SEVERITY", "STATUS", "REVIEW", "FIRST SEEN")
			for _, v := range violations {
				t.AddRow(
					v.ID,
					truncate(v.RecordIdentifier, 30),
					formatSeverity(v.Severity),
					formatStatus(v.Status),
					formatStatus(v.ReviewStatus),
					v.FirstDetectedAt.Local().Format(time.RFC3339),
				)
			}
			t.Render()
			return nil
		},
	}

	cmd.Flags().StringVar(&ruleID, "rule", "", "filter by rule ID")
	cmd.Flags().StringVar(&status, "status", "", "filter by status (open, resolved)")
	cmd.Flags().StringVar(&reviewStatus, "review", "", "filter by review status")
	cmd.Flags().StringVar(&severity, "severity", "", "filter by severity")
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 20, "page size")

	return cmd
}

func newViolationGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Get violation details, including the offending record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := apiClient.Violations().Get(context.Background(), args[0])
			if err != nil {
				return fmt.Errorf("failed to get violation: %w", err)
			}
			return printOutput(v)
		},
	}
}

func newViolationConfirmCmd() *cobra.Command {
	var note string

	cmd := &cobra.Command{
		Use:   "confirm <id>",
		Short: "Confirm a violation as genuine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return reviewViolation(args[0], "confirmed", note)
		},
	}

	cmd.Flags().StringVar(&note, "note", "", "review note")

	return cmd
}

func newViolationFalsePositiveCmd() *cobra.Command {
	var note string

	cmd := &cobra.Command{
		Use:   "false-positive <id>",
		Short: "Mark a violation as a false positive",
		Long:  "Mark a violation as a false positive. Later scans will not recreate or resolve it.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return reviewViolation(args[0], "false_positive", note)
		},
	}

	cmd.Flags().StringVar(&note, "note", "", "review note")

	return cmd
}

func reviewViolation(id, status, note string) error {
	v, err := apiClient.Violations().Review(context.Background(), id, &client.ReviewRequest{
		ReviewStatus: status,
		Note:         note,
	})
	if err != nil {
		return fmt.Errorf("failed to review violation: %w", err)
	}

	fmt.Printf("Violation %s marked %s\n", v.ID, v.ReviewStatus)
	return nil
}

func newViolationSummaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Show aggregate violation counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			summary, err := apiClient.Violations().Summary(context.Background())
			if err != nil {
				return fmt.Errorf("failed to get summary: %w", err)
			}

			if getOutputFormat() != "table" {
				return printOutput(summary)
			}

			fmt.Printf("Open violations:     %d\n", summary.TotalOpen)
			fmt.Printf("Resolved violations: %d\n", summary.TotalResolved)

			if len(summary.BySeverity) > 0 {
				fmt.Println("\nBy severity:")
				for _, sev := range []string{"critical", "high", "medium", "low"} {
					if n, ok := summary.BySeverity[sev]; ok {
						fmt.Printf("  %-14s %d\n", formatSeverity(sev), n)
					}
				}
			}
			return nil
		},
	}
}
