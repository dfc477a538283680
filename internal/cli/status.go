package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show engine summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			if getOutputFormat() != "table" {
				summary := map[string]interface{}{}
				if s, err := apiClient.Violations().Summary(ctx); err == nil {
					summary["violations"] = s
				}
				if status, err := apiClient.Scans().Status(ctx); err == nil {
					summary["scan"] = status
				}
				if sched, err := apiClient.Schedule().Get(ctx); err == nil {
					summary["schedule"] = sched
				}
				return printOutput(summary)
			}

			fmt.Println("PolicyScan")
			fmt.Println(strings.Repeat("=", 40))

			if status, err := apiClient.Target().Test(ctx); err != nil {
				fmt.Printf("  Target:     (error: %v)\n", err)
			} else if status.Reachable {
				fmt.Printf("  Target:     connected (%dms)\n", status.LatencyMS)
			} else {
				fmt.Printf("  Target:     unreachable\n")
			}

			if summary, err := apiClient.Violations().Summary(ctx); err != nil {
				fmt.Printf("  Violations: (error: %v)\n", err)
			} else {
				fmt.Printf("  Violations: %d open, %d resolved\n", summary.TotalOpen, summary.TotalResolved)
				if n := summary.BySeverity["critical"]; n > 0 {
					fmt.Printf("              %d critical need attention\n", n)
				}
			}

			if status, err := apiClient.Scans().Status(ctx); err != nil || status.Run == nil {
				fmt.Printf("  Last scan:  none\n")
			} else {
				run := status.Run
				fmt.Printf("  Last scan:  %s (%s)\n", formatStatus(run.Status), run.StartedAt.Local().Format("2006-01-02 15:04"))
			}

			if sched, err := apiClient.Schedule().Get(ctx); err == nil {
				if sched.Enabled {
					fmt.Printf("  Schedule:   every %d minutes\n", sched.IntervalMinutes)
				} else {
					fmt.Printf("  Schedule:   disabled\n")
				}
			}

			return nil
		},
	}
}
