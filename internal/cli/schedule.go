package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/datapolicy/policyscan/pkg/client"
)

func newScheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Manage the periodic scan schedule",
	}

	cmd.AddCommand(newScheduleGetCmd())
	cmd.AddCommand(newScheduleSetCmd())

	return cmd
}

func newScheduleGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get",
		Short: "Show the current schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			schedule, err := apiClient.Schedule().Get(context.Background())
			if err != nil {
				return fmt.Errorf("failed to get schedule: %w", err)
			}

			if getOutputFormat() != "table" {
				return printOutput(schedule)
			}

			printSchedule(schedule)
			return nil
		},
	}
}

func newScheduleSetCmd() *cobra.Command {
	var enabled bool
	var interval int

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Configure the schedule",
		Long:  "Enable or disable periodic scans and set the interval in minutes (60 to 1440). The next run is recomputed from now.",
		RunE: func(cmd *cobra.Command, args []string) error {
			schedule, err := apiClient.Schedule().Update(context.Background(), &client.UpdateScheduleRequest{
				Enabled:         enabled,
				IntervalMinutes: interval,
			})
			if err != nil {
				return fmt.Errorf("failed to update schedule: %w", err)
			}

			printSchedule(schedule)
			return nil
		},
	}

	cmd.Flags().BoolVar(&enabled, "enabled", true, "enable periodic scans")
	cmd.Flags().IntVar(&interval, "interval", 60, "interval between scans in minutes (60-1440)")

	return cmd
}

func printSchedule(s *client.Schedule) {
	state := "disabled"
	if s.Enabled {
		state = "enabled"
	}
	fmt.Printf("Schedule:  %s, every %d minutes\n", state, s.IntervalMinutes)
	if s.SchedulerState != "" {
		fmt.Printf("Scheduler: %s\n", formatStatus(s.SchedulerState))
	}
	if s.NextRunAt != nil {
		fmt.Printf("Next run:  %s\n", s.NextRunAt.Local().Format(time.RFC3339))
	}
	if s.LastRunAt != nil {
		fmt.Printf("Last run:  %s\n", s.LastRunAt.Local().Format(time.RFC3339))
	}
}
