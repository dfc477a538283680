package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/datapolicy/policyscan/pkg/client"
)

func newRuleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rule",
		Short: "Manage compliance rules",
	}

	cmd.AddCommand(newRuleListCmd())
	cmd.AddCommand(newRuleGetCmd())
	cmd.AddCommand(newRuleCreateCmd())
	cmd.AddCommand(newRuleEnableCmd())
	cmd.AddCommand(newRuleDisableCmd())
	cmd.AddCommand(newRuleDeleteCmd())

	return cmd
}

func newRuleListCmd() *cobra.Command {
	var severity string
	var activeOnly bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := &client.RuleListOptions{Severity: severity}
			if activeOnly {
				active := true
				opts.IsActive = &active
			}

			rules, err := apiClient.Rules().List(context.Background(), opts)
			if err != nil {
				return fmt.Errorf("failed to list rules: %w", err)
			}

			if getOutputFormat() != "table" {
				return printOutput(rules)
			}

			t := NewTable("ID", "CODE", "SEVERITY", "ACTIVE", "TABLE", "CRITERIA")
			for _, r := range rules {
				active := "no"
				if r.IsActive {
					active = "yes"
				}
				t.AddRow(
					r.ID,
					r.Code,
					formatSeverity(r.Severity),
					active,
					r.TargetTable,
					truncate(r.EvaluationCriteria, 50),
				)
			}
			t.Render()
			return nil
		},
	}

	cmd.Flags().StringVar(&severity, "severity", "", "filter by severity")
	cmd.Flags().BoolVar(&activeOnly, "active", false, "show only active rules")

	return cmd
}

func newRuleGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Get rule details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rule, err := apiClient.Rules().Get(context.Background(), args[0])
			if err != nil {
				return fmt.Errorf("failed to get rule: %w", err)
			}
			return printOutput(rule)
		},
	}
}

func newRuleCreateCmd() *cobra.Command {
	var req client.CreateRuleRequest

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a rule",
		RunE: func(cmd *cobra.Command, args []string) error {
			rule, err := apiClient.Rules().Create(context.Background(), &req)
			if err != nil {
				return fmt.Errorf("failed to create rule: %w", err)
			}

			fmt.Printf("Rule %s created (%s)\n", rule.Code, rule.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.Code, "code", "", "unique rule code (e.g. FIN-001)")
	cmd.Flags().StringVar(&req.Name, "name", "", "human-readable name")
	cmd.Flags().StringVar(&req.Description, "description", "", "rule description")
	cmd.Flags().StringVar(&req.EvaluationCriteria, "criteria", "", "natural-language evaluation criteria")
	cmd.Flags().StringVar(&req.TargetTable, "table", "", "target table to evaluate")
	cmd.Flags().StringVar(&req.Severity, "severity", "medium", "severity: low, medium, high, critical")
	_ = cmd.MarkFlagRequired("code")
	_ = cmd.MarkFlagRequired("criteria")
	_ = cmd.MarkFlagRequired("table")

	return cmd
}

func newRuleEnableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enable <id>",
		Short: "Activate a rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return setRuleActive(args[0], true)
		},
	}
}

func newRuleDisableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disable <id>",
		Short: "Deactivate a rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return setRuleActive(args[0], false)
		},
	}
}

func setRuleActive(id string, active bool) error {
	rule, err := apiClient.Rules().Update(context.Background(), id, &client.UpdateRuleRequest{
		IsActive: &active,
	})
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}

	state := "disabled"
	if rule.IsActive {
		state = "enabled"
	}
	fmt.Printf("Rule %s %s\n", rule.Code, state)
	return nil
}

func newRuleDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := apiClient.Rules().Delete(context.Background(), args[0]); err != nil {
				return fmt.Errorf("failed to delete rule: %w", err)
			}
			fmt.Println("Rule deleted")
			return nil
		},
	}
}
