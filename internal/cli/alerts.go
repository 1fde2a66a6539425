package cli

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"apples-watch/internal/alerting"
	"apples-watch/internal/app"
)

var (
	alertOpts      app.AlertOptions
	ruleName       string
	ruleThreshold  string
	ruleTerm       int
	ruleRecipient  string
	ruleInactive   bool
	historyAlertID int64
	historyLimit   int
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Manage price alert rules",
}

var alertsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create an alert rule",
	RunE: func(cmd *cobra.Command, args []string) error {
		threshold, err := parseThreshold(ruleThreshold)
		if err != nil {
			return err
		}
		rule := alerting.Rule{
			Name:      ruleName,
			Threshold: threshold,
			Recipient: ruleRecipient,
			Active:    !ruleInactive,
		}
		if ruleTerm > 0 {
			term := ruleTerm
			rule.TermMonths = &term
		}
		return getApp().AddRule(cmd.Context(), alertOpts, rule)
	},
}

var alertsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List alert rules",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ListRules(cmd.Context(), alertOpts)
	},
}

var alertsUpdateCmd = &cobra.Command{
	Use:   "update ID",
	Short: "Edit an alert rule (re-arms it)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseRuleID(args[0])
		if err != nil {
			return err
		}

		var patch alerting.RulePatch
		flags := cmd.Flags()
		if flags.Changed("name") {
			patch.Name = &ruleName
		}
		if flags.Changed("threshold") {
			threshold, err := parseThreshold(ruleThreshold)
			if err != nil {
				return err
			}
			patch.Threshold = &threshold
		}
		if flags.Changed("term") {
			patch.TermMonths = &ruleTerm
		}
		if flags.Changed("recipient") {
			patch.Recipient = &ruleRecipient
		}
		if patch == (alerting.RulePatch{}) {
			return errors.New("nothing to update; pass at least one of --name, --threshold, --term, --recipient")
		}
		return getApp().UpdateRule(cmd.Context(), alertOpts, id, patch)
	},
}

var alertsEnableCmd = &cobra.Command{
	Use:   "enable ID",
	Short: "Enable an alert rule (re-arms it)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseRuleID(args[0])
		if err != nil {
			return err
		}
		return getApp().SetRuleActive(cmd.Context(), alertOpts, id, true)
	},
}

var alertsDisableCmd = &cobra.Command{
	Use:   "disable ID",
	Short: "Disable an alert rule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseRuleID(args[0])
		if err != nil {
			return err
		}
		return getApp().SetRuleActive(cmd.Context(), alertOpts, id, false)
	},
}

var alertsDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete an alert rule; its history is kept",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseRuleID(args[0])
		if err != nil {
			return err
		}
		return getApp().DeleteRule(cmd.Context(), alertOpts, id)
	},
}

var alertsHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Show alert trigger history, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		if historyAlertID < 0 {
			return errors.New("--alert-id must not be negative")
		}
		return getApp().History(cmd.Context(), alertOpts, historyAlertID, historyLimit)
	},
}

func parseRuleID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid alert id %q", raw)
	}
	return id, nil
}

func parseThreshold(raw string) (decimal.Decimal, error) {
	threshold, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid --threshold value %q: %w", raw, err)
	}
	return threshold, nil
}

func bindRuleFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&ruleName, "name", "", "Rule name")
	cmd.Flags().StringVar(&ruleThreshold, "threshold", "", "Trigger when the price is at or below this $/kWh")
	cmd.Flags().IntVar(&ruleTerm, "term", 0, "Only consider this contract term in months (0 = any)")
	cmd.Flags().StringVar(&ruleRecipient, "recipient", "", "Email address to notify")
}

func init() {
	alertsCmd.PersistentFlags().StringVar(&alertOpts.AlertsDB, "alerts-db", "", "Alert store path (defaults to config, then alerts.db)")

	bindRuleFlags(alertsAddCmd)
	alertsAddCmd.Flags().BoolVar(&ruleInactive, "disabled", false, "Create the rule disabled")
	_ = alertsAddCmd.MarkFlagRequired("name")
	_ = alertsAddCmd.MarkFlagRequired("threshold")
	_ = alertsAddCmd.MarkFlagRequired("recipient")

	bindRuleFlags(alertsUpdateCmd)

	alertsHistoryCmd.Flags().Int64Var(&historyAlertID, "alert-id", 0, "Only show events for this rule")
	alertsHistoryCmd.Flags().IntVar(&historyLimit, "limit", 200, "Maximum events to show (0 = all)")

	alertsCmd.AddCommand(alertsAddCmd, alertsListCmd, alertsUpdateCmd, alertsEnableCmd, alertsDisableCmd, alertsDeleteCmd, alertsHistoryCmd)
}
