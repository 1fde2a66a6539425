package app

import (
	"context"
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"apples-watch/internal/alerting"
	"apples-watch/internal/api"
)

// AlertOptions select the alert store used by the alert commands.
type AlertOptions struct {
	AlertsDB string
}

func (a *App) withAlertStore(ctx context.Context, opts AlertOptions, fn func(api.RuleStore) error) error {
	store, err := a.openAlertStore(ctx, a.alertsPath(opts.AlertsDB))
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

// AddRule creates an armed rule.
func (a *App) AddRule(ctx context.Context, opts AlertOptions, rule alerting.Rule) error {
	return a.withAlertStore(ctx, opts, func(store api.RuleStore) error {
		created, err := store.CreateRule(ctx, rule)
		if err != nil {
			return err
		}
		a.Logger.Info().Int64("rule_id", created.ID).Str("rule", created.Name).Msg("alert rule created")
		return a.printRules([]alerting.Rule{created})
	})
}

// ListRules prints every rule.
func (a *App) ListRules(ctx context.Context, opts AlertOptions) error {
	return a.withAlertStore(ctx, opts, func(store api.RuleStore) error {
		rules, err := store.ListRules(ctx)
		if err != nil {
			return err
		}
		if len(rules) == 0 {
			fmt.Fprintln(a.Out, "no alert rules defined")
			return nil
		}
		return a.printRules(rules)
	})
}

// UpdateRule applies patch to a rule, which re-arms it.
func (a *App) UpdateRule(ctx context.Context, opts AlertOptions, id int64, patch alerting.RulePatch) error {
	return a.withAlertStore(ctx, opts, func(store api.RuleStore) error {
		current, err := store.GetRule(ctx, id)
		if err != nil {
			return err
		}
		updated, err := store.UpdateRule(ctx, patch.Apply(current))
		if err != nil {
			return err
		}
		return a.printRules([]alerting.Rule{updated})
	})
}

// SetRuleActive enables or disables a rule.
func (a *App) SetRuleActive(ctx context.Context, opts AlertOptions, id int64, active bool) error {
	return a.withAlertStore(ctx, opts, func(store api.RuleStore) error {
		rule, err := store.SetActive(ctx, id, active)
		if err != nil {
			return err
		}
		return a.printRules([]alerting.Rule{rule})
	})
}

// DeleteRule removes a rule. Its history stays queryable.
func (a *App) DeleteRule(ctx context.Context, opts AlertOptions, id int64) error {
	return a.withAlertStore(ctx, opts, func(store api.RuleStore) error {
		if err := store.DeleteRule(ctx, id); err != nil {
			return err
		}
		fmt.Fprintf(a.Out, "alert rule %d deleted\n", id)
		return nil
	})
}

// History prints trigger events, newest first.
func (a *App) History(ctx context.Context, opts AlertOptions, ruleID int64, limit int) error {
	return a.withAlertStore(ctx, opts, func(store api.RuleStore) error {
		events, err := store.ListEvents(ctx, ruleID, limit)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			fmt.Fprintln(a.Out, "no alert history")
			return nil
		}

		writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(writer, "Triggered (UTC)\tRule\tSelection\tTerm\t$/kWh\tThreshold\tSupplier\tStatus")
		for _, ev := range events {
			fmt.Fprintf(
				writer,
				"%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				ev.TriggeredAt.UTC().Format(time.RFC3339),
				sanitizeInline(ev.RuleName),
				ev.SelectionType,
				termLabel(ev.TermMonths),
				ev.Price.StringFixed(4),
				ev.Threshold.StringFixed(4),
				sanitizeInline(ev.Supplier),
				ev.Status,
			)
		}
		return writer.Flush()
	})
}

func (a *App) printRules(rules []alerting.Rule) error {
	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tName\tThreshold\tTerm\tRecipient\tActive\tState")
	for _, r := range rules {
		fmt.Fprintf(
			writer,
			"%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID,
			sanitizeInline(r.Name),
			r.Threshold.StringFixed(4),
			termLabel(r.TermMonths),
			r.Recipient,
			strconv.FormatBool(r.Active),
			r.State,
		)
	}
	return writer.Flush()
}
