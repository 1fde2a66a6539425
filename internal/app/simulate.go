package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"apples-watch/internal/alerting"
	"apples-watch/internal/offers"
)

// SimulateOptions describe the synthetic offer fed to the alert rules.
type SimulateOptions struct {
	Price    decimal.Decimal
	Term     int
	Supplier string
	AlertsDB string
}

// SimulateAlert 用一个合成的报价快照跑一遍告警规则, 真实发送通知但不改变规则状态。
func (a *App) SimulateAlert(ctx context.Context, opts SimulateOptions) error {
	if !opts.Price.IsPositive() {
		return errors.New("--price 必须大于 0")
	}

	store, err := a.openAlertStore(ctx, a.alertsPath(opts.AlertsDB))
	if err != nil {
		return err
	}
	defer store.Close()

	supplier := opts.Supplier
	if supplier == "" {
		supplier = "Simulated Supplier"
	}
	offer := offers.Offer{
		Supplier:         supplier,
		Price:            opts.Price,
		RateType:         offers.RateFixed,
		RateTypeText:     "Fixed",
		EarlyTermination: offers.Fee{Text: "$0", Known: true},
		MonthlyFee:       offers.Fee{Text: "$0", Known: true},
		SourceURL:        a.Config.Source.URL,
	}
	if opts.Term > 0 {
		offer.TermMonths = offers.IntPtr(opts.Term)
	}

	snap := offers.NewSnapshot(uuid.NewString(), time.Now().UTC(), a.Config.Source.URL, []offers.Offer{offer})

	evaluator := alerting.NewEvaluator(dryRunStore{store}, a.newNotifier(), a.Logger)
	events, err := evaluator.Evaluate(ctx, snap)
	if err != nil {
		return err
	}

	if len(events) == 0 {
		fmt.Fprintln(a.Out, "no active rule matched the simulated offer")
		return nil
	}
	for _, ev := range events {
		line := fmt.Sprintf("ALERT %s: $%s/kWh at or below $%s (%s) - %s [%s]",
			ev.RuleName, ev.Price.StringFixed(4), ev.Threshold.StringFixed(4), termLabel(ev.TermMonths), ev.Supplier, ev.Status)
		if ev.Error != "" {
			line += " " + ev.Error
		}
		fmt.Fprintln(a.Out, line)
	}
	return nil
}

// dryRunStore treats every active rule as armed and discards writes.
type dryRunStore struct {
	rules interface {
		ListActiveRules(ctx context.Context) ([]alerting.Rule, error)
	}
}

func (d dryRunStore) ListActiveRules(ctx context.Context) ([]alerting.Rule, error) {
	rules, err := d.rules.ListActiveRules(ctx)
	if err != nil {
		return nil, err
	}
	for i := range rules {
		rules[i].State = alerting.StateArmed
	}
	return rules, nil
}

func (dryRunStore) SetRuleState(context.Context, int64, alerting.State) error {
	return nil
}

func (dryRunStore) InsertEvent(_ context.Context, event alerting.Event) (alerting.Event, error) {
	return event, nil
}

var _ alerting.Store = dryRunStore{}
