package alerting

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"apples-watch/internal/offers"
)

// Store is the persistence the evaluator needs.
type Store interface {
	ListActiveRules(ctx context.Context) ([]Rule, error)
	SetRuleState(ctx context.Context, id int64, state State) error
	InsertEvent(ctx context.Context, event Event) (Event, error)
}

// Evaluator runs every active rule against a snapshot.
type Evaluator struct {
	store    Store
	notifier Notifier
	logger   zerolog.Logger
	now      func() time.Time
}

// NewEvaluator builds an evaluator. notifier may be nil, in which case events are recorded as skipped.
func NewEvaluator(store Store, notifier Notifier, logger zerolog.Logger) *Evaluator {
	return &Evaluator{
		store:    store,
		notifier: notifier,
		logger:   logger.With().Str("component", "alert_evaluator").Logger(),
		now:      time.Now,
	}
}

// Evaluate applies the rising-edge transition to every active rule and returns the
// events it emitted. Per-rule storage and delivery failures are logged, not returned.
func (e *Evaluator) Evaluate(ctx context.Context, snap offers.Snapshot) ([]Event, error) {
	rules, err := e.store.ListActiveRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active rules: %w", err)
	}

	events := make([]Event, 0)
	for _, rule := range rules {
		sel, met := Condition(rule, snap)
		next, emit := Transition(rule.State, met)

		log := e.logger.With().Str("stage", "alert").Int64("rule_id", rule.ID).Str("rule", rule.Name).Logger()

		if emit {
			event := e.fire(ctx, rule, sel, snap, log)
			events = append(events, event)
		}

		if next != rule.State {
			if err := e.store.SetRuleState(ctx, rule.ID, next); err != nil {
				log.Error().Err(err).Str("state", string(next)).Msg("update rule state failed")
				continue
			}
			log.Debug().Str("from", string(rule.State)).Str("to", string(next)).Msg("rule state changed")
		}
	}
	return events, nil
}

func (e *Evaluator) fire(ctx context.Context, rule Rule, sel offers.Selection, snap offers.Snapshot, log zerolog.Logger) Event {
	note := Notification{
		RuleName:      rule.Name,
		Recipient:     rule.Recipient,
		Supplier:      sel.Offer.Supplier,
		Price:         sel.Offer.Price,
		Threshold:     rule.Threshold,
		TermMonths:    sel.Offer.TermMonths,
		SelectionType: sel.Type,
		SnapshotTS:    snap.Taken,
		SourceURL:     snap.SourceURL,
	}

	event := Event{
		RuleID:        rule.ID,
		RuleName:      rule.Name,
		SnapshotTS:    snap.Taken,
		TriggeredAt:   e.now().UTC(),
		SelectionType: sel.Type,
		Supplier:      sel.Offer.Supplier,
		Price:         sel.Offer.Price,
		Threshold:     rule.Threshold,
		TermMonths:    sel.Offer.TermMonths,
		Message:       renderMessage(note),
		Status:        DeliverySkipped,
	}

	if e.notifier != nil {
		if err := e.notifier.Notify(ctx, note); err != nil {
			event.Status = DeliveryFailed
			event.Error = err.Error()
			log.Warn().Err(err).Msg("alert delivery failed")
		} else {
			event.Status = DeliverySent
		}
	}

	stored, err := e.store.InsertEvent(ctx, event)
	if err != nil {
		log.Error().Err(err).Msg("record alert event failed")
	} else {
		event = stored
	}

	log.Info().
		Str("supplier", event.Supplier).
		Str("price", event.Price.String()).
		Str("threshold", event.Threshold.String()).
		Str("status", string(event.Status)).
		Msg("alert fired")
	return event
}
