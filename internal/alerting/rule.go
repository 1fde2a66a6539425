package alerting

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"apples-watch/internal/offers"
)

// State is the edge-trigger state of a rule.
type State string

const (
	StateArmed State = "armed"
	StateFired State = "fired"
)

// DeliveryStatus records what happened to an event's notification.
type DeliveryStatus string

const (
	DeliverySent    DeliveryStatus = "sent"
	DeliveryFailed  DeliveryStatus = "failed"
	DeliverySkipped DeliveryStatus = "skipped"
)

// Rule is a user-defined price threshold, optionally restricted to one term length.
type Rule struct {
	ID         int64
	Name       string
	Threshold  decimal.Decimal // dollars per kWh
	TermMonths *int
	Recipient  string
	Active     bool
	State      State
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ErrInvalidRule wraps every Validate failure.
var ErrInvalidRule = errors.New("invalid alert rule")

// Validate checks user-supplied fields.
func (r Rule) Validate() error {
	var errs []error
	if strings.TrimSpace(r.Name) == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if !r.Threshold.IsPositive() {
		errs = append(errs, errors.New("threshold must be greater than zero"))
	}
	if r.TermMonths != nil && *r.TermMonths <= 0 {
		errs = append(errs, errors.New("term months must be positive"))
	}
	if _, err := mail.ParseAddress(r.Recipient); err != nil {
		errs = append(errs, fmt.Errorf("recipient %q is not a valid email address", r.Recipient))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidRule, errors.Join(errs...))
}

// Event is one rising-edge trigger. Events are never modified once stored.
type Event struct {
	ID            int64
	RuleID        int64
	RuleName      string
	SnapshotTS    time.Time
	TriggeredAt   time.Time
	SelectionType offers.SelectionType
	Supplier      string
	Price         decimal.Decimal
	Threshold     decimal.Decimal
	TermMonths    *int
	Message       string
	Status        DeliveryStatus
	Error         string
}

// Condition reports whether the rule's threshold is met by the snapshot and returns
// the selection that met it. A snapshot without an overall selection never meets a rule.
func Condition(rule Rule, snap offers.Snapshot) (offers.Selection, bool) {
	if snap.Overall == nil {
		return offers.Selection{}, false
	}
	if snap.Overall.Offer.Price.GreaterThan(rule.Threshold) {
		return offers.Selection{}, false
	}
	if rule.TermMonths == nil {
		return *snap.Overall, true
	}
	sel, ok := snap.TermBestFor(*rule.TermMonths)
	if !ok || sel.Offer.Price.GreaterThan(rule.Threshold) {
		return offers.Selection{}, false
	}
	return sel, true
}

// Transition applies one evaluation. emit is true only on the armed to fired edge.
func Transition(state State, met bool) (next State, emit bool) {
	switch {
	case state != StateFired && met:
		return StateFired, true
	case state == StateFired && !met:
		return StateArmed, false
	case state == "":
		return StateArmed, false
	default:
		return state, false
	}
}

// RulePatch carries optional edits. A TermMonths of zero clears the term filter.
type RulePatch struct {
	Name       *string
	Threshold  *decimal.Decimal
	TermMonths *int
	Recipient  *string
	Active     *bool
}

// Apply returns rule with the patch's set fields replaced.
func (p RulePatch) Apply(rule Rule) Rule {
	if p.Name != nil {
		rule.Name = strings.TrimSpace(*p.Name)
	}
	if p.Threshold != nil {
		rule.Threshold = *p.Threshold
	}
	if p.TermMonths != nil {
		if *p.TermMonths == 0 {
			rule.TermMonths = nil
		} else {
			term := *p.TermMonths
			rule.TermMonths = &term
		}
	}
	if p.Recipient != nil {
		rule.Recipient = strings.TrimSpace(*p.Recipient)
	}
	if p.Active != nil {
		rule.Active = *p.Active
	}
	return rule
}
