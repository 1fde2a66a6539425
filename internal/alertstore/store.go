package alertstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"apples-watch/internal/alerting"
	"apples-watch/internal/offers"
)

// ErrRuleNotFound is returned when no rule has the requested id.
var ErrRuleNotFound = errors.New("alert rule not found")

const schemaSQL = `
CREATE TABLE IF NOT EXISTS alerts (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	name        TEXT NOT NULL,
	threshold   TEXT NOT NULL,
	term_months INTEGER,
	recipient   TEXT NOT NULL,
	active      INTEGER NOT NULL DEFAULT 1,
	state       TEXT NOT NULL DEFAULT 'armed',
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS alert_history (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	alert_id       INTEGER NOT NULL,
	rule_name      TEXT NOT NULL,
	snapshot_ts    TEXT NOT NULL,
	triggered_at   TEXT NOT NULL,
	selection_type TEXT NOT NULL,
	supplier       TEXT NOT NULL,
	price          TEXT NOT NULL,
	threshold      TEXT NOT NULL,
	term_months    INTEGER,
	message        TEXT NOT NULL,
	status         TEXT NOT NULL,
	error          TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS alert_history_alert_idx ON alert_history (alert_id, triggered_at);
`

const ruleColumns = `id, name, threshold, term_months, recipient, active, state, created_at, updated_at`

const eventColumns = `id, alert_id, rule_name, snapshot_ts, triggered_at, selection_type, supplier,
	price, threshold, term_months, message, status, error`

// Store persists alert rules and their trigger history in SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at path and ensures the schema exists.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("alert store path is empty")
	}
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("alertstore: create dir: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("alertstore: open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("alertstore: set busy timeout: %w", err)
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("alertstore: create tables: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateRule validates and stores a new armed rule.
func (s *Store) CreateRule(ctx context.Context, rule alerting.Rule) (alerting.Rule, error) {
	if err := rule.Validate(); err != nil {
		return alerting.Rule{}, err
	}
	now := s.now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO alerts (name, threshold, term_months, recipient, active, state, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.Name, rule.Threshold.String(), nullableInt(rule.TermMonths), rule.Recipient,
		boolInt(rule.Active), string(alerting.StateArmed), formatTime(now), formatTime(now),
	)
	if err != nil {
		return alerting.Rule{}, fmt.Errorf("alertstore: create rule: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return alerting.Rule{}, fmt.Errorf("alertstore: create rule id: %w", err)
	}
	return s.GetRule(ctx, id)
}

// UpdateRule replaces the editable fields of a rule and re-arms it.
func (s *Store) UpdateRule(ctx context.Context, rule alerting.Rule) (alerting.Rule, error) {
	if err := rule.Validate(); err != nil {
		return alerting.Rule{}, err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE alerts SET name = ?, threshold = ?, term_months = ?, recipient = ?, active = ?,
		 state = ?, updated_at = ? WHERE id = ?`,
		rule.Name, rule.Threshold.String(), nullableInt(rule.TermMonths), rule.Recipient,
		boolInt(rule.Active), string(alerting.StateArmed), formatTime(s.now().UTC()), rule.ID,
	)
	if err != nil {
		return alerting.Rule{}, fmt.Errorf("alertstore: update rule %d: %w", rule.ID, err)
	}
	if err := expectOne(res, rule.ID); err != nil {
		return alerting.Rule{}, err
	}
	return s.GetRule(ctx, rule.ID)
}

// GetRule loads one rule.
func (s *Store) GetRule(ctx context.Context, id int64) (alerting.Rule, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM alerts WHERE id = ?`, id)
	rule, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return alerting.Rule{}, fmt.Errorf("%w: %d", ErrRuleNotFound, id)
	}
	if err != nil {
		return alerting.Rule{}, fmt.Errorf("alertstore: get rule %d: %w", id, err)
	}
	return rule, nil
}

// ListRules returns every rule ordered by id.
func (s *Store) ListRules(ctx context.Context) ([]alerting.Rule, error) {
	return s.queryRules(ctx, `SELECT `+ruleColumns+` FROM alerts ORDER BY id`)
}

// ListActiveRules returns enabled rules ordered by id.
func (s *Store) ListActiveRules(ctx context.Context) ([]alerting.Rule, error) {
	return s.queryRules(ctx, `SELECT `+ruleColumns+` FROM alerts WHERE active = 1 ORDER BY id`)
}

// SetActive enables or disables a rule. Enabling re-arms it.
func (s *Store) SetActive(ctx context.Context, id int64, active bool) (alerting.Rule, error) {
	query := `UPDATE alerts SET active = 0, updated_at = ? WHERE id = ?`
	if active {
		query = `UPDATE alerts SET active = 1, state = 'armed', updated_at = ? WHERE id = ?`
	}
	res, err := s.db.ExecContext(ctx, query, formatTime(s.now().UTC()), id)
	if err != nil {
		return alerting.Rule{}, fmt.Errorf("alertstore: set active %d: %w", id, err)
	}
	if err := expectOne(res, id); err != nil {
		return alerting.Rule{}, err
	}
	return s.GetRule(ctx, id)
}

// DeleteRule removes a rule. Its history is kept.
func (s *Store) DeleteRule(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM alerts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("alertstore: delete rule %d: %w", id, err)
	}
	return expectOne(res, id)
}

// SetRuleState records the edge-trigger state.
func (s *Store) SetRuleState(ctx context.Context, id int64, state alerting.State) error {
	res, err := s.db.ExecContext(ctx, `UPDATE alerts SET state = ? WHERE id = ?`, string(state), id)
	if err != nil {
		return fmt.Errorf("alertstore: set state %d: %w", id, err)
	}
	return expectOne(res, id)
}

// InsertEvent appends a trigger event.
func (s *Store) InsertEvent(ctx context.Context, event alerting.Event) (alerting.Event, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO alert_history (alert_id, rule_name, snapshot_ts, triggered_at, selection_type, supplier,
		 price, threshold, term_months, message, status, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.RuleID, event.RuleName, formatTime(event.SnapshotTS.UTC()), formatTime(event.TriggeredAt.UTC()),
		string(event.SelectionType), event.Supplier, event.Price.String(), event.Threshold.String(),
		nullableInt(event.TermMonths), event.Message, string(event.Status), event.Error,
	)
	if err != nil {
		return alerting.Event{}, fmt.Errorf("alertstore: insert event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return alerting.Event{}, fmt.Errorf("alertstore: insert event id: %w", err)
	}
	event.ID = id
	return event, nil
}

// ListEvents returns history newest first. ruleID 0 lists every rule; limit <= 0 means no limit.
func (s *Store) ListEvents(ctx context.Context, ruleID int64, limit int) ([]alerting.Event, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM alert_history
		 WHERE (? = 0 OR alert_id = ?)
		 ORDER BY triggered_at DESC, id DESC
		 LIMIT ?`, ruleID, ruleID, limit)
	if err != nil {
		return nil, fmt.Errorf("alertstore: list events: %w", err)
	}
	defer rows.Close()

	events := make([]alerting.Event, 0)
	for rows.Next() {
		event, scanErr := scanEvent(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func (s *Store) queryRules(ctx context.Context, query string) ([]alerting.Rule, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("alertstore: list rules: %w", err)
	}
	defer rows.Close()

	rules := make([]alerting.Rule, 0)
	for rows.Next() {
		rule, scanErr := scanRule(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRule(row scanner) (alerting.Rule, error) {
	var (
		rule             alerting.Rule
		threshold        string
		term             sql.NullInt64
		active           int
		state            string
		created, updated string
	)
	if err := row.Scan(&rule.ID, &rule.Name, &threshold, &term, &rule.Recipient, &active, &state, &created, &updated); err != nil {
		return alerting.Rule{}, err
	}

	var err error
	if rule.Threshold, err = decimal.NewFromString(threshold); err != nil {
		return alerting.Rule{}, fmt.Errorf("parse threshold: %w", err)
	}
	if term.Valid {
		rule.TermMonths = offers.IntPtr(int(term.Int64))
	}
	rule.Active = active != 0
	rule.State = alerting.State(state)
	if rule.CreatedAt, err = parseTime(created); err != nil {
		return alerting.Rule{}, err
	}
	if rule.UpdatedAt, err = parseTime(updated); err != nil {
		return alerting.Rule{}, err
	}
	return rule, nil
}

func scanEvent(row scanner) (alerting.Event, error) {
	var (
		event            alerting.Event
		snapshot, fired  string
		selType, status  string
		price, threshold string
		term             sql.NullInt64
	)
	if err := row.Scan(&event.ID, &event.RuleID, &event.RuleName, &snapshot, &fired, &selType, &event.Supplier,
		&price, &threshold, &term, &event.Message, &status, &event.Error); err != nil {
		return alerting.Event{}, err
	}

	var err error
	if event.SnapshotTS, err = parseTime(snapshot); err != nil {
		return alerting.Event{}, err
	}
	if event.TriggeredAt, err = parseTime(fired); err != nil {
		return alerting.Event{}, err
	}
	if event.Price, err = decimal.NewFromString(price); err != nil {
		return alerting.Event{}, fmt.Errorf("parse price: %w", err)
	}
	if event.Threshold, err = decimal.NewFromString(threshold); err != nil {
		return alerting.Event{}, fmt.Errorf("parse threshold: %w", err)
	}
	if term.Valid {
		event.TermMonths = offers.IntPtr(int(term.Int64))
	}
	event.SelectionType = offers.SelectionType(selType)
	event.Status = alerting.DeliveryStatus(status)
	return event, nil
}

func expectOne(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", ErrRuleNotFound, id)
	}
	return nil
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

var _ alerting.Store = (*Store)(nil)
