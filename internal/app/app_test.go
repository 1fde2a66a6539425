package app

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apples-watch/internal/alerting"
	"apples-watch/internal/alertstore"
	"apples-watch/internal/config"
)

const fixture = "../parser/testdata/apples.html"

func testApp(t *testing.T) (*App, *bytes.Buffer) {
	t.Helper()
	cfg := &config.Config{
		Source:   config.SourceConfig{URL: "https://example.test/offers"},
		CSV:      config.CSVConfig{Enabled: true, Path: filepath.Join(t.TempDir(), "snap.csv")},
		Database: config.DatabaseConfig{Enabled: false},
	}
	var out bytes.Buffer
	a := NewApp(cfg, zerolog.Nop())
	a.Out = &out
	return a, &out
}

func TestRunOnceFromFileText(t *testing.T) {
	a, out := testApp(t)

	err := a.RunOnce(context.Background(), RunOptions{FromFile: fixture, Top: 5})
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "Lowest qualifying rate: $0.0900/kWh - Twelve Power | Fixed | term 12 mo")
	assert.Contains(t, text, "Best per term:")
	assert.Contains(t, text, "ETF: ")

	data, err := os.ReadFile(a.Config.CSV.Path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, 4, "header, overall and two term_best rows")
}

func TestRunOnceJSONAndNoCSV(t *testing.T) {
	a, out := testApp(t)

	err := a.RunOnce(context.Background(), RunOptions{FromFile: fixture, JSON: true, NoCSV: true})
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, "Twelve Power", got["supplier"])
	assert.Equal(t, "overall", got["selection_type"])
	assert.Equal(t, "0.09", got["price_dollars_per_kwh"])

	_, err = os.Stat(a.Config.CSV.Path)
	assert.True(t, os.IsNotExist(err), "--no-csv must not create the snapshot file")
}

func TestRunOnceEvaluatesAlerts(t *testing.T) {
	a, out := testApp(t)
	dbPath := filepath.Join(t.TempDir(), "alerts.db")

	store, err := alertstore.Open(context.Background(), dbPath)
	require.NoError(t, err)
	_, err = store.CreateRule(context.Background(), alerting.Rule{
		Name:      "cheap",
		Threshold: decimal.RequireFromString("0.095"),
		Recipient: "me@example.com",
		Active:    true,
	})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	opts := RunOptions{FromFile: fixture, NoCSV: true, AlertsDB: dbPath}
	require.NoError(t, a.RunOnce(context.Background(), opts))
	assert.Contains(t, out.String(), "ALERT cheap: $0.0900/kWh at or below $0.0950")

	out.Reset()
	require.NoError(t, a.RunOnce(context.Background(), opts))
	assert.NotContains(t, out.String(), "ALERT", "a fired rule stays quiet while the price holds")
}

func TestRunOnceMissingFile(t *testing.T) {
	a, _ := testApp(t)
	err := a.RunOnce(context.Background(), RunOptions{FromFile: filepath.Join(t.TempDir(), "nope.html")})
	assert.Error(t, err)
}

func TestSimulateAlertDoesNotChangeState(t *testing.T) {
	a, out := testApp(t)
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "alerts.db")

	store, err := alertstore.Open(ctx, dbPath)
	require.NoError(t, err)
	rule, err := store.CreateRule(ctx, alerting.Rule{
		Name:      "twelve",
		Threshold: decimal.RequireFromString("0.08"),
		Recipient: "me@example.com",
		Active:    true,
	})
	require.NoError(t, err)
	require.NoError(t, store.SetRuleState(ctx, rule.ID, alerting.StateFired))
	require.NoError(t, store.Close())

	err = a.SimulateAlert(ctx, SimulateOptions{Price: decimal.RequireFromString("0.07"), Term: 12, AlertsDB: dbPath})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "ALERT twelve")
	assert.Contains(t, out.String(), "[skipped]")

	store, err = alertstore.Open(ctx, dbPath)
	require.NoError(t, err)
	defer store.Close()

	got, err := store.GetRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, alerting.StateFired, got.State)

	events, err := store.ListEvents(ctx, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestAlertCommands(t *testing.T) {
	a, out := testApp(t)
	ctx := context.Background()
	opts := AlertOptions{AlertsDB: filepath.Join(t.TempDir(), "alerts.db")}

	require.NoError(t, a.AddRule(ctx, opts, alerting.Rule{
		Name:      "any term",
		Threshold: decimal.RequireFromString("0.08"),
		Recipient: "me@example.com",
		Active:    true,
	}))
	assert.Contains(t, out.String(), "any term")

	out.Reset()
	require.NoError(t, a.SetRuleActive(ctx, opts, 1, false))
	assert.Contains(t, out.String(), "false")

	name := "renamed"
	out.Reset()
	require.NoError(t, a.UpdateRule(ctx, opts, 1, alerting.RulePatch{Name: &name}))
	assert.Contains(t, out.String(), "renamed")

	out.Reset()
	require.NoError(t, a.History(ctx, opts, 0, 10))
	assert.Contains(t, out.String(), "no alert history")

	require.NoError(t, a.DeleteRule(ctx, opts, 1))
	assert.ErrorIs(t, a.DeleteRule(ctx, opts, 1), alertstore.ErrRuleNotFound)
}
