package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apples-watch/internal/alerting"
	"apples-watch/internal/fetcher"
	"apples-watch/internal/metrics"
	"apples-watch/internal/offers"
	"apples-watch/internal/parser"
)

const offersPage = `<html><body><table>
<thead><tr><th>Supplier</th><th>$/kWh</th><th>Rate Type</th><th>Term Length</th><th>Early Term. Fee</th><th>Monthly Fee</th></tr></thead>
<tbody>
<tr><td>Variable Co</td><td>0.05</td><td>Variable</td><td>1 mo</td><td>$0</td><td>$0</td></tr>
<tr><td>Year Co</td><td>0.079</td><td>Fixed</td><td>12 months</td><td>$0.00</td><td>None</td></tr>
<tr><td>Two Year Co</td><td>0.081</td><td>Fixed</td><td>24 months</td><td>$0.00</td><td>$0.00</td></tr>
<tr><td>Fee Co</td><td>0.060</td><td>Fixed</td><td>12 months</td><td>$100</td><td>$0.00</td></tr>
</tbody></table></body></html>`

const noEligiblePage = `<table><thead><tr><th>Supplier</th><th>$/kWh</th><th>Rate Type</th></tr></thead>
<tbody><tr><td>Variable Co</td><td>0.05</td><td>Variable</td></tr></tbody></table>`

type stubFetcher struct {
	body  string
	err   error
	calls int
}

func (f *stubFetcher) FetchDocument(ctx context.Context, url string) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []byte(f.body), nil
}

type stubWriter struct {
	name  string
	err   error
	snaps []offers.Snapshot
}

func (w *stubWriter) Name() string { return w.name }

func (w *stubWriter) WriteSnapshot(ctx context.Context, snap offers.Snapshot) error {
	w.snaps = append(w.snaps, snap)
	return w.err
}

type stubEvaluator struct {
	snaps []offers.Snapshot
	err   error
}

func (e *stubEvaluator) Evaluate(ctx context.Context, snap offers.Snapshot) ([]alerting.Event, error) {
	e.snaps = append(e.snaps, snap)
	if e.err != nil {
		return nil, e.err
	}
	return []alerting.Event{{RuleID: 1}}, nil
}

func newTestService(body string, fetchErr error, writers []SnapshotWriter, eval AlertEvaluator, rec *metrics.Recorder) (*Service, *stubFetcher) {
	f := &stubFetcher{body: body, err: fetchErr}
	svc := New("https://example.test/apples", f, parser.New(zerolog.Nop()), writers, eval, rec, zerolog.Nop())
	svc.now = func() time.Time { return time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC) }
	svc.newID = func() string { return "run-1" }
	return svc, f
}

func TestRunOnceHappyPath(t *testing.T) {
	csv := &stubWriter{name: "csv"}
	pg := &stubWriter{name: "postgres"}
	eval := &stubEvaluator{}
	rec := metrics.NewRecorder()
	svc, _ := newTestService(offersPage, nil, []SnapshotWriter{pg, csv}, eval, rec)

	res, err := svc.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "run-1", res.RunID)
	assert.Len(t, res.Offers, 4)
	assert.Len(t, res.Eligible, 2)
	require.NotNil(t, res.Snapshot.Overall)
	assert.Equal(t, "Year Co", res.Snapshot.Overall.Offer.Supplier)
	require.Len(t, res.Snapshot.TermBest, 2)
	assert.Equal(t, "run-1", res.Snapshot.ID)

	require.Len(t, res.Sinks, 2)
	assert.Len(t, csv.snaps, 1)
	assert.Len(t, pg.snaps, 1)
	assert.Len(t, eval.snaps, 1)
	assert.Len(t, res.Events, 1)

	series, err := testutil.GatherAndCount(rec.Registry(), "appleswatch_sink_writes_total")
	require.NoError(t, err)
	assert.Equal(t, 2, series, "one ok series per sink")
}

func TestRunOnceSinkIsolation(t *testing.T) {
	failing := &stubWriter{name: "postgres", err: errors.New("connection refused")}
	ok := &stubWriter{name: "csv"}
	eval := &stubEvaluator{}
	svc, _ := newTestService(offersPage, nil, []SnapshotWriter{failing, ok}, eval, nil)

	res, err := svc.RunOnce(context.Background())
	require.NoError(t, err, "one working sink is enough")
	assert.Len(t, ok.snaps, 1)
	assert.Error(t, res.Sinks[0].Err)
	assert.NoError(t, res.Sinks[1].Err)
	assert.Len(t, eval.snaps, 1)
}

func TestRunOnceAllSinksFailed(t *testing.T) {
	a := &stubWriter{name: "postgres", err: errors.New("down")}
	b := &stubWriter{name: "csv", err: errors.New("read-only fs")}
	eval := &stubEvaluator{}
	svc, _ := newTestService(offersPage, nil, []SnapshotWriter{a, b}, eval, nil)

	_, err := svc.RunOnce(context.Background())
	require.ErrorIs(t, err, ErrAllSinksFailed)
	assert.Len(t, eval.snaps, 1, "alerts are still evaluated")
}

func TestRunOnceFetchFailure(t *testing.T) {
	w := &stubWriter{name: "csv"}
	eval := &stubEvaluator{}
	fetchErr := &fetcher.FetchError{URL: "u", Status: 503, Err: errors.New("Service Unavailable")}
	svc, _ := newTestService("", fetchErr, []SnapshotWriter{w}, eval, metrics.NewRecorder())

	_, err := svc.RunOnce(context.Background())
	var fe *fetcher.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Empty(t, w.snaps)
	assert.Empty(t, eval.snaps)
}

func TestRunOnceUnrecognisedDocument(t *testing.T) {
	w := &stubWriter{name: "csv"}
	svc, _ := newTestService("<html><p>down for maintenance</p></html>", nil, []SnapshotWriter{w}, nil, nil)

	_, err := svc.RunOnce(context.Background())
	require.ErrorIs(t, err, parser.ErrNoOffersTable)
	assert.Empty(t, w.snaps)
}

func TestRunOnceNoEligibleOffers(t *testing.T) {
	w := &stubWriter{name: "csv"}
	eval := &stubEvaluator{}
	svc, _ := newTestService(noEligiblePage, nil, []SnapshotWriter{w}, eval, nil)

	res, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Snapshot.Empty())
	assert.Empty(t, w.snaps, "nothing is written without selections")
	require.Len(t, eval.snaps, 1, "rules still see the empty snapshot so they can re-arm")
	assert.Nil(t, eval.snaps[0].Overall)
}

func TestRunOnceNoSinks(t *testing.T) {
	svc, f := newTestService(offersPage, nil, nil, nil, nil)
	res, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, f.calls)
	assert.Empty(t, res.Sinks)
}

func TestRunOnceEvaluatorFailureIsAbsorbed(t *testing.T) {
	w := &stubWriter{name: "csv"}
	svc, _ := newTestService(offersPage, nil, []SnapshotWriter{w}, &stubEvaluator{err: errors.New("db locked")}, nil)

	_, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
}
