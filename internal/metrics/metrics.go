package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/shopspring/decimal"
)

const namespace = "appleswatch"

// Recorder collects the metrics of a single batch run on its own registry.
type Recorder struct {
	registry *prometheus.Registry

	rows         prometheus.Gauge
	parsed       prometheus.Gauge
	dropped      prometheus.Gauge
	eligible     prometheus.Gauge
	sinkWrites   *prometheus.CounterVec
	alertsFired  prometheus.Counter
	overallPrice prometheus.Gauge
	runDuration  prometheus.Gauge
	lastSuccess  prometheus.Gauge
}

// NewRecorder registers the run metrics on a fresh registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		rows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "offer_rows",
			Help: "Rows seen in the offers table.",
		}),
		parsed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "offers_parsed",
			Help: "Offers successfully parsed.",
		}),
		dropped: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "offers_dropped",
			Help: "Rows dropped because they carried no usable price.",
		}),
		eligible: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "offers_eligible",
			Help: "Fixed-rate offers with no monthly fee and no early termination fee.",
		}),
		sinkWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "sink_writes_total",
			Help: "Snapshot writes per sink and outcome.",
		}, []string{"sink", "status"}),
		alertsFired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "alerts_fired_total",
			Help: "Alert events emitted.",
		}),
		overallPrice: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "overall_price_dollars_per_kwh",
			Help: "Cheapest eligible price of the run.",
		}),
		runDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "run_duration_seconds",
			Help: "Wall time of the run.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "last_success_timestamp_seconds",
			Help: "Unix time of the last successful run.",
		}),
	}

	r.registry.MustRegister(
		r.rows, r.parsed, r.dropped, r.eligible,
		r.sinkWrites, r.alertsFired, r.overallPrice,
		r.runDuration, r.lastSuccess,
	)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveParse records table and filter counts.
func (r *Recorder) ObserveParse(rows, parsed, dropped, eligible int) {
	r.rows.Set(float64(rows))
	r.parsed.Set(float64(parsed))
	r.dropped.Set(float64(dropped))
	r.eligible.Set(float64(eligible))
}

// ObserveOverall records the overall selection price, if there is one.
func (r *Recorder) ObserveOverall(price decimal.Decimal, ok bool) {
	if !ok {
		return
	}
	r.overallPrice.Set(price.InexactFloat64())
}

// ObserveSink counts one sink write.
func (r *Recorder) ObserveSink(sink string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.sinkWrites.WithLabelValues(sink, status).Inc()
}

// ObserveAlerts counts emitted events.
func (r *Recorder) ObserveAlerts(n int) {
	r.alertsFired.Add(float64(n))
}

// ObserveRun records run duration and, on success, the completion time.
func (r *Recorder) ObserveRun(d time.Duration, success bool, finished time.Time) {
	r.runDuration.Set(d.Seconds())
	if success {
		r.lastSuccess.Set(float64(finished.Unix()))
	}
}

// Push sends the registry to a Pushgateway under job.
func (r *Recorder) Push(ctx context.Context, url, job string) error {
	if err := push.New(url, job).Gatherer(r.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
