package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"apples-watch/internal/offers"
	"apples-watch/internal/storage"
)

// ExportOptions hold parameters for exporting selection history.
type ExportOptions struct {
	From          *time.Time
	To            *time.Time
	PNGPath       string
	CSVPath       string
	MaxPoints     int
	SelectionType offers.SelectionType
}

// Export renders selection history as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	if closeStore != nil {
		defer closeStore()
	}

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.AddDate(0, 0, -90)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	records, err := store.ListSelectionsBetween(ctx, from, to, opts.SelectionType)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		a.Logger.Info().Msg("no selections found for export window")
		return nil
	}

	a.Logger.Info().Int("total", len(records)).Msg("exporting selections")

	if opts.CSVPath != "" {
		if err := writeSelectionsCSV(opts.CSVPath, downsample(records, opts.MaxPoints)); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeSelectionsPNG(opts.PNGPath, records, opts.MaxPoints); err != nil {
			return err
		}
	}

	return nil
}

func downsample[T any](items []T, max int) []T {
	if max <= 0 || len(items) <= max {
		return items
	}
	if max == 1 {
		return items[len(items)-1:]
	}

	result := make([]T, 0, max)
	step := float64(len(items)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(items) {
			idx = len(items) - 1
		}
		result = append(result, items[idx])
	}
	return result
}

func writeSelectionsCSV(path string, records []storage.SelectionRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"snapshot_ts", "run_id", "selection_type", "term_months", "supplier", "price_dollars_per_kwh", "rate_type", "url"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, rec := range records {
		term := ""
		if rec.TermMonths != nil {
			term = strconv.Itoa(*rec.TermMonths)
		}
		url := ""
		if rec.URL != nil {
			url = *rec.URL
		}
		record := []string{
			rec.SnapshotTS.UTC().Format(time.RFC3339),
			rec.RunID,
			string(rec.SelectionType),
			term,
			rec.Supplier,
			rec.Price.String(),
			rec.RateType,
			url,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// seriesKey groups records into one chart line: overall, or one line per term.
func seriesKey(rec storage.SelectionRecord) (string, int) {
	if rec.SelectionType == offers.SelectionOverall || rec.TermMonths == nil {
		return "Overall", -1
	}
	return fmt.Sprintf("%d mo", *rec.TermMonths), *rec.TermMonths
}

func writeSelectionsPNG(path string, records []storage.SelectionRecord, maxPoints int) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	type line struct {
		name  string
		order int
		x     []time.Time
		y     []float64
	}
	lines := make(map[string]*line)
	for _, rec := range records {
		name, order := seriesKey(rec)
		l, ok := lines[name]
		if !ok {
			l = &line{name: name, order: order}
			lines[name] = l
		}
		l.x = append(l.x, rec.SnapshotTS)
		l.y = append(l.y, rec.Price.InexactFloat64())
	}

	ordered := make([]*line, 0, len(lines))
	for _, l := range lines {
		ordered = append(ordered, l)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].order < ordered[j].order })

	series := make([]chart.Series, 0, len(ordered))
	for _, l := range ordered {
		if len(l.x) < 2 {
			continue
		}
		series = append(series, chart.TimeSeries{
			Name:    l.name,
			XValues: downsample(l.x, maxPoints),
			YValues: downsample(l.y, maxPoints),
		})
	}
	if len(series) == 0 {
		return errors.New("not enough points to draw a chart")
	}

	priceFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.4f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Price ($/kWh)",
			ValueFormatter: priceFormatter,
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
