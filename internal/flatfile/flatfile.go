package flatfile

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"apples-watch/internal/offers"
)

// DefaultPath is used when no CSV path is configured.
const DefaultPath = "apples_to_apples_snapshot_v2.csv"

// Header is the fixed column layout of the snapshot file.
var Header = []string{
	"snapshot_ts", "selection_type", "supplier", "price_dollars_per_kwh", "rate_type",
	"term_months", "etf", "etf_amount", "monthly_fee", "monthly_fee_amount",
	"renewable", "promo", "intro_price", "url",
}

// Writer appends snapshot selections to a CSV file.
type Writer struct {
	path   string
	logger zerolog.Logger
}

// NewWriter builds a CSV sink for path.
func NewWriter(path string, logger zerolog.Logger) *Writer {
	if path == "" {
		path = DefaultPath
	}
	return &Writer{path: path, logger: logger.With().Str("component", "csv_writer").Logger()}
}

// Name identifies the sink in logs and metrics.
func (w *Writer) Name() string { return "csv" }

// Path returns the target file.
func (w *Writer) Path() string { return w.path }

// WriteSnapshot appends one row per selection. The header is written only
// when the file is new or empty.
func (w *Writer) WriteSnapshot(ctx context.Context, snap offers.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	selections := snap.Selections()
	if len(selections) == 0 {
		return nil
	}

	if dir := filepath.Dir(w.path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create csv dir: %w", err)
		}
	}

	file, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open csv: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat csv: %w", err)
	}

	writer := csv.NewWriter(file)
	if info.Size() == 0 {
		if err := writer.Write(Header); err != nil {
			return err
		}
	}

	ts := snap.Taken.UTC().Format(time.RFC3339)
	for _, sel := range selections {
		if err := writer.Write(Record(ts, sel)); err != nil {
			return err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}

	w.logger.Debug().Str("path", w.path).Int("rows", len(selections)).Msg("snapshot appended")
	return file.Close()
}

// Record renders one selection in Header order.
func Record(ts string, sel offers.Selection) []string {
	o := sel.Offer
	term := ""
	if o.TermMonths != nil {
		term = strconv.Itoa(*o.TermMonths)
	}
	return []string{
		ts,
		string(sel.Type),
		o.Supplier,
		o.Price.String(),
		o.RateLabel(),
		term,
		o.EarlyTermination.Text,
		feeAmount(o.EarlyTermination),
		o.MonthlyFee.Text,
		feeAmount(o.MonthlyFee),
		o.Renewable,
		o.Promo,
		o.IntroPrice,
		o.SourceURL,
	}
}

func feeAmount(f offers.Fee) string {
	if !f.Known {
		return ""
	}
	return f.Amount.StringFixed(2)
}
