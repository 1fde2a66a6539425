package app

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"apples-watch/internal/offers"
	"apples-watch/internal/service"
)

// selectionJSON is the --json rendering of a selection.
type selectionJSON struct {
	SnapshotTS       string  `json:"snapshot_ts"`
	RunID            string  `json:"run_id"`
	SelectionType    string  `json:"selection_type"`
	Supplier         string  `json:"supplier"`
	Price            string  `json:"price_dollars_per_kwh"`
	RateType         string  `json:"rate_type"`
	TermMonths       *int    `json:"term_months"`
	ETF              string  `json:"etf"`
	ETFAmount        *string `json:"etf_amount"`
	MonthlyFee       string  `json:"monthly_fee"`
	MonthlyFeeAmount *string `json:"monthly_fee_amount"`
	Renewable        string  `json:"renewable"`
	Promo            string  `json:"promo"`
	IntroPrice       string  `json:"intro_price"`
	URL              string  `json:"url"`
}

func toSelectionJSON(snap offers.Snapshot, sel offers.Selection) selectionJSON {
	o := sel.Offer
	return selectionJSON{
		SnapshotTS:       snap.Taken.UTC().Format(time.RFC3339),
		RunID:            snap.ID,
		SelectionType:    string(sel.Type),
		Supplier:         o.Supplier,
		Price:            o.Price.String(),
		RateType:         o.RateLabel(),
		TermMonths:       o.TermMonths,
		ETF:              o.EarlyTermination.Text,
		ETFAmount:        feeAmount(o.EarlyTermination),
		MonthlyFee:       o.MonthlyFee.Text,
		MonthlyFeeAmount: feeAmount(o.MonthlyFee),
		Renewable:        o.Renewable,
		Promo:            o.Promo,
		IntroPrice:       o.IntroPrice,
		URL:              o.SourceURL,
	}
}

func feeAmount(f offers.Fee) *string {
	if !f.Known {
		return nil
	}
	s := f.Amount.StringFixed(2)
	return &s
}

func (a *App) printResult(res service.Result, opts RunOptions) error {
	snap := res.Snapshot
	if opts.JSON {
		var payload any
		if snap.Overall != nil {
			payload = toSelectionJSON(snap, *snap.Overall)
		}
		enc := json.NewEncoder(a.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(payload)
	}

	if snap.Overall == nil {
		fmt.Fprintln(a.Out, "No qualifying offers found (fixed rate with $0 monthly fee and $0 ETF).")
		return nil
	}

	best := snap.Overall.Offer
	fmt.Fprintf(a.Out, "[%s] Lowest qualifying rate: $%s/kWh - %s | %s | term %s\n",
		snap.Taken.Local().Format("2006-01-02 15:04:05"),
		best.Price.StringFixed(4), best.Supplier, best.RateLabel(), termLabel(best.TermMonths))

	if opts.Top > 0 {
		writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
		for i, o := range offers.Rank(res.Eligible, opts.Top) {
			fmt.Fprintf(writer, "  %d.\t$%s/kWh\t%s\t%s\t%s\tETF: %s\tMonthly: %s\n",
				i+1, o.Price.StringFixed(4), sanitizeInline(o.Supplier), o.RateLabel(), termLabel(o.TermMonths),
				o.EarlyTermination.Text, o.MonthlyFee.Text)
		}
		if err := writer.Flush(); err != nil {
			return err
		}
	}

	if len(snap.TermBest) > 0 {
		fmt.Fprintln(a.Out, "Best per term:")
		writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
		for _, sel := range snap.TermBest {
			fmt.Fprintf(writer, "  %s\t$%s/kWh\t%s\n", termLabel(sel.Offer.TermMonths), sel.Offer.Price.StringFixed(4), sanitizeInline(sel.Offer.Supplier))
		}
		if err := writer.Flush(); err != nil {
			return err
		}
	}

	for _, ev := range res.Events {
		fmt.Fprintf(a.Out, "ALERT %s: $%s/kWh at or below $%s (%s) - %s [%s]\n",
			ev.RuleName, ev.Price.StringFixed(4), ev.Threshold.StringFixed(4), termLabel(ev.TermMonths), ev.Supplier, ev.Status)
	}
	return nil
}

func termLabel(months *int) string {
	if months == nil {
		return "n/a"
	}
	return fmt.Sprintf("%d mo", *months)
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
