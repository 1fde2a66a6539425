package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"
)

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// Show prints recent selections from the relational store.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show selections")
	}
	if closeStore != nil {
		defer closeStore()
	}

	records, err := store.ListRecentSelections(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(a.Out, "no selections found")
		return nil
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Snapshot (UTC)\tSelection\tTerm\t$/kWh\tSupplier\tRate Type\tRun")

	for _, rec := range records {
		term := "-"
		if rec.TermMonths != nil {
			term = strconv.Itoa(*rec.TermMonths)
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			rec.SnapshotTS.UTC().Format(time.RFC3339),
			rec.SelectionType,
			term,
			rec.Price.StringFixed(4),
			sanitizeInline(rec.Supplier),
			rec.RateType,
			rec.RunID,
		)
	}

	return writer.Flush()
}
