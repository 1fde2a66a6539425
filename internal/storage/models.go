package storage

import (
	"time"

	"github.com/shopspring/decimal"

	"apples-watch/internal/offers"
)

// SelectionRecord is one row of the offers table.
type SelectionRecord struct {
	ID               int64
	SnapshotTS       time.Time
	RunID            string
	Supplier         string
	Price            decimal.Decimal
	RateType         string
	TermMonths       *int
	ETF              *string
	ETFAmount        *decimal.Decimal
	MonthlyFee       *string
	MonthlyFeeAmount *decimal.Decimal
	Renewable        *string
	Promo            *string
	IntroPrice       *string
	URL              *string
	SelectionType    offers.SelectionType
	CreatedAt        time.Time
}

// RecordsFromSnapshot flattens a snapshot into rows, overall first.
func RecordsFromSnapshot(snap offers.Snapshot) []SelectionRecord {
	selections := snap.Selections()
	records := make([]SelectionRecord, 0, len(selections))
	for _, sel := range selections {
		o := sel.Offer
		rec := SelectionRecord{
			SnapshotTS:       snap.Taken.UTC(),
			RunID:            snap.ID,
			Supplier:         o.Supplier,
			Price:            o.Price,
			RateType:         o.RateLabel(),
			TermMonths:       o.TermMonths,
			ETF:              optionalText(o.EarlyTermination.Text),
			ETFAmount:        feeAmount(o.EarlyTermination),
			MonthlyFee:       optionalText(o.MonthlyFee.Text),
			MonthlyFeeAmount: feeAmount(o.MonthlyFee),
			Renewable:        optionalText(o.Renewable),
			Promo:            optionalText(o.Promo),
			IntroPrice:       optionalText(o.IntroPrice),
			URL:              optionalText(o.SourceURL),
			SelectionType:    sel.Type,
		}
		records = append(records, rec)
	}
	return records
}

func optionalText(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func feeAmount(f offers.Fee) *decimal.Decimal {
	if !f.Known {
		return nil
	}
	amount := f.Amount
	return &amount
}
