package offers

import (
	"time"

	"github.com/shopspring/decimal"
)

// RateType classifies how an offer's price behaves over the contract.
type RateType string

const (
	RateUnknown  RateType = ""
	RateFixed    RateType = "fixed"
	RateVariable RateType = "variable"
	RateOther    RateType = "other"
)

// Fee is a normalised fee cell. Known is false when the page carried no value for it.
type Fee struct {
	Text    string
	Amount  decimal.Decimal
	Charged bool
	Known   bool
}

// IsZero reports whether the fee is explicitly known to be zero.
func (f Fee) IsZero() bool {
	return f.Known && f.Amount.IsZero()
}

// Offer is one advertised supply plan as scraped from the comparison page.
type Offer struct {
	Supplier         string
	Price            decimal.Decimal // dollars per kWh
	RateType         RateType
	RateTypeText     string
	TermMonths       *int
	EarlyTermination Fee
	MonthlyFee       Fee
	Renewable        string
	RenewableFlag    bool
	Promo            string
	IntroPrice       string
	HasIntroPrice    bool
	SourceURL        string
}

// RateLabel returns the label shown on the page, falling back to the normalised type.
func (o Offer) RateLabel() string {
	if o.RateTypeText != "" {
		return o.RateTypeText
	}
	return string(o.RateType)
}

// SelectionType tags why an offer was kept for a snapshot.
type SelectionType string

const (
	SelectionOverall  SelectionType = "overall"
	SelectionTermBest SelectionType = "term_best"
)

// Selection is an offer tagged with its selection type.
type Selection struct {
	Type  SelectionType
	Offer Offer
}

// Snapshot is the result of one scrape run.
type Snapshot struct {
	ID        string
	Taken     time.Time
	SourceURL string
	Overall   *Selection
	TermBest  []Selection
}

// Selections returns the overall selection (if any) followed by the term_best rows.
func (s Snapshot) Selections() []Selection {
	out := make([]Selection, 0, len(s.TermBest)+1)
	if s.Overall != nil {
		out = append(out, *s.Overall)
	}
	return append(out, s.TermBest...)
}

// Empty reports whether the snapshot produced no selections.
func (s Snapshot) Empty() bool {
	return s.Overall == nil && len(s.TermBest) == 0
}

// TermBestFor looks up the term_best selection for a term length.
func (s Snapshot) TermBestFor(months int) (Selection, bool) {
	for _, sel := range s.TermBest {
		if sel.Offer.TermMonths != nil && *sel.Offer.TermMonths == months {
			return sel, true
		}
	}
	return Selection{}, false
}

// IntPtr is a small helper for optional term lengths.
func IntPtr(v int) *int {
	return &v
}
