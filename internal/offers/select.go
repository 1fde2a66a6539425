package offers

import (
	"sort"
	"time"
)

// Eligible reports whether an offer is fixed-rate with a known $0 monthly fee and $0 ETF.
// Unknown rate types and absent fee cells are not eligible.
func Eligible(o Offer) bool {
	if o.RateType != RateFixed {
		return false
	}
	return o.MonthlyFee.IsZero() && o.EarlyTermination.IsZero()
}

// FilterEligible keeps eligible offers in input order.
func FilterEligible(in []Offer) []Offer {
	out := make([]Offer, 0, len(in))
	for _, o := range in {
		if Eligible(o) {
			out = append(out, o)
		}
	}
	return out
}

// SelectOverall returns the cheapest offer; ties go to the earliest one.
func SelectOverall(eligible []Offer) (Offer, bool) {
	if len(eligible) == 0 {
		return Offer{}, false
	}
	best := 0
	for i := 1; i < len(eligible); i++ {
		if eligible[i].Price.LessThan(eligible[best].Price) {
			best = i
		}
	}
	return eligible[best], true
}

// SelectTermBest returns the cheapest offer per term length, ascending by term.
// Offers without a term length are ignored.
func SelectTermBest(eligible []Offer) []Offer {
	bestIdx := make(map[int]int)
	terms := make([]int, 0)
	for i, o := range eligible {
		if o.TermMonths == nil {
			continue
		}
		term := *o.TermMonths
		cur, ok := bestIdx[term]
		if !ok {
			bestIdx[term] = i
			terms = append(terms, term)
			continue
		}
		if o.Price.LessThan(eligible[cur].Price) {
			bestIdx[term] = i
		}
	}

	sort.Ints(terms)
	out := make([]Offer, 0, len(terms))
	for _, term := range terms {
		out = append(out, eligible[bestIdx[term]])
	}
	return out
}

// Rank orders offers by price (stable) and returns at most n of them.
func Rank(eligible []Offer, n int) []Offer {
	ranked := make([]Offer, len(eligible))
	copy(ranked, eligible)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Price.LessThan(ranked[j].Price)
	})
	if n >= 0 && n < len(ranked) {
		ranked = ranked[:n]
	}
	return ranked
}

// NewSnapshot runs both selections over the eligible offers.
func NewSnapshot(id string, taken time.Time, sourceURL string, eligible []Offer) Snapshot {
	snap := Snapshot{
		ID:        id,
		Taken:     taken.UTC(),
		SourceURL: sourceURL,
	}
	if overall, ok := SelectOverall(eligible); ok {
		snap.Overall = &Selection{Type: SelectionOverall, Offer: overall}
	}
	for _, o := range SelectTermBest(eligible) {
		snap.TermBest = append(snap.TermBest, Selection{Type: SelectionTermBest, Offer: o})
	}
	return snap
}
