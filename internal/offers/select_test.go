package offers

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func zeroFee() Fee {
	return Fee{Text: "$0", Amount: decimal.Zero, Known: true}
}

func fee(amount string) Fee {
	d := decimal.RequireFromString(amount)
	return Fee{Text: "$" + amount, Amount: d, Charged: d.IsPositive(), Known: true}
}

func fixed(supplier, price string, term *int) Offer {
	return Offer{
		Supplier:         supplier,
		Price:            decimal.RequireFromString(price),
		RateType:         RateFixed,
		TermMonths:       term,
		MonthlyFee:       zeroFee(),
		EarlyTermination: zeroFee(),
	}
}

func TestEligible(t *testing.T) {
	base := fixed("A", "0.09", IntPtr(12))
	assert.True(t, Eligible(base))

	variable := base
	variable.RateType = RateVariable
	assert.False(t, Eligible(variable))

	unknown := base
	unknown.RateType = RateUnknown
	assert.False(t, Eligible(unknown), "unknown rate type must be excluded")

	other := base
	other.RateType = RateOther
	assert.False(t, Eligible(other))

	monthly := base
	monthly.MonthlyFee = fee("5")
	assert.False(t, Eligible(monthly))

	etf := base
	etf.EarlyTermination = fee("150")
	assert.False(t, Eligible(etf))

	missing := base
	missing.EarlyTermination = Fee{}
	assert.False(t, Eligible(missing), "absent ETF cell is not proof of $0")
}

func TestEndToEndExample(t *testing.T) {
	variable := fixed("Var Co", "0.12", IntPtr(12))
	variable.RateType = RateVariable
	withFee := fixed("Fee Co", "0.085", IntPtr(12))
	withFee.MonthlyFee = fee("5")

	in := []Offer{
		variable,
		fixed("Twelve Co", "0.09", IntPtr(12)),
		fixed("TwentyFour Co", "0.11", IntPtr(24)),
		withFee,
	}

	eligible := FilterEligible(in)
	require.Len(t, eligible, 2)
	assert.Equal(t, "Twelve Co", eligible[0].Supplier)
	assert.Equal(t, "TwentyFour Co", eligible[1].Supplier)

	snap := NewSnapshot("id", time.Now(), "http://example", eligible)
	require.NotNil(t, snap.Overall)
	assert.Equal(t, SelectionOverall, snap.Overall.Type)
	assert.Equal(t, "0.09", snap.Overall.Offer.Price.String())

	require.Len(t, snap.TermBest, 2)
	assert.Equal(t, 12, *snap.TermBest[0].Offer.TermMonths)
	assert.Equal(t, "0.09", snap.TermBest[0].Offer.Price.String())
	assert.Equal(t, 24, *snap.TermBest[1].Offer.TermMonths)
	assert.Equal(t, "0.11", snap.TermBest[1].Offer.Price.String())
	assert.Len(t, snap.Selections(), 3)
}

func TestSelectOverallStableTieBreak(t *testing.T) {
	in := []Offer{
		fixed("First", "0.10", IntPtr(12)),
		fixed("Second", "0.08", IntPtr(24)),
		fixed("Third", "0.08", IntPtr(6)),
	}
	best, ok := SelectOverall(in)
	require.True(t, ok)
	assert.Equal(t, "Second", best.Supplier)

	for _, o := range in {
		assert.True(t, best.Price.LessThanOrEqual(o.Price))
	}
}

func TestSelectOverallEmpty(t *testing.T) {
	_, ok := SelectOverall(nil)
	assert.False(t, ok)

	snap := NewSnapshot("id", time.Now(), "", nil)
	assert.Nil(t, snap.Overall)
	assert.Empty(t, snap.TermBest)
	assert.True(t, snap.Empty())
}

func TestSelectTermBest(t *testing.T) {
	in := []Offer{
		fixed("A", "0.11", IntPtr(24)),
		fixed("B", "0.095", IntPtr(12)),
		fixed("C", "0.09", nil),
		fixed("D", "0.095", IntPtr(12)),
		fixed("E", "0.10", IntPtr(24)),
		fixed("F", "0.12", IntPtr(36)),
	}

	got := SelectTermBest(in)
	require.Len(t, got, 3)

	assert.Equal(t, 12, *got[0].TermMonths)
	assert.Equal(t, "B", got[0].Supplier, "ties resolve to the earliest offer")
	assert.Equal(t, 24, *got[1].TermMonths)
	assert.Equal(t, "E", got[1].Supplier)
	assert.Equal(t, 36, *got[2].TermMonths)

	for _, best := range got {
		for _, o := range in {
			if o.TermMonths != nil && *o.TermMonths == *best.TermMonths {
				assert.True(t, best.Price.LessThanOrEqual(o.Price))
			}
		}
	}
}

func TestSelectionDeterministic(t *testing.T) {
	in := []Offer{
		fixed("A", "0.11", IntPtr(24)),
		fixed("B", "0.095", IntPtr(12)),
		fixed("C", "0.10", IntPtr(6)),
		fixed("D", "0.09", IntPtr(36)),
	}
	taken := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	first := NewSnapshot("id", taken, "u", in)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, NewSnapshot("id", taken, "u", in))
	}
}

func TestSnapshotTermBestFor(t *testing.T) {
	snap := NewSnapshot("id", time.Now(), "", []Offer{fixed("A", "0.10", IntPtr(12))})
	sel, ok := snap.TermBestFor(12)
	require.True(t, ok)
	assert.Equal(t, "A", sel.Offer.Supplier)

	_, ok = snap.TermBestFor(24)
	assert.False(t, ok)
}

func TestRank(t *testing.T) {
	in := []Offer{
		fixed("A", "0.11", nil),
		fixed("B", "0.09", nil),
		fixed("C", "0.10", nil),
		fixed("D", "0.09", nil),
	}
	got := Rank(in, 3)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"B", "D", "C"}, []string{got[0].Supplier, got[1].Supplier, got[2].Supplier})
	assert.Equal(t, "A", in[0].Supplier, "input must not be reordered")
	assert.Len(t, Rank(in, 10), 4)
}
