package parser

import (
	"os"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apples-watch/internal/offers"
)

func TestParseFixture(t *testing.T) {
	f, err := os.Open("testdata/apples.html")
	require.NoError(t, err)
	defer f.Close()

	got, stats, err := New(zerolog.Nop()).Parse(f, "https://example.test/offers")
	require.NoError(t, err)

	require.Len(t, got, 4, "spacer row and the row without a price are dropped")
	assert.Equal(t, 6, stats.Rows)
	assert.Equal(t, 2, stats.Dropped)

	suppliers := make([]string, 0, len(got))
	for _, o := range got {
		suppliers = append(suppliers, o.Supplier)
		assert.Equal(t, "https://example.test/offers", o.SourceURL)
	}
	assert.Equal(t, []string{"Variable Energy LLC", "Twelve Power", "Long Haul Electric", "Fee Heavy Inc"}, suppliers)

	variable := got[0]
	assert.Equal(t, offers.RateVariable, variable.RateType)
	assert.Equal(t, "0.12", variable.Price.String())

	twelve := got[1]
	assert.Equal(t, offers.RateFixed, twelve.RateType)
	assert.Equal(t, "Fixed", twelve.RateTypeText)
	require.NotNil(t, twelve.TermMonths)
	assert.Equal(t, 12, *twelve.TermMonths)
	assert.True(t, twelve.MonthlyFee.IsZero(), "\"None\" monthly fee is $0")
	assert.False(t, twelve.MonthlyFee.Charged)
	assert.True(t, twelve.EarlyTermination.IsZero())
	assert.True(t, twelve.RenewableFlag)
	assert.False(t, twelve.HasIntroPrice)
	assert.Equal(t, "Gift card", twelve.Promo)

	long := got[2]
	assert.True(t, long.HasIntroPrice)
	assert.Equal(t, 24, *long.TermMonths)

	heavy := got[3]
	assert.True(t, heavy.MonthlyFee.Charged)
	assert.Equal(t, "5", heavy.MonthlyFee.Amount.String())

	eligible := offers.FilterEligible(got)
	require.Len(t, eligible, 2)
	snap := offers.NewSnapshot("id", stubTime, "", eligible)
	require.NotNil(t, snap.Overall)
	assert.Equal(t, "Twelve Power", snap.Overall.Offer.Supplier)
	require.Len(t, snap.TermBest, 2)
}

func TestParseHeadersFromFirstRow(t *testing.T) {
	html := `<table>
<tr><td>Company</td><td>Price</td><td>Rate Type</td><td>Term Length</td></tr>
<tr><td>Acme</td><td>$0.0750</td><td>Fixed</td><td>6 months</td></tr>
<tr><td>Beta</td><td>7.9¢</td><td>fixed</td><td></td></tr>
</table>`

	got, stats, err := New(zerolog.Nop()).Parse(strings.NewReader(html), "u")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 0, stats.Dropped, "header row must not be treated as an offer")

	assert.Equal(t, "Acme", got[0].Supplier)
	assert.Equal(t, 6, *got[0].TermMonths)
	assert.False(t, got[0].MonthlyFee.Known, "missing column leaves the fee unknown")
	assert.False(t, offers.Eligible(got[0]))

	assert.Equal(t, "0.079", got[1].Price.String())
	assert.Nil(t, got[1].TermMonths)
}

func TestParseMissingTable(t *testing.T) {
	_, _, err := New(zerolog.Nop()).Parse(strings.NewReader("<html><body><p>maintenance</p></body></html>"), "u")
	require.ErrorIs(t, err, ErrNoOffersTable)
}

func TestParseShortRow(t *testing.T) {
	html := `<table><thead><tr><th>Supplier</th><th>$/kWh</th><th>Rate Type</th><th>Monthly Fee</th></tr></thead>
<tbody><tr><td>Short</td><td>0.08</td></tr></tbody></table>`

	got, _, err := New(zerolog.Nop()).Parse(strings.NewReader(html), "u")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, offers.RateUnknown, got[0].RateType)
	assert.False(t, got[0].MonthlyFee.Known)
}
