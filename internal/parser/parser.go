package parser

import (
	"errors"
	"fmt"
	"io"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"apples-watch/internal/offers"
)

// ErrNoOffersTable is returned when no table carries both supplier and price columns.
var ErrNoOffersTable = errors.New("parser: offers table not found")

// Parser turns a comparison page into offer candidates.
type Parser struct {
	logger zerolog.Logger
}

// New constructs a Parser.
func New(logger zerolog.Logger) *Parser {
	return &Parser{logger: logger.With().Str("component", "parser").Logger()}
}

// Stats summarises one Parse call.
type Stats struct {
	Rows      int
	Parsed    int
	Dropped   int
	Anomalies int
}

// Parse extracts offers in document order. Rows without a usable price are dropped;
// nothing else fails a row.
func (p *Parser) Parse(r io.Reader, sourceURL string) ([]offers.Offer, Stats, error) {
	var stats Stats

	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, stats, fmt.Errorf("parse html: %w", err)
	}

	table, headers, headerRow := findOffersTable(doc)
	if table == nil {
		return nil, stats, ErrNoOffersTable
	}

	idx := make(map[string]int, len(headers))
	for i, name := range headers {
		if _, seen := idx[name]; !seen {
			idx[name] = i
		}
	}

	rows := table.Find("tbody tr")
	if rows.Length() == 0 {
		rows = table.Find("tr")
	}

	result := make([]offers.Offer, 0, rows.Length())
	rows.Each(func(rowNum int, tr *goquery.Selection) {
		if headerRow != nil && tr.Get(0) == headerRow.Get(0) {
			return
		}
		cells := tr.ChildrenFiltered("td")
		if cells.Length() == 0 {
			return
		}
		stats.Rows++

		row := rowCells{cells: cells, idx: idx}
		offer, anomalies, ok := p.buildOffer(row, rowNum, sourceURL)
		stats.Anomalies += anomalies
		if !ok {
			stats.Dropped++
			return
		}
		stats.Parsed++
		result = append(result, offer)
	})

	p.logger.Debug().
		Int("rows", stats.Rows).
		Int("parsed", stats.Parsed).
		Int("dropped", stats.Dropped).
		Int("anomalies", stats.Anomalies).
		Msg("document parsed")

	return result, stats, nil
}

func (p *Parser) buildOffer(row rowCells, rowNum int, sourceURL string) (offers.Offer, int, bool) {
	log := p.logger.With().Str("stage", "parse").Int("row", rowNum).Logger()
	anomalies := 0

	supplier := ""
	if cell, ok := row.cell("supplier"); ok {
		if title := cell.Find("span.retail-title"); title.Length() > 0 {
			supplier = collapse(title.First().Text())
		} else {
			supplier = collapse(cell.Text())
		}
	}

	priceText, _ := row.text("price")
	price, ok := ParsePrice(priceText)
	if !ok {
		if supplier == "" && priceText == "" {
			log.Debug().Msg("skipping spacer row")
		} else {
			log.Warn().Str("supplier", supplier).Str("price", priceText).Msg("dropping row without numeric price")
		}
		return offers.Offer{}, 0, false
	}

	if supplier == "" {
		anomalies++
		log.Warn().Str("price", priceText).Msg("offer row has no supplier")
	}

	rateText, _ := row.text("rate_type")
	rateType := ParseRateType(rateText)
	if rateType == offers.RateUnknown {
		anomalies++
		log.Warn().Str("supplier", supplier).Msg("offer row has no rate type")
	}

	termText, _ := row.text("term")
	term := ParseTerm(termText)
	if term == nil && termText != "" {
		anomalies++
		log.Warn().Str("supplier", supplier).Str("term", termText).Msg("unrecognised term length")
	}

	etfText, etfPresent := row.text("etf")
	etf, odd := ParseFee(etfText, etfPresent)
	if odd {
		anomalies++
		log.Warn().Str("supplier", supplier).Str("etf", etfText).Msg("non-numeric early termination fee treated as $0")
	}

	monthlyText, monthlyPresent := row.text("monthly_fee")
	monthly, odd := ParseFee(monthlyText, monthlyPresent)
	if odd {
		anomalies++
		log.Warn().Str("supplier", supplier).Str("monthly_fee", monthlyText).Msg("non-numeric monthly fee treated as $0")
	}

	renewable, _ := row.text("renewable")
	promo, _ := row.text("promo")
	intro, _ := row.text("intro_price")

	return offers.Offer{
		Supplier:         supplier,
		Price:            price,
		RateType:         rateType,
		RateTypeText:     rateText,
		TermMonths:       term,
		EarlyTermination: etf,
		MonthlyFee:       monthly,
		Renewable:        renewable,
		RenewableFlag:    parseRenewable(renewable),
		Promo:            promo,
		IntroPrice:       intro,
		HasIntroPrice:    parseIntroPrice(intro),
		SourceURL:        sourceURL,
	}, anomalies, true
}

type rowCells struct {
	cells *goquery.Selection
	idx   map[string]int
}

func (r rowCells) cell(name string) (*goquery.Selection, bool) {
	i, ok := r.idx[name]
	if !ok || i >= r.cells.Length() {
		return nil, false
	}
	return r.cells.Eq(i), true
}

func (r rowCells) text(name string) (string, bool) {
	cell, ok := r.cell(name)
	if !ok {
		return "", false
	}
	return collapse(cell.Text()), true
}

// findOffersTable returns the offers table, its normalised headers and, when the
// headers came from the first body row, that row.
func findOffersTable(doc *goquery.Document) (*goquery.Selection, []string, *goquery.Selection) {
	var (
		found     *goquery.Selection
		headers   []string
		headerRow *goquery.Selection
	)
	doc.Find("table").EachWithBreak(func(_ int, tbl *goquery.Selection) bool {
		var first *goquery.Selection
		names := captions(tbl.Find("thead th"))
		if len(names) == 0 {
			first = tbl.Find("tr").First()
			names = captions(first.ChildrenFiltered("th, td"))
		}
		if contains(names, "price") && contains(names, "supplier") {
			found = tbl
			headers = names
			headerRow = first
			return false
		}
		return true
	})
	return found, headers, headerRow
}

func captions(sel *goquery.Selection) []string {
	names := make([]string, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		names = append(names, NormalizeHeader(s.Text()))
	})
	return names
}

func contains(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}
