package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"apples-watch/internal/offers"
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	numberRe     = regexp.MustCompile(`-?\d+(?:[.,]\d+)*`)
	integerRe    = regexp.MustCompile(`\d+`)
)

var headerAliases = map[string]string{
	"click to compare":      "compare",
	"compare":               "compare",
	"supplier":              "supplier",
	"company":               "supplier",
	"$/kwh":                 "price",
	"price":                 "price",
	"rate type":             "rate_type",
	"renew. content":        "renewable",
	"renewable content":     "renewable",
	"intro. price":          "intro_price",
	"intro price":           "intro_price",
	"term. length":          "term",
	"term length":           "term",
	"early term. fee":       "etf",
	"early termination fee": "etf",
	"monthly fee":           "monthly_fee",
	"promo. offers":         "promo",
	"promo offers":          "promo",
}

// placeholders are cell values that mean "nothing here".
var placeholders = map[string]struct{}{
	"":               {},
	"—":              {},
	"–":              {},
	"-":              {},
	"n/a":            {},
	"na":             {},
	"none":           {},
	"no":             {},
	"not applicable": {},
	"free":           {},
}

func collapse(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// NormalizeHeader maps a column caption to its canonical field name.
func NormalizeHeader(caption string) string {
	key := strings.ToLower(collapse(caption))
	if name, ok := headerAliases[key]; ok {
		return name
	}
	return key
}

func isPlaceholder(s string) bool {
	_, ok := placeholders[strings.ToLower(collapse(s))]
	return ok
}

// parseNumber extracts the first decimal number in s. Thousands separators are
// dropped; a single comma not followed by exactly three digits is read as a
// decimal comma.
func parseNumber(s string) (decimal.Decimal, bool) {
	match := numberRe.FindString(s)
	if match == "" {
		return decimal.Decimal{}, false
	}

	normalized := match
	switch {
	case strings.Contains(match, ".") && strings.Contains(match, ","):
		if strings.LastIndex(match, ",") > strings.LastIndex(match, ".") {
			// 1.234,56
			normalized = strings.ReplaceAll(match, ".", "")
			normalized = strings.Replace(normalized, ",", ".", 1)
		} else {
			normalized = strings.ReplaceAll(match, ",", "")
		}
	case strings.Count(match, ",") == 1:
		intPart := strings.TrimPrefix(match[:strings.Index(match, ",")], "-")
		if len(match)-strings.Index(match, ",")-1 == 3 && intPart != "0" {
			normalized = strings.ReplaceAll(match, ",", "")
		} else {
			normalized = strings.Replace(match, ",", ".", 1)
		}
	case strings.Contains(match, ","):
		normalized = strings.ReplaceAll(match, ",", "")
	}

	d, err := decimal.NewFromString(normalized)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

// ParsePrice converts a price cell into dollars per kWh. Cent-denominated cells
// are divided by 100. Negative values are rejected.
func ParsePrice(s string) (decimal.Decimal, bool) {
	d, ok := parseNumber(s)
	if !ok || d.IsNegative() {
		return decimal.Decimal{}, false
	}
	if strings.Contains(s, "¢") || strings.Contains(strings.ToLower(s), "cents") {
		d = d.Div(decimal.NewFromInt(100))
	}
	return d, true
}

// ParseTerm returns the first positive integer in s as months.
func ParseTerm(s string) *int {
	match := integerRe.FindString(s)
	if match == "" {
		return nil
	}
	months, err := strconv.Atoi(match)
	if err != nil || months <= 0 {
		return nil
	}
	return &months
}

// ParseFee normalises a fee cell. present is false when the column or cell was missing;
// missing and blank cells both yield an unknown fee.
// The second return value reports text that was neither numeric nor a known placeholder.
func ParseFee(s string, present bool) (offers.Fee, bool) {
	if !present {
		return offers.Fee{}, false
	}
	text := collapse(s)
	if text == "" {
		return offers.Fee{}, false
	}
	fee := offers.Fee{Text: text, Amount: decimal.Zero, Known: true}

	if isPlaceholder(text) {
		return fee, false
	}
	amount, ok := parseNumber(text)
	if !ok {
		return fee, true
	}
	if amount.IsNegative() {
		amount = amount.Abs()
	}
	fee.Amount = amount
	fee.Charged = amount.IsPositive()
	return fee, false
}

// ParseRateType classifies a rate-type label.
func ParseRateType(s string) offers.RateType {
	label := strings.ToLower(collapse(s))
	switch {
	case label == "":
		return offers.RateUnknown
	case strings.HasPrefix(label, "fixed"):
		return offers.RateFixed
	case strings.HasPrefix(label, "variable"):
		return offers.RateVariable
	default:
		return offers.RateOther
	}
}

func parseRenewable(s string) bool {
	text := strings.ToLower(collapse(s))
	if strings.HasPrefix(text, "yes") {
		return true
	}
	if d, ok := parseNumber(text); ok {
		return d.IsPositive()
	}
	return false
}

func parseIntroPrice(s string) bool {
	text := collapse(s)
	return !isPlaceholder(text)
}
