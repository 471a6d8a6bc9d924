package normalize

import (
	"regexp"
	"strings"

	"golang.org/x/text/currency"
)

// CurrencyAll is the filter sentinel that disables currency filtering.
const CurrencyAll = "all"

var currencyExact = map[string]string{
	"€":     "EUR",
	"â‚¬":   "EUR",
	"EURO":  "EUR",
	"EUROS": "EUR",
	"$":     "USD",
	"US$":   "USD",
	"USD$":  "USD",
	"A$":    "AUD",
	"C$":    "CAD",
	"£":     "GBP",
	"¥":     "JPY",
	"FR.":   "CHF",
	"SFR":   "CHF",
}

// symbol containment checks, longer symbols first
var currencySymbols = []struct{ sym, code string }{
	{"US$", "USD"},
	{"A$", "AUD"},
	{"C$", "CAD"},
	{"€", "EUR"},
	{"£", "GBP"},
	{"¥", "JPY"},
	{"$", "USD"},
}

var currencyWords = []struct{ word, code string }{
	{"EURO", "EUR"},
	{"DOLLAR", "USD"},
	{"POUND", "GBP"},
	{"FRANC", "CHF"},
	{"KRONA", "SEK"},
	{"KRONE", "NOK"},
	{"YEN", "JPY"},
}

var threeLetterWord = regexp.MustCompile(`\b[A-Z]{3}\b`)

// CurrencyCode normalizes a currency symbol or free text to a 3-letter code.
// Unrecognized input comes back upper-cased.
func CurrencyCode(s string) string {
	u := strings.ToUpper(strings.TrimSpace(s))
	if u == "" {
		return ""
	}
	if code, ok := currencyExact[u]; ok {
		return code
	}
	for _, m := range threeLetterWord.FindAllString(u, -1) {
		if unit, err := currency.ParseISO(m); err == nil {
			return unit.String()
		}
	}
	for _, c := range currencySymbols {
		if strings.Contains(u, c.sym) {
			return c.code
		}
	}
	for _, c := range currencyWords {
		if strings.Contains(u, c.word) {
			return c.code
		}
	}
	return u
}

// MatchesCurrency reports whether a raw currency passes a filter code, "all" passing everything.
func MatchesCurrency(raw, filter string) bool {
	f := strings.TrimSpace(filter)
	if f == "" || strings.EqualFold(f, CurrencyAll) {
		return true
	}
	return CurrencyCode(raw) == CurrencyCode(f)
}
