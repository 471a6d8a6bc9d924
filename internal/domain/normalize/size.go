package normalize

import (
	"encoding/json"
	"math"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/number"
)

var (
	plainNumber    = regexp.MustCompile(`^\d+(\.\d+)?$`)
	germanGrouping = regexp.MustCompile(`^\d{1,3}(\.\d{3})+(,\d+)?$`)
	dottedThousand = regexp.MustCompile(`^\d{1,3}(\.\d{3})+$`)
)

var thousand = decimal.NewFromInt(1000)

// ParseSize resolves a size description such as "200k x 1k" to a number.
// Only the part before the "x" separator counts; a trailing k multiplies by 1000.
func ParseSize(desc string) (float64, bool) {
	s := strings.ToLower(strings.TrimSpace(desc))
	if s == "" {
		return 0, false
	}
	if head, _, found := strings.Cut(s, "x"); found {
		s = head
	}
	s = strings.TrimSpace(s)

	mult := decimal.NewFromInt(1)
	if strings.HasSuffix(s, "k") {
		mult = thousand
		s = strings.TrimSpace(strings.TrimSuffix(s, "k"))
	}

	d, ok := parseDecimal(s)
	if !ok {
		return 0, false
	}
	f := d.Mul(mult).InexactFloat64()
	if math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func stripThousands(s string) string {
	s = strings.NewReplacer(",", "", "'", "", "_", "", " ", "", " ", "").Replace(s)
	if dottedThousand.MatchString(s) {
		s = strings.ReplaceAll(s, ".", "")
	}
	return s
}

func parseDecimal(s string) (decimal.Decimal, bool) {
	s = stripThousands(s)
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() {
		return decimal.Zero, false
	}
	return d, true
}

// numericValue reads an explicit numeric or stringified-numeric amount.
func numericValue(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int32:
		f = float64(t)
	case int64:
		f = float64(t)
	case uint32:
		f = float64(t)
	case uint64:
		f = float64(t)
	case json.Number:
		d, ok := parseDecimal(t.String())
		if !ok {
			return 0, false
		}
		f = d.InexactFloat64()
	case string, []byte:
		d, ok := parseDecimal(asString(t))
		if !ok {
			return 0, false
		}
		f = d.InexactFloat64()
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0, false
	}
	return f, true
}

// FormatSize renders a plain numeric size with German thousands grouping.
// Composite notations and already grouped values pass through unchanged.
func (n *Normalizer) FormatSize(s string) string {
	s = strings.TrimSpace(s)
	if germanGrouping.MatchString(s) || !plainNumber.MatchString(s) {
		return s
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return s
	}
	return n.printer.Sprintf("%v", number.Decimal(d.InexactFloat64(), number.MaxFractionDigits(3)))
}
