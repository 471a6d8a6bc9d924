package normalize

import (
	"regexp"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"isinFlow/internal/domain/model"
)

// Defaults substituted for missing identity fields.
const (
	PlaceholderISIN   = "Unknown"
	PlaceholderIssuer = "Unknown"
	DefaultCurrency   = "€"
)

var isinShape = regexp.MustCompile(`^[A-Za-z]{2}[A-Za-z0-9]{9}[0-9]$`)

// Normalizer turns loosely typed upstream rows into BondRecords.
// It is safe for concurrent use.
type Normalizer struct {
	loc     *time.Location
	printer *message.Printer
}

// New creates a Normalizer rendering dates in loc. A nil loc means UTC.
func New(loc *time.Location) *Normalizer {
	if loc == nil {
		loc = time.UTC
	}
	return &Normalizer{
		loc:     loc,
		printer: message.NewPrinter(language.German),
	}
}

// Location returns the display location.
func (n *Normalizer) Location() *time.Location {
	return n.loc
}

// Normalize maps a raw row onto a BondRecord. It never fails: malformed
// values degrade to defaults.
func (n *Normalizer) Normalize(raw model.RawRecord) model.BondRecord {
	r := newResolver(raw)

	rec := model.BondRecord{
		ID:             r.str(fieldID),
		ISIN:           normalizeISIN(r.str(fieldISIN)),
		Issuer:         r.strOr(fieldIssuer, PlaceholderIssuer),
		Currency:       r.strOr(fieldCurrency, DefaultCurrency),
		Type:           r.str(fieldType),
		Status:         Classify(r.str(fieldStatus)),
		ListingTrigger: r.str(fieldListingTrigger),
	}

	minSize := r.str(fieldMinimumSize)
	rec.MinimumSize = n.FormatSize(minSize)
	rec.Amount = resolveAmount(r, minSize)

	date, _ := r.value(fieldDate)
	tm, _ := r.value(fieldTime)
	rec.Date = n.NormalizeDate(date)
	rec.Time = n.NormalizeTime(tm)

	if v, ok := r.value(fieldTriggeredDate); ok {
		rec.TriggeredDate = n.NormalizeDate(v)
	}
	if v, ok := r.value(fieldTriggeredTime); ok {
		rec.TriggeredTime = n.NormalizeTime(v)
	}
	if v, ok := r.value(fieldSubmittedDate); ok {
		rec.SubmittedDate = n.NormalizeDate(v)
	}
	if v, ok := r.value(fieldSubmittedTime); ok {
		rec.SubmittedTime = n.NormalizeTime(v)
	}
	rec.SubmissionPlace = r.str(fieldSubmissionPlace)
	if v, ok := r.value(fieldTurnaroundTime); ok {
		rec.TurnaroundTime = n.NormalizeTime(v)
	}

	return rec
}

// NormalizeAll normalizes rows and drops empty ones.
func (n *Normalizer) NormalizeAll(rows []model.RawRecord) []model.BondRecord {
	out := make([]model.BondRecord, 0, len(rows))
	for _, raw := range rows {
		rec := n.Normalize(raw)
		if IsEmptyRow(rec) {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// IsEmptyRow reports whether a record carries neither an ISIN nor an amount.
func IsEmptyRow(rec model.BondRecord) bool {
	return IsPlaceholderISIN(rec.ISIN) && rec.Amount == 0
}

// IsPlaceholderISIN reports whether isin is absent or a stand-in value.
func IsPlaceholderISIN(isin string) bool {
	switch strings.ToLower(strings.TrimSpace(isin)) {
	case "", "unknown", "-", "n/a", "na", "null":
		return true
	}
	return false
}

func normalizeISIN(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return PlaceholderISIN
	}
	if isinShape.MatchString(s) {
		return strings.ToUpper(s)
	}
	return s
}

// resolveAmount prefers an explicit positive amount, then the minimum-size
// description, then a textual amount.
func resolveAmount(r *resolver, minSize string) float64 {
	raw, ok := r.value(fieldAmount)
	if ok {
		if f, ok := numericValue(raw); ok && f > 0 {
			return f
		}
	}
	if f, ok := ParseSize(minSize); ok {
		return f
	}
	if ok {
		if f, ok := ParseSize(asString(raw)); ok {
			return f
		}
	}
	return 0
}
