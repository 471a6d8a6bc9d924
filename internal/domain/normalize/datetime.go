package normalize

import (
	"regexp"
	"strings"
	"time"
)

const (
	DisplayDateLayout = "02.01.2006"
	DisplayTimeLayout = "15:04:05"
)

var isoPrefix = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)

var zonedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999Z07",
	"2006-01-02T15:04:05.999999999Z07",
}

var localLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTimestamp parses an ISO-8601 timestamp. Zone-less input is read in loc.
func ParseTimestamp(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if !isoPrefix.MatchString(s) {
		return time.Time{}, false
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// NormalizeDate converts ISO input to DD.MM.YYYY in the display location.
// Anything else, including already localized dates, passes through unchanged.
func (n *Normalizer) NormalizeDate(v any) string {
	return n.normalizeStamp(v, DisplayDateLayout)
}

// NormalizeTime converts ISO input to HH:MM:SS in the display location.
func (n *Normalizer) NormalizeTime(v any) string {
	return n.normalizeStamp(v, DisplayTimeLayout)
}

func (n *Normalizer) normalizeStamp(v any, layout string) string {
	switch t := v.(type) {
	case nil:
		return ""
	case time.Time:
		if t.IsZero() {
			return ""
		}
		return t.In(n.loc).Format(layout)
	case *time.Time:
		if t == nil || t.IsZero() {
			return ""
		}
		return t.In(n.loc).Format(layout)
	}
	s := asString(v)
	if ts, ok := ParseTimestamp(s, n.loc); ok {
		return ts.In(n.loc).Format(layout)
	}
	return s
}

// ParseDisplayDate reads a DD.MM.YYYY date in loc.
func ParseDisplayDate(s string, loc *time.Location) (time.Time, bool) {
	t, err := time.ParseInLocation(DisplayDateLayout, strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
