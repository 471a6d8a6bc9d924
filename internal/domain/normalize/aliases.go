package normalize

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"isinFlow/internal/domain/model"
)

type field string

const (
	fieldID              field = "id"
	fieldISIN            field = "isin"
	fieldIssuer          field = "issuer"
	fieldCurrency        field = "currency"
	fieldAmount          field = "amount"
	fieldType            field = "type"
	fieldMinimumSize     field = "minSize"
	fieldStatus          field = "status"
	fieldListingTrigger  field = "listingTrigger"
	fieldDate            field = "date"
	fieldTime            field = "time"
	fieldTriggeredDate   field = "triggeredDate"
	fieldTriggeredTime   field = "triggeredTime"
	fieldSubmittedDate   field = "submittedDate"
	fieldSubmittedTime   field = "submittedTime"
	fieldSubmissionPlace field = "submissionPlace"
	fieldTurnaroundTime  field = "turnaroundTime"
)

// fieldAliases lists raw key candidates per logical field, most specific first.
// Matching folds case and whitespace, so "Min Size" hits "minsize".
var fieldAliases = map[field][]string{
	fieldID:              {"id", "ID", "uuid", "_id"},
	fieldISIN:            {"isin", "ISIN", "security_id"},
	fieldIssuer:          {"issuer", "Issuer", "issuer_name", "name"},
	fieldCurrency:        {"currency", "Currency", "ccy"},
	fieldAmount:          {"amount", "Amount", "size", "Size"},
	fieldType:            {"type", "Type", "bond_type"},
	fieldMinimumSize:     {"minSize", "min_size", "minimumSize", "minimum_size", "min size", "denomination"},
	fieldStatus:          {"status", "Status", "state"},
	fieldListingTrigger:  {"listingTrigger", "listing_trigger", "trigger"},
	fieldDate:            {"date", "email_date", "emailDate", "email_at", "observed_at", "created_at"},
	fieldTime:            {"time", "email_time", "emailTime", "email_at", "observed_at", "created_at"},
	fieldTriggeredDate:   {"triggeredDate", "triggered_date", "triggeredAt", "triggered_at"},
	fieldTriggeredTime:   {"triggeredTime", "triggered_time", "triggeredAt", "triggered_at"},
	fieldSubmittedDate:   {"submittedDate", "submitted_date", "submittedAt", "submitted_at"},
	fieldSubmittedTime:   {"submittedTime", "submitted_time", "submittedAt", "submitted_at"},
	fieldSubmissionPlace: {"submissionPlace", "submission_place", "place"},
	fieldTurnaroundTime:  {"turnaroundTime", "turnaround_time", "turnaround"},
}

// MergePatch overlays patch onto base, a record in its Raw() form. Patch keys
// may use any alias; each lands on the canonical key of every field it names.
// Unrecognized patch keys are kept as given and the id is never overwritten.
// Patching the minimum size without an amount drops the base amount so the
// normalizer derives it again from the new size.
func MergePatch(base, patch model.RawRecord) model.RawRecord {
	merged := make(model.RawRecord, len(base)+len(patch))
	for k, v := range base {
		merged[k] = v
	}

	touched := make(map[field]bool, len(patch))
	for k, v := range patch {
		fields := fieldsFor(k)
		if len(fields) == 0 {
			merged[k] = v
			continue
		}
		for _, f := range fields {
			if f == fieldID {
				continue
			}
			touched[f] = true
			merged[string(f)] = v
		}
	}
	if touched[fieldMinimumSize] && !touched[fieldAmount] {
		delete(merged, string(fieldAmount))
	}
	return merged
}

func fieldsFor(key string) []field {
	fk := foldKey(key)
	var out []field
	for f, aliases := range fieldAliases {
		for _, alias := range aliases {
			if foldKey(alias) == fk {
				out = append(out, f)
				break
			}
		}
	}
	return out
}

// resolver answers field lookups against one raw record.
type resolver struct {
	raw    model.RawRecord
	folded map[string][]string
}

func newResolver(raw model.RawRecord) *resolver {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	folded := make(map[string][]string, len(keys))
	for _, k := range keys {
		fk := foldKey(k)
		folded[fk] = append(folded[fk], k)
	}
	return &resolver{raw: raw, folded: folded}
}

// value returns the first non-blank value among the field's aliases.
func (r *resolver) value(f field) (any, bool) {
	for _, alias := range fieldAliases[f] {
		if v, ok := r.raw[alias]; ok && !isBlank(v) {
			return v, true
		}
		for _, k := range r.folded[foldKey(alias)] {
			if v := r.raw[k]; !isBlank(v) {
				return v, true
			}
		}
	}
	return nil, false
}

func (r *resolver) str(f field) string {
	v, ok := r.value(f)
	if !ok {
		return ""
	}
	return asString(v)
}

func (r *resolver) strOr(f field, def string) string {
	if s := r.str(f); s != "" {
		return s
	}
	return def
}

func foldKey(k string) string {
	var b strings.Builder
	b.Grow(len(k))
	for _, r := range k {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

func isBlank(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []byte:
		return strings.TrimSpace(string(t)) == ""
	case time.Time:
		return t.IsZero()
	case *time.Time:
		return t == nil || t.IsZero()
	case *string:
		return t == nil || strings.TrimSpace(*t) == ""
	case float64:
		return math.IsNaN(t)
	}
	return false
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case *string:
		if t == nil {
			return ""
		}
		return strings.TrimSpace(*t)
	case []byte:
		return strings.TrimSpace(string(t))
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case uint32:
		return strconv.FormatUint(uint64(t), 10)
	case uint64:
		return strconv.FormatUint(t, 10)
	case bool:
		return strconv.FormatBool(t)
	case time.Time:
		return t.Format(time.RFC3339Nano)
	case *time.Time:
		if t == nil {
			return ""
		}
		return t.Format(time.RFC3339Nano)
	case fmt.Stringer:
		return strings.TrimSpace(t.String())
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}
