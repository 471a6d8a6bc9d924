package normalize

import (
	"math"
	"strconv"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"isinFlow/internal/domain/model"
)

// Normalizing a date or time twice gives the same result as normalizing it once.
func TestProperty_DateTimeIdempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	n := New(time.FixedZone("CET", 3600))
	start := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

	properties.Property("ISO timestamps normalize idempotently", prop.ForAll(
		func(offsetSeconds int64, layout int) bool {
			ts := start.Add(time.Duration(offsetSeconds) * time.Second)
			layouts := []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05Z07:00", "2006-01-02"}
			in := ts.Format(layouts[layout%len(layouts)])

			d := n.NormalizeDate(in)
			tm := n.NormalizeTime(in)
			return n.NormalizeDate(d) == d && n.NormalizeTime(tm) == tm
		},
		gen.Int64Range(0, 40*365*24*3600),
		gen.IntRange(0, 3),
	))

	properties.Property("arbitrary strings normalize idempotently", prop.ForAll(
		func(s string) bool {
			d := n.NormalizeDate(s)
			tm := n.NormalizeTime(s)
			return n.NormalizeDate(d) == d && n.NormalizeTime(tm) == tm
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}

// Amount resolution is total and never negative.
func TestProperty_AmountNonNegative(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	n := New(time.UTC)

	properties.Property("textual sizes resolve to a finite non-negative amount", prop.ForAll(
		func(amount, minSize string) bool {
			rec := n.Normalize(model.RawRecord{"amount": amount, "minSize": minSize})
			return rec.Amount >= 0 && !math.IsNaN(rec.Amount) && !math.IsInf(rec.Amount, 0)
		},
		gen.AnyString(),
		gen.AnyString(),
	))

	properties.Property("numeric amounts resolve to a finite non-negative amount", prop.ForAll(
		func(amount float64) bool {
			rec := n.Normalize(model.RawRecord{"amount": amount})
			return rec.Amount >= 0 && !math.IsNaN(rec.Amount) && !math.IsInf(rec.Amount, 0)
		},
		gen.Float64(),
	))

	properties.Property("k sizes multiply by 1000", prop.ForAll(
		func(v int) bool {
			got, ok := ParseSize(strconv.Itoa(v) + "k x 1k")
			return ok && got == float64(v)*1000
		},
		gen.IntRange(0, 1_000_000),
	))

	properties.TestingRun(t)
}

// Classification always lands in the closed status set.
func TestProperty_ClassifyTotal(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	valid := make(map[model.Status]bool, len(model.Statuses))
	for _, s := range model.Statuses {
		valid[s] = true
	}

	properties.Property("Classify returns a known status", prop.ForAll(
		func(s string) bool {
			return valid[Classify(s)]
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
