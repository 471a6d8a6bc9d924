package service

import (
	"isinFlow/internal/domain/model"
	"isinFlow/internal/domain/normalize"
	"sort"
	"strings"
	"time"
)

// RecordLookup resolves a store record by ISIN.
type RecordLookup func(isin string) (model.BondRecord, bool)

// Aggregator rolls deal-to-bookrunner associations up per canonical bookrunner.
type Aggregator struct {
	canon *Canonicalizer
	loc   *time.Location
}

func NewAggregator(canon *Canonicalizer, loc *time.Location) *Aggregator {
	if canon == nil {
		canon = NewCanonicalizer(nil)
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Aggregator{canon: canon, loc: loc}
}

// Aggregate filters associations to rng and currency, groups them by canonical
// bookrunner name and computes market share. Issuer and currency missing from an
// association are filled from the store through lookup, which may be nil.
// The result is sorted by deal count descending, then name ascending.
func (a *Aggregator) Aggregate(assocs []model.BookrunnerAssociation, lookup RecordLookup, rng model.DateRange, currency string) []model.BookrunnerAggregate {
	from, to := a.bounds(rng)

	grouped := make(map[string]*model.BookrunnerAggregate)
	total := 0

	for _, assoc := range assocs {
		at := assoc.EffectiveDate()
		if at.IsZero() {
			continue
		}
		if from != nil && at.Before(*from) {
			continue
		}
		if to != nil && at.After(*to) {
			continue
		}

		deal := model.Deal{
			ISIN:     strings.TrimSpace(assoc.ISIN),
			Date:     at.In(a.loc).Format(normalize.DisplayDateLayout),
			Issuer:   strings.TrimSpace(assoc.Issuer),
			Currency: strings.TrimSpace(assoc.Currency),
			At:       at,
		}
		if (deal.Issuer == "" || deal.Currency == "") && lookup != nil {
			if rec, ok := lookup(deal.ISIN); ok {
				if deal.Issuer == "" {
					deal.Issuer = rec.Issuer
				}
				if deal.Currency == "" {
					deal.Currency = rec.Currency
				}
			}
		}
		if deal.Issuer == "" {
			deal.Issuer = UnknownName
		}

		if !normalize.MatchesCurrency(deal.Currency, currency) {
			continue
		}
		if deal.Currency == "" {
			deal.Currency = "-"
		}

		name := a.canon.Canonicalize(assoc.Bookrunner)
		agg, ok := grouped[name]
		if !ok {
			agg = &model.BookrunnerAggregate{Name: name}
			grouped[name] = agg
		}
		agg.Deals = append(agg.Deals, deal)
		agg.DealCount++
		total++
	}

	result := make([]model.BookrunnerAggregate, 0, len(grouped))
	for _, agg := range grouped {
		sort.SliceStable(agg.Deals, func(i, j int) bool {
			return agg.Deals[i].At.After(agg.Deals[j].At)
		})
		agg.LastActiveDate = agg.Deals[0].Date
		if total > 0 {
			agg.MarketSharePercent = 100 * float64(agg.DealCount) / float64(total)
		}
		result = append(result, *agg)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].DealCount != result[j].DealCount {
			return result[i].DealCount > result[j].DealCount
		}
		return result[i].Name < result[j].Name
	})
	return result
}

// bounds widens the range to whole days in the display location.
func (a *Aggregator) bounds(rng model.DateRange) (from, to *time.Time) {
	if rng.Start != nil {
		s := rng.Start.In(a.loc)
		start := time.Date(s.Year(), s.Month(), s.Day(), 0, 0, 0, 0, a.loc)
		from = &start
	}
	if rng.End != nil {
		e := rng.End.In(a.loc)
		end := time.Date(e.Year(), e.Month(), e.Day(), 23, 59, 59, int(999*time.Millisecond), a.loc)
		to = &end
	}
	return from, to
}
