package service

import (
	"isinFlow/internal/domain/model"
	"isinFlow/internal/domain/normalize"

	"github.com/shopspring/decimal"
)

// Summarize counts records per status and sums amounts per currency code.
func Summarize(records []model.BondRecord) model.BoardSummary {
	summary := model.BoardSummary{
		Total:            len(records),
		ByStatus:         make(map[model.Status]int, len(model.Statuses)),
		VolumeByCurrency: make(map[string]string),
	}
	for _, s := range model.Statuses {
		summary.ByStatus[s] = 0
	}

	volumes := make(map[string]decimal.Decimal)
	for _, rec := range records {
		summary.ByStatus[rec.Status]++
		code := normalize.CurrencyCode(rec.Currency)
		if code == "" {
			code = "-"
		}
		volumes[code] = volumes[code].Add(decimal.NewFromFloat(rec.Amount))
	}
	for code, v := range volumes {
		summary.VolumeByCurrency[code] = v.String()
	}
	return summary
}
