package normalize

import (
	"strings"

	"isinFlow/internal/domain/model"
)

var statusTokens = map[string]model.Status{
	"scraped":   model.StatusScraped,
	"triggered": model.StatusTriggered,
	"trigger":   model.StatusTriggered,
	"submitted": model.StatusSubmitted,
	"submit":    model.StatusSubmitted,
	"passed":    model.StatusPassed,
	"pass":      model.StatusPassed,
	"too_late":  model.StatusTooLate,
	"too late":  model.StatusTooLate,
	"too-late":  model.StatusTooLate,
}

// Classify maps a raw status token onto the closed status set.
// Unknown and empty tokens classify as scraped.
func Classify(token string) model.Status {
	t := strings.ToLower(strings.TrimSpace(token))
	t = strings.Join(strings.Fields(t), " ")
	if s, ok := statusTokens[t]; ok {
		return s
	}
	return model.StatusScraped
}

// ClassifyValue is Classify for untyped input; nil classifies as scraped.
func ClassifyValue(v any) model.Status {
	if v == nil {
		return model.StatusScraped
	}
	return Classify(asString(v))
}
