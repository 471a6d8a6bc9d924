package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"isinFlow/internal/domain/model"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		in   string
		want model.Status
	}{
		{"too late", model.StatusTooLate},
		{"Too  Late", model.StatusTooLate},
		{"too_late", model.StatusTooLate},
		{"pass", model.StatusPassed},
		{"PASSED", model.StatusPassed},
		{" trigger ", model.StatusTriggered},
		{"submit", model.StatusSubmitted},
		{"submitted", model.StatusSubmitted},
		{"scraped", model.StatusScraped},
		{"bogus", model.StatusScraped},
		{"", model.StatusScraped},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.in), tt.in)
	}
}

func TestClassifyValue_Nil(t *testing.T) {
	assert.Equal(t, model.StatusScraped, ClassifyValue(nil))
	assert.Equal(t, model.StatusScraped, ClassifyValue(42))
	assert.Equal(t, model.StatusPassed, ClassifyValue([]byte("pass")))
}

func TestCurrencyCode(t *testing.T) {
	tests := map[string]string{
		"€":       "EUR",
		"EUR":     "EUR",
		"€ (EUR)": "EUR",
		"euro":    "EUR",
		"$":       "USD",
		"US$":     "USD",
		"usd":     "USD",
		"£":       "GBP",
		"CHF":     "CHF",
		"zloty":   "ZLOTY",
		"":        "",

		"THE EURO BOND":    "EUR",
		"japanese yen":     "JPY",
		"new issue in SEK": "SEK",
		"pay in GBP":       "GBP",
	}

	for in, want := range tests {
		assert.Equal(t, want, CurrencyCode(in), in)
	}
}

func TestMatchesCurrency(t *testing.T) {
	assert.True(t, MatchesCurrency("€", "EUR"))
	assert.True(t, MatchesCurrency("$", "all"))
	assert.True(t, MatchesCurrency("$", ""))
	assert.False(t, MatchesCurrency("$", "EUR"))
}
