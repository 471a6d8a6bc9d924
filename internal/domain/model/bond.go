package model

import "time"

// Status is the lifecycle state of a bond record.
type Status string

const (
	StatusScraped   Status = "scraped"
	StatusTriggered Status = "triggered"
	StatusSubmitted Status = "submitted"
	StatusPassed    Status = "passed"
	StatusTooLate   Status = "too_late"
)

// Statuses lists the closed status set in lifecycle order.
var Statuses = []Status{StatusScraped, StatusTriggered, StatusSubmitted, StatusPassed, StatusTooLate}

// Listing trigger markers.
const (
	TriggerManual = "MANUAL"
	TriggerAuto   = "AUTO"
	TriggerPassed = "passed"
)

// RawRecord is an untyped upstream row with arbitrary key casing.
type RawRecord map[string]any

// BondRecord is the canonical unit held by the store.
type BondRecord struct {
	ID              string  `json:"id" csv:"id"`
	ISIN            string  `json:"isin" csv:"isin"`
	Issuer          string  `json:"issuer" csv:"issuer"`
	Currency        string  `json:"currency" csv:"currency"`
	Amount          float64 `json:"amount" csv:"amount"`
	Type            string  `json:"type" csv:"type"`
	MinimumSize     string  `json:"minSize" csv:"minSize"`
	Status          Status  `json:"status" csv:"status"`
	ListingTrigger  string  `json:"listingTrigger" csv:"listingTrigger"`
	Date            string  `json:"date" csv:"date"`
	Time            string  `json:"time" csv:"time"`
	TriggeredDate   string  `json:"triggeredDate,omitempty" csv:"triggeredDate"`
	TriggeredTime   string  `json:"triggeredTime,omitempty" csv:"triggeredTime"`
	SubmittedDate   string  `json:"submittedDate,omitempty" csv:"submittedDate"`
	SubmittedTime   string  `json:"submittedTime,omitempty" csv:"submittedTime"`
	SubmissionPlace string  `json:"submissionPlace,omitempty" csv:"submissionPlace"`
	TurnaroundTime  string  `json:"turnaroundTime,omitempty" csv:"turnaroundTime"`
}

// Raw converts the record back into an untyped row keyed by its JSON names.
// UpdateRecord overlays a patch on this form before normalizing again.
func (r BondRecord) Raw() RawRecord {
	raw := RawRecord{
		"id":             r.ID,
		"isin":           r.ISIN,
		"issuer":         r.Issuer,
		"currency":       r.Currency,
		"amount":         r.Amount,
		"type":           r.Type,
		"minSize":        r.MinimumSize,
		"status":         string(r.Status),
		"listingTrigger": r.ListingTrigger,
		"date":           r.Date,
		"time":           r.Time,
	}
	optional := map[string]string{
		"triggeredDate":   r.TriggeredDate,
		"triggeredTime":   r.TriggeredTime,
		"submittedDate":   r.SubmittedDate,
		"submittedTime":   r.SubmittedTime,
		"submissionPlace": r.SubmissionPlace,
		"turnaroundTime":  r.TurnaroundTime,
	}
	for k, v := range optional {
		if v != "" {
			raw[k] = v
		}
	}
	return raw
}

// AutoTriggerRule qualifies records of a currency up to MaxSize for AUTO triggering.
type AutoTriggerRule struct {
	ID       string  `json:"id"`
	Currency string  `json:"currency"`
	MaxSize  float64 `json:"maxSize"`
}

// BookrunnerAssociation links one deal to one bookrunner as reported by the backing source.
type BookrunnerAssociation struct {
	Bookrunner string
	ISIN       string
	Issuer     string
	Currency   string
	CreatedAt  time.Time
	ObservedAt *time.Time
}

// EffectiveDate prefers the observed timestamp over the creation timestamp.
func (a BookrunnerAssociation) EffectiveDate() time.Time {
	if a.ObservedAt != nil && !a.ObservedAt.IsZero() {
		return *a.ObservedAt
	}
	return a.CreatedAt
}

// Deal is one entry of a bookrunner's deal history.
type Deal struct {
	ISIN     string    `json:"isin"`
	Date     string    `json:"date"`
	Issuer   string    `json:"issuer"`
	Currency string    `json:"currency"`
	At       time.Time `json:"-"`
}

// BookrunnerAggregate is the derived market-share row for one canonical bookrunner.
type BookrunnerAggregate struct {
	Name               string  `json:"name" csv:"name"`
	DealCount          int     `json:"dealCount" csv:"dealCount"`
	MarketSharePercent float64 `json:"marketShare" csv:"marketShare"`
	LastActiveDate     string  `json:"lastActive" csv:"lastActive"`
	Deals              []Deal  `json:"deals" csv:"-"`
}

// DateRange bounds an aggregation. Nil bounds are open.
type DateRange struct {
	Start *time.Time
	End   *time.Time
}

// TransitionEntry is the journal row written for each local lifecycle transition.
type TransitionEntry struct {
	RecordID   string    `json:"id"`
	ISIN       string    `json:"isin"`
	Action     string    `json:"action"`
	FromStatus Status    `json:"from"`
	ToStatus   Status    `json:"to"`
	Outcome    string    `json:"outcome"`
	Error      string    `json:"error,omitempty"`
	At         time.Time `json:"at"`
}

// Transition outcomes.
const (
	OutcomeConfirmed = "confirmed"
	OutcomeRejected  = "rejected"
)
