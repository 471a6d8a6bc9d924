package model

import "time"

// ChangeKind classifies a canonical store mutation.
type ChangeKind string

const (
	ChangeReplace ChangeKind = "replace"
	ChangeUpsert  ChangeKind = "upsert"
	ChangeDelete  ChangeKind = "delete"
)

// StoreChange is delivered to store subscribers after every mutation.
// Replace carries the full ordered collection, Upsert the touched record, Delete only its ID.
type StoreChange struct {
	Kind     ChangeKind   `json:"kind"`
	ID       string       `json:"id,omitempty"`
	Record   *BondRecord  `json:"record,omitempty"`
	Records  []BondRecord `json:"records,omitempty"`
	Inserted bool         `json:"inserted,omitempty"`
}

// SyncStatus is the connection indicator reported to observers.
type SyncStatus struct {
	Connected           bool      `json:"connected"`
	ConsecutiveFailures int       `json:"consecutiveFailures"`
	LastSuccess         time.Time `json:"lastSuccess,omitempty"`
	LastError           string    `json:"lastError,omitempty"`
	Records             int       `json:"records"`
}

// BoardSummary counts records per lifecycle column.
type BoardSummary struct {
	Total            int               `json:"total"`
	ByStatus         map[Status]int    `json:"byStatus"`
	VolumeByCurrency map[string]string `json:"volumeByCurrency"`
}
