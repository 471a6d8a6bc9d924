package model

// EventType is the kind of a change-feed event.
type EventType string

const (
	EventInsert EventType = "insert"
	EventUpdate EventType = "update"
	EventDelete EventType = "delete"
)

// ChangeEvent is one incremental change delivered by the push feed.
// Table scopes the event to a data set; OldRecord carries the deleted row when the transport has it.
type ChangeEvent struct {
	ID        string
	Type      EventType
	Schema    string
	Table     string
	Record    RawRecord
	OldRecord RawRecord
}
