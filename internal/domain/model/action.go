package model

// Action is a locally initiated lifecycle transition.
type Action string

const (
	ActionTrigger Action = "trigger"
	ActionPass    Action = "pass"
	ActionAuto    Action = "auto"
)

// Code returns the side-channel action code for the action.
func (a Action) Code() string {
	switch a {
	case ActionTrigger:
		return "TRIGGER_MANUAL"
	case ActionPass:
		return "PASS"
	case ActionAuto:
		return "TRIGGER_AUTO"
	default:
		return "UNKNOWN"
	}
}

// Target returns the status the action moves a record into.
func (a Action) Target() Status {
	if a == ActionPass {
		return StatusPassed
	}
	return StatusTriggered
}

// ListingTrigger returns the marker stamped on the record by the action.
func (a Action) ListingTrigger() string {
	switch a {
	case ActionPass:
		return TriggerPassed
	case ActionAuto:
		return TriggerAuto
	default:
		return TriggerManual
	}
}

// SideChannelPayload is dispatched to the external automation endpoint on every transition.
type SideChannelPayload struct {
	Action    string `json:"action"`
	ISIN      string `json:"isin"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
}
