package service

import (
	"fmt"
	"isinFlow/internal/domain/model"
)

// lifecycle is the status graph. passed -> triggered is the manual re-trigger branch.
var lifecycle = map[model.Status][]model.Status{
	model.StatusScraped:   {model.StatusTriggered, model.StatusPassed},
	model.StatusTriggered: {model.StatusSubmitted},
	model.StatusSubmitted: {model.StatusPassed, model.StatusTooLate},
	model.StatusPassed:    {model.StatusTriggered},
	model.StatusTooLate:   nil,
}

// CanTransition reports whether the lifecycle graph has an edge from -> to.
func CanTransition(from, to model.Status) bool {
	for _, next := range lifecycle[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidateAction checks a locally initiated action against the record's current status.
// Only trigger, pass and auto may originate locally; submission outcomes come from upstream.
func ValidateAction(current model.Status, action model.Action) error {
	ok := false
	switch action {
	case model.ActionTrigger:
		ok = current == model.StatusScraped || current == model.StatusPassed
	case model.ActionPass, model.ActionAuto:
		ok = current == model.StatusScraped
	}
	if !ok {
		return fmt.Errorf("%w: %s from %s", model.ErrInvalidTransition, action, current)
	}
	return nil
}

// ParseAction maps a request token onto a local action.
func ParseAction(s string) (model.Action, error) {
	switch a := model.Action(s); a {
	case model.ActionTrigger, model.ActionPass:
		return a, nil
	}
	return "", fmt.Errorf("%w: unknown action %q", model.ErrInvalidTransition, s)
}
