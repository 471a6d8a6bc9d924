package model

import (
	"errors"
	"fmt"
)

var (
	ErrRecordNotFound     = errors.New("record not found")
	ErrInvalidTransition  = errors.New("invalid transition")
	ErrSourceUnavailable  = errors.New("source unavailable")
	ErrTransitionRejected = errors.New("transition rejected")
	ErrSideChannel        = errors.New("side channel delivery failed")
)

// SourceError reports a failed pull or subscribe against a named upstream.
type SourceError struct {
	Source string
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source %s unavailable: %v", e.Source, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

func (e *SourceError) Is(target error) bool { return target == ErrSourceUnavailable }

// TransitionError reports a backing-source write that failed after an optimistic apply.
type TransitionError struct {
	ID     string
	Action Action
	Err    error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("transition %s on %s rejected: %v", e.Action, e.ID, e.Err)
}

func (e *TransitionError) Unwrap() error { return e.Err }

func (e *TransitionError) Is(target error) bool { return target == ErrTransitionRejected }
