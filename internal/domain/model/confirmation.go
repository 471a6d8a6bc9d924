package model

import (
	"context"
	"sync"
)

// Confirmation is the pending outcome of an optimistic write.
// It resolves exactly once; later Resolve calls are ignored.
type Confirmation struct {
	once sync.Once
	done chan struct{}
	err  error
}

func NewConfirmation() *Confirmation {
	return &Confirmation{done: make(chan struct{})}
}

// ResolvedConfirmation returns a confirmation that has already completed with err.
func ResolvedConfirmation(err error) *Confirmation {
	c := NewConfirmation()
	c.Resolve(err)
	return c
}

func (c *Confirmation) Resolve(err error) {
	c.once.Do(func() {
		c.err = err
		close(c.done)
	})
}

// Done is closed once the outcome is known.
func (c *Confirmation) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until the outcome is known or ctx ends.
func (c *Confirmation) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return c.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the outcome, or nil while still pending.
func (c *Confirmation) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}
