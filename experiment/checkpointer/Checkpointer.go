// Package checkpointer implements the persistence of training state.
// A Checkpointer evaluates a list of Triggers in precedence order after
// each training iteration and saves a Checkpoint to a Store when the
// first of them fires.
package checkpointer

import (
	"fmt"
)

// Reason denotes why a Checkpoint was saved
type Reason string

const (
	// Stability checkpoints are saved once the average reward has
	// stopped changing for a number of consecutive iterations
	Stability Reason = "stability"

	// Periodic checkpoints are saved at fixed iteration intervals
	Periodic Reason = "periodic"
)

// Checkpoint is a snapshot of training state at the end of an
// iteration
type Checkpoint struct {
	Iteration int
	Reason    Reason
	Policy    []float64 // Flattened policy parameters
	Value     []float64 // Flattened value function parameters
	Rewards   []float64 // Average reward of each iteration so far
}

// Status is the information about a finished iteration that Triggers
// use to decide whether or not to checkpoint
type Status struct {
	Iteration int

	// Early is the number of consecutive iterations in which the
	// average reward changed by less than the convergence tolerance
	Early int
}

// Store persists Checkpoints
type Store interface {
	Save(Checkpoint) error
	Load() (Checkpoint, error) // Loads the most recently saved Checkpoint
	Close() error
}

// Checkpointer saves Checkpoints to a Store when one of its Triggers
// fires. At most one Checkpoint is saved per iteration.
type Checkpointer struct {
	store    Store
	triggers []Trigger
}

// New returns a new Checkpointer. Triggers are evaluated in the order
// given.
func New(store Store, triggers ...Trigger) (*Checkpointer, error) {
	if store == nil {
		return nil, fmt.Errorf("new: store must not be nil")
	}
	if len(triggers) == 0 {
		return nil, fmt.Errorf("new: at least one trigger is required")
	}
	return &Checkpointer{store: store, triggers: triggers}, nil
}

// Check returns the Reason of the first Trigger that fires for s and
// true, or false if no Trigger fires
func (c *Checkpointer) Check(s Status) (Reason, bool) {
	for _, trigger := range c.triggers {
		if trigger.Fire(s) {
			return trigger.Reason(), true
		}
	}
	return "", false
}

// Checkpoint saves the Checkpoint returned by snapshot if any Trigger
// fires for s. The snapshot function is only called when a Checkpoint
// is saved. Checkpoint returns the Reason for saving and whether or
// not a Checkpoint was saved.
func (c *Checkpointer) Checkpoint(s Status,
	snapshot func() Checkpoint) (Reason, bool, error) {
	reason, ok := c.Check(s)
	if !ok {
		return "", false, nil
	}

	cp := snapshot()
	cp.Iteration = s.Iteration
	cp.Reason = reason
	if err := c.store.Save(cp); err != nil {
		return reason, false, fmt.Errorf("checkpoint: could not save "+
			"iteration %v: %v", s.Iteration, err)
	}
	return reason, true, nil
}

// Store returns the Store Checkpoints are saved to
func (c *Checkpointer) Store() Store {
	return c.store
}

// Close closes the underlying Store
func (c *Checkpointer) Close() error {
	return c.store.Close()
}
