// Package agent defines the agent interfaces used for batch policy
// optimization
package agent

import (
	"github.com/samuelfneumann/arpl/buffer/trajectory"
	ts "github.com/samuelfneumann/arpl/timestep"
	"gonum.org/v1/gonum/mat"
)

// Agent determines the implementation details of an agent or algorithm
//
// An Agent is composed of a Learner, which learns weights, and a Policy
// which chooses actions in each state. The Policy chooses which actions
// are taken, and the Learner uses batches of these actions to update
// the Policy.
type Agent interface {
	Learner
	Policy
}

// Learner implements a batch learning algorithm that defines how
// weights are updated.
type Learner interface {
	// Update performs a single update from a batch of transitions.
	// Either all of the Learner's weights are updated or none are.
	Update(trajectory.Batch) error
}

// Policy represents a policy that an agent can have.
//
// Weights are read only during action selection, so a Policy and a
// Learner may share weights.
type Policy interface {
	SelectAction(t ts.TimeStep) (*mat.VecDense, error)
}

// Parameterized is an Agent whose policy and value function weights
// can be read and written as flat parameter vectors
type Parameterized interface {
	Agent
	PolicyParams() []float64
	SetPolicyParams([]float64) error
	ValueParams() []float64
	SetValueParams([]float64) error
}

// Closer is an agent that must be closed after it is done learning
type Closer interface {
	Agent
	Close() error
}

// Close closes a if a is a Closer
func Close(a Agent) error {
	if closer, ok := a.(Closer); ok {
		return closer.Close()
	}
	return nil
}
