// Package environment outlines the interfaces and sturcts needed to implement
// concrete environments
package environment

import (
	"github.com/samuelfneumann/arpl/timestep"
	"gonum.org/v1/gonum/mat"
)

// Starter implements a distribution of starting states and samples starting
// states for environments
type Starter interface {
	Start() *mat.VecDense
}

// Ender determines when an episode should end
type Ender interface {
	// End checks whether the argument TimeStep ends the episode. If
	// so, End() adjusts the StepType of the argument to timestep.Last
	// and returns true.
	End(*timestep.TimeStep) bool
}

// Task implements the reward scheme for taking actions in some environment
type Task interface {
	Starter
	Ender
	GetReward(state, action, nextState mat.Vector) float64
	RewardSpec() Spec
}

// Environment implements a simualted environment. Environments start
// ready to use; the first TimeStep of an episode is returned by Reset().
type Environment interface {
	Reset() (timestep.TimeStep, error)
	Step(action *mat.VecDense) (timestep.TimeStep, bool, error)
	CurrentTimeStep() timestep.TimeStep
	DiscountSpec() Spec
	ObservationSpec() Spec
	ActionSpec() Spec
}

// Closer is an Environment which must release resources once it is
// no longer needed
type Closer interface {
	Environment
	Close() error
}

// Close closes e if it holds any resources
func Close(e Environment) error {
	if c, ok := e.(Closer); ok {
		return c.Close()
	}
	return nil
}
