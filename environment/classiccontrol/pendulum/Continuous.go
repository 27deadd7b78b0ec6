package pendulum

import (
	"fmt"

	"github.com/samuelfneumann/arpl/environment"
	"github.com/samuelfneumann/arpl/timestep"
	"github.com/samuelfneumann/arpl/utils/floatutils"
	"gonum.org/v1/gonum/mat"
)

// Continuous implements the classic control environment Pendulum with
// continuous actions.
//
// Actions are continuous and 1-dimensional. Actions determine the
// torque to apply to the pendulum at its fixed base. Actions are
// bounded by [-2, 2] = [MinContinuousAction, MaxContinuousAction].
// Actions outside of this region are clipped to stay within these
// bounds.
//
// Continuous implements the environment.Environment interface
type Continuous struct {
	*base
}

// NewContinuous creates and returns a new Continuous environment
func NewContinuous(t environment.Task, discount float64) (*Continuous,
	timestep.TimeStep, error) {
	baseEnv, firstStep, err := newBase(t, discount)
	if err != nil {
		return nil, timestep.TimeStep{}, fmt.Errorf("newContinuous: %v", err)
	}

	return &Continuous{baseEnv}, firstStep, nil
}

// Step takes one environmental step given action a and returns the next
// timestep as a timestep.TimeStep and a bool indicating whether or not
// the episode has ended.
func (p *Continuous) Step(action *mat.VecDense) (timestep.TimeStep, bool,
	error) {
	if action.Len() != ActionDims {
		return timestep.TimeStep{}, true, fmt.Errorf("step: actions should "+
			"be %v-dimensional, got %v", ActionDims, action.Len())
	}

	torque := floatutils.Clip(action.AtVec(0), MinContinuousAction,
		MaxContinuousAction)

	nextState := p.nextState(p.lastStep, torque)
	clipped := mat.NewVecDense(ActionDims, []float64{torque})

	nextStep, last := p.update(clipped, nextState)
	return nextStep, last, nil
}

// ActionSpec returns the action specification of the environment
func (p *Continuous) ActionSpec() environment.Spec {
	shape := mat.NewVecDense(ActionDims, nil)

	minAction, maxAction := p.torqueBounds.Min, p.torqueBounds.Max
	lowerBound := mat.NewVecDense(ActionDims, []float64{minAction})
	upperBound := mat.NewVecDense(ActionDims, []float64{maxAction})

	return environment.NewSpec(shape, environment.Action, lowerBound,
		upperBound, environment.Continuous)
}

// String converts the environment to a string representation
func (p *Continuous) String() string {
	str := "Continuous  |  theta: %v  |  theta dot: %v\n"
	theta := p.lastStep.Observation.AtVec(0)
	thetadot := p.lastStep.Observation.AtVec(1)

	return fmt.Sprintf(str, theta, thetadot)
}
