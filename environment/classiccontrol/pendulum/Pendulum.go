// Package pendulum implements the pendulum classic control environment
package pendulum

import (
	"fmt"
	"math"

	"github.com/samuelfneumann/arpl/environment"
	"github.com/samuelfneumann/arpl/timestep"
	"github.com/samuelfneumann/arpl/utils/floatutils"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"
)

// default physical constants
const (
	AngleBound  float64 = math.Pi // +/- Angle bounds
	SpeedBound  float64 = 8.0     // +/- Speed bounds
	TorqueBound float64 = 2.0     // +/- Torque bounds

	MaxContinuousAction float64 = TorqueBound
	MinContinuousAction float64 = -MaxContinuousAction

	dt              float64 = 0.05
	Gravity         float64 = 9.8
	Mass            float64 = 1.0
	Length          float64 = 1.0
	ActionDims      int     = 1
	ObservationDims int     = 2
)

// base implements the classic control environment base. In this
// environment, a pendulum is attached to a fixed base. An agent can
// swing the pendulum back and forth, but the swinging force /torque is
// underpowered. In order to be able to swing the pendulum straight up,
// it must first be rocked back and forth, using the momentum to
// gradually climb higher until the pendulum can point straight up or
// rotate fully around its fixed base.
//
// State features consist of the angle of the pendulum from the positive
// y-axis and the angular velocity of the pendulum. The angular
// velocity is clipped betwee [-SpeedBound, SpeedBound]. Angles are
// normalized to stay within [-AngleBound, AngleBound] = [-π, π].
type base struct {
	environment.Task
	dt           float64
	gravity      float64
	mass         float64
	length       float64
	angleBounds  r1.Interval
	speedBounds  r1.Interval
	torqueBounds r1.Interval
	lastStep     timestep.TimeStep
	discount     float64
}

// newBase creates and returns a new base environment
func newBase(t environment.Task, d float64) (*base, timestep.TimeStep,
	error) {
	angleBounds := r1.Interval{Min: -AngleBound, Max: AngleBound}
	speedBounds := r1.Interval{Min: -SpeedBound, Max: SpeedBound}
	torqueBounds := r1.Interval{Min: -TorqueBound, Max: TorqueBound}

	pendulum := &base{
		Task:         t,
		dt:           dt,
		gravity:      Gravity,
		mass:         Mass,
		length:       Length,
		angleBounds:  angleBounds,
		speedBounds:  speedBounds,
		torqueBounds: torqueBounds,
		discount:     d,
	}

	firstStep, err := pendulum.Reset()
	if err != nil {
		return nil, timestep.TimeStep{}, err
	}

	return pendulum, firstStep, nil
}

// CurrentTimeStep returns the last TimeStep that occurred in the
// environment
func (p *base) CurrentTimeStep() timestep.TimeStep {
	return p.lastStep
}

// Reset resets the environment and returns a starting state drawn from the
// Starter
func (p *base) Reset() (timestep.TimeStep, error) {
	state := p.Start()
	if err := validateState(state, p.angleBounds, p.speedBounds); err != nil {
		return timestep.TimeStep{}, fmt.Errorf("reset: %v", err)
	}
	startStep := timestep.New(timestep.First, 0, p.discount, state, 0)
	p.lastStep = startStep

	return startStep, nil
}

// nextState computes the next state of the environment given a timestep and
// an amount of torque to apply to the fixed base of the pendulum. The
// torque is first clipped to the appropriate torque bounds.
func (p *base) nextState(t timestep.TimeStep, torque float64) *mat.VecDense {
	obs := t.Observation
	th, thdot := obs.AtVec(0), obs.AtVec(1)

	torque = floatutils.ClipInterval(torque, p.torqueBounds)

	newthdot := thdot + (-3*p.gravity/(2*p.length)*math.Sin(th+math.Pi)+
		3.0/(p.mass*math.Pow(p.length, 2))*torque)*p.dt
	newthdot = floatutils.ClipInterval(newthdot, p.speedBounds)

	newth := normalizeAngle(th+(newthdot*p.dt), p.angleBounds)

	return mat.NewVecDense(2, []float64{newth, newthdot})
}

// update creates the next timestep after taking action in the current
// state and transitioning to newState.
func (p *base) update(action, newState *mat.VecDense) (timestep.TimeStep,
	bool) {
	reward := p.GetReward(p.lastStep.Observation, action, newState)
	nextStep := timestep.New(timestep.Mid, reward, p.discount, newState,
		p.lastStep.Number+1)

	// Check if the step is the last in the episode and adjust step type
	// if necessary
	p.End(&nextStep)

	p.lastStep = nextStep
	return nextStep, nextStep.Last()
}

// DiscountSpec returns the discount specification of the environment
func (p *base) DiscountSpec() environment.Spec {
	shape := mat.NewVecDense(1, nil)
	lowerBound := mat.NewVecDense(1, []float64{p.discount})
	upperBound := mat.NewVecDense(1, []float64{p.discount})

	return environment.NewSpec(shape, environment.Discount, lowerBound,
		upperBound, environment.Continuous)
}

// ObservationSpec returns the observation specification of the environment
func (p *base) ObservationSpec() environment.Spec {
	shape := mat.NewVecDense(ObservationDims, nil)

	minObs := []float64{p.angleBounds.Min, p.speedBounds.Min}
	lowerBound := mat.NewVecDense(ObservationDims, minObs)

	maxObs := []float64{p.angleBounds.Max, p.speedBounds.Max}
	upperBound := mat.NewVecDense(ObservationDims, maxObs)

	return environment.NewSpec(shape, environment.Observation, lowerBound,
		upperBound, environment.Continuous)
}

// normalizeAngle wraps the pendulum angle into angleBounds, which must
// be centred at 0.
func normalizeAngle(th float64, angleBounds r1.Interval) float64 {
	if angleBounds.Max != -angleBounds.Min {
		panic("angle bounds should be centered around 0")
	}
	width := angleBounds.Max - angleBounds.Min
	th = math.Mod(th-angleBounds.Min, width)
	if th < 0 {
		th += width
	}
	return th + angleBounds.Min
}

// validateState validates the state to ensure that the angle and angular
// velocity are within the environmental limits
func validateState(obs mat.Vector, angleBounds, speedBounds r1.Interval) error {
	if obs.Len() != ObservationDims {
		return fmt.Errorf("invalid state dimensions\n\twant(%v)\n\thave(%v)",
			ObservationDims, obs.Len())
	}

	th := obs.AtVec(0)
	if th > angleBounds.Max || th < angleBounds.Min {
		return fmt.Errorf("theta %v is not within bounds %v", th, angleBounds)
	}

	thdot := obs.AtVec(1)
	if thdot > speedBounds.Max || thdot < speedBounds.Min {
		return fmt.Errorf("theta dot %v is not within bounds %v", thdot,
			speedBounds)
	}
	return nil
}
