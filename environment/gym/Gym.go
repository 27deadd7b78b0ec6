//go:build gym

// Package gym provides access to OpenAI Gym environments.
//
// All environments in the Classic Control and MuJoCo suites with
// continuous (Box) action spaces can be used. Environments use their
// default Gym tasks; an additional episode cutoff may be configured.
//
// This is made possible through the Go bindings for OpenAI Gym,
// found at https://github.com/samuelfneumann/GoGym. Since these
// bindings require a Python installation with Gym, the package is only
// compiled with the gym build tag. Importing the package registers the
// envconfig.Gym environment.
package gym

import (
	"fmt"

	"github.com/samuelfneumann/arpl/environment"
	"github.com/samuelfneumann/arpl/environment/envconfig"
	ts "github.com/samuelfneumann/arpl/timestep"
	"github.com/samuelfneumann/gogym"
	"gonum.org/v1/gonum/mat"
)

func init() {
	envconfig.Register(envconfig.Gym, create)
}

// create is the envconfig.Creator of Gym environments
func create(c envconfig.Config, seed uint64) (environment.Environment,
	ts.TimeStep, error) {
	return New(c.Name, c.Discount, c.EpisodeCutoff, seed)
}

// GymEnv implements access to an OpenAI Gym environment using GoGym
type GymEnv struct {
	gogym.Environment

	ender       environment.StepLimit
	currentStep ts.TimeStep
	discount    float64
}

// New returns a new GymEnv with the given name, which must be a legal
// name from the OpenAI Gym suite. If cutoff > 0, episodes are cut off
// after cutoff steps.
func New(name string, discount float64, cutoff int, seed uint64) (*GymEnv,
	ts.TimeStep, error) {
	goGymEnv, err := gogym.Make(name)
	if err != nil {
		return nil, ts.TimeStep{}, fmt.Errorf("new: could not create "+
			"environment: %v", err)
	}

	if _, ok := goGymEnv.ActionSpace().(*gogym.BoxSpace); !ok {
		goGymEnv.Close()
		return nil, ts.TimeStep{}, fmt.Errorf("new: environment %v does "+
			"not have continuous actions", name)
	}

	goGymEnv.Seed(int(seed))
	gymEnv := &GymEnv{
		Environment: goGymEnv,
		ender:       environment.NewStepLimit(cutoff),
		discount:    discount,
	}

	t, err := gymEnv.Reset()
	if err != nil {
		goGymEnv.Close()
		return nil, ts.TimeStep{}, fmt.Errorf("new: %v", err)
	}
	return gymEnv, t, nil
}

// Step takes a single environmental step
func (g *GymEnv) Step(a *mat.VecDense) (ts.TimeStep, bool, error) {
	obs, reward, done, err := g.Environment.Step(a)
	if err != nil {
		return ts.TimeStep{}, true, fmt.Errorf("step: could not step "+
			"GoGym environment: %v", err)
	}

	t := ts.New(ts.Mid, reward, g.discount, obs, g.currentStep.Number+1)
	if done {
		t.StepType = ts.Last
	} else {
		g.ender.End(&t)
	}
	g.currentStep = t

	return t, t.Last(), nil
}

// Reset resets the environment to some starting state
func (g *GymEnv) Reset() (ts.TimeStep, error) {
	obs, err := g.Environment.Reset()
	if err != nil {
		return ts.TimeStep{}, fmt.Errorf("reset: could not reset "+
			"environment: %v", err)
	}

	t := ts.New(ts.First, 0, g.discount, obs, 0)
	g.currentStep = t

	return t, nil
}

// CurrentTimeStep returns the current timestep in the environment
func (g *GymEnv) CurrentTimeStep() ts.TimeStep {
	return g.currentStep
}

// ObservationSpec returns the observation spec of the environment
func (g *GymEnv) ObservationSpec() environment.Spec {
	low, high := bounds(g.ObservationSpace())
	shape := mat.NewVecDense(low.Len(), nil)

	return environment.NewSpec(shape, environment.Observation, low, high,
		environment.Continuous)
}

// ActionSpec returns the action specification of the environment
func (g *GymEnv) ActionSpec() environment.Spec {
	low, high := bounds(g.ActionSpace())
	shape := mat.NewVecDense(low.Len(), nil)

	return environment.NewSpec(shape, environment.Action, low, high,
		environment.Continuous)
}

// DiscountSpec returns the discount specification of the environment
func (g *GymEnv) DiscountSpec() environment.Spec {
	shape := mat.NewVecDense(1, nil)
	low := mat.NewVecDense(1, []float64{g.discount})

	return environment.NewSpec(shape, environment.Discount, low, low,
		environment.Continuous)
}

// Close performs resource cleanup after the environment is no longer
// needed
func (g *GymEnv) Close() error {
	g.Environment.Close()
	return nil
}

// bounds returns the lower and upper bounds of a GoGym space
func bounds(space gogym.Space) (low, high *mat.VecDense) {
	switch space.(type) {
	case *gogym.BoxSpace, *gogym.DiscreteSpace:
		return space.Low()[0], space.High()[0]
	default:
		panic("bounds: invalid space type, package gym supports " +
			"only GoGym's BoxSpace or DiscreteSpace")
	}
}
