// Package wrappers implements wrappers around environments, which
// modify the data an environment returns.
package wrappers

import (
	"fmt"

	"github.com/samuelfneumann/arpl/environment"
	"github.com/samuelfneumann/arpl/timestep"
	"github.com/samuelfneumann/arpl/utils/floatutils"
	"gonum.org/v1/gonum/mat"
)

// stdOffset keeps the normalization away from a division by zero
const stdOffset float64 = 1e-8

// Normalize wraps an environment and normalizes its observations using
// running statistics. Each observation the wrapped environment produces
// first updates the running statistics, then is shifted by the running
// mean, scaled by the running standard deviation and finally clipped to
// [-clip, clip].
//
// Normalize itself implements the environment.Environment interface,
// and is therefore itself an Environment. Rewards are not modified.
type Normalize struct {
	environment.Environment
	stat   *RunningStat
	clip   float64
	update bool

	currentStep timestep.TimeStep
}

// NewNormalize returns a new Normalize wrapping env. If clip <= 0, then
// normalized observations are not clipped.
func NewNormalize(env environment.Environment, clip float64) *Normalize {
	features := env.ObservationSpec().Shape.Len()
	return &Normalize{
		Environment: env,
		stat:        NewRunningStat(features),
		clip:        clip,
		update:      true,
	}
}

// Freeze stops updates to the running statistics
func (n *Normalize) Freeze() { n.update = false }

// Unfreeze resumes updates to the running statistics
func (n *Normalize) Unfreeze() { n.update = true }

// Stat returns the running statistics used for normalization
func (n *Normalize) Stat() *RunningStat {
	return n.stat
}

// Reset resets the wrapped environment and returns the normalized
// first step
func (n *Normalize) Reset() (timestep.TimeStep, error) {
	step, err := n.Environment.Reset()
	if err != nil {
		return step, err
	}

	if err := n.normalize(&step, n.update); err != nil {
		return step, fmt.Errorf("reset: %v", err)
	}
	n.currentStep = step
	return step, nil
}

// Step steps the wrapped environment and returns the normalized next
// step
func (n *Normalize) Step(action *mat.VecDense) (timestep.TimeStep, bool,
	error) {
	step, last, err := n.Environment.Step(action)
	if err != nil {
		return step, last, err
	}

	if err := n.normalize(&step, n.update); err != nil {
		return step, last, fmt.Errorf("step: %v", err)
	}
	n.currentStep = step
	return step, last, nil
}

// Normalized returns a copy of step with its observation normalized by
// the current running statistics, which are not updated
func (n *Normalize) Normalized(step timestep.TimeStep) (timestep.TimeStep,
	error) {
	if err := n.normalize(&step, false); err != nil {
		return step, fmt.Errorf("normalized: %v", err)
	}
	return step, nil
}

// CurrentTimeStep returns the most recent normalized TimeStep
func (n *Normalize) CurrentTimeStep() timestep.TimeStep {
	return n.currentStep
}

// Close closes the wrapped environment
func (n *Normalize) Close() error {
	return environment.Close(n.Environment)
}

// normalize replaces the observation of step with its normalized copy.
// If update is true, the observation is first added to the statistics.
func (n *Normalize) normalize(step *timestep.TimeStep, update bool) error {
	obs := make([]float64, step.Observation.Len())
	copy(obs, step.Observation.RawVector().Data)

	if update {
		if err := n.stat.Push(obs); err != nil {
			return err
		}
	}

	mean, std := n.stat.Mean(), n.stat.Std()
	for i := range obs {
		obs[i] = (obs[i] - mean[i]) / (std[i] + stdOffset)
	}
	if n.clip > 0 {
		floatutils.ClipSlice(obs, -n.clip, n.clip)
	}

	step.Observation = mat.NewVecDense(len(obs), obs)
	return nil
}
