// Package trpo implements Trust Region Policy Optimization with
// generalized advantage estimation and an L-BFGS fitted state value
// function, following https://arxiv.org/abs/1502.05477.
package trpo

import (
	"fmt"

	"github.com/samuelfneumann/arpl/agent/nonlinear/continuous/policy"
	"github.com/samuelfneumann/arpl/buffer/gae"
	"github.com/samuelfneumann/arpl/buffer/trajectory"
	env "github.com/samuelfneumann/arpl/environment"
	"github.com/samuelfneumann/arpl/network"
	"github.com/samuelfneumann/arpl/solver"
	ts "github.com/samuelfneumann/arpl/timestep"
	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
)

// Stats records the outcome of the last update
type Stats struct {
	Steps int

	// Policy trust region step
	Policy solver.Stats

	// Value function regression loss before and after fitting
	ValueLossBefore float64
	ValueLossAfter  float64
}

// TRPO implements the Trust Region Policy Optimization algorithm. Each
// call to Update() runs, in order:
//
//  1. Value predictions in each batch state
//  2. Generalized advantage estimation and advantage normalization
//  3. Value function fitting to the discounted returns
//  4. Construction of the surrogate objective
//  5. A trust region step on the policy parameters
//
// Policy and value function parameters are only changed once all steps
// have succeeded.
type TRPO struct {
	behaviour *policy.GaussianMLP
	valueFn   network.NeuralNet

	trustRegion *solver.TrustRegion
	minimizer   *solver.LBFGS

	gamma float64
	tau   float64
	l2    float64

	updates int
	stats   Stats
}

// New creates and returns a new TRPO agent
func New(e env.Environment, c Config, seed uint64) (*TRPO, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}

	behaviour, err := policy.NewGaussianMLP(e, 1, c.Hidden, c.biases(),
		c.activations(), c.InitWFn.InitWFn(), c.InitLogStd, seed)
	if err != nil {
		return nil, fmt.Errorf("new: could not create policy: %v", err)
	}

	features := e.ObservationSpec().Shape.Len()
	valueFn, err := network.NewSingleHeadMLP(features, 1, G.NewGraph(),
		c.Hidden, c.biases(), c.InitWFn.InitWFn(), c.activations())
	if err != nil {
		return nil, fmt.Errorf("new: could not create value function: %v",
			err)
	}

	trustRegion, err := solver.NewTrustRegion(c.TrustRegion)
	if err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	minimizer, err := solver.NewLBFGS(solver.LBFGSConfig{
		Iterations: c.ValueIters,
	})
	if err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}

	return &TRPO{
		behaviour:   behaviour,
		valueFn:     valueFn,
		trustRegion: trustRegion,
		minimizer:   minimizer,
		gamma:       c.Gamma,
		tau:         c.Tau,
		l2:          c.L2Reg,
	}, nil
}

// SelectAction returns an action at the given timestep
func (t *TRPO) SelectAction(step ts.TimeStep) (*mat.VecDense, error) {
	return t.behaviour.SelectAction(step)
}

// InputGrad returns the gradient of the norm of the policy's mean
// action with respect to state
func (t *TRPO) InputGrad(state []float64) ([]float64, error) {
	return t.behaviour.InputGrad(state)
}

// Update updates the policy and value function from a batch of
// transitions. A batch with fewer than two transitions, or whose
// advantages cannot be normalized, results in a
// *gae.DegenerateBatchError.
func (t *TRPO) Update(b trajectory.Batch) error {
	n := b.Len()
	if n < 2 {
		return &gae.DegenerateBatchError{Op: "update", Err: gae.ErrTooFewSteps}
	}
	if b.ObsDims != t.behaviour.Features() {
		return fmt.Errorf("update: invalid observation dimension "+
			"\n\twant(%v)\n\thave(%v)", t.behaviour.Features(), b.ObsDims)
	}
	if b.ActDims != t.behaviour.ActionDims() {
		return fmt.Errorf("update: invalid action dimension "+
			"\n\twant(%v)\n\thave(%v)", t.behaviour.ActionDims(), b.ActDims)
	}

	fitter, err := newValueFitter(t.valueFn, n, t.l2, t.minimizer)
	if err != nil {
		return fmt.Errorf("update: %v", err)
	}
	defer fitter.Close()

	φ := network.Flatten(t.valueFn.Learnables())
	values, err := fitter.Predict(φ, b.States)
	if err != nil {
		return fmt.Errorf("update: %v", err)
	}

	returns, advantages, err := gae.Estimate(b.Rewards, b.Masks, values,
		t.gamma, t.tau)
	if err != nil {
		return fmt.Errorf("update: %w", err)
	}
	advantages, err = gae.Normalize(advantages)
	if err != nil {
		return fmt.Errorf("update: %w", err)
	}

	fit, err := fitter.Fit(φ, b.States, returns)
	if err != nil {
		return fmt.Errorf("update: could not fit value function: %w", err)
	}

	obj, err := NewObjective(t.behaviour, b.States, b.Actions, advantages)
	if err != nil {
		return fmt.Errorf("update: %v", err)
	}
	defer obj.Close()

	θ, policyStats, err := t.trustRegion.Step(obj.Params(), obj)
	if err != nil {
		return fmt.Errorf("update: could not step policy: %w", err)
	}

	// Commit
	if err := t.behaviour.SetParams(θ); err != nil {
		return fmt.Errorf("update: %v", err)
	}
	if err := network.SetFlat(t.valueFn.Learnables(), fit.Params); err != nil {
		return fmt.Errorf("update: %v", err)
	}

	t.updates++
	t.stats = Stats{
		Steps:           n,
		Policy:          policyStats,
		ValueLossBefore: fit.LossBefore,
		ValueLossAfter:  fit.LossAfter,
	}
	return nil
}

// Updates returns the number of completed updates
func (t *TRPO) Updates() int {
	return t.updates
}

// LastStats returns the statistics of the last completed update
func (t *TRPO) LastStats() Stats {
	return t.stats
}

// PolicyParams returns a copy of the flat policy parameters
func (t *TRPO) PolicyParams() []float64 {
	return t.behaviour.Params()
}

// SetPolicyParams sets the flat policy parameters
func (t *TRPO) SetPolicyParams(θ []float64) error {
	return t.behaviour.SetParams(θ)
}

// ValueParams returns a copy of the flat value function parameters
func (t *TRPO) ValueParams() []float64 {
	return network.Flatten(t.valueFn.Learnables())
}

// SetValueParams sets the flat value function parameters
func (t *TRPO) SetValueParams(φ []float64) error {
	return network.SetFlat(t.valueFn.Learnables(), φ)
}

// Close releases the VMs held by the agent
func (t *TRPO) Close() error {
	return t.behaviour.Close()
}
