// Package arpl implements adversarially robust policy learning (ARPL)
// state perturbations, following https://arxiv.org/abs/1710.00814.
//
// States stored for training are, with some probability, moved along
// the gradient of the norm of the policy's mean action with respect to
// the state. Only stored copies are perturbed; the states used to act
// in the environment are never modified.
package arpl

import (
	"fmt"

	"github.com/samuelfneumann/arpl/utils/floatutils"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// InputGrader computes the gradient of the norm of a policy's mean
// action with respect to an input state
type InputGrader interface {
	InputGrad(state []float64) ([]float64, error)
}

// Perturber perturbs states for training
type Perturber struct {
	grader  InputGrader
	trigger distuv.Bernoulli
	epsilon float64
}

// New returns a new Perturber which perturbs states with the
// gradients computed by grader. Perturbation triggers are sampled with
// a source seeded with seed.
func New(c Config, grader InputGrader, seed uint64) (*Perturber, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	if grader == nil {
		return nil, fmt.Errorf("new: nil input grader")
	}

	p := &Perturber{
		grader:  grader,
		trigger: distuv.Bernoulli{Src: rand.NewSource(seed)},
		epsilon: c.Epsilon,
	}
	p.SetPhi(c.Phi)
	return p, nil
}

// Phi returns the probability of perturbing a state
func (p *Perturber) Phi() float64 {
	return p.trigger.P
}

// SetPhi sets the probability of perturbing a state. Probabilities
// above 1 are treated as 1 when sampling.
func (p *Perturber) SetPhi(phi float64) {
	p.trigger.P = phi
}

// Epsilon returns the perturbation scale
func (p *Perturber) Epsilon() float64 {
	return p.epsilon
}

// Perturb returns a perturbed copy of state and true with probability
// Phi, otherwise an unmodified copy of state and false. The argument is
// never modified. A perturbed state is s + ɛ∇ₛ‖μ(s)‖₂.
func (p *Perturber) Perturb(state []float64) ([]float64, bool, error) {
	out := append([]float64(nil), state...)
	if !p.triggered() {
		return out, false, nil
	}

	grad, err := p.grader.InputGrad(state)
	if err != nil {
		return nil, false, fmt.Errorf("perturb: %v", err)
	}
	if len(grad) != len(state) {
		return nil, false, fmt.Errorf("perturb: invalid gradient length "+
			"\n\twant(%v)\n\thave(%v)", len(state), len(grad))
	}
	if !floatutils.AllFinite(grad) {
		return nil, false, fmt.Errorf("perturb: non-finite gradient")
	}

	floats.AddScaled(out, p.epsilon, grad)
	return out, true, nil
}

// triggered samples whether the next state should be perturbed
func (p *Perturber) triggered() bool {
	switch {
	case p.trigger.P <= 0:
		return false
	case p.trigger.P >= 1:
		return true
	}
	return p.trigger.Rand() == 1
}
