package solver

import (
	"fmt"
	"math"

	"github.com/samuelfneumann/arpl/utils/floatutils"
	"gonum.org/v1/gonum/floats"
)

// residualTol is the squared residual norm at which conjugate gradient
// stops early
const residualTol float64 = 1e-10

// fvpStep is the relative step size used when differentiating the
// divergence gradient by finite differences
const fvpStep float64 = 1e-5

// TrustRegionConfig configures a TrustRegion step
type TrustRegionConfig struct {
	// MaxKL is the trust region radius, the maximum divergence between
	// the old and new policies
	MaxKL float64

	// Damping is added to the diagonal of the Fisher matrix
	Damping float64

	// CGIters is the maximum number of conjugate gradient iterations
	CGIters int

	// MaxBacktracks is the number of step fractions 1, 1/2, 1/4, ...
	// tried by the line search
	MaxBacktracks int

	// AcceptRatio is the minimum ratio of actual to expected
	// improvement at which the line search accepts a step
	AcceptRatio float64
}

// DefaultTrustRegionConfig returns the default trust region
// configuration
func DefaultTrustRegionConfig() TrustRegionConfig {
	return TrustRegionConfig{
		MaxKL:         1e-2,
		Damping:       1e-1,
		CGIters:       10,
		MaxBacktracks: 10,
		AcceptRatio:   0.1,
	}
}

// Validate checks a TrustRegionConfig for errors
func (t TrustRegionConfig) Validate() error {
	if t.MaxKL <= 0 {
		return fmt.Errorf("validate: max KL must be positive")
	}
	if t.Damping < 0 {
		return fmt.Errorf("validate: damping must be non-negative")
	}
	if t.CGIters <= 0 {
		return fmt.Errorf("validate: conjugate gradient iterations must " +
			"be positive")
	}
	if t.MaxBacktracks <= 0 {
		return fmt.Errorf("validate: max backtracks must be positive")
	}
	if t.AcceptRatio < 0 {
		return fmt.Errorf("validate: accept ratio must be non-negative")
	}
	return nil
}

// Stats records the outcome of a single trust region step
type Stats struct {
	LossBefore float64
	LossAfter  float64

	// KL is the divergence between the old policy and the policy at the
	// returned parameters
	KL float64

	// StepFraction is the fraction of the full step which was accepted,
	// or 0 if the line search failed
	StepFraction float64
	Accepted     bool
}

// TrustRegion computes natural gradient steps constrained to a
// divergence trust region. The step direction is found with conjugate
// gradient on Fisher-vector products, scaled so that the quadratic
// approximation of the divergence equals MaxKL, then refined with a
// backtracking line search on the surrogate loss.
//
// See https://arxiv.org/abs/1502.05477
type TrustRegion struct {
	config TrustRegionConfig
}

// NewTrustRegion returns a new TrustRegion
func NewTrustRegion(config TrustRegionConfig) (*TrustRegion, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("newTrustRegion: %v", err)
	}
	return &TrustRegion{config: config}, nil
}

// Config returns the configuration of the TrustRegion
func (t *TrustRegion) Config() TrustRegionConfig {
	return t.config
}

// FisherVectorProduct returns the function v ↦ (F + λI)v where F is the
// Hessian of obj's divergence at θ and λ the configured damping. The
// Hessian-vector product is computed by central finite differences of
// the divergence gradient.
func (t *TrustRegion) FisherVectorProduct(obj TrustRegionObjective,
	θ []float64) VectorProduct {
	return func(v []float64) ([]float64, error) {
		if len(v) != len(θ) {
			return nil, fmt.Errorf("fisherVectorProduct: invalid vector "+
				"length \n\twant(%v)\n\thave(%v)", len(θ), len(v))
		}

		norm := floats.Norm(v, 2)
		if norm == 0 {
			return make([]float64, len(v)), nil
		}
		h := fvpStep / norm

		forward := make([]float64, len(θ))
		floats.AddScaledTo(forward, θ, h, v)
		gradForward, err := obj.KLGrad(forward)
		if err != nil {
			return nil, fmt.Errorf("fisherVectorProduct: %v", err)
		}

		backward := make([]float64, len(θ))
		floats.AddScaledTo(backward, θ, -h, v)
		gradBackward, err := obj.KLGrad(backward)
		if err != nil {
			return nil, fmt.Errorf("fisherVectorProduct: %v", err)
		}

		fvp := make([]float64, len(θ))
		floats.SubTo(fvp, gradForward, gradBackward)
		floats.Scale(1/(2*h), fvp)
		floats.AddScaled(fvp, t.config.Damping, v)
		return fvp, nil
	}
}

// Step takes a single trust region step from θ on obj and returns the
// new parameters. If the line search does not find an acceptable step
// then a copy of θ is returned with Stats.Accepted false, which is not
// an error. Non-finite quantities along the way are errors.
func (t *TrustRegion) Step(θ []float64, obj TrustRegionObjective) (
	[]float64, Stats, error) {
	var stats Stats

	loss, err := obj.Loss(θ)
	if err != nil {
		return nil, stats, fmt.Errorf("step: could not compute loss: %v", err)
	}
	if !floatutils.IsFinite(loss) {
		return nil, stats, fmt.Errorf("step: non-finite loss %v", loss)
	}
	stats.LossBefore = loss
	stats.LossAfter = loss

	grad, err := obj.LossGrad(θ)
	if err != nil {
		return nil, stats, fmt.Errorf("step: could not compute loss "+
			"gradient: %v", err)
	}
	if len(grad) != len(θ) {
		return nil, stats, fmt.Errorf("step: invalid gradient length "+
			"\n\twant(%v)\n\thave(%v)", len(θ), len(grad))
	}
	if !floatutils.AllFinite(grad) {
		return nil, stats, fmt.Errorf("step: non-finite loss gradient")
	}

	// Solve Fx = -g for the natural gradient direction
	negGrad := make([]float64, len(grad))
	floats.ScaleTo(negGrad, -1, grad)
	fvp := t.FisherVectorProduct(obj, θ)
	stepDir, err := ConjugateGradient(fvp, negGrad, t.config.CGIters,
		residualTol)
	if err != nil {
		return nil, stats, fmt.Errorf("step: %v", err)
	}

	// A zero direction means θ is already stationary
	if floats.Norm(stepDir, 2) == 0 {
		return append([]float64(nil), θ...), stats, nil
	}

	// Scale the step so that ½sᵀFs = MaxKL
	fs, err := fvp(stepDir)
	if err != nil {
		return nil, stats, fmt.Errorf("step: %v", err)
	}
	shs := 0.5 * floats.Dot(stepDir, fs)
	if !floatutils.IsFinite(shs) || shs <= 0 {
		return nil, stats, fmt.Errorf("step: invalid step curvature %v", shs)
	}
	lm := math.Sqrt(shs / t.config.MaxKL)

	fullStep := make([]float64, len(stepDir))
	floats.ScaleTo(fullStep, 1/lm, stepDir)
	expectedImproveRate := floats.Dot(negGrad, stepDir) / lm

	newθ, frac, newLoss, err := t.lineSearch(obj, θ, loss, fullStep,
		expectedImproveRate)
	if err != nil {
		return nil, stats, fmt.Errorf("step: %v", err)
	}
	if frac == 0 {
		return append([]float64(nil), θ...), stats, nil
	}

	kl, err := obj.KL(newθ)
	if err != nil {
		return nil, stats, fmt.Errorf("step: could not compute KL: %v", err)
	}
	if !floatutils.IsFinite(kl) {
		return nil, stats, fmt.Errorf("step: non-finite KL %v", kl)
	}

	stats.LossAfter = newLoss
	stats.KL = kl
	stats.StepFraction = frac
	stats.Accepted = true
	return newθ, stats, nil
}

// lineSearch backtracks along fullStep from θ, trying step fractions
// 1, 1/2, 1/4, ... It returns the first parameters whose actual
// improvement is positive and whose ratio of actual to expected
// improvement exceeds the accept ratio, along with the accepted step
// fraction and loss. A step fraction of 0 means no step was accepted.
func (t *TrustRegion) lineSearch(obj TrustRegionObjective, θ []float64,
	loss float64, fullStep []float64, expectedImproveRate float64) (
	[]float64, float64, float64, error) {
	newθ := make([]float64, len(θ))
	stepFrac := 1.0

	for n := 0; n < t.config.MaxBacktracks; n++ {
		floats.AddScaledTo(newθ, θ, stepFrac, fullStep)

		newLoss, err := obj.Loss(newθ)
		if err != nil {
			return nil, 0, 0, fmt.Errorf("lineSearch: %v", err)
		}

		if floatutils.IsFinite(newLoss) {
			actualImprove := loss - newLoss
			expectedImprove := expectedImproveRate * stepFrac
			ratio := actualImprove / expectedImprove

			if ratio > t.config.AcceptRatio && actualImprove > 0 {
				return newθ, stepFrac, newLoss, nil
			}
		}
		stepFrac *= 0.5
	}

	return θ, 0, loss, nil
}
