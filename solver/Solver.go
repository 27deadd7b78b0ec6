// Package solver implements the second order optimizers used to train
// policies and value functions: a trust-region natural gradient step
// and a configurable L-BFGS minimizer.
package solver

// TrustRegionObjective is a differentiable surrogate loss paired with a
// divergence between the policy at some flat parameter vector θ and
// the fixed policy which the objective was constructed with.
//
// The divergence and its gradient must be zero at the parameters the
// objective was constructed with.
type TrustRegionObjective interface {
	Loss(θ []float64) (float64, error)
	LossGrad(θ []float64) ([]float64, error)
	KL(θ []float64) (float64, error)
	KLGrad(θ []float64) ([]float64, error)
}

// VectorProduct computes the product of some implicit matrix with a
// vector
type VectorProduct func(v []float64) ([]float64, error)
