// Package gae implements generalized advantage estimation (GAE) over
// batches of consecutive episodes, following
// https://arxiv.org/abs/1506.02438.
package gae

import (
	"fmt"

	"github.com/samuelfneumann/arpl/utils/floatutils"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Estimate computes discounted returns and GAE(λ) advantages for a
// batch of transitions in a single backward pass. The batch may hold
// several episodes back to back; masks[i] == 0 marks step i as the last
// step of its episode, which cuts all bootstrapping from the following
// steps. With values v, masks m, discount ℽ and λ = tau:
//
//	returns[i] = r[i] + ℽ returns[i+1] m[i]
//	δ[i]       = r[i] + ℽ v[i+1] m[i] - v[i]
//	adv[i]     = δ[i] + ℽλ adv[i+1] m[i]
//
// where all quantities past the end of the batch are 0.
func Estimate(rewards, masks, values []float64, gamma, tau float64) (
	returns, advantages []float64, err error) {
	n := len(rewards)
	if len(masks) != n || len(values) != n {
		return nil, nil, fmt.Errorf("estimate: length mismatch: %v rewards, "+
			"%v masks, %v values", n, len(masks), len(values))
	}

	returns = make([]float64, n)
	advantages = make([]float64, n)

	var prevReturn, prevValue, prevAdvantage float64
	for i := n - 1; i >= 0; i-- {
		returns[i] = rewards[i] + gamma*prevReturn*masks[i]
		delta := rewards[i] + gamma*prevValue*masks[i] - values[i]
		advantages[i] = delta + gamma*tau*prevAdvantage*masks[i]

		prevReturn = returns[i]
		prevValue = values[i]
		prevAdvantage = advantages[i]
	}

	return returns, advantages, nil
}

// Normalize returns a copy of advantages standardized to sample mean 0
// and sample standard deviation 1. A *DegenerateBatchError is returned
// if there are fewer than two advantages or if their standard deviation
// is zero or non-finite.
func Normalize(advantages []float64) ([]float64, error) {
	if len(advantages) < 2 {
		return nil, &DegenerateBatchError{Op: "normalize", Err: ErrTooFewSteps}
	}

	mean, std := stat.MeanStdDev(advantages, nil)
	if !floatutils.IsFinite(mean) || !floatutils.IsFinite(std) {
		return nil, &DegenerateBatchError{Op: "normalize", Err: ErrNonFinite}
	}
	if std == 0 {
		return nil, &DegenerateBatchError{Op: "normalize", Err: ErrZeroVariance}
	}

	normalized := make([]float64, len(advantages))
	copy(normalized, advantages)
	floats.AddConst(-mean, normalized)
	floats.Scale(1/std, normalized)

	return normalized, nil
}
