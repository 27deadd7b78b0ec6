package experiment

import (
	"errors"
	"math"

	"github.com/samuelfneumann/arpl/buffer/gae"
	"github.com/samuelfneumann/arpl/experiment/checkpointer"
	"github.com/samuelfneumann/arpl/utils/floatutils"
)

// ErrZeroReward reports a previous average reward of zero, relative to
// which no percentage change can be computed
var ErrZeroReward = errors.New("previous average reward is zero")

// Convergence counts the consecutive iterations in which the average
// reward changed by less than Tol percent
type Convergence struct {
	Tol      float64 // Percentage change tolerance
	Previous float64 // Average reward of the previous iteration
	Early    int     // Consecutive iterations within tolerance
}

// Update records the average reward r of an iteration and returns its
// percentage change relative to the previous average reward. The
// previous average reward is always replaced by r.
//
// If the previous average reward is zero or not finite, Early is reset
// and a *gae.DegenerateBatchError is returned.
func (c *Convergence) Update(r float64) (float64, error) {
	prev := c.Previous
	c.Previous = r

	if prev == 0 || !floatutils.IsFinite(prev) {
		c.Early = 0
		return math.NaN(), &gae.DegenerateBatchError{
			Op:  "convergence",
			Err: ErrZeroReward,
		}
	}

	pct := 100 * math.Abs(r-prev) / math.Abs(prev)
	if pct < c.Tol {
		c.Early++
	} else {
		c.Early = 0
	}
	return pct, nil
}

// TrainingState holds the state of training carried between
// iterations. It is only mutated through its methods.
type TrainingState struct {
	Iteration   int       // Index of the current iteration, starting at 1
	Rewards     []float64 // Average reward of each completed iteration
	Convergence Convergence
	Phi         float64 // Current perturbation probability
}

// NewTrainingState returns a TrainingState before the first iteration
func NewTrainingState(initialReward, tol, phi float64) *TrainingState {
	return &TrainingState{
		Convergence: Convergence{Tol: tol, Previous: initialReward},
		Phi:         phi,
	}
}

// Begin starts the next iteration and returns its index
func (s *TrainingState) Begin() int {
	s.Iteration++
	return s.Iteration
}

// Record records the average reward of the current iteration and
// returns its percentage change, see Convergence.Update
func (s *TrainingState) Record(r float64) (float64, error) {
	s.Rewards = append(s.Rewards, r)
	return s.Convergence.Update(r)
}

// RewardHistory returns a copy of the recorded average rewards
func (s *TrainingState) RewardHistory() []float64 {
	return append([]float64(nil), s.Rewards...)
}

// Status returns the checkpointing status of the current iteration
func (s *TrainingState) Status() checkpointer.Status {
	return checkpointer.Status{
		Iteration: s.Iteration,
		Early:     s.Convergence.Early,
	}
}

// Curriculum increases the perturbation probability by Step every
// Interval iterations
type Curriculum struct {
	Interval int
	Step     float64
}

// Apply increases the Phi of s if the current iteration ends a
// curriculum interval and returns whether Phi was changed. Phi is
// unbounded.
func (c Curriculum) Apply(s *TrainingState) bool {
	if c.Interval <= 0 || s.Iteration <= 0 || s.Iteration%c.Interval != 0 {
		return false
	}
	s.Phi += c.Step
	return true
}
