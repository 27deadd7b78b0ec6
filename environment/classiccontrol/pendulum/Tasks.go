package pendulum

import (
	"math"

	"github.com/samuelfneumann/arpl/environment"
	"gonum.org/v1/gonum/mat"
)

// SwingUp implements a task where the agent must swing the pendulum up
// and hold it in a vertical position. Rewards are the negative cost
//
//	θ² + 0.1 θ̇² + 0.001 u²
//
// where θ is measured from the positive y-axis and u is the applied
// torque. The best reward of 0 is attained by holding the pendulum
// upright and motionless.
type SwingUp struct {
	environment.Starter
	environment.Ender
}

// NewSwingUp creates and returns a new SwingUp task
func NewSwingUp(s environment.Starter, maxSteps int) *SwingUp {
	ender := environment.NewStepLimit(maxSteps)
	return &SwingUp{s, ender}
}

// GetReward returns the reward for taking action in state
func (s *SwingUp) GetReward(state, action, _ mat.Vector) float64 {
	th, thdot := state.AtVec(0), state.AtVec(1)
	torque := action.AtVec(0)
	return -(th*th + 0.1*thdot*thdot + 0.001*torque*torque)
}

// Min returns the minimum possible reward
func (s *SwingUp) Min() float64 {
	return -(math.Pow(AngleBound, 2) + 0.1*math.Pow(SpeedBound, 2) +
		0.001*math.Pow(TorqueBound, 2))
}

// Max returns the maximum possible reward
func (s *SwingUp) Max() float64 {
	return 0.0
}

// RewardSpec returns the reward specification of the Task
func (s *SwingUp) RewardSpec() environment.Spec {
	shape := mat.NewVecDense(1, nil)
	lowerBound := mat.NewVecDense(1, []float64{s.Min()})
	upperBound := mat.NewVecDense(1, []float64{s.Max()})

	return environment.NewSpec(shape, environment.Reward, lowerBound,
		upperBound, environment.Continuous)
}
