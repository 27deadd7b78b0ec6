package trpo

import (
	"fmt"

	"github.com/samuelfneumann/arpl/agent"
	env "github.com/samuelfneumann/arpl/environment"
	"github.com/samuelfneumann/arpl/initwfn"
	"github.com/samuelfneumann/arpl/network"
	"github.com/samuelfneumann/arpl/solver"
)

func init() {
	// Register Config type so that it can be typed using
	// agent.TypedConfig to help with serialization/deserialization.
	agent.Register(agent.TRPOGaussianMLP, Config{})
}

// Config implements a configuration of a TRPO agent with a Gaussian
// MLP policy and an MLP state value function. Both networks share the
// same hidden layer architecture.
type Config struct {
	// Neural net architecture
	Hidden     []int
	Activation *network.Activation
	InitWFn    *initwfn.InitWFn

	// Generalized Advantage Estimation
	Gamma float64
	Tau   float64

	// Value function fitting: L2 regularization and the maximum number
	// of L-BFGS iterations per update
	L2Reg      float64
	ValueIters int

	TrustRegion solver.TrustRegionConfig

	// InitLogStd is the initial log standard deviation of each action
	// dimension
	InitLogStd float64
}

// DefaultConfig returns the default TRPO configuration
func DefaultConfig() Config {
	return Config{
		Hidden:      []int{64, 64},
		Activation:  network.TanH(),
		InitWFn:     initwfn.NewDefault(),
		Gamma:       0.995,
		Tau:         0.97,
		L2Reg:       1e-3,
		ValueIters:  25,
		TrustRegion: solver.DefaultTrustRegionConfig(),
		InitLogStd:  0,
	}
}

// CreateAgent creates and returns the agent determined by the
// configuration
func (c Config) CreateAgent(e env.Environment, seed uint64) (agent.Agent,
	error) {
	return New(e, c, seed)
}

// Type returns the type of the configuration
func (c Config) Type() agent.Type {
	return agent.TRPOGaussianMLP
}

// Validate checks a Config for errors
func (c Config) Validate() error {
	for _, h := range c.Hidden {
		if h <= 0 {
			return fmt.Errorf("validate: hidden layer sizes must be positive")
		}
	}
	if c.Activation == nil {
		return fmt.Errorf("validate: no activation specified")
	}
	if c.InitWFn == nil {
		return fmt.Errorf("validate: no weight initializer specified")
	}
	if c.Gamma < 0 || c.Gamma > 1 {
		return fmt.Errorf("validate: gamma must be in [0, 1], have %v",
			c.Gamma)
	}
	if c.Tau < 0 || c.Tau > 1 {
		return fmt.Errorf("validate: tau must be in [0, 1], have %v", c.Tau)
	}
	if c.L2Reg < 0 {
		return fmt.Errorf("validate: l2 regularization must be non-negative")
	}
	if err := (solver.LBFGSConfig{Iterations: c.ValueIters}).Validate(); err != nil {
		return fmt.Errorf("validate: value solver: %v", err)
	}
	if err := c.TrustRegion.Validate(); err != nil {
		return fmt.Errorf("validate: trust region: %v", err)
	}
	return nil
}

// biases returns whether each hidden layer has a bias unit
func (c Config) biases() []bool {
	biases := make([]bool, len(c.Hidden))
	for i := range biases {
		biases[i] = true
	}
	return biases
}

// activations returns the activation of each hidden layer
func (c Config) activations() []*network.Activation {
	acts := make([]*network.Activation, len(c.Hidden))
	for i := range acts {
		acts[i] = c.Activation
	}
	return acts
}
