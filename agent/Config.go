package agent

import (
	"github.com/samuelfneumann/arpl/environment"
)

// Config represents a configuration for creating an agent
type Config interface {
	// CreateAgent creates the agent that the config describes
	CreateAgent(env environment.Environment, seed uint64) (Agent, error)

	// Type returns the type of agent created by the Config
	Type() Type

	// Validate returns an error describing whether or not the
	// configuration is valid or not.
	Validate() error
}

// Type represents a specific type of an agent Config.
// Config's with this type can create Agents of the corresponding type.
type Type string

const (
	// TRPOGaussianMLP is a trust region policy optimization agent
	// with a Gaussian MLP policy
	TRPOGaussianMLP Type = "TRPO-GaussianMLP"
)
