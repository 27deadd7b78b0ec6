// Package experiment implements functionality for running a training
// experiment
package experiment

import (
	"context"
	"fmt"
	"log"

	"github.com/samuelfneumann/arpl/agent"
	"github.com/samuelfneumann/arpl/agent/nonlinear/continuous/arpl"
	"github.com/samuelfneumann/arpl/agent/nonlinear/continuous/trpo"
	env "github.com/samuelfneumann/arpl/environment"
	"github.com/samuelfneumann/arpl/environment/envconfig"
	"github.com/samuelfneumann/arpl/experiment/checkpointer"
)

// Experiment runs training iterations until it is stopped. Run
// returns when the experiment is finished, an iteration fails, or ctx
// is cancelled. The context is checked between iterations only.
type Experiment interface {
	Run(ctx context.Context) error
	RunIteration() (Summary, error)
	Close() error
}

// Config represents a configuration of an experiment
type Config struct {
	Seed uint64

	// BatchSize is the minimum number of environment steps collected
	// per iteration. Episodes are never cut off to meet it.
	BatchSize int

	// MaxEpisodeSteps caps the length of an episode. The last step of
	// a capped episode ends the episode.
	MaxEpisodeSteps int

	// Tol is the percentage change in average reward below which an
	// iteration counts towards convergence and InitialReward is the
	// average reward the first iteration is compared to
	Tol           float64
	InitialReward float64

	// Patience is the number of consecutive converged iterations after
	// which a stability checkpoint is saved, and CheckpointInterval is
	// the number of iterations between periodic checkpoints
	Patience           int
	CheckpointInterval int

	LogInterval   int
	MaxIterations int // 0 for no limit

	// SkipDegenerate skips the update of iterations whose batch is
	// degenerate instead of returning an error
	SkipDegenerate bool

	Checkpoint checkpointer.Config
	Env        envconfig.Config
	Agent      agent.TypedConfig
	ARPL       arpl.Config
}

// DefaultConfig returns the default configuration: a TRPO agent on
// Pendulum
func DefaultConfig() Config {
	return Config{
		Seed:               543,
		BatchSize:          15000,
		MaxEpisodeSteps:    10000,
		Tol:                2.0,
		InitialReward:      1000,
		Patience:           5,
		CheckpointInterval: 100,
		LogInterval:        1,
		Checkpoint:         checkpointer.DefaultConfig(),
		Env: envconfig.Config{
			Environment:   envconfig.Pendulum,
			EpisodeCutoff: 200,
			Discount:      1.0,
			NormalizeClip: 5.0,
		},
		Agent: agent.NewTypedConfig(trpo.DefaultConfig()),
		ARPL:  arpl.DefaultConfig(),
	}
}

// Validate checks a Config to ensure it is a valid configuration
func (c Config) Validate() error {
	if err := c.validateRun(); err != nil {
		return err
	}
	if err := c.Checkpoint.Validate(); err != nil {
		return fmt.Errorf("checkpoint: %v", err)
	}
	if err := c.Env.Validate(); err != nil {
		return fmt.Errorf("env: %v", err)
	}
	if c.Agent.Config == nil {
		return fmt.Errorf("agent: no agent configured")
	}
	if err := c.Agent.Validate(); err != nil {
		return fmt.Errorf("agent: %v", err)
	}
	if err := c.ARPL.Validate(); err != nil {
		return fmt.Errorf("arpl: %v", err)
	}
	return nil
}

// validateRun validates the settings of the iteration loop
func (c Config) validateRun() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.MaxEpisodeSteps <= 0 {
		return fmt.Errorf("max episode steps must be positive")
	}
	if c.Tol < 0 {
		return fmt.Errorf("tolerance must be non-negative")
	}
	if c.LogInterval <= 0 {
		return fmt.Errorf("log interval must be positive")
	}
	if c.MaxIterations < 0 {
		return fmt.Errorf("max iterations must be non-negative")
	}
	if c.Patience < 0 || c.CheckpointInterval < 0 {
		return fmt.Errorf("checkpoint patience and interval must be " +
			"non-negative")
	}
	return nil
}

// EnvName returns the name of the configured environment
func (c Config) EnvName() string {
	if c.Env.Name != "" {
		return c.Env.Name
	}
	return string(c.Env.Environment)
}

// CreateExp creates the environment, agent, perturber, and checkpoint
// store described by the Config and returns the experiment which
// trains the agent. Iteration logs are written to logger, as is the run
// identifier of SQLite checkpoints.
func (c Config) CreateExp(logger *log.Logger) (*Batch, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("createExp: %v", err)
	}

	e, _, err := c.Env.Create(c.Seed)
	if err != nil {
		return nil, fmt.Errorf("createExp: could not create "+
			"environment: %v", err)
	}

	a, err := c.Agent.CreateAgent(e, c.Seed)
	if err != nil {
		env.Close(e)
		return nil, fmt.Errorf("createExp: could not create agent: %v", err)
	}

	grader, ok := a.(arpl.InputGrader)
	if !ok {
		agent.Close(a)
		env.Close(e)
		return nil, fmt.Errorf("createExp: agent %v cannot compute "+
			"input gradients", c.Agent.Type)
	}
	perturber, err := arpl.New(c.ARPL, grader, c.Seed)
	if err != nil {
		agent.Close(a)
		env.Close(e)
		return nil, fmt.Errorf("createExp: %v", err)
	}

	cp, err := c.createCheckpointer()
	if err != nil {
		agent.Close(a)
		env.Close(e)
		return nil, fmt.Errorf("createExp: %v", err)
	}

	b, err := NewBatch(e, a, perturber, cp, c, logger)
	if err != nil {
		if cp != nil {
			cp.Close()
		}
		agent.Close(a)
		env.Close(e)
		return nil, fmt.Errorf("createExp: %v", err)
	}

	if cp != nil {
		if s, ok := cp.Store().(*checkpointer.SQLiteStore); ok {
			b.logger.Printf("Saving checkpoints to %v under run %v",
				c.Checkpoint.Path, s.Run())
		}
	}
	return b, nil
}

// createCheckpointer returns the Checkpointer described by the Config,
// which is nil if checkpoints should not be saved. Stability
// checkpoints take precedence over periodic checkpoints.
func (c Config) createCheckpointer() (*checkpointer.Checkpointer, error) {
	tag := checkpointer.Tag(c.ARPL.Epsilon, c.EnvName())
	store, err := c.Checkpoint.CreateStore(tag)
	if err != nil || store == nil {
		return nil, err
	}

	cp, err := checkpointer.New(
		store,
		checkpointer.NewStability(c.Patience),
		checkpointer.NewNStep(c.CheckpointInterval),
	)
	if err != nil {
		store.Close()
		return nil, err
	}
	return cp, nil
}
