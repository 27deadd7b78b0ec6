// Package envconfig provides configuration structs for configuring
// environments with default physical parameters and tasks. Environment
// configurations in this package are JSON serializable.
package envconfig

import (
	"fmt"
	"sort"
	"sync"

	env "github.com/samuelfneumann/arpl/environment"
	"github.com/samuelfneumann/arpl/environment/classiccontrol/pendulum"
	"github.com/samuelfneumann/arpl/environment/wrappers"
	ts "github.com/samuelfneumann/arpl/timestep"
	"gonum.org/v1/gonum/spatial/r1"
)

// EnvName stores the name of environments that can be configured with
// this package
type EnvName string

// Environments available for configuration. Gym environments are only
// available when built with the gym build tag.
const (
	Pendulum EnvName = "Pendulum"
	Gym      EnvName = "Gym"
)

// Creator constructs the environment described by a Config
type Creator func(c Config, seed uint64) (env.Environment, ts.TimeStep,
	error)

var (
	registryMu sync.RWMutex
	registry   = map[EnvName]Creator{}
)

func init() {
	Register(Pendulum, CreatePendulum)
}

// Register registers a Creator for an environment name so that Configs
// can construct the environment. Register panics if the name is already
// registered.
func Register(name EnvName, c Creator) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, ok := registry[name]; ok {
		panic(fmt.Sprintf("register: environment %v already registered",
			name))
	}
	registry[name] = c
}

// Registered returns the names of all registered environments
func Registered() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, string(name))
	}
	sort.Strings(names)
	return names
}

// Config implements a specific configuration of a specific environment
type Config struct {
	Environment EnvName

	// Name is the name of the environment within its suite, e.g.
	// "Hopper-v2" for Gym environments
	Name string

	// EpisodeCutoff is the episode step limit, 0 for no limit
	EpisodeCutoff int
	Discount      float64

	// NormalizeClip is the clipping bound for normalized observations.
	// Observations are not normalized if NormalizeClip <= 0.
	NormalizeClip float64
}

// Validate checks a Config to ensure it is a valid configuration
func (c Config) Validate() error {
	registryMu.RLock()
	_, ok := registry[c.Environment]
	registryMu.RUnlock()
	if !ok {
		return fmt.Errorf("no such environment %v, registered environments "+
			"are %v", c.Environment, Registered())
	}
	if c.EpisodeCutoff < 0 {
		return fmt.Errorf("episode cutoff must be non-negative")
	}
	if c.Discount < 0 || c.Discount > 1 {
		return fmt.Errorf("discount must be in [0, 1]")
	}
	return nil
}

// Create returns the environment described by the Config as well as
// the first timestep of the environment. If configured, the environment
// is wrapped to normalize observations. The first timestep does not
// contribute to the normalization statistics.
func (c Config) Create(seed uint64) (env.Environment, ts.TimeStep, error) {
	if err := c.Validate(); err != nil {
		return nil, ts.TimeStep{}, fmt.Errorf("create: %v", err)
	}

	registryMu.RLock()
	create := registry[c.Environment]
	registryMu.RUnlock()

	e, step, err := create(c, seed)
	if err != nil {
		return nil, ts.TimeStep{}, fmt.Errorf("create: could not create "+
			"environment %v: %v", c.Environment, err)
	}

	if c.NormalizeClip > 0 {
		norm := wrappers.NewNormalize(e, c.NormalizeClip)
		step, err = norm.Normalized(step)
		if err != nil {
			return nil, ts.TimeStep{}, fmt.Errorf("create: %v", err)
		}
		e = norm
	}
	return e, step, nil
}

// CreatePendulum is a factory for creating the Pendulum environment
// with default physical parameters and the SwingUp task.
func CreatePendulum(c Config, seed uint64) (env.Environment, ts.TimeStep,
	error) {
	angle := r1.Interval{Min: -pendulum.AngleBound, Max: pendulum.AngleBound}
	speed := r1.Interval{Min: -1.0, Max: 1.0}

	s := env.NewUniformStarter([]r1.Interval{angle, speed}, seed)
	task := pendulum.NewSwingUp(s, c.EpisodeCutoff)

	return pendulum.NewContinuous(task, c.Discount)
}
