package arpl

import (
	"fmt"

	"github.com/samuelfneumann/arpl/utils/floatutils"
)

// Config configures adversarial state perturbations and their
// curriculum
type Config struct {
	// Phi is the initial probability of perturbing a stored state
	Phi float64

	// Epsilon scales the perturbation gradient
	Epsilon float64

	// CurriculumInterval is the number of iterations between increases
	// of Phi. Values <= 0 disable the curriculum.
	CurriculumInterval int

	// CurriculumStep is the amount Phi is increased by
	CurriculumStep float64
}

// DefaultConfig returns the default perturbation configuration
func DefaultConfig() Config {
	return Config{
		Phi:                0.1,
		Epsilon:            0.0,
		CurriculumInterval: 50,
		CurriculumStep:     0.005,
	}
}

// Validate checks a Config for errors
func (c Config) Validate() error {
	if c.Phi < 0 || !floatutils.IsFinite(c.Phi) {
		return fmt.Errorf("validate: phi must be non-negative, have %v", c.Phi)
	}
	if !floatutils.IsFinite(c.Epsilon) {
		return fmt.Errorf("validate: epsilon must be finite")
	}
	if c.CurriculumStep < 0 || !floatutils.IsFinite(c.CurriculumStep) {
		return fmt.Errorf("validate: curriculum step must be non-negative")
	}
	return nil
}
