package solver

import (
	"errors"
	"fmt"

	"github.com/samuelfneumann/arpl/utils/floatutils"
	"gonum.org/v1/gonum/optimize"
)

// LBFGSConfig configures an LBFGS minimizer
type LBFGSConfig struct {
	// Iterations is the maximum number of major iterations
	Iterations int

	// Store is the size of the limited memory history. If 0, gonum's
	// default is used.
	Store int
}

// Validate checks an LBFGSConfig for errors
func (l LBFGSConfig) Validate() error {
	if l.Iterations <= 0 {
		return fmt.Errorf("validate: iterations must be positive")
	}
	if l.Store < 0 {
		return fmt.Errorf("validate: store must be non-negative")
	}
	return nil
}

// LBFGS minimizes functions of flat parameter vectors with a limited
// memory BFGS method
type LBFGS struct {
	config LBFGSConfig
}

// NewLBFGS returns a new LBFGS minimizer
func NewLBFGS(config LBFGSConfig) (*LBFGS, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("newLBFGS: %v", err)
	}
	return &LBFGS{config: config}, nil
}

// Settings returns the gonum optimization settings of the minimizer
func (l *LBFGS) Settings() *optimize.Settings {
	return &optimize.Settings{
		MajorIterations: l.config.Iterations,
	}
}

// Method returns a new gonum LBFGS method
func (l *LBFGS) Method() optimize.Method {
	return &optimize.LBFGS{Store: l.config.Store}
}

// Minimize minimizes p starting from x0 and returns the best location
// found along with its function value.
//
// Gonum reports line search breakdowns close to a minimum as errors.
// These are not treated as failures as long as a finite location was
// found. Errors reported through p.Status are always returned.
func (l *LBFGS) Minimize(p optimize.Problem, x0 []float64) ([]float64,
	float64, error) {
	result, err := optimize.Minimize(p, x0, l.Settings(), l.Method())
	if result == nil {
		return nil, 0, fmt.Errorf("minimize: %v", err)
	}
	if err != nil && !lineSearchBreakdown(err) {
		return nil, 0, fmt.Errorf("minimize: %w", err)
	}
	if !floatutils.IsFinite(result.F) || !floatutils.AllFinite(result.X) {
		return nil, 0, fmt.Errorf("minimize: non-finite result (%v)", err)
	}

	return result.X, result.F, nil
}

// lineSearchBreakdown returns whether err signals that the line search
// could not make further progress
func lineSearchBreakdown(err error) bool {
	return errors.Is(err, optimize.ErrLinesearcherFailure) ||
		errors.Is(err, optimize.ErrNoProgress)
}
