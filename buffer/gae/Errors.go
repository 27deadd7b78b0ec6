package gae

import "errors"

// DegenerateBatchError reports a batch of training data from which no
// meaningful update can be computed, for example a batch whose
// advantages all have the same value.
type DegenerateBatchError struct {
	Op  string
	Err error
}

// Error satisifes the error interface
func (e *DegenerateBatchError) Error() string {
	return e.Op + ": degenerate batch: " + e.Err.Error()
}

// Unwrap returns the underlying reason the batch is degenerate
func (e *DegenerateBatchError) Unwrap() error {
	return e.Err
}

// Reasons a batch may be degenerate
var (
	ErrTooFewSteps  = errors.New("fewer than two steps")
	ErrZeroVariance = errors.New("advantages have zero variance")
	ErrNonFinite    = errors.New("non-finite advantage statistics")
)

// IsDegenerateBatch returns whether or not err, or any error it wraps,
// is a *DegenerateBatchError.
func IsDegenerateBatch(err error) bool {
	var degenerate *DegenerateBatchError
	return errors.As(err, &degenerate)
}

// IsZeroVariance returns whether or not an error reports a batch whose
// advantages all have the same value.
func IsZeroVariance(err error) bool {
	return errors.Is(err, ErrZeroVariance)
}

// IsTooFewSteps returns whether or not an error reports a batch with too
// few steps to normalize advantages.
func IsTooFewSteps(err error) bool {
	return errors.Is(err, ErrTooFewSteps)
}
