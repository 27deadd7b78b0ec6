package checkpointer

// Trigger decides whether a Checkpoint should be saved after an
// iteration
type Trigger interface {
	Fire(Status) bool
	Reason() Reason
}

// nStep implements checkpointing every N iterations
type nStep struct {
	interval int
}

// NewNStep returns a Trigger that fires every n iterations. The
// Trigger never fires if n <= 0.
func NewNStep(n int) Trigger {
	return &nStep{interval: n}
}

// Fire returns whether the iteration of s is a positive multiple of the
// checkpointing interval
func (n *nStep) Fire(s Status) bool {
	return n.interval > 0 && s.Iteration > 0 && s.Iteration%n.interval == 0
}

// Reason returns the Reason a Checkpoint is saved by the Trigger
func (n *nStep) Reason() Reason {
	return Periodic
}

// stability implements checkpointing once training has stabilized
type stability struct {
	patience int
}

// NewStability returns a Trigger that fires once the average reward
// has changed by less than the convergence tolerance for at least
// patience consecutive iterations. The Trigger fires on every such
// iteration until the reward changes again.
func NewStability(patience int) Trigger {
	return &stability{patience: patience}
}

// Fire returns whether training has been stable for long enough
func (s *stability) Fire(status Status) bool {
	return s.patience > 0 && status.Early >= s.patience
}

// Reason returns the Reason a Checkpoint is saved by the Trigger
func (s *stability) Reason() Reason {
	return Stability
}
