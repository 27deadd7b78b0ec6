package tracker

import (
	"fmt"

	ts "github.com/samuelfneumann/arpl/timestep"
	"gonum.org/v1/gonum/stat"
)

// Return tracks the episodic return of the episodes run in a single
// training iteration. When an environment returns a TimeStep, this
// Tracker extracts the reward and accumulates the return of the
// current episode.
//
// Note: an episode must finish for its return to be recorded. A
// TimeStep ends an episode if its StepType is timestep.Last, so
// episodes cut off by a step limit must be marked as Last before they
// are tracked.
type Return struct {
	lastTimeStep   int
	currentReturn  float64
	episodeReturns []float64
	filename       string
}

// NewReturn creates and returns a new *Return Tracker which saves
// its data to filename
func NewReturn(filename string) *Return {
	return &Return{lastTimeStep: -1, filename: filename}
}

// Track tracks the reward seen on a timestep. When a new episode
// starts, Track detects this and accumulates the rewards of the new
// episode separately from those of previous episodes.
//
// Track returns an error if it is called for non-sequential timesteps.
func (r *Return) Track(step ts.TimeStep) error {
	if r.lastTimeStep+1 != step.Number {
		return fmt.Errorf("track: last two timesteps tracked are not "+
			"sequential: timestep %v --> timestep %v", r.lastTimeStep,
			step.Number)
	}

	r.currentReturn += step.Reward
	if !step.Last() {
		r.lastTimeStep = step.Number
		return nil
	}

	r.episodeReturns = append(r.episodeReturns, r.currentReturn)
	r.currentReturn = 0.0
	r.lastTimeStep = -1
	return nil
}

// Episodes returns the number of finished episodes tracked
func (r *Return) Episodes() int {
	return len(r.episodeReturns)
}

// Data returns a copy of the episodic returns tracked so far
func (r *Return) Data() []float64 {
	data := make([]float64, len(r.episodeReturns))
	copy(data, r.episodeReturns)
	return data
}

// Last returns the return of the most recently finished episode, or 0
// if no episode has finished
func (r *Return) Last() float64 {
	if len(r.episodeReturns) == 0 {
		return 0
	}
	return r.episodeReturns[len(r.episodeReturns)-1]
}

// Mean returns the average return over all finished episodes, or 0 if
// no episode has finished
func (r *Return) Mean() float64 {
	if len(r.episodeReturns) == 0 {
		return 0
	}
	return stat.Mean(r.episodeReturns, nil)
}

// Save saves the data tracked by the Return Tracker to disk
func (r *Return) Save() error {
	return Save(r.filename, r.episodeReturns)
}
