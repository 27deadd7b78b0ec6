package tracker

import (
	ts "github.com/samuelfneumann/arpl/timestep"
	"gonum.org/v1/gonum/stat"
)

// EpisodeLength tracks and saves the lengths of episodes.
// Note that an episode must finish for this Tracker to record its
// length.
type EpisodeLength struct {
	episodeLengths []float64
	filename       string
}

// NewEpisodeLength returns a new EpisodeLength Tracker which will save
// its data at the specified location filename
func NewEpisodeLength(filename string) *EpisodeLength {
	return &EpisodeLength{filename: filename}
}

// Track caches the episode length if the timestep passed to it is the
// last timestep in the episode
func (e *EpisodeLength) Track(t ts.TimeStep) error {
	if t.Last() {
		e.episodeLengths = append(e.episodeLengths, float64(t.Number))
	}
	return nil
}

// Mean returns the average length of all finished episodes
func (e *EpisodeLength) Mean() float64 {
	if len(e.episodeLengths) == 0 {
		return 0
	}
	return stat.Mean(e.episodeLengths, nil)
}

// Save saves the data tracked by the EpisodeLength Tracker to disk
func (e *EpisodeLength) Save() error {
	return Save(e.filename, e.episodeLengths)
}
