// Package trajectory implements an in-memory buffer of environment
// transitions collected over one training iteration.
package trajectory

import (
	"fmt"
)

// Step is a single stored transition. State is the state the transition
// is stored with, which may be a perturbed copy of the state the action
// was actually selected in.
type Step struct {
	State     []float64
	Action    []float64
	Mask      float64 // 0 if the transition ends an episode, 1 otherwise
	NextState []float64
	Reward    float64
}

// Batch holds all transitions of a Memory in insertion order. States,
// Actions, and NextStates are stored in row major order, one row per
// transition. Transitions of consecutive episodes are adjacent, with
// episode boundaries marked by a Mask of 0.
type Batch struct {
	States     []float64
	Actions    []float64
	Masks      []float64
	NextStates []float64
	Rewards    []float64

	ObsDims int
	ActDims int
}

// Len returns the number of transitions in the Batch
func (b Batch) Len() int {
	return len(b.Rewards)
}

// State returns the stored state of transition i
func (b Batch) State(i int) []float64 {
	return b.States[i*b.ObsDims : (i+1)*b.ObsDims]
}

// Action returns the action of transition i
func (b Batch) Action(i int) []float64 {
	return b.Actions[i*b.ActDims : (i+1)*b.ActDims]
}

// NextState returns the next state of transition i
func (b Batch) NextState(i int) []float64 {
	return b.NextStates[i*b.ObsDims : (i+1)*b.ObsDims]
}

// Memory stores transitions in the order they are pushed
type Memory struct {
	obsDims int
	actDims int

	states     []float64
	actions    []float64
	masks      []float64
	nextStates []float64
	rewards    []float64
}

// New returns a new, empty Memory for transitions with observation
// dimension obsDims and action dimension actDims.
func New(obsDims, actDims int) *Memory {
	return &Memory{obsDims: obsDims, actDims: actDims}
}

// Push stores a transition. The argument slices are copied.
func (m *Memory) Push(s Step) error {
	if len(s.State) != m.obsDims {
		return fmt.Errorf("push: illegal state length\n\twant(%v)\n\thave(%v)",
			m.obsDims, len(s.State))
	}
	if len(s.NextState) != m.obsDims {
		return fmt.Errorf("push: illegal next state length\n\twant(%v)"+
			"\n\thave(%v)", m.obsDims, len(s.NextState))
	}
	if len(s.Action) != m.actDims {
		return fmt.Errorf("push: illegal action length\n\twant(%v)"+
			"\n\thave(%v)", m.actDims, len(s.Action))
	}
	if s.Mask != 0 && s.Mask != 1 {
		return fmt.Errorf("push: mask must be 0 or 1, got %v", s.Mask)
	}

	m.states = append(m.states, s.State...)
	m.actions = append(m.actions, s.Action...)
	m.masks = append(m.masks, s.Mask)
	m.nextStates = append(m.nextStates, s.NextState...)
	m.rewards = append(m.rewards, s.Reward)
	return nil
}

// Len returns the number of stored transitions
func (m *Memory) Len() int {
	return len(m.rewards)
}

// Sample returns all stored transitions as a Batch. The returned Batch
// does not share memory with the Memory.
func (m *Memory) Sample() Batch {
	return Batch{
		States:     clone(m.states),
		Actions:    clone(m.actions),
		Masks:      clone(m.masks),
		NextStates: clone(m.nextStates),
		Rewards:    clone(m.rewards),
		ObsDims:    m.obsDims,
		ActDims:    m.actDims,
	}
}

// Clear removes all stored transitions
func (m *Memory) Clear() {
	m.states = m.states[:0]
	m.actions = m.actions[:0]
	m.masks = m.masks[:0]
	m.nextStates = m.nextStates[:0]
	m.rewards = m.rewards[:0]
}

func clone(x []float64) []float64 {
	c := make([]float64, len(x))
	copy(c, x)
	return c
}
