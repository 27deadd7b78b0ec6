package initwfn

import (
	"fmt"

	G "gorgonia.org/gorgonia"
)

// GlorotUConfig implements a configuration of the Glorot Uniform
// initialization algorithm.
type GlorotUConfig struct {
	Gain float64
}

// NewGlorotU returns a new Glorot Uniform weight initializer
func NewGlorotU(gain float64) (*InitWFn, error) {
	if gain <= 0 {
		return nil, fmt.Errorf("newGlorotU: gain must be positive")
	}
	return newInitWFn(GlorotUConfig{Gain: gain})
}

// NewDefault returns the default weight initializer, Glorot Uniform
// with unit gain
func NewDefault() *InitWFn {
	init, err := NewGlorotU(1.0)
	if err != nil {
		panic(err)
	}
	return init
}

func (g GlorotUConfig) Type() Type {
	return GlorotU
}

// Create returns the weight initialization algorithm as a Gorgonia
// InitWFn
func (g GlorotUConfig) Create() G.InitWFn {
	return G.GlorotU(g.Gain)
}

// GlorotNConfig implements a configuration of the Glorot Normal
// initialization algorithm.
type GlorotNConfig struct {
	Gain float64
}

// NewGlorotN returns a new Glorot Normal weight initializer.
func NewGlorotN(gain float64) (*InitWFn, error) {
	if gain <= 0 {
		return nil, fmt.Errorf("newGlorotN: gain must be positive")
	}
	return newInitWFn(GlorotNConfig{Gain: gain})
}

func (g GlorotNConfig) Type() Type {
	return GlorotN
}

func (g GlorotNConfig) Create() G.InitWFn {
	return G.GlorotN(g.Gain)
}
