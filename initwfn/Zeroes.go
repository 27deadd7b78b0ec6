package initwfn

import G "gorgonia.org/gorgonia"

// ZeroesConfig describes initialization of all weights to 0
type ZeroesConfig struct{}

// NewZeroes returns a new weight initializer which sets all weights to
// zero
func NewZeroes() (*InitWFn, error) {
	return newInitWFn(ZeroesConfig{})
}

func (z ZeroesConfig) Type() Type {
	return Zeroes
}

func (z ZeroesConfig) Create() G.InitWFn {
	return G.Zeroes()
}
