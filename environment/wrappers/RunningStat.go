package wrappers

import (
	"fmt"
	"math"
)

// RunningStat tracks the running mean and variance of a stream of
// vectors using Welford's algorithm.
type RunningStat struct {
	n    int
	mean []float64
	s    []float64
}

// NewRunningStat returns a new RunningStat over vectors of length dims
func NewRunningStat(dims int) *RunningStat {
	return &RunningStat{
		mean: make([]float64, dims),
		s:    make([]float64, dims),
	}
}

// Push adds x to the statistics
func (r *RunningStat) Push(x []float64) error {
	if len(x) != len(r.mean) {
		return fmt.Errorf("push: invalid vector length\n\twant(%v)\n\thave(%v)",
			len(r.mean), len(x))
	}

	r.n++
	if r.n == 1 {
		copy(r.mean, x)
		return nil
	}

	for i := range x {
		oldMean := r.mean[i]
		r.mean[i] = oldMean + (x[i]-oldMean)/float64(r.n)
		r.s[i] += (x[i] - oldMean) * (x[i] - r.mean[i])
	}
	return nil
}

// N returns the number of vectors pushed
func (r *RunningStat) N() int {
	return r.n
}

// Mean returns a copy of the running mean
func (r *RunningStat) Mean() []float64 {
	mean := make([]float64, len(r.mean))
	copy(mean, r.mean)
	return mean
}

// Var returns the unbiased running variance. With a single sample the
// squared mean is returned.
func (r *RunningStat) Var() []float64 {
	v := make([]float64, len(r.mean))
	for i := range v {
		if r.n > 1 {
			v[i] = r.s[i] / float64(r.n-1)
		} else {
			v[i] = r.mean[i] * r.mean[i]
		}
	}
	return v
}

// Std returns the running standard deviation
func (r *RunningStat) Std() []float64 {
	std := r.Var()
	for i := range std {
		std[i] = math.Sqrt(std[i])
	}
	return std
}
