package wrappers

import (
	"math"
	"testing"

	"github.com/samuelfneumann/arpl/environment"
	"github.com/samuelfneumann/arpl/timestep"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// sequenceEnv returns a fixed sequence of observations, one per step
type sequenceEnv struct {
	obs  [][]float64
	i    int
	curr timestep.TimeStep
}

func (s *sequenceEnv) Reset() (timestep.TimeStep, error) {
	s.i = 0
	s.curr = timestep.New(timestep.First, 0, 1, mat.NewVecDense(2, s.obs[0]), 0)
	return s.curr, nil
}

func (s *sequenceEnv) Step(*mat.VecDense) (timestep.TimeStep, bool, error) {
	s.i++
	s.curr = timestep.New(timestep.Mid, 1, 1, mat.NewVecDense(2, s.obs[s.i]),
		s.i)
	return s.curr, false, nil
}

func (s *sequenceEnv) CurrentTimeStep() timestep.TimeStep { return s.curr }

func (s *sequenceEnv) spec(t environment.SpecType) environment.Spec {
	v := mat.NewVecDense(2, nil)
	return environment.NewSpec(v, t, v, v, environment.Continuous)
}

func (s *sequenceEnv) DiscountSpec() environment.Spec {
	return s.spec(environment.Discount)
}

func (s *sequenceEnv) ObservationSpec() environment.Spec {
	return s.spec(environment.Observation)
}

func (s *sequenceEnv) ActionSpec() environment.Spec {
	return s.spec(environment.Action)
}

func TestRunningStat(t *testing.T) {
	data := [][]float64{{1, -2}, {3, 0}, {4, 8}, {-6, 1}, {2.5, 2.5}}
	r := NewRunningStat(2)

	for _, x := range data {
		if err := r.Push(x); err != nil {
			t.Fatalf("push: %v", err)
		}
	}

	for j := 0; j < 2; j++ {
		col := make([]float64, len(data))
		for i := range data {
			col[i] = data[i][j]
		}
		wantMean, wantStd := stat.MeanStdDev(col, nil)

		if have := r.Mean()[j]; math.Abs(have-wantMean) > 1e-12 {
			t.Errorf("mean[%v]:\n\twant(%v)\n\thave(%v)", j, wantMean, have)
		}
		if have := r.Std()[j]; math.Abs(have-wantStd) > 1e-12 {
			t.Errorf("std[%v]:\n\twant(%v)\n\thave(%v)", j, wantStd, have)
		}
	}

	if err := r.Push([]float64{1}); err == nil {
		t.Errorf("push: expected error for invalid vector length")
	}
}

func TestRunningStatSingleSample(t *testing.T) {
	r := NewRunningStat(1)
	r.Push([]float64{-3})
	if v := r.Var()[0]; v != 9 {
		t.Errorf("var: want(9) have(%v)", v)
	}
}

func TestNormalize(t *testing.T) {
	env := &sequenceEnv{obs: [][]float64{{0, 0}, {10, 1}, {20, 2}, {1e6, 3}}}
	norm := NewNormalize(env, 1)

	first, err := norm.Reset()
	if err != nil {
		t.Fatalf("reset: %v", err)
	}

	// A single sample normalizes to 0 since it equals the running mean
	for i := 0; i < 2; i++ {
		if v := first.Observation.AtVec(i); v != 0 {
			t.Errorf("reset: feature %v\n\twant(0)\n\thave(%v)", i, v)
		}
	}

	step, _, err := norm.Step(nil)
	if err != nil {
		t.Fatalf("step: %v", err)
	}

	// Running mean is (5, 0.5) and std is (√50, √0.5)
	want := []float64{5 / (math.Sqrt(50) + stdOffset),
		0.5 / (math.Sqrt(0.5) + stdOffset)}
	for i := range want {
		if v := step.Observation.AtVec(i); math.Abs(v-want[i]) > 1e-9 {
			t.Errorf("step: feature %v\n\twant(%v)\n\thave(%v)", i, want[i], v)
		}
	}

	norm.Step(nil)
	step, _, _ = norm.Step(nil)
	if v := step.Observation.AtVec(0); v != 1 {
		t.Errorf("step: outlier should be clipped\n\twant(1)\n\thave(%v)", v)
	}
	if norm.Stat().N() != 4 {
		t.Errorf("stat: want(4) samples have(%v)", norm.Stat().N())
	}

	// The wrapped environment's observations are never modified
	if v := env.CurrentTimeStep().Observation.AtVec(0); v != 1e6 {
		t.Errorf("step: wrapped observation modified, have(%v)", v)
	}
}

func TestNormalizedLeavesStatistics(t *testing.T) {
	env := &sequenceEnv{obs: [][]float64{{0, 0}, {10, 1}}}
	norm := NewNormalize(env, 0)

	if _, err := norm.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if _, _, err := norm.Step(nil); err != nil {
		t.Fatalf("step: %v", err)
	}

	raw := timestep.New(timestep.First, 0, 1,
		mat.NewVecDense(2, []float64{20, 2}), 0)
	step, err := norm.Normalized(raw)
	if err != nil {
		t.Fatalf("normalized: %v", err)
	}

	if norm.Stat().N() != 2 {
		t.Errorf("stat:\n\twant(2)\n\thave(%v)", norm.Stat().N())
	}

	// Running mean is (5, 0.5) and std is (√50, √0.5)
	want := []float64{15 / (math.Sqrt(50) + stdOffset),
		1.5 / (math.Sqrt(0.5) + stdOffset)}
	for i := range want {
		if v := step.Observation.AtVec(i); math.Abs(v-want[i]) > 1e-9 {
			t.Errorf("normalized: feature %v\n\twant(%v)\n\thave(%v)", i,
				want[i], v)
		}
	}
	if v := raw.Observation.AtVec(0); v != 20 {
		t.Errorf("normalized: argument modified, have(%v)", v)
	}
}
