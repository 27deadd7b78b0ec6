package policy

import (
	"math"
	"testing"

	"github.com/samuelfneumann/arpl/environment"
	"github.com/samuelfneumann/arpl/environment/classiccontrol/pendulum"
	"github.com/samuelfneumann/arpl/network"
	ts "github.com/samuelfneumann/arpl/timestep"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"
	G "gorgonia.org/gorgonia"
)

func newTestPolicy(t *testing.T, batch int) *GaussianMLP {
	angle := r1.Interval{Min: -pendulum.AngleBound, Max: pendulum.AngleBound}
	speed := r1.Interval{Min: -1.0, Max: 1.0}
	s := environment.NewUniformStarter([]r1.Interval{angle, speed}, 1)
	env, _, err := pendulum.NewContinuous(pendulum.NewSwingUp(s, 100), 0.99)
	if err != nil {
		t.Fatalf("newContinuous: %v", err)
	}

	pol, err := NewGaussianMLP(env, batch, []int{4}, []bool{true},
		[]*network.Activation{network.TanH()}, G.GlorotU(1.0), -0.5, 7)
	if err != nil {
		t.Fatalf("newGaussianMLP: %v", err)
	}
	return pol
}

// meanOf computes the policy mean in state s on a single state clone
func meanOf(t *testing.T, p *GaussianMLP, s []float64) []float64 {
	clone, err := p.CloneWithBatch(1)
	if err != nil {
		t.Fatalf("cloneWithBatch: %v", err)
	}
	vm := G.NewTapeMachine(clone.Graph())
	defer vm.Close()

	if err := clone.Network().SetInput(s); err != nil {
		t.Fatalf("setInput: %v", err)
	}
	if err := vm.RunAll(); err != nil {
		t.Fatalf("runAll: %v", err)
	}
	return append([]float64(nil), clone.meanVal.Data().([]float64)...)
}

func TestNewGaussianMLP(t *testing.T) {
	pol := newTestPolicy(t, 1)

	// 2 features, 4 hidden units, 1 action, and 1 log std
	if n := pol.NumParams(); n != 18 {
		t.Fatalf("numParams:\n\twant(18)\n\thave(%v)", n)
	}

	params := pol.Params()
	if params[16] != 0 {
		t.Errorf("output bias:\n\twant(0)\n\thave(%v)", params[16])
	}
	if params[17] != -0.5 {
		t.Errorf("log std:\n\twant(-0.5)\n\thave(%v)", params[17])
	}
}

func TestSelectAction(t *testing.T) {
	pol := newTestPolicy(t, 1)
	defer pol.Close()

	obs := mat.NewVecDense(2, []float64{1, 0.5})
	step := ts.New(ts.First, 0, 1, obs, 0)
	for i := 0; i < 5; i++ {
		action, err := pol.SelectAction(step)
		if err != nil {
			t.Fatalf("selectAction: %v", err)
		}
		if action.Len() != 1 {
			t.Fatalf("selectAction: action length\n\twant(1)\n\thave(%v)",
				action.Len())
		}
	}

	batch := newTestPolicy(t, 3)
	if _, err := batch.SelectAction(step); err == nil {
		t.Errorf("selectAction: expected error for batch policy")
	}
}

func TestLogPdfOf(t *testing.T) {
	pol := newTestPolicy(t, 2)
	params := make([]float64, pol.NumParams())
	for i := range params {
		params[i] = 0.1 * math.Cos(float64(i))
	}
	params[len(params)-1] = 0.3
	if err := pol.SetParams(params); err != nil {
		t.Fatalf("setParams: %v", err)
	}

	states := []float64{1, 0.5, -0.2, -1}
	actions := []float64{0.25, -1.5}
	if _, err := pol.LogPdfOf(states, actions); err != nil {
		t.Fatalf("logPdfOf: %v", err)
	}
	vm := G.NewTapeMachine(pol.Graph())
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		t.Fatalf("runAll: %v", err)
	}

	have := pol.LogPdfVal().Data().([]float64)
	mean := pol.meanVal.Data().([]float64)
	std := math.Exp(0.3)
	for i := range actions {
		z := (actions[i] - mean[i]) / std
		want := -0.5*z*z - 0.3 - 0.5*math.Log(2*math.Pi)
		if math.Abs(want-have[i]) > 1e-10 {
			t.Errorf("logPdf %v:\n\twant(%v)\n\thave(%v)", i, want, have[i])
		}
	}

	if _, err := pol.LogPdfOf(states, actions[:1]); err == nil {
		t.Errorf("logPdfOf: expected error for wrong number of actions")
	}
}

func TestCloneWithBatch(t *testing.T) {
	pol := newTestPolicy(t, 1)
	clone, err := pol.CloneWithBatch(5)
	if err != nil {
		t.Fatalf("cloneWithBatch: %v", err)
	}
	if clone.BatchSize() != 5 {
		t.Errorf("batch size:\n\twant(5)\n\thave(%v)", clone.BatchSize())
	}
	if !floats.Equal(pol.Params(), clone.Params()) {
		t.Errorf("cloneWithBatch: parameters differ")
	}

	zeros := make([]float64, clone.NumParams())
	if err := clone.SetParams(zeros); err != nil {
		t.Fatalf("setParams: %v", err)
	}
	if floats.Equal(pol.Params(), zeros) {
		t.Errorf("setParams: setting clone parameters modified original")
	}
}

func TestInputGrad(t *testing.T) {
	pol := newTestPolicy(t, 1)
	defer pol.Close()
	params := make([]float64, pol.NumParams())
	for i := range params {
		params[i] = 0.5 * math.Sin(float64(i)+1)
	}
	if err := pol.SetParams(params); err != nil {
		t.Fatalf("setParams: %v", err)
	}

	state := []float64{0.3, -0.4}
	have, err := pol.InputGrad(state)
	if err != nil {
		t.Fatalf("inputGrad: %v", err)
	}

	const h = 1e-6
	for i := range state {
		forward := append([]float64(nil), state...)
		forward[i] += h
		backward := append([]float64(nil), state...)
		backward[i] -= h

		want := (floats.Norm(meanOf(t, pol, forward), 2) -
			floats.Norm(meanOf(t, pol, backward), 2)) / (2 * h)
		if math.Abs(want-have[i]) > 1e-6 {
			t.Errorf("inputGrad %v:\n\twant(%v)\n\thave(%v)", i, want, have[i])
		}
	}

	// Gradients track parameter changes
	for i := range params {
		params[i] *= -1
	}
	if err := pol.SetParams(params); err != nil {
		t.Fatalf("setParams: %v", err)
	}
	changed, err := pol.InputGrad(state)
	if err != nil {
		t.Fatalf("inputGrad: %v", err)
	}
	if floats.Equal(changed, have) {
		t.Errorf("inputGrad: gradient did not use updated parameters")
	}

	if _, err := pol.InputGrad(state[:1]); err == nil {
		t.Errorf("inputGrad: expected error for wrong state length")
	}
}
