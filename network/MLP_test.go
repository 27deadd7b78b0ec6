package network

import (
	"encoding/json"
	"math"
	"testing"

	G "gorgonia.org/gorgonia"
)

func newTestMLP(t *testing.T, batch int) NeuralNet {
	net, err := NewMLP(3, batch, 1, G.NewGraph(), []int{4}, []bool{true},
		G.GlorotU(1.0), []*Activation{TanH()})
	if err != nil {
		t.Fatalf("newMLP: %v", err)
	}
	return net
}

func TestFlattenSetFlat(t *testing.T) {
	net := newTestMLP(t, 2)

	// 3x4 weights, 1x4 bias, 4x1 weights, 1x1 bias
	if n := NumParams(net.Learnables()); n != 21 {
		t.Fatalf("numParams: want(21) have(%v)", n)
	}

	params := make([]float64, 21)
	for i := range params {
		params[i] = 0.01 * float64(i)
	}
	if err := SetFlat(net.Learnables(), params); err != nil {
		t.Fatalf("setFlat: %v", err)
	}

	// Modifying the argument must not modify the network
	params[0] = 100
	have := Flatten(net.Learnables())
	params[0] = 0
	for i := range params {
		if have[i] != params[i] {
			t.Errorf("flatten: index %v\n\twant(%v)\n\thave(%v)", i,
				params[i], have[i])
		}
	}

	if err := SetFlat(net.Learnables(), params[:3]); err == nil {
		t.Errorf("setFlat: expected error for wrong parameter count")
	}
}

func TestCloneWithBatch(t *testing.T) {
	net := newTestMLP(t, 1)
	clone, err := net.CloneWithBatch(7)
	if err != nil {
		t.Fatalf("cloneWithBatch: %v", err)
	}

	if clone.BatchSize() != 7 {
		t.Errorf("batch size: want(7) have(%v)", clone.BatchSize())
	}
	if clone.Graph() == net.Graph() {
		t.Errorf("cloneWithBatch: clone shares the original's graph")
	}

	want, have := Flatten(net.Learnables()), Flatten(clone.Learnables())
	for i := range want {
		if want[i] != have[i] {
			t.Fatalf("cloneWithBatch: weights differ at %v", i)
		}
	}

	// Clones own their weights
	zeros := make([]float64, len(want))
	if err := SetFlat(clone.Learnables(), zeros); err != nil {
		t.Fatalf("setFlat: %v", err)
	}
	if Flatten(net.Learnables())[0] != want[0] {
		t.Errorf("setFlat: setting clone weights modified original")
	}

	if err := net.Set(clone); err != nil {
		t.Fatalf("set: %v", err)
	}
	for i, v := range Flatten(net.Learnables()) {
		if v != 0 {
			t.Fatalf("set: weight %v\n\twant(0)\n\thave(%v)", i, v)
		}
	}
}

func TestForward(t *testing.T) {
	net := newTestMLP(t, 2)
	params := make([]float64, 21)
	for i := range params {
		params[i] = math.Sin(float64(i))
	}
	if err := SetFlat(net.Learnables(), params); err != nil {
		t.Fatalf("setFlat: %v", err)
	}

	x := []float64{0.1, -0.2, 0.3, 1.0, 0.5, -1.5}
	if err := net.SetInput(x); err != nil {
		t.Fatalf("setInput: %v", err)
	}

	vm := G.NewTapeMachine(net.Graph())
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		t.Fatalf("runAll: %v", err)
	}
	have := net.Output().Data().([]float64)

	w1, b1 := params[0:12], params[12:16]
	w2, b2 := params[16:20], params[20]
	for n := 0; n < 2; n++ {
		want := b2
		for j := 0; j < 4; j++ {
			h := b1[j]
			for i := 0; i < 3; i++ {
				h += x[n*3+i] * w1[i*4+j]
			}
			want += math.Tanh(h) * w2[j]
		}
		if math.Abs(want-have[n]) > 1e-12 {
			t.Errorf("output %v:\n\twant(%v)\n\thave(%v)", n, want, have[n])
		}
	}

	if err := net.SetInput(x[:3]); err == nil {
		t.Errorf("setInput: expected error for wrong input size")
	}
}

func TestNewMLPInvalid(t *testing.T) {
	_, err := NewMLP(3, 1, 1, G.NewGraph(), []int{4, 4}, []bool{true},
		G.GlorotU(1.0), []*Activation{TanH(), TanH()})
	if err == nil {
		t.Errorf("newMLP: expected error for mismatched biases")
	}
}

func TestActivationJSON(t *testing.T) {
	for _, act := range []*Activation{TanH(), ReLU(), Identity(), Nil()} {
		data, err := json.Marshal(act)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}

		var decoded Activation
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("unmarshal %s: %v", data, err)
		}
		if decoded.String() != act.String() {
			t.Errorf("activation:\n\twant(%v)\n\thave(%v)", act, &decoded)
		}
	}

	var a Activation
	if err := json.Unmarshal([]byte(`"sigmoid"`), &a); err == nil {
		t.Errorf("unmarshal: expected error for unknown activation")
	}
}
