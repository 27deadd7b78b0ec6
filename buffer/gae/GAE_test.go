package gae

import (
	"fmt"
	"math"
	"testing"

	"gonum.org/v1/gonum/stat"
)

const tolerance = 1e-10

func equal(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Abs(a[i]-b[i]) > tolerance {
			return false
		}
	}
	return true
}

func TestEstimateReturns(t *testing.T) {
	rewards := []float64{1, 1, 1}
	masks := []float64{1, 1, 0}
	values := []float64{0, 0, 0}

	returns, advantages, err := Estimate(rewards, masks, values, 1.0, 1.0)
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}

	want := []float64{3, 2, 1}
	if !equal(returns, want) {
		t.Errorf("returns:\n\twant(%v)\n\thave(%v)", want, returns)
	}

	// With zero values and γ = λ = 1, advantages equal returns
	if !equal(advantages, want) {
		t.Errorf("advantages:\n\twant(%v)\n\thave(%v)", want, advantages)
	}
}

func TestEstimateBoundaryReset(t *testing.T) {
	// Two episodes: [r0, r1] then [r2, r3, r4], boundary at index 1
	rewards := []float64{1, 2, 3, 4, 5}
	masks := []float64{1, 0, 1, 1, 0}
	values := []float64{0.5, -1, 2, 0.25, 3}
	gamma, tau := 0.9, 0.8

	returns, advantages, err := Estimate(rewards, masks, values, gamma, tau)
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}

	// The terminal step of the first episode uses no bootstrap
	if returns[1] != rewards[1] {
		t.Errorf("boundary return:\n\twant(%v)\n\thave(%v)", rewards[1],
			returns[1])
	}
	if want := rewards[1] - values[1]; advantages[1] != want {
		t.Errorf("boundary advantage:\n\twant(%v)\n\thave(%v)", want,
			advantages[1])
	}

	// The first episode is unaffected by anything after the boundary
	r2, a2, _ := Estimate(rewards[:2], masks[:2], values[:2], gamma, tau)
	if !equal(returns[:2], r2) || !equal(advantages[:2], a2) {
		t.Errorf("first episode influenced by second episode")
	}

	// Changing the second episode's data leaves the first unchanged
	changed := []float64{1, 2, 300, -400, 500}
	r3, a3, _ := Estimate(changed, masks, []float64{0.5, -1, 9, 9, 9},
		gamma, tau)
	if !equal(returns[:2], r3[:2]) || !equal(advantages[:2], a3[:2]) {
		t.Errorf("boundary does not reset accumulation")
	}

	// Manual check of the first episode
	wantRet0 := rewards[0] + gamma*rewards[1]
	wantAdv0 := (rewards[0] + gamma*values[1] - values[0]) +
		gamma*tau*advantages[1]
	if math.Abs(returns[0]-wantRet0) > tolerance {
		t.Errorf("return[0]:\n\twant(%v)\n\thave(%v)", wantRet0, returns[0])
	}
	if math.Abs(advantages[0]-wantAdv0) > tolerance {
		t.Errorf("advantage[0]:\n\twant(%v)\n\thave(%v)", wantAdv0,
			advantages[0])
	}
}

func TestEstimateLengthMismatch(t *testing.T) {
	_, _, err := Estimate([]float64{1, 2}, []float64{1}, []float64{0, 0}, 1, 1)
	if err == nil {
		t.Errorf("estimate: expected error on length mismatch")
	}
}

func TestNormalize(t *testing.T) {
	adv := []float64{3, -1, 4, 1, -5, 9, 2, 6}
	normalized, err := Normalize(adv)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}

	mean, std := stat.MeanStdDev(normalized, nil)
	if math.Abs(mean) > 1e-12 {
		t.Errorf("mean:\n\twant(0)\n\thave(%v)", mean)
	}
	if math.Abs(std-1) > 1e-12 {
		t.Errorf("std:\n\twant(1)\n\thave(%v)", std)
	}
	if adv[0] != 3 {
		t.Errorf("normalize: input modified")
	}
}

func TestNormalizeDegenerate(t *testing.T) {
	tests := []struct {
		adv   []float64
		check func(error) bool
	}{
		{[]float64{1.5}, IsTooFewSteps},
		{nil, IsTooFewSteps},
		{[]float64{2, 2, 2, 2}, IsZeroVariance},
		{[]float64{1, math.Inf(1)}, IsDegenerateBatch},
	}

	for _, test := range tests {
		_, err := Normalize(test.adv)
		if err == nil {
			t.Errorf("normalize(%v): expected error", test.adv)
			continue
		}
		if !IsDegenerateBatch(err) {
			t.Errorf("normalize(%v): want(*DegenerateBatchError) have(%T)",
				test.adv, err)
		}
		if !test.check(err) {
			t.Errorf("normalize(%v): unexpected reason: %v", test.adv, err)
		}

		wrapped := fmt.Errorf("update: %w", err)
		if !IsDegenerateBatch(wrapped) {
			t.Errorf("isDegenerateBatch: wrapped error not classified")
		}
	}
}

func BenchmarkEstimate(b *testing.B) {
	n := 15000
	rewards := make([]float64, n)
	masks := make([]float64, n)
	values := make([]float64, n)
	for i := range rewards {
		rewards[i] = float64(i % 7)
		masks[i] = 1
		if i%1000 == 999 {
			masks[i] = 0
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Estimate(rewards, masks, values, 0.995, 0.97)
	}
}
