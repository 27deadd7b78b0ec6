package trpo

import (
	"fmt"

	"github.com/samuelfneumann/arpl/network"
	"github.com/samuelfneumann/arpl/solver"
	"github.com/samuelfneumann/arpl/utils/floatutils"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// valueFitResult is the outcome of fitting a value function
type valueFitResult struct {
	Params     []float64
	LossBefore float64
	LossAfter  float64
}

// valueFitter fits a state value function to regression targets by
// minimizing the regularized mean squared error
//
//	mean((V(s) - target)²) + l2 Σ φ²
//
// over the flat parameter vector φ of the value function with L-BFGS.
// The fitter operates on a clone of the value function with one input
// row per batch state and never modifies the value function it was
// created from.
type valueFitter struct {
	net       network.NeuralNet
	vm        G.VM
	targets   *G.Node
	minimizer *solver.LBFGS

	lossVal  G.Value
	gradVals []G.Value

	lastφ    []float64
	lastLoss float64
	lastGrad []float64
}

// newValueFitter returns a new valueFitter for batches of n states
func newValueFitter(valueFn network.NeuralNet, n int, l2 float64,
	minimizer *solver.LBFGS) (*valueFitter, error) {
	if valueFn.Outputs() != 1 {
		return nil, fmt.Errorf("newValueFitter: value function must have a "+
			"single output \n\twant(1)\n\thave(%v)", valueFn.Outputs())
	}
	net, err := valueFn.CloneWithBatch(n)
	if err != nil {
		return nil, fmt.Errorf("newValueFitter: %v", err)
	}
	g := net.Graph()

	targets := G.NewMatrix(
		g,
		tensor.Float64,
		G.WithShape(net.Prediction().Shape()...),
		G.WithName("ValueTargets"),
		G.WithInit(G.Zeroes()),
	)

	loss := G.Must(G.Sub(net.Prediction(), targets))
	loss = G.Must(G.Square(loss))
	loss = G.Must(G.Mean(loss))

	if l2 > 0 {
		var penalty *G.Node
		for _, w := range net.Learnables() {
			sq := G.Must(G.Sum(G.Must(G.Square(w))))
			if penalty == nil {
				penalty = sq
			} else {
				penalty = G.Must(G.Add(penalty, sq))
			}
		}
		penalty = G.Must(G.Mul(penalty, G.NewConstant(l2)))
		loss = G.Must(G.Add(loss, penalty))
	}

	grads, err := G.Grad(loss, net.Learnables()...)
	if err != nil {
		return nil, fmt.Errorf("newValueFitter: could not differentiate "+
			"loss: %v", err)
	}

	v := &valueFitter{
		net:       net,
		targets:   targets,
		minimizer: minimizer,
		gradVals:  make([]G.Value, len(grads)),
	}
	G.Read(loss, &v.lossVal)
	for i := range grads {
		G.Read(grads[i], &v.gradVals[i])
	}
	v.vm = G.NewTapeMachine(g)

	return v, nil
}

// Predict returns the value predictions of the value function with
// parameters φ in each of the argument states
func (v *valueFitter) Predict(φ, states []float64) ([]float64, error) {
	if err := v.setStates(states); err != nil {
		return nil, fmt.Errorf("predict: %v", err)
	}
	if err := v.run(φ); err != nil {
		return nil, fmt.Errorf("predict: %v", err)
	}

	values := append([]float64(nil), v.net.Output().Data().([]float64)...)
	if !floatutils.AllFinite(values) {
		return nil, fmt.Errorf("predict: non-finite value predictions")
	}
	return values, nil
}

// Fit minimizes the value loss on states and targets, starting from
// the parameters φ0. The parameters with the lowest loss found are
// returned, but not set on any value function.
func (v *valueFitter) Fit(φ0, states, targets []float64) (valueFitResult,
	error) {
	if err := v.setStates(states); err != nil {
		return valueFitResult{}, fmt.Errorf("fit: %v", err)
	}
	if err := v.setTargets(targets); err != nil {
		return valueFitResult{}, fmt.Errorf("fit: %v", err)
	}

	lossBefore, _, err := v.eval(φ0)
	if err != nil {
		return valueFitResult{}, fmt.Errorf("fit: %v", err)
	}

	// Errors cannot be returned from gonum objective functions. The
	// first one is recorded and reported through the problem status,
	// which stops the optimization.
	var evalErr error
	problem := optimize.Problem{
		Func: func(φ []float64) float64 {
			loss, _, err := v.eval(φ)
			if err != nil {
				if evalErr == nil {
					evalErr = err
				}
				return lossBefore
			}
			return loss
		},
		Grad: func(grad, φ []float64) {
			_, g, err := v.eval(φ)
			if err != nil {
				if evalErr == nil {
					evalErr = err
				}
				for i := range grad {
					grad[i] = 0
				}
				return
			}
			copy(grad, g)
		},
		Status: func() (optimize.Status, error) {
			if evalErr != nil {
				return optimize.Failure, evalErr
			}
			return optimize.NotTerminated, nil
		},
	}

	φ, lossAfter, err := v.minimizer.Minimize(problem,
		append([]float64(nil), φ0...))
	if evalErr != nil {
		return valueFitResult{}, fmt.Errorf("fit: %v", evalErr)
	}
	if err != nil {
		return valueFitResult{}, fmt.Errorf("fit: %v", err)
	}

	return valueFitResult{
		Params:     append([]float64(nil), φ...),
		LossBefore: lossBefore,
		LossAfter:  lossAfter,
	}, nil
}

// eval returns the value loss and its gradient at φ. Non-finite losses
// and gradients are errors.
func (v *valueFitter) eval(φ []float64) (float64, []float64, error) {
	if v.lastφ != nil && floats.Equal(φ, v.lastφ) {
		return v.lastLoss, v.lastGrad, nil
	}
	v.lastφ = nil

	if err := v.run(φ); err != nil {
		return 0, nil, err
	}

	loss, err := scalar(v.lossVal)
	if err != nil {
		return 0, nil, err
	}
	if !floatutils.IsFinite(loss) {
		return 0, nil, fmt.Errorf("non-finite value loss %v", loss)
	}

	grad := make([]float64, 0, len(φ))
	for _, val := range v.gradVals {
		grad = append(grad, val.Data().([]float64)...)
	}
	if !floatutils.AllFinite(grad) {
		return 0, nil, fmt.Errorf("non-finite value loss gradient")
	}

	v.lastφ = append([]float64(nil), φ...)
	v.lastLoss = loss
	v.lastGrad = grad
	return loss, grad, nil
}

// run sets the value function parameters to φ and runs the VM.
// Gradients from previous runs are cleared first.
func (v *valueFitter) run(φ []float64) error {
	v.vm.Reset()
	if err := network.SetFlat(v.net.Learnables(), φ); err != nil {
		return err
	}
	if err := v.vm.RunAll(); err != nil {
		return fmt.Errorf("could not run VM: %v", err)
	}
	return nil
}

func (v *valueFitter) setStates(states []float64) error {
	v.lastφ = nil
	return v.net.SetInput(append([]float64(nil), states...))
}

func (v *valueFitter) setTargets(targets []float64) error {
	v.lastφ = nil
	if len(targets) != v.net.BatchSize() {
		return fmt.Errorf("setTargets: invalid number of targets "+
			"\n\twant(%v)\n\thave(%v)", v.net.BatchSize(), len(targets))
	}

	t := tensor.New(
		tensor.WithShape(v.targets.Shape().Clone()...),
		tensor.WithBacking(append([]float64(nil), targets...)),
	)
	if err := G.Let(v.targets, t); err != nil {
		return fmt.Errorf("setTargets: %v", err)
	}
	return nil
}

// Close releases the fitter's VM
func (v *valueFitter) Close() error {
	v.vm.Close()
	return nil
}
