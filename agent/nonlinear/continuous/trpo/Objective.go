package trpo

import (
	"fmt"

	"github.com/samuelfneumann/arpl/agent/nonlinear/continuous/policy"
	"gonum.org/v1/gonum/floats"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Objective is the TRPO surrogate objective of a single batch of
// transitions. It holds the batch's states, actions, and advantages
// along with the log probabilities and distribution parameters of the
// policy the batch was collected with, all of which are fixed at
// construction.
//
// The surrogate loss and the KL divergence are evaluated at flat
// policy parameter vectors θ, each on its own computational graph
// holding a clone of the policy:
//
//	Loss(θ) = -mean(A exp(log πθ(a|s) - log πθ₀(a|s)))
//	KL(θ)   = mean over states of Σ [log σ - log σ₀ + (σ₀² + (μ₀ - μ)²) / 2σ² - ½]
//
// where the sum is over action dimensions. KL(θ₀) is 0.
type Objective struct {
	θ0 []float64

	oldLogProbs []float64
	oldMean     []float64
	oldLogStd   []float64

	loss *lossGraph
	kl   *klGraph
}

// NewObjective returns the objective of the batch of states, actions,
// and advantages, relative to the current parameters of pol. States and
// actions are in row major order, one row per advantage.
func NewObjective(pol *policy.GaussianMLP, states, actions,
	advantages []float64) (*Objective, error) {
	n := len(advantages)
	if n == 0 {
		return nil, fmt.Errorf("newObjective: empty batch")
	}
	if len(states) != n*pol.Features() {
		return nil, fmt.Errorf("newObjective: invalid number of states "+
			"\n\twant(%v)\n\thave(%v)", n*pol.Features(), len(states))
	}
	if len(actions) != n*pol.ActionDims() {
		return nil, fmt.Errorf("newObjective: invalid number of actions "+
			"\n\twant(%v)\n\thave(%v)", n*pol.ActionDims(), len(actions))
	}

	θ0 := pol.Params()

	loss, err := newLossGraph(pol, states, actions, advantages)
	if err != nil {
		return nil, fmt.Errorf("newObjective: %v", err)
	}
	oldLogProbs, err := loss.logProbs(θ0)
	if err != nil {
		loss.close()
		return nil, fmt.Errorf("newObjective: %v", err)
	}
	if err := loss.setOldLogProbs(oldLogProbs); err != nil {
		loss.close()
		return nil, fmt.Errorf("newObjective: %v", err)
	}

	kl, err := newKLGraph(pol, states)
	if err != nil {
		loss.close()
		return nil, fmt.Errorf("newObjective: %v", err)
	}
	oldMean, err := kl.mean(θ0)
	if err != nil {
		loss.close()
		kl.close()
		return nil, fmt.Errorf("newObjective: %v", err)
	}
	oldLogStd := append([]float64(nil), θ0[len(θ0)-pol.ActionDims():]...)
	if err := kl.setOld(oldMean, oldLogStd); err != nil {
		loss.close()
		kl.close()
		return nil, fmt.Errorf("newObjective: %v", err)
	}

	return &Objective{
		θ0:          θ0,
		oldLogProbs: oldLogProbs,
		oldMean:     oldMean,
		oldLogStd:   oldLogStd,
		loss:        loss,
		kl:          kl,
	}, nil
}

// Params returns a copy of the policy parameters the objective was
// constructed with
func (o *Objective) Params() []float64 {
	return append([]float64(nil), o.θ0...)
}

// OldLogProbs returns the log probabilities of the batch actions under
// the policy the objective was constructed with
func (o *Objective) OldLogProbs() []float64 {
	return append([]float64(nil), o.oldLogProbs...)
}

// Loss returns the surrogate loss at θ
func (o *Objective) Loss(θ []float64) (float64, error) {
	loss, _, err := o.loss.eval(θ)
	if err != nil {
		return 0, fmt.Errorf("loss: %v", err)
	}
	return loss, nil
}

// LossGrad returns the gradient of the surrogate loss at θ
func (o *Objective) LossGrad(θ []float64) ([]float64, error) {
	_, grad, err := o.loss.eval(θ)
	if err != nil {
		return nil, fmt.Errorf("lossGrad: %v", err)
	}
	return append([]float64(nil), grad...), nil
}

// KL returns the mean KL divergence between the old policy and the
// policy at θ
func (o *Objective) KL(θ []float64) (float64, error) {
	kl, _, err := o.kl.eval(θ)
	if err != nil {
		return 0, fmt.Errorf("kl: %v", err)
	}
	return kl, nil
}

// KLGrad returns the gradient of the KL divergence at θ
func (o *Objective) KLGrad(θ []float64) ([]float64, error) {
	_, grad, err := o.kl.eval(θ)
	if err != nil {
		return nil, fmt.Errorf("klGrad: %v", err)
	}
	return append([]float64(nil), grad...), nil
}

// Close releases the VMs of the objective
func (o *Objective) Close() error {
	o.loss.close()
	o.kl.close()
	return nil
}

// graph is a scalar function of the policy parameters together with
// its gradient, computed by running a VM on a clone of the policy. The
// last evaluation is memoized.
type graph struct {
	policy *policy.GaussianMLP
	vm     G.VM

	costVal  G.Value
	gradVals []G.Value

	lastθ    []float64
	lastCost float64
	lastGrad []float64
}

// differentiate adds the gradient of cost with respect to the policy's
// learnables to the graph and compiles the graph's VM. No nodes may be
// added to the graph afterwards.
func (g *graph) differentiate(cost *G.Node) error {
	grads, err := G.Grad(cost, g.policy.Learnables()...)
	if err != nil {
		return fmt.Errorf("could not differentiate: %v", err)
	}

	G.Read(cost, &g.costVal)
	g.gradVals = make([]G.Value, len(grads))
	for i := range grads {
		G.Read(grads[i], &g.gradVals[i])
	}

	g.vm = G.NewTapeMachine(g.policy.Graph())
	return nil
}

// run sets the policy parameters to θ and runs the VM. Gradients from
// previous runs are cleared first.
func (g *graph) run(θ []float64) error {
	g.vm.Reset()
	if err := g.policy.SetParams(θ); err != nil {
		return err
	}
	if err := g.vm.RunAll(); err != nil {
		return fmt.Errorf("could not run VM: %v", err)
	}
	return nil
}

// eval returns the cost and its gradient at θ
func (g *graph) eval(θ []float64) (float64, []float64, error) {
	if g.lastθ != nil && floats.Equal(θ, g.lastθ) {
		return g.lastCost, g.lastGrad, nil
	}
	g.lastθ = nil

	if err := g.run(θ); err != nil {
		return 0, nil, err
	}

	cost, err := scalar(g.costVal)
	if err != nil {
		return 0, nil, err
	}
	grad := make([]float64, 0, len(θ))
	for _, val := range g.gradVals {
		grad = append(grad, val.Data().([]float64)...)
	}

	g.lastθ = append([]float64(nil), θ...)
	g.lastCost = cost
	g.lastGrad = grad
	return cost, grad, nil
}

func (g *graph) close() {
	if g.vm != nil {
		g.vm.Close()
	}
}

// lossGraph computes the surrogate loss
type lossGraph struct {
	graph
	oldLogProbs *G.Node
	logProbVal  G.Value
}

func newLossGraph(pol *policy.GaussianMLP, states, actions,
	advantages []float64) (*lossGraph, error) {
	n := len(advantages)
	clone, err := pol.CloneWithBatch(n)
	if err != nil {
		return nil, fmt.Errorf("newLossGraph: %v", err)
	}
	g := clone.Graph()

	logProb, err := clone.LogPdfOf(states, actions)
	if err != nil {
		return nil, fmt.Errorf("newLossGraph: %v", err)
	}

	oldLogProbs := G.NewVector(
		g,
		tensor.Float64,
		G.WithShape(n),
		G.WithName("OldLogProbs"),
		G.WithInit(G.Zeroes()),
	)
	adv := G.NewVector(
		g,
		tensor.Float64,
		G.WithShape(n),
		G.WithName("Advantages"),
		G.WithInit(G.Zeroes()),
	)
	advTensor := tensor.New(
		tensor.WithShape(n),
		tensor.WithBacking(append([]float64(nil), advantages...)),
	)
	if err := G.Let(adv, advTensor); err != nil {
		return nil, fmt.Errorf("newLossGraph: could not set advantages: %v",
			err)
	}

	ratio := G.Must(G.Sub(logProb, oldLogProbs))
	ratio = G.Must(G.Exp(ratio))
	loss := G.Must(G.HadamardProd(ratio, adv))
	loss = G.Must(G.Mean(loss))
	loss = G.Must(G.Neg(loss))

	l := &lossGraph{
		graph:       graph{policy: clone},
		oldLogProbs: oldLogProbs,
	}
	G.Read(logProb, &l.logProbVal)
	if err := l.differentiate(loss); err != nil {
		return nil, fmt.Errorf("newLossGraph: %v", err)
	}
	return l, nil
}

// logProbs returns the log probabilities of the batch actions under
// the policy with parameters θ
func (l *lossGraph) logProbs(θ []float64) ([]float64, error) {
	l.lastθ = nil
	if err := l.run(θ); err != nil {
		return nil, fmt.Errorf("logProbs: %v", err)
	}
	return append([]float64(nil), l.logProbVal.Data().([]float64)...), nil
}

func (l *lossGraph) setOldLogProbs(logProbs []float64) error {
	l.lastθ = nil
	t := tensor.New(
		tensor.WithShape(len(logProbs)),
		tensor.WithBacking(append([]float64(nil), logProbs...)),
	)
	if err := G.Let(l.oldLogProbs, t); err != nil {
		return fmt.Errorf("setOldLogProbs: %v", err)
	}
	return nil
}

// klGraph computes the KL divergence between the fixed old policy and
// the current policy
type klGraph struct {
	graph
	oldMean   *G.Node
	oldLogStd *G.Node
	meanVal   G.Value
}

func newKLGraph(pol *policy.GaussianMLP, states []float64) (*klGraph,
	error) {
	n := len(states) / pol.Features()
	clone, err := pol.CloneWithBatch(n)
	if err != nil {
		return nil, fmt.Errorf("newKLGraph: %v", err)
	}
	if err := clone.Network().SetInput(append([]float64(nil),
		states...)); err != nil {
		return nil, fmt.Errorf("newKLGraph: %v", err)
	}
	g := clone.Graph()
	actionDims := clone.ActionDims()

	oldMean := G.NewMatrix(
		g,
		tensor.Float64,
		G.WithShape(n, actionDims),
		G.WithName("OldMean"),
		G.WithInit(G.Zeroes()),
	)
	oldLogStd := G.NewMatrix(
		g,
		tensor.Float64,
		G.WithShape(1, actionDims),
		G.WithName("OldLogStd"),
		G.WithInit(G.Zeroes()),
	)
	mean, logStd := clone.Mean(), clone.LogStd()
	two := G.NewConstant(2.0)

	// (σ₀² + (μ₀ - μ)²) / 2σ²
	oldVar := G.Must(G.Exp(G.Must(G.Mul(oldLogStd, two))))
	variance := G.Must(G.Exp(G.Must(G.Mul(logStd, two))))
	diff := G.Must(G.Sub(oldMean, mean))
	diff = G.Must(G.Square(diff))
	num := G.Must(G.BroadcastAdd(diff, oldVar, nil, []byte{0}))
	den := G.Must(G.Mul(variance, two))
	frac := G.Must(G.BroadcastHadamardDiv(num, den, nil, []byte{0}))
	kl := G.Must(G.Sum(frac, 1))
	kl = G.Must(G.Mean(kl))

	// Σ (log σ - log σ₀) - k/2
	logRatio := G.Must(G.Sub(logStd, oldLogStd))
	logRatio = G.Must(G.Sum(logRatio))
	kl = G.Must(G.Add(kl, logRatio))
	kl = G.Must(G.Sub(kl, G.NewConstant(0.5*float64(actionDims))))

	k := &klGraph{
		graph:     graph{policy: clone},
		oldMean:   oldMean,
		oldLogStd: oldLogStd,
	}
	G.Read(mean, &k.meanVal)
	if err := k.differentiate(kl); err != nil {
		return nil, fmt.Errorf("newKLGraph: %v", err)
	}
	return k, nil
}

// mean returns the policy mean in each batch state under parameters θ
func (k *klGraph) mean(θ []float64) ([]float64, error) {
	k.lastθ = nil
	if err := k.run(θ); err != nil {
		return nil, fmt.Errorf("mean: %v", err)
	}
	return append([]float64(nil), k.meanVal.Data().([]float64)...), nil
}

// setOld sets the distribution parameters of the old policy
func (k *klGraph) setOld(mean, logStd []float64) error {
	k.lastθ = nil
	meanTensor := tensor.New(
		tensor.WithShape(k.oldMean.Shape().Clone()...),
		tensor.WithBacking(append([]float64(nil), mean...)),
	)
	if err := G.Let(k.oldMean, meanTensor); err != nil {
		return fmt.Errorf("setOld: could not set mean: %v", err)
	}

	logStdTensor := tensor.New(
		tensor.WithShape(k.oldLogStd.Shape().Clone()...),
		tensor.WithBacking(append([]float64(nil), logStd...)),
	)
	if err := G.Let(k.oldLogStd, logStdTensor); err != nil {
		return fmt.Errorf("setOld: could not set log std: %v", err)
	}
	return nil
}

// scalar returns the float64 held by a scalar Value
func scalar(v G.Value) (float64, error) {
	switch data := v.Data().(type) {
	case float64:
		return data, nil
	case []float64:
		if len(data) == 1 {
			return data[0], nil
		}
	}
	return 0, fmt.Errorf("scalar: value %v is not a scalar", v)
}
