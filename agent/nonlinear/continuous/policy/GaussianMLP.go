// Package policy implements neural network policies for continuous
// action environments
package policy

import (
	"fmt"
	"math"

	"github.com/samuelfneumann/arpl/environment"
	"github.com/samuelfneumann/arpl/network"
	ts "github.com/samuelfneumann/arpl/timestep"
	"github.com/samuelfneumann/arpl/utils/floatutils"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// meanOutputScale scales the initial weights of the mean network's
// output layer so that initial action means are close to 0
const meanOutputScale float64 = 0.1

// GaussianMLP implements a diagonal Gaussian policy. The mean of the
// Gaussian is predicted by an MLP, and the log standard deviation is a
// learned vector which does not depend on the state.
//
// Given a nework prediction of the mean μ and standard deviation σ of
// the Gaussian policy, actions are selected by sampling from the
// standard normal ɛ ~ N(0, 1) and computing action := μ + σ * ɛ.
//
// The flat parameter vector of the policy (see Params()) holds the
// mean network's weights, in the order of network.Flatten(), followed
// by the log standard deviation.
//
// Given a number of continuous actions in a number of states, the
// GaussianMLP can calculate the log probability of selecting each of
// these actions in each corresponding state. Action selection is only
// possible when the batch size of the policy is 1.
type GaussianMLP struct {
	net    network.NeuralNet
	logStd *G.Node

	actions    *G.Node
	logPdfNode *G.Node
	logPdfVal  G.Value

	// Action selection
	vm        G.VM
	meanVal   G.Value
	logStdVal G.Value
	normal    distmv.Rander

	// Input gradient, lazily constructed on first use
	gradPolicy *GaussianMLP
	gradVM     G.VM
	gradVal    G.Value

	actionDims int
	seed       uint64
}

// NewGaussianMLP returns a new GaussianMLP policy which selects
// actions in the argument environment. The mean network has hidden
// layers described by hiddenSizes, biases, and activations (see
// network.NewMLP()) and is initialized with init. The output layer of
// the mean network is scaled down and its bias zeroed. The log standard
// deviation of each action dimension is initialized to initLogStd.
//
// The policy can be a batch policy when batch > 1. In such a case, the
// log probability of actions can be computed for a batch of actions,
// but actions cannot be selected with SelectAction().
func NewGaussianMLP(env environment.Environment, batch int,
	hiddenSizes []int, biases []bool, activations []*network.Activation,
	init G.InitWFn, initLogStd float64, seed uint64) (*GaussianMLP, error) {
	if env.ActionSpec().Cardinality != environment.Continuous {
		return nil, fmt.Errorf("newGaussianMLP: actions should be continuous")
	}

	features := env.ObservationSpec().Shape.Len()
	actionDims := env.ActionSpec().Shape.Len()

	net, err := network.NewMLP(features, batch, actionDims, G.NewGraph(),
		hiddenSizes, biases, init, activations)
	if err != nil {
		return nil, fmt.Errorf("newGaussianMLP: could not create mean "+
			"network: %v", err)
	}
	if err := scaleOutputLayer(net.Learnables()); err != nil {
		return nil, fmt.Errorf("newGaussianMLP: %v", err)
	}

	logStd := make([]float64, actionDims)
	for i := range logStd {
		logStd[i] = initLogStd
	}

	return newGaussianMLP(net, logStd, seed)
}

// newGaussianMLP constructs a GaussianMLP around the mean network net,
// with the log standard deviation initialized to logStd
func newGaussianMLP(net network.NeuralNet, logStd []float64,
	seed uint64) (*GaussianMLP, error) {
	actionDims := net.Outputs()
	if len(logStd) != actionDims {
		return nil, fmt.Errorf("newGaussianMLP: invalid log standard "+
			"deviation length \n\twant(%v)\n\thave(%v)", actionDims,
			len(logStd))
	}
	g := net.Graph()

	logStdNode := G.NewMatrix(
		g,
		tensor.Float64,
		G.WithShape(1, actionDims),
		G.WithName("LogStd"),
		G.WithInit(G.Zeroes()),
	)
	logStdTensor := tensor.New(
		tensor.WithShape(1, actionDims),
		tensor.WithBacking(append([]float64(nil), logStd...)),
	)
	if err := G.Let(logStdNode, logStdTensor); err != nil {
		return nil, fmt.Errorf("newGaussianMLP: could not set log standard "+
			"deviation: %v", err)
	}

	// Calculate log probability of input actions
	actions := G.NewMatrix(
		g,
		tensor.Float64,
		G.WithName("InputActions"),
		G.WithShape(net.BatchSize(), actionDims),
		G.WithInit(G.Zeroes()),
	)
	logPdfNode := logPdf(net.Prediction(), logStdNode, actions)

	// Create standard normal for action selection
	means := make([]float64, actionDims)
	stds := mat.NewDiagDense(actionDims, floatutils.Ones(actionDims))
	source := rand.NewSource(seed)
	normal, ok := distmv.NewNormal(means, stds, source)
	if !ok {
		return nil, fmt.Errorf("newGaussianMLP: could not create standard " +
			"normal for action selection")
	}

	pol := &GaussianMLP{
		net:        net,
		logStd:     logStdNode,
		actions:    actions,
		logPdfNode: logPdfNode,
		normal:     normal,
		actionDims: actionDims,
		seed:       seed,
	}

	// Record values of Gorgonia nodes
	G.Read(pol.logPdfNode, &pol.logPdfVal)
	G.Read(net.Prediction(), &pol.meanVal)
	G.Read(logStdNode, &pol.logStdVal)

	return pol, nil
}

// scaleOutputLayer scales the weights of the final layer in learnables
// by meanOutputScale and zeroes its bias. The final layer of a
// network.NewMLP() network always has a bias.
func scaleOutputLayer(learnables G.Nodes) error {
	n := len(learnables)
	if n < 2 {
		return fmt.Errorf("scaleOutputLayer: network has no output layer")
	}

	weights := learnables[n-2].Value().(tensor.Tensor).Clone().(tensor.Tensor)
	data := weights.Data().([]float64)
	for i := range data {
		data[i] *= meanOutputScale
	}
	if err := G.Let(learnables[n-2], weights); err != nil {
		return fmt.Errorf("scaleOutputLayer: could not scale weights: %v",
			err)
	}

	bias := tensor.New(
		tensor.WithShape(learnables[n-1].Shape().Clone()...),
		tensor.WithBacking(make([]float64, learnables[n-1].Shape().TotalSize())),
	)
	if err := G.Let(learnables[n-1], bias); err != nil {
		return fmt.Errorf("scaleOutputLayer: could not zero bias: %v", err)
	}
	return nil
}

// logPdf adds nodes to the computational graph for computing the log
// probability of actions under a diagonal Gaussian with mean node mean
// of shape (batch, actionDims) and log standard deviation node logStd
// of shape (1, actionDims). The returned node has shape (batch).
func logPdf(mean, logStd, actions *G.Node) *G.Node {
	graph := mean.Graph()
	if graph != logStd.Graph() || graph != actions.Graph() {
		panic("logPdf: all nodes must share the same graph")
	}
	dims := float64(mean.Shape()[1])

	// -½ Σ ((a - μ) / σ)²
	std := G.Must(G.Exp(logStd))
	z := G.Must(G.Sub(actions, mean))
	z = G.Must(G.BroadcastHadamardDiv(z, std, nil, []byte{0}))
	exponent := G.Must(G.Square(z))
	exponent = G.Must(G.Sum(exponent, 1))
	exponent = G.Must(G.Mul(exponent, G.NewConstant(-0.5)))

	// Σ log σ + (k/2) log 2π
	normalizer := G.Must(G.Sum(logStd))
	normalizer = G.Must(G.Add(normalizer,
		G.NewConstant(dims*0.5*math.Log(2*math.Pi))))

	return G.Must(G.Sub(exponent, normalizer))
}

// SelectAction selects and returns an action at the argument timestep
// t.
func (g *GaussianMLP) SelectAction(t ts.TimeStep) (*mat.VecDense, error) {
	if size := g.net.BatchSize(); size != 1 {
		return nil, fmt.Errorf("selectAction: action selection can only be "+
			"done with a policy with batch size 1 \n\twant(1) \n\thave(%v)",
			size)
	}
	if g.vm == nil {
		g.vm = G.NewTapeMachine(g.net.Graph())
	}
	defer g.vm.Reset()

	obs := t.Observation.RawVector().Data
	if err := g.net.SetInput(obs); err != nil {
		return nil, fmt.Errorf("selectAction: cannot set input: %v", err)
	}
	if err := g.vm.RunAll(); err != nil {
		return nil, fmt.Errorf("selectAction: could not run policy VM: %v",
			err)
	}

	action := mat.NewVecDense(g.actionDims, nil)
	mean := g.meanVal.Data().([]float64)
	logStd := g.logStdVal.Data().([]float64)
	eps := g.normal.Rand(nil)
	for i := 0; i < g.actionDims; i++ {
		action.SetVec(i, mean[i]+math.Exp(logStd[i])*eps[i])
	}

	if !floatutils.AllFinite(action.RawVector().Data) {
		return nil, fmt.Errorf("selectAction: non-finite action %v",
			action.RawVector().Data)
	}
	return action, nil
}

// LogPdfOf sets the state and action inputs of the policy's
// computational graph to the argument state and actions (s and a
// respectively) so that when a VM of the policy is run, the log
// probability of actions a taken in states s will be computed and
// stored in the policy's log PDF node, which is returned. Inputs
// should be constructed in row major order.
//
// The reason this function does not return the log PDF of actions is
// because the log PDF of actions is generally needed in loss
// functions, and an external VM of the policy's graph which computes
// the loss will need to be run.
func (g *GaussianMLP) LogPdfOf(s, a []float64) (*G.Node, error) {
	if err := g.net.SetInput(s); err != nil {
		return nil, fmt.Errorf("logPdfOf: could not set states: %v", err)
	}

	if len(a) != g.net.BatchSize()*g.actionDims {
		return nil, fmt.Errorf("logPdfOf: invalid number of actions "+
			"\n\twant(%v)\n\thave(%v)", g.net.BatchSize()*g.actionDims, len(a))
	}
	actionsTensor := tensor.NewDense(
		tensor.Float64,
		[]int{g.net.BatchSize(), g.actionDims},
		tensor.WithBacking(append([]float64(nil), a...)),
	)
	if err := G.Let(g.actions, actionsTensor); err != nil {
		return nil, fmt.Errorf("logPdfOf: could not set actions: %v", err)
	}

	return g.logPdfNode, nil
}

// LogPdfNode returns the node that will hold the log probability
// of actions when the comptuational graph is run.
func (g *GaussianMLP) LogPdfNode() *G.Node {
	return g.logPdfNode
}

// LogPdfVal returns the value of the node returned by LogPdfNode()
func (g *GaussianMLP) LogPdfVal() G.Value {
	return g.logPdfVal
}

// Mean returns the node of the policy's graph holding the mean of the
// Gaussian policy in each input state, of shape (batch, actionDims)
func (g *GaussianMLP) Mean() *G.Node {
	return g.net.Prediction()
}

// LogStd returns the node holding the log standard deviation of the
// policy, of shape (1, actionDims)
func (g *GaussianMLP) LogStd() *G.Node {
	return g.logStd
}

// Graph returns the computational graph of the policy
func (g *GaussianMLP) Graph() *G.ExprGraph {
	return g.net.Graph()
}

// Network returns the mean network of the GaussianMLP
func (g *GaussianMLP) Network() network.NeuralNet {
	return g.net
}

// BatchSize returns the number of states the policy takes as input
func (g *GaussianMLP) BatchSize() int {
	return g.net.BatchSize()
}

// Features returns the number of features in a single state
func (g *GaussianMLP) Features() int {
	return g.net.Features()
}

// ActionDims returns the dimension of actions
func (g *GaussianMLP) ActionDims() int {
	return g.actionDims
}

// Learnables returns the learnable nodes of the policy, in the order
// of the flat parameter vector
func (g *GaussianMLP) Learnables() G.Nodes {
	learnables := make(G.Nodes, 0, len(g.net.Learnables())+1)
	learnables = append(learnables, g.net.Learnables()...)
	return append(learnables, g.logStd)
}

// NumParams returns the number of scalar parameters of the policy
func (g *GaussianMLP) NumParams() int {
	return network.NumParams(g.Learnables())
}

// Params returns a copy of the flat parameter vector of the policy
func (g *GaussianMLP) Params() []float64 {
	return network.Flatten(g.Learnables())
}

// SetParams sets the flat parameter vector of the policy. The argument
// is copied.
func (g *GaussianMLP) SetParams(params []float64) error {
	if err := network.SetFlat(g.Learnables(), params); err != nil {
		return fmt.Errorf("setParams: %v", err)
	}
	return nil
}

// Clone clones a GaussianMLP
func (g *GaussianMLP) Clone() (*GaussianMLP, error) {
	return g.CloneWithBatch(g.net.BatchSize())
}

// CloneWithBatch clones a GaussianMLP to a new computational graph
// with a new batch size. The clone owns a copy of the policy's
// parameters.
func (g *GaussianMLP) CloneWithBatch(batch int) (*GaussianMLP, error) {
	net, err := g.net.CloneWithBatch(batch)
	if err != nil {
		return nil, fmt.Errorf("cloneWithBatch: %v", err)
	}

	logStd := append([]float64(nil), g.logStd.Value().Data().([]float64)...)
	clone, err := newGaussianMLP(net, logStd, g.seed)
	if err != nil {
		return nil, fmt.Errorf("cloneWithBatch: %v", err)
	}
	return clone, nil
}

// InputGrad returns the gradient of the Euclidean norm of the mean
// action, ∇ₛ‖μ(s)‖₂, with respect to the input state s. The gradient
// is computed with the policy's current parameters.
func (g *GaussianMLP) InputGrad(state []float64) ([]float64, error) {
	if len(state) != g.net.Features() {
		return nil, fmt.Errorf("inputGrad: invalid state length "+
			"\n\twant(%v)\n\thave(%v)", g.net.Features(), len(state))
	}

	if g.gradPolicy == nil {
		if err := g.buildInputGrad(); err != nil {
			return nil, fmt.Errorf("inputGrad: %v", err)
		}
	} else if err := g.gradPolicy.SetParams(g.Params()); err != nil {
		return nil, fmt.Errorf("inputGrad: could not sync parameters: %v",
			err)
	}

	g.gradVM.Reset()
	if err := g.gradPolicy.net.SetInput(append([]float64(nil),
		state...)); err != nil {
		return nil, fmt.Errorf("inputGrad: %v", err)
	}
	if err := g.gradVM.RunAll(); err != nil {
		return nil, fmt.Errorf("inputGrad: could not run VM: %v", err)
	}

	grad := append([]float64(nil), g.gradVal.Data().([]float64)...)
	if !floatutils.AllFinite(grad) {
		return nil, fmt.Errorf("inputGrad: non-finite gradient %v", grad)
	}
	return grad, nil
}

// buildInputGrad constructs the single-state clone of the policy and
// the graph which differentiates ‖μ(s)‖₂ with respect to s
func (g *GaussianMLP) buildInputGrad() error {
	clone, err := g.CloneWithBatch(1)
	if err != nil {
		return err
	}

	norm := G.Must(G.Square(clone.Mean()))
	norm = G.Must(G.Sum(norm))
	norm = G.Must(G.Sqrt(norm))

	grads, err := G.Grad(norm, clone.net.Input())
	if err != nil {
		return fmt.Errorf("could not differentiate mean norm: %v", err)
	}
	G.Read(grads[0], &g.gradVal)

	g.gradPolicy = clone
	g.gradVM = G.NewTapeMachine(clone.Graph())
	return nil
}

// Close releases the VMs of the policy
func (g *GaussianMLP) Close() error {
	if g.vm != nil {
		g.vm.Close()
	}
	if g.gradVM != nil {
		g.gradVM.Close()
	}
	return nil
}
