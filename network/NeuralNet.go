// Package network implements feed forward neural networks as Gorgonia
// computational graphs.
package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// NeuralNet is a neural network built on a Gorgonia computational
// graph. The network's input node is set with SetInput() and, once a
// VM of the graph has been run, the prediction is available through
// Output().
type NeuralNet interface {
	Graph() *G.ExprGraph
	Clone() (NeuralNet, error)
	CloneWithBatch(int) (NeuralNet, error)
	BatchSize() int
	Features() int
	Outputs() int
	SetInput([]float64) error
	Set(NeuralNet) error
	Learnables() G.Nodes
	Input() *G.Node
	Prediction() *G.Node
	Output() G.Value
}

// NumParams returns the total number of scalar parameters held by nodes
func NumParams(nodes G.Nodes) int {
	n := 0
	for _, node := range nodes {
		n += node.Shape().TotalSize()
	}
	return n
}

// Flatten copies the values of nodes, in order, into a single flat
// parameter vector. Each node's value is flattened in row major order.
func Flatten(nodes G.Nodes) []float64 {
	params := make([]float64, 0, NumParams(nodes))
	for _, node := range nodes {
		params = append(params, node.Value().Data().([]float64)...)
	}
	return params
}

// SetFlat sets the values of nodes from a flat parameter vector laid
// out as returned by Flatten. The parameter vector is copied.
func SetFlat(nodes G.Nodes, params []float64) error {
	if n := NumParams(nodes); n != len(params) {
		return fmt.Errorf("setFlat: invalid number of parameters"+
			"\n\twant(%v)\n\thave(%v)", n, len(params))
	}

	offset := 0
	for i, node := range nodes {
		size := node.Shape().TotalSize()
		backing := make([]float64, size)
		copy(backing, params[offset:offset+size])
		offset += size

		value := tensor.New(
			tensor.WithShape(node.Shape().Clone()...),
			tensor.WithBacking(backing),
		)
		if err := G.Let(node, value); err != nil {
			return fmt.Errorf("setFlat: could not set node %v: %v", i, err)
		}
	}
	return nil
}

// Set sets the weights of dest to be equal to the weights of source
func Set(dest, source NeuralNet) error {
	return dest.Set(source)
}
