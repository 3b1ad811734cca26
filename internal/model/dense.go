package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// Activation names accepted in a dense layer.
const (
	ActivationIdentity = "identity"
	ActivationReLU     = "relu"
	ActivationSigmoid  = "sigmoid"
	ActivationTanh     = "tanh"
	ActivationSoftmax  = "softmax"
)

// DenseNetwork is a feed-forward network of fully connected layers,
// serialized as JSON inside the container.
type DenseNetwork struct {
	Layers []DenseLayer `json:"layers"`
}

// DenseLayer computes activation(weights·x + bias). Weights are row-major
// [out][in].
type DenseLayer struct {
	Weights    [][]float64 `json:"weights"`
	Bias       []float64   `json:"bias,omitempty"`
	Activation string      `json:"activation,omitempty"`
}

func (l DenseLayer) inDim() int {
	if len(l.Weights) == 0 {
		return 0
	}
	return len(l.Weights[0])
}

func (l DenseLayer) outDim() int {
	return len(l.Weights)
}

// Validate checks that every layer is rectangular, that biases match, that
// consecutive layers chain and that activations are known.
func (n *DenseNetwork) Validate() error {
	if len(n.Layers) == 0 {
		return errors.New("dense: network has no layers")
	}
	prevOut := -1
	for i, l := range n.Layers {
		in := l.inDim()
		if l.outDim() == 0 || in == 0 {
			return fmt.Errorf("dense: layer %d has empty weights", i)
		}
		for r, row := range l.Weights {
			if len(row) != in {
				return fmt.Errorf("dense: layer %d row %d has %d columns, want %d", i, r, len(row), in)
			}
		}
		if len(l.Bias) != 0 && len(l.Bias) != l.outDim() {
			return fmt.Errorf("dense: layer %d bias has %d values, want %d", i, len(l.Bias), l.outDim())
		}
		if prevOut >= 0 && in != prevOut {
			return fmt.Errorf("dense: layer %d expects %d inputs but layer %d produces %d", i, in, i-1, prevOut)
		}
		switch l.Activation {
		case "", ActivationIdentity, ActivationReLU, ActivationSigmoid, ActivationTanh, ActivationSoftmax:
		default:
			return fmt.Errorf("dense: layer %d has unknown activation %q", i, l.Activation)
		}
		prevOut = l.outDim()
	}
	return nil
}

// InputWidth returns the number of inputs of the first layer.
func (n *DenseNetwork) InputWidth() int {
	return n.Layers[0].inDim()
}

// Infer runs the forward pass. The network is read-only, so concurrent calls
// are safe.
func (n *DenseNetwork) Infer(input []float64) ([]float64, error) {
	if len(input) != n.InputWidth() {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInputWidth, len(input), n.InputWidth())
	}
	x := input
	for _, l := range n.Layers {
		out := make([]float64, l.outDim())
		for i, row := range l.Weights {
			var sum float64
			for j, w := range row {
				sum += w * x[j]
			}
			if len(l.Bias) != 0 {
				sum += l.Bias[i]
			}
			out[i] = sum
		}
		activate(l.Activation, out)
		x = out
	}
	return x, nil
}

// Close is a no-op; the network holds no external resources.
func (n *DenseNetwork) Close() error {
	return nil
}

func activate(name string, v []float64) {
	switch name {
	case ActivationReLU:
		for i, x := range v {
			if x < 0 {
				v[i] = 0
			}
		}
	case ActivationSigmoid:
		for i, x := range v {
			v[i] = 1 / (1 + math.Exp(-x))
		}
	case ActivationTanh:
		for i, x := range v {
			v[i] = math.Tanh(x)
		}
	case ActivationSoftmax:
		maxV := math.Inf(-1)
		for _, x := range v {
			maxV = math.Max(maxV, x)
		}
		var sum float64
		for i, x := range v {
			v[i] = math.Exp(x - maxV)
			sum += v[i]
		}
		for i := range v {
			v[i] /= sum
		}
	}
}

func newDenseModel(payload []byte, _ Options) (Model, error) {
	var n DenseNetwork
	if err := json.Unmarshal(payload, &n); err != nil {
		return nil, fmt.Errorf("dense: %w", err)
	}
	if err := n.Validate(); err != nil {
		return nil, err
	}
	return &n, nil
}
