package ml

import (
	"fmt"
	"math/rand/v2"
)

const (
	ActLinear ActivationType = iota
	ActRelu
	ActSoftmax
)

var activationMap = map[string]ActivationType{
	"linear":  ActLinear,
	"relu":    ActRelu,
	"softmax": ActSoftmax,
}

// -------- TYPE DEFINITIONS -------- //
type ActivationType int
type LayerOption func(*LayerConfig)

// LayerConfig holds the blueprint for a layer
type LayerConfig struct {
	Neurons    int
	IsInput    bool
	Activation ActivationType
	Source     rand.Source // weight initialisation; nil draws a fresh seed
}

// Layer is one affine transform followed by an optional ReLU.
type Layer struct {
	// WeightsT is stored pre-transposed (input size × layer size) so the
	// forward pass is a plain input·WeightsT.
	WeightsT   *Matrix
	Biases     *Matrix // 1 × layer size
	Activation bool    // ReLU

	// Output caches the last training forward activation. The next layer's
	// backprop reads it as its input.
	Output *Matrix

	weightsState *adamState
	biasesState  *adamState
}

// GradientSet holds the calculated gradients for one layer
type GradientSet struct {
	DW *Matrix
	DB *Matrix
}

// ------- LAYER CONFIG HELPERS ------- //
// Input defines the entry point dimensions
func Input(size int) LayerConfig {
	return LayerConfig{
		Neurons:    size,
		IsInput:    true,
		Activation: ActLinear,
	}
}

// Dense defines a fully connected layer.
func Dense(size int, opts ...LayerOption) LayerConfig {
	d := LayerConfig{
		Neurons:    size,
		IsInput:    false,
		Activation: ActRelu, // Default for hidden layers
	}

	for _, opt := range opts {
		opt(&d)
	}
	return d
}

// Activation selects "relu", "linear" or "softmax". Softmax is applied by the
// Model on the last layer's raw scores, so for the layer itself it means no ReLU.
func Activation(activation string) LayerOption {
	return func(lc *LayerConfig) {
		act, exists := activationMap[activation]
		if !exists {
			panic("Unknown activation: " + activation)
		}
		lc.Activation = act
	}
}

// Seed makes the layer's weight initialisation reproducible.
func Seed(seed uint64) LayerOption {
	return func(lc *LayerConfig) {
		lc.Source = rand.NewPCG(seed, seed)
	}
}

// -------- CONSTRUCTORS -------- //

// NewLayer returns a layer with small random weights and zero biases.
func NewLayer(inputSize, size int, activation bool, src rand.Source) *Layer {
	return &Layer{
		WeightsT:   NewRandomMatrix(inputSize, size, src),
		Biases:     NewMatrix(1, size),
		Activation: activation,
		Output:     NewMatrix(0, 0),
	}
}

// NewLayerWithWeights builds a layer around fixed pre-transposed weights and
// zero biases, for reproducible runs.
func NewLayerWithWeights(activation bool, weightsT *Matrix) *Layer {
	return &Layer{
		WeightsT:   weightsT,
		Biases:     NewMatrix(1, weightsT.width),
		Activation: activation,
		Output:     NewMatrix(0, 0),
	}
}

func (l *Layer) InputSize() int { return l.WeightsT.height }
func (l *Layer) Size() int      { return l.WeightsT.width }

// Clone deep copies parameters, cached output and optimizer moments.
func (l *Layer) Clone() *Layer {
	out := &Layer{
		WeightsT:   l.WeightsT.Clone(),
		Biases:     l.Biases.Clone(),
		Activation: l.Activation,
	}
	if l.Output != nil {
		out.Output = l.Output.Clone()
	}
	out.weightsState = l.weightsState.clone()
	out.biasesState = l.biasesState.clone()
	return out
}

func (s *adamState) clone() *adamState {
	if s == nil {
		return nil
	}
	return &adamState{m: s.m.Clone(), v: s.v.Clone()}
}

// -------- FORWARD / BACKWARD -------- //

// Forward computes input·WeightsT + Biases, then ReLU when enabled.
// Unless isPrediction is set, the result is cached in Output.
func (l *Layer) Forward(input *Matrix, isPrediction bool) *Matrix {
	if input.width != l.WeightsT.height {
		panic(fmt.Sprintf("ml: Layer.Forward: input width %d does not match layer input size %d", input.width, l.WeightsT.height))
	}
	z := input.Dot(l.WeightsT)
	z = z.AddRowToAllRows(l.Biases)

	if l.Activation {
		z = ReluMatrix(z)
	}

	if !isPrediction {
		l.Output = z.Clone()
	}
	return z
}

// Backprop consumes dZ, the gradient of the loss with respect to this layer's
// output, and zPrev, the input this layer saw on the forward pass.
//
// It computes
//
//	dW = zPrevᵀ·dZ + lambda·WeightsT
//	dB = column sums of dZ
//	dZPrev = dZ·WeightsTᵀ
//
// using the weights as they were before this step. dZPrev is masked by the
// ReLU derivative of the previous layer when prevActivation is set and this
// is not the input layer. The optimizer then updates WeightsT and Biases in
// place. The returned GradientSet is only read by debug recorders.
func (l *Layer) Backprop(
	dZ, zPrev *Matrix,
	prevActivation bool,
	lambda float64,
	opt Optimizer,
	iteration int,
	isInputLayer bool,
) (*Matrix, GradientSet) {
	dW := zPrev.transposeView().Dot(dZ).Add(l.WeightsT.Mult(lambda))
	dB := dZ.SumRows()

	dZPrev := dZ.Dot(l.WeightsT.transposeView())
	if !isInputLayer && prevActivation {
		dZPrev = ComputeDReluMask(dZPrev, zPrev)
	}

	opt.update(l.WeightsT, dW, &l.weightsState, iteration)
	opt.update(l.Biases, dB, &l.biasesState, iteration)

	return dZPrev, GradientSet{DW: dW, DB: dB}
}
