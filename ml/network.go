package ml

import (
	"fmt"
	"strings"
)

// DefaultLambda is the L2 coefficient used by NewNetwork.
const DefaultLambda = 0.001

// Model is an ordered chain of dense layers trained with softmax
// cross-entropy and L2 regularisation.
type Model struct {
	Layers    []*Layer
	Lambda    float64
	Optimizer Optimizer
}

// NewModel assembles layers into a model. Adjacent layers must agree on
// their sizes.
func NewModel(layers []*Layer, opt Optimizer, lambda float64) *Model {
	if len(layers) == 0 {
		panic("ml: NewModel: no layers have been added to the model")
	}
	for i := 1; i < len(layers); i++ {
		if layers[i].InputSize() != layers[i-1].Size() {
			panic(fmt.Sprintf("ml: NewModel: layer %d expects %d inputs but layer %d produces %d",
				i, layers[i].InputSize(), i-1, layers[i-1].Size()))
		}
	}
	return &Model{
		Layers:    layers,
		Lambda:    lambda,
		Optimizer: opt.withDefaults(),
	}
}

// Neural Network Builder
func NewNetwork(configs ...LayerConfig) *Model {
	if len(configs) < 2 {
		panic("Network must have at least Input and one Output layer")
	}
	if !configs[0].IsInput {
		panic("First layer must be Input()")
	}

	layers := make([]*Layer, 0, len(configs)-1)
	prevOutputSize := configs[0].Neurons

	for i := 1; i < len(configs); i++ {
		cfg := configs[i]
		if cfg.IsInput {
			panic(fmt.Sprintf("Layer %d: Input() is only valid as the first layer", i))
		}
		if cfg.Activation == ActSoftmax && i != len(configs)-1 {
			panic(fmt.Sprintf("Layer %d: softmax is only valid on the output layer", i))
		}

		layers = append(layers, NewLayer(prevOutputSize, cfg.Neurons, cfg.Activation == ActRelu, cfg.Source))
		prevOutputSize = cfg.Neurons
	}

	return NewModel(layers, DefaultOptimizer, DefaultLambda)
}

// WithOptimizer replaces the update rule and returns m for chaining.
func (m *Model) WithOptimizer(opt Optimizer) *Model {
	m.Optimizer = opt.withDefaults()
	return m
}

// WithL2 sets the regularisation coefficient and returns m for chaining.
func (m *Model) WithL2(lambda float64) *Model {
	m.Lambda = lambda
	return m
}

// -------- MODEL METHODS -------- //

// Evaluate runs a training forward pass, caching every layer's output, and
// returns the softmax of the final scores.
func (m *Model) Evaluate(input *Matrix) *Matrix {
	return m.evaluate(input, nil)
}

func (m *Model) evaluate(input *Matrix, rec *StepRecord) *Matrix {
	z := input
	for _, layer := range m.Layers {
		z = layer.Forward(z, false)
		if rec != nil {
			rec.Activations = append(rec.Activations, z)
		}
	}
	return Softmax(z)
}

// Predict is Evaluate without touching the cached layer outputs.
func (m *Model) Predict(input *Matrix) *Matrix {
	z := input
	for _, layer := range m.Layers {
		z = layer.Forward(z, true)
	}
	return Softmax(z)
}

// ComputeLoss returns the cross-entropy of score against labels and the
// L2 penalty of the current weights.
func (m *Model) ComputeLoss(score, labels *Matrix) (dataLoss, regLoss float64) {
	return CrossEntropy(score, labels), L2Penalty(m.Layers, m.Lambda)
}

// Accuracy is the fraction of rows of score whose argmax matches labels.
func (m *Model) Accuracy(score, labels *Matrix) float64 {
	return Accuracy(score, labels)
}

// UpdateParams walks the layers from output to input, backpropagating
// dScore and applying one optimizer step per layer. input is the batch the
// preceding Evaluate call saw. iteration is the 1-based batch counter used
// by Adam's bias correction.
func (m *Model) UpdateParams(dScore, input *Matrix, iteration int) []GradientSet {
	return m.updateParams(dScore, input, iteration, nil)
}

func (m *Model) updateParams(dScore, input *Matrix, iteration int, rec *StepRecord) []GradientSet {
	grads := make([]GradientSet, len(m.Layers))
	if rec != nil {
		rec.DZs = make([]*Matrix, len(m.Layers))
	}

	dZ := dScore
	for i := len(m.Layers) - 1; i >= 0; i-- {
		if rec != nil {
			rec.DZs[i] = dZ
		}
		layer := m.Layers[i]
		if i > 0 {
			prev := m.Layers[i-1]
			dZ, grads[i] = layer.Backprop(dZ, prev.Output, prev.Activation, m.Lambda, m.Optimizer, iteration, false)
		} else {
			_, grads[i] = layer.Backprop(dZ, input, false, m.Lambda, m.Optimizer, iteration, true)
		}
	}
	return grads
}

// Clone deep copies every layer.
func (m *Model) Clone() *Model {
	layers := make([]*Layer, len(m.Layers))
	for i, l := range m.Layers {
		layers[i] = l.Clone()
	}
	return &Model{Layers: layers, Lambda: m.Lambda, Optimizer: m.Optimizer}
}

// InputSize is the number of features the first layer expects.
func (m *Model) InputSize() int { return m.Layers[0].InputSize() }

// Classes is the width of the score rows.
func (m *Model) Classes() int { return m.Layers[len(m.Layers)-1].Size() }

// Summary describes the architecture on one line, e.g.
// "784 -> 128 relu -> 10 | λ=0.001 | adam(...)".
func (m *Model) Summary() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d", m.InputSize())
	for _, l := range m.Layers {
		fmt.Fprintf(&sb, " -> %d", l.Size())
		if l.Activation {
			sb.WriteString(" relu")
		}
	}
	fmt.Fprintf(&sb, " | λ=%g | %s", m.Lambda, m.Optimizer)
	return sb.String()
}

// SaveToFile writes the model in the binary checkpoint format.
func (m *Model) SaveToFile(filename string) error {
	return SaveModel(m, filename)
}

// LoadFromFile replaces m's parameters with those stored in filename.
// The stored architecture must match m layer for layer; m keeps its
// optimizer.
func (m *Model) LoadFromFile(filename string) error {
	loaded, err := LoadModel(filename)
	if err != nil {
		return err
	}

	if len(m.Layers) != len(loaded.Layers) {
		return fmt.Errorf("architecture mismatch: current network has %d layers, model file has %d",
			len(m.Layers), len(loaded.Layers))
	}
	for i, l := range m.Layers {
		got := loaded.Layers[i]
		if l.InputSize() != got.InputSize() || l.Size() != got.Size() {
			return fmt.Errorf("architecture mismatch at layer %d: current %dx%d, model file %dx%d",
				i, l.InputSize(), l.Size(), got.InputSize(), got.Size())
		}
		if l.Activation != got.Activation {
			return fmt.Errorf("architecture mismatch at layer %d: activation %t, model file %t",
				i, l.Activation, got.Activation)
		}
	}

	m.Layers = loaded.Layers
	m.Lambda = loaded.Lambda
	return nil
}
