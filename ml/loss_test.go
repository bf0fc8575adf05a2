package ml

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSoftmax(t *testing.T) {
	got := Softmax(NewMatrixFromRows([][]float64{{1, 2, 3}, {1000, 1000, 1000}}))
	want := NewMatrixFromRows([][]float64{
		{0.09003057317038046, 0.24472847105479764, 0.6652409557748218},
		{1.0 / 3, 1.0 / 3, 1.0 / 3},
	})
	assert.True(t, got.IsEqual(want, 12), "got\n%v", got)

	for r := 0; r < got.Height(); r++ {
		sum := 0.0
		for _, v := range got.Row(r) {
			sum += v
		}
		assert.InDelta(t, 1.0, sum, 1e-12)
	}
}

func TestRelu(t *testing.T) {
	assert.Equal(t, 0.0, Relu(-2))
	assert.Equal(t, 0.0, Relu(0))
	assert.Equal(t, 1.5, Relu(1.5))
	assert.True(t, ReluMatrix(NewMatrixFromRows([][]float64{{-1, 2}})).IsEqual(NewMatrixFromRows([][]float64{{0, 2}}), 10))
}

func TestCrossEntropy(t *testing.T) {
	score := NewMatrixFromRows([][]float64{{0.5, 0.5}, {0.25, 0.75}})
	labels := NewMatrixFromRows([][]float64{{0, 1}})

	assert.InDelta(t, 0.4904146265058631, CrossEntropy(score, labels), 1e-12)
	assert.True(t, OneHotSelect(score, labels).IsEqual(NewMatrixFromRows([][]float64{{0.5, 0.75}}), 10))

	// No clamping: a zero probability gives an infinite loss.
	assert.True(t, math.IsInf(CrossEntropy(NewMatrixFromRows([][]float64{{1, 0}}), NewMatrixFromRows([][]float64{{1}})), 1))
}

func TestLabelValidation(t *testing.T) {
	score := NewMatrixFromRows([][]float64{{0.5, 0.5}})
	assert.Panics(t, func() { CrossEntropy(score, NewMatrixFromRows([][]float64{{2}})) })
	assert.Panics(t, func() { CrossEntropy(score, NewMatrixFromRows([][]float64{{0.5}})) })
	assert.Panics(t, func() { CrossEntropy(score, NewMatrixFromRows([][]float64{{0, 1}})) })
}

func TestL2Penalty(t *testing.T) {
	layers := []*Layer{
		NewLayerWithWeights(true, NewMatrixFromRows([][]float64{{1, 2}, {3, 4}})),
		NewLayerWithWeights(false, NewMatrixFromRows([][]float64{{-1}, {1}})),
	}
	assert.InDelta(t, 0.5*0.1*32, L2Penalty(layers, 0.1), 1e-12)
	assert.Equal(t, 0.0, L2Penalty(layers, 0))
}

func TestComputeDScore(t *testing.T) {
	score := NewMatrixFromRows([][]float64{{0.2, 0.8}, {0.6, 0.4}})
	labels := NewMatrixFromRows([][]float64{{1, 1}})

	// Not divided by the batch size.
	want := NewMatrixFromRows([][]float64{{0.2, -0.2}, {0.6, -0.6}})
	assert.True(t, ComputeDScore(score, labels).IsEqual(want, 10))
}

func TestEvaluationOutput(t *testing.T) {
	score := NewMatrixFromRows([][]float64{{0.1, 1.3, 0.5}, {12, 1.01, -1000}})
	assert.True(t, EvaluationOutput(score).IsEqual(NewMatrixFromRows([][]float64{{1, 0}}), 10))

	// All negative rows still pick their maximum.
	negative := NewMatrixFromRows([][]float64{{-3, -1, -2}})
	assert.Equal(t, 1.0, EvaluationOutput(negative).Get(0, 0))

	// Ties go to the lowest index.
	ties := NewMatrixFromRows([][]float64{{0.2, 0.4, 0.4}, {0.5, 0.5, 0}})
	assert.True(t, EvaluationOutput(ties).IsEqual(NewMatrixFromRows([][]float64{{1, 0}}), 10))
}

func TestAccuracy(t *testing.T) {
	score := NewMatrixFromRows([][]float64{{0.1, 0.9}, {0.8, 0.2}, {0.3, 0.7}})

	assert.Equal(t, 1.0, Accuracy(score, NewMatrixFromRows([][]float64{{1, 0, 1}})))
	assert.Equal(t, 0.0, Accuracy(score, NewMatrixFromRows([][]float64{{0, 1, 0}})))
	assert.InDelta(t, 2.0/3, Accuracy(score, NewMatrixFromRows([][]float64{{1, 1, 1}})), 1e-12)
}
