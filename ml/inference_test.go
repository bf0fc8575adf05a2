package ml

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopK(t *testing.T) {
	probs := []float64{0.1, 0.5, 0.15, 0.25}

	got := TopK(probs, 2)
	assert.Equal(t, []Prediction{{Class: 1, Probability: 0.5}, {Class: 3, Probability: 0.25}}, got)
	assert.Equal(t, "1 (50.00%)", got[0].String())

	assert.Len(t, TopK(probs, 0), 4)
	assert.Len(t, TopK(probs, 10), 4)
	assert.Equal(t, 0, TopK(probs, -1)[3].Class)

	ties := TopK([]float64{0.3, 0.4, 0.3}, 3)
	assert.Equal(t, []int{1, 0, 2}, []int{ties[0].Class, ties[1].Class, ties[2].Class})
}

func TestClassify(t *testing.T) {
	m := fixedModel(DefaultOptimizer, 0)
	x, _ := fixedInput()

	got := m.Classify(x, 1)
	require.Len(t, got, 3)

	want := EvaluationOutput(m.Predict(x))
	for r, preds := range got {
		require.Len(t, preds, 1)
		assert.Equal(t, int(want.Get(0, r)), preds[0].Class)
		assert.Greater(t, preds[0].Probability, 1.0/3)
	}
}
