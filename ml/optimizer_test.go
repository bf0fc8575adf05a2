package ml

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSGDUpdate(t *testing.T) {
	param := NewMatrixFromRows([][]float64{{1, 2}, {3, 4}})
	grad := NewMatrixFromRows([][]float64{{0.5, 0.5}, {1, -1}})
	var state *adamState

	SGD(0.1).update(param, grad, &state, 1)

	assert.True(t, param.IsEqual(NewMatrixFromRows([][]float64{{0.95, 1.95}, {2.9, 4.1}}), 10))
	assert.Nil(t, state, "SGD keeps no state")
}

func TestSGDUpdateTransposedGradient(t *testing.T) {
	param := NewMatrixFromRows([][]float64{{1, 2}, {3, 4}})
	grad := NewMatrixFromRows([][]float64{{1, 3}, {2, 4}}).Transpose() // [[1,2],[3,4]]
	var state *adamState

	SGD(1).update(param, grad, &state, 1)
	assert.True(t, param.IsEqual(NewMatrix(2, 2), 10))
}

// Fixed moments at iteration 7. Expected values come from a scalar
// evaluation of the Adam rule with epsilon 1e-7.
func TestAdamIterationSeven(t *testing.T) {
	param := NewMatrixFromRows([][]float64{{0.5, -0.25, 1.0}, {0.1, 0.0, -2.0}})
	grad := NewMatrixFromRows([][]float64{{0.1, -0.2, 0.3}, {-0.4, 0.5, 0.0}})
	state := &adamState{
		m: NewMatrixFromRows([][]float64{{0.01, 0.02, -0.03}, {0.04, -0.05, 0.06}}),
		v: NewMatrixFromRows([][]float64{{0.001, 0.002, 0.003}, {0.004, 0.005, 0.006}}),
	}

	Adam(0.001, 0.9, 0.999).update(param, grad, &state, 7)

	wantParam := NewMatrixFromRows([][]float64{
		{0.49990421838106913, -0.24999290582177064, 0.9999913537628267},
		{0.10000993565345437, -1.1055324068095879e-05, -2.0001116887970545},
	})
	wantM := NewMatrixFromRows([][]float64{{0.019, -0.002, 0.003}, {-0.004, 0.005, 0.054}})
	wantV := NewMatrixFromRows([][]float64{{0.001009, 0.002038, 0.003087}, {0.004156, 0.005245, 0.005994}})

	assert.True(t, param.IsEqual(wantParam, 10), "param\n%v", param)
	assert.True(t, state.m.IsEqual(wantM, 10), "m\n%v", state.m)
	assert.True(t, state.v.IsEqual(wantV, 10), "v\n%v", state.v)
}

func TestAdamIsDeterministic(t *testing.T) {
	run := func() *Matrix {
		param := NewRandomMatrix(4, 3, seeded(11))
		grad := NewRandomMatrix(4, 3, seeded(12))
		var state *adamState
		opt := Adam(0.001, 0.9, 0.999)
		for it := 1; it <= 7; it++ {
			opt.update(param, grad, &state, it)
		}
		return param
	}
	assert.True(t, run().IsEqual(run(), 15))
}

func TestAdamCreatesStateLazily(t *testing.T) {
	param := NewMatrixFromRows([][]float64{{1, 2}})
	grad := NewMatrixFromRows([][]float64{{0.5, -2}})
	var state *adamState

	Adam(0.001, 0.9, 0.999).update(param, grad, &state, 1)

	require.NotNil(t, state)
	assert.True(t, state.m.IsEqual(NewMatrixFromRows([][]float64{{0.05, -0.2}}), 10))
	assert.True(t, state.v.IsEqual(NewMatrixFromRows([][]float64{{0.00025, 0.004}}), 10))

	// At t=1 the bias corrected step is lr·sign(g), up to epsilon.
	assert.InDelta(t, 0.999, param.Get(0, 0), 1e-6)
	assert.InDelta(t, 2.001, param.Get(0, 1), 1e-6)
}

func TestAdamTransposedParameterMatchesRowMajor(t *testing.T) {
	rows := [][]float64{{0.5, -1}, {2, 0.25}, {-0.75, 1.5}}
	grads := NewMatrixFromRows([][]float64{{0.1, 0.2}, {-0.3, 0.4}, {0.5, -0.6}})
	opt := Adam(0.01, 0.9, 0.999)

	plain := NewMatrixFromRows(rows)
	var plainState *adamState

	// Same logical values, transposed storage.
	flipped := NewMatrixFromRows([][]float64{{0.5, 2, -0.75}, {-1, 0.25, 1.5}}).Transpose()
	var flippedState *adamState

	for it := 1; it <= 3; it++ {
		opt.update(plain, grads, &plainState, it)
		opt.update(flipped, grads, &flippedState, it)
	}
	assert.True(t, plain.IsEqual(flipped, 12))
	assert.True(t, flipped.Transposed())
}

func TestAdamRejectsIterationZero(t *testing.T) {
	param := NewMatrix(1, 1)
	var state *adamState
	assert.Panics(t, func() { Adam(0.001, 0.9, 0.999).update(param, NewMatrix(1, 1), &state, 0) })
}

func TestUpdateShapeMismatchPanics(t *testing.T) {
	var state *adamState
	assert.Panics(t, func() { SGD(0.1).update(NewMatrix(2, 2), NewMatrix(2, 3), &state, 1) })
}

func TestParseOptimizer(t *testing.T) {
	opt, err := ParseOptimizer("adam", 0.002)
	require.NoError(t, err)
	assert.Equal(t, Adam(0.002, 0.9, 0.999), opt)

	opt, err = ParseOptimizer("sgd", 0.5)
	require.NoError(t, err)
	assert.Equal(t, SGD(0.5), opt)

	_, err = ParseOptimizer("rmsprop", 0.1)
	assert.Error(t, err)
}

func TestOptimizerDefaults(t *testing.T) {
	assert.Equal(t, DefaultAdamConfig, Optimizer{Type: OptAdam}.withDefaults())
	assert.Equal(t, DefaultOptimizer, Optimizer{}.withDefaults())
	assert.Equal(t, SGD(0.3), Optimizer{LearningStep: 0.3}.withDefaults())

	// Partially specified optimizers are kept as written.
	assert.Equal(t, Adam(0.01, 0, 0.999), Adam(0.01, 0, 0.999).withDefaults())
	assert.Equal(t, Adam(0.01, 0.9, 0), Adam(0.01, 0.9, 0).withDefaults())
	assert.Equal(t, Adam(0, 0.5, 0.5), Adam(0, 0.5, 0.5).withDefaults())
	assert.Equal(t, "sgd(step=0.01)", DefaultOptimizer.String())
}

func TestModelKeepsExplicitZeroBeta(t *testing.T) {
	m := NewModel([]*Layer{NewLayerWithWeights(false, NewMatrix(2, 2))}, Adam(0.01, 0, 0.999), 0)
	assert.Zero(t, m.Optimizer.Beta1)

	m.WithOptimizer(Adam(0.02, 0.9, 0))
	assert.Zero(t, m.Optimizer.Beta2)
	assert.Equal(t, 0.02, m.Optimizer.LearningStep)
}
