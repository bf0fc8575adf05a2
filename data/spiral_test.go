package data

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpiral(t *testing.T) {
	X, Y := Spiral(50, 3, rand.NewPCG(1, 2))

	require.Equal(t, 150, X.Height())
	require.Equal(t, 2, X.Width())
	require.Equal(t, 150, Y.Width())

	for row := 0; row < 150; row++ {
		assert.Equal(t, float64(row/50), Y.Get(0, row))
		r := math.Hypot(X.Get(row, 0), X.Get(row, 1))
		assert.LessOrEqual(t, r, 1+1e-12)
	}

	// The first point of every arm sits at the origin, the last on the unit circle.
	assert.InDelta(t, 0, math.Hypot(X.Get(50, 0), X.Get(50, 1)), 1e-12)
	assert.InDelta(t, 1, math.Hypot(X.Get(99, 0), X.Get(99, 1)), 1e-12)
}

func TestSpiralIsDeterministic(t *testing.T) {
	a, _ := Spiral(20, 2, rand.NewPCG(7, 7))
	b, _ := Spiral(20, 2, rand.NewPCG(7, 7))
	c, _ := Spiral(20, 2, rand.NewPCG(8, 8))

	assert.True(t, a.IsEqual(b, 15))
	assert.False(t, a.IsEqual(c, 15))
}

func TestSpiralRejectsDegenerateSizes(t *testing.T) {
	assert.Panics(t, func() { Spiral(1, 3, nil) })
	assert.Panics(t, func() { Spiral(10, 0, nil) })
	assert.NotPanics(t, func() { Spiral(2, 1, nil) })
}
