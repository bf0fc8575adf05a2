package data

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/AlexisAoun/brique/ml"
)

// SpiralNoise is the standard deviation of the angle jitter.
const SpiralNoise = 0.2

// Spiral generates the classic interleaved spiral toy problem: classes arms
// of points samples each in the plane. Arm k sweeps angles [4k, 4k+4] while
// the radius grows linearly from 0 to 1. X is (points·classes)×2 and Y the
// matching 1×(points·classes) label row. A nil src draws a fresh seed.
func Spiral(points, classes int, src rand.Source) (X, Y *ml.Matrix) {
	if points < 2 || classes < 1 {
		panic(fmt.Sprintf("data: Spiral: need at least 2 points and 1 class, got %d and %d", points, classes))
	}
	if src == nil {
		src = rand.NewPCG(uint64(time.Now().UnixNano()), 0)
	}
	noise := distuv.Normal{Mu: 0, Sigma: SpiralNoise, Src: src}

	X = ml.NewMatrix(points*classes, 2)
	Y = ml.NewMatrix(1, points*classes)

	radius := floats.Span(make([]float64, points), 0, 1)
	theta := make([]float64, points)
	for class := 0; class < classes; class++ {
		floats.Span(theta, float64(class)*4, float64(class+1)*4)
		for i := range theta {
			t := theta[i] + noise.Rand()
			row := class*points + i
			X.Set(row, 0, radius[i]*math.Sin(t))
			X.Set(row, 1, radius[i]*math.Cos(t))
			Y.Set(0, row, float64(class))
		}
	}
	return X, Y
}
