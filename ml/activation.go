package ml

import "math"

func Relu(x float64) float64 {
	if x > 0 {
		return x
	}
	return 0
}

// ReluMatrix applies max(0, x) to every element.
func ReluMatrix(m *Matrix) *Matrix {
	return m.apply(Relu)
}

// Softmax turns every row of scores into a probability distribution.
// The row maximum is subtracted before exponentiating.
func Softmax(scores *Matrix) *Matrix {
	out := NewMatrix(scores.height, scores.width)
	row := make([]float64, scores.width)
	for r := 0; r < scores.height; r++ {
		maxVal := math.Inf(-1)
		for c := 0; c < scores.width; c++ {
			row[c] = scores.Get(r, c)
			if row[c] > maxVal {
				maxVal = row[c]
			}
		}
		sum := 0.0
		for c := range row {
			row[c] = math.Exp(row[c] - maxVal)
			sum += row[c]
		}
		for c, v := range row {
			out.data[r*out.width+c] = v / sum
		}
	}
	return out
}
