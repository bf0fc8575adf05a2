package ml

import (
	"fmt"
	"math"
)

// labelIndex reads labels[0, r] as a class index into a row of width classes.
func labelIndex(labels *Matrix, r, classes int) int {
	v := labels.Get(0, r)
	idx := int(v)
	if float64(idx) != v || idx < 0 || idx >= classes {
		panic(fmt.Sprintf("ml: label %v at sample %d is not a class index in [0,%d)", v, r, classes))
	}
	return idx
}

func mustLabelsFor(op string, score, labels *Matrix) {
	if labels.height != 1 || labels.width != score.height {
		panic(fmt.Sprintf("ml: %s: want 1x%d labels for %d samples, got %dx%d",
			op, score.height, score.height, labels.height, labels.width))
	}
}

// OneHotSelect returns the 1×N row holding, for each sample, the score at
// the index of its label.
func OneHotSelect(score, labels *Matrix) *Matrix {
	mustLabelsFor("OneHotSelect", score, labels)
	out := NewMatrix(1, score.height)
	for r := 0; r < score.height; r++ {
		out.data[r] = score.Get(r, labelIndex(labels, r, score.width))
	}
	return out
}

// CrossEntropy is the mean of -ln(p) over the probabilities the model gave
// to the true labels.
func CrossEntropy(score, labels *Matrix) float64 {
	selected := OneHotSelect(score, labels)
	var sum float64
	for _, p := range selected.data {
		sum += -math.Log(p)
	}
	return sum / float64(score.height)
}

// L2Penalty returns 0.5·lambda·Σ‖WeightsT‖².
func L2Penalty(layers []*Layer, lambda float64) float64 {
	var sum float64
	for _, l := range layers {
		sum += l.WeightsT.Pow(2).Sum()
	}
	return 0.5 * lambda * sum
}

// ComputeDScore is the gradient of softmax + cross-entropy with respect to
// the raw scores: score minus the one-hot label. It is not divided by the
// batch size.
func ComputeDScore(score, labels *Matrix) *Matrix {
	mustLabelsFor("ComputeDScore", score, labels)
	out := NewMatrix(score.height, score.width)
	for r := 0; r < score.height; r++ {
		label := labelIndex(labels, r, score.width)
		for c := 0; c < score.width; c++ {
			v := score.Get(r, c)
			if c == label {
				v -= 1.0
			}
			out.data[r*out.width+c] = v
		}
	}
	return out
}

// EvaluationOutput returns the 1×N row of predicted classes, the column of
// the highest score in each row. Ties go to the lowest index.
func EvaluationOutput(score *Matrix) *Matrix {
	out := NewMatrix(1, score.height)
	for r := 0; r < score.height; r++ {
		best := 0
		bestVal := math.Inf(-1)
		for c := 0; c < score.width; c++ {
			if v := score.Get(r, c); v > bestVal {
				bestVal = v
				best = c
			}
		}
		out.data[r] = float64(best)
	}
	return out
}

// Accuracy is the fraction of rows whose predicted class equals the label.
func Accuracy(score, labels *Matrix) float64 {
	mustLabelsFor("Accuracy", score, labels)
	predicted := EvaluationOutput(score)
	correct := 0
	for i := 0; i < predicted.width; i++ {
		if predicted.data[i] == labels.Get(0, i) {
			correct++
		}
	}
	return float64(correct) / float64(predicted.width)
}
