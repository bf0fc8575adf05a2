package ml

import (
	"fmt"
	"sort"
)

// Prediction is one candidate class for a sample.
type Prediction struct {
	Class       int
	Probability float64
}

func (p Prediction) String() string {
	return fmt.Sprintf("%d (%.2f%%)", p.Class, p.Probability*100)
}

// TopK ranks the k most probable classes of a probability row, highest
// first. Equal probabilities keep the lower class first. A k outside
// [1, len(probs)] ranks every class.
func TopK(probs []float64, k int) []Prediction {
	numClasses := len(probs)
	if k <= 0 || k > numClasses {
		k = numClasses
	}

	indexed := make([]Prediction, numClasses)
	for i, p := range probs {
		indexed[i] = Prediction{Class: i, Probability: p}
	}

	// Sort in descending order by probability
	sort.SliceStable(indexed, func(i, j int) bool {
		return indexed[i].Probability > indexed[j].Probability
	})
	return indexed[:k]
}

// Classify runs a prediction pass over every row of input and returns the
// k best classes of each sample.
func (m *Model) Classify(input *Matrix, k int) [][]Prediction {
	probs := m.Predict(input)
	out := make([][]Prediction, probs.height)
	for r := range out {
		out[r] = TopK(probs.Row(r), k)
	}
	return out
}
