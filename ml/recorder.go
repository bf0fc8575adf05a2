package ml

import (
	"fmt"
	"io"
)

// Recorder receives a snapshot of every training step. It is meant for
// golden-value checks and debugging; Train builds no snapshots when
// TrainConfig.Recorder is nil.
type Recorder interface {
	Record(step StepRecord)
}

// StepRecord is everything one mini-batch computed. Slices indexed by layer
// run from the input layer to the output layer.
type StepRecord struct {
	Epoch     int // 1-based
	Batch     int // 1-based within the epoch
	Iteration int

	// Layers is a copy of the parameters as they were before the update.
	Layers []*Layer
	Input  *Matrix
	Labels *Matrix

	Activations []*Matrix // output of every layer
	Softmax     *Matrix

	DataLoss float64
	RegLoss  float64
	Loss     float64

	DScore *Matrix
	DZs    []*Matrix // gradient with respect to each layer's output
	Grads  []GradientSet
}

// History keeps every recorded step in memory.
type History struct {
	Steps []StepRecord
}

func (h *History) Record(step StepRecord) {
	h.Steps = append(h.Steps, step)
}

// WriteCSV dumps every step as titled CSV blocks.
func (h *History) WriteCSV(w io.Writer) error {
	block := func(title string, m *Matrix) error {
		if _, err := fmt.Fprintf(w, "%s\n%s", title, m.CSV()); err != nil {
			return err
		}
		return nil
	}

	for _, s := range h.Steps {
		prefix := fmt.Sprintf("epoch %d batch %d", s.Epoch, s.Batch)
		for i, l := range s.Layers {
			if err := block(fmt.Sprintf("%s layer %d weights_t", prefix, i+1), l.WeightsT); err != nil {
				return err
			}
			if err := block(fmt.Sprintf("%s layer %d biases", prefix, i+1), l.Biases); err != nil {
				return err
			}
		}
		for i, a := range s.Activations {
			if err := block(fmt.Sprintf("%s layer %d output", prefix, i+1), a); err != nil {
				return err
			}
		}
		if err := block(prefix+" softmax", s.Softmax); err != nil {
			return err
		}
		if err := block(prefix+" d_score", s.DScore); err != nil {
			return err
		}
		for i, g := range s.Grads {
			if err := block(fmt.Sprintf("%s layer %d d_w", prefix, i+1), g.DW); err != nil {
				return err
			}
			if err := block(fmt.Sprintf("%s layer %d d_b", prefix, i+1), g.DB); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "%s loss\n%v,%v,%v\n", prefix, s.DataLoss, s.RegLoss, s.Loss); err != nil {
			return err
		}
	}
	return nil
}
