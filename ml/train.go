package ml

import (
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"os"
	"time"
)

// DefaultPrintFrequency is the report interval, in batches, when
// TrainConfig.PrintFrequency is zero.
const DefaultPrintFrequency = 100

const (
	CheckpointValAcc CheckpointMetric = iota
	CheckpointValLoss
)

// CheckpointMetric chooses which validation metric decides the best model.
type CheckpointMetric int

func (c CheckpointMetric) String() string {
	if c == CheckpointValLoss {
		return "validation loss"
	}
	return "validation accuracy"
}

// Checkpoint saves the model to Path every time Metric improves.
type Checkpoint struct {
	Metric CheckpointMetric
	Path   string
}

type TrainConfig struct {
	Epochs         int
	BatchSize      int
	ValidationSize int // samples held out before training
	Checkpoint     *Checkpoint

	PrintFrequency int  // report every N batches and on the last batch of an epoch
	Silent         bool // no output at all

	// Debug keeps sample order and skips the validation hold-out so runs are
	// reproducible. No reports are printed.
	Debug    bool
	Recorder Recorder // optional per-batch capture

	Output io.Writer   // report sink, defaults to os.Stdout
	Source rand.Source // shuffle randomness, defaults to a time seed
}

// TrainResult summarises a Train call.
type TrainResult struct {
	Iterations  int     // batches processed
	BestValAcc  float64 // NaN unless checkpointing on accuracy
	BestValLoss float64 // NaN unless checkpointing on loss
	Saves       int     // checkpoints written
}

func (cfg TrainConfig) validate(m *Model, data, labels *Matrix) (TrainConfig, error) {
	if cfg.BatchSize <= 0 {
		return cfg, fmt.Errorf("%w: batch size must be positive, got %d", ErrInvalidConfig, cfg.BatchSize)
	}
	if cfg.Epochs < 0 {
		return cfg, fmt.Errorf("%w: negative epoch count %d", ErrInvalidConfig, cfg.Epochs)
	}
	if labels.height != 1 || labels.width != data.height {
		return cfg, fmt.Errorf("%w: want 1x%d labels for %d samples, got %dx%d",
			ErrInvalidConfig, data.height, data.height, labels.height, labels.width)
	}
	if data.width != m.InputSize() {
		return cfg, fmt.Errorf("%w: samples have %d features, model expects %d",
			ErrInvalidConfig, data.width, m.InputSize())
	}
	if err := ValidateLabels(labels, m.Classes()); err != nil {
		return cfg, err
	}
	if cfg.Debug {
		cfg.ValidationSize = 0
	}
	if cfg.ValidationSize < 0 || (cfg.ValidationSize > 0 && cfg.ValidationSize >= data.height) {
		return cfg, fmt.Errorf("%w: validation size %d leaves no training samples out of %d",
			ErrInvalidConfig, cfg.ValidationSize, data.height)
	}
	if cfg.Checkpoint != nil {
		if cfg.ValidationSize == 0 {
			return cfg, fmt.Errorf("%w: checkpointing needs a validation set", ErrInvalidConfig)
		}
		if cfg.Checkpoint.Path == "" {
			return cfg, fmt.Errorf("%w: checkpoint path is empty", ErrInvalidConfig)
		}
	}

	if cfg.PrintFrequency <= 0 {
		cfg.PrintFrequency = DefaultPrintFrequency
	}
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	if cfg.Source == nil {
		cfg.Source = rand.NewPCG(uint64(time.Now().UnixNano()), 0)
	}
	return cfg, nil
}

// ValidateLabels checks that every label is an integer class index in
// [0, classes). The error wraps ErrInvalidConfig.
func ValidateLabels(labels *Matrix, classes int) error {
	for i, v := range labels.data {
		if v < 0 || v >= float64(classes) || v != math.Trunc(v) {
			return fmt.Errorf("%w: label %v at sample %d is not a class of a %d-way model",
				ErrInvalidConfig, v, i, classes)
		}
	}
	return nil
}

// checkpointTracker remembers the best metric seen so far. The first
// observation only sets the baseline.
type checkpointTracker struct {
	lowerIsBetter bool
	best          float64
	seen          bool
}

// observe reports whether v strictly improves on the best value.
func (t *checkpointTracker) observe(v float64) bool {
	if !t.seen {
		t.seen = true
		t.best = v
		return false
	}
	if (t.lowerIsBetter && v < t.best) || (!t.lowerIsBetter && v > t.best) {
		t.best = v
		return true
	}
	return false
}

// Train fits the model with mini-batch gradient descent.
//
// Unless cfg.Debug is set, samples are shuffled, the first ValidationSize of
// the permutation are held out, and the remaining training pool is
// reshuffled every epoch after the first. Each batch runs Evaluate,
// ComputeDScore and UpdateParams; the iteration counter handed to the
// optimizer starts at 1 and grows by one per batch.
func (m *Model) Train(data, labels *Matrix, cfg TrainConfig) (*TrainResult, error) {
	cfg, err := cfg.validate(m, data, labels)
	if err != nil {
		return nil, err
	}
	out := cfg.Output
	verbose := !cfg.Silent && !cfg.Debug
	rng := rand.New(cfg.Source)

	// 1. Setup & Validation split
	var trainIdx []int
	valData, valLabels := NewMatrix(0, data.width), NewMatrix(1, 0)
	if cfg.Debug {
		trainIdx = NewIndexList(data.height)
	} else {
		perm := rng.Perm(data.height)
		valIdx := perm[:cfg.ValidationSize]
		trainIdx = perm[cfg.ValidationSize:]
		valData = data.Rows(valIdx)
		valLabels = labelsAt(labels, valIdx)
	}

	result := &TrainResult{BestValAcc: math.NaN(), BestValLoss: math.NaN()}
	var tracker *checkpointTracker
	if cfg.Checkpoint != nil {
		tracker = &checkpointTracker{lowerIsBetter: cfg.Checkpoint.Metric == CheckpointValLoss}
	}

	start := time.Now()
	if verbose {
		fmt.Fprintf(out, "Model: %s\n", m.Summary())
		fmt.Fprintf(out, "Starting Training... (%d training / %d validation samples, batch %d, %d epochs)\n",
			len(trainIdx), valData.height, cfg.BatchSize, cfg.Epochs)
	}

	// 2. Training Loop
	iteration := 1
	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		if !cfg.Debug && epoch > 0 {
			ShuffleIndices(rng, trainIdx)
		}
		batches := BatchIndices(trainIdx, cfg.BatchSize)

		for b, idx := range batches {
			batchData := data.Rows(idx)
			batchLabels := labelsAt(labels, idx)

			var rec *StepRecord
			if cfg.Recorder != nil {
				rec = &StepRecord{
					Epoch:     epoch + 1,
					Batch:     b + 1,
					Iteration: iteration,
					Input:     batchData,
					Labels:    batchLabels,
				}
			}

			// --- A. Forward & Backward ---
			score := m.evaluate(batchData, rec)
			dScore := ComputeDScore(score, batchLabels)

			if rec != nil {
				rec.Softmax = score
				rec.DataLoss, rec.RegLoss = m.ComputeLoss(score, batchLabels)
				rec.Loss = rec.DataLoss + rec.RegLoss
				rec.DScore = dScore
				rec.Layers = make([]*Layer, len(m.Layers))
				for i, l := range m.Layers {
					rec.Layers[i] = l.Clone()
				}
			}

			grads := m.updateParams(dScore, batchData, iteration, rec)

			if rec != nil {
				rec.Grads = grads
				cfg.Recorder.Record(*rec)
			}

			// --- B. Checkpointing ---
			if tracker != nil {
				improved := tracker.observe(m.validationMetric(cfg.Checkpoint.Metric, valData, valLabels))
				if improved {
					if err := SaveModel(m, cfg.Checkpoint.Path); err != nil {
						return result, fmt.Errorf("checkpoint at epoch %d batch %d: %w", epoch+1, b+1, err)
					}
					result.Saves++
				}
				if cfg.Checkpoint.Metric == CheckpointValLoss {
					result.BestValLoss = tracker.best
				} else {
					result.BestValAcc = tracker.best
				}
			}

			// --- C. Logging ---
			if verbose && ((b+1)%cfg.PrintFrequency == 0 || b+1 == len(batches)) {
				m.report(out, epoch+1, b+1, len(batches), score, batchLabels, valData, valLabels)
			}

			iteration++
		}
	}
	result.Iterations = iteration - 1

	if !cfg.Silent && cfg.Checkpoint != nil {
		best := result.BestValAcc
		if cfg.Checkpoint.Metric == CheckpointValLoss {
			best = result.BestValLoss
		}
		fmt.Fprintf(out, "Best model saved at %s (%s %.4f, %d saves)\n",
			cfg.Checkpoint.Path, cfg.Checkpoint.Metric, best, result.Saves)
	}
	if verbose {
		fmt.Fprintf(out, "Training Complete. Total Time: %v\n", time.Since(start))
	}
	return result, nil
}

func (m *Model) validationMetric(metric CheckpointMetric, valData, valLabels *Matrix) float64 {
	score := m.Predict(valData)
	if metric == CheckpointValLoss {
		return CrossEntropy(score, valLabels)
	}
	return Accuracy(score, valLabels)
}

func (m *Model) report(out io.Writer, epoch, batch, batches int, score, labels, valData, valLabels *Matrix) {
	loss, reg := m.ComputeLoss(score, labels)
	acc := Accuracy(score, labels) * 100

	if valData.height == 0 {
		fmt.Fprintf(out, "Epoch %d | Batch %d/%d | Loss: %.4f | L2: %.4f | Acc: %.2f%%\n",
			epoch, batch, batches, loss, reg, acc)
		return
	}

	valScore := m.Predict(valData)
	valLoss := CrossEntropy(valScore, valLabels)
	valAcc := Accuracy(valScore, valLabels) * 100
	fmt.Fprintf(out, "Epoch %d | Batch %d/%d | Loss: %.4f | L2: %.4f | Acc: %.2f%% | Val Loss: %.4f | Val Acc: %.2f%%\n",
		epoch, batch, batches, loss, reg, acc, valLoss, valAcc)
}

// ------ DATA HANDLING HELPERS ------
func NewIndexList(size int) []int {
	indices := make([]int, size)
	for i := range indices {
		indices[i] = i
	}
	return indices
}

func ShuffleIndices(rng *rand.Rand, indices []int) {
	rng.Shuffle(len(indices), func(i, j int) {
		indices[i], indices[j] = indices[j], indices[i]
	})
}

// BatchIndices cuts indices into consecutive groups of size. The last group
// may be shorter; there is never an empty group.
func BatchIndices(indices []int, size int) [][]int {
	if size <= 0 {
		panic(fmt.Sprintf("ml: BatchIndices: batch size must be positive, got %d", size))
	}
	batches := make([][]int, 0, (len(indices)+size-1)/size)
	for start := 0; start < len(indices); start += size {
		end := min(start+size, len(indices))
		batches = append(batches, indices[start:end])
	}
	return batches
}

// labelsAt gathers labels[0, idx[i]] into a new 1×len(idx) row.
func labelsAt(labels *Matrix, idx []int) *Matrix {
	out := NewMatrix(1, len(idx))
	for i, j := range idx {
		out.data[i] = labels.Get(0, j)
	}
	return out
}
