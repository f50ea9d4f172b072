package train

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/opst/vitrain/pkg/dataset"
	"github.com/opst/vitrain/pkg/nn"
)

// Model is a trainable classifier.
//
// Forward returns class scores for each input.
type Model interface {
	Forward(x [][]float64) ([][]float64, error)
	Backward(x [][]float64, gradScores [][]float64) error
	ZeroGrad()
	Parameters() []*nn.Parameter

	MarshalBinary() ([]byte, error)
}

// Batches gives batches of each epoch.
type Batches interface {
	Epoch(epoch int) []dataset.Batch
}

// EpochRunner passes a model through batches once.
type EpochRunner struct {
	// Progress, if set, is called after each batch with the loss of the batch.
	Progress func(epoch int, batch int, loss float64)
}

func (r EpochRunner) progress(epoch, batch int, loss float64) {
	if r.Progress != nil {
		r.Progress(epoch, batch, loss)
	}
}

func finite(loss float64) error {
	if math.IsNaN(loss) || math.IsInf(loss, 0) {
		return fmt.Errorf("%w: %v", ErrNonFiniteLoss, loss)
	}
	return nil
}

func mean(acc *Accumulator) (float64, error) {
	m, err := acc.Mean()
	if errors.Is(err, ErrNoObservation) {
		return 0, ErrEmptyLoader
	}
	return m, err
}

// RunTrainingEpoch trains the model with each batch once.
//
// For each batch, gradients are cleared, loss is backpropagated and the optimizer steps once.
//
// Returns the mean of losses over batches.
func (r EpochRunner) RunTrainingEpoch(
	ctx context.Context, epoch int, model Model, optimizer nn.Optimizer, loss nn.Loss, batches []dataset.Batch,
) (float64, error) {
	acc := &Accumulator{}
	for i, b := range batches {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		model.ZeroGrad()
		scores, err := model.Forward(b.Features)
		if err != nil {
			return 0, err
		}
		l, grads, err := loss.Compute(scores, b.Labels)
		if err != nil {
			return 0, err
		}
		if err := finite(l); err != nil {
			return 0, fmt.Errorf("epoch %d, batch %d: %w", epoch, i, err)
		}
		if err := model.Backward(b.Features, grads); err != nil {
			return 0, err
		}
		optimizer.Step()
		acc.Add(l)
		r.progress(epoch, i, l)
	}
	return mean(acc)
}

// RunValidationEpoch evaluates the model with each batch once, without training.
//
// Returns
//
// - float64: the mean of losses over batches
//
// - float64: accuracy, the ratio of samples where the highest score is of the label
//
// - error
func (r EpochRunner) RunValidationEpoch(
	ctx context.Context, epoch int, model Model, loss nn.Loss, batches []dataset.Batch,
) (float64, float64, error) {
	acc := &Accumulator{}
	correct, total := 0, 0
	for i, b := range batches {
		if err := ctx.Err(); err != nil {
			return 0, 0, err
		}
		scores, err := model.Forward(b.Features)
		if err != nil {
			return 0, 0, err
		}
		l, _, err := loss.Compute(scores, b.Labels)
		if err != nil {
			return 0, 0, err
		}
		if err := finite(l); err != nil {
			return 0, 0, fmt.Errorf("epoch %d, batch %d: %w", epoch, i, err)
		}
		acc.Add(l)
		for n, s := range scores {
			if argmax(s) == b.Labels[n] {
				correct += 1
			}
		}
		total += len(scores)
		r.progress(epoch, i, l)
	}
	valLoss, err := mean(acc)
	if err != nil {
		return 0, 0, err
	}
	if total == 0 {
		return 0, 0, ErrEmptyLoader
	}
	return valLoss, float64(correct) / float64(total), nil
}

func argmax(s []float64) int {
	best := 0
	for i, v := range s {
		if v > s[best] {
			best = i
		}
	}
	return best
}
