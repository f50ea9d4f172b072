package nn

import (
	"errors"
	"fmt"
	"math"

	"github.com/opst/vitrain/pkg/domain"
)

var ErrEmptyBatch = errors.New("empty batch")

// Softmax converts scores into probabilities.
func Softmax(scores []float64) []float64 {
	out := make([]float64, len(scores))
	if len(scores) == 0 {
		return out
	}
	top := scores[0]
	for _, s := range scores[1:] {
		if s > top {
			top = s
		}
	}
	sum := 0.0
	for i, s := range scores {
		out[i] = math.Exp(s - top)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// Loss function.
type Loss interface {
	// Compute returns the mean loss over the batch and its gradient by scores.
	Compute(scores [][]float64, targets []int) (float64, [][]float64, error)
}

// CrossEntropy is softmax cross-entropy, averaged over the batch.
type CrossEntropy struct{}

var _ Loss = CrossEntropy{}

func (CrossEntropy) Compute(scores [][]float64, targets []int) (float64, [][]float64, error) {
	if len(scores) == 0 {
		return 0, nil, ErrEmptyBatch
	}
	if len(scores) != len(targets) {
		return 0, nil, fmt.Errorf("%w: %d scores for %d targets", ErrShape, len(scores), len(targets))
	}
	n := float64(len(scores))
	total := 0.0
	grads := make([][]float64, len(scores))
	for i, s := range scores {
		t := targets[i]
		if t < 0 || len(s) <= t {
			return 0, nil, fmt.Errorf("%w: target %d is out of %d classes", ErrShape, t, len(s))
		}
		p := Softmax(s)
		total += -math.Log(math.Max(p[t], math.SmallestNonzeroFloat64))
		g := make([]float64, len(s))
		for k := range p {
			g[k] = p[k] / n
		}
		g[t] -= 1 / n
		grads[i] = g
	}
	return total / n, grads, nil
}

// NewLoss returns the loss function of the kind.
func NewLoss(kind domain.LossKind) (Loss, error) {
	k, err := domain.AsLossKind(string(kind))
	if err != nil {
		return nil, err
	}
	switch k {
	case domain.CrossEntropyLoss:
		return CrossEntropy{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedLoss, kind)
	}
}
