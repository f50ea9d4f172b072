package nn

import (
	"fmt"
	"math"

	"github.com/opst/vitrain/pkg/domain"
)

// Optimizer updates parameters with their gradients.
type Optimizer interface {
	Step()
}

// AdamW is Adam with decoupled weight decay (Loshchilov & Hutter).
type AdamW struct {
	params []*Parameter

	lr          float64
	beta1       float64
	beta2       float64
	eps         float64
	weightDecay float64

	step int
	m    [][]float64
	v    [][]float64
}

var _ Optimizer = &AdamW{}

func NewAdamW(params []*Parameter, lr float64, weightDecay float64) *AdamW {
	a := &AdamW{
		params: params,
		lr:     lr, beta1: 0.9, beta2: 0.999, eps: 1e-8,
		weightDecay: weightDecay,
		m:           make([][]float64, len(params)),
		v:           make([][]float64, len(params)),
	}
	for i, p := range params {
		a.m[i] = make([]float64, len(p.Value))
		a.v[i] = make([]float64, len(p.Value))
	}
	return a
}

func (a *AdamW) Step() {
	a.step += 1
	bc1 := 1 - math.Pow(a.beta1, float64(a.step))
	bc2 := 1 - math.Pow(a.beta2, float64(a.step))
	for i, p := range a.params {
		m, v := a.m[i], a.v[i]
		for j, g := range p.Grad {
			p.Value[j] -= a.lr * a.weightDecay * p.Value[j]
			m[j] = a.beta1*m[j] + (1-a.beta1)*g
			v[j] = a.beta2*v[j] + (1-a.beta2)*g*g
			mhat := m[j] / bc1
			vhat := v[j] / bc2
			p.Value[j] -= a.lr * mhat / (math.Sqrt(vhat) + a.eps)
		}
	}
}

// NewOptimizer returns the optimizer of the kind over params.
func NewOptimizer(kind domain.OptimizerKind, params []*Parameter, lr float64, weightDecay float64) (Optimizer, error) {
	k, err := domain.AsOptimizerKind(string(kind))
	if err != nil {
		return nil, err
	}
	switch k {
	case domain.AdamW:
		return NewAdamW(params, lr, weightDecay), nil
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedOptimizer, kind)
	}
}
