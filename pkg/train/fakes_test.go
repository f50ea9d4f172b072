package train_test

import (
	"math"

	"github.com/opst/vitrain/pkg/dataset"
	"github.com/opst/vitrain/pkg/nn"
)

// constModel scores class 0 highest for every input.
type constModel struct {
	nan bool

	param     nn.Parameter
	zeroGrads int
	backwards int
}

func newConstModel() *constModel {
	return &constModel{param: nn.Parameter{Name: "w", Value: []float64{0}, Grad: []float64{0}}}
}

func (m *constModel) Forward(x [][]float64) ([][]float64, error) {
	out := make([][]float64, len(x))
	for i := range x {
		if m.nan {
			out[i] = []float64{math.NaN(), 0}
		} else {
			out[i] = []float64{1, 0}
		}
	}
	return out, nil
}

func (m *constModel) Backward(x [][]float64, g [][]float64) error {
	m.backwards += 1
	return nil
}

func (m *constModel) ZeroGrad() {
	m.zeroGrads += 1
}

func (m *constModel) Parameters() []*nn.Parameter {
	return []*nn.Parameter{&m.param}
}

func (m *constModel) MarshalBinary() ([]byte, error) {
	return []byte("const-model"), nil
}

// scripted gives, for each epoch, a single batch where constModel scores the accuracy.
type scripted struct {
	accuracies []float64
	samples    int
}

func accuracies(acc ...float64) *scripted {
	return &scripted{accuracies: acc, samples: 20}
}

func (s *scripted) Epoch(epoch int) []dataset.Batch {
	acc := s.accuracies[min(epoch, len(s.accuracies)-1)]
	correct := int(math.Round(acc * float64(s.samples)))
	b := dataset.Batch{}
	for i := range s.samples {
		b.Features = append(b.Features, []float64{float64(i)})
		if i < correct {
			b.Labels = append(b.Labels, 0)
		} else {
			b.Labels = append(b.Labels, 1)
		}
	}
	return []dataset.Batch{b}
}

type fixedBatches []dataset.Batch

func (f fixedBatches) Epoch(int) []dataset.Batch {
	return f
}

func trainBatches(n int) fixedBatches {
	out := fixedBatches{}
	for range n {
		out = append(out, dataset.Batch{Features: [][]float64{{0}, {1}}, Labels: []int{0, 0}})
	}
	return out
}
