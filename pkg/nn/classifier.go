package nn

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
)

var ErrShape = errors.New("shape mismatch")

// Parameter is a trainable tensor, flattened, with its gradient.
type Parameter struct {
	Name  string
	Value []float64
	Grad  []float64
}

// Linear classification head.
//
// For input x, scores are W x + b. Scores are logits: apply Softmax to get probabilities.
type Classifier struct {
	inFeatures int
	classes    int

	// row major, classes x inFeatures
	weight Parameter
	bias   Parameter
}

// NewClassifier creates a head with weights drawn from U(-1/sqrt(in), 1/sqrt(in)).
func NewClassifier(inFeatures int, classes int, rng *rand.Rand) (*Classifier, error) {
	if inFeatures <= 0 || classes <= 0 {
		return nil, fmt.Errorf("%w: features=%d, classes=%d", ErrShape, inFeatures, classes)
	}
	bound := 1 / math.Sqrt(float64(inFeatures))
	c := &Classifier{
		inFeatures: inFeatures,
		classes:    classes,
		weight: Parameter{
			Name:  "weight",
			Value: make([]float64, classes*inFeatures),
			Grad:  make([]float64, classes*inFeatures),
		},
		bias: Parameter{
			Name:  "bias",
			Value: make([]float64, classes),
			Grad:  make([]float64, classes),
		},
	}
	for i := range c.weight.Value {
		c.weight.Value[i] = (rng.Float64()*2 - 1) * bound
	}
	for i := range c.bias.Value {
		c.bias.Value[i] = (rng.Float64()*2 - 1) * bound
	}
	return c, nil
}

func (c *Classifier) InFeatures() int {
	return c.inFeatures
}

func (c *Classifier) Classes() int {
	return c.classes
}

func (c *Classifier) Parameters() []*Parameter {
	return []*Parameter{&c.weight, &c.bias}
}

func (c *Classifier) checkInput(x [][]float64) error {
	for i, row := range x {
		if len(row) != c.inFeatures {
			return fmt.Errorf("%w: input #%d has %d features, want %d", ErrShape, i, len(row), c.inFeatures)
		}
	}
	return nil
}

// Forward computes scores of each class for each input row.
func (c *Classifier) Forward(x [][]float64) ([][]float64, error) {
	if err := c.checkInput(x); err != nil {
		return nil, err
	}
	scores := make([][]float64, len(x))
	for n, row := range x {
		s := make([]float64, c.classes)
		for k := range c.classes {
			w := c.weight.Value[k*c.inFeatures : (k+1)*c.inFeatures]
			acc := c.bias.Value[k]
			for i, v := range row {
				acc += w[i] * v
			}
			s[k] = acc
		}
		scores[n] = s
	}
	return scores, nil
}

// Backward accumulates gradients of parameters,
// given x passed to Forward and the gradient of loss by the scores.
func (c *Classifier) Backward(x [][]float64, gradScores [][]float64) error {
	if err := c.checkInput(x); err != nil {
		return err
	}
	if len(gradScores) != len(x) {
		return fmt.Errorf("%w: %d gradients for %d inputs", ErrShape, len(gradScores), len(x))
	}
	for n, row := range x {
		g := gradScores[n]
		if len(g) != c.classes {
			return fmt.Errorf("%w: gradient #%d has %d classes, want %d", ErrShape, n, len(g), c.classes)
		}
		for k, gk := range g {
			c.bias.Grad[k] += gk
			gw := c.weight.Grad[k*c.inFeatures : (k+1)*c.inFeatures]
			for i, v := range row {
				gw[i] += gk * v
			}
		}
	}
	return nil
}

func (c *Classifier) ZeroGrad() {
	for _, p := range c.Parameters() {
		clear(p.Grad)
	}
}

// Predict returns class probabilities of a single input.
func (c *Classifier) Predict(x []float64) ([]float64, error) {
	scores, err := c.Forward([][]float64{x})
	if err != nil {
		return nil, err
	}
	return Softmax(scores[0]), nil
}

type classifierJSON struct {
	InFeatures int       `json:"in_features"`
	Classes    int       `json:"classes"`
	Weight     []float64 `json:"weight"`
	Bias       []float64 `json:"bias"`
}

func (c *Classifier) MarshalBinary() ([]byte, error) {
	return json.Marshal(classifierJSON{
		InFeatures: c.inFeatures,
		Classes:    c.classes,
		Weight:     c.weight.Value,
		Bias:       c.bias.Value,
	})
}

func (c *Classifier) UnmarshalBinary(data []byte) error {
	var j classifierJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	if j.InFeatures <= 0 || j.Classes <= 0 ||
		len(j.Weight) != j.InFeatures*j.Classes || len(j.Bias) != j.Classes {
		return fmt.Errorf(
			"%w: broken classifier (features=%d, classes=%d, weight=%d, bias=%d)",
			ErrShape, j.InFeatures, j.Classes, len(j.Weight), len(j.Bias),
		)
	}
	*c = Classifier{
		inFeatures: j.InFeatures,
		classes:    j.Classes,
		weight:     Parameter{Name: "weight", Value: j.Weight, Grad: make([]float64, len(j.Weight))},
		bias:       Parameter{Name: "bias", Value: j.Bias, Grad: make([]float64, len(j.Bias))},
	}
	return nil
}

// LoadClassifier decodes a classifier encoded by MarshalBinary.
func LoadClassifier(data []byte) (*Classifier, error) {
	c := &Classifier{}
	if err := c.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return c, nil
}
