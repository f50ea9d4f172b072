// Package inference classifies embeddings with the model in Production.
package inference

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/opst/vitrain/pkg/domain"
	kexperiment "github.com/opst/vitrain/pkg/domain/experiment/db"
	kregistry "github.com/opst/vitrain/pkg/domain/registry/db"
	xe "github.com/opst/vitrain/pkg/errors"
	"github.com/opst/vitrain/pkg/nn"
)

var (
	// no version of the model is in Production.
	ErrNoProductionModel = errors.New("no model in production")

	// labels in configuration do not match classes of the model.
	ErrLabelMismatch = errors.New("labels do not match the model")
)

// Default class labels, in the order of class indexes.
var DefaultLabels = []string{"glioma", "meningioma", "no_tumor", "pituitary"}

const DefaultUncertainThreshold = 0.5

type Prediction struct {
	Label      string
	Class      int
	Confidence float64

	// Confidence is below the threshold.
	Uncertain bool

	// model version used
	Version int
}

type Config struct {
	ModelName string

	// class labels, indexed by class number. Defaults to DefaultLabels.
	Labels []string

	// predictions less confident than this are uncertain.
	UncertainThreshold float64
}

type Predictor struct {
	registry    kregistry.Interface
	experiments kexperiment.Interface
	config      Config

	m      sync.Mutex
	cached *cachedModel
}

type cachedModel struct {
	version int
	source  string
	model   *nn.Classifier
}

func New(registry kregistry.Interface, experiments kexperiment.Interface, config Config) *Predictor {
	if len(config.Labels) == 0 {
		config.Labels = DefaultLabels
	}
	return &Predictor{registry: registry, experiments: experiments, config: config}
}

func (p *Predictor) Labels() []string {
	out := make([]string, len(p.config.Labels))
	copy(out, p.config.Labels)
	return out
}

// current returns the latest Production version, loading it when it is changed.
func (p *Predictor) current(ctx context.Context) (*cachedModel, error) {
	prods, err := p.registry.LatestVersionsByStage(ctx, p.config.ModelName, domain.StageProduction)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	if len(prods) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoProductionModel, p.config.ModelName)
	}
	prod := prods[0]

	p.m.Lock()
	defer p.m.Unlock()
	if c := p.cached; c != nil && c.version == prod.Version && c.source == prod.Source {
		return c, nil
	}

	content, err := p.experiments.LoadModel(ctx, prod.Source)
	if err != nil {
		return nil, xe.WrapWithNote("load "+prod.String(), err)
	}
	model, err := nn.LoadClassifier(content)
	if err != nil {
		return nil, xe.WrapWithNote("decode "+prod.String(), err)
	}
	if model.Classes() != len(p.config.Labels) {
		return nil, fmt.Errorf(
			"%w: %s has %d classes, but %d labels are configured",
			ErrLabelMismatch, prod, model.Classes(), len(p.config.Labels),
		)
	}
	p.cached = &cachedModel{version: prod.Version, source: prod.Source, model: model}
	return p.cached, nil
}

// Predict classifies an embedding.
func (p *Predictor) Predict(ctx context.Context, features []float64) (Prediction, error) {
	c, err := p.current(ctx)
	if err != nil {
		return Prediction{}, err
	}
	probs, err := c.model.Predict(features)
	if err != nil {
		return Prediction{}, err
	}
	best := 0
	for i, v := range probs {
		if v > probs[best] {
			best = i
		}
	}
	return Prediction{
		Label:      p.config.Labels[best],
		Class:      best,
		Confidence: probs[best],
		Uncertain:  probs[best] < p.config.UncertainThreshold,
		Version:    c.version,
	}, nil
}
