package train

import (
	"context"
	"log"
	"math"
	"strconv"

	"github.com/opst/vitrain/pkg/domain"
	kregistry "github.com/opst/vitrain/pkg/domain/registry/db"
	xe "github.com/opst/vitrain/pkg/errors"
)

// Promoter stages registered versions of a model by their validation accuracy.
type Promoter struct {
	registry  kregistry.Interface
	modelName string
	logger    *log.Logger
}

func NewPromoter(registry kregistry.Interface, modelName string, logger *log.Logger) *Promoter {
	if logger == nil {
		logger = log.Default()
	}
	return &Promoter{registry: registry, modelName: modelName, logger: logger}
}

func (p *Promoter) ModelName() string {
	return p.modelName
}

// FormatAccuracy renders accuracy as the value of val_accuracy tag.
func FormatAccuracy(acc float64) string {
	return strconv.FormatFloat(acc, 'f', -1, 64)
}

// ParseAccuracy reads the value of val_accuracy tag.
//
// Missing, unparsable or non-finite values are 0.
func ParseAccuracy(tag string, ok bool) float64 {
	if !ok {
		return 0
	}
	v, err := strconv.ParseFloat(tag, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// Promote decides the stage of the version, and tags and moves it there.
//
// The version is compared with the latest Production version other than itself.
// Applying the same accuracy to a version again changes nothing.
//
// Errors are *RunError of ErrPromotionFailed.
func (p *Promoter) Promote(ctx context.Context, version int, bestValAccuracy float64) (domain.PromotionDecision, error) {
	fail := func(runId string, err error) (domain.PromotionDecision, error) {
		v := version
		return domain.PromotionDecision{}, &RunError{
			Kind: ErrPromotionFailed, RunId: runId, Version: &v, Err: xe.WrapAsOuter(err, 1),
		}
	}

	unlock, err := p.registry.Lock(ctx, p.modelName)
	if err != nil {
		return fail("", err)
	}
	defer unlock()

	mv, err := p.registry.Get(ctx, p.modelName, version)
	if err != nil {
		return fail("", err)
	}

	prods, err := p.registry.LatestVersionsByStage(ctx, p.modelName, domain.StageProduction)
	if err != nil {
		return fail(mv.RunId, err)
	}
	prodAccuracy := 0.0
	for _, prod := range prods {
		if prod.Version == version {
			continue
		}
		prodAccuracy = ParseAccuracy(prod.Tag(domain.TagValAccuracy))
		p.logger.Printf(
			"current Production is %s/%d with val_accuracy %s",
			p.modelName, prod.Version, FormatAccuracy(prodAccuracy),
		)
		break
	}

	decision := Decide(bestValAccuracy, prodAccuracy)

	if err := p.registry.SetTag(ctx, p.modelName, version, domain.TagRanking, decision.Ranking.String()); err != nil {
		return fail(mv.RunId, err)
	}
	if err := p.registry.SetTag(
		ctx, p.modelName, version, domain.TagValAccuracy, FormatAccuracy(bestValAccuracy),
	); err != nil {
		return fail(mv.RunId, err)
	}

	archive := decision.Stage == domain.StageProduction
	if _, err := p.registry.TransitionStage(ctx, p.modelName, version, decision.Stage, archive); err != nil {
		return fail(mv.RunId, err)
	}
	if archive {
		p.logger.Printf("other Production versions of %s are moved to Staging", p.modelName)
	}

	p.logger.Printf(
		"The model %s/%d is %s (val_accuracy %s > %s: %t) and moved to %s",
		p.modelName, version, decision.Ranking,
		FormatAccuracy(bestValAccuracy), FormatAccuracy(prodAccuracy), archive,
		decision.Stage,
	)
	return decision, nil
}
