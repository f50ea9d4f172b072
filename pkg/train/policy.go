package train

import "github.com/opst/vitrain/pkg/domain"

// Decide where a newly trained version goes.
//
// The new version becomes the Champion in Production only when it is strictly better
// than the current Production version. Ties keep the incumbent.
func Decide(bestValAccuracy float64, prodAccuracy float64) domain.PromotionDecision {
	if bestValAccuracy > prodAccuracy {
		return domain.PromotionDecision{Stage: domain.StageProduction, Ranking: domain.Champion}
	}
	return domain.PromotionDecision{Stage: domain.StageStaging, Ranking: domain.Outsider}
}
