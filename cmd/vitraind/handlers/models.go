package handlers

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	apierr "github.com/opst/vitrain/pkg/api/types/errors"
	apimodels "github.com/opst/vitrain/pkg/api/types/models"
	"github.com/opst/vitrain/pkg/domain"
	kerr "github.com/opst/vitrain/pkg/domain/errors"
	kregistry "github.com/opst/vitrain/pkg/domain/registry/db"
	"github.com/opst/vitrain/pkg/train"
)

// GetVersionsHandler lists versions of the model.
//
// With query "stage", only versions in the stage are listed, latest first.
func GetVersionsHandler(registry kregistry.Interface, nameParam string) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		name := c.Param(nameParam)

		var mvs []domain.ModelVersion
		var err error
		if s := c.QueryParam("stage"); s != "" {
			stage, perr := domain.AsStage(s)
			if perr != nil {
				return apierr.BadRequest(
					`"stage" should be one of "None", "Staging", "Production" or "Archived"`, perr,
				)
			}
			mvs, err = registry.LatestVersionsByStage(ctx, name, stage)
		} else {
			mvs, err = registry.Versions(ctx, name)
		}
		if err != nil {
			return apierr.InternalServerError(err)
		}

		resp := make([]apimodels.Version, 0, len(mvs))
		for _, mv := range mvs {
			resp = append(resp, apimodels.ComposeVersion(mv))
		}
		return c.JSON(http.StatusOK, resp)
	}
}

type Promoter interface {
	ModelName() string
	Promote(ctx context.Context, version int, bestValAccuracy float64) (domain.PromotionDecision, error)
}

// PromoteHandler applies the promotion policy to a registered version again.
//
// Only the model trained by this server can be promoted.
func PromoteHandler(promoter Promoter, nameParam string, versionParam string) echo.HandlerFunc {
	return func(c echo.Context) error {
		name := c.Param(nameParam)
		if name != promoter.ModelName() {
			return apierr.NotFound()
		}
		version, err := strconv.Atoi(c.Param(versionParam))
		if err != nil || version <= 0 {
			return apierr.BadRequest("version should be a positive integer", err)
		}

		req := apimodels.PromoteRequest{}
		if err := c.Bind(&req); err != nil {
			return apierr.BadRequest(`body should be {"valAccuracy": NUMBER}`, err)
		}
		if req.ValAccuracy == nil {
			return apierr.BadRequest(`"valAccuracy" is required`, nil)
		}
		if acc := *req.ValAccuracy; math.IsNaN(acc) || acc < 0 || 1 < acc {
			return apierr.BadRequest(`"valAccuracy" should be in [0, 1]`, fmt.Errorf("valAccuracy = %v", acc))
		}

		d, err := promoter.Promote(c.Request().Context(), version, *req.ValAccuracy)
		if err != nil {
			if errors.Is(err, kerr.ErrMissing) {
				return apierr.NotFound()
			}
			runId := ""
			if rerr := new(train.RunError); errors.As(err, &rerr) {
				runId = rerr.RunId
			}
			return apierr.NewErrorMessage(
				http.StatusInternalServerError, "promotion failed",
				apierr.WithRun(runId, train.KindName(err)),
				apierr.WithAdvice("retry it later."),
				apierr.WithError(err),
			)
		}
		return c.JSON(http.StatusOK, apimodels.ComposePromoteResult(name, version, d))
	}
}
