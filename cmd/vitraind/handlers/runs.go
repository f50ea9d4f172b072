package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	apierr "github.com/opst/vitrain/pkg/api/types/errors"
	apiruns "github.com/opst/vitrain/pkg/api/types/runs"
	kerr "github.com/opst/vitrain/pkg/domain/errors"
	kexperiment "github.com/opst/vitrain/pkg/domain/experiment/db"
)

func GetRunHandler(experiments kexperiment.Interface, param string) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		runId := c.Param(param)

		run, err := experiments.GetRun(ctx, runId)
		if err != nil {
			if errors.Is(err, kerr.ErrMissing) {
				return apierr.NotFound()
			}
			return apierr.InternalServerError(err)
		}
		metrics, err := experiments.Metrics(ctx, runId)
		if err != nil {
			return apierr.InternalServerError(err)
		}
		return c.JSON(http.StatusOK, apiruns.ComposeDetail(run, metrics))
	}
}
