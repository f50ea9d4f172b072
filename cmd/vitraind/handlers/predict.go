package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	apierr "github.com/opst/vitrain/pkg/api/types/errors"
	apipredictions "github.com/opst/vitrain/pkg/api/types/predictions"
	"github.com/opst/vitrain/pkg/inference"
	"github.com/opst/vitrain/pkg/nn"
)

type Predictor interface {
	Predict(ctx context.Context, features []float64) (inference.Prediction, error)
}

func PredictHandler(predictor Predictor) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := apipredictions.Request{}
		if err := c.Bind(&req); err != nil {
			return apierr.BadRequest(`body should be {"features": [NUMBER, ...]}`, err)
		}
		if len(req.Features) == 0 {
			return apierr.BadRequest(`"features" is empty`, nil)
		}

		p, err := predictor.Predict(c.Request().Context(), req.Features)
		if err != nil {
			switch {
			case errors.Is(err, inference.ErrNoProductionModel):
				return apierr.ServiceUnavailable("no model is in Production yet. train one first.", err)
			case errors.Is(err, nn.ErrShape):
				return apierr.BadRequest("number of features does not match the model", err)
			}
			return apierr.InternalServerError(err)
		}
		return c.JSON(http.StatusOK, apipredictions.ComposeResult(p))
	}
}
