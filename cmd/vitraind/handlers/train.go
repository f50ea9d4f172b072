package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	apierr "github.com/opst/vitrain/pkg/api/types/errors"
	apijobs "github.com/opst/vitrain/pkg/api/types/jobs"
	kerr "github.com/opst/vitrain/pkg/domain/errors"
	"github.com/opst/vitrain/pkg/trigger"
)

type Submitter interface {
	Submit(req trigger.Request) (string, error)
}

type JobFinder interface {
	Get(jobId string) (trigger.Job, error)
}

// TrainHandler queues a training job and responds 202 with the job id.
func TrainHandler(dispatcher Submitter) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := apijobs.TrainRequest{}
		if c.Request().ContentLength != 0 {
			if err := c.Bind(&req); err != nil && !errors.Is(err, io.EOF) {
				return apierr.BadRequest(`body should be {"runName": "..."} or empty`, err)
			}
		}

		jobId, err := dispatcher.Submit(trigger.Request{RunName: req.RunName})
		if err != nil {
			if errors.Is(err, trigger.ErrQueueFull) {
				return apierr.ServiceUnavailable("training queue is full. retry later.", err)
			}
			return apierr.InternalServerError(err)
		}

		c.Response().Header().Set(echo.HeaderLocation, "/api/jobs/"+jobId)
		return c.JSON(http.StatusAccepted, apijobs.Accepted{JobId: jobId})
	}
}

func GetJobHandler(jobs JobFinder, param string) echo.HandlerFunc {
	return func(c echo.Context) error {
		job, err := jobs.Get(c.Param(param))
		if err != nil {
			if errors.Is(err, kerr.ErrMissing) {
				return apierr.NotFound()
			}
			return apierr.InternalServerError(err)
		}
		return c.JSON(http.StatusOK, apijobs.ComposeDetail(job))
	}
}
