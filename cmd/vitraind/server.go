package main

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/opst/vitrain/cmd/vitraind/handlers"
	"github.com/opst/vitrain/pkg/echoutil"
	"github.com/opst/vitrain/pkg/trigger"
	"github.com/opst/vitrain/pkg/vitrain"
)

// newServer builds routes of the API.
//
// guard is applied to endpoints changing models.
func newServer(v *vitrain.Vitrain, dispatcher *trigger.Dispatcher, guard echo.MiddlewareFunc, loglevel string) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover())

	echoutil.SetLevel(e, loglevel)
	e.HTTPErrorHandler = func(err error, ctx echo.Context) {
		e.DefaultHTTPErrorHandler(err, ctx)
		e.Logger.Error(err)
	}
	e.Use(echoutil.LogHandlerFunc)

	db := v.Database()
	api := e.Group("/api")

	api.POST("/train", handlers.TrainHandler(dispatcher), guard)
	api.GET("/jobs/:jobId", handlers.GetJobHandler(dispatcher, "jobId"))
	api.GET("/runs/:runId", handlers.GetRunHandler(db.Experiments(), "runId"))
	api.GET("/models/:name/versions", handlers.GetVersionsHandler(db.Registry(), "name"))
	api.PUT("/models/:name/versions/:version/promote", handlers.PromoteHandler(v, "name", "version"), guard)
	api.POST("/predict", handlers.PredictHandler(v))

	return e
}
