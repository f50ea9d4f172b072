package echoutil

import (
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
)

// LogHandlerFunc logs each request and its response, with the duration.
func LogHandlerFunc(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		meth := c.Request().Method
		path := c.Request().URL
		BEGIN := time.Now()
		c.Logger().Infof("< request @[%s] %s %s", BEGIN, meth, path)

		err := next(c)

		END := time.Now()
		status := c.Response().Status
		if herr, ok := err.(*echo.HTTPError); ok && !c.Response().Committed {
			status = herr.Code
		}
		c.Logger().Infof(
			"> response @[%s] status = %d (for request @[%s] %s %s) in %v / error = %+v",
			END, status, BEGIN, meth, path, END.Sub(BEGIN), err,
		)
		return err
	}
}

// SetLevel sets log level of e by name. Unknown names fall back to warn.
func SetLevel(e *echo.Echo, loglevel string) {
	switch strings.ToLower(loglevel) {
	case "debug":
		e.Logger.SetLevel(log.DEBUG)
	case "info":
		e.Logger.SetLevel(log.INFO)
	case "warn", "":
		e.Logger.SetLevel(log.WARN)
	case "error":
		e.Logger.SetLevel(log.ERROR)
	case "off":
		e.Logger.SetLevel(log.OFF)
	default:
		e.Logger.SetLevel(log.WARN)
		e.Logger.Warnf("unknown loglevel: %s . fall-backed to warn", loglevel)
	}
}
