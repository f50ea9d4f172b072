package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

type ErrorMessage struct {
	Reason string `json:"reason"`
	Advice string `json:"advice,omitempty"`

	// kind of training error, like "PromotionFailed".
	Kind string `json:"kind,omitempty"`

	// run which caused the error, if any.
	RunId string `json:"runId,omitempty"`

	Cause error `json:"-"`
}

func (em *ErrorMessage) UnmarshalJSON(bytes []byte) error {
	f := new(struct {
		Reason *string `json:"reason"`
		Advice string  `json:"advice"`
		Kind   string  `json:"kind"`
		RunId  string  `json:"runId"`
	})
	if err := json.Unmarshal(bytes, f); err != nil {
		return err
	}
	if f.Reason == nil {
		return fmt.Errorf(`required field missing: "reason"`)
	}
	*em = ErrorMessage{Reason: *f.Reason, Advice: f.Advice, Kind: f.Kind, RunId: f.RunId}
	return nil
}

func (e ErrorMessage) String() string {
	lines := []string{e.Reason}
	if e.Kind != "" {
		lines = append(lines, fmt.Sprintf("kind: %s (run: %s)", e.Kind, e.RunId))
	}
	if e.Advice != "" {
		lines = append(lines, e.Advice)
	}
	if e.Cause != nil {
		lines = append(lines, fmt.Sprint(" caused by:", e.Cause.Error()))
	}
	return strings.Join(lines, "\n")
}

func (e ErrorMessage) Error() string {
	return e.String()
}

func (e ErrorMessage) Unwrap() error {
	return e.Cause
}

type ErrorMessageOption func(in *ErrorMessage) *ErrorMessage

func WithAdvice(advice string) ErrorMessageOption {
	return func(in *ErrorMessage) *ErrorMessage {
		if advice != "" {
			in.Advice = advice
		}
		return in
	}
}

func WithError(err error) ErrorMessageOption {
	return func(in *ErrorMessage) *ErrorMessage {
		if err != nil {
			in.Cause = err
		}
		return in
	}
}

// WithRun tells which run caused the error and of which kind it is.
func WithRun(runId string, kind string) ErrorMessageOption {
	return func(in *ErrorMessage) *ErrorMessage {
		in.RunId = runId
		in.Kind = kind
		return in
	}
}

func NewErrorMessage(code int, reason string, opts ...ErrorMessageOption) *echo.HTTPError {
	msg := ErrorMessage{Reason: reason}
	for _, opt := range opts {
		msg = *opt(&msg)
	}

	return echo.NewHTTPError(code, msg).SetInternal(msg)
}

func ServiceUnavailable(advice string, err error) *echo.HTTPError {
	return NewErrorMessage(
		http.StatusServiceUnavailable,
		"service unavailable temporaly",
		WithAdvice(advice),
		WithError(err),
	)
}

func NotFound() *echo.HTTPError {
	return NewErrorMessage(http.StatusNotFound, "not found")
}

func BadRequest(advice string, err error) *echo.HTTPError {
	return NewErrorMessage(
		http.StatusBadRequest,
		"bad request",
		WithAdvice(advice),
		WithError(err),
	)
}

func Unauthorized(err error) *echo.HTTPError {
	return NewErrorMessage(
		http.StatusUnauthorized,
		"unauthorized",
		WithAdvice("set a valid bearer token to Authorization header."),
		WithError(err),
	)
}

func Conflict(message string, options ...ErrorMessageOption) *echo.HTTPError {
	return NewErrorMessage(http.StatusConflict, message, options...)
}

func InternalServerError(err error) *echo.HTTPError {
	return NewErrorMessage(
		http.StatusInternalServerError,
		"unexpected error",
		WithError(err),
	)
}
