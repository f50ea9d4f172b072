package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	handlers "github.com/opst/vitrain/cmd/vitraind/handlers"
	httptestutil "github.com/opst/vitrain/internal/testutils/http"
	apierr "github.com/opst/vitrain/pkg/api/types/errors"
	apijobs "github.com/opst/vitrain/pkg/api/types/jobs"
	apimodels "github.com/opst/vitrain/pkg/api/types/models"
	apipredictions "github.com/opst/vitrain/pkg/api/types/predictions"
	apiruns "github.com/opst/vitrain/pkg/api/types/runs"
	"github.com/opst/vitrain/pkg/domain"
	kerr "github.com/opst/vitrain/pkg/domain/errors"
	mockexperiment "github.com/opst/vitrain/pkg/domain/experiment/db/mock"
	mockregistry "github.com/opst/vitrain/pkg/domain/registry/db/mock"
	"github.com/opst/vitrain/pkg/inference"
	"github.com/opst/vitrain/pkg/nn"
	"github.com/opst/vitrain/pkg/train"
	"github.com/opst/vitrain/pkg/trigger"
)

func asHTTPError(t *testing.T, err error) *echo.HTTPError {
	t.Helper()
	var herr *echo.HTTPError
	if !errors.As(err, &herr) {
		t.Fatalf("error is not echo.HTTPError. actual = %#v", err)
	}
	return herr
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("response is not json: %s (%s)", err, rec.Body)
	}
	return out
}

type fakeDispatcher struct {
	submit func(trigger.Request) (string, error)
	get    func(string) (trigger.Job, error)

	submitted []trigger.Request
}

func (f *fakeDispatcher) Submit(req trigger.Request) (string, error) {
	f.submitted = append(f.submitted, req)
	return f.submit(req)
}

func (f *fakeDispatcher) Get(jobId string) (trigger.Job, error) {
	return f.get(jobId)
}

func TestTrainHandler(t *testing.T) {
	for name, testcase := range map[string]struct {
		body string
		then trigger.Request
	}{
		"empty body":    {body: "", then: trigger.Request{}},
		"with run name": {body: `{"runName": "nightly"}`, then: trigger.Request{RunName: "nightly"}},
	} {
		t.Run("it accepts a job: "+name, func(t *testing.T) {
			e := echo.New()
			c, rec := httptestutil.Post(
				e, "/api/train", strings.NewReader(testcase.body),
				httptestutil.ContentType(echo.MIMEApplicationJSON),
			)
			dispatcher := &fakeDispatcher{
				submit: func(trigger.Request) (string, error) { return "job-1", nil },
			}

			if err := handlers.TrainHandler(dispatcher)(c); err != nil {
				t.Fatal(err)
			}
			if rec.Code != http.StatusAccepted {
				t.Errorf("status: %d", rec.Code)
			}
			if got := decode[apijobs.Accepted](t, rec); got.JobId != "job-1" {
				t.Errorf("body: %+v", got)
			}
			if loc := rec.Header().Get(echo.HeaderLocation); loc != "/api/jobs/job-1" {
				t.Errorf("location: %s", loc)
			}
			if len(dispatcher.submitted) != 1 || dispatcher.submitted[0] != testcase.then {
				t.Errorf("submitted: %+v", dispatcher.submitted)
			}
		})
	}

	t.Run("it responds 503 when the queue is full", func(t *testing.T) {
		e := echo.New()
		c, _ := httptestutil.Post(e, "/api/train", strings.NewReader(""))
		dispatcher := &fakeDispatcher{
			submit: func(trigger.Request) (string, error) { return "", trigger.ErrQueueFull },
		}
		err := handlers.TrainHandler(dispatcher)(c)
		if herr := asHTTPError(t, err); herr.Code != http.StatusServiceUnavailable {
			t.Errorf("status: %d", herr.Code)
		}
	})

	t.Run("it responds 400 for broken body", func(t *testing.T) {
		e := echo.New()
		c, _ := httptestutil.Post(
			e, "/api/train", strings.NewReader(`{"runName": `),
			httptestutil.ContentType(echo.MIMEApplicationJSON),
		)
		dispatcher := &fakeDispatcher{}
		err := handlers.TrainHandler(dispatcher)(c)
		if herr := asHTTPError(t, err); herr.Code != http.StatusBadRequest {
			t.Errorf("status: %d", herr.Code)
		}
		if len(dispatcher.submitted) != 0 {
			t.Errorf("submitted: %+v", dispatcher.submitted)
		}
	})
}

func TestGetJobHandler(t *testing.T) {
	queued := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	version := 3

	t.Run("it responds the job", func(t *testing.T) {
		e := echo.New()
		c, rec := httptestutil.Get(e, "/api/jobs/job-1")
		c.SetParamNames("jobId")
		c.SetParamValues("job-1")

		dispatcher := &fakeDispatcher{
			get: func(id string) (trigger.Job, error) {
				if id != "job-1" {
					t.Errorf("job id: %s", id)
				}
				return trigger.Job{
					JobId: "job-1", Status: trigger.Failed, RunId: "run-1", Version: &version,
					Kind: "PromotionFailed", Reason: "fake", QueuedAt: queued,
				}, nil
			},
		}
		if err := handlers.GetJobHandler(dispatcher, "jobId")(c); err != nil {
			t.Fatal(err)
		}
		got := decode[apijobs.Detail](t, rec)
		if got.JobId != "job-1" || got.Status != "failed" || got.RunId != "run-1" ||
			got.Version == nil || *got.Version != 3 || got.Kind != "PromotionFailed" {
			t.Errorf("body: %s", rec.Body)
		}
		if !got.QueuedAt.Time().Equal(queued) {
			t.Errorf("queuedAt: %s", got.QueuedAt)
		}
	})

	t.Run("it responds 404 for unknown job", func(t *testing.T) {
		e := echo.New()
		c, _ := httptestutil.Get(e, "/api/jobs/job-x")
		c.SetParamNames("jobId")
		c.SetParamValues("job-x")

		dispatcher := &fakeDispatcher{
			get: func(string) (trigger.Job, error) { return trigger.Job{}, kerr.ErrMissing },
		}
		err := handlers.GetJobHandler(dispatcher, "jobId")(c)
		if herr := asHTTPError(t, err); herr.Code != http.StatusNotFound {
			t.Errorf("status: %d", herr.Code)
		}
	})
}

func TestGetRunHandler(t *testing.T) {
	start := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

	t.Run("it responds the run with metrics", func(t *testing.T) {
		e := echo.New()
		c, rec := httptestutil.Get(e, "/api/runs/run-1")
		c.SetParamNames("runId")
		c.SetParamValues("run-1")

		experiments := mockexperiment.NewExperiments()
		experiments.Impl.GetRun = func(ctx context.Context, runId string) (domain.Run, error) {
			return domain.Run{
				RunId: runId, ExperimentName: "exp", RunName: "run", Status: domain.RunFinished,
				Params: map[string]string{"optimizer": "adamw"}, StartTime: start,
			}, nil
		}
		experiments.Impl.Metrics = func(ctx context.Context, runId string) ([]domain.Metric, error) {
			return []domain.Metric{
				{Key: "loss_train", Value: 0.9, Step: 0, Timestamp: start},
				{Key: "loss_train", Value: 0.5, Step: 1, Timestamp: start},
				{Key: "val_accuracy", Value: 0.8, Step: 0, Timestamp: start},
			}, nil
		}

		if err := handlers.GetRunHandler(experiments, "runId")(c); err != nil {
			t.Fatal(err)
		}
		got := decode[apiruns.Detail](t, rec)
		if got.RunId != "run-1" || got.Status != "FINISHED" || got.Params["optimizer"] != "adamw" {
			t.Errorf("body: %s", rec.Body)
		}
		if l := got.Metrics["loss_train"]; len(l) != 2 || l[1].Value != 0.5 || l[1].Step != 1 {
			t.Errorf("loss_train: %+v", l)
		}
		if got.EndTime != nil {
			t.Errorf("endTime: %s", got.EndTime)
		}
	})

	t.Run("it responds 404 for unknown run", func(t *testing.T) {
		e := echo.New()
		c, _ := httptestutil.Get(e, "/api/runs/run-x")
		c.SetParamNames("runId")
		c.SetParamValues("run-x")

		experiments := mockexperiment.NewExperiments()
		experiments.Impl.GetRun = func(ctx context.Context, runId string) (domain.Run, error) {
			return domain.Run{}, kerr.ErrMissing
		}
		err := handlers.GetRunHandler(experiments, "runId")(c)
		if herr := asHTTPError(t, err); herr.Code != http.StatusNotFound {
			t.Errorf("status: %d", herr.Code)
		}
		if experiments.Calls.Metrics.Times() != 0 {
			t.Error("metrics should not be read")
		}
	})
}

func TestGetVersionsHandler(t *testing.T) {
	mvs := []domain.ModelVersion{
		{Name: "m", Version: 2, Stage: domain.StageProduction, Tags: map[string]string{"ranking": "Champion"}},
	}

	t.Run("with stage, it lists latest versions in the stage", func(t *testing.T) {
		e := echo.New()
		c, rec := httptestutil.Get(e, "/api/models/m/versions?stage=production")
		c.SetParamNames("name")
		c.SetParamValues("m")

		registry := mockregistry.NewRegistry()
		registry.Impl.LatestVersionsByStage = func(ctx context.Context, name string, stage domain.Stage) ([]domain.ModelVersion, error) {
			return mvs, nil
		}
		if err := handlers.GetVersionsHandler(registry, "name")(c); err != nil {
			t.Fatal(err)
		}
		if last, ok := registry.Calls.LatestVersionsByStage.Last(); !ok ||
			registry.Calls.LatestVersionsByStage.Times() != 1 ||
			last.Name != "m" || last.Stage != domain.StageProduction {
			t.Errorf("calls: %+v", registry.Calls.LatestVersionsByStage)
		}
		got := decode[[]apimodels.Version](t, rec)
		if len(got) != 1 || got[0].Version != 2 || got[0].Stage != "Production" || got[0].Tags["ranking"] != "Champion" {
			t.Errorf("body: %s", rec.Body)
		}
	})

	t.Run("without stage, it lists all versions", func(t *testing.T) {
		e := echo.New()
		c, rec := httptestutil.Get(e, "/api/models/m/versions")
		c.SetParamNames("name")
		c.SetParamValues("m")

		registry := mockregistry.NewRegistry()
		registry.Impl.Versions = func(ctx context.Context, name string) ([]domain.ModelVersion, error) {
			return []domain.ModelVersion{}, nil
		}
		if err := handlers.GetVersionsHandler(registry, "name")(c); err != nil {
			t.Fatal(err)
		}
		if strings.TrimSpace(rec.Body.String()) != "[]" {
			t.Errorf("body: %s", rec.Body)
		}
	})

	t.Run("it responds 400 for unknown stage", func(t *testing.T) {
		e := echo.New()
		c, _ := httptestutil.Get(e, "/api/models/m/versions?stage=canary")
		c.SetParamNames("name")
		c.SetParamValues("m")

		err := handlers.GetVersionsHandler(mockregistry.NewRegistry(), "name")(c)
		if herr := asHTTPError(t, err); herr.Code != http.StatusBadRequest {
			t.Errorf("status: %d", herr.Code)
		}
	})
}

type fakePromoter struct {
	promote func(ctx context.Context, version int, acc float64) (domain.PromotionDecision, error)
	calls   int
}

func (f *fakePromoter) ModelName() string {
	return "m"
}

func (f *fakePromoter) Promote(ctx context.Context, version int, acc float64) (domain.PromotionDecision, error) {
	f.calls++
	return f.promote(ctx, version, acc)
}

func TestPromoteHandler(t *testing.T) {
	champion := domain.PromotionDecision{Stage: domain.StageProduction, Ranking: domain.Champion}

	for name, testcase := range map[string]struct {
		model   string
		version string
		body    string
		promote func(ctx context.Context, version int, acc float64) (domain.PromotionDecision, error)

		status   int
		promoted bool
	}{
		"it promotes": {
			model: "m", version: "2", body: `{"valAccuracy": 0.9}`,
			promote: func(ctx context.Context, version int, acc float64) (domain.PromotionDecision, error) {
				if version != 2 || acc != 0.9 {
					return domain.PromotionDecision{}, errors.New("unexpected args")
				}
				return champion, nil
			},
			status: http.StatusOK, promoted: true,
		},
		"other model": {
			model: "other", version: "2", body: `{"valAccuracy": 0.9}`,
			status: http.StatusNotFound,
		},
		"version is not a number": {
			model: "m", version: "latest", body: `{"valAccuracy": 0.9}`,
			status: http.StatusBadRequest,
		},
		"no accuracy": {
			model: "m", version: "2", body: `{}`,
			status: http.StatusBadRequest,
		},
		"accuracy out of range": {
			model: "m", version: "2", body: `{"valAccuracy": 1.5}`,
			status: http.StatusBadRequest,
		},
		"missing version": {
			model: "m", version: "9", body: `{"valAccuracy": 0.9}`,
			promote: func(context.Context, int, float64) (domain.PromotionDecision, error) {
				return domain.PromotionDecision{}, &train.RunError{Kind: train.ErrPromotionFailed, Err: kerr.ErrMissing}
			},
			status: http.StatusNotFound, promoted: true,
		},
		"promotion failed": {
			model: "m", version: "2", body: `{"valAccuracy": 0.9}`,
			promote: func(context.Context, int, float64) (domain.PromotionDecision, error) {
				return domain.PromotionDecision{}, &train.RunError{Kind: train.ErrPromotionFailed, RunId: "run-2", Err: errors.New("fake")}
			},
			status: http.StatusInternalServerError, promoted: true,
		},
	} {
		t.Run(name, func(t *testing.T) {
			e := echo.New()
			c, rec := httptestutil.Put(
				e, "/api/models/"+testcase.model+"/versions/"+testcase.version+"/promote",
				strings.NewReader(testcase.body),
				httptestutil.ContentType(echo.MIMEApplicationJSON),
			)
			c.SetParamNames("name", "version")
			c.SetParamValues(testcase.model, testcase.version)

			promoter := &fakePromoter{promote: testcase.promote}
			err := handlers.PromoteHandler(promoter, "name", "version")(c)

			if (promoter.calls != 0) != testcase.promoted {
				t.Errorf("promoted: %d times", promoter.calls)
			}
			if testcase.status == http.StatusOK {
				if err != nil {
					t.Fatal(err)
				}
				got := decode[apimodels.PromoteResult](t, rec)
				if got.Stage != "Production" || got.Ranking != "Champion" || got.Version != 2 {
					t.Errorf("body: %s", rec.Body)
				}
				return
			}
			herr := asHTTPError(t, err)
			if herr.Code != testcase.status {
				t.Errorf("status: %d, want %d", herr.Code, testcase.status)
			}
			if testcase.status == http.StatusInternalServerError {
				msg, ok := herr.Message.(apierr.ErrorMessage)
				if !ok || msg.Kind != "PromotionFailed" || msg.RunId != "run-2" {
					t.Errorf("message: %#v", herr.Message)
				}
			}
		})
	}
}

type fakePredictor func(ctx context.Context, features []float64) (inference.Prediction, error)

func (f fakePredictor) Predict(ctx context.Context, features []float64) (inference.Prediction, error) {
	return f(ctx, features)
}

func TestPredictHandler(t *testing.T) {
	for name, testcase := range map[string]struct {
		body   string
		err    error
		status int
	}{
		"it predicts":        {body: `{"features": [0.1, 0.2]}`, status: http.StatusOK},
		"no features":        {body: `{"features": []}`, status: http.StatusBadRequest},
		"no production":      {body: `{"features": [0.1]}`, err: inference.ErrNoProductionModel, status: http.StatusServiceUnavailable},
		"wrong feature size": {body: `{"features": [0.1]}`, err: nn.ErrShape, status: http.StatusBadRequest},
		"unexpected error":   {body: `{"features": [0.1]}`, err: errors.New("fake"), status: http.StatusInternalServerError},
	} {
		t.Run(name, func(t *testing.T) {
			e := echo.New()
			c, rec := httptestutil.Post(
				e, "/api/predict", strings.NewReader(testcase.body),
				httptestutil.ContentType(echo.MIMEApplicationJSON),
			)
			predictor := fakePredictor(func(ctx context.Context, features []float64) (inference.Prediction, error) {
				if testcase.err != nil {
					return inference.Prediction{}, testcase.err
				}
				return inference.Prediction{Label: "glioma", Confidence: 0.42, Uncertain: true, Version: 5}, nil
			})

			err := handlers.PredictHandler(predictor)(c)
			if testcase.status != http.StatusOK {
				if herr := asHTTPError(t, err); herr.Code != testcase.status {
					t.Errorf("status: %d, want %d", herr.Code, testcase.status)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			got := decode[apipredictions.Result](t, rec)
			want := apipredictions.Result{Label: "glioma", Confidence: 0.42, Uncertain: true, Version: 5}
			if got != want {
				t.Errorf("body: %+v", got)
			}
		})
	}
}
