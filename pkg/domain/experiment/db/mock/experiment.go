package mocks

import (
	"context"
	"errors"

	"github.com/opst/vitrain/pkg/domain"
	kexperiment "github.com/opst/vitrain/pkg/domain/experiment/db"
	dbmock "github.com/opst/vitrain/pkg/domain/internal/db/mock"
)

type Experiments struct {
	Impl struct {
		StartRun  func(ctx context.Context, experimentName string, runName string) (domain.RunHandle, error)
		LogParams func(ctx context.Context, run domain.RunHandle, params map[string]string) error
		LogMetric func(ctx context.Context, run domain.RunHandle, key string, value float64, step int) error
		LogModel  func(ctx context.Context, run domain.RunHandle, model kexperiment.Artifact) (string, error)
		LoadModel func(ctx context.Context, ref string) ([]byte, error)
		EndRun    func(ctx context.Context, run domain.RunHandle, status domain.RunStatus) error
		GetRun    func(ctx context.Context, runId string) (domain.Run, error)
		Metrics   func(ctx context.Context, runId string) ([]domain.Metric, error)
	}
	Calls struct {
		StartRun dbmock.CallLog[struct {
			ExperimentName string
			RunName        string
		}]
		LogParams dbmock.CallLog[struct {
			Run    domain.RunHandle
			Params map[string]string
		}]
		LogMetric dbmock.CallLog[struct {
			Run   domain.RunHandle
			Key   string
			Value float64
			Step  int
		}]
		LogModel dbmock.CallLog[struct {
			Run   domain.RunHandle
			Model kexperiment.Artifact
		}]
		LoadModel dbmock.CallLog[struct{ Ref string }]
		EndRun    dbmock.CallLog[struct {
			Run    domain.RunHandle
			Status domain.RunStatus
		}]
		GetRun  dbmock.CallLog[struct{ RunId string }]
		Metrics dbmock.CallLog[struct{ RunId string }]
	}
}

var _ kexperiment.Interface = &Experiments{}

func NewExperiments() *Experiments {
	return &Experiments{}
}

func (e *Experiments) StartRun(ctx context.Context, experimentName string, runName string) (domain.RunHandle, error) {
	e.Calls.StartRun = append(e.Calls.StartRun, struct {
		ExperimentName string
		RunName        string
	}{ExperimentName: experimentName, RunName: runName})
	if e.Impl.StartRun != nil {
		return e.Impl.StartRun(ctx, experimentName, runName)
	}
	panic(errors.New("it should not be called"))
}

func (e *Experiments) LogParams(ctx context.Context, run domain.RunHandle, params map[string]string) error {
	e.Calls.LogParams = append(e.Calls.LogParams, struct {
		Run    domain.RunHandle
		Params map[string]string
	}{Run: run, Params: params})
	if e.Impl.LogParams != nil {
		return e.Impl.LogParams(ctx, run, params)
	}
	panic(errors.New("it should not be called"))
}

func (e *Experiments) LogMetric(ctx context.Context, run domain.RunHandle, key string, value float64, step int) error {
	e.Calls.LogMetric = append(e.Calls.LogMetric, struct {
		Run   domain.RunHandle
		Key   string
		Value float64
		Step  int
	}{Run: run, Key: key, Value: value, Step: step})
	if e.Impl.LogMetric != nil {
		return e.Impl.LogMetric(ctx, run, key, value, step)
	}
	panic(errors.New("it should not be called"))
}

func (e *Experiments) LogModel(ctx context.Context, run domain.RunHandle, model kexperiment.Artifact) (string, error) {
	e.Calls.LogModel = append(e.Calls.LogModel, struct {
		Run   domain.RunHandle
		Model kexperiment.Artifact
	}{Run: run, Model: model})
	if e.Impl.LogModel != nil {
		return e.Impl.LogModel(ctx, run, model)
	}
	panic(errors.New("it should not be called"))
}

func (e *Experiments) LoadModel(ctx context.Context, ref string) ([]byte, error) {
	e.Calls.LoadModel = append(e.Calls.LoadModel, struct{ Ref string }{Ref: ref})
	if e.Impl.LoadModel != nil {
		return e.Impl.LoadModel(ctx, ref)
	}
	panic(errors.New("it should not be called"))
}

func (e *Experiments) EndRun(ctx context.Context, run domain.RunHandle, status domain.RunStatus) error {
	e.Calls.EndRun = append(e.Calls.EndRun, struct {
		Run    domain.RunHandle
		Status domain.RunStatus
	}{Run: run, Status: status})
	if e.Impl.EndRun != nil {
		return e.Impl.EndRun(ctx, run, status)
	}
	panic(errors.New("it should not be called"))
}

func (e *Experiments) GetRun(ctx context.Context, runId string) (domain.Run, error) {
	e.Calls.GetRun = append(e.Calls.GetRun, struct{ RunId string }{RunId: runId})
	if e.Impl.GetRun != nil {
		return e.Impl.GetRun(ctx, runId)
	}
	panic(errors.New("it should not be called"))
}

func (e *Experiments) Metrics(ctx context.Context, runId string) ([]domain.Metric, error) {
	e.Calls.Metrics = append(e.Calls.Metrics, struct{ RunId string }{RunId: runId})
	if e.Impl.Metrics != nil {
		return e.Impl.Metrics(ctx, runId)
	}
	panic(errors.New("it should not be called"))
}
