// Package inmemory is an experiment store on process memory.
package inmemory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opst/vitrain/pkg/domain"
	kerr "github.com/opst/vitrain/pkg/domain/errors"
	kexperiment "github.com/opst/vitrain/pkg/domain/experiment/db"
	xe "github.com/opst/vitrain/pkg/errors"
)

const modelPath = "model"

type run struct {
	domain.Run
	metrics   map[metricKey]domain.Metric
	artifacts map[string][]byte
}

type metricKey struct {
	key  string
	step int
}

type experiments struct {
	m     sync.Mutex
	runs  map[string]*run
	now   func() time.Time
	newId func() string
}

var _ kexperiment.Interface = &experiments{}

type Option func(*experiments)

func WithClock(now func() time.Time) Option {
	return func(e *experiments) {
		e.now = now
	}
}

func WithRunIdGenerator(gen func() string) Option {
	return func(e *experiments) {
		e.newId = gen
	}
}

func New(options ...Option) kexperiment.Interface {
	e := &experiments{runs: map[string]*run{}, now: time.Now, newId: uuid.NewString}
	for _, opt := range options {
		opt(e)
	}
	return e
}

func missingRun(runId string) error {
	return fmt.Errorf("%w: run %s", kerr.ErrMissing, runId)
}

func (e *experiments) StartRun(ctx context.Context, experimentName string, runName string) (domain.RunHandle, error) {
	if err := ctx.Err(); err != nil {
		return domain.RunHandle{}, xe.Wrap(err)
	}
	e.m.Lock()
	defer e.m.Unlock()

	runId := e.newId()
	if _, ok := e.runs[runId]; ok {
		return domain.RunHandle{}, xe.Wrap(fmt.Errorf("%w: run %s already exists", kerr.ErrConflict, runId))
	}
	e.runs[runId] = &run{
		Run: domain.Run{
			RunId: runId, ExperimentName: experimentName, RunName: runName,
			Status: domain.RunRunning, Params: map[string]string{}, StartTime: e.now(),
		},
		metrics:   map[metricKey]domain.Metric{},
		artifacts: map[string][]byte{},
	}
	return domain.RunHandle{RunId: runId}, nil
}

func (e *experiments) LogParams(ctx context.Context, handle domain.RunHandle, params map[string]string) error {
	e.m.Lock()
	defer e.m.Unlock()
	r, ok := e.runs[handle.RunId]
	if !ok {
		return xe.Wrap(missingRun(handle.RunId))
	}
	for k, v := range params {
		if stored, ok := r.Params[k]; ok && stored != v {
			return xe.Wrap(fmt.Errorf(
				"%w: param %s of run %s is already '%s'", kerr.ErrConflict, k, handle.RunId, stored,
			))
		}
	}
	for k, v := range params {
		r.Params[k] = v
	}
	return nil
}

func (e *experiments) LogMetric(ctx context.Context, handle domain.RunHandle, key string, value float64, step int) error {
	e.m.Lock()
	defer e.m.Unlock()
	r, ok := e.runs[handle.RunId]
	if !ok {
		return xe.Wrap(missingRun(handle.RunId))
	}
	r.metrics[metricKey{key: key, step: step}] = domain.Metric{
		Key: key, Value: value, Step: step, Timestamp: e.now(),
	}
	return nil
}

func (e *experiments) LogModel(ctx context.Context, handle domain.RunHandle, model kexperiment.Artifact) (string, error) {
	content, err := model.MarshalBinary()
	if err != nil {
		return "", xe.WrapWithNote("encode model", err)
	}
	e.m.Lock()
	defer e.m.Unlock()
	r, ok := e.runs[handle.RunId]
	if !ok {
		return "", xe.Wrap(missingRun(handle.RunId))
	}
	r.artifacts[modelPath] = slices.Clone(content)
	return domain.ArtifactRef(handle.RunId, modelPath), nil
}

func (e *experiments) LoadModel(ctx context.Context, ref string) ([]byte, error) {
	runId, path, err := domain.ParseArtifactRef(ref)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	e.m.Lock()
	defer e.m.Unlock()
	r, ok := e.runs[runId]
	if !ok {
		return nil, xe.Wrap(missingRun(runId))
	}
	content, ok := r.artifacts[path]
	if !ok {
		return nil, xe.Wrap(fmt.Errorf("%w: artifact %s", kerr.ErrMissing, ref))
	}
	return slices.Clone(content), nil
}

func (e *experiments) EndRun(ctx context.Context, handle domain.RunHandle, status domain.RunStatus) error {
	if !status.Terminal() {
		return xe.New(fmt.Sprintf("run cannot be ended with status %s", status))
	}
	e.m.Lock()
	defer e.m.Unlock()
	r, ok := e.runs[handle.RunId]
	if !ok {
		return xe.Wrap(missingRun(handle.RunId))
	}
	if r.Status.Terminal() {
		return nil
	}
	now := e.now()
	r.Status = status
	r.EndTime = &now
	return nil
}

func (e *experiments) GetRun(ctx context.Context, runId string) (domain.Run, error) {
	e.m.Lock()
	defer e.m.Unlock()
	r, ok := e.runs[runId]
	if !ok {
		return domain.Run{}, xe.Wrap(missingRun(runId))
	}
	out := r.Run
	out.Params = make(map[string]string, len(r.Params))
	for k, v := range r.Params {
		out.Params[k] = v
	}
	if r.EndTime != nil {
		t := *r.EndTime
		out.EndTime = &t
	}
	return out, nil
}

func (e *experiments) Metrics(ctx context.Context, runId string) ([]domain.Metric, error) {
	e.m.Lock()
	defer e.m.Unlock()
	r, ok := e.runs[runId]
	if !ok {
		return []domain.Metric{}, nil
	}
	metrics := make([]domain.Metric, 0, len(r.metrics))
	for _, m := range r.metrics {
		metrics = append(metrics, m)
	}
	slices.SortFunc(metrics, func(a, b domain.Metric) int {
		if c := strings.Compare(a.Key, b.Key); c != 0 {
			return c
		}
		return a.Step - b.Step
	})
	return metrics, nil
}
