package mocks

import (
	"context"
	"errors"

	"github.com/opst/vitrain/pkg/domain"
	dbmock "github.com/opst/vitrain/pkg/domain/internal/db/mock"
	kregistry "github.com/opst/vitrain/pkg/domain/registry/db"
)

type Registry struct {
	Impl struct {
		Register              func(ctx context.Context, name string, source string, runId string) (domain.ModelVersion, error)
		Get                   func(ctx context.Context, name string, version int) (domain.ModelVersion, error)
		Versions              func(ctx context.Context, name string) ([]domain.ModelVersion, error)
		SetTag                func(ctx context.Context, name string, version int, key string, value string) error
		LatestVersionsByStage func(ctx context.Context, name string, stage domain.Stage) ([]domain.ModelVersion, error)
		TransitionStage       func(ctx context.Context, name string, version int, stage domain.Stage, archiveExisting bool) (domain.ModelVersion, error)
		Lock                  func(ctx context.Context, name string) (func(), error)
	}
	Calls struct {
		Register dbmock.CallLog[struct {
			Name   string
			Source string
			RunId  string
		}]
		Get dbmock.CallLog[struct {
			Name    string
			Version int
		}]
		Versions dbmock.CallLog[struct{ Name string }]
		SetTag   dbmock.CallLog[struct {
			Name    string
			Version int
			Key     string
			Value   string
		}]
		LatestVersionsByStage dbmock.CallLog[struct {
			Name  string
			Stage domain.Stage
		}]
		TransitionStage dbmock.CallLog[struct {
			Name            string
			Version         int
			Stage           domain.Stage
			ArchiveExisting bool
		}]
		Lock dbmock.CallLog[struct{ Name string }]
	}
}

var _ kregistry.Interface = &Registry{}

func NewRegistry() *Registry {
	return &Registry{}
}

func (r *Registry) Register(ctx context.Context, name string, source string, runId string) (domain.ModelVersion, error) {
	r.Calls.Register = append(r.Calls.Register, struct {
		Name   string
		Source string
		RunId  string
	}{Name: name, Source: source, RunId: runId})
	if r.Impl.Register != nil {
		return r.Impl.Register(ctx, name, source, runId)
	}
	panic(errors.New("it should not be called"))
}

func (r *Registry) Get(ctx context.Context, name string, version int) (domain.ModelVersion, error) {
	r.Calls.Get = append(r.Calls.Get, struct {
		Name    string
		Version int
	}{Name: name, Version: version})
	if r.Impl.Get != nil {
		return r.Impl.Get(ctx, name, version)
	}
	panic(errors.New("it should not be called"))
}

func (r *Registry) Versions(ctx context.Context, name string) ([]domain.ModelVersion, error) {
	r.Calls.Versions = append(r.Calls.Versions, struct{ Name string }{Name: name})
	if r.Impl.Versions != nil {
		return r.Impl.Versions(ctx, name)
	}
	panic(errors.New("it should not be called"))
}

func (r *Registry) SetTag(ctx context.Context, name string, version int, key string, value string) error {
	r.Calls.SetTag = append(r.Calls.SetTag, struct {
		Name    string
		Version int
		Key     string
		Value   string
	}{Name: name, Version: version, Key: key, Value: value})
	if r.Impl.SetTag != nil {
		return r.Impl.SetTag(ctx, name, version, key, value)
	}
	panic(errors.New("it should not be called"))
}

func (r *Registry) LatestVersionsByStage(ctx context.Context, name string, stage domain.Stage) ([]domain.ModelVersion, error) {
	r.Calls.LatestVersionsByStage = append(r.Calls.LatestVersionsByStage, struct {
		Name  string
		Stage domain.Stage
	}{Name: name, Stage: stage})
	if r.Impl.LatestVersionsByStage != nil {
		return r.Impl.LatestVersionsByStage(ctx, name, stage)
	}
	panic(errors.New("it should not be called"))
}

func (r *Registry) TransitionStage(ctx context.Context, name string, version int, stage domain.Stage, archiveExisting bool) (domain.ModelVersion, error) {
	r.Calls.TransitionStage = append(r.Calls.TransitionStage, struct {
		Name            string
		Version         int
		Stage           domain.Stage
		ArchiveExisting bool
	}{Name: name, Version: version, Stage: stage, ArchiveExisting: archiveExisting})
	if r.Impl.TransitionStage != nil {
		return r.Impl.TransitionStage(ctx, name, version, stage, archiveExisting)
	}
	panic(errors.New("it should not be called"))
}

func (r *Registry) Lock(ctx context.Context, name string) (func(), error) {
	r.Calls.Lock = append(r.Calls.Lock, struct{ Name string }{Name: name})
	if r.Impl.Lock != nil {
		return r.Impl.Lock(ctx, name)
	}
	panic(errors.New("it should not be called"))
}
