// Package inmemory is a registry on process memory.
//
// It is used by the cli without database, and by tests.
// Contents are lost when the process exits.
package inmemory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/opst/vitrain/pkg/domain"
	kerr "github.com/opst/vitrain/pkg/domain/errors"
	kregistry "github.com/opst/vitrain/pkg/domain/registry/db"
	xe "github.com/opst/vitrain/pkg/errors"
	"github.com/opst/vitrain/pkg/utils/keyedmutex"
)

type registry struct {
	m      sync.Mutex
	models map[string][]*domain.ModelVersion
	locks  keyedmutex.KeyedMutex
	now    func() time.Time
}

var _ kregistry.Interface = &registry{}

type Option func(*registry)

// WithClock replaces the clock used for CreatedAt and UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(r *registry) {
		r.now = now
	}
}

func New(options ...Option) kregistry.Interface {
	r := &registry{models: map[string][]*domain.ModelVersion{}, now: time.Now}
	for _, opt := range options {
		opt(r)
	}
	return r
}

func missing(name string, version int) error {
	return fmt.Errorf("%w: model version %s/%d", kerr.ErrMissing, name, version)
}

func clone(mv *domain.ModelVersion) domain.ModelVersion {
	c := *mv
	c.Tags = make(map[string]string, len(mv.Tags))
	for k, v := range mv.Tags {
		c.Tags[k] = v
	}
	return c
}

func (r *registry) find(name string, version int) (*domain.ModelVersion, bool) {
	for _, mv := range r.models[name] {
		if mv.Version == version {
			return mv, true
		}
	}
	return nil, false
}

func (r *registry) Register(ctx context.Context, name string, source string, runId string) (domain.ModelVersion, error) {
	if err := ctx.Err(); err != nil {
		return domain.ModelVersion{}, xe.Wrap(err)
	}
	r.m.Lock()
	defer r.m.Unlock()

	versions := r.models[name]
	next := 1
	if len(versions) != 0 {
		next = versions[len(versions)-1].Version + 1
	}
	now := r.now()
	mv := &domain.ModelVersion{
		Name: name, Version: next, Stage: domain.StageNone,
		Source: source, RunId: runId, Tags: map[string]string{},
		CreatedAt: now, UpdatedAt: now,
	}
	r.models[name] = append(versions, mv)
	return clone(mv), nil
}

func (r *registry) Get(ctx context.Context, name string, version int) (domain.ModelVersion, error) {
	r.m.Lock()
	defer r.m.Unlock()
	mv, ok := r.find(name, version)
	if !ok {
		return domain.ModelVersion{}, xe.Wrap(missing(name, version))
	}
	return clone(mv), nil
}

func (r *registry) Versions(ctx context.Context, name string) ([]domain.ModelVersion, error) {
	r.m.Lock()
	defer r.m.Unlock()
	out := []domain.ModelVersion{}
	for _, mv := range r.models[name] {
		out = append(out, clone(mv))
	}
	return out, nil
}

func (r *registry) SetTag(ctx context.Context, name string, version int, key string, value string) error {
	if err := ctx.Err(); err != nil {
		return xe.Wrap(err)
	}
	r.m.Lock()
	defer r.m.Unlock()
	mv, ok := r.find(name, version)
	if !ok {
		return xe.Wrap(missing(name, version))
	}
	mv.Tags[key] = value
	mv.UpdatedAt = r.now()
	return nil
}

func (r *registry) LatestVersionsByStage(ctx context.Context, name string, stage domain.Stage) ([]domain.ModelVersion, error) {
	r.m.Lock()
	defer r.m.Unlock()
	out := []domain.ModelVersion{}
	for _, mv := range slices.Backward(r.models[name]) {
		if mv.Stage == stage {
			out = append(out, clone(mv))
		}
	}
	return out, nil
}

func (r *registry) TransitionStage(ctx context.Context, name string, version int, stage domain.Stage, archiveExisting bool) (domain.ModelVersion, error) {
	if err := ctx.Err(); err != nil {
		return domain.ModelVersion{}, xe.Wrap(err)
	}
	r.m.Lock()
	defer r.m.Unlock()
	mv, ok := r.find(name, version)
	if !ok {
		return domain.ModelVersion{}, xe.Wrap(missing(name, version))
	}
	now := r.now()
	mv.Stage = stage
	mv.UpdatedAt = now

	if archiveExisting && stage == domain.StageProduction {
		for _, other := range r.models[name] {
			if other.Version != version && other.Stage == domain.StageProduction {
				other.Stage = domain.StageStaging
				other.UpdatedAt = now
			}
		}
	}
	return clone(mv), nil
}

func (r *registry) Lock(ctx context.Context, name string) (func(), error) {
	unlock, err := r.locks.Lock(ctx, name)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	return unlock, nil
}
