package db

import (
	"context"

	"github.com/opst/vitrain/pkg/domain"
)

// Versioned store of trained models.
//
// Versions of a name are numbered from 1, increasing, and never reused.
type Interface interface {
	// Register creates a new version of the model.
	//
	// The model name is created when it is the first version.
	//
	// Args
	//
	// - ctx
	//
	// - name: name of the model
	//
	// - source: artifact reference of the model. see domain.ArtifactRef.
	//
	// - runId: run which has created the artifact.
	//
	// Returns
	//
	// - domain.ModelVersion: new version in stage None, without tags.
	//
	// - error
	Register(ctx context.Context, name string, source string, runId string) (domain.ModelVersion, error)

	// Get returns a version.
	//
	// If not found, error wraps domain/errors.ErrMissing.
	Get(ctx context.Context, name string, version int) (domain.ModelVersion, error)

	// Versions returns all versions of the model, ordered by version number.
	Versions(ctx context.Context, name string) ([]domain.ModelVersion, error)

	// SetTag sets a tag on the version, overwriting the value of the same key.
	//
	// If the version is not found, error wraps domain/errors.ErrMissing.
	SetTag(ctx context.Context, name string, version int, key string, value string) error

	// LatestVersionsByStage returns versions in the stage, the latest first.
	//
	// When there are no such versions, it returns empty slice.
	LatestVersionsByStage(ctx context.Context, name string, stage domain.Stage) ([]domain.ModelVersion, error)

	// TransitionStage changes stage of the version.
	//
	// Args
	//
	// - ctx
	//
	// - name, version: identity of the version
	//
	// - stage: new stage
	//
	// - archiveExisting: if true and stage is Production,
	// other versions of the name in Production are moved to Staging in the same transaction.
	//
	// Returns
	//
	// - domain.ModelVersion: updated version
	//
	// - error: If the version is not found, it wraps domain/errors.ErrMissing.
	TransitionStage(ctx context.Context, name string, version int, stage domain.Stage, archiveExisting bool) (domain.ModelVersion, error)

	// Lock takes an exclusive lock for the model name.
	//
	// It blocks until the lock is taken or ctx is done.
	// The lock is held until the returned function is called.
	// Calling it twice is harmless.
	Lock(ctx context.Context, name string) (func(), error)
}
