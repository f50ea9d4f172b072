package db

import (
	"context"

	"github.com/opst/vitrain/pkg/domain"
)

// Something whose state can be saved as an artifact.
type Artifact interface {
	// MarshalBinary encodes the artifact.
	MarshalBinary() ([]byte, error)
}

// Tracking store of training runs.
type Interface interface {
	// StartRun creates a new run in the experiment, in status RUNNING.
	//
	// The experiment is created when it does not exist.
	StartRun(ctx context.Context, experimentName string, runName string) (domain.RunHandle, error)

	// LogParams records parameters of the run.
	//
	// Parameters are immutable: logging a key again with another value is an error
	// wrapping domain/errors.ErrConflict. Logging the same value again is no-op.
	LogParams(ctx context.Context, run domain.RunHandle, params map[string]string) error

	// LogMetric records a metric value of the run at the step.
	//
	// Logging the same key and step again overwrites the value.
	LogMetric(ctx context.Context, run domain.RunHandle, key string, value float64, step int) error

	// LogModel saves the model as an artifact of the run.
	//
	// Returns
	//
	// - string: artifact reference, "runs:/RUN_ID/model".
	//
	// - error
	LogModel(ctx context.Context, run domain.RunHandle, model Artifact) (string, error)

	// LoadModel reads an artifact saved by LogModel.
	//
	// If not found, error wraps domain/errors.ErrMissing.
	LoadModel(ctx context.Context, ref string) ([]byte, error)

	// EndRun closes the run with the status.
	//
	// Ending a run already ended is no-op.
	EndRun(ctx context.Context, run domain.RunHandle, status domain.RunStatus) error

	// GetRun returns the run.
	//
	// If not found, error wraps domain/errors.ErrMissing.
	GetRun(ctx context.Context, runId string) (domain.Run, error)

	// Metrics returns all metrics of the run, ordered by key and step.
	Metrics(ctx context.Context, runId string) ([]domain.Metric, error)
}
