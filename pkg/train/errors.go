package train

import (
	"errors"
	"fmt"
)

// kinds of failures of a training run.
//
// Errors returned from Orchestrator and Promoter are *RunError,
// and errors.Is(err, KIND) reports the kind.
var (
	// training config is invalid. Nothing has been tracked.
	ErrConfiguration = errors.New("configuration error")

	// the run has been aborted before its model is saved.
	ErrTrainingFailed = errors.New("training failed")

	// the model could not be saved as an artifact of the run.
	ErrArtifactPersistFailed = errors.New("artifact persist failed")

	// the model has not been registered, or has been registered but not staged.
	//
	// When the version has been registered, RunError.Version is set.
	// Promote the version again to recover.
	ErrPromotionFailed = errors.New("promotion failed")
)

var (
	// loss has been NaN or infinite.
	ErrNonFiniteLoss = errors.New("loss is not finite")

	// a data loader yields no samples.
	ErrEmptyLoader = errors.New("data loader is empty")

	// Orchestrator.Run is called twice.
	ErrAlreadyRun = errors.New("orchestrator has already run")
)

// RunError is a failure of a training run.
type RunError struct {
	// one of ErrConfiguration, ErrTrainingFailed, ErrArtifactPersistFailed or ErrPromotionFailed.
	Kind error

	// run in the experiment store. Empty when the run has not been started.
	RunId string

	// registered version of the model, if any.
	Version *int

	Err error
}

func (e *RunError) Error() string {
	msg := e.Kind.Error()
	if e.RunId != "" {
		msg += fmt.Sprintf(" (run %s", e.RunId)
		if e.Version != nil {
			msg += fmt.Sprintf(", version %d", *e.Version)
		}
		msg += ")"
	} else if e.Version != nil {
		msg += fmt.Sprintf(" (version %d)", *e.Version)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RunError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// KindName names the kind of err, like "PromotionFailed".
//
// It is empty when err is not of a kind.
func KindName(err error) string {
	switch {
	case errors.Is(err, ErrConfiguration):
		return "ConfigurationError"
	case errors.Is(err, ErrTrainingFailed):
		return "TrainingFailed"
	case errors.Is(err, ErrArtifactPersistFailed):
		return "ArtifactPersistFailed"
	case errors.Is(err, ErrPromotionFailed):
		return "PromotionFailed"
	default:
		return ""
	}
}
