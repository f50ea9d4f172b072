package train

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/opst/vitrain/pkg/domain"
	kexperiment "github.com/opst/vitrain/pkg/domain/experiment/db"
	kregistry "github.com/opst/vitrain/pkg/domain/registry/db"
	xe "github.com/opst/vitrain/pkg/errors"
	"github.com/opst/vitrain/pkg/nn"
)

// State of a training run.
type State int

const (
	Initialized State = iota
	Running
	Finalizing
	Promoted
	Demoted
	Terminated

	// aborted. Terminated follows.
	Failed
)

func (s State) String() string {
	switch s {
	case Initialized:
		return "Initialized"
	case Running:
		return "Running"
	case Finalizing:
		return "Finalizing"
	case Promoted:
		return "Promoted"
	case Demoted:
		return "Demoted"
	case Terminated:
		return "Terminated"
	case Failed:
		return "Failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Metric keys logged for each epoch.
const (
	MetricTrainLoss   = "loss_train"
	MetricValLoss     = "loss_val"
	MetricValAccuracy = "val_accuracy"
)

// Job is what to train.
type Job struct {
	Config domain.TrainingConfig

	Model Model
	Train Batches
	Val   Batches
}

// Env is where a job is tracked and registered.
type Env struct {
	Registry    kregistry.Interface
	Experiments kexperiment.Interface

	// name of the model in the registry.
	ModelName string

	// tags attached to every version.
	Provenance domain.Provenance

	// defaults to log.Default()
	Logger *log.Logger
}

// Result of a training run.
type Result struct {
	RunId string

	// registered version. nil if not registered.
	Version *int

	// nil unless promotion has completed.
	Decision *domain.PromotionDecision

	Record *domain.RunRecord

	// Promoted, Demoted or Failed
	State State
}

// Orchestrator runs a job once: training, validation, registration and promotion.
type Orchestrator struct {
	env      Env
	job      Job
	runner   EpochRunner
	promoter *Promoter
	onEpoch  func(domain.EpochMetrics)

	optimizer nn.Optimizer
	loss      nn.Loss

	m       sync.Mutex
	history []State
}

type Option func(*Orchestrator)

// WithBatchProgress sets a callback called after each batch.
func WithBatchProgress(f func(epoch int, batch int, loss float64)) Option {
	return func(o *Orchestrator) {
		o.runner.Progress = f
	}
}

// WithEpochProgress sets a callback called after each epoch is logged.
func WithEpochProgress(f func(domain.EpochMetrics)) Option {
	return func(o *Orchestrator) {
		o.onEpoch = f
	}
}

// NewOrchestrator validates the job config and builds its optimizer and loss.
//
// An invalid config is *RunError of ErrConfiguration, and nothing is tracked for it.
func NewOrchestrator(env Env, job Job, options ...Option) (*Orchestrator, error) {
	if env.Logger == nil {
		env.Logger = log.Default()
	}
	config := job.Config
	if err := config.Validate(); err != nil {
		return nil, &RunError{Kind: ErrConfiguration, Err: err}
	}
	optimizer, err := nn.NewOptimizer(config.Optimizer, job.Model.Parameters(), config.LearningRate, config.WeightDecay)
	if err != nil {
		return nil, &RunError{Kind: ErrConfiguration, Err: err}
	}
	loss, err := nn.NewLoss(config.Loss)
	if err != nil {
		return nil, &RunError{Kind: ErrConfiguration, Err: err}
	}

	o := &Orchestrator{
		env:       env,
		job:       job,
		promoter:  NewPromoter(env.Registry, env.ModelName, env.Logger),
		optimizer: optimizer,
		loss:      loss,
		history:   []State{Initialized},
	}
	for _, opt := range options {
		opt(o)
	}
	return o, nil
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.m.Lock()
	defer o.m.Unlock()
	return o.history[len(o.history)-1]
}

// History returns states the orchestrator has been in, in order.
func (o *Orchestrator) History() []State {
	o.m.Lock()
	defer o.m.Unlock()
	out := make([]State, len(o.history))
	copy(out, o.history)
	return out
}

func (o *Orchestrator) enter(s State) {
	o.m.Lock()
	defer o.m.Unlock()
	o.history = append(o.history, s)
}

// Run executes the job.
//
// The run in the experiment store is always ended, as FINISHED when the model is staged,
// KILLED when ctx is done, or FAILED otherwise.
//
// Returns
//
// - Result: what has been done. It is returned even when error is not nil.
//
// - error: *RunError, or ErrAlreadyRun when it is called twice.
func (o *Orchestrator) Run(ctx context.Context) (Result, error) {
	o.m.Lock()
	if len(o.history) != 1 {
		o.m.Unlock()
		return Result{}, ErrAlreadyRun
	}
	o.m.Unlock()

	res, err := o.run(ctx)
	if err != nil {
		res.State = Failed
		o.enter(Failed)
	} else {
		o.enter(res.State)
	}
	o.enter(Terminated)
	return res, err
}

func (o *Orchestrator) run(ctx context.Context) (res Result, err error) {
	env, job, logger := o.env, o.job, o.env.Logger
	config := job.Config
	optimizer, loss := o.optimizer, o.loss

	handle, err := env.Experiments.StartRun(ctx, config.ExperimentName, config.RunName)
	if err != nil {
		return res, &RunError{Kind: ErrTrainingFailed, Err: xe.WrapWithNote("start run", err)}
	}
	res.RunId = handle.RunId
	res.Record = domain.NewRunRecord(handle.RunId, config)
	o.enter(Running)
	logger.Printf("run %s started (experiment %s)", handle.RunId, config.ExperimentName)

	status := domain.RunFailed
	defer func() {
		if err != nil && ctx.Err() != nil {
			status = domain.RunKilled
		}
		// the run should be ended even if ctx is done.
		if eerr := env.Experiments.EndRun(context.WithoutCancel(ctx), handle, status); eerr != nil {
			logger.Printf("run %s: failed to end as %s: %s", handle.RunId, status, eerr)
		} else {
			logger.Printf("run %s ended as %s", handle.RunId, status)
		}
	}()

	failed := func(kind error, err error) error {
		return &RunError{Kind: kind, RunId: handle.RunId, Version: res.Version, Err: xe.WrapAsOuter(err, 1)}
	}

	if err := env.Experiments.LogParams(ctx, handle, config.Params()); err != nil {
		return res, failed(ErrTrainingFailed, err)
	}

	for epoch := range config.NumEpochs {
		trainLoss, err := o.runner.RunTrainingEpoch(ctx, epoch, job.Model, optimizer, loss, job.Train.Epoch(epoch))
		if err != nil {
			return res, failed(ErrTrainingFailed, err)
		}
		valLoss, valAccuracy, err := o.runner.RunValidationEpoch(ctx, epoch, job.Model, loss, job.Val.Epoch(epoch))
		if err != nil {
			return res, failed(ErrTrainingFailed, err)
		}

		m := domain.EpochMetrics{Epoch: epoch, TrainLoss: trainLoss, ValLoss: valLoss, ValAccuracy: valAccuracy}
		for _, kv := range []struct {
			key   string
			value float64
		}{
			{key: MetricTrainLoss, value: m.TrainLoss},
			{key: MetricValLoss, value: m.ValLoss},
			{key: MetricValAccuracy, value: m.ValAccuracy},
		} {
			if err := env.Experiments.LogMetric(ctx, handle, kv.key, kv.value, epoch); err != nil {
				return res, failed(ErrTrainingFailed, err)
			}
		}
		res.Record.Observe(m)
		logger.Printf(
			"Epoch %d/%d - Train Loss: %.4f, Val Loss: %.4f, Val Acc: %.4f",
			epoch+1, config.NumEpochs, m.TrainLoss, m.ValLoss, m.ValAccuracy,
		)
		if o.onEpoch != nil {
			o.onEpoch(m)
		}
	}
	res.Record.Close()
	best := res.Record.BestValAccuracy()

	o.enter(Finalizing)

	ref, err := env.Experiments.LogModel(ctx, handle, job.Model)
	if err != nil {
		return res, failed(ErrArtifactPersistFailed, err)
	}
	logger.Printf("model saved as %s", ref)

	mv, err := env.Registry.Register(ctx, env.ModelName, ref, handle.RunId)
	if err != nil {
		return res, failed(ErrPromotionFailed, err)
	}
	version := mv.Version
	res.Version = &version
	logger.Printf("model registered as %s/%d", env.ModelName, version)

	for k, v := range env.Provenance.Tags() {
		if err := env.Registry.SetTag(ctx, env.ModelName, version, k, v); err != nil {
			return res, failed(ErrPromotionFailed, err)
		}
	}

	decision, err := o.promoter.Promote(ctx, version, best)
	if err != nil {
		if rerr := new(RunError); errors.As(err, &rerr) {
			rerr.RunId = handle.RunId
			return res, rerr
		}
		return res, failed(ErrPromotionFailed, err)
	}
	res.Decision = &decision
	status = domain.RunFinished

	if decision.Stage == domain.StageProduction {
		res.State = Promoted
	} else {
		res.State = Demoted
	}
	return res, nil
}
