// Package vitrain ties stores, datasets and configuration together.
//
// Commands build a Vitrain from a server config and a database, and use it
// to train, re-promote and predict.
package vitrain

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"math/rand/v2"
	"os"

	"github.com/opst/vitrain/pkg/configs/server"
	"github.com/opst/vitrain/pkg/dataset"
	"github.com/opst/vitrain/pkg/domain"
	kdb "github.com/opst/vitrain/pkg/domain/vitrain/db"
	"github.com/opst/vitrain/pkg/inference"
	"github.com/opst/vitrain/pkg/nn"
	"github.com/opst/vitrain/pkg/train"
	"github.com/opst/vitrain/pkg/trigger"
)

type Vitrain struct {
	db        kdb.Database
	conf      *server.Config
	logger    *log.Logger
	datasets  func(dir string) (fs.FS, string)
	seed      func() uint64
	promoter  *train.Promoter
	predictor *inference.Predictor
}

type Option func(*Vitrain)

func WithLogger(logger *log.Logger) Option {
	return func(v *Vitrain) {
		v.logger = logger
	}
}

// WithDatasetFS resolves dataset directories in fsys, instead of the local filesystem.
func WithDatasetFS(fsys fs.FS) Option {
	return func(v *Vitrain) {
		v.datasets = func(dir string) (fs.FS, string) { return fsys, dir }
	}
}

func New(db kdb.Database, conf *server.Config, options ...Option) *Vitrain {
	v := &Vitrain{
		db:       db,
		conf:     conf,
		logger:   log.Default(),
		datasets: func(dir string) (fs.FS, string) { return os.DirFS(dir), "." },
	}
	for _, opt := range options {
		opt(v)
	}
	v.seed = func() uint64 {
		if s := conf.Training.Seed; s != 0 {
			return s
		}
		return rand.Uint64()
	}
	v.promoter = train.NewPromoter(db.Registry(), conf.Model.Name, v.logger)
	v.predictor = inference.New(db.Registry(), db.Experiments(), conf.InferenceConfig())
	return v
}

func (v *Vitrain) Database() kdb.Database {
	return v.db
}

func (v *Vitrain) ModelName() string {
	return v.conf.Model.Name
}

// Train runs a training job by the config.
//
// Errors are *train.RunError.
func (v *Vitrain) Train(ctx context.Context, req trigger.Request, options ...train.Option) (train.Result, error) {
	job, err := v.job(req)
	if err != nil {
		return train.Result{State: train.Failed}, &train.RunError{Kind: train.ErrConfiguration, Err: err}
	}
	env := train.Env{
		Registry:    v.db.Registry(),
		Experiments: v.db.Experiments(),
		ModelName:   v.conf.Model.Name,
		Provenance:  v.conf.Model.Provenance,
		Logger:      v.logger,
	}
	o, err := train.NewOrchestrator(env, job, options...)
	if err != nil {
		return train.Result{State: train.Failed}, err
	}
	return o.Run(ctx)
}

func (v *Vitrain) job(req trigger.Request) (train.Job, error) {
	config, err := v.conf.TrainingConfig()
	if err != nil {
		return train.Job{}, err
	}
	if req.RunName != "" {
		config.RunName = req.RunName
	}

	labels := v.conf.Inference.Labels
	trainSet, err := v.load(v.conf.Training.Dataset.Train, labels)
	if err != nil {
		return train.Job{}, fmt.Errorf("training dataset: %w", err)
	}
	valSet, err := v.load(v.conf.Training.Dataset.Val, labels)
	if err != nil {
		return train.Job{}, fmt.Errorf("validation dataset: %w", err)
	}
	if trainSet.Features() != valSet.Features() {
		return train.Job{}, fmt.Errorf(
			"%w: training and validation datasets have different features (%d, %d)",
			dataset.ErrBrokenSample, trainSet.Features(), valSet.Features(),
		)
	}

	seed := v.seed()
	model, err := nn.NewClassifier(trainSet.Features(), len(labels), rand.New(rand.NewPCG(seed, ^seed)))
	if err != nil {
		return train.Job{}, err
	}
	v.logger.Printf(
		"dataset: %d training samples, %d validation samples, %d features, classes %v",
		len(trainSet.Samples), len(valSet.Samples), trainSet.Features(), labels,
	)
	return train.Job{
		Config: config,
		Model:  model,
		Train:  dataset.NewLoader(trainSet, config.BatchSize, dataset.Shuffled(seed)),
		Val:    dataset.NewLoader(valSet, config.BatchSize),
	}, nil
}

func (v *Vitrain) load(dir string, classes []string) (*dataset.Dataset, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: directory is not configured", domain.ErrInvalidConfig)
	}
	fsys, root := v.datasets(dir)
	return dataset.Load(fsys, root, classes...)
}

// Promote applies the promotion policy to a registered version again.
func (v *Vitrain) Promote(ctx context.Context, version int, bestValAccuracy float64) (domain.PromotionDecision, error) {
	return v.promoter.Promote(ctx, version, bestValAccuracy)
}

func (v *Vitrain) Predict(ctx context.Context, features []float64) (inference.Prediction, error) {
	return v.predictor.Predict(ctx, features)
}
