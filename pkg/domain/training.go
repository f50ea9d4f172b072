package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type OptimizerKind string

const (
	AdamW OptimizerKind = "adamw"
)

type LossKind string

const (
	CrossEntropyLoss LossKind = "crossentropyloss"
)

const (
	DefaultBatchSize   = 32
	DefaultWeightDecay = 0.01
)

// Device name logged as a run parameter. Classifier heads are trained on CPU.
const DeviceCPU = "cpu"

var (
	ErrUnsupportedOptimizer = errors.New("optimizer is not supported")
	ErrUnsupportedLoss      = errors.New("loss function is not supported")
	ErrInvalidConfig        = errors.New("invalid training config")
)

// AsOptimizerKind parses optimizer name case-insensitively.
func AsOptimizerKind(s string) (OptimizerKind, error) {
	switch strings.ToLower(s) {
	case string(AdamW):
		return AdamW, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedOptimizer, s)
	}
}

// AsLossKind parses loss function name case-insensitively.
func AsLossKind(s string) (LossKind, error) {
	switch strings.ToLower(s) {
	case string(CrossEntropyLoss):
		return CrossEntropyLoss, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedLoss, s)
	}
}

// Hyperparameters and names of a training run.
//
// TrainingConfig is a value. Once validated, pass it by value and do not modify.
type TrainingConfig struct {
	Optimizer    OptimizerKind
	LearningRate float64
	WeightDecay  float64

	Loss LossKind

	NumEpochs int
	BatchSize int

	ExperimentName string
	RunName        string
	DatasetName    string
}

// Validate reports the first problem found in the config.
//
// Unknown optimizer or loss kinds are reported as
// ErrUnsupportedOptimizer or ErrUnsupportedLoss, others as ErrInvalidConfig.
func (c TrainingConfig) Validate() error {
	if _, err := AsOptimizerKind(string(c.Optimizer)); err != nil {
		return err
	}
	if _, err := AsLossKind(string(c.Loss)); err != nil {
		return err
	}
	if !(0 < c.LearningRate) {
		return fmt.Errorf("%w: learning rate should be positive: %v", ErrInvalidConfig, c.LearningRate)
	}
	if c.WeightDecay < 0 {
		return fmt.Errorf("%w: weight decay should not be negative: %v", ErrInvalidConfig, c.WeightDecay)
	}
	if c.NumEpochs <= 0 {
		return fmt.Errorf("%w: number of epochs should be positive: %d", ErrInvalidConfig, c.NumEpochs)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("%w: batch size should be positive: %d", ErrInvalidConfig, c.BatchSize)
	}
	if c.ExperimentName == "" {
		return fmt.Errorf("%w: experiment name is empty", ErrInvalidConfig)
	}
	return nil
}

// NewTrainingConfig normalizes names of kinds in c and validates it.
//
// DefaultBatchSize is applied when BatchSize is zero.
func NewTrainingConfig(c TrainingConfig) (TrainingConfig, error) {
	opt, err := AsOptimizerKind(string(c.Optimizer))
	if err != nil {
		return TrainingConfig{}, err
	}
	loss, err := AsLossKind(string(c.Loss))
	if err != nil {
		return TrainingConfig{}, err
	}
	c.Optimizer = opt
	c.Loss = loss
	if c.BatchSize == 0 {
		c.BatchSize = DefaultBatchSize
	}
	if err := c.Validate(); err != nil {
		return TrainingConfig{}, err
	}
	return c, nil
}

// Params is the parameter set logged on the start of a run.
func (c TrainingConfig) Params() map[string]string {
	return map[string]string{
		"optimizer":     string(c.Optimizer),
		"learning_rate": strconv.FormatFloat(c.LearningRate, 'g', -1, 64),
		"weight_decay":  strconv.FormatFloat(c.WeightDecay, 'g', -1, 64),
		"num_epochs":    strconv.Itoa(c.NumEpochs),
		"batch_size":    strconv.Itoa(c.BatchSize),
		"loss_function": string(c.Loss),
		"device":        DeviceCPU,
		"dataset":       c.DatasetName,
	}
}

// Metrics of an epoch.
type EpochMetrics struct {
	Epoch       int
	TrainLoss   float64
	ValLoss     float64
	ValAccuracy float64
}

func (m EpochMetrics) String() string {
	return fmt.Sprintf(
		"Epoch %d - Train Loss: %.4f, Val Loss: %.4f, Val Acc: %.4f",
		m.Epoch+1, m.TrainLoss, m.ValLoss, m.ValAccuracy,
	)
}

// Record of a training run, built epoch by epoch.
//
// BestValAccuracy is the running maximum of ValAccuracy of observed epochs,
// starting from 0.
type RunRecord struct {
	RunId  string
	Config TrainingConfig

	metrics []EpochMetrics
	best    float64
	closed  bool
}

func NewRunRecord(runId string, config TrainingConfig) *RunRecord {
	return &RunRecord{RunId: runId, Config: config, metrics: []EpochMetrics{}}
}

// Observe appends metrics of an epoch and updates BestValAccuracy.
//
// It panics when the record is closed.
func (r *RunRecord) Observe(m EpochMetrics) {
	if r.closed {
		panic(fmt.Sprintf("run record %s is closed", r.RunId))
	}
	r.metrics = append(r.metrics, m)
	if m.ValAccuracy > r.best {
		r.best = m.ValAccuracy
	}
}

func (r *RunRecord) Metrics() []EpochMetrics {
	out := make([]EpochMetrics, len(r.metrics))
	copy(out, r.metrics)
	return out
}

func (r *RunRecord) BestValAccuracy() float64 {
	return r.best
}

func (r *RunRecord) Close() {
	r.closed = true
}

func (r *RunRecord) Closed() bool {
	return r.closed
}
