package server

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/opst/vitrain/pkg/domain"
	"github.com/opst/vitrain/pkg/inference"
	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("server config: invalid")

const (
	DefaultPort          = "8080"
	DefaultModelName     = "MonSuperModele"
	DefaultQueueCapacity = 4
	DefaultLogLevel      = "info"
)

type Config struct {
	Port     string `yaml:"port"`
	DBURI    string `yaml:"dburi"`
	LogLevel string `yaml:"loglevel"`

	Model     ModelConfig     `yaml:"model"`
	Training  TrainingConfig  `yaml:"training"`
	Inference InferenceConfig `yaml:"inference"`
	Auth      AuthConfig      `yaml:"auth"`
	Queue     QueueConfig     `yaml:"queue"`
}

type ModelConfig struct {
	Name       string            `yaml:"name"`
	Provenance domain.Provenance `yaml:"provenance"`
}

type TrainingConfig struct {
	Optimizer    string   `yaml:"optimizer"`
	LearningRate float64  `yaml:"learning_rate"`
	LossFunction string   `yaml:"loss_function"`
	NumEpochs    int      `yaml:"num_epochs"`
	BatchSize    int      `yaml:"batch_size"`
	WeightDecay  *float64 `yaml:"weight_decay"`

	ExperimentName string        `yaml:"experiment_name"`
	RunName        string        `yaml:"run_name"`
	Dataset        DatasetConfig `yaml:"dataset"`

	// seed for shuffling and initial weights
	Seed uint64 `yaml:"seed"`
}

type DatasetConfig struct {
	Name string `yaml:"name"`

	// directory of training samples, in "<class>/<sample>.json" layout
	Train string `yaml:"train"`

	// directory of validation samples, in the same layout as Train
	Val string `yaml:"val"`
}

type InferenceConfig struct {
	Labels             []string `yaml:"labels"`
	UncertainThreshold *float64 `yaml:"uncertain_threshold"`
}

type AuthConfig struct {
	// file containing HS256 secret. Auth is disabled when empty.
	HS256SecretFile string `yaml:"hs256_secret_file"`
}

func (a AuthConfig) Enabled() bool {
	return a.HS256SecretFile != ""
}

// Secret reads the secret file. Surrounding whitespaces are trimmed.
func (a AuthConfig) Secret() ([]byte, error) {
	content, err := os.ReadFile(a.HS256SecretFile)
	if err != nil {
		return nil, err
	}
	secret := strings.TrimSpace(string(content))
	if secret == "" {
		return nil, fmt.Errorf("%w: secret file is empty: %s", ErrInvalidConfig, a.HS256SecretFile)
	}
	return []byte(secret), nil
}

type QueueConfig struct {
	Capacity int `yaml:"capacity"`
}

func LoadConfig(filepath string) (*Config, error) {
	content, err := os.ReadFile(filepath)
	if err != nil {
		return nil, err
	}
	return Unmarshal(content)
}

// Unmarshal parses yaml and fills defaults.
func Unmarshal(conf []byte) (*Config, error) {
	var out Config
	if err := yaml.Unmarshal(conf, &out); err != nil {
		return nil, err
	}

	if out.Port == "" {
		out.Port = DefaultPort
	}
	if out.LogLevel == "" {
		out.LogLevel = DefaultLogLevel
	}
	if out.Model.Name == "" {
		out.Model.Name = DefaultModelName
	}
	if out.Queue.Capacity == 0 {
		out.Queue.Capacity = DefaultQueueCapacity
	}
	if out.Queue.Capacity < 0 {
		return nil, fmt.Errorf("%w: queue.capacity should be positive: %d", ErrInvalidConfig, out.Queue.Capacity)
	}
	if len(out.Inference.Labels) == 0 {
		out.Inference.Labels = append([]string{}, inference.DefaultLabels...)
	}
	if out.Inference.UncertainThreshold == nil {
		th := inference.DefaultUncertainThreshold
		out.Inference.UncertainThreshold = &th
	}
	if th := *out.Inference.UncertainThreshold; th < 0 || 1 < th {
		return nil, fmt.Errorf("%w: inference.uncertain_threshold should be in [0, 1]: %v", ErrInvalidConfig, th)
	}
	if out.Training.WeightDecay == nil {
		wd := domain.DefaultWeightDecay
		out.Training.WeightDecay = &wd
	}
	return &out, nil
}

// TrainingConfig converts the training section into a validated domain.TrainingConfig.
func (c *Config) TrainingConfig() (domain.TrainingConfig, error) {
	t := c.Training
	wd := domain.DefaultWeightDecay
	if t.WeightDecay != nil {
		wd = *t.WeightDecay
	}
	return domain.NewTrainingConfig(domain.TrainingConfig{
		Optimizer:      domain.OptimizerKind(t.Optimizer),
		LearningRate:   t.LearningRate,
		WeightDecay:    wd,
		Loss:           domain.LossKind(t.LossFunction),
		NumEpochs:      t.NumEpochs,
		BatchSize:      t.BatchSize,
		ExperimentName: t.ExperimentName,
		RunName:        t.RunName,
		DatasetName:    t.Dataset.Name,
	})
}

func (c *Config) InferenceConfig() inference.Config {
	return inference.Config{
		ModelName:          c.Model.Name,
		Labels:             append([]string{}, c.Inference.Labels...),
		UncertainThreshold: *c.Inference.UncertainThreshold,
	}
}
