package server_test

import (
	"errors"
	"testing"

	"github.com/opst/vitrain/pkg/configs/server"
	"github.com/opst/vitrain/pkg/domain"
	"github.com/opst/vitrain/pkg/inference"
)

func TestLoadConfig(t *testing.T) {
	t.Run("it can be created from a config file", func(t *testing.T) {
		result, err := server.LoadConfig("./testdata/config.yaml")
		if err != nil {
			t.Fatalf("failed to parse config: %v", err)
		}

		if result.Port != "9090" {
			t.Errorf("port: %s", result.Port)
		}
		if result.DBURI != "postgres://vitrain-test-pgdb:5432/vitrain" {
			t.Errorf("dburi: %s", result.DBURI)
		}
		if result.LogLevel != "debug" {
			t.Errorf("loglevel: %s", result.LogLevel)
		}
		if want := (domain.Provenance{
			Project: "VIT for medical image", ModelType: "VIT-google", Author: "radiology-team",
		}); result.Model.Provenance != want {
			t.Errorf("provenance: %+v", result.Model.Provenance)
		}
		if result.Training.Dataset.Train != "/data/train" || result.Training.Dataset.Val != "/data/val" {
			t.Errorf("dataset: %+v", result.Training.Dataset)
		}
		if result.Training.Seed != 42 {
			t.Errorf("seed: %d", result.Training.Seed)
		}
		if result.Queue.Capacity != 2 {
			t.Errorf("queue capacity: %d", result.Queue.Capacity)
		}

		tc, err := result.TrainingConfig()
		if err != nil {
			t.Fatal(err)
		}
		want := domain.TrainingConfig{
			Optimizer:      domain.AdamW,
			LearningRate:   5e-5,
			WeightDecay:    0,
			Loss:           domain.CrossEntropyLoss,
			NumEpochs:      3,
			BatchSize:      16,
			ExperimentName: "brain-tumor",
			RunName:        "vit-finetune",
			DatasetName:    "brain-tumor-mri",
		}
		if tc != want {
			t.Errorf("training config:\n===actual===\n%+v\n===expected===\n%+v", tc, want)
		}

		ic := result.InferenceConfig()
		if ic.ModelName != "MonSuperModele" || ic.UncertainThreshold != 0.7 || len(ic.Labels) != 3 {
			t.Errorf("inference config: %+v", ic)
		}

		if !result.Auth.Enabled() {
			t.Fatal("auth should be enabled")
		}
		secret, err := result.Auth.Secret()
		if err != nil {
			t.Fatal(err)
		}
		if string(secret) != "not-so-secret" {
			t.Errorf("secret: %q", secret)
		}
	})

	t.Run("it fails when the file is missing", func(t *testing.T) {
		if _, err := server.LoadConfig("./testdata/no-such-file.yaml"); err == nil {
			t.Error("no error")
		}
	})
}

func TestUnmarshal(t *testing.T) {
	t.Run("defaults are filled", func(t *testing.T) {
		result, err := server.Unmarshal([]byte(`
training:
  optimizer: adamw
  learning_rate: 0.001
  loss_function: crossentropyloss
  num_epochs: 1
  experiment_name: exp
`))
		if err != nil {
			t.Fatal(err)
		}
		if result.Port != server.DefaultPort || result.LogLevel != server.DefaultLogLevel {
			t.Errorf("port/loglevel: %s, %s", result.Port, result.LogLevel)
		}
		if result.Model.Name != server.DefaultModelName {
			t.Errorf("model name: %s", result.Model.Name)
		}
		if result.Queue.Capacity != server.DefaultQueueCapacity {
			t.Errorf("queue capacity: %d", result.Queue.Capacity)
		}
		if result.Auth.Enabled() {
			t.Error("auth should be disabled")
		}
		ic := result.InferenceConfig()
		if ic.UncertainThreshold != inference.DefaultUncertainThreshold || len(ic.Labels) != len(inference.DefaultLabels) {
			t.Errorf("inference config: %+v", ic)
		}

		tc, err := result.TrainingConfig()
		if err != nil {
			t.Fatal(err)
		}
		if tc.BatchSize != domain.DefaultBatchSize || tc.WeightDecay != domain.DefaultWeightDecay {
			t.Errorf("training config: %+v", tc)
		}
	})

	for name, testcase := range map[string]struct {
		yaml string
		then error
	}{
		"negative queue capacity": {
			yaml: "queue: {capacity: -1}",
			then: server.ErrInvalidConfig,
		},
		"threshold out of range": {
			yaml: "inference: {uncertain_threshold: 1.5}",
			then: server.ErrInvalidConfig,
		},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := server.Unmarshal([]byte(testcase.yaml))
			if !errors.Is(err, testcase.then) {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}

	for name, testcase := range map[string]struct {
		yaml string
		then error
	}{
		"unsupported optimizer": {
			yaml: `
training:
  optimizer: sgd
  learning_rate: 0.001
  loss_function: crossentropyloss
  num_epochs: 1
  experiment_name: exp
`,
			then: domain.ErrUnsupportedOptimizer,
		},
		"unsupported loss": {
			yaml: `
training:
  optimizer: adamw
  learning_rate: 0.001
  loss_function: mse
  num_epochs: 1
  experiment_name: exp
`,
			then: domain.ErrUnsupportedLoss,
		},
		"no epochs": {
			yaml: `
training:
  optimizer: adamw
  learning_rate: 0.001
  loss_function: crossentropyloss
  experiment_name: exp
`,
			then: domain.ErrInvalidConfig,
		},
	} {
		t.Run("training config: "+name, func(t *testing.T) {
			conf, err := server.Unmarshal([]byte(testcase.yaml))
			if err != nil {
				t.Fatal(err)
			}
			if _, err := conf.TrainingConfig(); !errors.Is(err, testcase.then) {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
