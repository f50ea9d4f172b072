package vitrain_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"testing"
	"testing/fstest"

	"github.com/opst/vitrain/pkg/configs/server"
	"github.com/opst/vitrain/pkg/domain"
	kmemdb "github.com/opst/vitrain/pkg/domain/vitrain/db/inmemory"
	"github.com/opst/vitrain/pkg/train"
	"github.com/opst/vitrain/pkg/trigger"
	"github.com/opst/vitrain/pkg/utils/try"
	"github.com/opst/vitrain/pkg/vitrain"
)

var labels = []string{"glioma", "meningioma", "no_tumor", "pituitary"}

// embedding of class: one-hot with noise.
func embedding(rng *rand.Rand, class int) []float64 {
	f := make([]float64, 6)
	for i := range f {
		f[i] = rng.NormFloat64() * 0.1
	}
	f[class] += 1
	return f
}

func datasets(t *testing.T) fstest.MapFS {
	t.Helper()
	rng := rand.New(rand.NewPCG(3, 5))
	fsys := fstest.MapFS{}
	for _, split := range []string{"train", "val"} {
		for class, label := range labels {
			for i := range 25 {
				b := try.To(json.Marshal(embedding(rng, class))).OrFatal(t)
				fsys[fmt.Sprintf("data/%s/%s/%03d.json", split, label, i)] = &fstest.MapFile{Data: b}
			}
		}
	}
	return fsys
}

func config(t *testing.T) *server.Config {
	t.Helper()
	return try.To(server.Unmarshal([]byte(`
model:
  name: MonSuperModele
  provenance:
    project: VIT for medical image
    model_type: VIT-google
training:
  optimizer: adamw
  learning_rate: 0.05
  loss_function: crossentropyloss
  num_epochs: 8
  batch_size: 10
  experiment_name: brain-tumor
  run_name: default-run
  seed: 1
  dataset:
    name: synthetic
    train: data/train
    val: data/val
`))).OrFatal(t)
}

func TestVitrain(t *testing.T) {
	ctx := context.Background()
	logger := log.New(new(bytes.Buffer), "", 0)

	t.Run("it trains, promotes and predicts", func(t *testing.T) {
		db := kmemdb.New()
		testee := vitrain.New(db, config(t), vitrain.WithDatasetFS(datasets(t)), vitrain.WithLogger(logger))

		epochs := 0
		res, err := testee.Train(
			ctx, trigger.Request{RunName: "requested"},
			train.WithEpochProgress(func(domain.EpochMetrics) { epochs++ }),
		)
		if err != nil {
			t.Fatal(err)
		}
		if res.State != train.Promoted {
			t.Fatalf("state: %s", res.State)
		}
		if epochs != 8 {
			t.Errorf("epochs: %d", epochs)
		}

		run := try.To(db.Experiments().GetRun(ctx, res.RunId)).OrFatal(t)
		if run.RunName != "requested" {
			t.Errorf("run name: %s", run.RunName)
		}
		if run.Params["dataset"] != "synthetic" {
			t.Errorf("params: %+v", run.Params)
		}

		mv := try.To(db.Registry().Get(ctx, "MonSuperModele", *res.Version)).OrFatal(t)
		if mv.Tags[domain.TagProject] != "VIT for medical image" || mv.Tags[domain.TagModelType] != "VIT-google" {
			t.Errorf("provenance tags: %+v", mv.Tags)
		}

		rng := rand.New(rand.NewPCG(100, 200))
		for class, label := range labels {
			got, err := testee.Predict(ctx, embedding(rng, class))
			if err != nil {
				t.Fatal(err)
			}
			if got.Label != label || got.Version != *res.Version {
				t.Errorf("prediction for %s: %+v", label, got)
			}
		}

		d, err := testee.Promote(ctx, *res.Version, res.Record.BestValAccuracy())
		if err != nil {
			t.Fatal(err)
		}
		if d != *res.Decision {
			t.Errorf("re-promotion: %s, want %s", d, res.Decision)
		}
	})

	t.Run("missing dataset is a configuration error", func(t *testing.T) {
		db := kmemdb.New()
		conf := config(t)
		conf.Training.Dataset.Val = "data/missing"
		testee := vitrain.New(db, conf, vitrain.WithDatasetFS(datasets(t)), vitrain.WithLogger(logger))

		res, err := testee.Train(ctx, trigger.Request{})
		if !errors.Is(err, train.ErrConfiguration) {
			t.Errorf("unexpected error: %v", err)
		}
		if res.State != train.Failed {
			t.Errorf("state: %s", res.State)
		}
		if vs := try.To(db.Registry().Versions(ctx, "MonSuperModele")).OrFatal(t); len(vs) != 0 {
			t.Errorf("registered: %v", vs)
		}
	})

	t.Run("unsupported optimizer is a configuration error", func(t *testing.T) {
		conf := config(t)
		conf.Training.Optimizer = "sgd"
		testee := vitrain.New(kmemdb.New(), conf, vitrain.WithDatasetFS(datasets(t)), vitrain.WithLogger(logger))

		_, err := testee.Train(ctx, trigger.Request{})
		if !errors.Is(err, train.ErrConfiguration) || !errors.Is(err, domain.ErrUnsupportedOptimizer) {
			t.Errorf("unexpected error: %v", err)
		}
	})
}
