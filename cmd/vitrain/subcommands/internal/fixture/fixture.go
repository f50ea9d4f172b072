// Package fixture builds environments of subcommands for tests.
package fixture

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand/v2"
	"testing"
	"testing/fstest"

	"github.com/opst/vitrain/cmd/vitrain/subcommands/common"
	"github.com/opst/vitrain/pkg/configs/server"
	kdb "github.com/opst/vitrain/pkg/domain/vitrain/db"
	kmemdb "github.com/opst/vitrain/pkg/domain/vitrain/db/inmemory"
	"github.com/opst/vitrain/pkg/utils/try"
	"github.com/opst/vitrain/pkg/vitrain"
)

var Classes = []string{"glioma", "meningioma", "no_tumor", "pituitary"}

const Features = 4

// Embedding of an image in the class.
func Embedding(rng *rand.Rand, class int) []float64 {
	f := make([]float64, Features)
	for i := range f {
		f[i] = rng.NormFloat64() * 0.1
	}
	f[class] += 1
	return f
}

// Env with in-memory stores and synthetic datasets.
func Env(t *testing.T, epochs int) (common.Env, kdb.Database) {
	t.Helper()
	rng := rand.New(rand.NewPCG(4, 2))
	fsys := fstest.MapFS{}
	for _, split := range []string{"train", "val"} {
		for class, label := range Classes {
			for i := range 16 {
				b := try.To(json.Marshal(Embedding(rng, class))).OrFatal(t)
				fsys[fmt.Sprintf("%s/%s/%02d.json", split, label, i)] = &fstest.MapFile{Data: b}
			}
		}
	}

	conf := try.To(server.Unmarshal([]byte(fmt.Sprintf(`
training:
  optimizer: adamw
  learning_rate: 0.05
  loss_function: crossentropyloss
  num_epochs: %d
  batch_size: 8
  experiment_name: cli
  run_name: cli
  seed: 3
  dataset: {name: synthetic, train: train, val: val}
`, epochs)))).OrFatal(t)

	db := kmemdb.New()
	logger := log.New(io.Discard, "", 0)
	return common.Env{
		Config:  conf,
		Vitrain: vitrain.New(db, conf, vitrain.WithDatasetFS(fsys), vitrain.WithLogger(logger)),
	}, db
}
