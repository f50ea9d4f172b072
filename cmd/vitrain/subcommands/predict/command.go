package predict

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/opst/vitrain/cmd/vitrain/subcommands/common"
	apipredictions "github.com/opst/vitrain/pkg/api/types/predictions"
	"github.com/youta-t/flarc"
)

const ARG_FILE = "FILE"

func New() (flarc.Command, error) {
	return flarc.NewCommand(
		"Classify an embedding with the model in Production.",
		struct{}{},
		flarc.Args{
			{
				Name: ARG_FILE, Required: true,
				Help: `json file of an embedding, an array of numbers. "-" reads stdin.`,
			},
		},
		common.NewTask(Task),
	)
}

func Task(
	ctx context.Context,
	logger *log.Logger,
	env common.Env,
	cl flarc.Commandline[struct{}],
	_ []any,
) error {
	name := cl.Args()[ARG_FILE][0]

	var r io.Reader
	if name == "-" {
		r = cl.Stdin()
	} else {
		f, err := os.Open(name)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}

	var features []float64
	if err := json.NewDecoder(r).Decode(&features); err != nil {
		return fmt.Errorf("%s is not an array of numbers: %w", name, err)
	}

	p, err := env.Vitrain.Predict(ctx, features)
	if err != nil {
		return err
	}
	if p.Uncertain {
		logger.Printf("uncertain: confidence %.4f is under the threshold", p.Confidence)
	}

	enc := json.NewEncoder(cl.Stdout())
	enc.SetIndent("", "    ")
	return enc.Encode(apipredictions.ComposeResult(p))
}
