package train

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"

	"github.com/cheggaaa/pb/v3"
	"github.com/opst/vitrain/cmd/vitrain/subcommands/common"
	"github.com/opst/vitrain/pkg/domain"
	"github.com/opst/vitrain/pkg/train"
	"github.com/opst/vitrain/pkg/trigger"
	"github.com/youta-t/flarc"
)

type Flags struct {
	RunName    string `flag:"run-name" help:"name of the run. overrides run_name in the config file"`
	NoProgress bool   `flag:"no-progress" help:"do not show progress bar"`
}

// Result is printed to stdout as json.
type Result struct {
	RunId           string  `json:"runId"`
	State           string  `json:"state"`
	Version         *int    `json:"version,omitempty"`
	Stage           string  `json:"stage,omitempty"`
	Ranking         string  `json:"ranking,omitempty"`
	BestValAccuracy float64 `json:"bestValAccuracy"`
	Kind            string  `json:"kind,omitempty"`
	Error           string  `json:"error,omitempty"`
}

func New() (flarc.Command, error) {
	return flarc.NewCommand(
		"Train a model and register it.",
		Flags{},
		flarc.Args{},
		common.NewTask(Task),
		flarc.WithDescription(`
Train a classifier on the datasets in the config file, and register it to the model registry.

The registered version goes to Production when it beats the current Production version.
Otherwise, it goes to Staging.

The result is printed to stdout as json, also when the training fails.
`),
	)
}

func Task(
	ctx context.Context,
	logger *log.Logger,
	env common.Env,
	cl flarc.Commandline[Flags],
	_ []any,
) error {
	flags := cl.Flags()

	options := []train.Option{}
	if !flags.NoProgress {
		bar := pb.New(env.Config.Training.NumEpochs)
		bar.SetWriter(cl.Stderr())
		bar.Set("prefix", "epoch")
		if err := bar.Err(); err != nil {
			return err
		}
		bar.Start()
		defer bar.Finish()
		options = append(options, train.WithEpochProgress(func(m domain.EpochMetrics) {
			bar.Set("suffix", fmt.Sprintf("val acc %.4f", m.ValAccuracy))
			bar.SetCurrent(int64(m.Epoch + 1))
		}))
	}

	res, err := env.Vitrain.Train(ctx, trigger.Request{RunName: flags.RunName}, options...)
	if perr := printResult(cl.Stdout(), res, err); perr != nil {
		return perr
	}
	return err
}

func printResult(w io.Writer, res train.Result, err error) error {
	out := Result{
		RunId:   res.RunId,
		State:   res.State.String(),
		Version: res.Version,
	}
	if res.Decision != nil {
		out.Stage = string(res.Decision.Stage)
		out.Ranking = string(res.Decision.Ranking)
	}
	if res.Record != nil {
		out.BestValAccuracy = res.Record.BestValAccuracy()
	}
	if err != nil {
		out.Kind = train.KindName(err)
		out.Error = err.Error()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	return enc.Encode(out)
}
