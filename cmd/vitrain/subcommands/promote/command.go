package promote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"strconv"

	"github.com/opst/vitrain/cmd/vitrain/subcommands/common"
	apimodels "github.com/opst/vitrain/pkg/api/types/models"
	"github.com/youta-t/flarc"
)

type Flags struct {
	Version  int    `flag:"version" alias:"v" help:"version of the model to be promoted"`
	Accuracy string `flag:"accuracy" help:"best validation accuracy of the version, in [0, 1]"`
}

var ErrUsage = errors.New("usage error")

func New() (flarc.Command, error) {
	return flarc.NewCommand(
		"Apply the promotion policy to a registered version again.",
		Flags{},
		flarc.Args{},
		common.NewTask(Task),
		flarc.WithDescription(`
Apply the promotion policy to a registered version again.

Use this when a training has registered the version but failed on promotion.
The "ranking" and "val_accuracy" tags and the stage of the version are set again.
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
	if flags.Version <= 0 {
		return fmt.Errorf("%w: --version should be positive", ErrUsage)
	}
	acc, err := strconv.ParseFloat(flags.Accuracy, 64)
	if err != nil || math.IsNaN(acc) || acc < 0 || 1 < acc {
		return fmt.Errorf("%w: --accuracy should be a number in [0, 1]: %q", ErrUsage, flags.Accuracy)
	}

	d, err := env.Vitrain.Promote(ctx, flags.Version, acc)
	if err != nil {
		return err
	}
	logger.Printf("version %d: %s", flags.Version, d)

	enc := json.NewEncoder(cl.Stdout())
	enc.SetIndent("", "    ")
	return enc.Encode(apimodels.ComposePromoteResult(env.Vitrain.ModelName(), flags.Version, d))
}
