package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path"

	"github.com/opst/vitrain/cmd/vitrain/subcommands/common"
	subpredict "github.com/opst/vitrain/cmd/vitrain/subcommands/predict"
	subpromote "github.com/opst/vitrain/cmd/vitrain/subcommands/promote"
	subschema "github.com/opst/vitrain/cmd/vitrain/subcommands/schema"
	subtrain "github.com/opst/vitrain/cmd/vitrain/subcommands/train"
	"github.com/opst/vitrain/pkg/utils/try"
	"github.com/youta-t/flarc"
)

func main() {
	name := path.Base(os.Args[0])
	logger := log.Default()
	logger.SetPrefix(fmt.Sprintf("[%s] ", name))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	train := try.To(subtrain.New()).OrFatal(logger)
	promote := try.To(subpromote.New()).OrFatal(logger)
	predict := try.To(subpredict.New()).OrFatal(logger)
	schema := try.To(subschema.New()).OrFatal(logger)

	vitrain := try.To(
		flarc.NewCommandGroup(
			"Train, register and serve brain tumor classifiers.",
			common.DefaultCommonFlags(),
			flarc.WithSubcommand("train", train),
			flarc.WithSubcommand("promote", promote),
			flarc.WithSubcommand("predict", predict),
			flarc.WithSubcommand("schema", schema),
		),
	).OrFatal(logger)

	os.Exit(flarc.Run(ctx, vitrain, flarc.WithHelp(true)))
}
