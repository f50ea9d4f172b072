package schema

import (
	"context"
	"fmt"
	"log"

	"github.com/opst/vitrain/cmd/vitrain/subcommands/common"
	kdb "github.com/opst/vitrain/pkg/domain/vitrain/db"
	"github.com/youta-t/flarc"
)

func New() (flarc.Command, error) {
	upgrade, err := flarc.NewCommand(
		"Upgrade database schema to the latest.",
		struct{}{},
		flarc.Args{},
		common.NewDatabaseTask(Upgrade),
	)
	if err != nil {
		return nil, err
	}
	version, err := flarc.NewCommand(
		"Show versions of database schema.",
		struct{}{},
		flarc.Args{},
		common.NewDatabaseTask(Version),
	)
	if err != nil {
		return nil, err
	}

	return flarc.NewCommandGroup(
		"Manipulate database schema.",
		struct{}{},
		flarc.WithSubcommand("upgrade", upgrade),
		flarc.WithSubcommand("version", version),
	)
}

func Upgrade(
	ctx context.Context,
	logger *log.Logger,
	db kdb.Database,
	cl flarc.Commandline[struct{}],
	_ []any,
) error {
	before, err := db.Schema().Version(ctx)
	if err != nil {
		return err
	}
	if err := db.Schema().Upgrade(ctx); err != nil {
		return err
	}
	after, err := db.Schema().Version(ctx)
	if err != nil {
		return err
	}
	logger.Printf("schema version: %d -> %d", before, after)
	return nil
}

func Version(
	ctx context.Context,
	logger *log.Logger,
	db kdb.Database,
	cl flarc.Commandline[struct{}],
	_ []any,
) error {
	current, err := db.Schema().Version(ctx)
	if err != nil {
		return err
	}
	latest, err := db.Schema().Latest()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(cl.Stdout(), "current: %d\nlatest: %d\n", current, latest)
	return err
}
