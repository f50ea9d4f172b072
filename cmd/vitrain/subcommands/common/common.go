package common

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/opst/vitrain/pkg/configs/server"
	kschema "github.com/opst/vitrain/pkg/domain/schema/db"
	kdb "github.com/opst/vitrain/pkg/domain/vitrain/db"
	kmemdb "github.com/opst/vitrain/pkg/domain/vitrain/db/inmemory"
	kpgdb "github.com/opst/vitrain/pkg/domain/vitrain/db/postgres"
	"github.com/opst/vitrain/pkg/vitrain"
	"github.com/youta-t/flarc"
)

type CommonFlags struct {
	Config string `flag:"config" help:"path to vitrain config file"`
	DBURI  string `flag:"dburi" help:"postgres uri. overrides dburi in the config file"`
	Memory bool   `flag:"memory" help:"keep models and runs in memory, instead of postgres"`
}

func DefaultCommonFlags() CommonFlags {
	return CommonFlags{
		Config: os.Getenv("VITRAIN_CONFIG"),
		DBURI:  os.Getenv("VITRAIN_DBURI"),
	}
}

// Env is what subcommands work with.
type Env struct {
	Config  *server.Config
	Vitrain *vitrain.Vitrain
}

type Task[T any] func(
	ctx context.Context,
	logger *log.Logger,
	env Env,
	cl flarc.Commandline[T],
	params []any,
) error

type DatabaseTask[T any] func(
	ctx context.Context,
	logger *log.Logger,
	db kdb.Database,
	cl flarc.Commandline[T],
	params []any,
) error

func split(pos []any) (CommonFlags, []any, error) {
	var commonFlag CommonFlags
	found := false
	newpos := make([]any, 0, len(pos))
	for _, p := range pos {
		switch v := p.(type) {
		case CommonFlags:
			found = true
			commonFlag = v
		default:
			newpos = append(newpos, p)
		}
	}
	if !found {
		return CommonFlags{}, nil, errors.New("programming error: common flags not found")
	}
	return commonFlag, newpos, nil
}

func newLogger[T any](cl flarc.Commandline[T]) *log.Logger {
	logger := log.New(cl.Stderr(), "", log.LstdFlags)
	logger.SetPrefix(fmt.Sprintf("[%s] ", cl.Fullname()))
	return logger
}

func open(ctx context.Context, logger *log.Logger, flags CommonFlags, checkSchema bool) (*server.Config, kdb.Database, error) {
	if flags.Config == "" {
		return nil, nil, errors.New("--config (or VITRAIN_CONFIG) is required")
	}
	conf, err := server.LoadConfig(flags.Config)
	if err != nil {
		return nil, nil, fmt.Errorf("can not read config %s: %w", flags.Config, err)
	}
	if flags.DBURI != "" {
		conf.DBURI = flags.DBURI
	}

	if flags.Memory {
		logger.Println("models and runs are kept in memory, and lost on exit.")
		return conf, kmemdb.New(), nil
	}
	if conf.DBURI == "" {
		return nil, nil, errors.New("dburi is not set. pass --dburi, or --memory to try without database")
	}
	db, err := kpgdb.New(ctx, conf.DBURI)
	if err != nil {
		return nil, nil, err
	}
	if checkSchema {
		if err := kschema.Check(ctx, db.Schema()); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("%w. run `vitrain schema upgrade` first", err)
		}
	}
	return conf, db, nil
}

// NewTask opens the database by common flags, and runs the task with it.
func NewTask[T any](task Task[T]) flarc.Task[T] {
	return func(ctx context.Context, cl flarc.Commandline[T], pos []any) error {
		flags, newpos, err := split(pos)
		if err != nil {
			return err
		}
		logger := newLogger(cl)
		conf, db, err := open(ctx, logger, flags, true)
		if err != nil {
			return err
		}
		defer db.Close()

		env := Env{Config: conf, Vitrain: vitrain.New(db, conf, vitrain.WithLogger(logger))}
		return task(ctx, logger, env, cl, newpos)
	}
}

// NewDatabaseTask is like NewTask, but it does not check the schema.
func NewDatabaseTask[T any](task DatabaseTask[T]) flarc.Task[T] {
	return func(ctx context.Context, cl flarc.Commandline[T], pos []any) error {
		flags, newpos, err := split(pos)
		if err != nil {
			return err
		}
		logger := newLogger(cl)
		_, db, err := open(ctx, logger, flags, false)
		if err != nil {
			return err
		}
		defer db.Close()
		return task(ctx, logger, db, cl, newpos)
	}
}
