package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/opst/vitrain/pkg/auth"
	"github.com/opst/vitrain/pkg/configs/server"
	kschema "github.com/opst/vitrain/pkg/domain/schema/db"
	kdb "github.com/opst/vitrain/pkg/domain/vitrain/db"
	kmemdb "github.com/opst/vitrain/pkg/domain/vitrain/db/inmemory"
	kpgdb "github.com/opst/vitrain/pkg/domain/vitrain/db/postgres"
	"github.com/opst/vitrain/pkg/train"
	"github.com/opst/vitrain/pkg/trigger"
	"github.com/opst/vitrain/pkg/utils/filewatch"
	"github.com/opst/vitrain/pkg/vitrain"
)

func main() {
	configPath := flag.String("config-path", "", "server config path")
	upgrade := flag.Bool("upgrade-schema", false, "upgrade database schema on start")
	pcert := flag.String("cert", "", "certification file for TLS")
	pkey := flag.String("certkey", "", "key of certification file for TLS")
	flag.Parse()

	logger := log.Default()

	conf, err := server.LoadConfig(*configPath)
	if err != nil {
		logger.Fatalf("can not read configration: %s", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	ctx, stopWatching, err := filewatch.UntilModifyContext(ctx, []string{*configPath})
	if err != nil {
		logger.Fatalf("can not watch configration: %s", err)
	}
	defer stopWatching()

	db, err := openDatabase(ctx, conf.DBURI, *upgrade, logger)
	if err != nil {
		logger.Fatalf("can not open database: %s", err)
	}
	defer db.Close()

	guard := auth.Passthrough
	if conf.Auth.Enabled() {
		secret, err := conf.Auth.Secret()
		if err != nil {
			logger.Fatalf("can not read secret: %s", err)
		}
		guard = auth.NewVerifier(secret).Middleware
	}

	v := vitrain.New(db, conf, vitrain.WithLogger(logger))
	dispatcher := trigger.New(
		conf.Queue.Capacity,
		func(ctx context.Context, req trigger.Request) (train.Result, error) { return v.Train(ctx, req) },
		trigger.WithLogger(logger),
	)
	e := newServer(v, dispatcher, guard, conf.LogLevel)

	log.Println("registred routes:")
	for _, r := range e.Routes() {
		log.Println(r.Method, r.Path)
	}

	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		n, err := dispatcher.Start(ctx)
		logger.Printf("training worker stopped after %d jobs: %s", n, err)
	}()

	context.AfterFunc(ctx, func() {
		logger.Printf("shutting down: %s", context.Cause(ctx))
		graceful, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := e.Shutdown(graceful); err != nil {
			logger.Printf("error on shutdown: %s", err)
		}
	})

	if err := start(e, ":"+conf.Port, *pcert, *pkey); err != nil && !errors.Is(err, http.ErrServerClosed) {
		e.Logger.Fatal(err)
	}

	// a running job is killed by ctx, and its run is ended as KILLED.
	<-workerDone
	if errors.Is(context.Cause(ctx), filewatch.ErrModified) {
		logger.Println("config file is updated. quit to restart server.")
	}
}

func start(e *echo.Echo, addr string, cert string, key string) error {
	if cert != "" && key != "" {
		return e.StartTLS(addr, cert, key)
	}
	return e.Start(addr)
}

func openDatabase(ctx context.Context, uri string, upgrade bool, logger *log.Logger) (kdb.Database, error) {
	if uri == "" {
		logger.Println("dburi is not set. models and runs are kept in memory, and lost on exit.")
		return kmemdb.New(), nil
	}

	db, err := kpgdb.New(ctx, uri)
	if err != nil {
		return nil, err
	}
	if upgrade {
		if err := db.Schema().Upgrade(ctx); err != nil {
			db.Close()
			return nil, err
		}
	}
	if err := kschema.Check(ctx, db.Schema()); err != nil {
		db.Close()
		if errors.Is(err, kschema.ErrOutdated) {
			logger.Println("run `vitrain schema upgrade` or start with --upgrade-schema.")
		}
		return nil, err
	}
	return db, nil
}
