package postgres

import (
	"context"
	"io/fs"

	kpool "github.com/opst/vitrain/pkg/conn/db/postgres/pool"
	kexperiment "github.com/opst/vitrain/pkg/domain/experiment/db"
	kpgexperiment "github.com/opst/vitrain/pkg/domain/experiment/db/postgres"
	kregistry "github.com/opst/vitrain/pkg/domain/registry/db"
	kpgregistry "github.com/opst/vitrain/pkg/domain/registry/db/postgres"
	kschema "github.com/opst/vitrain/pkg/domain/schema/db"
	kpgschema "github.com/opst/vitrain/pkg/domain/schema/db/postgres"
	dbInterface "github.com/opst/vitrain/pkg/domain/vitrain/db"
)

type vitrainDBPostgres struct {
	pool        kpool.Pool
	registry    kregistry.Interface
	experiments kexperiment.Interface
	schema      kschema.SchemaInterface
}

type Config struct {
	SchemaRepository fs.FS
}

func DefaultConfig() Config {
	return Config{SchemaRepository: kpgschema.Repository()}
}

type Option func(*Config) *Config

// WithSchemaRepository replaces the schema repository embedded in the binary.
func WithSchemaRepository(repository fs.FS) Option {
	return func(c *Config) *Config {
		c.SchemaRepository = repository
		return c
	}
}

func New(ctx context.Context, url string, options ...Option) (dbInterface.Database, error) {
	pool, err := kpool.Connect(ctx, url)
	if err != nil {
		return nil, err
	}
	return Attach(pool, options...), nil
}

// Attach builds stores on an open pool. Close of the result closes the pool.
func Attach(pool kpool.Pool, options ...Option) dbInterface.Database {
	c := DefaultConfig()
	for _, option := range options {
		c = *option(&c)
	}
	return &vitrainDBPostgres{
		pool:        pool,
		registry:    kpgregistry.New(pool),
		experiments: kpgexperiment.New(pool),
		schema:      kpgschema.New(pool, c.SchemaRepository),
	}
}

func (v *vitrainDBPostgres) Registry() kregistry.Interface {
	return v.registry
}

func (v *vitrainDBPostgres) Experiments() kexperiment.Interface {
	return v.experiments
}

func (v *vitrainDBPostgres) Schema() kschema.SchemaInterface {
	return v.schema
}

func (v *vitrainDBPostgres) Close() error {
	v.pool.Close()
	return nil
}
