package db

import (
	kexperiment "github.com/opst/vitrain/pkg/domain/experiment/db"
	kregistry "github.com/opst/vitrain/pkg/domain/registry/db"
	kschema "github.com/opst/vitrain/pkg/domain/schema/db"
)

type Database interface {
	Registry() kregistry.Interface
	Experiments() kexperiment.Interface
	Schema() kschema.SchemaInterface
	Close() error
}
