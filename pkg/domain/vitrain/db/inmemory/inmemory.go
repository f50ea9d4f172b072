package inmemory

import (
	kexperiment "github.com/opst/vitrain/pkg/domain/experiment/db"
	kmemexperiment "github.com/opst/vitrain/pkg/domain/experiment/db/inmemory"
	kregistry "github.com/opst/vitrain/pkg/domain/registry/db"
	kmemregistry "github.com/opst/vitrain/pkg/domain/registry/db/inmemory"
	kschema "github.com/opst/vitrain/pkg/domain/schema/db"
	kpgschema "github.com/opst/vitrain/pkg/domain/schema/db/postgres"
	dbInterface "github.com/opst/vitrain/pkg/domain/vitrain/db"
)

type vitrainDBMemory struct {
	registry    kregistry.Interface
	experiments kexperiment.Interface
}

// New returns stores living in process memory.
func New() dbInterface.Database {
	return &vitrainDBMemory{
		registry:    kmemregistry.New(),
		experiments: kmemexperiment.New(),
	}
}

func (v *vitrainDBMemory) Registry() kregistry.Interface {
	return v.registry
}

func (v *vitrainDBMemory) Experiments() kexperiment.Interface {
	return v.experiments
}

func (v *vitrainDBMemory) Schema() kschema.SchemaInterface {
	return kpgschema.Null()
}

func (v *vitrainDBMemory) Close() error {
	return nil
}
