package domain

// domain package contains the Domain Models and Interfaces for vitrain.
//
// `domain/vitrain` package exposes the root object.
// Entrypoints of applications should instantiate it and use it to reach the stores.
//
// `domain/ENTITY.go` has high-level entities (Domain Model types) and functions.
// For example, `domain/model.go` contains the `ModelVersion` entity.
//
// `domain/ENTITY/db` directory contains the interface of the store of the entity,
// and its implementations: `postgres` (RDB), `inmemory` (single process) and `mock` (for tests).
//
// # Entities
//
// - `registry`: versioned store of trained models.
// Each model name has an ordered sequence of immutable versions.
// A version carries a Stage (None, Staging, Production or Archived) and free key-value Tags.
// At most one version of a name should be in Production.
//
// - `experiment`: tracking store of training runs.
// A run has immutable parameters, per-epoch metrics, a status and the trained model artifact.
// Artifacts are referred as "runs:/<run id>/<path>", and the registry points them as Source of versions.
//
// - `schema`: versions of the RDB schema.
