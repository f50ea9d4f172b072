package postgres

import (
	"cmp"
	"context"
	"embed"
	"errors"
	"io/fs"
	"path"
	"slices"
	"strconv"
	"strings"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	kpool "github.com/opst/vitrain/pkg/conn/db/postgres/pool"
	kschema "github.com/opst/vitrain/pkg/domain/schema/db"
	xe "github.com/opst/vitrain/pkg/errors"
)

//go:embed repository
var embedded embed.FS

// Repository returns schema repository embedded in the binary.
func Repository() fs.FS {
	sub, err := fs.Sub(embedded, "repository")
	if err != nil {
		panic(err) // embedded directory should exist
	}
	return sub
}

type pgSchema struct {
	pool       kpool.Pool
	repository fs.FS
}

var _ kschema.SchemaInterface = &pgSchema{}

// New creates a new Schema.
//
// # Args
//
// - pool: connection to the database.
//
// - repository: schema repository.
// It has directories named with version number, each of them has "*.sql" files.
// Files in a version are applied in lexical order.
func New(pool kpool.Pool, repository fs.FS) *pgSchema {
	return &pgSchema{pool: pool, repository: repository}
}

type version struct {
	Version int
	Root    string
}

func (v version) Apply(ctx context.Context, conn kpool.Queryer, repository fs.FS) error {
	entries, err := fs.ReadDir(repository, v.Root)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		query, err := fs.ReadFile(repository, path.Join(v.Root, e.Name()))
		if err != nil {
			return err
		}
		if _, err := conn.Exec(ctx, string(query)); err != nil {
			return xe.WrapWithNote(path.Join(v.Root, e.Name()), err)
		}
	}
	return nil
}

func (s *pgSchema) Version(ctx context.Context) (int, error) {
	return currentVersion(ctx, s.pool)
}

func currentVersion(ctx context.Context, conn kpool.Queryer) (int, error) {
	var version *int
	if err := conn.QueryRow(
		ctx, `SELECT max("version") FROM "schema_version"`,
	).Scan(&version); err != nil {
		if pgerr := new(pgconn.PgError); errors.As(err, &pgerr) {
			if pgerr.Code == pgerrcode.UndefinedTable {
				return 0, nil
			}
		}
		return -1, xe.Wrap(err)
	}
	if version == nil {
		return 0, nil
	}
	return *version, nil
}

func (s *pgSchema) Latest() (int, error) {
	vs, err := s.versions()
	if err != nil {
		return -1, err
	}
	if len(vs) == 0 {
		return 0, nil
	}
	return vs[len(vs)-1].Version, nil
}

func (s *pgSchema) Upgrade(ctx context.Context) error {
	schemaVersions, err := s.versions()
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return xe.Wrap(err)
	}
	defer tx.Rollback(ctx)

	// serialize upgraders
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext('vitrain/schema'))`); err != nil {
		return xe.Wrap(err)
	}
	if _, err := tx.Exec(
		ctx, `CREATE TABLE IF NOT EXISTS "schema_version" ("version" integer NOT NULL)`,
	); err != nil {
		return xe.Wrap(err)
	}

	current, err := currentVersion(ctx, tx)
	if err != nil {
		return err
	}

	for _, v := range schemaVersions {
		if v.Version <= current {
			continue
		}
		if err := v.Apply(ctx, tx, s.repository); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM "schema_version"`); err != nil {
			return xe.Wrap(err)
		}
		if _, err := tx.Exec(
			ctx, `INSERT INTO "schema_version" ("version") VALUES ($1)`, v.Version,
		); err != nil {
			return xe.Wrap(err)
		}
	}

	return xe.Wrap(tx.Commit(ctx))
}

// versions lookup the schema from the schema repository.
//
// # Returns
//
// - []version: The list of schema versions, sorted by version number.
//
// - error: The error if any.
func (s *pgSchema) versions() ([]version, error) {
	dir, err := fs.ReadDir(s.repository, ".")
	if err != nil {
		return nil, err
	}

	schemaVersions := make([]version, 0, len(dir))
	for _, entry := range dir {
		if !entry.IsDir() {
			continue
		}
		v, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}
		schemaVersions = append(schemaVersions, version{Version: v, Root: entry.Name()})
	}
	slices.SortFunc(
		schemaVersions,
		func(i, j version) int { return cmp.Compare(i.Version, j.Version) },
	)

	return schemaVersions, nil
}

// Null returns a schema which needs nothing to be upgraded.
//
// It is for stores without database.
func Null() *nullSchema {
	return &nullSchema{}
}

type nullSchema struct{}

var _ kschema.SchemaInterface = nullSchema{}

func (nullSchema) Upgrade(ctx context.Context) error {
	return nil
}

func (nullSchema) Version(ctx context.Context) (int, error) {
	return 0, nil
}

func (nullSchema) Latest() (int, error) {
	return 0, nil
}
