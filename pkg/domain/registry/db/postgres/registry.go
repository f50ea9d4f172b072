package postgres

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgtype"
	kpool "github.com/opst/vitrain/pkg/conn/db/postgres/pool"
	"github.com/opst/vitrain/pkg/domain"
	kpgerr "github.com/opst/vitrain/pkg/domain/errors/dberrors/postgres"
	kregistry "github.com/opst/vitrain/pkg/domain/registry/db"
	xe "github.com/opst/vitrain/pkg/errors"
)

type registryPG struct {
	pool kpool.Pool
}

var _ kregistry.Interface = &registryPG{}

func New(pool kpool.Pool) *registryPG {
	return &registryPG{pool: pool}
}

func (r *registryPG) Register(ctx context.Context, name string, source string, runId string) (domain.ModelVersion, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.ModelVersion{}, xe.Wrap(err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(
		ctx,
		`insert into "registered_model" ("name") values ($1) on conflict do nothing`,
		name,
	); err != nil {
		return domain.ModelVersion{}, xe.Wrap(err)
	}

	// lock the model so that version numbers are assigned one by one.
	if _, err := tx.Exec(
		ctx,
		`select "name" from "registered_model" where "name" = $1 for update`,
		name,
	); err != nil {
		return domain.ModelVersion{}, xe.Wrap(err)
	}

	var version int
	var createdAt time.Time
	if err := tx.QueryRow(
		ctx,
		`
		with "next" as (
			select coalesce(max("version"), 0) + 1 as "version"
			from "model_version" where "name" = $1
		)
		insert into "model_version" ("name", "version", "source", "run_id")
		select $1, "next"."version", $2, $3 from "next"
		returning "version", "created_at"
		`,
		name, source, runId,
	).Scan(&version, &createdAt); err != nil {
		return domain.ModelVersion{}, xe.Wrap(
			kpgerr.Classify(err, "model_version", fmt.Sprintf("name='%s'", name)),
		)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.ModelVersion{}, xe.Wrap(err)
	}

	return domain.ModelVersion{
		Name:      name,
		Version:   version,
		Stage:     domain.StageNone,
		Source:    source,
		RunId:     runId,
		Tags:      map[string]string{},
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}, nil
}

func (r *registryPG) Get(ctx context.Context, name string, version int) (domain.ModelVersion, error) {
	mvs, err := r.query(ctx, r.pool, `where "name" = $1 and "version" = $2`, false, name, version)
	if err != nil {
		return domain.ModelVersion{}, err
	}
	if len(mvs) == 0 {
		return domain.ModelVersion{}, xe.Wrap(kpgerr.Missing{
			Table:    "model_version",
			Identity: fmt.Sprintf("name='%s', version=%d", name, version),
		})
	}
	return mvs[0], nil
}

func (r *registryPG) Versions(ctx context.Context, name string) ([]domain.ModelVersion, error) {
	return r.query(ctx, r.pool, `where "name" = $1`, false, name)
}

func (r *registryPG) LatestVersionsByStage(ctx context.Context, name string, stage domain.Stage) ([]domain.ModelVersion, error) {
	return r.query(ctx, r.pool, `where "name" = $1 and "stage" = $2`, true, name, string(stage))
}

func (r *registryPG) SetTag(ctx context.Context, name string, version int, key string, value string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return xe.Wrap(err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(
		ctx,
		`
		insert into "model_version_tag" ("name", "version", "key", "value")
		values ($1, $2, $3, $4)
		on conflict ("name", "version", "key") do update set "value" = excluded."value"
		`,
		name, version, key, value,
	); err != nil {
		return xe.Wrap(kpgerr.Classify(
			err, "model_version", fmt.Sprintf("name='%s', version=%d", name, version),
		))
	}

	if _, err := tx.Exec(
		ctx,
		`update "model_version" set "updated_at" = now() where "name" = $1 and "version" = $2`,
		name, version,
	); err != nil {
		return xe.Wrap(err)
	}

	return xe.Wrap(tx.Commit(ctx))
}

func (r *registryPG) TransitionStage(
	ctx context.Context, name string, version int, stage domain.Stage, archiveExisting bool,
) (domain.ModelVersion, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.ModelVersion{}, xe.Wrap(err)
	}
	defer tx.Rollback(ctx)

	ctag, err := tx.Exec(
		ctx,
		`
		update "model_version" set "stage" = $3, "updated_at" = now()
		where "name" = $1 and "version" = $2
		`,
		name, version, string(stage),
	)
	if err != nil {
		return domain.ModelVersion{}, xe.Wrap(err)
	}
	if ctag.RowsAffected() == 0 {
		return domain.ModelVersion{}, xe.Wrap(kpgerr.Missing{
			Table:    "model_version",
			Identity: fmt.Sprintf("name='%s', version=%d", name, version),
		})
	}

	if archiveExisting && stage == domain.StageProduction {
		if _, err := tx.Exec(
			ctx,
			`
			update "model_version" set "stage" = $3, "updated_at" = now()
			where "name" = $1 and "version" <> $2 and "stage" = $4
			`,
			name, version, string(domain.StageStaging), string(domain.StageProduction),
		); err != nil {
			return domain.ModelVersion{}, xe.Wrap(err)
		}
	}

	mvs, err := r.query(ctx, tx, `where "name" = $1 and "version" = $2`, false, name, version)
	if err != nil {
		return domain.ModelVersion{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.ModelVersion{}, xe.Wrap(err)
	}
	return mvs[0], nil
}

// Lock takes a session level advisory lock keyed by the model name.
//
// A connection is kept acquired while the lock is held.
func (r *registryPG) Lock(ctx context.Context, name string) (func(), error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	if _, err := conn.Exec(
		ctx, `select pg_advisory_lock(hashtext('vitrain/model/' || $1))`, name,
	); err != nil {
		conn.Release()
		return nil, xe.Wrap(err)
	}

	once := new(sync.Once)
	return func() {
		once.Do(func() {
			// ctx may be already done. unlocking should not depend on it.
			if _, err := conn.Exec(
				context.Background(),
				`select pg_advisory_unlock(hashtext('vitrain/model/' || $1))`, name,
			); err != nil {
				// closing the session releases the lock anyway.
				conn.Conn().Close(context.Background())
			}
			conn.Release()
		})
	}, nil
}

type modelVersionRow struct {
	Name      string
	Version   int
	Stage     string
	Source    string
	RunId     string
	CreatedAt time.Time
	UpdatedAt time.Time
	TagKeys   pgtype.TextArray
	TagValues pgtype.TextArray
}

// query model versions with tags.
//
// where is a sql fragment to filter "model_version" rows.
// When desc is true, the latest version comes first.
func (r *registryPG) query(ctx context.Context, conn kpool.Queryer, where string, desc bool, args ...any) ([]domain.ModelVersion, error) {
	order := `order by "mv"."version"`
	if desc {
		order += ` desc`
	}
	rows, err := conn.Query(
		ctx,
		`
		with "mv" as (
			select "name", "version", "stage", "source", "run_id", "created_at", "updated_at"
			from "model_version"
			`+where+`
		)
		select
			"mv"."name", "mv"."version", "mv"."stage", "mv"."source", "mv"."run_id",
			"mv"."created_at", "mv"."updated_at",
			coalesce(array_agg("t"."key" order by "t"."key") filter (where "t"."key" is not null), '{}') as "tag_keys",
			coalesce(array_agg("t"."value" order by "t"."key") filter (where "t"."key" is not null), '{}') as "tag_values"
		from "mv"
		left join "model_version_tag" as "t"
			on "t"."name" = "mv"."name" and "t"."version" = "mv"."version"
		group by
			"mv"."name", "mv"."version", "mv"."stage", "mv"."source", "mv"."run_id",
			"mv"."created_at", "mv"."updated_at"
		`+order,
		args...,
	)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	defer rows.Close()

	mvs := []domain.ModelVersion{}
	for rows.Next() {
		row := modelVersionRow{}
		if err := rows.Scan(
			&row.Name, &row.Version, &row.Stage, &row.Source, &row.RunId,
			&row.CreatedAt, &row.UpdatedAt, &row.TagKeys, &row.TagValues,
		); err != nil {
			return nil, xe.Wrap(err)
		}
		mv, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		mvs = append(mvs, mv)
	}
	if err := rows.Err(); err != nil {
		return nil, xe.Wrap(err)
	}

	return mvs, nil
}

func (row modelVersionRow) toDomain() (domain.ModelVersion, error) {
	stage, err := domain.AsStage(row.Stage)
	if err != nil {
		return domain.ModelVersion{}, xe.Wrap(err)
	}

	keys := []string{}
	values := []string{}
	if err := row.TagKeys.AssignTo(&keys); err != nil {
		return domain.ModelVersion{}, xe.Wrap(err)
	}
	if err := row.TagValues.AssignTo(&values); err != nil {
		return domain.ModelVersion{}, xe.Wrap(err)
	}
	if len(keys) != len(values) {
		return domain.ModelVersion{}, xe.New("tag keys and values are not paired")
	}
	tags := make(map[string]string, len(keys))
	for i := range keys {
		tags[keys[i]] = values[i]
	}

	return domain.ModelVersion{
		Name:      row.Name,
		Version:   row.Version,
		Stage:     stage,
		Source:    row.Source,
		RunId:     row.RunId,
		Tags:      tags,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}, nil
}
