package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"
	kpool "github.com/opst/vitrain/pkg/conn/db/postgres/pool"
	"github.com/opst/vitrain/pkg/domain"
	kpgerr "github.com/opst/vitrain/pkg/domain/errors/dberrors/postgres"
	kexperiment "github.com/opst/vitrain/pkg/domain/experiment/db"
	xe "github.com/opst/vitrain/pkg/errors"
)

// path of model artifacts in a run
const modelPath = "model"

type experimentPG struct {
	pool  kpool.Pool
	newId func() string
}

var _ kexperiment.Interface = &experimentPG{}

type Option func(*experimentPG)

// WithRunIdGenerator replaces the generator of run ids. By default, it is uuid.NewString.
func WithRunIdGenerator(gen func() string) Option {
	return func(e *experimentPG) {
		e.newId = gen
	}
}

func New(pool kpool.Pool, options ...Option) *experimentPG {
	e := &experimentPG{pool: pool, newId: uuid.NewString}
	for _, opt := range options {
		opt(e)
	}
	return e
}

func missingRun(runId string) error {
	return kpgerr.Missing{Table: "run", Identity: fmt.Sprintf("run_id='%s'", runId)}
}

func asMissingRun(err error, runId string) error {
	return kpgerr.Classify(err, "run", fmt.Sprintf("run_id='%s'", runId))
}

func (e *experimentPG) StartRun(ctx context.Context, experimentName string, runName string) (domain.RunHandle, error) {
	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return domain.RunHandle{}, xe.Wrap(err)
	}
	defer tx.Rollback(ctx)

	var experimentId int
	if err := tx.QueryRow(
		ctx,
		`
		insert into "experiment" ("name") values ($1)
		on conflict ("name") do update set "name" = excluded."name"
		returning "experiment_id"
		`,
		experimentName,
	).Scan(&experimentId); err != nil {
		return domain.RunHandle{}, xe.Wrap(err)
	}

	runId := e.newId()
	if _, err := tx.Exec(
		ctx,
		`insert into "run" ("run_id", "experiment_id", "run_name", "status") values ($1, $2, $3, $4)`,
		runId, experimentId, runName, string(domain.RunRunning),
	); err != nil {
		return domain.RunHandle{}, xe.Wrap(asMissingRun(err, runId))
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.RunHandle{}, xe.Wrap(err)
	}
	return domain.RunHandle{RunId: runId}, nil
}

func (e *experimentPG) LogParams(ctx context.Context, run domain.RunHandle, params map[string]string) error {
	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return xe.Wrap(err)
	}
	defer tx.Rollback(ctx)

	for key, value := range params {
		var stored string
		if err := tx.QueryRow(
			ctx,
			`
			with "ins" as (
				insert into "run_param" ("run_id", "key", "value") values ($1, $2, $3)
				on conflict ("run_id", "key") do nothing
				returning "value"
			)
			select "value" from "ins"
			union all
			select "value" from "run_param" where "run_id" = $1 and "key" = $2
			limit 1
			`,
			run.RunId, key, value,
		).Scan(&stored); err != nil {
			return xe.Wrap(asMissingRun(err, run.RunId))
		}
		if stored != value {
			return xe.Wrap(kpgerr.Conflict{
				Table:      "run_param",
				Identity:   fmt.Sprintf("run_id='%s', key='%s'", run.RunId, key),
				Constraint: fmt.Sprintf("value is already '%s'", stored),
			})
		}
	}

	return xe.Wrap(tx.Commit(ctx))
}

func (e *experimentPG) LogMetric(ctx context.Context, run domain.RunHandle, key string, value float64, step int) error {
	if _, err := e.pool.Exec(
		ctx,
		`
		insert into "run_metric" ("run_id", "key", "value", "step") values ($1, $2, $3, $4)
		on conflict ("run_id", "key", "step")
		do update set "value" = excluded."value", "timestamp" = now()
		`,
		run.RunId, key, value, step,
	); err != nil {
		return xe.Wrap(asMissingRun(err, run.RunId))
	}
	return nil
}

func (e *experimentPG) LogModel(ctx context.Context, run domain.RunHandle, model kexperiment.Artifact) (string, error) {
	content, err := model.MarshalBinary()
	if err != nil {
		return "", xe.WrapWithNote("encode model", err)
	}
	if _, err := e.pool.Exec(
		ctx,
		`
		insert into "run_artifact" ("run_id", "path", "content") values ($1, $2, $3)
		on conflict ("run_id", "path") do update set "content" = excluded."content"
		`,
		run.RunId, modelPath, content,
	); err != nil {
		return "", xe.Wrap(asMissingRun(err, run.RunId))
	}
	return domain.ArtifactRef(run.RunId, modelPath), nil
}

func (e *experimentPG) LoadModel(ctx context.Context, ref string) ([]byte, error) {
	runId, path, err := domain.ParseArtifactRef(ref)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	var content []byte
	if err := e.pool.QueryRow(
		ctx,
		`select "content" from "run_artifact" where "run_id" = $1 and "path" = $2`,
		runId, path,
	).Scan(&content); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, xe.Wrap(kpgerr.Missing{Table: "run_artifact", Identity: ref})
		}
		return nil, xe.Wrap(err)
	}
	return content, nil
}

func (e *experimentPG) EndRun(ctx context.Context, run domain.RunHandle, status domain.RunStatus) error {
	if !status.Terminal() {
		return xe.New(fmt.Sprintf("run cannot be ended with status %s", status))
	}

	var exists bool
	if err := e.pool.QueryRow(
		ctx,
		`
		with "upd" as (
			update "run" set "status" = $2, "end_time" = now()
			where "run_id" = $1 and "status" = $3
			returning "run_id"
		)
		select exists (select 1 from "upd")
			or exists (select 1 from "run" where "run_id" = $1)
		`,
		run.RunId, string(status), string(domain.RunRunning),
	).Scan(&exists); err != nil {
		return xe.Wrap(err)
	}
	if !exists {
		return xe.Wrap(missingRun(run.RunId))
	}
	return nil
}

func (e *experimentPG) GetRun(ctx context.Context, runId string) (domain.Run, error) {
	var experimentName, runName, status string
	var startTime time.Time
	var endTime pgtype.Timestamptz
	var keys, values pgtype.TextArray
	if err := e.pool.QueryRow(
		ctx,
		`
		select
			"e"."name", "r"."run_name", "r"."status", "r"."start_time", "r"."end_time",
			coalesce(array_agg("p"."key" order by "p"."key") filter (where "p"."key" is not null), '{}'),
			coalesce(array_agg("p"."value" order by "p"."key") filter (where "p"."key" is not null), '{}')
		from "run" as "r"
		inner join "experiment" as "e" on "e"."experiment_id" = "r"."experiment_id"
		left join "run_param" as "p" on "p"."run_id" = "r"."run_id"
		where "r"."run_id" = $1
		group by "e"."name", "r"."run_name", "r"."status", "r"."start_time", "r"."end_time"
		`,
		runId,
	).Scan(&experimentName, &runName, &status, &startTime, &endTime, &keys, &values); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Run{}, xe.Wrap(missingRun(runId))
		}
		return domain.Run{}, xe.Wrap(err)
	}

	st, err := domain.AsRunStatus(status)
	if err != nil {
		return domain.Run{}, xe.Wrap(err)
	}

	pkeys, pvalues := []string{}, []string{}
	if err := keys.AssignTo(&pkeys); err != nil {
		return domain.Run{}, xe.Wrap(err)
	}
	if err := values.AssignTo(&pvalues); err != nil {
		return domain.Run{}, xe.Wrap(err)
	}
	params := make(map[string]string, len(pkeys))
	for i := range pkeys {
		params[pkeys[i]] = pvalues[i]
	}

	r := domain.Run{
		RunId:          runId,
		ExperimentName: experimentName,
		RunName:        runName,
		Status:         st,
		Params:         params,
		StartTime:      startTime,
	}
	if endTime.Status == pgtype.Present {
		t := endTime.Time
		r.EndTime = &t
	}
	return r, nil
}

func (e *experimentPG) Metrics(ctx context.Context, runId string) ([]domain.Metric, error) {
	rows, err := e.pool.Query(
		ctx,
		`
		select "key", "value", "step", "timestamp" from "run_metric"
		where "run_id" = $1
		order by "key", "step"
		`,
		runId,
	)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	defer rows.Close()

	metrics := []domain.Metric{}
	for rows.Next() {
		m := domain.Metric{}
		if err := rows.Scan(&m.Key, &m.Value, &m.Step, &m.Timestamp); err != nil {
			return nil, xe.Wrap(err)
		}
		metrics = append(metrics, m)
	}
	if err := rows.Err(); err != nil {
		return nil, xe.Wrap(err)
	}
	return metrics, nil
}
