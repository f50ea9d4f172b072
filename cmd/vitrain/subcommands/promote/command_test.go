package promote_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"testing"

	"github.com/opst/vitrain/cmd/vitrain/subcommands/internal/commandline"
	"github.com/opst/vitrain/cmd/vitrain/subcommands/internal/fixture"
	subpromote "github.com/opst/vitrain/cmd/vitrain/subcommands/promote"
	apimodels "github.com/opst/vitrain/pkg/api/types/models"
	"github.com/opst/vitrain/pkg/domain"
	kerr "github.com/opst/vitrain/pkg/domain/errors"
	"github.com/opst/vitrain/pkg/trigger"
	"github.com/opst/vitrain/pkg/utils/try"
)

func TestTask(t *testing.T) {
	ctx := context.Background()
	logger := log.New(io.Discard, "", 0)

	t.Run("it re-promotes a version", func(t *testing.T) {
		env, db := fixture.Env(t, 2)
		res := try.To(env.Vitrain.Train(ctx, trigger.Request{})).OrFatal(t)

		// the version left in Staging by a failure
		try.To(db.Registry().TransitionStage(ctx, env.Vitrain.ModelName(), *res.Version, domain.StageStaging, false)).OrFatal(t)

		stdout := new(bytes.Buffer)
		err := subpromote.Task(ctx, logger, env, commandline.MockCommandline[subpromote.Flags]{
			Stdout_: stdout,
			Flags_:  subpromote.Flags{Version: *res.Version, Accuracy: "0.8"},
		}, nil)
		if err != nil {
			t.Fatal(err)
		}

		got := apimodels.PromoteResult{}
		if err := json.Unmarshal(stdout.Bytes(), &got); err != nil {
			t.Fatalf("stdout is not json: %s (%s)", err, stdout)
		}
		if got.Stage != "Production" || got.Ranking != "Champion" || got.Version != *res.Version {
			t.Errorf("result: %+v", got)
		}
		mv := try.To(db.Registry().Get(ctx, env.Vitrain.ModelName(), *res.Version)).OrFatal(t)
		if mv.Stage != domain.StageProduction || mv.Tags[domain.TagValAccuracy] != "0.8" {
			t.Errorf("version: %+v", mv)
		}
	})

	for name, testcase := range map[string]struct {
		flags subpromote.Flags
		then  error
	}{
		"no version":               {flags: subpromote.Flags{Accuracy: "0.5"}, then: subpromote.ErrUsage},
		"accuracy is not a number": {flags: subpromote.Flags{Version: 1, Accuracy: "high"}, then: subpromote.ErrUsage},
		"accuracy too large":       {flags: subpromote.Flags{Version: 1, Accuracy: "1.2"}, then: subpromote.ErrUsage},
		"missing version":          {flags: subpromote.Flags{Version: 7, Accuracy: "0.5"}, then: kerr.ErrMissing},
	} {
		t.Run("it fails: "+name, func(t *testing.T) {
			env, _ := fixture.Env(t, 2)
			err := subpromote.Task(ctx, logger, env, commandline.MockCommandline[subpromote.Flags]{
				Stdout_: io.Discard, Flags_: testcase.flags,
			}, nil)
			if !errors.Is(err, testcase.then) {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
