package inmemory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/opst/vitrain/pkg/domain"
	kerr "github.com/opst/vitrain/pkg/domain/errors"
	"github.com/opst/vitrain/pkg/domain/registry/db/inmemory"
)

func TestRegister(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2024, 3, 4, 5, 6, 7, 0, time.UTC)
	testee := inmemory.New(inmemory.WithClock(func() time.Time { return clock }))

	v1, err := testee.Register(ctx, "MonSuperModele", "runs:/run-1/model", "run-1")
	if err != nil {
		t.Fatal(err)
	}
	v2, err := testee.Register(ctx, "MonSuperModele", "runs:/run-2/model", "run-2")
	if err != nil {
		t.Fatal(err)
	}
	other, err := testee.Register(ctx, "another", "runs:/run-3/model", "run-3")
	if err != nil {
		t.Fatal(err)
	}

	if v1.Version != 1 || v2.Version != 2 || other.Version != 1 {
		t.Errorf("unexpected versions: %d, %d, %d", v1.Version, v2.Version, other.Version)
	}
	want := domain.ModelVersion{
		Name: "MonSuperModele", Version: 2, Stage: domain.StageNone,
		Source: "runs:/run-2/model", RunId: "run-2", Tags: map[string]string{},
	}
	if !v2.Equal(want) {
		t.Errorf("registered:\n===actual===\n%+v\n===expected===\n%+v", v2, want)
	}
	if !v2.CreatedAt.Equal(clock) {
		t.Errorf("CreatedAt = %s", v2.CreatedAt)
	}
}

func TestTransitionStage(t *testing.T) {
	type when struct {
		archiveExisting bool
	}
	type then struct {
		stages map[int]domain.Stage
	}

	for name, testcase := range map[string]struct {
		when when
		then then
	}{
		"when archiveExisting, the previous champion goes to Staging": {
			when: when{archiveExisting: true},
			then: then{stages: map[int]domain.Stage{
				1: domain.StageStaging, 2: domain.StageStaging, 3: domain.StageProduction,
			}},
		},
		"when not archiveExisting, the previous champion stays": {
			when: when{archiveExisting: false},
			then: then{stages: map[int]domain.Stage{
				1: domain.StageProduction, 2: domain.StageStaging, 3: domain.StageProduction,
			}},
		},
	} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			testee := inmemory.New()
			for range 3 {
				if _, err := testee.Register(ctx, "m", "runs:/r/model", "r"); err != nil {
					t.Fatal(err)
				}
			}
			if _, err := testee.TransitionStage(ctx, "m", 1, domain.StageProduction, true); err != nil {
				t.Fatal(err)
			}
			if _, err := testee.TransitionStage(ctx, "m", 2, domain.StageStaging, true); err != nil {
				t.Fatal(err)
			}

			got, err := testee.TransitionStage(ctx, "m", 3, domain.StageProduction, testcase.when.archiveExisting)
			if err != nil {
				t.Fatal(err)
			}
			if got.Stage != domain.StageProduction {
				t.Errorf("returned stage: %s", got.Stage)
			}

			versions, err := testee.Versions(ctx, "m")
			if err != nil {
				t.Fatal(err)
			}
			for _, mv := range versions {
				if want := testcase.then.stages[mv.Version]; mv.Stage != want {
					t.Errorf("version %d: stage %s, want %s", mv.Version, mv.Stage, want)
				}
			}
		})
	}

	t.Run("missing version", func(t *testing.T) {
		testee := inmemory.New()
		_, err := testee.TransitionStage(context.Background(), "m", 1, domain.StageProduction, true)
		if !errors.Is(err, kerr.ErrMissing) {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestLatestVersionsByStage(t *testing.T) {
	ctx := context.Background()
	testee := inmemory.New()
	for range 4 {
		if _, err := testee.Register(ctx, "m", "runs:/r/model", "r"); err != nil {
			t.Fatal(err)
		}
	}
	for _, v := range []int{1, 3, 4} {
		if _, err := testee.TransitionStage(ctx, "m", v, domain.StageStaging, false); err != nil {
			t.Fatal(err)
		}
	}

	got, err := testee.LatestVersionsByStage(ctx, "m", domain.StageStaging)
	if err != nil {
		t.Fatal(err)
	}
	want := []int{4, 3, 1}
	if len(got) != len(want) {
		t.Fatalf("unexpected length: %v", got)
	}
	for i := range want {
		if got[i].Version != want[i] {
			t.Errorf("#%d: version %d, want %d", i, got[i].Version, want[i])
		}
	}

	none, err := testee.LatestVersionsByStage(ctx, "m", domain.StageProduction)
	if err != nil {
		t.Fatal(err)
	}
	if len(none) != 0 {
		t.Errorf("unexpected versions: %v", none)
	}
}

func TestSetTag(t *testing.T) {
	ctx := context.Background()
	testee := inmemory.New()
	if _, err := testee.Register(ctx, "m", "runs:/r/model", "r"); err != nil {
		t.Fatal(err)
	}

	if err := testee.SetTag(ctx, "m", 1, domain.TagValAccuracy, "0.8"); err != nil {
		t.Fatal(err)
	}
	if err := testee.SetTag(ctx, "m", 1, domain.TagValAccuracy, "0.9"); err != nil {
		t.Fatal(err)
	}

	got, err := testee.Get(ctx, "m", 1)
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := got.Tag(domain.TagValAccuracy); v != "0.9" {
		t.Errorf("tag is not overwritten: %s", v)
	}

	// returned values are copies.
	got.Tags[domain.TagRanking] = "Champion"
	again, err := testee.Get(ctx, "m", 1)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := again.Tag(domain.TagRanking); ok {
		t.Error("registry is modified through returned value")
	}

	if err := testee.SetTag(ctx, "m", 2, "k", "v"); !errors.Is(err, kerr.ErrMissing) {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLock(t *testing.T) {
	ctx := context.Background()
	testee := inmemory.New()

	unlock, err := testee.Lock(ctx, "m")
	if err != nil {
		t.Fatal(err)
	}

	tctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if _, err := testee.Lock(tctx, "m"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("lock is not exclusive: %v", err)
	}

	unlock()
	unlock2, err := testee.Lock(ctx, "m")
	if err != nil {
		t.Fatal(err)
	}
	unlock2()
}
