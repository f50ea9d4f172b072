package domain_test

import (
	"testing"

	"github.com/opst/vitrain/pkg/domain"
)

func TestAsStage(t *testing.T) {
	for in, want := range map[string]domain.Stage{
		"production": domain.StageProduction,
		"Staging":    domain.StageStaging,
		"NONE":       domain.StageNone,
		"archived":   domain.StageArchived,
	} {
		got, err := domain.AsStage(in)
		if err != nil {
			t.Errorf("%s: unexpected error: %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("%s: got %s, want %s", in, got, want)
		}
	}

	if _, err := domain.AsStage("canary"); err == nil {
		t.Error("unknown stage is accepted")
	}
}

func TestProvenance_Tags(t *testing.T) {
	got := domain.Provenance{Project: "VIT for medical image", ModelType: "VIT-google"}.Tags()

	if len(got) != 2 {
		t.Fatalf("unexpected tags: %v", got)
	}
	if got[domain.TagProject] != "VIT for medical image" || got[domain.TagModelType] != "VIT-google" {
		t.Errorf("unexpected tags: %v", got)
	}
	if _, ok := got[domain.TagAuthor]; ok {
		t.Errorf("empty author should be omitted: %v", got)
	}
}

func TestModelVersion_Equal(t *testing.T) {
	base := domain.ModelVersion{
		Name: "model", Version: 2, Stage: domain.StageStaging,
		Source: "runs:/r/model", RunId: "r",
		Tags: map[string]string{"a": "1"},
	}

	same := base
	same.Tags = map[string]string{"a": "1"}
	if !base.Equal(same) {
		t.Error("same versions are not equal")
	}

	otherTag := base
	otherTag.Tags = map[string]string{"a": "2"}
	if base.Equal(otherTag) {
		t.Error("tags are ignored")
	}

	otherStage := base
	otherStage.Stage = domain.StageProduction
	if base.Equal(otherStage) {
		t.Error("stage is ignored")
	}
}
