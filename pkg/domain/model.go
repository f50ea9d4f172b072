package domain

import (
	"fmt"
	"strings"
	"time"
)

// Deployment marker of a ModelVersion.
type Stage string

const (
	StageNone       Stage = "None"
	StageStaging    Stage = "Staging"
	StageProduction Stage = "Production"
	StageArchived   Stage = "Archived"
)

func (s Stage) String() string {
	return string(s)
}

// AsStage parses stage name case-insensitively.
func AsStage(s string) (Stage, error) {
	for _, st := range []Stage{StageNone, StageStaging, StageProduction, StageArchived} {
		if strings.EqualFold(s, string(st)) {
			return st, nil
		}
	}
	return "", fmt.Errorf("'%s' is not Stage", s)
}

// Ranking label of a newly trained version against the current Production version.
type Ranking string

const (
	// beats the accuracy of the current Production version.
	Champion Ranking = "Champion"

	// does not beat it.
	Outsider Ranking = "Outsider"
)

func (r Ranking) String() string {
	return string(r)
}

// Where a trained version goes.
type PromotionDecision struct {
	Stage   Stage
	Ranking Ranking
}

func (d PromotionDecision) String() string {
	return fmt.Sprintf("%s (stage %s)", d.Ranking, d.Stage)
}

// well-known tag keys on ModelVersion
const (
	TagValAccuracy = "val_accuracy"
	TagRanking     = "ranking"
	TagProject     = "project"
	TagModelType   = "model_type"
	TagAuthor      = "author"
)

// Provenance tags attached to every registered version.
type Provenance struct {
	Project   string `yaml:"project"`
	ModelType string `yaml:"model_type"`
	Author    string `yaml:"author"`
}

// Tags returns non-empty provenance fields as tags.
func (p Provenance) Tags() map[string]string {
	tags := map[string]string{}
	if p.Project != "" {
		tags[TagProject] = p.Project
	}
	if p.ModelType != "" {
		tags[TagModelType] = p.ModelType
	}
	if p.Author != "" {
		tags[TagAuthor] = p.Author
	}
	return tags
}

// A registered version of a model.
type ModelVersion struct {
	Name    string
	Version int

	Stage Stage

	// artifact reference. see ArtifactRef.
	Source string

	// run which has produced the artifact.
	RunId string

	Tags map[string]string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Tag returns the value of the tag and whether the tag is set.
func (mv ModelVersion) Tag(key string) (string, bool) {
	if mv.Tags == nil {
		return "", false
	}
	v, ok := mv.Tags[key]
	return v, ok
}

func (mv ModelVersion) String() string {
	return fmt.Sprintf("%s/%d (%s)", mv.Name, mv.Version, mv.Stage)
}

func (mv ModelVersion) Equal(other ModelVersion) bool {
	if mv.Name != other.Name || mv.Version != other.Version ||
		mv.Stage != other.Stage || mv.Source != other.Source || mv.RunId != other.RunId {
		return false
	}
	if len(mv.Tags) != len(other.Tags) {
		return false
	}
	for k, v := range mv.Tags {
		if ov, ok := other.Tags[k]; !ok || ov != v {
			return false
		}
	}
	return true
}
