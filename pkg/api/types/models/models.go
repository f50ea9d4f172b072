package models

import (
	"github.com/opst/vitrain/pkg/domain"
	"github.com/opst/vitrain/pkg/utils/rfctime"
)

type Version struct {
	Name      string            `json:"name"`
	Version   int               `json:"version"`
	Stage     string            `json:"stage"`
	Source    string            `json:"source"`
	RunId     string            `json:"runId"`
	Tags      map[string]string `json:"tags"`
	CreatedAt rfctime.RFC3339   `json:"createdAt"`
	UpdatedAt rfctime.RFC3339   `json:"updatedAt"`
}

func ComposeVersion(mv domain.ModelVersion) Version {
	tags := map[string]string{}
	for k, v := range mv.Tags {
		tags[k] = v
	}
	return Version{
		Name:      mv.Name,
		Version:   mv.Version,
		Stage:     string(mv.Stage),
		Source:    mv.Source,
		RunId:     mv.RunId,
		Tags:      tags,
		CreatedAt: rfctime.RFC3339(mv.CreatedAt),
		UpdatedAt: rfctime.RFC3339(mv.UpdatedAt),
	}
}

// request body of PUT .../versions/:version/promote
type PromoteRequest struct {
	ValAccuracy *float64 `json:"valAccuracy"`
}

type PromoteResult struct {
	Name    string `json:"name"`
	Version int    `json:"version"`
	Stage   string `json:"stage"`
	Ranking string `json:"ranking"`
}

func ComposePromoteResult(name string, version int, d domain.PromotionDecision) PromoteResult {
	return PromoteResult{
		Name: name, Version: version, Stage: string(d.Stage), Ranking: string(d.Ranking),
	}
}
