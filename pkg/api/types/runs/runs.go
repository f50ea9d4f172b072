package runs

import (
	"github.com/opst/vitrain/pkg/domain"
	"github.com/opst/vitrain/pkg/utils/rfctime"
)

type Metric struct {
	Value     float64         `json:"value"`
	Step      int             `json:"step"`
	Timestamp rfctime.RFC3339 `json:"timestamp"`
}

type Detail struct {
	RunId          string            `json:"runId"`
	ExperimentName string            `json:"experimentName"`
	RunName        string            `json:"runName"`
	Status         string            `json:"status"`
	Params         map[string]string `json:"params"`

	// metric histories by key, ordered by step.
	Metrics map[string][]Metric `json:"metrics"`

	StartTime rfctime.RFC3339  `json:"startTime"`
	EndTime   *rfctime.RFC3339 `json:"endTime,omitempty"`
}

func ComposeDetail(r domain.Run, metrics []domain.Metric) Detail {
	d := Detail{
		RunId:          r.RunId,
		ExperimentName: r.ExperimentName,
		RunName:        r.RunName,
		Status:         string(r.Status),
		Params:         map[string]string{},
		Metrics:        map[string][]Metric{},
		StartTime:      rfctime.RFC3339(r.StartTime),
	}
	for k, v := range r.Params {
		d.Params[k] = v
	}
	if r.EndTime != nil {
		e := rfctime.RFC3339(*r.EndTime)
		d.EndTime = &e
	}
	for _, m := range metrics {
		d.Metrics[m.Key] = append(d.Metrics[m.Key], Metric{
			Value: m.Value, Step: m.Step, Timestamp: rfctime.RFC3339(m.Timestamp),
		})
	}
	return d
}
