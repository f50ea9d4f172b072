package jobs

import (
	"github.com/opst/vitrain/pkg/trigger"
	"github.com/opst/vitrain/pkg/utils/rfctime"
)

// request body of POST /api/train. Empty body is allowed.
type TrainRequest struct {
	RunName string `json:"runName,omitempty"`
}

type Accepted struct {
	JobId string `json:"jobId"`
}

type Detail struct {
	JobId   string `json:"jobId"`
	RunName string `json:"runName,omitempty"`
	Status  string `json:"status"`

	RunId   string `json:"runId,omitempty"`
	Version *int   `json:"version,omitempty"`

	Kind   string `json:"kind,omitempty"`
	Reason string `json:"reason,omitempty"`

	QueuedAt   rfctime.RFC3339  `json:"queuedAt"`
	StartedAt  *rfctime.RFC3339 `json:"startedAt,omitempty"`
	FinishedAt *rfctime.RFC3339 `json:"finishedAt,omitempty"`
}

func ComposeDetail(j trigger.Job) Detail {
	d := Detail{
		JobId:    j.JobId,
		RunName:  j.Request.RunName,
		Status:   string(j.Status),
		RunId:    j.RunId,
		Version:  j.Version,
		Kind:     j.Kind,
		Reason:   j.Reason,
		QueuedAt: rfctime.RFC3339(j.QueuedAt),
	}
	if j.StartedAt != nil {
		s := rfctime.RFC3339(*j.StartedAt)
		d.StartedAt = &s
	}
	if j.FinishedAt != nil {
		f := rfctime.RFC3339(*j.FinishedAt)
		d.FinishedAt = &f
	}
	return d
}
