package domain

import (
	"fmt"
	"strings"
	"time"
)

type RunStatus string

const (
	RunRunning  RunStatus = "RUNNING"
	RunFinished RunStatus = "FINISHED"
	RunFailed   RunStatus = "FAILED"
	RunKilled   RunStatus = "KILLED"
)

func (s RunStatus) String() string {
	return string(s)
}

func AsRunStatus(s string) (RunStatus, error) {
	for _, st := range []RunStatus{RunRunning, RunFinished, RunFailed, RunKilled} {
		if strings.EqualFold(s, string(st)) {
			return st, nil
		}
	}
	return "", fmt.Errorf("'%s' is not RunStatus", s)
}

// Terminal reports the run is no longer running.
func (s RunStatus) Terminal() bool {
	return s != RunRunning
}

// Handle of a run in the experiment store.
//
// All parameters, metrics and artifacts of a training execution are correlated by this.
type RunHandle struct {
	RunId string
}

func (h RunHandle) String() string {
	return h.RunId
}

// A run recorded in the experiment store.
type Run struct {
	RunId          string
	ExperimentName string
	RunName        string
	Status         RunStatus
	Params         map[string]string
	StartTime      time.Time
	EndTime        *time.Time
}

// A metric value logged on a step of a run.
type Metric struct {
	Key       string
	Value     float64
	Step      int
	Timestamp time.Time
}

const artifactScheme = "runs:/"

// ArtifactRef builds a reference to an artifact in a run, like "runs:/RUN_ID/model".
func ArtifactRef(runId string, path string) string {
	return artifactScheme + runId + "/" + strings.TrimPrefix(path, "/")
}

// ParseArtifactRef splits "runs:/RUN_ID/PATH" into run id and path.
func ParseArtifactRef(ref string) (runId string, path string, err error) {
	rest, ok := strings.CutPrefix(ref, artifactScheme)
	if !ok {
		return "", "", fmt.Errorf("artifact reference should start with %s: %s", artifactScheme, ref)
	}
	runId, path, ok = strings.Cut(rest, "/")
	if !ok || runId == "" || path == "" {
		return "", "", fmt.Errorf("artifact reference should be %sRUN_ID/PATH: %s", artifactScheme, ref)
	}
	return runId, path, nil
}
