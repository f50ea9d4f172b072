package predictions

import "github.com/opst/vitrain/pkg/inference"

type Request struct {
	Features []float64 `json:"features"`
}

type Result struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Uncertain  bool    `json:"uncertain"`
	Version    int     `json:"version"`
}

func ComposeResult(p inference.Prediction) Result {
	return Result{
		Label: p.Label, Confidence: p.Confidence, Uncertain: p.Uncertain, Version: p.Version,
	}
}
