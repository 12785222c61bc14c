package ml

import (
	"errors"
	"fmt"
)

// Prediction is the outcome of one inference call.
type Prediction struct {
	ProbNoRain float64 `json:"prob_no_rain"`
	ProbRain   float64 `json:"prob_rain"`
	Rain       bool    `json:"rain"`
	Threshold  float64 `json:"threshold"`
}

// Label is 1 for rain, 0 otherwise.
func (p Prediction) Label() int {
	if p.Rain {
		return 1
	}
	return 0
}

// Predictor is the read-only handle built from a loaded artifact. It holds no
// mutable state and is safe for concurrent use.
type Predictor struct {
	artifact *Artifact
}

// NewPredictor validates a and wraps it. The artifact must not be mutated
// afterwards.
func NewPredictor(a *Artifact) (*Predictor, error) {
	if a == nil {
		return nil, errors.New("artifact is nil")
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &Predictor{artifact: a}, nil
}

// Schema is the column contract callers must assemble rows against.
func (p *Predictor) Schema() FeatureSchema { return p.artifact.Schema }

func (p *Predictor) Threshold() float64 { return p.artifact.Threshold }

func (p *Predictor) ArtifactID() string { return p.artifact.ID }

// Artifact returns a shallow copy of the loaded artifact.
func (p *Predictor) Artifact() Artifact { return *p.artifact }

// Predict runs one assembled row through the pipeline. The row must carry
// exactly the schema columns in schema order.
func (p *Predictor) Predict(row Row) (Prediction, error) {
	frame, err := row.Frame(p.artifact.Schema)
	if err != nil {
		return Prediction{}, err
	}
	proba, err := p.artifact.Pipeline.PredictProba(frame)
	if err != nil {
		return Prediction{}, fmt.Errorf("predict: %w", err)
	}
	rain := proba[0]
	return Prediction{
		ProbNoRain: 1 - rain,
		ProbRain:   rain,
		Rain:       rain >= p.artifact.Threshold,
		Threshold:  p.artifact.Threshold,
	}, nil
}
