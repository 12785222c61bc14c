package ml

import "gonum.org/v1/gonum/mat"

// Classifier is a binary model over encoded feature matrices.
type Classifier interface {
	Fit(X *mat.Dense, labels []int) error
	PredictProba(X *mat.Dense) ([]float64, error)
}

// ModelProvider is what the serving side needs from a loaded model.
type ModelProvider interface {
	Predict(row Row) (Prediction, error)
	Schema() FeatureSchema
	Threshold() float64
	ArtifactID() string
}

var (
	_ Classifier    = (*GradientBoostedTrees)(nil)
	_ ModelProvider = (*Predictor)(nil)
)
