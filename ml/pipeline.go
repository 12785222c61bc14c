package ml

import (
	"errors"
	"fmt"
)

// Pipeline bundles the fitted preprocessor with the classifier. It is the
// unit that grid search refits per fold and that the artifact persists.
type Pipeline struct {
	Preprocessor *Preprocessor        `json:"preprocessor"`
	Classifier   *GradientBoostedTrees `json:"classifier"`
}

// NewPipeline returns an unfitted preprocessor and classifier pair.
func NewPipeline(params BoosterParams) *Pipeline {
	return &Pipeline{
		Preprocessor: NewPreprocessor(),
		Classifier:   NewGradientBoostedTrees(params),
	}
}

// Fit learns the preprocessing statistics and the classifier from X only.
func (p *Pipeline) Fit(X *Frame, y []int) error {
	if X == nil || X.Len() == 0 || len(y) == 0 {
		return ErrEmptyTrainingSet
	}
	if X.Len() != len(y) {
		return fmt.Errorf("frame has %d rows, labels has %d", X.Len(), len(y))
	}
	if err := p.Preprocessor.Fit(X); err != nil {
		return fmt.Errorf("fit preprocessor: %w", err)
	}
	encoded, err := p.Preprocessor.Transform(X)
	if err != nil {
		return fmt.Errorf("transform: %w", err)
	}
	if err := p.Classifier.Fit(encoded, y); err != nil {
		return fmt.Errorf("fit classifier: %w", err)
	}
	return nil
}

// PredictProba returns P(rain) for every row.
func (p *Pipeline) PredictProba(X *Frame) ([]float64, error) {
	if p.Preprocessor == nil || p.Classifier == nil {
		return nil, ErrNotFitted
	}
	encoded, err := p.Preprocessor.Transform(X)
	if err != nil {
		return nil, err
	}
	return p.Classifier.PredictProba(encoded)
}

func (p *Pipeline) Schema() FeatureSchema {
	if p.Preprocessor == nil {
		return FeatureSchema{}
	}
	return p.Preprocessor.Schema()
}

func (p *Pipeline) validate() error {
	if p.Preprocessor == nil {
		return errors.New("pipeline has no preprocessor")
	}
	if p.Classifier == nil {
		return errors.New("pipeline has no classifier")
	}
	if err := p.Classifier.validate(); err != nil {
		return err
	}
	if p.Classifier.NumFeatures != p.Preprocessor.Width() {
		return fmt.Errorf("classifier expects %d features, preprocessor produces %d",
			p.Classifier.NumFeatures, p.Preprocessor.Width())
	}
	return nil
}

// Threshold turns probabilities into hard labels: p >= threshold is class 1.
func Threshold(proba []float64, threshold float64) []int {
	labels := make([]int, len(proba))
	for i, p := range proba {
		if p >= threshold {
			labels[i] = 1
		}
	}
	return labels
}
