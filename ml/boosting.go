package ml

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// BoosterParams configures the gradient-boosted tree classifier.
type BoosterParams struct {
	NEstimators     int     `json:"n_estimators" yaml:"n_estimators"`
	LearningRate    float64 `json:"learning_rate" yaml:"learning_rate"`
	NumLeaves       int     `json:"num_leaves" yaml:"num_leaves"`
	MaxDepth        int     `json:"max_depth" yaml:"max_depth"`
	MinChildSamples int     `json:"min_child_samples" yaml:"min_child_samples"`
	ScalePosWeight  float64 `json:"scale_pos_weight" yaml:"scale_pos_weight"`
	MaxBin          int     `json:"max_bin" yaml:"max_bin"`
}

// DefaultBoosterParams mirrors the LightGBM defaults.
func DefaultBoosterParams() BoosterParams {
	return BoosterParams{
		NEstimators:     100,
		LearningRate:    0.1,
		NumLeaves:       31,
		MaxDepth:        -1,
		MinChildSamples: 20,
		ScalePosWeight:  1,
		MaxBin:          255,
	}
}

func (p BoosterParams) Validate() error {
	switch {
	case p.NEstimators <= 0:
		return fmt.Errorf("n_estimators must be positive, got %d", p.NEstimators)
	case p.LearningRate <= 0 || math.IsNaN(p.LearningRate):
		return fmt.Errorf("learning_rate must be positive, got %g", p.LearningRate)
	case p.NumLeaves < 2:
		return fmt.Errorf("num_leaves must be at least 2, got %d", p.NumLeaves)
	case p.MaxDepth == 0:
		return errors.New("max_depth must be positive or -1 for no limit")
	case p.MinChildSamples < 0:
		return fmt.Errorf("min_child_samples must not be negative, got %d", p.MinChildSamples)
	case p.ScalePosWeight <= 0 || math.IsInf(p.ScalePosWeight, 0) || math.IsNaN(p.ScalePosWeight):
		return fmt.Errorf("scale_pos_weight must be positive and finite, got %g", p.ScalePosWeight)
	case p.MaxBin < 2 || p.MaxBin > 256:
		return fmt.Errorf("max_bin must be in [2, 256], got %d", p.MaxBin)
	}
	return nil
}

func (p BoosterParams) String() string {
	return fmt.Sprintf("n_estimators=%d learning_rate=%g num_leaves=%d max_depth=%d min_child_samples=%d",
		p.NEstimators, p.LearningRate, p.NumLeaves, p.MaxDepth, p.MinChildSamples)
}

// GradientBoostedTrees is a binary classifier fitting regression trees to the
// gradients of the logistic loss. Positive samples are weighted by
// ScalePosWeight. Fitting is deterministic.
type GradientBoostedTrees struct {
	Params      BoosterParams  `json:"params"`
	InitScore   float64        `json:"init_score"`
	NumFeatures int            `json:"num_features"`
	Trees       []DecisionTree `json:"trees"`
}

func NewGradientBoostedTrees(params BoosterParams) *GradientBoostedTrees {
	return &GradientBoostedTrees{Params: params}
}

// Fit grows up to NEstimators trees and stops early once a tree cannot split.
func (m *GradientBoostedTrees) Fit(X *mat.Dense, labels []int) error {
	if err := m.Params.Validate(); err != nil {
		return err
	}
	if X == nil || len(labels) == 0 {
		return ErrEmptyTrainingSet
	}
	rows, cols := X.Dims()
	if rows != len(labels) {
		return errors.New("features and labels size mismatch")
	}

	weights := make([]float64, rows)
	var sumW, sumWY float64
	for i, label := range labels {
		switch label {
		case 0:
			weights[i] = 1
		case 1:
			weights[i] = m.Params.ScalePosWeight
			sumWY += weights[i]
		default:
			return fmt.Errorf("label %d at row %d is not binary", label, i)
		}
		sumW += weights[i]
	}
	pavg := clampProb(sumWY / sumW)
	m.InitScore = math.Log(pavg / (1 - pavg))
	m.NumFeatures = cols
	m.Trees = make([]DecisionTree, 0, m.Params.NEstimators)

	builder := &treeBuilder{
		params: m.Params,
		bins:   newFeatureBins(X, m.Params.MaxBin),
		grad:   make([]float64, rows),
		hess:   make([]float64, rows),
	}
	scores := make([]float64, rows)
	all := make([]int, rows)
	for i := range scores {
		scores[i] = m.InitScore
		all[i] = i
	}

	for iter := 0; iter < m.Params.NEstimators; iter++ {
		for i, label := range labels {
			p := sigmoid(scores[i])
			builder.grad[i] = weights[i] * (p - float64(label))
			builder.hess[i] = weights[i] * p * (1 - p)
		}
		tree, leaves := builder.build(all)
		if len(tree.Nodes) == 1 {
			// No split improves the loss; further trees would be identical.
			m.Trees = append(m.Trees, *tree)
			break
		}
		for _, leaf := range leaves {
			for _, i := range leaf.indices {
				scores[i] += leaf.value
			}
		}
		m.Trees = append(m.Trees, *tree)
	}
	return nil
}

func (m *GradientBoostedTrees) fitted() bool { return len(m.Trees) > 0 }

// RawScore is the log-odds of the positive class for one encoded row.
func (m *GradientBoostedTrees) RawScore(features []float64) (float64, error) {
	if !m.fitted() {
		return 0, ErrNotFitted
	}
	if len(features) != m.NumFeatures {
		return 0, fmt.Errorf("%w: expected %d encoded features, got %d", ErrSchemaMismatch, m.NumFeatures, len(features))
	}
	score := m.InitScore
	for i := range m.Trees {
		v, err := m.Trees[i].Score(features)
		if err != nil {
			return 0, fmt.Errorf("tree %d: %w", i, err)
		}
		score += v
	}
	return score, nil
}

// PredictProba returns P(class 1) for every row of X.
func (m *GradientBoostedTrees) PredictProba(X *mat.Dense) ([]float64, error) {
	rows, _ := X.Dims()
	out := make([]float64, rows)
	for i := 0; i < rows; i++ {
		score, err := m.RawScore(X.RawRowView(i))
		if err != nil {
			return nil, err
		}
		out[i] = sigmoid(score)
	}
	return out, nil
}

func (m *GradientBoostedTrees) validate() error {
	if !m.fitted() {
		return ErrNotFitted
	}
	if m.NumFeatures <= 0 {
		return errors.New("classifier has no features")
	}
	if math.IsNaN(m.InitScore) || math.IsInf(m.InitScore, 0) {
		return errors.New("classifier init score is not finite")
	}
	for i := range m.Trees {
		if err := m.Trees[i].validate(m.NumFeatures); err != nil {
			return fmt.Errorf("tree %d: %w", i, err)
		}
	}
	return nil
}

func sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

func clampProb(p float64) float64 {
	const eps = 1e-15
	return math.Min(math.Max(p, eps), 1-eps)
}
