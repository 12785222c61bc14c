package ml

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"raincast/logging"
)

// ParamGrid lists the values tried for each classifier hyperparameter.
type ParamGrid struct {
	NEstimators     []int     `yaml:"n_estimators" json:"n_estimators"`
	LearningRate    []float64 `yaml:"learning_rate" json:"learning_rate"`
	NumLeaves       []int     `yaml:"num_leaves" json:"num_leaves"`
	MaxDepth        []int     `yaml:"max_depth" json:"max_depth"`
	MinChildSamples []int     `yaml:"min_child_samples" json:"min_child_samples"`
}

// DefaultParamGrid is the grid the rain model has always been searched over.
func DefaultParamGrid() ParamGrid {
	return ParamGrid{
		NEstimators:     []int{100, 300},
		LearningRate:    []float64{0.01, 0.05, 0.1},
		NumLeaves:       []int{20},
		MaxDepth:        []int{7, -1},
		MinChildSamples: []int{20},
	}
}

// Candidates expands the grid with parameter names in sorted order
// (learning_rate, max_depth, min_child_samples, n_estimators, num_leaves),
// the last one varying fastest. Fields not in the grid come from base.
func (g ParamGrid) Candidates(base BoosterParams) ([]BoosterParams, error) {
	dims := map[string]int{
		"learning_rate":     len(g.LearningRate),
		"max_depth":         len(g.MaxDepth),
		"min_child_samples": len(g.MinChildSamples),
		"n_estimators":      len(g.NEstimators),
		"num_leaves":        len(g.NumLeaves),
	}
	for name, n := range dims {
		if n == 0 {
			return nil, fmt.Errorf("parameter grid has no values for %s", name)
		}
	}

	var out []BoosterParams
	for _, lr := range g.LearningRate {
		for _, depth := range g.MaxDepth {
			for _, mcs := range g.MinChildSamples {
				for _, n := range g.NEstimators {
					for _, leaves := range g.NumLeaves {
						p := base
						p.LearningRate = lr
						p.MaxDepth = depth
						p.MinChildSamples = mcs
						p.NEstimators = n
						p.NumLeaves = leaves
						if err := p.Validate(); err != nil {
							return nil, fmt.Errorf("invalid grid candidate %s: %w", p, err)
						}
						out = append(out, p)
					}
				}
			}
		}
	}
	return out, nil
}

// SearchConfig controls cross-validation.
type SearchConfig struct {
	Folds     int
	Jobs      int
	Threshold float64
}

// CandidateScore is one grid point with its fold scores and rank.
type CandidateScore struct {
	Params     BoosterParams `json:"params"`
	FoldScores []float64     `json:"fold_scores"`
	MeanScore  float64       `json:"mean_score"`
	StdScore   float64       `json:"std_score"`
	Rank       int           `json:"rank"`
}

// SearchResult holds every candidate score and the refit best pipeline.
type SearchResult struct {
	Candidates []CandidateScore
	BestIndex  int
	Best       BoosterParams
	BestScore  float64
	Pipeline   *Pipeline
	Duration   time.Duration
}

// GridSearch scores every candidate by mean positive-class F1 over stratified
// folds, refitting the preprocessor on each fold's training portion, then
// refits the best candidate on all of X. Ties go to the earlier candidate.
func GridSearch(ctx context.Context, X *Frame, y []int, base BoosterParams, grid ParamGrid, cfg SearchConfig) (*SearchResult, error) {
	logger := logging.FromContext(ctx)
	start := time.Now()

	if X == nil || X.Len() != len(y) {
		return nil, fmt.Errorf("frame and labels size mismatch")
	}
	candidates, err := grid.Candidates(base)
	if err != nil {
		return nil, err
	}
	folds, err := StratifiedKFold(y, cfg.Folds)
	if err != nil {
		return nil, err
	}

	jobs := cfg.Jobs
	if jobs <= 0 {
		jobs = runtime.NumCPU()
	}
	logger.Info("starting grid search",
		zap.Int("candidates", len(candidates)),
		zap.Int("folds", len(folds)),
		zap.Int("fits", len(candidates)*len(folds)),
		zap.Int("jobs", jobs))

	scores := make([][]float64, len(candidates))
	for i := range scores {
		scores[i] = make([]float64, len(folds))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)
	for ci := range candidates {
		for fi := range folds {
			ci, fi := ci, fi
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				score, err := scoreFold(X, y, candidates[ci], folds[fi], cfg.Threshold)
				if err != nil {
					return fmt.Errorf("candidate %s fold %d: %w", candidates[ci], fi, err)
				}
				scores[ci][fi] = score
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &SearchResult{Candidates: make([]CandidateScore, len(candidates))}
	for ci, params := range candidates {
		mean, std := meanStd(scores[ci])
		result.Candidates[ci] = CandidateScore{Params: params, FoldScores: scores[ci], MeanScore: mean, StdScore: std}
		if ci == 0 || mean > result.BestScore {
			result.BestIndex = ci
			result.BestScore = mean
		}
	}
	for ci := range result.Candidates {
		rank := 1
		for cj := range result.Candidates {
			if result.Candidates[cj].MeanScore > result.Candidates[ci].MeanScore {
				rank++
			}
		}
		result.Candidates[ci].Rank = rank
	}
	result.Best = candidates[result.BestIndex]

	logger.Info("refitting best candidate on the full training split",
		zap.Stringer("params", result.Best),
		zap.Float64("mean_f1", result.BestScore))
	pipeline := NewPipeline(result.Best)
	if err := pipeline.Fit(X, y); err != nil {
		return nil, fmt.Errorf("refit best candidate: %w", err)
	}
	result.Pipeline = pipeline
	result.Duration = time.Since(start)
	return result, nil
}

func scoreFold(X *Frame, y []int, params BoosterParams, fold Fold, threshold float64) (float64, error) {
	pipeline := NewPipeline(params)
	if err := pipeline.Fit(X.Subset(fold.Train), selectLabels(y, fold.Train)); err != nil {
		return 0, err
	}
	proba, err := pipeline.PredictProba(X.Subset(fold.Validation))
	if err != nil {
		return 0, err
	}
	return F1Score(selectLabels(y, fold.Validation), Threshold(proba, threshold)), nil
}

func meanStd(values []float64) (mean, std float64) {
	if len(values) == 0 {
		return 0, 0
	}
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	for _, v := range values {
		std += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(std / float64(len(values)))
}
