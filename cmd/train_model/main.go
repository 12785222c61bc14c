// Command train_model fits the rain-tomorrow pipeline on a weather CSV,
// reports its held-out metrics and writes the model artifact.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"raincast/config"
	"raincast/db"
	"raincast/logging"
	"raincast/ml"
	"raincast/pipeline"
)

func main() {
	configPath := flag.String("config", "config.yaml", "config file; skipped when absent")
	dataPath := flag.String("data", "", "weather CSV (overrides data.path)")
	outPath := flag.String("out", "", "artifact output path (overrides training.artifact_path)")
	folds := flag.Int("cv", 0, "cross-validation folds (overrides training.cv_folds)")
	seed := flag.Int64("seed", -1, "train/test split seed (overrides training.seed)")
	testRatio := flag.Float64("test_ratio", 0, "held-out fraction (overrides training.test_ratio)")
	threshold := flag.Float64("threshold", 0, "decision threshold (overrides training.threshold)")
	jobs := flag.Int("n_jobs", 0, "parallel fits, -1 for all CPUs (overrides training.n_jobs)")
	flag.Parse()

	path := *configPath
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) && !flagSet("config") {
		path = ""
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *dataPath != "" {
		cfg.Data.Path = *dataPath
	}
	if *outPath != "" {
		cfg.Training.ArtifactPath = *outPath
	}
	if *folds != 0 {
		cfg.Training.CVFolds = *folds
	}
	if *seed >= 0 {
		cfg.Training.Seed = *seed
	}
	if *testRatio != 0 {
		cfg.Training.TestRatio = *testRatio
	}
	if *threshold != 0 {
		cfg.Training.Threshold = *threshold
	}
	if *jobs != 0 {
		cfg.Training.Jobs = *jobs
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logging.WithLogger(ctx, logger)

	result, err := train(ctx, cfg)
	if err != nil {
		logger.Fatal("training failed", zap.Error(err))
	}

	fmt.Printf("Best params: %s\n", result.Search.Best)
	fmt.Printf("Best CV F1: %.4f\n\n", result.Search.BestScore)
	fmt.Print(result.Report.String())
	fmt.Printf("\nmodel saved to %s\n", cfg.Training.ArtifactPath)

	if cfg.Database.Path != "" {
		if err := recordRun(ctx, cfg, result); err != nil {
			logger.Error("failed to record training run", zap.Error(err))
		}
	}
}

func flagSet(name string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

type trainResult struct {
	Artifact       *ml.Artifact
	Search         *ml.SearchResult
	Report         *ml.Report
	Dataset        *pipeline.Dataset
	ScalePosWeight float64
	TrainRows      int
	TestRows       int
	Duration       time.Duration
}

// train runs the whole procedure and writes the artifact only after every
// earlier step succeeded.
func train(ctx context.Context, cfg *config.Config) (*trainResult, error) {
	logger := logging.FromContext(ctx)
	start := time.Now()

	ds, err := pipeline.Load(ctx, cfg.Data.Path, pipeline.Options{
		Target:      cfg.Data.Target,
		DropColumns: cfg.Data.DropColumns,
	})
	if err != nil {
		return nil, fmt.Errorf("load data: %w", err)
	}

	trainIdx, testIdx, err := ml.TrainTestSplit(ds.Y, cfg.Training.TestRatio, cfg.Training.Seed)
	if err != nil {
		return nil, err
	}
	xTrain, yTrain := ds.X.Subset(trainIdx), pick(ds.Y, trainIdx)
	xTest, yTest := ds.X.Subset(testIdx), pick(ds.Y, testIdx)

	weight, err := ml.ScalePosWeight(yTrain)
	if err != nil {
		return nil, err
	}
	neg, pos := ml.ClassCounts(yTrain)
	logger.Info("class balance of the training split",
		zap.Int("negatives", neg),
		zap.Int("positives", pos),
		zap.Float64("scale_pos_weight", weight))

	base := ml.DefaultBoosterParams()
	base.ScalePosWeight = weight
	base.MaxBin = cfg.Training.MaxBin

	search, err := ml.GridSearch(ctx, xTrain, yTrain, base, cfg.Training.Grid, ml.SearchConfig{
		Folds:     cfg.Training.CVFolds,
		Jobs:      cfg.Training.Jobs,
		Threshold: cfg.Training.Threshold,
	})
	if err != nil {
		return nil, fmt.Errorf("grid search: %w", err)
	}

	proba, err := search.Pipeline.PredictProba(xTest)
	if err != nil {
		return nil, fmt.Errorf("score test split: %w", err)
	}
	report, err := ml.Evaluate(yTest, proba, cfg.Training.Threshold)
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}

	artifact, err := ml.NewArtifact(search.Pipeline, cfg.Training.Threshold)
	if err != nil {
		return nil, err
	}
	artifact.CVScore = search.BestScore
	artifact.Report = report
	if err := ml.SaveArtifact(cfg.Training.ArtifactPath, artifact); err != nil {
		return nil, fmt.Errorf("save artifact: %w", err)
	}
	logger.Info("model artifact written",
		zap.String("path", cfg.Training.ArtifactPath),
		zap.String("artifact_id", artifact.ID),
		zap.String("fingerprint", artifact.Schema.Fingerprint))

	return &trainResult{
		Artifact:       artifact,
		Search:         search,
		Report:         report,
		Dataset:        ds,
		ScalePosWeight: weight,
		TrainRows:      len(trainIdx),
		TestRows:       len(testIdx),
		Duration:       time.Since(start),
	}, nil
}

func recordRun(ctx context.Context, cfg *config.Config, res *trainResult) error {
	store, err := db.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	issues := make([]db.QualityIssue, len(res.Dataset.Issues))
	for i, issue := range res.Dataset.Issues {
		issues[i] = db.QualityIssue{
			Line:     issue.Line,
			Type:     issue.Type,
			Severity: issue.Severity,
			Message:  issue.Message,
		}
	}
	positive := res.Report.Classes[1]
	return store.SaveTrainingRun(ctx, db.TrainingRun{
		ArtifactID:     res.Artifact.ID,
		ArtifactPath:   cfg.Training.ArtifactPath,
		Params:         res.Search.Best.String(),
		CVF1:           res.Search.BestScore,
		Accuracy:       res.Report.Accuracy,
		Precision:      positive.Precision,
		Recall:         positive.Recall,
		F1:             positive.F1,
		ROCAUC:         res.Report.ROCAUC,
		ScalePosWeight: res.ScalePosWeight,
		TrainRows:      res.TrainRows,
		TestRows:       res.TestRows,
		Duration:       res.Duration,
		TrainedAt:      res.Artifact.CreatedAt,
	}, issues)
}

func pick(labels []int, indices []int) []int {
	out := make([]int, len(indices))
	for i, idx := range indices {
		out[i] = labels[idx]
	}
	return out
}
