package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"raincast/config"
	"raincast/db"
	qhttp "raincast/http"
	"raincast/ml"
)

// writeWeatherCSV writes n rows where rain tomorrow follows afternoon
// humidity, plus one unlabeled row.
func writeWeatherCSV(t *testing.T, n int) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("Date,Location,MinTemp,Humidity3pm,RainToday,RainTomorrow\n")
	for i := 0; i < n; i++ {
		humidity := (i * 37) % 100
		rainTomorrow := "No"
		if humidity >= 70 {
			rainTomorrow = "Yes"
		}
		rainToday := "No"
		if i%5 == 0 {
			rainToday = "Yes"
		}
		minTemp := "NA"
		if i%7 != 0 {
			minTemp = fmt.Sprintf("%.1f", float64(i%25))
		}
		fmt.Fprintf(&b, "2017-01-%02d,Melbourne,%s,%d,%s,%s\n", i%28+1, minTemp, humidity, rainToday, rainTomorrow)
	}
	b.WriteString("2017-02-01,Melbourne,10,50,No,NA\n")

	path := filepath.Join(t.TempDir(), "weather.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func testConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	dir := t.TempDir()
	cfg.Data.Path = writeWeatherCSV(t, 200)
	cfg.Training.ArtifactPath = filepath.Join(dir, "model.json.gz")
	cfg.Training.CVFolds = 3
	cfg.Training.Jobs = 2
	cfg.Training.Grid = ml.ParamGrid{
		NEstimators:     []int{20},
		LearningRate:    []float64{0.1, 0.3},
		NumLeaves:       []int{4},
		MaxDepth:        []int{-1},
		MinChildSamples: []int{5},
	}
	cfg.Database.Path = filepath.Join(dir, "runs.db")
	return &cfg
}

func TestTrainWritesUsableArtifact(t *testing.T) {
	cfg := testConfig(t)
	res, err := train(context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, 200, res.TrainRows+res.TestRows)
	assert.Len(t, res.Dataset.Issues, 1)
	assert.Greater(t, res.ScalePosWeight, 1.0)
	assert.Greater(t, res.Report.ROCAUC, 0.9)

	model, err := ml.LoadModel(cfg.Training.ArtifactPath)
	require.NoError(t, err)
	assert.Equal(t, res.Artifact.ID, model.ArtifactID())
	assert.Equal(t, []string{"Location", "MinTemp", "Humidity3pm", "RainToday"}, model.Schema().Names())

	row, err := ml.AssembleInput(model.Schema(), map[string]ml.Value{
		"Location":    ml.Text("Melbourne"),
		"MinTemp":     ml.Number(12),
		"Humidity3pm": ml.Number(95),
		"RainToday":   ml.Text("No"),
	})
	require.NoError(t, err)
	pred, err := model.Predict(row)
	require.NoError(t, err)
	assert.True(t, pred.Rain)
}

func TestRecordRun(t *testing.T) {
	cfg := testConfig(t)
	res, err := train(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, recordRun(context.Background(), cfg, res))

	store, err := db.Open(cfg.Database.Path)
	require.NoError(t, err)
	defer store.Close()

	runs, err := store.LoadTrainingLog(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, res.Artifact.ID, runs[0].ArtifactID)
	assert.InDelta(t, res.Search.BestScore, runs[0].CVF1, 1e-9)

	issues, err := store.QualityIssues(context.Background(), res.Artifact.ID)
	require.NoError(t, err)
	assert.Len(t, issues, 1)
}

func TestTrainFailsBeforeWritingArtifact(t *testing.T) {
	cfg := testConfig(t)
	cfg.Training.CVFolds = 150

	_, err := train(context.Background(), cfg)
	require.ErrorIs(t, err, ml.ErrDegenerateFold)
	_, statErr := os.Stat(cfg.Training.ArtifactPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestFormDefaultsGoldenPath(t *testing.T) {
	cfg := testConfig(t)
	_, err := train(context.Background(), cfg)
	require.NoError(t, err)

	model, err := ml.LoadModel(cfg.Training.ArtifactPath)
	require.NoError(t, err)
	form, err := qhttp.NewForm(model.Schema(), qhttp.DefaultFields(), map[string]string{"Location": "Melbourne"}, nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"MaxTemp", "Rainfall", "Pressure3pm", "Cloud3pm", "WindGustSpeed",
		"WindSpeed3pm", "WindDir3pm", "WindDir9am", "WindGustDir", "WindSpeed9am", "Temp9am", "Pressure9am"}, form.Dropped())

	service, err := qhttp.NewPredictionService(model, form, 0, nil, nil)
	require.NoError(t, err)

	// Default afternoon humidity is 55%, well below the rainy band.
	res, err := service.Predict(context.Background(), form.Defaults())
	require.NoError(t, err)
	assert.False(t, res.Prediction.Rain)
	assert.InDelta(t, 1.0, res.Prediction.ProbRain+res.Prediction.ProbNoRain, 1e-9)
	assert.Equal(t, model.Schema().Names(), res.Input.Columns)
}
