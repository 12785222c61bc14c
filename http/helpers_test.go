package http

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"raincast/db"
	"raincast/ml"
)

var testSchema = ml.NewFeatureSchema([]ml.Column{
	{Name: "Location", Kind: ml.Categorical},
	{Name: "MinTemp", Kind: ml.Numeric},
	{Name: "Humidity3pm", Kind: ml.Numeric},
	{Name: "RainToday", Kind: ml.Categorical},
	{Name: "WindDir3pm", Kind: ml.Categorical},
})

// fakeModel says rain with probability Humidity3pm/100.
type fakeModel struct {
	calls atomic.Int32
}

func (f *fakeModel) Predict(row ml.Row) (ml.Prediction, error) {
	f.calls.Add(1)
	if err := testSchema.CheckColumns(row.Columns); err != nil {
		return ml.Prediction{}, err
	}
	p := 0.5
	if v, ok := row.Get("Humidity3pm"); ok && !v.IsMissing() {
		h, err := v.Float()
		if err != nil {
			return ml.Prediction{}, err
		}
		p = h / 100
	}
	return ml.Prediction{ProbRain: p, ProbNoRain: 1 - p, Rain: p >= 0.5, Threshold: 0.5}, nil
}

func (f *fakeModel) Schema() ml.FeatureSchema { return testSchema }
func (f *fakeModel) Threshold() float64       { return 0.5 }
func (f *fakeModel) ArtifactID() string       { return "test-artifact" }

type fakeAuditor struct {
	mu      sync.Mutex
	records []db.PredictionRecord
}

func (a *fakeAuditor) SavePrediction(_ context.Context, p db.PredictionRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, p)
	return nil
}

func (a *fakeAuditor) len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.records)
}

func testForm(t *testing.T) *Form {
	t.Helper()
	form, err := NewForm(testSchema, DefaultFields(), map[string]string{"Location": "Melbourne"}, nil)
	require.NoError(t, err)
	return form
}

func testApp(t *testing.T, model *fakeModel, audit Auditor) *App {
	t.Helper()
	app, err := NewApp(AppConfig{
		Model:     model,
		Form:      testForm(t),
		Audit:     audit,
		CacheSize: 16,
	})
	require.NoError(t, err)
	return app
}
