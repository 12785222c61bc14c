package ml

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func toyPredictor(t *testing.T) *Predictor {
	t.Helper()
	p, err := NewPredictor(toyArtifact(t))
	require.NoError(t, err)
	return p
}

func TestPredictorGoldenPath(t *testing.T) {
	p := toyPredictor(t)

	dry, err := p.Predict(toyRow(p.Schema(), 45))
	require.NoError(t, err)
	assert.False(t, dry.Rain)
	assert.Less(t, dry.ProbRain, 0.5)

	wet, err := p.Predict(toyRow(p.Schema(), 90))
	require.NoError(t, err)
	assert.True(t, wet.Rain)
	assert.Equal(t, 1, wet.Label())
	assert.Greater(t, wet.ProbRain, dry.ProbRain)
}

func TestPredictorProbabilitiesSumToOne(t *testing.T) {
	p := toyPredictor(t)
	for _, humidity := range []float64{0, 30, 60, 71, 100} {
		pred, err := p.Predict(toyRow(p.Schema(), humidity))
		require.NoError(t, err)
		assert.InDelta(t, 1.0, pred.ProbNoRain+pred.ProbRain, 1e-6)
		assert.Equal(t, 0.5, pred.Threshold)
	}
}

func TestPredictorIsIdempotent(t *testing.T) {
	p := toyPredictor(t)
	row := toyRow(p.Schema(), 80)
	first, err := p.Predict(row)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := p.Predict(row)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestPredictorRejectsSchemaMismatch(t *testing.T) {
	p := toyPredictor(t)
	row := toyRow(p.Schema(), 50)
	row.Columns = row.Columns[1:]
	row.Values = row.Values[1:]
	_, err := p.Predict(row)
	assert.ErrorIs(t, err, ErrSchemaMismatch)

	swapped := toyRow(p.Schema(), 50)
	swapped.Columns[0], swapped.Columns[1] = swapped.Columns[1], swapped.Columns[0]
	_, err = p.Predict(swapped)
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestAssembleInput(t *testing.T) {
	schema := NewFeatureSchema([]Column{
		{Name: "MinTemp", Kind: Numeric},
		{Name: "RainToday", Kind: Categorical},
		{Name: "Cloud3pm", Kind: Numeric},
	})
	row, err := AssembleInput(schema, map[string]Value{
		"Cloud3pm":  Text(" 4 "),
		"RainToday": Text("Yes"),
		"Location":  Text("Melbourne"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"MinTemp", "RainToday", "Cloud3pm"}, row.Columns)
	assert.True(t, row.Values[0].IsMissing())
	assert.Equal(t, "Yes", row.Values[1].String())
	f, err := row.Values[2].Float()
	require.NoError(t, err)
	assert.Equal(t, 4.0, f)

	_, err = AssembleInput(schema, map[string]Value{"MinTemp": Text("warm")})
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func TestAssembleInputRejectsNonFiniteNumbers(t *testing.T) {
	schema := NewFeatureSchema([]Column{{Name: "Humidity3pm", Kind: Numeric}})
	for _, v := range []Value{Text("NaN"), Text("Inf"), Text("-inf"), Number(math.NaN()), Number(math.Inf(1))} {
		_, err := AssembleInput(schema, map[string]Value{"Humidity3pm": v})
		assert.ErrorIs(t, err, ErrInvalidValue, v.String())
	}
}

func TestLoadModel(t *testing.T) {
	_, err := LoadModel("does-not-exist.gz")
	assert.Error(t, err)
}
