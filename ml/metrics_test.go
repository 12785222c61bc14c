package ml

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfusionMatrixAndF1(t *testing.T) {
	yTrue := []int{0, 0, 0, 1, 1, 1, 1}
	yPred := []int{0, 1, 0, 1, 1, 0, 1}

	cm := NewConfusionMatrix(yTrue, yPred)
	assert.Equal(t, ConfusionMatrix{{2, 1}, {1, 3}}, cm)

	// precision 3/4, recall 3/4
	assert.InDelta(t, 0.75, F1Score(yTrue, yPred), 1e-12)
	assert.Equal(t, 0.0, F1Score([]int{1, 0}, []int{0, 0}))
}

func TestROCAUC(t *testing.T) {
	auc, err := ROCAUC([]int{0, 0, 1, 1}, []float64{0.1, 0.4, 0.35, 0.8})
	require.NoError(t, err)
	assert.InDelta(t, 0.75, auc, 1e-12)

	auc, err = ROCAUC([]int{0, 1}, []float64{0.5, 0.5})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, auc, 1e-12)

	_, err = ROCAUC([]int{1, 1}, []float64{0.2, 0.3})
	assert.Error(t, err)
}

func TestEvaluate(t *testing.T) {
	yTrue := []int{0, 0, 0, 1, 1}
	proba := []float64{0.1, 0.6, 0.2, 0.9, 0.5}

	report, err := Evaluate(yTrue, proba, 0.5)
	require.NoError(t, err)
	assert.Equal(t, ConfusionMatrix{{2, 1}, {0, 2}}, report.Confusion)
	assert.InDelta(t, 0.8, report.Accuracy, 1e-12)
	assert.Equal(t, 3, report.Classes[0].Support)
	assert.Equal(t, 2, report.Classes[1].Support)
	assert.InDelta(t, 1.0, report.Classes[1].Recall, 1e-12)
	assert.InDelta(t, 2.0/3.0, report.Classes[1].Precision, 1e-12)
	assert.InDelta(t, 5.0/6.0, report.ROCAUC, 1e-12)
	assert.Contains(t, report.String(), "ROC AUC: 0.8333")
}
