package ml

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrainTestSplitStratifiedAndSeeded(t *testing.T) {
	_, y := toyFrame(200)
	train, test, err := TrainTestSplit(y, 0.2, 42)
	require.NoError(t, err)
	assert.Len(t, append(append([]int{}, train...), test...), 200)

	seen := make(map[int]bool)
	for _, i := range append(append([]int{}, train...), test...) {
		assert.False(t, seen[i], "index %d assigned twice", i)
		seen[i] = true
	}

	negAll, posAll := ClassCounts(y)
	negTest, posTest := ClassCounts(selectLabels(y, test))
	assert.InDelta(t, float64(negAll)*0.2, float64(negTest), 1)
	assert.InDelta(t, float64(posAll)*0.2, float64(posTest), 1)

	train2, test2, err := TrainTestSplit(y, 0.2, 42)
	require.NoError(t, err)
	assert.Equal(t, train, train2)
	assert.Equal(t, test, test2)
}

func TestTrainTestSplitDegenerate(t *testing.T) {
	_, _, err := TrainTestSplit([]int{0, 0, 0, 1}, 0.2, 1)
	assert.ErrorIs(t, err, ErrDegenerateSplit)

	_, _, err = TrainTestSplit([]int{0, 1}, 1.5, 1)
	assert.Error(t, err)
}

func TestStratifiedKFold(t *testing.T) {
	_, y := toyFrame(100)
	folds, err := StratifiedKFold(y, 5)
	require.NoError(t, err)
	require.Len(t, folds, 5)

	counted := make(map[int]int)
	for _, f := range folds {
		assert.Equal(t, 100, len(f.Train)+len(f.Validation))
		for _, i := range f.Validation {
			counted[i]++
		}
		neg, pos := ClassCounts(selectLabels(y, f.Validation))
		assert.Positive(t, neg)
		assert.Positive(t, pos)
	}
	assert.Len(t, counted, 100)
	for i, n := range counted {
		assert.Equal(t, 1, n, "index %d validated %d times", i, n)
	}
}

func TestStratifiedKFoldFailsFastOnDegenerateFolds(t *testing.T) {
	y := []int{0, 0, 0, 0, 0, 0, 1, 1}

	_, err := StratifiedKFold(y, 3)
	require.ErrorIs(t, err, ErrDegenerateFold)
	assert.Contains(t, err.Error(), "class 1 has 2 records")

	_, err = StratifiedKFold(y, 1)
	assert.ErrorIs(t, err, ErrDegenerateFold)

	_, err = StratifiedKFold(y, 100)
	assert.ErrorIs(t, err, ErrDegenerateFold)
}
