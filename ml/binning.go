package ml

import (
	"sort"

	"gonum.org/v1/gonum/mat"
)

// featureBins discretizes each feature into at most maxBin ordered bins.
// Bin i holds values in (bounds[i-1], bounds[i]]; the last bin is unbounded.
type featureBins struct {
	bounds [][]float64
	binned [][]uint8
}

func newFeatureBins(X *mat.Dense, maxBin int) *featureBins {
	rows, cols := X.Dims()
	fb := &featureBins{
		bounds: make([][]float64, cols),
		binned: make([][]uint8, cols),
	}
	column := make([]float64, rows)
	for f := 0; f < cols; f++ {
		mat.Col(column, f, X)
		fb.bounds[f] = binBounds(column, maxBin)
		binned := make([]uint8, rows)
		for i, v := range column {
			binned[i] = uint8(sort.SearchFloat64s(fb.bounds[f], v))
		}
		fb.binned[f] = binned
	}
	return fb
}

// binBounds places bin boundaries at midpoints between distinct values,
// grouping values so that each bin holds roughly rows/maxBin samples.
func binBounds(values []float64, maxBin int) []float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	distinct := make([]float64, 0, len(sorted))
	counts := make([]int, 0, len(sorted))
	for i, v := range sorted {
		if i > 0 && v == sorted[i-1] {
			counts[len(counts)-1]++
			continue
		}
		distinct = append(distinct, v)
		counts = append(counts, 1)
	}
	if len(distinct) <= 1 {
		return nil
	}

	bounds := make([]float64, 0, maxBin-1)
	if len(distinct) <= maxBin {
		for i := 0; i < len(distinct)-1; i++ {
			bounds = append(bounds, (distinct[i]+distinct[i+1])/2)
		}
		return bounds
	}

	perBin := float64(len(sorted)) / float64(maxBin)
	acc := 0
	for i := 0; i < len(distinct)-1 && len(bounds) < maxBin-1; i++ {
		acc += counts[i]
		if float64(acc) >= perBin {
			bounds = append(bounds, (distinct[i]+distinct[i+1])/2)
			acc = 0
		}
	}
	return bounds
}

func (fb *featureBins) numFeatures() int { return len(fb.bounds) }

func (fb *featureBins) numBins(f int) int { return len(fb.bounds[f]) + 1 }

// threshold is the split value that sends bins <= bin to the left child.
func (fb *featureBins) threshold(f, bin int) float64 {
	return fb.bounds[f][bin]
}
