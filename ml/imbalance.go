package ml

import "fmt"

// ScalePosWeight is negatives/positives over the given labels. Call it on the
// training split only.
func ScalePosWeight(labels []int) (float64, error) {
	var neg, pos int
	for i, label := range labels {
		switch label {
		case 0:
			neg++
		case 1:
			pos++
		default:
			return 0, fmt.Errorf("label %d at row %d is not binary", label, i)
		}
	}
	if pos == 0 {
		return 0, ErrNoPositiveClass
	}
	if neg == 0 {
		return 0, ErrNoNegativeClass
	}
	return float64(neg) / float64(pos), nil
}

// ClassCounts returns the number of 0 and 1 labels.
func ClassCounts(labels []int) (neg, pos int) {
	for _, label := range labels {
		if label == 1 {
			pos++
		} else {
			neg++
		}
	}
	return neg, pos
}
