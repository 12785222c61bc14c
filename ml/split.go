package ml

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// TrainTestSplit shuffles each class with the seed and moves testRatio of it
// to the held-out side, so both sides keep the class proportions. Returned
// indices are ascending.
func TrainTestSplit(labels []int, testRatio float64, seed int64) (train, test []int, err error) {
	if testRatio <= 0 || testRatio >= 1 {
		return nil, nil, fmt.Errorf("test ratio must be in (0, 1), got %g", testRatio)
	}
	rnd := rand.New(rand.NewSource(seed))
	for _, class := range []int{0, 1} {
		members := classMembers(labels, class)
		rnd.Shuffle(len(members), func(i, j int) { members[i], members[j] = members[j], members[i] })

		nTest := int(math.Round(float64(len(members)) * testRatio))
		if nTest == 0 || nTest == len(members) {
			return nil, nil, fmt.Errorf("%w: class %d has %d records, cannot hold out %g of them",
				ErrDegenerateSplit, class, len(members), testRatio)
		}
		test = append(test, members[:nTest]...)
		train = append(train, members[nTest:]...)
	}
	sort.Ints(train)
	sort.Ints(test)
	return train, test, nil
}

// Fold is one cross-validation partition of a training split.
type Fold struct {
	Train      []int
	Validation []int
}

// StratifiedKFold splits indices into k folds without shuffling. Each class
// is cut into k contiguous, near-equal blocks so every fold keeps the class
// proportions. Every fold must contain both classes on both sides.
func StratifiedKFold(labels []int, k int) ([]Fold, error) {
	if k < 2 {
		return nil, fmt.Errorf("%w: fold count must be at least 2, got %d", ErrDegenerateFold, k)
	}
	if k > len(labels) {
		return nil, fmt.Errorf("%w: %d folds for %d records", ErrDegenerateFold, k, len(labels))
	}

	assignment := make([]int, len(labels))
	for _, class := range []int{0, 1} {
		members := classMembers(labels, class)
		if len(members) < k {
			return nil, fmt.Errorf("%w: class %d has %d records, fewer than %d folds",
				ErrDegenerateFold, class, len(members), k)
		}
		base, extra := len(members)/k, len(members)%k
		pos := 0
		for fold := 0; fold < k; fold++ {
			size := base
			if fold < extra {
				size++
			}
			for _, idx := range members[pos : pos+size] {
				assignment[idx] = fold
			}
			pos += size
		}
	}

	folds := make([]Fold, k)
	for idx, fold := range assignment {
		for f := range folds {
			if f == fold {
				folds[f].Validation = append(folds[f].Validation, idx)
			} else {
				folds[f].Train = append(folds[f].Train, idx)
			}
		}
	}
	for f, fold := range folds {
		if err := checkBothClasses(labels, fold.Train); err != nil {
			return nil, fmt.Errorf("%w: fold %d training portion: %v", ErrDegenerateFold, f, err)
		}
		if err := checkBothClasses(labels, fold.Validation); err != nil {
			return nil, fmt.Errorf("%w: fold %d validation portion: %v", ErrDegenerateFold, f, err)
		}
	}
	return folds, nil
}

func classMembers(labels []int, class int) []int {
	var members []int
	for i, label := range labels {
		if label == class {
			members = append(members, i)
		}
	}
	return members
}

func checkBothClasses(labels []int, indices []int) error {
	var neg, pos int
	for _, i := range indices {
		if labels[i] == 1 {
			pos++
		} else {
			neg++
		}
	}
	if neg == 0 || pos == 0 {
		return fmt.Errorf("%d negative and %d positive records", neg, pos)
	}
	return nil
}

func selectLabels(labels []int, indices []int) []int {
	out := make([]int, len(indices))
	for i, idx := range indices {
		out[i] = labels[idx]
	}
	return out
}
