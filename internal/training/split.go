package training

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/revcheck/revd/internal/forest"
)

// Split is the outcome of a stratified train/validation split.
type Split struct {
	TrainX [][]float64
	TrainY []int
	ValX   [][]float64
	ValY   []int
}

// StratifiedSplit holds out testFrac of each class for validation,
// shuffling deterministically with the given seed. Each represented
// class keeps at least one validation sample.
func StratifiedSplit(features [][]float64, labels []int, testFrac float64, seed int64) (Split, error) {
	if len(features) != len(labels) {
		return Split{}, fmt.Errorf("features/labels length mismatch: %d != %d", len(features), len(labels))
	}
	if len(features) == 0 {
		return Split{}, fmt.Errorf("no samples to split")
	}

	rng := rand.New(rand.NewSource(seed))
	byClass := map[int][]int{}
	for i, y := range labels {
		byClass[y] = append(byClass[y], i)
	}

	var s Split
	for _, class := range []int{0, 1} {
		idx := byClass[class]
		if len(idx) == 0 {
			continue
		}
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })

		nVal := int(math.Round(float64(len(idx)) * testFrac))
		if nVal < 1 {
			nVal = 1
		}
		if nVal >= len(idx) {
			nVal = len(idx) - 1
		}
		for k, i := range idx {
			if k < nVal {
				s.ValX = append(s.ValX, features[i])
				s.ValY = append(s.ValY, labels[i])
			} else {
				s.TrainX = append(s.TrainX, features[i])
				s.TrainY = append(s.TrainY, labels[i])
			}
		}
	}
	return s, nil
}

// CrossValidate runs k-fold cross-validation, training a fresh forest
// per fold, and returns the mean and population standard deviation of
// the fold accuracies.
func CrossValidate(features [][]float64, labels []int, k int, p forest.Params) (mean, std float64, err error) {
	n := len(features)
	if k < 2 || k > n {
		return 0, 0, fmt.Errorf("invalid fold count %d for %d samples", k, n)
	}

	rng := rand.New(rand.NewSource(p.Seed))
	idx := rng.Perm(n)

	accs := make([]float64, 0, k)
	for fold := 0; fold < k; fold++ {
		var trainX, valX [][]float64
		var trainY, valY []int
		for j, i := range idx {
			if j%k == fold {
				valX = append(valX, features[i])
				valY = append(valY, labels[i])
			} else {
				trainX = append(trainX, features[i])
				trainY = append(trainY, labels[i])
			}
		}

		f, err := forest.Fit(trainX, trainY, p)
		if err != nil {
			return 0, 0, fmt.Errorf("fold %d: %w", fold, err)
		}
		acc, err := f.Accuracy(valX, valY)
		if err != nil {
			return 0, 0, fmt.Errorf("fold %d: %w", fold, err)
		}
		accs = append(accs, acc)
	}

	for _, a := range accs {
		mean += a
	}
	mean /= float64(len(accs))
	for _, a := range accs {
		std += (a - mean) * (a - mean)
	}
	std = math.Sqrt(std / float64(len(accs)))
	return mean, std, nil
}
