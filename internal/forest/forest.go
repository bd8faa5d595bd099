// Package forest implements a random forest of CART trees for binary
// classification, with deterministic training under a fixed seed and a
// JSON artifact format.
package forest

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
)

// Params are the forest hyperparameters.
type Params struct {
	NumTrees        int   `json:"num_trees"`
	MaxDepth        int   `json:"max_depth"`
	MinSamplesSplit int   `json:"min_samples_split"`
	MinSamplesLeaf  int   `json:"min_samples_leaf"`
	Seed            int64 `json:"seed"`
}

// DefaultParams returns the production hyperparameters.
func DefaultParams() Params {
	return Params{
		NumTrees:        150,
		MaxDepth:        12,
		MinSamplesSplit: 10,
		MinSamplesLeaf:  5,
		Seed:            42,
	}
}

// Forest is a trained ensemble.
type Forest struct {
	Trees       []Tree `json:"trees"`
	NumFeatures int    `json:"num_features"`
	Params      Params `json:"params"`
}

// Fit trains a forest with bagging: each tree sees a bootstrap sample of
// the data and sqrt(num_features) candidate features per split. Training
// is deterministic for a given seed and input order.
func Fit(features [][]float64, labels []int, p Params) (*Forest, error) {
	if len(features) == 0 {
		return nil, errors.New("no training samples")
	}
	if len(features) != len(labels) {
		return nil, fmt.Errorf("features/labels length mismatch: %d != %d", len(features), len(labels))
	}
	numFeatures := len(features[0])
	for i, row := range features {
		if len(row) != numFeatures {
			return nil, fmt.Errorf("sample %d has %d features, want %d", i, len(row), numFeatures)
		}
	}

	nFeats := int(math.Sqrt(float64(numFeatures)))
	if nFeats < 1 {
		nFeats = 1
	}

	master := rand.New(rand.NewSource(p.Seed))
	f := &Forest{
		Trees:       make([]Tree, 0, p.NumTrees),
		NumFeatures: numFeatures,
		Params:      p,
	}

	n := len(features)
	for t := 0; t < p.NumTrees; t++ {
		b := &treeBuilder{
			features: features,
			labels:   labels,
			params:   p,
			rng:      rand.New(rand.NewSource(master.Int63())),
			nFeats:   nFeats,
		}
		samples := make([]int, n)
		for i := range samples {
			samples[i] = b.rng.Intn(n)
		}
		f.Trees = append(f.Trees, b.build(samples))
	}
	return f, nil
}

// PredictProba returns the positive-class probability, averaged over trees.
func (f *Forest) PredictProba(x []float64) (float64, error) {
	if len(x) != f.NumFeatures {
		return 0, fmt.Errorf("got %d features, want %d", len(x), f.NumFeatures)
	}
	var sum float64
	for i := range f.Trees {
		sum += f.Trees[i].predictProba(x)
	}
	return sum / float64(len(f.Trees)), nil
}

// Predict returns the majority-vote class (1 when probability >= 0.5).
func (f *Forest) Predict(x []float64) (int, error) {
	p, err := f.PredictProba(x)
	if err != nil {
		return 0, err
	}
	if p >= 0.5 {
		return 1, nil
	}
	return 0, nil
}

// Accuracy scores the forest against a labeled set.
func (f *Forest) Accuracy(features [][]float64, labels []int) (float64, error) {
	if len(features) == 0 {
		return 0, errors.New("no samples to score")
	}
	correct := 0
	for i, x := range features {
		pred, err := f.Predict(x)
		if err != nil {
			return 0, err
		}
		if pred == labels[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(features)), nil
}

// Save writes the forest as JSON to path.
func Save(f *Forest, path string) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encoding forest: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing forest: %w", err)
	}
	return nil
}

// Load reads a forest previously written with Save.
func Load(path string) (*Forest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading forest: %w", err)
	}
	var f Forest
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decoding forest: %w", err)
	}
	if len(f.Trees) == 0 {
		return nil, errors.New("forest artifact has no trees")
	}
	return &f, nil
}
