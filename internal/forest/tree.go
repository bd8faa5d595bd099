package forest

import (
	"math"
	"math/rand"
	"sort"
)

// node is one decision node in a tree. Leaf nodes carry the fraction of
// positive samples that reached them; internal nodes route on a single
// feature threshold.
type node struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Value     float64 `json:"value"`
	Leaf      bool    `json:"leaf"`
}

// Tree is a single CART tree stored as a flat node array; index 0 is the root.
type Tree struct {
	Nodes []node `json:"nodes"`
}

// predictProba walks the tree and returns the positive-class probability.
func (t *Tree) predictProba(x []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Leaf {
			return n.Value
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// treeBuilder grows one tree on a bootstrap sample.
type treeBuilder struct {
	features [][]float64
	labels   []int
	params   Params
	rng      *rand.Rand
	nFeats   int // candidate features per split
	nodes    []node
}

func (b *treeBuilder) build(samples []int) Tree {
	b.nodes = b.nodes[:0]
	b.grow(samples, 0)
	return Tree{Nodes: append([]node(nil), b.nodes...)}
}

// grow appends the subtree for the given samples and returns its root index.
func (b *treeBuilder) grow(samples []int, depth int) int {
	positives := 0
	for _, i := range samples {
		positives += b.labels[i]
	}
	value := float64(positives) / float64(len(samples))

	idx := len(b.nodes)
	if depth >= b.params.MaxDepth ||
		len(samples) < b.params.MinSamplesSplit ||
		positives == 0 || positives == len(samples) {
		b.nodes = append(b.nodes, node{Leaf: true, Value: value})
		return idx
	}

	feature, threshold, ok := b.bestSplit(samples)
	if !ok {
		b.nodes = append(b.nodes, node{Leaf: true, Value: value})
		return idx
	}

	var left, right []int
	for _, i := range samples {
		if b.features[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	b.nodes = append(b.nodes, node{Feature: feature, Threshold: threshold})
	leftIdx := b.grow(left, depth+1)
	rightIdx := b.grow(right, depth+1)
	b.nodes[idx].Left = leftIdx
	b.nodes[idx].Right = rightIdx
	return idx
}

// bestSplit evaluates a random subset of features and returns the split
// minimizing weighted Gini impurity. ok=false when no split satisfies
// the minimum leaf size.
func (b *treeBuilder) bestSplit(samples []int) (feature int, threshold float64, ok bool) {
	numFeatures := len(b.features[0])
	candidates := b.rng.Perm(numFeatures)[:b.nFeats]

	bestImpurity := math.Inf(1)
	type pair struct {
		value float64
		label int
	}
	pairs := make([]pair, len(samples))

	for _, f := range candidates {
		for i, s := range samples {
			pairs[i] = pair{b.features[s][f], b.labels[s]}
		}
		sort.Slice(pairs, func(i, j int) bool { return pairs[i].value < pairs[j].value })

		totalPos := 0
		for _, p := range pairs {
			totalPos += p.label
		}

		leftPos := 0
		n := len(pairs)
		for i := 1; i < n; i++ {
			leftPos += pairs[i-1].label
			if pairs[i].value == pairs[i-1].value {
				continue
			}
			if i < b.params.MinSamplesLeaf || n-i < b.params.MinSamplesLeaf {
				continue
			}
			imp := weightedGini(i, leftPos, n-i, totalPos-leftPos)
			if imp < bestImpurity {
				bestImpurity = imp
				feature = f
				threshold = (pairs[i-1].value + pairs[i].value) / 2
				ok = true
			}
		}
	}
	return feature, threshold, ok
}

// weightedGini computes the size-weighted Gini impurity of a binary split.
func weightedGini(nLeft, posLeft, nRight, posRight int) float64 {
	return float64(nLeft)*gini(nLeft, posLeft) + float64(nRight)*gini(nRight, posRight)
}

func gini(n, pos int) float64 {
	p := float64(pos) / float64(n)
	return 2 * p * (1 - p)
}
