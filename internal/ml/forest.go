/*******************************************************************************
* Contributors: BMC Helix, Inc.
*
* (c) Copyright 2020-2025 BMC Helix, Inc.

* SPDX-License-Identifier: Apache-2.0
*******************************************************************************/

package ml

import (
	"math"
	"math/rand"

	"aquawatch/common/utils"
)

const (
	defaultEstimators = 100
	maxSubsampleSize  = 256
	forestSeed        = 42
)

// IsolationForest isolates anomalies by random recursive partitioning: points
// that end up in shallow leaves across many trees are easier to isolate and
// therefore more anomalous. Scores follow the convention that lower (more
// negative) means more anomalous; the Offset learned from the training
// distribution and the contamination rate turns a score into a yes/no call.
type IsolationForest struct {
	Estimators    int
	Contamination float64
	SampleSize    int
	Trees         []*treeNode
	Offset        float64
}

// treeNode is either an internal split or, when Left is nil, a leaf holding
// the number of training points that reached it. Exported fields for gob.
type treeNode struct {
	SplitFeature int
	SplitValue   float64
	Left         *treeNode
	Right        *treeNode
	Size         int
}

func NewIsolationForest(estimators int, contamination float64) *IsolationForest {
	if estimators <= 0 {
		estimators = defaultEstimators
	}
	return &IsolationForest{
		Estimators:    estimators,
		Contamination: contamination,
	}
}

// Fit grows the ensemble on rows and learns the score offset that marks the
// contamination fraction of the training data as anomalous.
func (f *IsolationForest) Fit(rows [][]float64) {
	n := len(rows)
	f.SampleSize = n
	if f.SampleSize > maxSubsampleSize {
		f.SampleSize = maxSubsampleSize
	}
	heightLimit := int(math.Ceil(math.Log2(math.Max(float64(f.SampleSize), 2))))

	rng := rand.New(rand.NewSource(forestSeed))
	f.Trees = make([]*treeNode, f.Estimators)
	for t := 0; t < f.Estimators; t++ {
		sample := make([][]float64, f.SampleSize)
		for i, idx := range rng.Perm(n)[:f.SampleSize] {
			sample[i] = rows[idx]
		}
		f.Trees[t] = buildTree(sample, 0, heightLimit, rng)
	}

	scores := f.ScoreSamples(rows)
	f.Offset = utils.Quantile(scores, f.Contamination)
}

func buildTree(rows [][]float64, depth, heightLimit int, rng *rand.Rand) *treeNode {
	if depth >= heightLimit || len(rows) <= 1 {
		return &treeNode{Size: len(rows)}
	}

	cols := len(rows[0])
	feature, minV, maxV, ok := pickSplitFeature(rows, cols, rng)
	if !ok {
		// every feature is constant across this partition
		return &treeNode{Size: len(rows)}
	}

	split := minV + rng.Float64()*(maxV-minV)
	var left, right [][]float64
	for _, row := range rows {
		if row[feature] < split {
			left = append(left, row)
		} else {
			right = append(right, row)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return &treeNode{Size: len(rows)}
	}

	return &treeNode{
		SplitFeature: feature,
		SplitValue:   split,
		Left:         buildTree(left, depth+1, heightLimit, rng),
		Right:        buildTree(right, depth+1, heightLimit, rng),
	}
}

func pickSplitFeature(rows [][]float64, cols int, rng *rand.Rand) (feature int, minV, maxV float64, ok bool) {
	for _, j := range rng.Perm(cols) {
		lo, hi := rows[0][j], rows[0][j]
		for _, row := range rows[1:] {
			if row[j] < lo {
				lo = row[j]
			}
			if row[j] > hi {
				hi = row[j]
			}
		}
		if hi > lo {
			return j, lo, hi, true
		}
	}
	return 0, 0, 0, false
}

// ScoreSamples returns one score per row; lower means more anomalous. The
// value is the negated ensemble anomaly measure, so all scores fall in
// (-1, 0).
func (f *IsolationForest) ScoreSamples(rows [][]float64) []float64 {
	scores := make([]float64, len(rows))
	norm := averagePathLength(f.SampleSize)
	if norm <= 0 {
		norm = 1
	}
	for i, row := range rows {
		total := 0.0
		for _, tree := range f.Trees {
			total += pathLength(row, tree, 0)
		}
		avg := total / float64(len(f.Trees))
		scores[i] = -math.Pow(2, -avg/norm)
	}
	return scores
}

// Predict flags each row whose score falls below the learned offset.
func (f *IsolationForest) Predict(rows [][]float64) []bool {
	scores := f.ScoreSamples(rows)
	flags := make([]bool, len(scores))
	for i, s := range scores {
		flags[i] = s < f.Offset
	}
	return flags
}

func pathLength(row []float64, node *treeNode, depth int) float64 {
	if node.Left == nil {
		return float64(depth) + averagePathLength(node.Size)
	}
	if row[node.SplitFeature] < node.SplitValue {
		return pathLength(row, node.Left, depth+1)
	}
	return pathLength(row, node.Right, depth+1)
}

const eulerMascheroni = 0.5772156649

// averagePathLength is c(n), the expected path length of an unsuccessful
// search in a binary search tree of n points. Used to normalize depths.
func averagePathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	default:
		h := math.Log(float64(n-1)) + eulerMascheroni
		return 2*h - 2*float64(n-1)/float64(n)
	}
}
