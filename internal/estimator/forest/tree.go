package forest

import (
	"fmt"
	"math/rand"
	"sort"

	"teaser/pkg/math/vector"
)

// thresholds tried per feature when splitting
const splitCandidates = 10

type node struct {
	feature   int
	threshold float64
	left      *node
	right     *node
	leaf      vector.V
}

func (n *node) walk(feats []float64) vector.V {
	cur := n
	for cur.leaf == nil {
		if feats[cur.feature] <= cur.threshold {
			cur = cur.left
		} else {
			cur = cur.right
		}
	}
	return cur.leaf
}

func buildNode(rnd *rand.Rand, feats [][]float64, y []int, nClasses, depth, maxDepth, minLeaf int) (*node, error) {
	if len(feats) == 0 {
		return nil, fmt.Errorf("unable to build tree node on empty sample")
	}
	counts := classCounts(y, nClasses)
	if depth >= maxDepth || len(feats) <= minLeaf || pure(counts) {
		return leafNode(counts), nil
	}

	feature, threshold, gain := bestSplit(rnd, feats, y, nClasses)
	if gain <= 0 {
		return leafNode(counts), nil
	}

	var lx, rx [][]float64
	var ly, ry []int
	for i := range feats {
		if feats[i][feature] <= threshold {
			lx = append(lx, feats[i])
			ly = append(ly, y[i])
		} else {
			rx = append(rx, feats[i])
			ry = append(ry, y[i])
		}
	}
	if len(lx) < minLeaf || len(rx) < minLeaf {
		return leafNode(counts), nil
	}

	left, err := buildNode(rnd, lx, ly, nClasses, depth+1, maxDepth, minLeaf)
	if err != nil {
		return nil, err
	}
	right, err := buildNode(rnd, rx, ry, nClasses, depth+1, maxDepth, minLeaf)
	if err != nil {
		return nil, err
	}
	return &node{feature: feature, threshold: threshold, left: left, right: right}, nil
}

func bestSplit(rnd *rand.Rand, feats [][]float64, y []int, nClasses int) (int, float64, float64) {
	parentGini := gini(classCounts(y, nClasses), len(y))
	bestFeature, bestThreshold, bestGain := -1, 0.0, 0.0

	nFeatures := len(feats[0])
	order := rnd.Perm(nFeatures)
	for _, feature := range order {
		values := make([]float64, len(feats))
		for i := range feats {
			values[i] = feats[i][feature]
		}
		for _, threshold := range thresholds(values) {
			lCounts := make([]int, nClasses)
			rCounts := make([]int, nClasses)
			lN, rN := 0, 0
			for i := range feats {
				if feats[i][feature] <= threshold {
					lCounts[y[i]]++
					lN++
				} else {
					rCounts[y[i]]++
					rN++
				}
			}
			if lN == 0 || rN == 0 {
				continue
			}
			weighted := (float64(lN)*gini(lCounts, lN) + float64(rN)*gini(rCounts, rN)) / float64(len(y))
			gain := parentGini - weighted
			if gain > bestGain {
				bestFeature, bestThreshold, bestGain = feature, threshold, gain
			}
		}
	}
	return bestFeature, bestThreshold, bestGain
}

// thresholds returns up to splitCandidates midpoints between adjacent
// distinct values.
func thresholds(values []float64) []float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	uniq := sorted[:0]
	for i, v := range sorted {
		if i == 0 || v != uniq[len(uniq)-1] {
			uniq = append(uniq, v)
		}
	}
	if len(uniq) < 2 {
		return nil
	}
	var out []float64
	step := 1
	if len(uniq)-1 > splitCandidates {
		step = (len(uniq) - 1) / splitCandidates
	}
	for i := 0; i+1 < len(uniq); i += step {
		out = append(out, (uniq[i]+uniq[i+1])/2)
	}
	return out
}

func classCounts(y []int, nClasses int) []int {
	counts := make([]int, nClasses)
	for _, c := range y {
		counts[c]++
	}
	return counts
}

func pure(counts []int) bool {
	nonZero := 0
	for _, c := range counts {
		if c > 0 {
			nonZero++
		}
	}
	return nonZero <= 1
}

func gini(counts []int, total int) float64 {
	if total == 0 {
		return 0
	}
	g := 1.0
	for _, c := range counts {
		p := float64(c) / float64(total)
		g -= p * p
	}
	return g
}

func leafNode(counts []int) *node {
	total := 0
	for _, c := range counts {
		total += c
	}
	leaf := make(vector.V, len(counts))
	for i, c := range counts {
		leaf[i] = float64(c) / float64(total)
	}
	return &node{leaf: leaf}
}
