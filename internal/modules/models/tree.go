package models

import (
	"fmt"
	"math/rand"
	"sort"
)

// Tree ensemble sizing for ~50 monthly observations.
const (
	forestTrees    = 100
	forestMaxDepth = 3
	boostStages    = 100
	boostMaxDepth  = 2
	boostLearnRate = 0.1
	treeMinLeaf    = 2
)

type treeNode struct {
	feature   int
	threshold float64
	left      *treeNode
	right     *treeNode
	value     float64
	leaf      bool
}

func (t *treeNode) predict(row []float64) float64 {
	for !t.leaf {
		if row[t.feature] <= t.threshold {
			t = t.left
		} else {
			t = t.right
		}
	}
	return t.value
}

// buildTree grows a weighted regression tree by greedy SSE reduction.
// Split gains are accumulated into importance per feature.
func buildTree(X [][]float64, y, w []float64, idx []int, depth, maxDepth int, importance []float64) *treeNode {
	var sumW, mean float64
	for _, i := range idx {
		sumW += w[i]
		mean += w[i] * y[i]
	}
	if sumW > 0 {
		mean /= sumW
	}
	var sse float64
	for _, i := range idx {
		sse += w[i] * (y[i] - mean) * (y[i] - mean)
	}

	if depth >= maxDepth || len(idx) < 2*treeMinLeaf || sse <= 1e-12 {
		return &treeNode{leaf: true, value: mean}
	}

	p := len(X[0])
	bestGain := 0.0
	bestFeature := -1
	var bestThreshold float64
	var bestLeft, bestRight []int

	order := make([]int, len(idx))
	for j := 0; j < p; j++ {
		copy(order, idx)
		sort.Slice(order, func(a, b int) bool { return X[order[a]][j] < X[order[b]][j] })

		var lw, lwy float64
		rw, rwy := sumW, mean*sumW
		for k := 0; k < len(order)-1; k++ {
			i := order[k]
			lw += w[i]
			lwy += w[i] * y[i]
			rw -= w[i]
			rwy -= w[i] * y[i]
			if X[order[k]][j] == X[order[k+1]][j] {
				continue
			}
			if k+1 < treeMinLeaf || len(order)-k-1 < treeMinLeaf {
				continue
			}
			if lw <= 0 || rw <= 0 {
				continue
			}
			// SSE reduction equals the between-group weighted variance term.
			gain := lwy*lwy/lw + rwy*rwy/rw - (lwy+rwy)*(lwy+rwy)/(lw+rw)
			if gain > bestGain {
				bestGain = gain
				bestFeature = j
				bestThreshold = (X[order[k]][j] + X[order[k+1]][j]) / 2
				bestLeft = append(bestLeft[:0], order[:k+1]...)
				bestRight = append(bestRight[:0], order[k+1:]...)
			}
		}
	}

	if bestFeature < 0 {
		return &treeNode{leaf: true, value: mean}
	}
	importance[bestFeature] += bestGain

	left := append([]int(nil), bestLeft...)
	right := append([]int(nil), bestRight...)
	return &treeNode{
		feature:   bestFeature,
		threshold: bestThreshold,
		left:      buildTree(X, y, w, left, depth+1, maxDepth, importance),
		right:     buildTree(X, y, w, right, depth+1, maxDepth, importance),
	}
}

// RandomForest is a bagged ensemble of shallow regression trees. The "weight"
// it reports per asset is the normalized impurity-reduction importance.
type RandomForest struct{}

func (RandomForest) Name() string { return "RandomForest" }

func (RandomForest) Fit(X [][]float64, y, w []float64, rng *rand.Rand) (*Fitted, error) {
	n := len(y)
	if n < 2*treeMinLeaf {
		return nil, fmt.Errorf("too few observations for a forest: %d", n)
	}
	p := len(X[0])
	importance := make([]float64, p)
	trees := make([]*treeNode, forestTrees)

	for t := 0; t < forestTrees; t++ {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = rng.Intn(n)
		}
		trees[t] = buildTree(X, y, w, idx, 0, forestMaxDepth, importance)
	}

	return &Fitted{
		Weights:   normalizeImportance(importance),
		Predict: func(row []float64) float64 {
			var sum float64
			for _, t := range trees {
				sum += t.predict(row)
			}
			return sum / float64(len(trees))
		},
		Converged: true,
	}, nil
}

// GradientBoosting fits shallow trees on residuals with shrinkage. As with
// the forest, per-asset weights are normalized feature importances.
type GradientBoosting struct{}

func (GradientBoosting) Name() string { return "GradientBoosting" }

func (GradientBoosting) Fit(X [][]float64, y, w []float64, _ *rand.Rand) (*Fitted, error) {
	n := len(y)
	if n < 2*treeMinLeaf {
		return nil, fmt.Errorf("too few observations for boosting: %d", n)
	}
	p := len(X[0])
	importance := make([]float64, p)

	var sumW, base float64
	for i := 0; i < n; i++ {
		sumW += w[i]
		base += w[i] * y[i]
	}
	if sumW == 0 {
		return nil, fmt.Errorf("zero total sample weight")
	}
	base /= sumW

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}

	current := make([]float64, n)
	resid := make([]float64, n)
	for i := range current {
		current[i] = base
	}

	trees := make([]*treeNode, boostStages)
	for m := 0; m < boostStages; m++ {
		for i := 0; i < n; i++ {
			resid[i] = y[i] - current[i]
		}
		tree := buildTree(X, resid, w, idx, 0, boostMaxDepth, importance)
		trees[m] = tree
		for i := 0; i < n; i++ {
			current[i] += boostLearnRate * tree.predict(X[i])
		}
	}

	return &Fitted{
		Weights:   normalizeImportance(importance),
		Predict: func(row []float64) float64 {
			v := base
			for _, t := range trees {
				v += boostLearnRate * t.predict(row)
			}
			return v
		},
		Converged: true,
	}, nil
}

func normalizeImportance(importance []float64) []float64 {
	var total float64
	for _, v := range importance {
		total += v
	}
	out := make([]float64, len(importance))
	if total <= 0 {
		return out
	}
	for j, v := range importance {
		out[j] = v / total
	}
	return out
}
