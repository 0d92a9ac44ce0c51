package ml

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

type DecisionTree struct {
	MaxDepth        int        `json:"max_depth"`
	MinSamplesSplit int        `json:"min_samples_split"`
	Width           int        `json:"n_features"`
	Nodes           []TreeNode `json:"nodes"`
}

type TreeNode struct {
	FeatureIdx int     `json:"feature_idx"`
	Threshold  float64 `json:"threshold"`
	LeftChild  int     `json:"left_child"`
	RightChild int     `json:"right_child"`
	Value      float64 `json:"value"`
	Samples    int     `json:"samples"`
	IsLeaf     bool    `json:"is_leaf"`
}

// NewDecisionTree returns an unfitted CART regressor. maxDepth <= 0 grows until leaves are pure.
func NewDecisionTree(maxDepth int) *DecisionTree {
	return &DecisionTree{MaxDepth: maxDepth, MinSamplesSplit: 2}
}

func (dt *DecisionTree) Variant() Variant { return VariantDecisionTree }

func (dt *DecisionTree) Fit(features [][]float64, targets []float64) error {
	width, err := checkTrainingInput(features, targets)
	if err != nil {
		return err
	}
	if dt.MinSamplesSplit < 2 {
		dt.MinSamplesSplit = 2
	}

	dt.Width = width
	dt.Nodes = dt.buildNode(features, targets, 0, 0)
	return nil
}

func (dt *DecisionTree) Predict(features []float64) (float64, error) {
	if len(dt.Nodes) == 0 {
		return 0, ErrNotTrained
	}
	if len(features) != dt.Width {
		return 0, ErrFeatureWidth
	}
	idx := 0
	for {
		node := dt.Nodes[idx]
		if node.IsLeaf {
			return node.Value, nil
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= len(features) {
			return 0, errors.New("feature index out of range")
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
		if idx < 0 || idx >= len(dt.Nodes) {
			return 0, errors.New("invalid tree state")
		}
	}
}

// validate checks a decoded tree. Children must sit after their parent so
// Predict always walks forward and terminates.
func (dt *DecisionTree) validate() error {
	if len(dt.Nodes) == 0 {
		return fmt.Errorf("%w: tree has no nodes", ErrInvalidModel)
	}
	if dt.Width <= 0 {
		return fmt.Errorf("%w: tree feature width %d", ErrInvalidModel, dt.Width)
	}
	for i, node := range dt.Nodes {
		if node.IsLeaf {
			continue
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= dt.Width {
			return fmt.Errorf("%w: node %d splits on feature %d", ErrInvalidModel, i, node.FeatureIdx)
		}
		for _, child := range []int{node.LeftChild, node.RightChild} {
			if child <= i || child >= len(dt.Nodes) {
				return fmt.Errorf("%w: node %d has child %d", ErrInvalidModel, i, child)
			}
		}
	}
	return nil
}

// buildNode grows the subtree rooted at absolute index base and returns it in pre-order.
func (dt *DecisionTree) buildNode(features [][]float64, targets []float64, depth, base int) []TreeNode {
	leaf := []TreeNode{{
		FeatureIdx: -1,
		LeftChild:  -1,
		RightChild: -1,
		Value:      stat.Mean(targets, nil),
		Samples:    len(targets),
		IsLeaf:     true,
	}}

	if len(targets) < dt.MinSamplesSplit || isConstant(targets) {
		return leaf
	}
	if dt.MaxDepth > 0 && depth >= dt.MaxDepth {
		return leaf
	}

	bestFeature, threshold, ok := findBestSplit(features, targets)
	if !ok {
		return leaf
	}

	leftFeatures, leftTargets, rightFeatures, rightTargets := splitData(features, targets, bestFeature, threshold)
	if len(leftTargets) == 0 || len(rightTargets) == 0 {
		return leaf
	}

	leftNodes := dt.buildNode(leftFeatures, leftTargets, depth+1, base+1)
	rightNodes := dt.buildNode(rightFeatures, rightTargets, depth+1, base+1+len(leftNodes))

	root := TreeNode{
		FeatureIdx: bestFeature,
		Threshold:  threshold,
		LeftChild:  base + 1,
		RightChild: base + 1 + len(leftNodes),
		Value:      leaf[0].Value,
		Samples:    len(targets),
		IsLeaf:     false,
	}

	nodes := make([]TreeNode, 0, 1+len(leftNodes)+len(rightNodes))
	nodes = append(nodes, root)
	nodes = append(nodes, leftNodes...)
	nodes = append(nodes, rightNodes...)
	return nodes
}

// findBestSplit scans midpoints between distinct sorted values and keeps the
// split with the lowest summed squared error. Earlier features win ties.
func findBestSplit(features [][]float64, targets []float64) (int, float64, bool) {
	n := len(features)
	featureCount := len(features[0])
	bestFeature := -1
	bestThreshold := 0.0
	bestSSE := math.MaxFloat64

	order := make([]int, n)
	for featureIdx := 0; featureIdx < featureCount; featureIdx++ {
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(a, b int) bool {
			return features[order[a]][featureIdx] < features[order[b]][featureIdx]
		})

		var totalSum, totalSq float64
		for _, idx := range order {
			totalSum += targets[idx]
			totalSq += targets[idx] * targets[idx]
		}

		var leftSum, leftSq float64
		for i := 1; i < n; i++ {
			prev := order[i-1]
			leftSum += targets[prev]
			leftSq += targets[prev] * targets[prev]

			lo := features[prev][featureIdx]
			hi := features[order[i]][featureIdx]
			if lo == hi {
				continue
			}

			leftN := float64(i)
			rightN := float64(n - i)
			rightSum := totalSum - leftSum
			rightSq := totalSq - leftSq
			sse := (leftSq - leftSum*leftSum/leftN) + (rightSq - rightSum*rightSum/rightN)
			if sse < bestSSE {
				bestSSE = sse
				bestFeature = featureIdx
				bestThreshold = lo + (hi-lo)/2
				if bestThreshold == hi {
					bestThreshold = lo
				}
			}
		}
	}
	if bestFeature == -1 {
		return -1, 0, false
	}
	return bestFeature, bestThreshold, true
}

func splitData(features [][]float64, targets []float64, featureIdx int, threshold float64) ([][]float64, []float64, [][]float64, []float64) {
	leftFeatures := make([][]float64, 0)
	leftTargets := make([]float64, 0)
	rightFeatures := make([][]float64, 0)
	rightTargets := make([]float64, 0)
	for i, feature := range features {
		if feature[featureIdx] <= threshold {
			leftFeatures = append(leftFeatures, feature)
			leftTargets = append(leftTargets, targets[i])
		} else {
			rightFeatures = append(rightFeatures, feature)
			rightTargets = append(rightTargets, targets[i])
		}
	}
	return leftFeatures, leftTargets, rightFeatures, rightTargets
}

func isConstant(values []float64) bool {
	if len(values) == 0 {
		return true
	}
	first := values[0]
	for _, v := range values[1:] {
		if v != first {
			return false
		}
	}
	return true
}
