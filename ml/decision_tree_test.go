package ml

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecisionTreeTrainPredict(t *testing.T) {
	features := [][]float64{{1}, {2}, {3}, {10}, {11}, {12}}
	targets := []float64{0.1, 0.1, 0.1, 0.9, 0.9, 0.9}

	model := NewDecisionTree(0)
	require.NoError(t, model.Fit(features, targets))

	low, err := model.Predict([]float64{2.5})
	require.NoError(t, err)
	assert.InDelta(t, 0.1, low, 1e-12)

	high, err := model.Predict([]float64{50})
	require.NoError(t, err)
	assert.InDelta(t, 0.9, high, 1e-12)

	// one split between 3 and 10, two pure leaves
	require.Len(t, model.Nodes, 3)
	assert.InDelta(t, 6.5, model.Nodes[0].Threshold, 1e-12)
}

func TestDecisionTreeMemorizesDistinctRows(t *testing.T) {
	samples, err := GenerateSamples(DefaultDatasetConfig(), 42)
	require.NoError(t, err)
	features, targets := Features(samples), Targets(samples)

	model := NewDecisionTree(0)
	require.NoError(t, model.Fit(features, targets))

	for i, row := range features {
		got, err := model.Predict(row)
		require.NoError(t, err)
		assert.InDelta(t, targets[i], got, 1e-12, "year %v", row[0])
	}
}

func TestDecisionTreeChildIndexesAreAbsolute(t *testing.T) {
	features := [][]float64{{1}, {2}, {3}, {4}, {5}, {6}, {7}, {8}}
	targets := []float64{1, 2, 3, 4, 5, 6, 7, 8}

	model := NewDecisionTree(0)
	require.NoError(t, model.Fit(features, targets))

	for i, node := range model.Nodes {
		if node.IsLeaf {
			continue
		}
		assert.Greater(t, node.LeftChild, i)
		assert.Greater(t, node.RightChild, node.LeftChild)
		assert.Less(t, node.RightChild, len(model.Nodes))
	}
}

func TestDecisionTreeMaxDepth(t *testing.T) {
	features := [][]float64{{1}, {2}, {3}, {4}}
	targets := []float64{1, 2, 3, 4}

	model := NewDecisionTree(1)
	require.NoError(t, model.Fit(features, targets))
	require.Len(t, model.Nodes, 3)

	got, err := model.Predict([]float64{1})
	require.NoError(t, err)
	assert.InDelta(t, 1.5, got, 1e-12)
}

func TestDecisionTreeErrors(t *testing.T) {
	model := NewDecisionTree(0)
	_, err := model.Predict([]float64{1})
	assert.ErrorIs(t, err, ErrNotTrained)

	assert.ErrorIs(t, model.Fit(nil, nil), ErrEmptyDataset)
	assert.ErrorIs(t, model.Fit([][]float64{{1}}, []float64{1, 2}), ErrSizeMismatch)
	assert.ErrorIs(t, model.Fit([][]float64{{1}, {1, 2}}, []float64{1, 2}), ErrFeatureWidth)

	require.NoError(t, model.Fit([][]float64{{1}, {2}}, []float64{1, 2}))
	_, err = model.Predict([]float64{1, 2})
	assert.ErrorIs(t, err, ErrFeatureWidth)
}
