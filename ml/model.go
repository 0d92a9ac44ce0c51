package ml

import (
	"errors"
	"fmt"
)

type Variant string

const (
	VariantLinear       Variant = "linear_regression"
	VariantRandomForest Variant = "random_forest"
	VariantDecisionTree Variant = "decision_tree"
)

var (
	ErrNotTrained     = errors.New("model not trained")
	ErrEmptyDataset   = errors.New("features or targets empty")
	ErrSizeMismatch   = errors.New("features and targets size mismatch")
	ErrFeatureWidth   = errors.New("inconsistent feature width")
	ErrUnknownVariant = errors.New("unknown model variant")
	ErrInvalidModel   = errors.New("invalid model structure")
)

// Regressor is the single capability every trained variant exposes.
type Regressor interface {
	Fit(features [][]float64, targets []float64) error
	Predict(features []float64) (float64, error)
	Variant() Variant
}

// Variants lists candidates in insertion order; ties in selection keep the earlier one.
func Variants() []Variant {
	return []Variant{VariantLinear, VariantRandomForest, VariantDecisionTree}
}

func (v Variant) DisplayName() string {
	switch v {
	case VariantLinear:
		return "Linear Regression (GD)"
	case VariantRandomForest:
		return "Random Forest"
	case VariantDecisionTree:
		return "Decision Tree"
	default:
		return string(v)
	}
}

// NewRegressor builds an untrained variant with its fixed hyperparameters.
func NewRegressor(v Variant, seed int64) (Regressor, error) {
	switch v {
	case VariantLinear:
		return NewLinearRegression(), nil
	case VariantRandomForest:
		return NewRandomForest(100, seed), nil
	case VariantDecisionTree:
		return NewDecisionTree(0), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownVariant, v)
	}
}

func checkTrainingInput(features [][]float64, targets []float64) (int, error) {
	if len(features) == 0 || len(targets) == 0 {
		return 0, ErrEmptyDataset
	}
	if len(features) != len(targets) {
		return 0, ErrSizeMismatch
	}
	width := len(features[0])
	if width == 0 {
		return 0, ErrFeatureWidth
	}
	for _, row := range features[1:] {
		if len(row) != width {
			return 0, ErrFeatureWidth
		}
	}
	return width, nil
}
