package ml

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
)

func MeanSquaredError(actual, predicted []float64) (float64, error) {
	if len(actual) == 0 {
		return 0, errors.New("no values to score")
	}
	if len(actual) != len(predicted) {
		return 0, errors.New("actual and predicted size mismatch")
	}
	dist := floats.Distance(actual, predicted, 2)
	return dist * dist / float64(len(actual)), nil
}

// Evaluate predicts every row and scores the result against targets.
func Evaluate(model Regressor, features [][]float64, targets []float64) (float64, error) {
	predicted := make([]float64, len(features))
	for i, row := range features {
		value, err := model.Predict(row)
		if err != nil {
			return 0, err
		}
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return 0, errors.New("non-finite prediction")
		}
		predicted[i] = value
	}
	return MeanSquaredError(targets, predicted)
}
