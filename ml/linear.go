package ml

import (
	"fmt"

	"gonum.org/v1/gonum/stat"
)

// LinearRegression is fitted with batch gradient descent on standardized
// features; coefficients are stored in raw feature units.
type LinearRegression struct {
	LearningRate  float64   `json:"learning_rate"`
	MaxIter       int       `json:"max_iter"`
	Tol           float64   `json:"tol"`
	NIterNoChange int       `json:"n_iter_no_change"`
	Intercept     float64   `json:"intercept"`
	Coef          []float64 `json:"coef"`
	Iterations    int       `json:"n_iter"`
}

func NewLinearRegression() *LinearRegression {
	return &LinearRegression{
		LearningRate:  0.1,
		MaxIter:       1000,
		Tol:           1e-7,
		NIterNoChange: 5,
	}
}

func (lr *LinearRegression) Variant() Variant { return VariantLinear }

func (lr *LinearRegression) Fit(features [][]float64, targets []float64) error {
	width, err := checkTrainingInput(features, targets)
	if err != nil {
		return err
	}
	if lr.LearningRate <= 0 {
		lr.LearningRate = 0.1
	}
	if lr.MaxIter <= 0 {
		lr.MaxIter = 1000
	}
	if lr.NIterNoChange <= 0 {
		lr.NIterNoChange = 5
	}

	n := len(features)
	means := make([]float64, width)
	scales := make([]float64, width)
	column := make([]float64, n)
	for j := 0; j < width; j++ {
		for i := range features {
			column[i] = features[i][j]
		}
		means[j], scales[j] = stat.MeanStdDev(column, nil)
		if scales[j] == 0 {
			scales[j] = 1
		}
	}

	z := make([][]float64, n)
	for i, row := range features {
		z[i] = make([]float64, width)
		for j, v := range row {
			z[i][j] = (v - means[j]) / scales[j]
		}
	}

	weights := make([]float64, width)
	var bias float64
	residuals := make([]float64, n)
	gradW := make([]float64, width)

	bestLoss := -1.0
	noImprove := 0
	iter := 0
	for iter < lr.MaxIter {
		var loss, gradB float64
		for j := range gradW {
			gradW[j] = 0
		}
		for i := range z {
			pred := bias
			for j, v := range z[i] {
				pred += weights[j] * v
			}
			residuals[i] = pred - targets[i]
			loss += residuals[i] * residuals[i]
			gradB += residuals[i]
			for j, v := range z[i] {
				gradW[j] += residuals[i] * v
			}
		}
		loss /= 2 * float64(n)
		iter++

		if bestLoss >= 0 && loss > bestLoss-lr.Tol {
			noImprove++
		} else {
			noImprove = 0
		}
		if bestLoss < 0 || loss < bestLoss {
			bestLoss = loss
		}
		if noImprove >= lr.NIterNoChange {
			break
		}

		bias -= lr.LearningRate * gradB / float64(n)
		for j := range weights {
			weights[j] -= lr.LearningRate * gradW[j] / float64(n)
		}
	}

	lr.Coef = make([]float64, width)
	lr.Intercept = bias
	for j := range weights {
		lr.Coef[j] = weights[j] / scales[j]
		lr.Intercept -= weights[j] * means[j] / scales[j]
	}
	lr.Iterations = iter
	return nil
}

func (lr *LinearRegression) Predict(features []float64) (float64, error) {
	if len(lr.Coef) == 0 {
		return 0, ErrNotTrained
	}
	if len(features) != len(lr.Coef) {
		return 0, ErrFeatureWidth
	}
	out := lr.Intercept
	for j, v := range features {
		out += lr.Coef[j] * v
	}
	return out, nil
}

func (lr *LinearRegression) validate() error {
	if len(lr.Coef) == 0 {
		return fmt.Errorf("%w: no coefficients", ErrInvalidModel)
	}
	return nil
}
