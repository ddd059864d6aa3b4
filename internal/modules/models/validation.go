package models

import (
	"fmt"
	"math"
	"math/rand"
)

// fold is one expanding-window split: train on [0, TrainEnd), test on
// [TrainEnd, TestEnd). Time order is always respected; there is no shuffling.
type fold struct {
	TrainEnd int
	TestEnd  int
}

const (
	defaultValidationFolds = 4
	minTrainFraction       = 0.5
)

// expandingFolds splits n chronological observations into up to k folds with
// growing train windows. Returns an error when n is too small to form even a
// single fold, which callers treat as "this family's cross-validation needs
// more months than available".
func expandingFolds(n, k int) ([]fold, error) {
	minTrain := int(math.Ceil(float64(n) * minTrainFraction))
	if minTrain < 4 {
		minTrain = 4
	}
	testSpan := n - minTrain
	if testSpan < 1 {
		return nil, fmt.Errorf("need more than %d observations for expanding-window validation, have %d", minTrain, n)
	}
	if k > testSpan {
		k = testSpan
	}

	folds := make([]fold, 0, k)
	for i := 0; i < k; i++ {
		trainEnd := minTrain + i*testSpan/k
		testEnd := minTrain + (i+1)*testSpan/k
		if testEnd <= trainEnd {
			continue
		}
		folds = append(folds, fold{TrainEnd: trainEnd, TestEnd: testEnd})
	}
	return folds, nil
}

// validatedR2 computes out-of-sample R-squared by refitting the model on each
// expanding train window and pooling the test predictions. Negative values
// are preserved; they signal a fit worse than predicting the mean.
func validatedR2(m Model, X [][]float64, y, w []float64, rng *rand.Rand) (float64, error) {
	folds, err := expandingFolds(len(y), defaultValidationFolds)
	if err != nil {
		return 0, err
	}

	var predicted, actual, weights []float64
	for _, f := range folds {
		trainX, trainY, trainW := subset(X, y, w, 0, f.TrainEnd)
		fitted, err := m.Fit(trainX, trainY, trainW, rng)
		if err != nil {
			return 0, fmt.Errorf("validation refit failed: %w", err)
		}
		for i := f.TrainEnd; i < f.TestEnd; i++ {
			predicted = append(predicted, fitted.Predict(X[i]))
			actual = append(actual, y[i])
			weights = append(weights, w[i])
		}
	}
	return rSquared(predicted, actual, weights), nil
}

// rSquared is the weighted coefficient of determination of predictions
// against actuals. Degenerate actuals (zero variance) yield NaN, which the
// caller maps to an explicit null.
func rSquared(predicted, actual, weights []float64) float64 {
	var sumW, mean float64
	for i, a := range actual {
		sumW += weights[i]
		mean += weights[i] * a
	}
	if sumW == 0 {
		return math.NaN()
	}
	mean /= sumW

	var ssRes, ssTot float64
	for i, a := range actual {
		ssRes += weights[i] * (a - predicted[i]) * (a - predicted[i])
		ssTot += weights[i] * (a - mean) * (a - mean)
	}
	if ssTot == 0 {
		return math.NaN()
	}
	return 1 - ssRes/ssTot
}
