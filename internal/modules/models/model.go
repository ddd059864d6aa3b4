// Package models fits the model families that map asset returns to the fund
// return: OLS, constrained least squares, regularized linear models, and
// tree ensembles.
package models

import (
	"math/rand"
)

// Fitted is a trained model ready to predict fund returns from a row of
// asset returns.
type Fitted struct {
	// Weights is the per-asset weight vector in dataset column order. For
	// tree ensembles these are normalized feature importances.
	Weights   []float64
	Intercept float64
	Predict   func(row []float64) float64
	Converged bool

	// Linear marks the linear family, for which AIC/BIC are reported.
	Linear bool
	// Params is the effective parameter count used by AIC/BIC.
	Params int
}

// Model is one model family. Fit trains on the given rows with per-sample
// weights; rng drives any stochastic component and makes fits reproducible.
type Model interface {
	Name() string
	Fit(X [][]float64, y, w []float64, rng *rand.Rand) (*Fitted, error)
}

func linearPredictor(coefs []float64, intercept float64) func(row []float64) float64 {
	return func(row []float64) float64 {
		v := intercept
		for j, c := range coefs {
			v += c * row[j]
		}
		return v
	}
}

func subset(X [][]float64, y, w []float64, from, to int) ([][]float64, []float64, []float64) {
	return X[from:to], y[from:to], w[from:to]
}
