package models

import (
	"fmt"
	"math"
	"math/rand"
)

// alphaGrid spans 1e-6 through 1e2 on a log scale.
var alphaGrid = []float64{1e-6, 1e-5, 1e-4, 1e-3, 1e-2, 1e-1, 1, 10, 100}

// l1RatioGrid is the ElasticNet mixing grid.
var l1RatioGrid = []float64{0.1, 0.5, 0.7, 0.9}

// Ridge is weighted least squares with an L2 penalty. The penalty strength is
// chosen by expanding-window cross-validation, never random K-fold, so the
// time order of observations is respected.
type Ridge struct{}

func (Ridge) Name() string { return "Ridge" }

func (Ridge) Fit(X [][]float64, y, w []float64, _ *rand.Rand) (*Fitted, error) {
	alpha, err := selectByCV(X, y, w, alphaCandidates(), func(h hyperparams, X [][]float64, y, w []float64) (*Fitted, error) {
		return fitRidge(X, y, w, h.alpha)
	})
	if err != nil {
		return nil, err
	}
	return fitRidge(X, y, w, alpha.alpha)
}

func fitRidge(X [][]float64, y, w []float64, alpha float64) (*Fitted, error) {
	coefs, intercept, err := weightedLeastSquares(X, y, w, alpha)
	if err != nil {
		return nil, err
	}
	return &Fitted{
		Weights:   coefs,
		Intercept: intercept,
		Predict:   linearPredictor(coefs, intercept),
		Converged: true,
		Linear:    true,
		Params:    len(coefs) + 1,
	}, nil
}

// Lasso is the L1-penalized model, fit by coordinate descent.
type Lasso struct{}

func (Lasso) Name() string { return "Lasso" }

func (Lasso) Fit(X [][]float64, y, w []float64, _ *rand.Rand) (*Fitted, error) {
	best, err := selectByCV(X, y, w, alphaCandidates(), func(h hyperparams, X [][]float64, y, w []float64) (*Fitted, error) {
		return fitElasticNet(X, y, w, h.alpha, 1.0)
	})
	if err != nil {
		return nil, err
	}
	return fitElasticNet(X, y, w, best.alpha, 1.0)
}

// ElasticNet mixes L1 and L2 penalties; both the strength and the mix are
// cross-validated.
type ElasticNet struct{}

func (ElasticNet) Name() string { return "ElasticNet" }

func (ElasticNet) Fit(X [][]float64, y, w []float64, _ *rand.Rand) (*Fitted, error) {
	var candidates []hyperparams
	for _, alpha := range alphaGrid {
		for _, l1 := range l1RatioGrid {
			candidates = append(candidates, hyperparams{alpha: alpha, l1Ratio: l1})
		}
	}
	best, err := selectByCV(X, y, w, candidates, func(h hyperparams, X [][]float64, y, w []float64) (*Fitted, error) {
		return fitElasticNet(X, y, w, h.alpha, h.l1Ratio)
	})
	if err != nil {
		return nil, err
	}
	return fitElasticNet(X, y, w, best.alpha, best.l1Ratio)
}

const (
	coordinateDescentMaxIter = 1000
	coordinateDescentTol     = 1e-7
)

// fitElasticNet minimizes
//
//	(1/2n_w) sum w_i (y_i - b0 - x_i'b)^2 + alpha*l1*|b|_1 + (alpha*(1-l1)/2)*|b|_2^2
//
// by cyclic coordinate descent on weighted, centered variables.
func fitElasticNet(X [][]float64, y, w []float64, alpha, l1Ratio float64) (*Fitted, error) {
	n := len(y)
	if n == 0 || len(X) != n {
		return nil, fmt.Errorf("mismatched design matrix: %d rows, %d targets", len(X), n)
	}
	p := len(X[0])

	var sumW float64
	xm := make([]float64, p)
	var ym float64
	for i := 0; i < n; i++ {
		sumW += w[i]
		ym += w[i] * y[i]
		for j := 0; j < p; j++ {
			xm[j] += w[i] * X[i][j]
		}
	}
	if sumW == 0 {
		return nil, fmt.Errorf("zero total sample weight")
	}
	ym /= sumW
	for j := range xm {
		xm[j] /= sumW
	}

	// Weighted mean square per column; zero-variance columns keep a zero
	// coefficient.
	colMS := make([]float64, p)
	for i := 0; i < n; i++ {
		for j := 0; j < p; j++ {
			d := X[i][j] - xm[j]
			colMS[j] += w[i] * d * d / sumW
		}
	}

	l1Penalty := alpha * l1Ratio
	l2Penalty := alpha * (1 - l1Ratio)

	beta := make([]float64, p)
	resid := make([]float64, n)
	for i := 0; i < n; i++ {
		resid[i] = y[i] - ym
	}

	converged := false
	for iter := 0; iter < coordinateDescentMaxIter; iter++ {
		var maxChange float64
		for j := 0; j < p; j++ {
			if colMS[j] == 0 {
				continue
			}
			var rho float64
			for i := 0; i < n; i++ {
				xc := X[i][j] - xm[j]
				rho += w[i] * xc * (resid[i] + xc*beta[j]) / sumW
			}
			updated := softThreshold(rho, l1Penalty) / (colMS[j] + l2Penalty)
			if updated != beta[j] {
				delta := updated - beta[j]
				for i := 0; i < n; i++ {
					resid[i] -= delta * (X[i][j] - xm[j])
				}
				maxChange = math.Max(maxChange, math.Abs(delta))
				beta[j] = updated
			}
		}
		if maxChange < coordinateDescentTol {
			converged = true
			break
		}
	}

	intercept := ym
	for j := 0; j < p; j++ {
		intercept -= beta[j] * xm[j]
	}

	return &Fitted{
		Weights:   beta,
		Intercept: intercept,
		Predict:   linearPredictor(beta, intercept),
		Converged: converged,
		Linear:    true,
		Params:    nonZero(beta) + 1,
	}, nil
}

func softThreshold(v, threshold float64) float64 {
	switch {
	case v > threshold:
		return v - threshold
	case v < -threshold:
		return v + threshold
	}
	return 0
}

func nonZero(values []float64) int {
	count := 0
	for _, v := range values {
		if v != 0 {
			count++
		}
	}
	return count
}

type hyperparams struct {
	alpha   float64
	l1Ratio float64
}

func alphaCandidates() []hyperparams {
	out := make([]hyperparams, len(alphaGrid))
	for i, a := range alphaGrid {
		out[i] = hyperparams{alpha: a}
	}
	return out
}

// selectByCV scores each candidate by weighted out-of-sample MSE over
// expanding-window folds and returns the best. An error means the sample is
// too small for this family's cross-validation.
func selectByCV(
	X [][]float64,
	y, w []float64,
	candidates []hyperparams,
	fit func(h hyperparams, X [][]float64, y, w []float64) (*Fitted, error),
) (hyperparams, error) {
	folds, err := expandingFolds(len(y), defaultValidationFolds)
	if err != nil {
		return hyperparams{}, err
	}

	best := candidates[0]
	bestScore := math.Inf(1)
	for _, h := range candidates {
		var sse, sw float64
		usable := true
		for _, f := range folds {
			trainX, trainY, trainW := subset(X, y, w, 0, f.TrainEnd)
			fitted, err := fit(h, trainX, trainY, trainW)
			if err != nil {
				usable = false
				break
			}
			for i := f.TrainEnd; i < f.TestEnd; i++ {
				d := y[i] - fitted.Predict(X[i])
				sse += w[i] * d * d
				sw += w[i]
			}
		}
		if !usable || sw == 0 {
			continue
		}
		if score := sse / sw; score < bestScore {
			bestScore = score
			best = h
		}
	}
	if math.IsInf(bestScore, 1) {
		return hyperparams{}, fmt.Errorf("no hyperparameter candidate produced a usable fit")
	}
	return best, nil
}
