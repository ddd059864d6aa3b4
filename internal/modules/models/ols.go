package models

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// OLS is unconstrained weighted least squares with an intercept.
type OLS struct{}

func (OLS) Name() string { return "OLS" }

func (OLS) Fit(X [][]float64, y, w []float64, _ *rand.Rand) (*Fitted, error) {
	coefs, intercept, err := weightedLeastSquares(X, y, w, 0)
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

// weightedLeastSquares solves the weighted normal equations on centered
// variables, with an optional ridge penalty on the coefficients (the
// intercept is never penalized). A singular system returns an error.
func weightedLeastSquares(X [][]float64, y, w []float64, ridgeAlpha float64) (coefs []float64, intercept float64, err error) {
	n := len(y)
	if n == 0 || len(X) != n {
		return nil, 0, fmt.Errorf("mismatched design matrix: %d rows, %d targets", len(X), n)
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
		return nil, 0, fmt.Errorf("zero total sample weight")
	}
	ym /= sumW
	for j := range xm {
		xm[j] /= sumW
	}

	a := mat.NewSymDense(p, nil)
	b := mat.NewVecDense(p, nil)
	for i := 0; i < n; i++ {
		dy := y[i] - ym
		for j := 0; j < p; j++ {
			dj := X[i][j] - xm[j]
			b.SetVec(j, b.AtVec(j)+w[i]*dj*dy)
			for k := j; k < p; k++ {
				a.SetSym(j, k, a.At(j, k)+w[i]*dj*(X[i][k]-xm[k]))
			}
		}
	}
	if ridgeAlpha > 0 {
		for j := 0; j < p; j++ {
			a.SetSym(j, j, a.At(j, j)+ridgeAlpha)
		}
	}

	var beta mat.VecDense
	if err := beta.SolveVec(a, b); err != nil {
		return nil, 0, fmt.Errorf("normal equations are singular: %w", err)
	}

	coefs = make([]float64, p)
	intercept = ym
	for j := 0; j < p; j++ {
		coefs[j] = beta.AtVec(j)
		intercept -= coefs[j] * xm[j]
	}
	return coefs, intercept, nil
}
