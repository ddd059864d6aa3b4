package models

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uniform(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1
	}
	return w
}

// linearData generates y = 0.6*x0 + 0.4*x1 (+ noise scale) with a pure-noise
// third column.
func linearData(n int, noise float64, seed int64) ([][]float64, []float64) {
	rng := rand.New(rand.NewSource(seed))
	X := make([][]float64, n)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		X[i] = []float64{rng.NormFloat64() * 8, rng.NormFloat64() * 8, rng.NormFloat64() * 8}
		y[i] = 0.6*X[i][0] + 0.4*X[i][1] + noise*rng.NormFloat64()
	}
	return X, y
}

func TestOLS_RecoversCoefficients(t *testing.T) {
	X, y := linearData(50, 0, 1)
	fitted, err := OLS{}.Fit(X, y, uniform(50), nil)
	require.NoError(t, err)

	assert.InDelta(t, 0.6, fitted.Weights[0], 1e-9)
	assert.InDelta(t, 0.4, fitted.Weights[1], 1e-9)
	assert.InDelta(t, 0.0, fitted.Weights[2], 1e-9)
	assert.InDelta(t, 0.0, fitted.Intercept, 1e-9)
	assert.True(t, fitted.Converged)
	assert.True(t, fitted.Linear)
}

func TestOLS_SingularDesignFails(t *testing.T) {
	// Two identical columns make the normal equations singular.
	n := 20
	X := make([][]float64, n)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		v := float64(i)
		X[i] = []float64{v, v}
		y[i] = v
	}
	_, err := OLS{}.Fit(X, y, uniform(n), nil)
	require.Error(t, err)
}

func TestConstrained_RecoversSimplexWeights(t *testing.T) {
	X, y := linearData(50, 0, 2)
	fitted, err := NewConstrained().Fit(X, y, uniform(50), nil)
	require.NoError(t, err)

	var sum float64
	for _, w := range fitted.Weights {
		assert.GreaterOrEqual(t, w, 0.0)
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.InDelta(t, 0.6, fitted.Weights[0], 0.02)
	assert.InDelta(t, 0.4, fitted.Weights[1], 0.02)
	assert.InDelta(t, 0.0, fitted.Weights[2], 0.02)
}

func TestPenaltySolver_StaysNearSimplex(t *testing.T) {
	X, y := linearData(50, 0.5, 3)
	model := &Constrained{Solver: &PenaltySolver{}}
	fitted, err := model.Fit(X, y, uniform(50), nil)
	require.NoError(t, err)

	var sum float64
	for _, w := range fitted.Weights {
		assert.GreaterOrEqual(t, w, 0.0)
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestProjectToSimplex(t *testing.T) {
	tests := []struct {
		name string
		in   []float64
		want []float64
	}{
		{"already feasible", []float64{0.3, 0.7}, []float64{0.3, 0.7}},
		{"negative clipped", []float64{1.2, -0.2}, []float64{1, 0}},
		{"uniform from zeros", []float64{0, 0}, []float64{0.5, 0.5}},
		{"oversized scaled", []float64{2, 2}, []float64{0.5, 0.5}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := projectToSimplex(tc.in)
			require.Len(t, got, len(tc.want))
			for i := range got {
				assert.InDelta(t, tc.want[i], got[i], 1e-9)
			}
		})
	}
}

func TestLasso_ShrinksNoiseCoefficient(t *testing.T) {
	X, y := linearData(50, 1.0, 4)
	fitted, err := fitElasticNet(X, y, uniform(50), 1.0, 1.0)
	require.NoError(t, err)

	// The pure-noise column should be driven toward zero much harder than
	// the informative columns.
	assert.Less(t, math.Abs(fitted.Weights[2]), math.Abs(fitted.Weights[0]))
	assert.Greater(t, fitted.Weights[0], 0.3)
}

func TestElasticNet_TinyAlphaMatchesOLS(t *testing.T) {
	X, y := linearData(50, 0, 5)
	fitted, err := fitElasticNet(X, y, uniform(50), 1e-9, 0.5)
	require.NoError(t, err)

	assert.InDelta(t, 0.6, fitted.Weights[0], 1e-4)
	assert.InDelta(t, 0.4, fitted.Weights[1], 1e-4)
}

func TestRidge_CVSelectsSmallAlphaOnCleanData(t *testing.T) {
	X, y := linearData(60, 0, 6)
	fitted, err := Ridge{}.Fit(X, y, uniform(60), nil)
	require.NoError(t, err)

	// Noise-free linear data: ridge should stay close to the truth.
	assert.InDelta(t, 0.6, fitted.Weights[0], 0.05)
	assert.InDelta(t, 0.4, fitted.Weights[1], 0.05)
}

func TestExpandingFolds(t *testing.T) {
	folds, err := expandingFolds(50, 4)
	require.NoError(t, err)
	require.Len(t, folds, 4)

	prevEnd := 0
	for _, f := range folds {
		assert.Greater(t, f.TestEnd, f.TrainEnd)
		assert.GreaterOrEqual(t, f.TrainEnd, prevEnd)
		prevEnd = f.TestEnd
	}
	assert.Equal(t, 50, folds[len(folds)-1].TestEnd)
	// First train window holds at least half the sample.
	assert.GreaterOrEqual(t, folds[0].TrainEnd, 25)
}

func TestExpandingFolds_TooFewObservations(t *testing.T) {
	_, err := expandingFolds(4, 4)
	require.Error(t, err)
}

func TestRandomForest_ImportanceFavorsInformativeFeature(t *testing.T) {
	X, y := linearData(50, 0.1, 7)
	fitted, err := RandomForest{}.Fit(X, y, uniform(50), rand.New(rand.NewSource(11)))
	require.NoError(t, err)

	var sum float64
	for _, w := range fitted.Weights {
		assert.GreaterOrEqual(t, w, 0.0)
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.Greater(t, fitted.Weights[0], fitted.Weights[2])
}

func TestRandomForest_Deterministic(t *testing.T) {
	X, y := linearData(50, 0.1, 8)
	a, err := RandomForest{}.Fit(X, y, uniform(50), rand.New(rand.NewSource(3)))
	require.NoError(t, err)
	b, err := RandomForest{}.Fit(X, y, uniform(50), rand.New(rand.NewSource(3)))
	require.NoError(t, err)
	assert.Equal(t, a.Weights, b.Weights)
}

func TestGradientBoosting_FitsInSample(t *testing.T) {
	X, y := linearData(50, 0, 9)
	fitted, err := GradientBoosting{}.Fit(X, y, uniform(50), nil)
	require.NoError(t, err)

	predicted := make([]float64, len(y))
	for i, row := range X {
		predicted[i] = fitted.Predict(row)
	}
	r2 := rSquared(predicted, y, uniform(50))
	assert.Greater(t, r2, 0.8)
}

func TestRSquared_NegativePreserved(t *testing.T) {
	actual := []float64{1, 2, 3, 4}
	predicted := []float64{4, 3, 2, 1}
	r2 := rSquared(predicted, actual, uniform(4))
	assert.Less(t, r2, 0.0)
}

func TestRSquared_DegenerateActualsAreNaN(t *testing.T) {
	actual := []float64{1, 1, 1}
	predicted := []float64{1, 1, 1}
	assert.True(t, math.IsNaN(rSquared(predicted, actual, uniform(3))))
}
