package models

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/optimize"
)

// ConstrainedSolver minimizes the weighted squared tracking error of
// X*beta against y subject to beta >= 0 and sum(beta) = 1. Solvers are
// pluggable so an alternative can be substituted without touching the
// ensembling layer.
type ConstrainedSolver interface {
	Name() string
	Solve(X [][]float64, y, w, initial []float64) (weights []float64, converged bool, err error)
}

// Constrained is the non-negative, sum-to-one least squares model.
type Constrained struct {
	Solver ConstrainedSolver
}

// NewConstrained builds the constrained model with the default projected
// gradient solver.
func NewConstrained() *Constrained {
	return &Constrained{Solver: &ProjectedGradientSolver{MaxIterations: 2000, Tolerance: 1e-10}}
}

func (c *Constrained) Name() string { return "Constrained" }

func (c *Constrained) Fit(X [][]float64, y, w []float64, _ *rand.Rand) (*Fitted, error) {
	p := len(X[0])
	initial := make([]float64, p)
	for j := range initial {
		initial[j] = 1 / float64(p)
	}

	weights, converged, err := c.Solver.Solve(X, y, w, initial)
	if err != nil {
		return nil, fmt.Errorf("%s solver: %w", c.Solver.Name(), err)
	}
	// Whatever the solver produced, the contract is a point on the simplex.
	weights = projectToSimplex(weights)

	return &Fitted{
		Weights:   weights,
		Predict:   linearPredictor(weights, 0),
		Converged: converged,
		Linear:    true,
		Params:    p,
	}, nil
}

// ProjectedGradientSolver runs gradient descent on the weighted MSE with a
// Euclidean projection onto the probability simplex after each step.
type ProjectedGradientSolver struct {
	MaxIterations int
	Tolerance     float64
}

func (s *ProjectedGradientSolver) Name() string { return "projected_gradient" }

func (s *ProjectedGradientSolver) Solve(X [][]float64, y, w, initial []float64) ([]float64, bool, error) {
	n := len(y)
	p := len(X[0])
	if n == 0 {
		return nil, false, fmt.Errorf("empty dataset")
	}

	var sumW float64
	for _, wi := range w {
		sumW += wi
	}
	if sumW == 0 {
		return nil, false, fmt.Errorf("zero total sample weight")
	}

	// Gram matrix A = X'WX / sumW and moment vector b = X'Wy / sumW.
	a := make([][]float64, p)
	b := make([]float64, p)
	for j := 0; j < p; j++ {
		a[j] = make([]float64, p)
	}
	for i := 0; i < n; i++ {
		for j := 0; j < p; j++ {
			b[j] += w[i] * X[i][j] * y[i] / sumW
			for k := 0; k < p; k++ {
				a[j][k] += w[i] * X[i][j] * X[i][k] / sumW
			}
		}
	}

	// trace(A) bounds the largest eigenvalue of the PSD Gram matrix, so
	// 1/(2*trace) is a safe step size.
	var trace float64
	for j := 0; j < p; j++ {
		trace += a[j][j]
	}
	if trace <= 0 {
		return nil, false, fmt.Errorf("degenerate design matrix")
	}
	step := 1 / (2 * trace)

	x := projectToSimplex(append([]float64(nil), initial...))
	grad := make([]float64, p)
	for iter := 0; iter < s.MaxIterations; iter++ {
		for j := 0; j < p; j++ {
			grad[j] = -2 * b[j]
			for k := 0; k < p; k++ {
				grad[j] += 2 * a[j][k] * x[k]
			}
		}
		next := make([]float64, p)
		for j := 0; j < p; j++ {
			next[j] = x[j] - step*grad[j]
		}
		next = projectToSimplex(next)

		var delta float64
		for j := 0; j < p; j++ {
			delta = math.Max(delta, math.Abs(next[j]-x[j]))
		}
		x = next
		if delta < s.Tolerance {
			return x, true, nil
		}
	}
	return x, false, nil
}

// PenaltySolver reformulates the constraints as quadratic penalties and
// minimizes with gonum, falling back from BFGS to Nelder-Mead when the first
// method does not converge.
type PenaltySolver struct {
	PenaltyWeight float64
}

func (s *PenaltySolver) Name() string { return "penalty" }

func (s *PenaltySolver) Solve(X [][]float64, y, w, initial []float64) ([]float64, bool, error) {
	n := len(y)
	p := len(X[0])
	penalty := s.PenaltyWeight
	if penalty == 0 {
		penalty = 1000
	}

	var sumW float64
	for _, wi := range w {
		sumW += wi
	}
	if sumW == 0 {
		return nil, false, fmt.Errorf("zero total sample weight")
	}

	clamp01 := func(x []float64) []float64 {
		out := make([]float64, len(x))
		for j := range x {
			out[j] = math.Max(0, math.Min(1, x[j]))
		}
		return out
	}

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			xc := clamp01(x)
			var mse, sum float64
			for i := 0; i < n; i++ {
				pred := 0.0
				for j := 0; j < p; j++ {
					pred += xc[j] * X[i][j]
				}
				mse += w[i] * (pred - y[i]) * (pred - y[i]) / sumW
			}
			for j := 0; j < p; j++ {
				sum += xc[j]
			}
			return mse + penalty*(sum-1)*(sum-1)
		},
	}

	settings := &optimize.Settings{}
	result, err := optimize.Minimize(problem, append([]float64(nil), initial...), settings, &optimize.BFGS{})
	if err != nil || !acceptableStatus(result.Status) {
		result, err = optimize.Minimize(problem, append([]float64(nil), initial...), settings, &optimize.NelderMead{})
		if err != nil {
			return nil, false, fmt.Errorf("optimization failed: %w", err)
		}
	}

	return clamp01(result.X), acceptableStatus(result.Status), nil
}

func acceptableStatus(status optimize.Status) bool {
	switch status {
	case optimize.Success, optimize.GradientThreshold, optimize.FunctionConvergence:
		return true
	}
	return false
}

// projectToSimplex is the Euclidean projection onto
// {x : x_j >= 0, sum x = 1}. Any infeasible point maps to its nearest
// feasible point.
func projectToSimplex(v []float64) []float64 {
	p := len(v)
	sorted := append([]float64(nil), v...)
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))

	var cumsum, theta float64
	for j := 0; j < p; j++ {
		cumsum += sorted[j]
		if sorted[j]-(cumsum-1)/float64(j+1) > 0 {
			theta = (cumsum - 1) / float64(j+1)
		}
	}

	out := make([]float64, p)
	for j := 0; j < p; j++ {
		out[j] = math.Max(0, v[j]-theta)
	}
	return out
}
