package optimization

import (
	"context"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// MVOptimizer solves the minimum-variance problem with a quadratic penalty on
// the equality constraints and a projection onto the bounds. It is used when
// the KKT systems of the active-set solver are singular; its results are
// approximate and always reported as not converged.
type MVOptimizer struct {
	maxIterations int
	penaltyWeight float64
}

// NewMVOptimizer creates a penalty-method optimizer
func NewMVOptimizer(maxIterations int) *MVOptimizer {
	if maxIterations <= 0 {
		maxIterations = 500
	}
	return &MVOptimizer{
		maxIterations: maxIterations,
		penaltyWeight: 1000.0,
	}
}

// Solve minimizes w'Σw + ρ(Σw - 1)² [+ ρ(μ'w - target)²] over the projected
// weights, trying BFGS first and NelderMead when BFGS fails outright.
func (mvo *MVOptimizer) Solve(ctx context.Context, p qpProblem) (qpSolution, error) {
	n := len(p.mu)
	if n == 0 {
		return qpSolution{}, fmt.Errorf("no assets provided")
	}

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			xProj := mvo.project(x, p.longOnly)

			obj := mat.Inner(mat.NewVecDense(n, xProj), p.cov, mat.NewVecDense(n, xProj))

			sum := 0.0
			for i := 0; i < n; i++ {
				sum += xProj[i]
			}
			obj += mvo.penaltyWeight * (sum - 1.0) * (sum - 1.0)

			if p.hasTarget {
				ret := portfolioReturn(xProj, p.mu)
				obj += mvo.penaltyWeight * (ret - p.target) * (ret - p.target)
			}
			return obj
		},
		Grad: func(grad, x []float64) {
			xProj := mvo.project(x, p.longOnly)

			for i := 0; i < n; i++ {
				grad[i] = 0
				for j := 0; j < n; j++ {
					grad[i] += 2 * p.cov.At(i, j) * xProj[j]
				}
			}

			sum := 0.0
			for i := 0; i < n; i++ {
				sum += xProj[i]
			}
			for i := 0; i < n; i++ {
				grad[i] += 2 * mvo.penaltyWeight * (sum - 1.0)
			}

			if p.hasTarget {
				ret := portfolioReturn(xProj, p.mu)
				for i := 0; i < n; i++ {
					grad[i] += 2 * mvo.penaltyWeight * (ret - p.target) * p.mu[i]
				}
			}
		},
	}

	initial, _, err := initialPoint(p)
	if err != nil {
		return qpSolution{}, err
	}

	settings := &optimize.Settings{MajorIterations: mvo.maxIterations}
	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return qpSolution{weights: mvo.normalize(initial, p.longOnly)}, nil
		}
		settings.Runtime = remaining
	}

	result, err := optimize.Minimize(problem, initial, settings, &optimize.BFGS{})
	if err != nil || result == nil || !finite(result.X) {
		result, err = optimize.Minimize(problem, initial, settings, &optimize.NelderMead{})
		if result == nil || !finite(result.X) {
			if err == nil {
				err = fmt.Errorf("no finite solution")
			}
			return qpSolution{}, fmt.Errorf("penalty optimization failed: %w", err)
		}
	}

	return qpSolution{
		weights:    mvo.normalize(result.X, p.longOnly),
		iterations: result.MajorIterations,
	}, nil
}

// project clamps weights to [0, 1] in long-only mode
func (mvo *MVOptimizer) project(x []float64, longOnly bool) []float64 {
	if !longOnly {
		return x
	}
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = math.Max(0.0, math.Min(1.0, v))
	}
	return out
}

// normalize projects and rescales weights so they sum to 1
func (mvo *MVOptimizer) normalize(x []float64, longOnly bool) []float64 {
	w := mvo.project(x, longOnly)
	out := make([]float64, len(w))
	sum := 0.0
	for _, v := range w {
		sum += v
	}
	if math.Abs(sum) < 1e-10 {
		for i := range out {
			out[i] = 1.0 / float64(len(out))
		}
		return out
	}
	for i, v := range w {
		out[i] = v / sum
	}
	return out
}

func finite(x []float64) bool {
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return len(x) > 0
}
