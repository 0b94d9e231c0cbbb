package optimization

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/aristath/frontier/internal/domain"
	"gonum.org/v1/gonum/mat"
)

const (
	stepTolerance       = 1e-12 // infinity norm below which a step counts as zero
	multiplierTolerance = 1e-12 // bound multipliers above -tol are treated as optimal
	returnSpreadEpsilon = 1e-12 // expected returns closer than this are equal
)

// errSingularKKT is returned when a KKT system cannot be solved
var errSingularKKT = errors.New("singular KKT system")

// qpProblem is: minimize ½wᵀΣw subject to 1ᵀw = 1, optionally μᵀw = target,
// and w ≥ 0 when longOnly.
type qpProblem struct {
	cov       *mat.SymDense
	mu        []float64
	target    float64
	hasTarget bool
	longOnly  bool
}

type qpSolution struct {
	weights    []float64
	iterations int
	converged  bool // false when the iteration or time budget ran out first
}

// ActiveSetSolver is a primal active-set solver for the minimum-variance QP.
// Bounds that are active at the current iterate are held in a working set; each
// iteration solves the equality-constrained subproblem over the free assets and
// either steps toward its minimizer or releases the bound with the most negative
// multiplier.
type ActiveSetSolver struct {
	maxIterations int
}

// NewActiveSetSolver creates a solver with the given iteration budget
func NewActiveSetSolver(maxIterations int) *ActiveSetSolver {
	if maxIterations <= 0 {
		maxIterations = 500
	}
	return &ActiveSetSolver{maxIterations: maxIterations}
}

// Solve returns the minimum-variance weights for p. When the budget or ctx runs
// out, the current feasible iterate is returned with converged=false.
func (s *ActiveSetSolver) Solve(ctx context.Context, p qpProblem) (qpSolution, error) {
	n := len(p.mu)
	if n == 0 {
		return qpSolution{}, domain.NewError(domain.KindInsufficientData, "optimization.ActiveSetSolver.Solve", "no assets")
	}
	if n == 1 {
		if p.hasTarget && math.Abs(p.target-p.mu[0]) > returnSpreadEpsilon*(1+math.Abs(p.mu[0])) {
			return qpSolution{}, domain.NewError(domain.KindInfeasibleConstraints, "optimization.ActiveSetSolver.Solve", "target %.6f unreachable with a single asset", p.target)
		}
		return qpSolution{weights: []float64{1}, converged: true}, nil
	}

	w, seeds, err := initialPoint(p)
	if err != nil {
		return qpSolution{}, err
	}

	// A target at either end of the attainable range pins every other asset
	// to zero; solve the degenerate vertex directly.
	if p.hasTarget && p.longOnly {
		if subset := extremeReturnAssets(p); subset != nil {
			return s.solveSubset(ctx, p, subset)
		}
	}

	allFree := make([]int, n)
	for i := range allFree {
		allFree[i] = i
	}

	if !p.longOnly {
		// Without bounds the problem is a single equality-constrained QP
		step, _, err := solveEqualityQP(p, allFree, gradient(p.cov, w))
		if err != nil {
			return qpSolution{}, err
		}
		for i := range w {
			w[i] += step[i]
		}
		return qpSolution{weights: w, iterations: 1, converged: true}, nil
	}

	// working[i] means the bound w_i ≥ 0 is held active
	working := make([]bool, n)
	for i := range w {
		if w[i] == 0 && !seeds[i] {
			working[i] = true
		}
	}

	for iter := 0; iter < s.maxIterations; iter++ {
		if ctx.Err() != nil {
			return qpSolution{weights: w, iterations: iter}, nil
		}

		free := make([]int, 0, n)
		for i := 0; i < n; i++ {
			if !working[i] {
				free = append(free, i)
			}
		}

		g := gradient(p.cov, w)
		step, nu, err := solveEqualityQP(p, free, g)
		if err != nil {
			return qpSolution{weights: w, iterations: iter}, err
		}

		if infNorm(step) <= stepTolerance {
			release := -1
			minZ := -multiplierTolerance * (1 + infNorm(g))
			for i := 0; i < n; i++ {
				if !working[i] {
					continue
				}
				z := g[i] + nu[0]
				if len(nu) > 1 {
					z += nu[1] * p.mu[i]
				}
				if z < minZ {
					minZ = z
					release = i
				}
			}
			if release < 0 {
				return qpSolution{weights: w, iterations: iter + 1, converged: true}, nil
			}
			working[release] = false
			continue
		}

		alpha := 1.0
		block := -1
		for k, i := range free {
			if step[k] < -stepTolerance {
				if a := -w[i] / step[k]; a < alpha {
					alpha = a
					block = i
				}
			}
		}
		for k, i := range free {
			w[i] += alpha * step[k]
		}
		if block >= 0 {
			w[block] = 0
			working[block] = true
		}
	}

	return qpSolution{weights: w, iterations: s.maxIterations}, nil
}

// extremeReturnAssets returns the assets sharing the lowest or highest expected
// return when the target sits at that end of the range, or nil.
func extremeReturnAssets(p qpProblem) []int {
	lo, hi := p.mu[0], p.mu[0]
	for _, m := range p.mu {
		lo = math.Min(lo, m)
		hi = math.Max(hi, m)
	}
	tol := returnSpreadEpsilon * (1 + math.Abs(hi))
	if hi-lo <= tol {
		return nil
	}

	var subset []int
	for i, m := range p.mu {
		switch {
		case p.target >= hi-tol && m >= hi-tol:
			subset = append(subset, i)
		case p.target <= lo+tol && m <= lo+tol:
			subset = append(subset, i)
		}
	}
	return subset
}

// solveSubset finds the minimum-variance mix of the given assets and gives
// every other asset zero weight.
func (s *ActiveSetSolver) solveSubset(ctx context.Context, p qpProblem, subset []int) (qpSolution, error) {
	sub := qpProblem{
		cov:      mat.NewSymDense(len(subset), nil),
		mu:       make([]float64, len(subset)),
		longOnly: p.longOnly,
	}
	for a, i := range subset {
		sub.mu[a] = p.mu[i]
		for b, j := range subset {
			sub.cov.SetSym(a, b, p.cov.At(i, j))
		}
	}

	sol, err := s.Solve(ctx, sub)
	if err != nil {
		return qpSolution{}, err
	}

	w := make([]float64, len(p.mu))
	for a, i := range subset {
		w[i] = sol.weights[a]
	}
	sol.weights = w
	return sol, nil
}

// initialPoint returns a feasible starting point. With a return target it mixes
// the lowest- and highest-return assets; those two are reported as seeds so they
// start outside the working set even at zero weight.
func initialPoint(p qpProblem) ([]float64, []bool, error) {
	n := len(p.mu)
	w := make([]float64, n)
	seeds := make([]bool, n)

	lo, hi := 0, 0
	for i, m := range p.mu {
		if m < p.mu[lo] {
			lo = i
		}
		if m > p.mu[hi] {
			hi = i
		}
	}
	spread := p.mu[hi] - p.mu[lo]
	tol := returnSpreadEpsilon * (1 + math.Abs(p.mu[hi]))

	if !p.hasTarget || spread <= tol {
		if p.hasTarget && math.Abs(p.target-p.mu[hi]) > tol {
			return nil, nil, domain.NewError(domain.KindInfeasibleConstraints, "optimization.initialPoint", "target %.6f differs from the common expected return %.6f", p.target, p.mu[hi])
		}
		for i := range w {
			w[i] = 1 / float64(n)
		}
		return w, seeds, nil
	}

	if p.longOnly && (p.target < p.mu[lo]-tol || p.target > p.mu[hi]+tol) {
		return nil, nil, domain.NewError(domain.KindInfeasibleConstraints, "optimization.initialPoint", "target %.6f outside attainable range [%.6f, %.6f]", p.target, p.mu[lo], p.mu[hi])
	}

	alpha := (p.target - p.mu[lo]) / spread
	if p.longOnly {
		alpha = math.Min(1, math.Max(0, alpha))
	}
	w[lo] = 1 - alpha
	w[hi] = alpha
	seeds[lo] = true
	seeds[hi] = true
	return w, seeds, nil
}

// solveEqualityQP solves the subproblem over the free assets:
//
//	minimize ½pᵀΣp + gᵀp  subject to  A p = 0
//
// through its KKT system [Σ_FF A_Fᵀ; A_F 0][p; ν] = [-g_F; 0]. The return row
// of A is dropped when every free asset has the same expected return, since it
// is then a multiple of the budget row. Returns the step for each free asset and
// the equality multipliers.
func solveEqualityQP(p qpProblem, free []int, g []float64) ([]float64, []float64, error) {
	k := len(free)
	if k == 0 {
		return nil, nil, fmt.Errorf("%w: no free assets", errSingularKKT)
	}

	rows := 1
	if p.hasTarget && k > 1 {
		lo, hi := p.mu[free[0]], p.mu[free[0]]
		for _, i := range free {
			lo = math.Min(lo, p.mu[i])
			hi = math.Max(hi, p.mu[i])
		}
		if hi-lo > returnSpreadEpsilon*(1+math.Abs(hi)) {
			rows = 2
		}
	}

	size := k + rows
	kkt := mat.NewDense(size, size, nil)
	rhs := mat.NewVecDense(size, nil)
	for a, i := range free {
		for b, j := range free {
			kkt.Set(a, b, p.cov.At(i, j))
		}
		kkt.Set(a, k, 1)
		kkt.Set(k, a, 1)
		if rows == 2 {
			kkt.Set(a, k+1, p.mu[i])
			kkt.Set(k+1, a, p.mu[i])
		}
		rhs.SetVec(a, -g[i])
	}

	var sol mat.VecDense
	if err := sol.SolveVec(kkt, rhs); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", errSingularKKT, err)
	}

	raw := sol.RawVector().Data
	step := make([]float64, k)
	nu := make([]float64, rows)
	copy(step, raw[:k])
	copy(nu, raw[k:])

	for _, v := range raw {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, nil, fmt.Errorf("%w: non-finite solution", errSingularKKT)
		}
	}
	return step, nu, nil
}

// gradient returns Σw
func gradient(cov *mat.SymDense, w []float64) []float64 {
	var g mat.VecDense
	g.MulVec(cov, mat.NewVecDense(len(w), w))
	out := make([]float64, len(w))
	copy(out, g.RawVector().Data)
	return out
}

func infNorm(v []float64) float64 {
	var m float64
	for _, x := range v {
		m = math.Max(m, math.Abs(x))
	}
	return m
}
