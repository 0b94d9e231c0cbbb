package optimization

import (
	"context"
	"errors"
	"math"
	"sort"

	"github.com/aristath/frontier/internal/domain"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
)

// flatFrontierSpan is the return spread below which the frontier collapses to
// the minimum-variance point
const flatFrontierSpan = 1e-12

// FrontierPoint is one efficient portfolio
type FrontierPoint struct {
	Return  float64             `json:"return"`
	Risk    float64             `json:"risk"`
	Sharpe  float64             `json:"sharpe"`
	Sortino *float64            `json:"sortino,omitempty"`
	Weights domain.WeightVector `json:"weights"`

	// Riskless marks a point whose volatility is effectively zero; its
	// Sharpe is reported as 0.
	Riskless bool `json:"riskless,omitempty"`

	weights []float64 // aligned with the solve's symbol order
	excess  float64   // return over the risk-free rate
	partial bool
}

// Frontier is the set of non-dominated points, sorted by ascending risk
type Frontier struct {
	Points  []FrontierPoint
	Dropped int  // grid targets with no feasible portfolio
	Partial bool // some point did not certify optimality
}

type qpSolver interface {
	Solve(ctx context.Context, p qpProblem) (qpSolution, error)
}

// FrontierSolver traces the efficient frontier over a grid of return targets
type FrontierSolver struct {
	points   int
	qp       qpSolver
	fallback *MVOptimizer
	log      zerolog.Logger
}

// NewFrontierSolver creates a solver for a grid of the given size
func NewFrontierSolver(points, maxIterations int, log zerolog.Logger) *FrontierSolver {
	if points < 2 {
		points = 20
	}
	return &FrontierSolver{
		points:   points,
		qp:       NewActiveSetSolver(maxIterations),
		fallback: NewMVOptimizer(maxIterations),
		log:      log.With().Str("component", "frontier_solver").Logger(),
	}
}

// Build returns the efficient frontier for mu and cov. The grid runs from the
// minimum-variance portfolio's return to the largest expected return. When ctx
// expires the points solved so far are returned and the frontier is partial.
func (fs *FrontierSolver) Build(ctx context.Context, symbols []string, mu []float64, cov *mat.SymDense, longOnly bool) (*Frontier, error) {
	n := len(mu)
	if n == 0 || len(symbols) != n || cov.SymmetricDim() != n {
		return nil, domain.NewError(domain.KindInvalidRequest, "optimization.FrontierSolver.Build", "dimension mismatch: %d symbols, %d returns, %d covariance", len(symbols), n, cov.SymmetricDim())
	}

	frontier := &Frontier{}

	minVar, err := fs.solvePoint(ctx, qpProblem{cov: cov, mu: mu, longOnly: longOnly}, symbols)
	if err != nil {
		return nil, err
	}
	frontier.Partial = minVar.partial

	rMin := minVar.Return
	rMax := mu[0]
	for _, m := range mu[1:] {
		rMax = math.Max(rMax, m)
	}

	candidates := []FrontierPoint{minVar}
	if n > 1 && rMax-rMin > flatFrontierSpan {
		step := (rMax - rMin) / float64(fs.points-1)
		for i := 1; i < fs.points; i++ {
			if ctx.Err() != nil {
				frontier.Partial = true
				fs.log.Warn().Int("solved", i).Int("grid", fs.points).Msg("Frontier budget exhausted")
				break
			}

			target := rMin + float64(i)*step
			if i == fs.points-1 {
				target = rMax
			}

			pt, err := fs.solvePoint(ctx, qpProblem{cov: cov, mu: mu, target: target, hasTarget: true, longOnly: longOnly}, symbols)
			if err != nil {
				if errors.Is(err, domain.ErrInfeasibleConstraints) {
					frontier.Dropped++
					fs.log.Debug().Float64("target", target).Msg("Dropped infeasible frontier target")
					continue
				}
				return nil, err
			}
			if pt.partial {
				frontier.Partial = true
			}
			candidates = append(candidates, pt)
		}
	}

	frontier.Points = filterDominated(candidates)
	return frontier, nil
}

// solvePoint runs the active-set solver, falling back to the penalty method
// when a KKT system is singular.
func (fs *FrontierSolver) solvePoint(ctx context.Context, p qpProblem, symbols []string) (FrontierPoint, error) {
	sol, err := fs.qp.Solve(ctx, p)
	if errors.Is(err, errSingularKKT) {
		fs.log.Warn().Err(err).Bool("has_target", p.hasTarget).Float64("target", p.target).Msg("Active-set solve failed, using penalty method")
		sol, err = fs.fallback.Solve(ctx, p)
		sol.converged = false
	}
	if err != nil {
		return FrontierPoint{}, err
	}

	w := cleanWeights(sol.weights, p.longOnly)
	pt := FrontierPoint{
		Return:  portfolioReturn(w, p.mu),
		Risk:    portfolioVolatility(w, p.cov),
		Weights: make(domain.WeightVector, len(symbols)),
		weights: w,
		partial: !sol.converged,
	}
	for i, s := range symbols {
		pt.Weights[s] = w[i]
	}
	return pt, nil
}

// cleanWeights clamps negative noise to zero in long-only mode and rescales so
// the weights sum to exactly 1.
func cleanWeights(w []float64, longOnly bool) []float64 {
	out := make([]float64, len(w))
	copy(out, w)
	if longOnly {
		for i, v := range out {
			if v < 0 {
				out[i] = 0
			}
		}
	}

	sum := 0.0
	for _, v := range out {
		sum += v
	}
	if sum == 0 {
		for i := range out {
			out[i] = 1.0 / float64(len(out))
		}
		return out
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// filterDominated sorts by risk (higher return first on ties) and keeps only
// points whose return is strictly above every point kept before them.
func filterDominated(points []FrontierPoint) []FrontierPoint {
	sorted := make([]FrontierPoint, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Risk != sorted[j].Risk {
			return sorted[i].Risk < sorted[j].Risk
		}
		return sorted[i].Return > sorted[j].Return
	})

	kept := make([]FrontierPoint, 0, len(sorted))
	for _, pt := range sorted {
		if len(kept) == 0 || pt.Return > kept[len(kept)-1].Return {
			kept = append(kept, pt)
		}
	}
	return kept
}
