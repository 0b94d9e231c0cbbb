package optimization

import (
	"context"
	"testing"

	"github.com/aristath/frontier/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func assertEfficient(t *testing.T, points []FrontierPoint) {
	t.Helper()
	for i, pt := range points {
		assert.InDelta(t, 1.0, pt.Weights.Sum(), 1e-6, "point %d weights sum", i)
		for sym, w := range pt.Weights {
			assert.GreaterOrEqual(t, w, 0.0, "point %d weight for %s", i, sym)
		}
		for j, other := range points {
			if i == j {
				continue
			}
			dominates := other.Return > pt.Return && other.Risk <= pt.Risk
			assert.False(t, dominates, "point %d dominates point %d", j, i)
		}
	}
}

func TestFrontierSolver_Build(t *testing.T) {
	symbols, mu, cov := threeAssetInputs()
	solver := NewFrontierSolver(20, 500, zerolog.Nop())

	frontier, err := solver.Build(context.Background(), symbols, mu, cov, true)
	require.NoError(t, err)
	require.NotEmpty(t, frontier.Points)
	assert.False(t, frontier.Partial)
	assert.Zero(t, frontier.Dropped)

	assertEfficient(t, frontier.Points)

	for i := 1; i < len(frontier.Points); i++ {
		assert.Greater(t, frontier.Points[i].Risk, frontier.Points[i-1].Risk)
		assert.Greater(t, frontier.Points[i].Return, frontier.Points[i-1].Return)
	}

	last := frontier.Points[len(frontier.Points)-1]
	assert.InDelta(t, 0.14, last.Return, 1e-9, "grid ends at the highest expected return")
	assert.InDelta(t, 1.0, last.Weights["EQUITY"], 1e-9)

	// The first point is the global minimum-variance portfolio
	minVar, err := NewActiveSetSolver(500).Solve(context.Background(), qpProblem{cov: cov, mu: mu, longOnly: true})
	require.NoError(t, err)
	assert.InDelta(t, portfolioVolatility(minVar.weights, cov), frontier.Points[0].Risk, 1e-12)
}

func TestFrontierSolver_NegativelyCorrelatedPair(t *testing.T) {
	cov := mat.NewSymDense(2, []float64{0.04, -0.04, -0.04, 0.04})
	solver := NewFrontierSolver(20, 500, zerolog.Nop())

	frontier, err := solver.Build(context.Background(), []string{"LONG", "INVERSE"}, []float64{0.08, 0.08}, cov, true)
	require.NoError(t, err)
	require.Len(t, frontier.Points, 1, "equal expected returns collapse the grid")

	pt := frontier.Points[0]
	assert.InDelta(t, 0.0, pt.Risk, 1e-9)
	assert.InDelta(t, 0.5, pt.Weights["LONG"], 1e-9)
	assert.InDelta(t, 0.5, pt.Weights["INVERSE"], 1e-9)
}

func TestFrontierSolver_SingleAsset(t *testing.T) {
	cov := mat.NewSymDense(1, []float64{0.04})
	solver := NewFrontierSolver(20, 500, zerolog.Nop())

	frontier, err := solver.Build(context.Background(), []string{"ONLY"}, []float64{0.07}, cov, true)
	require.NoError(t, err)
	require.Len(t, frontier.Points, 1)
	assert.Equal(t, 1.0, frontier.Points[0].Weights["ONLY"])
	assert.InDelta(t, 0.2, frontier.Points[0].Risk, 1e-12)
}

func TestFrontierSolver_Cancelled(t *testing.T) {
	symbols, mu, cov := threeAssetInputs()
	solver := NewFrontierSolver(20, 500, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	frontier, err := solver.Build(ctx, symbols, mu, cov, true)
	require.NoError(t, err)
	assert.True(t, frontier.Partial)
	require.NotEmpty(t, frontier.Points)
	assertEfficient(t, frontier.Points)
}

func TestFrontierSolver_AllowShort(t *testing.T) {
	symbols := []string{"A", "B"}
	cov := mat.NewSymDense(2, []float64{0.04, 0.054, 0.054, 0.09})
	solver := NewFrontierSolver(10, 500, zerolog.Nop())

	frontier, err := solver.Build(context.Background(), symbols, []float64{0.06, 0.10}, cov, false)
	require.NoError(t, err)
	require.NotEmpty(t, frontier.Points)

	// The minimum-variance portfolio shorts B and earns less than either asset
	assert.Less(t, frontier.Points[0].Weights["B"], 0.0)
	assert.Less(t, frontier.Points[0].Return, 0.06)
	for _, pt := range frontier.Points {
		assert.InDelta(t, 1.0, pt.Weights.Sum(), 1e-9)
	}
}

func TestFrontierSolver_DimensionMismatch(t *testing.T) {
	cov := mat.NewSymDense(2, []float64{0.04, 0, 0, 0.04})
	solver := NewFrontierSolver(20, 500, zerolog.Nop())

	_, err := solver.Build(context.Background(), []string{"A"}, []float64{0.1, 0.2}, cov, true)
	assert.Error(t, err)
}

func TestFilterDominated(t *testing.T) {
	points := []FrontierPoint{
		{Return: 0.05, Risk: 0.10},
		{Return: 0.04, Risk: 0.12}, // dominated by the first
		{Return: 0.08, Risk: 0.15},
		{Return: 0.07, Risk: 0.15}, // same risk, lower return
		{Return: 0.08, Risk: 0.18}, // same return, more risk
		{Return: 0.10, Risk: 0.20},
	}

	kept := filterDominated(points)
	require.Len(t, kept, 3)
	assert.Equal(t, 0.05, kept[0].Return)
	assert.Equal(t, 0.08, kept[1].Return)
	assert.Equal(t, 0.15, kept[1].Risk)
	assert.Equal(t, 0.10, kept[2].Return)
}

func TestCleanWeights(t *testing.T) {
	w := cleanWeights([]float64{-1e-15, 0.5, 0.5}, true)
	assert.Equal(t, 0.0, w[0])
	assert.Equal(t, 1.0, weightSum(w))
}

func TestFrontierSolver_SolvePointTargetOutOfRange(t *testing.T) {
	symbols, mu, cov := threeAssetInputs()
	solver := NewFrontierSolver(20, 500, zerolog.Nop())

	for _, target := range []float64{0.20, 0.01} {
		_, err := solver.solvePoint(context.Background(), qpProblem{cov: cov, mu: mu, target: target, hasTarget: true, longOnly: true}, symbols)
		assert.ErrorIs(t, err, domain.ErrInfeasibleConstraints, "target %.2f", target)
	}
}

// rejectingSolver reports every target inside (lo, hi) as infeasible
type rejectingSolver struct {
	inner  qpSolver
	lo, hi float64
}

func (r rejectingSolver) Solve(ctx context.Context, p qpProblem) (qpSolution, error) {
	if p.hasTarget && p.target > r.lo && p.target < r.hi {
		return qpSolution{}, domain.NewError(domain.KindInfeasibleConstraints, "test", "target %.4f rejected", p.target)
	}
	return r.inner.Solve(ctx, p)
}

func TestFrontierSolver_BuildCountsInfeasibleTargets(t *testing.T) {
	symbols, mu, cov := threeAssetInputs()
	solver := NewFrontierSolver(20, 500, zerolog.Nop())
	solver.qp = rejectingSolver{inner: NewActiveSetSolver(500), lo: 0.08, hi: 0.11}

	frontier, err := solver.Build(context.Background(), symbols, mu, cov, true)
	require.NoError(t, err)
	assert.Positive(t, frontier.Dropped)
	assert.False(t, frontier.Partial)
	require.NotEmpty(t, frontier.Points)
	assertEfficient(t, frontier.Points)
	for _, pt := range frontier.Points {
		assert.False(t, pt.Return > 0.08 && pt.Return < 0.11, "return %.4f should have been dropped", pt.Return)
	}
}
