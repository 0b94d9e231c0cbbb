package optimization

import (
	"math"
	"testing"

	"github.com/aristath/frontier/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestComputeMeanReturns(t *testing.T) {
	series := &domain.ReturnSeries{
		Symbols: []string{"A", "B"},
		Returns: [][]float64{
			{0.01, 0.03, 0.02},
			{-0.01, 0.01, 0.0},
		},
	}

	mu, err := ComputeMeanReturns(series, 252)
	require.NoError(t, err)
	assert.InDelta(t, 0.02*252, mu[0], 1e-12)
	assert.InDelta(t, 0.0, mu[1], 1e-12)
}

func TestComputeCovarianceMatrix(t *testing.T) {
	series := &domain.ReturnSeries{
		Symbols: []string{"A", "B"},
		Returns: [][]float64{
			{0.01, 0.03, 0.02, 0.00},
			{0.02, 0.00, 0.01, 0.03},
		},
	}

	cov, correction, err := ComputeCovarianceMatrix(series, 12, false)
	require.NoError(t, err)
	assert.False(t, correction.Applied)

	// Sample variance of A: mean 0.015, squared deviations sum 0.0005, /3
	assert.InDelta(t, 0.0005/3*12, cov.At(0, 0), 1e-12)
	assert.InDelta(t, cov.At(0, 1), cov.At(1, 0), 0)
	assert.Less(t, cov.At(0, 1), 0.0, "series move in opposite directions")
}

func TestComputeCovarianceMatrix_SingleAsset(t *testing.T) {
	series := &domain.ReturnSeries{
		Symbols: []string{"ONLY"},
		Returns: [][]float64{{0.01, 0.02, 0.03}},
	}

	cov, _, err := ComputeCovarianceMatrix(series, 252, false)
	require.NoError(t, err)
	assert.Equal(t, 1, cov.SymmetricDim())
	assert.InDelta(t, 0.0001*252, cov.At(0, 0), 1e-12)
}

func TestComputeCovarianceMatrix_InsufficientObservations(t *testing.T) {
	series := &domain.ReturnSeries{
		Symbols: []string{"A", "B"},
		Returns: [][]float64{{0.01}, {0.02}},
	}

	cov, _, err := ComputeCovarianceMatrix(series, 252, false)
	assert.Nil(t, cov)
	assert.ErrorIs(t, err, domain.ErrInsufficientData)

	mu, err := ComputeMeanReturns(series, 252)
	assert.Nil(t, mu)
	assert.ErrorIs(t, err, domain.ErrInsufficientData)
}

func TestComputeCovarianceMatrix_Shrinkage(t *testing.T) {
	series := syntheticSeries(t, 7, 250, []float64{0.0003, 0.0004, 0.0005, 0.0006}, []float64{0.01, 0.015, 0.02, 0.025})

	raw, _, err := ComputeCovarianceMatrix(series, 252, false)
	require.NoError(t, err)
	shrunk, correction, err := ComputeCovarianceMatrix(series, 252, true)
	require.NoError(t, err)

	assert.Greater(t, correction.Shrinkage, 0.0)
	assert.LessOrEqual(t, correction.Shrinkage, 0.5)
	assert.InDelta(t, mat.Trace(raw), mat.Trace(shrunk), 1e-12, "constant-correlation target keeps the average variance")

	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			assert.Equal(t, shrunk.At(i, j), shrunk.At(j, i))
		}
	}
}

func TestComputeCorrelationMatrix(t *testing.T) {
	cov := mat.NewSymDense(3, []float64{
		0.04, 0.01, 0,
		0.01, 0.09, 0,
		0, 0, 0,
	})

	corr := ComputeCorrelationMatrix(cov)
	assert.Equal(t, 1.0, corr.At(0, 0))
	assert.Equal(t, 1.0, corr.At(2, 2))
	assert.InDelta(t, 0.01/(0.2*0.3), corr.At(0, 1), 1e-12)
	assert.Equal(t, 0.0, corr.At(0, 2))
}

func TestScaleToHorizon(t *testing.T) {
	mu := []float64{0.12, 0.06}
	cov := mat.NewSymDense(2, []float64{0.04, 0.01, 0.01, 0.09})

	scaledMu, scaledCov := ScaleToHorizon(mu, cov, 6)
	assert.InDelta(t, 0.06, scaledMu[0], 1e-12)
	assert.InDelta(t, 0.03, scaledMu[1], 1e-12)
	assert.InDelta(t, 0.02, scaledCov.At(0, 0), 1e-12)
	assert.InDelta(t, 0.005, scaledCov.At(1, 0), 1e-12)

	// inputs are untouched
	assert.Equal(t, 0.12, mu[0])
	assert.Equal(t, 0.04, cov.At(0, 0))
}

func TestPortfolioVolatility_ClampsNoise(t *testing.T) {
	cov := mat.NewSymDense(2, []float64{0.04, -0.04, -0.04, 0.04})
	vol := portfolioVolatility([]float64{0.5, 0.5}, cov)
	assert.False(t, math.IsNaN(vol))
	assert.InDelta(t, 0.0, vol, 1e-12)
}
