package formulas

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMean(t *testing.T) {
	assert.InDelta(t, 0.0125, Mean([]float64{0.01, 0.02, -0.01, 0.03}), 1e-12)
	assert.Equal(t, 0.0, Mean(nil))
}

func TestPopMeanStdDev(t *testing.T) {
	mean, std := PopMeanStdDev([]float64{2, 4, 4, 4, 5, 5, 7, 9})

	assert.InDelta(t, 5.0, mean, 1e-12)
	assert.InDelta(t, 2.0, std, 1e-12)
}

func TestCalculateReturns(t *testing.T) {
	t.Run("simple returns", func(t *testing.T) {
		returns := CalculateReturns([]float64{100, 110, 99})

		assert.Len(t, returns, 2)
		assert.InDelta(t, 0.10, returns[0], 1e-12)
		assert.InDelta(t, -0.10, returns[1], 1e-12)
	})

	t.Run("zero price yields NaN", func(t *testing.T) {
		returns := CalculateReturns([]float64{0, 10})

		assert.True(t, math.IsNaN(returns[0]))
		assert.True(t, HasNonFinite(returns))
	})

	t.Run("too short", func(t *testing.T) {
		assert.Empty(t, CalculateReturns([]float64{100}))
	})
}
