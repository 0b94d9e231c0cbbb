package formulas

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// PopMeanStdDev returns the mean and population standard deviation (N denominator).
// Used for simulated outcome sets, where every scenario is the whole population.
func PopMeanStdDev(data []float64) (float64, float64) {
	if len(data) == 0 {
		return 0, 0
	}
	return stat.PopMeanStdDev(data, nil)
}

// CalculateReturns converts prices to simple periodic returns.
// Returns[i] = (Price[i+1] - Price[i]) / Price[i]
// A non-positive or non-finite price yields NaN so callers can reject the series.
func CalculateReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return []float64{}
	}

	returns := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		prev := prices[i-1]
		if prev <= 0 || math.IsNaN(prev) || math.IsInf(prev, 0) {
			returns[i-1] = math.NaN()
			continue
		}
		returns[i-1] = (prices[i] - prev) / prev
	}

	return returns
}

// HasNonFinite reports whether any value is NaN or infinite
func HasNonFinite(data []float64) bool {
	for _, v := range data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return true
		}
	}
	return false
}
