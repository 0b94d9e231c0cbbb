package formulas

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// TailIndex returns ⌊n·(1-confidence)⌋ clamped to [0, n-1].
// This is the position of the VaR observation in an ascending sort.
func TailIndex(n int, confidence float64) int {
	if n <= 0 {
		return 0
	}
	// The epsilon keeps e.g. 100·(1-0.95) from flooring to 4.
	idx := int(math.Floor(float64(n)*(1-confidence) + 1e-9))
	if idx < 0 {
		idx = 0
	}
	if idx > n-1 {
		idx = n - 1
	}
	return idx
}

// ValueAtRisk returns the return at the confidence tail of an ascending sorted slice.
// Losses are negative, so VaR at 99% is never above VaR at 95%.
func ValueAtRisk(sortedReturns []float64, confidence float64) float64 {
	if len(sortedReturns) == 0 {
		return 0
	}
	return sortedReturns[TailIndex(len(sortedReturns), confidence)]
}

// ConditionalValueAtRisk returns the mean of the tail up to and including
// the VaR observation of an ascending sorted slice.
func ConditionalValueAtRisk(sortedReturns []float64, confidence float64) float64 {
	if len(sortedReturns) == 0 {
		return 0
	}
	idx := TailIndex(len(sortedReturns), confidence)
	return Mean(sortedReturns[:idx+1])
}

// Percentile returns the empirical quantile p (0..1) of an ascending sorted slice.
func Percentile(sortedReturns []float64, p float64) float64 {
	if len(sortedReturns) == 0 {
		return 0
	}
	return stat.Quantile(p, stat.Empirical, sortedReturns, nil)
}
