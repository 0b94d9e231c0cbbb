package formulas

import "math"

// DownsideDeviation returns sqrt(Σ min(r-mar, 0)² / T) over all T observations.
// ok is false when no observation falls below mar, in which case the
// deviation is undefined rather than zero.
func DownsideDeviation(returns []float64, mar float64) (dd float64, ok bool) {
	if len(returns) == 0 {
		return 0, false
	}

	var sumSq float64
	below := 0
	for _, r := range returns {
		if r < mar {
			d := r - mar
			sumSq += d * d
			below++
		}
	}
	if below == 0 {
		return 0, false
	}

	dd = math.Sqrt(sumSq / float64(len(returns)))
	if dd == 0 {
		return 0, false
	}
	return dd, true
}

// SharpeRatio computes (expectedReturn - riskFree) / volatility.
// Returns nil when volatility is zero.
func SharpeRatio(expectedReturn, volatility, riskFree float64) *float64 {
	if volatility <= 0 || math.IsNaN(volatility) {
		return nil
	}
	s := (expectedReturn - riskFree) / volatility
	return &s
}

// SortinoRatio computes (expectedReturn - riskFree) / downsideDeviation.
// Returns nil when the downside deviation is not positive.
func SortinoRatio(expectedReturn, downsideDeviation, riskFree float64) *float64 {
	if downsideDeviation <= 0 || math.IsNaN(downsideDeviation) {
		return nil
	}
	s := (expectedReturn - riskFree) / downsideDeviation
	return &s
}

// HerfindahlIndex returns Σw², the concentration of a weight vector.
// 1.0 means fully concentrated, 1/n means equally weighted.
func HerfindahlIndex(weights []float64) float64 {
	var hhi float64
	for _, w := range weights {
		hhi += w * w
	}
	return hhi
}
