package simulation

import (
	"sort"

	"github.com/aristath/frontier/pkg/formulas"
)

var reportedPercentiles = []struct {
	key string
	p   float64
}{
	{"p5", 0.05},
	{"p25", 0.25},
	{"p50", 0.50},
	{"p75", 0.75},
	{"p95", 0.95},
}

// ComputeStatistics summarizes final return percentages. Every figure depends
// only on the multiset of returns, not on their order.
func ComputeStatistics(returns []float64) Statistics {
	if len(returns) == 0 {
		return Statistics{Percentiles: map[string]float64{}}
	}

	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	sort.Float64s(sorted)

	mean, std := formulas.PopMeanStdDev(sorted)

	losses := 0
	for _, r := range sorted {
		if r < 0 {
			losses++
		}
	}

	stats := Statistics{
		MeanReturn:        mean,
		StdReturn:         std,
		VaR95:             formulas.ValueAtRisk(sorted, 0.95),
		VaR99:             formulas.ValueAtRisk(sorted, 0.99),
		CVaR95:            formulas.ConditionalValueAtRisk(sorted, 0.95),
		ProbabilityOfLoss: float64(losses) / float64(len(sorted)),
		BestCase:          sorted[len(sorted)-1],
		WorstCase:         sorted[0],
		MedianReturn:      formulas.Percentile(sorted, 0.5),
		Percentiles:       make(map[string]float64, len(reportedPercentiles)),
	}
	for _, rp := range reportedPercentiles {
		stats.Percentiles[rp.key] = formulas.Percentile(sorted, rp.p)
	}
	return stats
}
