package optimization

import (
	"math"
	"sort"

	"github.com/aristath/frontier/internal/domain"
	"github.com/aristath/frontier/pkg/formulas"
)

// Method selects the optimal frontier point
type Method string

const (
	MethodMaxSharpe  Method = "max_sharpe"
	MethodMaxSortino Method = "max_sortino"
	MethodMinRisk    Method = "min_risk"
	MethodMaxReturn  Method = "max_return"
)

const (
	// TieTolerance is the relative score gap within which points tie
	TieTolerance = 1e-9

	minRiskTolerance = 1
	maxRiskTolerance = 10

	// risk below this is treated as riskless when computing ratios
	risklessVolatility = 1e-12
)

// ParseMethod validates a method name
func ParseMethod(s string) (Method, error) {
	switch m := Method(s); m {
	case MethodMaxSharpe, MethodMaxSortino, MethodMinRisk, MethodMaxReturn:
		return m, nil
	default:
		return "", domain.NewError(domain.KindInvalidRequest, "optimization.ParseMethod", "unknown method %q", s)
	}
}

// Selection is the chosen frontier point
type Selection struct {
	Index              int
	Point              FrontierPoint
	SortinoSubstituted bool
}

// ratioInputs carries what annotateRatios needs beyond the frontier itself
type ratioInputs struct {
	riskFree       float64 // already scaled to the horizon
	series         *domain.ReturnSeries
	periodsPerYear int
	horizonFactor  float64 // months / 12
}

// annotateRatios fills Sharpe and Sortino on every point. A riskless point
// reports a Sharpe of 0 but is flagged so selection can still rank it. Sortino uses the
// historical per-period portfolio returns with a minimum acceptable return of 0;
// the downside deviation is annualized and then scaled to the horizon.
func annotateRatios(points []FrontierPoint, in ratioInputs) {
	for i := range points {
		pt := &points[i]

		pt.excess = pt.Return - in.riskFree
		pt.Riskless = pt.Risk < risklessVolatility
		pt.Sharpe = 0
		if !pt.Riskless {
			if s := formulas.SharpeRatio(pt.Return, pt.Risk, in.riskFree); s != nil {
				pt.Sharpe = *s
			}
		}

		pt.Sortino = nil
		if in.series == nil || len(pt.weights) != in.series.NumAssets() {
			continue
		}
		dd, ok := formulas.DownsideDeviation(historicalPortfolioReturns(pt.weights, in.series), 0)
		if !ok {
			continue
		}
		dd *= math.Sqrt(float64(in.periodsPerYear) * in.horizonFactor)
		pt.Sortino = formulas.SortinoRatio(pt.Return, dd, in.riskFree)
	}
}

// historicalPortfolioReturns returns Σ w_i r_i,t for every observation t
func historicalPortfolioReturns(w []float64, series *domain.ReturnSeries) []float64 {
	out := make([]float64, series.Observations())
	for i, row := range series.Returns {
		for t, r := range row {
			out[t] += w[i] * r
		}
	}
	return out
}

// SelectOptimal picks the optimal point for method. Points whose score is within
// TieTolerance of the best form a band ordered by risk; riskTolerance 1 picks
// the lowest-risk point in the band and 10 the highest.
func SelectOptimal(points []FrontierPoint, method Method, riskTolerance int) (Selection, error) {
	const op = "optimization.SelectOptimal"

	if len(points) == 0 {
		return Selection{}, domain.NewError(domain.KindInfeasibleConstraints, op, "frontier is empty")
	}
	if riskTolerance < minRiskTolerance || riskTolerance > maxRiskTolerance {
		return Selection{}, domain.NewError(domain.KindInvalidRequest, op, "risk tolerance must be between %d and %d, got %d", minRiskTolerance, maxRiskTolerance, riskTolerance)
	}
	if _, err := ParseMethod(string(method)); err != nil {
		return Selection{}, err
	}

	var sel Selection
	if method == MethodMaxSortino && !anySortino(points) {
		method = MethodMaxSharpe
		sel.SortinoSubstituted = true
	}

	scores := make([]float64, len(points))
	for i, pt := range points {
		scores[i] = score(pt, method)
	}

	best := math.Inf(-1)
	for _, s := range scores {
		best = math.Max(best, s)
	}

	threshold := best
	if !math.IsInf(best, 0) {
		threshold = best - TieTolerance*(1+math.Abs(best))
	}
	band := make([]int, 0, len(points))
	for i, s := range scores {
		if s >= threshold {
			band = append(band, i)
		}
	}
	sort.SliceStable(band, func(a, b int) bool {
		return points[band[a]].Risk < points[band[b]].Risk
	})

	pick := int(math.Round(float64(riskTolerance-minRiskTolerance) / float64(maxRiskTolerance-minRiskTolerance) * float64(len(band)-1)))
	sel.Index = band[pick]
	sel.Point = points[sel.Index]
	return sel, nil
}

func score(pt FrontierPoint, method Method) float64 {
	switch method {
	case MethodMaxSortino:
		if pt.Sortino == nil {
			return math.Inf(-1)
		}
		return *pt.Sortino
	case MethodMinRisk:
		return -pt.Risk
	case MethodMaxReturn:
		return pt.Return
	default:
		// a riskless point beating the risk-free rate dominates every risky one
		if pt.Riskless && pt.excess != 0 {
			return math.Copysign(math.Inf(1), pt.excess)
		}
		return pt.Sharpe
	}
}

func anySortino(points []FrontierPoint) bool {
	for _, pt := range points {
		if pt.Sortino != nil {
			return true
		}
	}
	return false
}
