package optimization

import (
	"gonum.org/v1/gonum/mat"

	"github.com/aristath/frontier/internal/domain"
	"github.com/aristath/frontier/pkg/formulas"
)

// RiskMetrics describes the risk of the current holdings. Figures are annual.
type RiskMetrics struct {
	PortfolioID          string              `json:"portfolio_id"`
	TotalValue           float64             `json:"total_value"`
	ExpectedReturn       float64             `json:"expected_return"`
	Volatility           float64             `json:"volatility"`
	SharpeRatio          float64             `json:"sharpe_ratio"`
	DiversificationRatio float64             `json:"diversification_ratio"`
	ConcentrationRisk    float64             `json:"concentration_risk"`
	CurrentWeights       domain.WeightVector `json:"current_weights"`

	// Correlation is the pairwise correlation of the held assets' returns
	Correlation map[string]map[string]float64 `json:"correlation_matrix"`
}

// ComputeRiskMetrics evaluates weights against the series. The diversification
// ratio is Σ w_i σ_i / σ_p and is 0 for a riskless portfolio; concentration
// is the Herfindahl index of the weights.
func ComputeRiskMetrics(series *domain.ReturnSeries, weights domain.WeightVector, settings Settings) (*RiskMetrics, error) {
	mu, err := ComputeMeanReturns(series, settings.PeriodsPerYear)
	if err != nil {
		return nil, err
	}
	cov, _, err := ComputeCovarianceMatrix(series, settings.PeriodsPerYear, settings.CovarianceShrinkage)
	if err != nil {
		return nil, err
	}

	w := weights.Align(series.Symbols)

	m := &RiskMetrics{
		ExpectedReturn:    portfolioReturn(w, mu),
		Volatility:        portfolioVolatility(w, cov),
		ConcentrationRisk: formulas.HerfindahlIndex(w),
		CurrentWeights:    weights,
		Correlation:       correlationBySymbol(series.Symbols, ComputeCorrelationMatrix(cov)),
	}

	if m.Volatility >= risklessVolatility {
		if s := formulas.SharpeRatio(m.ExpectedReturn, m.Volatility, settings.RiskFreeRate); s != nil {
			m.SharpeRatio = *s
		}

		var weightedVol float64
		for i, wi := range w {
			weightedVol += wi * portfolioVolatility(unitVector(len(w), i), cov)
		}
		m.DiversificationRatio = weightedVol / m.Volatility
	}

	return m, nil
}

func correlationBySymbol(symbols []string, corr *mat.SymDense) map[string]map[string]float64 {
	out := make(map[string]map[string]float64, len(symbols))
	for i, a := range symbols {
		row := make(map[string]float64, len(symbols))
		for j, b := range symbols {
			row[b] = corr.At(i, j)
		}
		out[a] = row
	}
	return out
}

func unitVector(n, i int) []float64 {
	v := make([]float64, n)
	v[i] = 1
	return v
}
