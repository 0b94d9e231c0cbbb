// Package optimization computes mean-variance efficient frontiers and selects
// optimal allocations from them.
package optimization

import (
	"context"

	"github.com/aristath/frontier/internal/domain"
	"github.com/rs/zerolog"
)

// Settings are the engine defaults taken from configuration
type Settings struct {
	PeriodsPerYear      int
	RiskFreeRate        float64 // annual
	FrontierPoints      int
	MaxIterations       int
	CovarianceShrinkage bool
	AllowShort          bool
}

// Request is one optimization over a set of return series
type Request struct {
	Series        *domain.ReturnSeries
	Method        Method
	RiskTolerance int
	HorizonMonths int
	AllowShort    *bool // overrides Settings.AllowShort when set
}

// Result is the optimal allocation and the frontier it was picked from.
// Returns, volatilities and ratios are expressed over the requested horizon.
type Result struct {
	Weights              domain.WeightVector  `json:"weights"`
	ExpectedReturn       float64              `json:"expected_return"`
	Volatility           float64              `json:"volatility"`
	SharpeRatio          float64              `json:"sharpe_ratio"`
	SortinoRatio         *float64             `json:"sortino_ratio,omitempty"`
	EfficientFrontier    []FrontierPoint      `json:"efficient_frontier"`
	PartialConvergence   bool                 `json:"partial_convergence"`
	SortinoSubstituted   bool                 `json:"sortino_substituted"`
	DroppedPoints        int                  `json:"dropped_points"`
	CovarianceCorrection CovarianceCorrection `json:"covariance_correction"`
}

// Optimizer runs the statistics, frontier and selection stages
type Optimizer struct {
	settings Settings
	frontier *FrontierSolver
	log      zerolog.Logger
}

// NewOptimizer creates an optimizer
func NewOptimizer(settings Settings, log zerolog.Logger) *Optimizer {
	if settings.PeriodsPerYear <= 0 {
		settings.PeriodsPerYear = 252
	}
	return &Optimizer{
		settings: settings,
		frontier: NewFrontierSolver(settings.FrontierPoints, settings.MaxIterations, log),
		log:      log.With().Str("component", "optimizer").Logger(),
	}
}

// Optimize computes the efficient frontier for req.Series and returns the point
// selected by req.Method. Data problems fail the whole request; infeasible grid
// targets are dropped and budget exhaustion is reported in the result.
func (o *Optimizer) Optimize(ctx context.Context, req Request) (*Result, error) {
	const op = "optimization.Optimizer.Optimize"

	method, err := ParseMethod(string(req.Method))
	if err != nil {
		return nil, err
	}
	if req.RiskTolerance < minRiskTolerance || req.RiskTolerance > maxRiskTolerance {
		return nil, domain.NewError(domain.KindInvalidRequest, op, "risk tolerance must be between %d and %d, got %d", minRiskTolerance, maxRiskTolerance, req.RiskTolerance)
	}
	if req.HorizonMonths <= 0 {
		return nil, domain.NewError(domain.KindInvalidRequest, op, "time horizon must be positive, got %d months", req.HorizonMonths)
	}

	mu, err := ComputeMeanReturns(req.Series, o.settings.PeriodsPerYear)
	if err != nil {
		return nil, err
	}
	cov, correction, err := ComputeCovarianceMatrix(req.Series, o.settings.PeriodsPerYear, o.settings.CovarianceShrinkage)
	if err != nil {
		return nil, err
	}
	if correction.Applied {
		o.log.Warn().
			Float64("min_eigenvalue", correction.MinEigenvalue).
			Float64("ridge", correction.Ridge).
			Msg("Covariance matrix was not positive semi-definite, ridge applied")
	}

	k := float64(req.HorizonMonths) / 12.0
	muH, covH := ScaleToHorizon(mu, cov, req.HorizonMonths)

	longOnly := !o.settings.AllowShort
	if req.AllowShort != nil {
		longOnly = !*req.AllowShort
	}

	frontier, err := o.frontier.Build(ctx, req.Series.Symbols, muH, covH, longOnly)
	if err != nil {
		return nil, err
	}

	annotateRatios(frontier.Points, ratioInputs{
		riskFree:       o.settings.RiskFreeRate * k,
		series:         req.Series,
		periodsPerYear: o.settings.PeriodsPerYear,
		horizonFactor:  k,
	})

	sel, err := SelectOptimal(frontier.Points, method, req.RiskTolerance)
	if err != nil {
		return nil, err
	}

	o.log.Debug().
		Str("method", string(method)).
		Int("assets", req.Series.NumAssets()).
		Int("points", len(frontier.Points)).
		Int("dropped", frontier.Dropped).
		Bool("partial", frontier.Partial).
		Msg("Optimization complete")

	return &Result{
		Weights:              sel.Point.Weights,
		ExpectedReturn:       sel.Point.Return,
		Volatility:           sel.Point.Risk,
		SharpeRatio:          sel.Point.Sharpe,
		SortinoRatio:         sel.Point.Sortino,
		EfficientFrontier:    frontier.Points,
		PartialConvergence:   frontier.Partial,
		SortinoSubstituted:   sel.SortinoSubstituted,
		DroppedPoints:        frontier.Dropped,
		CovarianceCorrection: correction,
	}, nil
}
