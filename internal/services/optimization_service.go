// Package services orchestrates the engines with the position and price stores.
package services

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/aristath/frontier/internal/domain"
	"github.com/aristath/frontier/internal/modules/calculations"
	"github.com/aristath/frontier/internal/modules/optimization"
	"github.com/aristath/frontier/internal/modules/simulation"
	"github.com/rs/zerolog"
)

// Monte Carlo request defaults
const (
	DefaultHorizonMonths  = 12
	DefaultNumSimulations = 10000
	DefaultInitialValue   = 100000.0
	DefaultRiskTolerance  = 5
)

// Constraints are optional optimizer overrides carried in the request body
type Constraints struct {
	AllowShort *bool `json:"allow_short,omitempty"`
}

// OptimizeRequest is the optimize endpoint payload
type OptimizeRequest struct {
	PortfolioID   PortfolioID  `json:"portfolio_id"`
	Method        string       `json:"method"`
	RiskTolerance int          `json:"risk_tolerance"`
	TimeHorizon   int          `json:"time_horizon"`
	AllowShort    *bool        `json:"allow_short,omitempty"`
	Constraints   *Constraints `json:"constraints,omitempty"`
}

// OptimizeResponse is the optimal allocation plus the current one for comparison
type OptimizeResponse struct {
	optimization.Result
	CurrentWeights domain.WeightVector `json:"current_weights"`
}

// MonteCarloRequest is the Monte Carlo endpoint payload. An empty
// OptimizationWeights simulates the current holdings.
type MonteCarloRequest struct {
	PortfolioID         PortfolioID         `json:"portfolio_id"`
	OptimizationWeights domain.WeightVector `json:"optimization_weights"`
	TimeHorizon         int                 `json:"time_horizon"`
	NumSimulations      int                 `json:"num_simulations"`
	InitialValue        float64             `json:"initial_value"`
	Seed                *uint64             `json:"seed,omitempty"`
}

// ServiceSettings configure the orchestration around the engines
type ServiceSettings struct {
	Statistics        optimization.Settings
	LookbackDays      int
	OptimizeTimeout   time.Duration
	SimulationTimeout time.Duration
}

// OptimizationService loads holdings and price history, runs the engines and
// memoizes complete results.
type OptimizationService struct {
	positions domain.PositionProvider
	returns   domain.ReturnsProvider
	optimizer *optimization.Optimizer
	simulator *simulation.Simulator
	cache     *calculations.ResultCache // nil disables memoization
	settings  ServiceSettings
	log       zerolog.Logger
}

// NewOptimizationService creates the service
func NewOptimizationService(
	positions domain.PositionProvider,
	returns domain.ReturnsProvider,
	optimizer *optimization.Optimizer,
	simulator *simulation.Simulator,
	cache *calculations.ResultCache,
	settings ServiceSettings,
	log zerolog.Logger,
) *OptimizationService {
	if settings.Statistics.PeriodsPerYear <= 0 {
		settings.Statistics.PeriodsPerYear = 252
	}
	return &OptimizationService{
		positions: positions,
		returns:   returns,
		optimizer: optimizer,
		simulator: simulator,
		cache:     cache,
		settings:  settings,
		log:       log.With().Str("service", "optimization").Logger(),
	}
}

// Optimize runs the efficient frontier over the portfolio's holdings
func (s *OptimizationService) Optimize(ctx context.Context, req OptimizeRequest) (*OptimizeResponse, error) {
	const op = "services.OptimizationService.Optimize"

	if req.PortfolioID == "" {
		return nil, domain.NewError(domain.KindInvalidRequest, op, "portfolio_id is required")
	}
	if req.Method == "" {
		req.Method = string(optimization.MethodMaxSharpe)
	}
	if req.RiskTolerance == 0 {
		req.RiskTolerance = DefaultRiskTolerance
	}
	if req.TimeHorizon == 0 {
		req.TimeHorizon = DefaultHorizonMonths
	}
	if req.AllowShort == nil && req.Constraints != nil {
		req.AllowShort = req.Constraints.AllowShort
	}
	req.Constraints = nil

	method, err := optimization.ParseMethod(req.Method)
	if err != nil {
		return nil, err
	}

	positions, err := s.positions.GetPositions(ctx, req.PortfolioID.String())
	if err != nil {
		return nil, err
	}
	current := domain.WeightsFromPositions(positions)
	symbols := heldSymbols(current)
	if len(symbols) == 0 {
		return nil, domain.NewError(domain.KindInsufficientData, op, "portfolio %s has no positions with market value", req.PortfolioID)
	}

	compute := func() (*OptimizeResponse, bool, error) {
		ctx, cancel := withTimeout(ctx, s.settings.OptimizeTimeout)
		defer cancel()

		series, err := s.returns.GetReturnSeries(ctx, symbols, s.settings.LookbackDays)
		if err != nil {
			return nil, false, err
		}

		result, err := s.optimizer.Optimize(ctx, optimization.Request{
			Series:        series,
			Method:        method,
			RiskTolerance: req.RiskTolerance,
			HorizonMonths: req.TimeHorizon,
			AllowShort:    req.AllowShort,
		})
		if err != nil {
			return nil, false, err
		}

		return &OptimizeResponse{Result: *result, CurrentWeights: current}, !result.PartialConvergence, nil
	}

	resp, hit, err := memoize(s.cache, calculations.TableOptimization, cacheKey{Request: req, Holdings: current}, compute)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Stringer("portfolio_id", req.PortfolioID).
		Str("method", req.Method).
		Int("assets", len(symbols)).
		Bool("cached", hit).
		Bool("partial", resp.PartialConvergence).
		Msg("Optimization served")

	return resp, nil
}

// RunMonteCarlo simulates the requested weights over the portfolio's price history.
// onProgress may be nil and is not called on a cache hit.
func (s *OptimizationService) RunMonteCarlo(ctx context.Context, req MonteCarloRequest, onProgress simulation.ProgressFunc) (*simulation.Result, error) {
	const op = "services.OptimizationService.RunMonteCarlo"

	if req.PortfolioID == "" {
		return nil, domain.NewError(domain.KindInvalidRequest, op, "portfolio_id is required")
	}
	if req.TimeHorizon == 0 {
		req.TimeHorizon = DefaultHorizonMonths
	}
	if req.NumSimulations == 0 {
		req.NumSimulations = DefaultNumSimulations
	}
	if req.InitialValue == 0 {
		req.InitialValue = DefaultInitialValue
	}

	positions, err := s.positions.GetPositions(ctx, req.PortfolioID.String())
	if err != nil {
		return nil, err
	}
	current := domain.WeightsFromPositions(positions)
	held := heldSymbols(current)
	if len(held) == 0 {
		return nil, domain.NewError(domain.KindInsufficientData, op, "portfolio %s has no positions with market value", req.PortfolioID)
	}

	weights := req.OptimizationWeights
	if len(weights) == 0 {
		weights = current
	}
	allowed := make([]string, 0, len(positions))
	for _, p := range positions {
		allowed = append(allowed, p.Symbol)
	}
	if err := weights.Validate(allowed); err != nil {
		return nil, err
	}
	symbols := heldSymbols(weights)

	seeded := req.Seed != nil
	var seed uint64
	if seeded {
		seed = *req.Seed
	} else {
		seed = rand.Uint64()
	}

	compute := func() (*simulation.Result, bool, error) {
		ctx, cancel := withTimeout(ctx, s.settings.SimulationTimeout)
		defer cancel()

		series, err := s.returns.GetReturnSeries(ctx, symbols, s.settings.LookbackDays)
		if err != nil {
			return nil, false, err
		}

		stats := s.settings.Statistics
		muAnnual, err := optimization.ComputeMeanReturns(series, stats.PeriodsPerYear)
		if err != nil {
			return nil, false, err
		}
		covAnnual, _, err := optimization.ComputeCovarianceMatrix(series, stats.PeriodsPerYear, stats.CovarianceShrinkage)
		if err != nil {
			return nil, false, err
		}
		mu, cov := simulation.FromAnnual(muAnnual, covAnnual, 12)

		result, err := s.simulator.Run(ctx, simulation.Request{
			Symbols:        series.Symbols,
			Weights:        weights.Align(series.Symbols),
			Mean:           mu,
			Cov:            cov,
			InitialValue:   req.InitialValue,
			Periods:        req.TimeHorizon,
			NumSimulations: req.NumSimulations,
			Seed:           seed,
		}, onProgress)
		if err != nil {
			return nil, false, err
		}

		// unseeded runs are fresh draws every time
		return result, seeded && !result.Partial, nil
	}

	var result *simulation.Result
	var hit bool
	if seeded {
		req.OptimizationWeights = weights
		result, hit, err = memoize(s.cache, calculations.TableSimulation, cacheKey{Request: req, Holdings: current}, compute)
	} else {
		result, _, err = compute()
	}
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Stringer("portfolio_id", req.PortfolioID).
		Int("simulations", result.NumSimulations).
		Bool("cached", hit).
		Bool("partial", result.Partial).
		Msg("Monte Carlo served")

	return result, nil
}

// GetRiskMetrics describes the risk of the portfolio's current holdings.
// An empty portfolio yields zero metrics.
func (s *OptimizationService) GetRiskMetrics(ctx context.Context, portfolioID string) (*optimization.RiskMetrics, error) {
	const op = "services.OptimizationService.GetRiskMetrics"

	if portfolioID == "" {
		return nil, domain.NewError(domain.KindInvalidRequest, op, "portfolio_id is required")
	}

	positions, err := s.positions.GetPositions(ctx, portfolioID)
	if err != nil {
		return nil, err
	}

	var total float64
	for _, p := range positions {
		total += p.MarketValue
	}
	weights := domain.WeightsFromPositions(positions)
	symbols := heldSymbols(weights)
	if len(symbols) == 0 {
		return &optimization.RiskMetrics{
			PortfolioID:    portfolioID,
			CurrentWeights: domain.WeightVector{},
		}, nil
	}

	ctx, cancel := withTimeout(ctx, s.settings.OptimizeTimeout)
	defer cancel()

	series, err := s.returns.GetReturnSeries(ctx, symbols, s.settings.LookbackDays)
	if err != nil {
		return nil, err
	}

	metrics, err := optimization.ComputeRiskMetrics(series, weights, s.settings.Statistics)
	if err != nil {
		return nil, err
	}
	metrics.PortfolioID = portfolioID
	metrics.TotalValue = total

	return metrics, nil
}

// cacheKey ties a memoized result to the request and the holdings it was computed for
type cacheKey struct {
	Request  interface{}         `json:"request"`
	Holdings domain.WeightVector `json:"holdings"`
}

func memoize[T any](cache *calculations.ResultCache, table string, key cacheKey, compute func() (*T, bool, error)) (*T, bool, error) {
	if cache == nil {
		v, _, err := compute()
		return v, false, err
	}
	hash, err := calculations.RequestHash(key)
	if err != nil {
		return nil, false, err
	}
	return calculations.Memoize(cache, table, hash, compute)
}

// heldSymbols returns the symbols with positive weight, sorted
func heldSymbols(w domain.WeightVector) []string {
	out := make([]string, 0, len(w))
	for _, sym := range w.Symbols() {
		if w[sym] > 0 {
			out = append(out, sym)
		}
	}
	return out
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
