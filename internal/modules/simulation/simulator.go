package simulation

import (
	"context"
	"math"
	"math/rand/v2"
	"runtime"
	"sync/atomic"

	"github.com/aristath/frontier/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// chunkSize is the number of scenarios drawn from one random stream.
// Chunk c always uses stream (seed, c), so output does not depend on the
// number of workers.
const chunkSize = 256

// Simulator runs Monte Carlo projections
type Simulator struct {
	settings Settings
	log      zerolog.Logger
}

// NewSimulator creates a simulator
func NewSimulator(settings Settings, log zerolog.Logger) *Simulator {
	if settings.Workers <= 0 {
		settings.Workers = runtime.GOMAXPROCS(0)
	}
	if settings.MinSimulations <= 0 {
		settings.MinSimulations = 100
	}
	if settings.MaxSimulations <= 0 {
		settings.MaxSimulations = 100000
	}
	if settings.MaxReturnedScenarios <= 0 {
		settings.MaxReturnedScenarios = 1000
	}
	return &Simulator{
		settings: settings,
		log:      log.With().Str("component", "simulator").Logger(),
	}
}

// FromAnnual converts annualized mean and covariance to per-period inputs
func FromAnnual(mu []float64, cov *mat.SymDense, periodsPerYear int) ([]float64, *mat.SymDense) {
	p := float64(periodsPerYear)
	out := make([]float64, len(mu))
	for i, m := range mu {
		out[i] = m / p
	}
	var c mat.SymDense
	c.ScaleSym(1/p, cov)
	return out, &c
}

// chunkOutcome holds the results of one chunk of scenarios
type chunkOutcome struct {
	done    bool
	returns []float64   // return percentage per scenario
	finals  []float64   // final value per scenario
	paths   [][]float64 // only for scenarios that will be returned
}

// Run simulates req.NumSimulations paths. On ctx expiry the statistics cover
// the chunks completed so far and the result is marked partial; if nothing
// completed the context error is returned.
func (s *Simulator) Run(ctx context.Context, req Request, onProgress ProgressFunc) (*Result, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}

	drift, loadings := portfolioFactors(req)

	n := req.NumSimulations
	numChunks := (n + chunkSize - 1) / chunkSize
	outcomes := make([]chunkOutcome, numChunks)
	var completed atomic.Int64

	g := new(errgroup.Group)
	g.SetLimit(s.settings.Workers)

	for c := 0; c < numChunks; c++ {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			start := c * chunkSize
			end := min(start+chunkSize, n)
			if out, ok := s.runChunk(ctx, req, drift, loadings, c, start, end); ok {
				outcomes[c] = out
				done := completed.Add(int64(end - start))
				if onProgress != nil {
					onProgress(int(done), n)
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	result := &Result{
		RequestedSimulations: n,
		Seed:                 req.Seed,
		RunID:                uuid.NewString(),
		LowSampleWarning:     n < s.settings.MinSimulations,
	}

	returns := make([]float64, 0, n)
	for _, out := range outcomes {
		if !out.done {
			result.Partial = true
			continue
		}
		returns = append(returns, out.returns...)
		for i := range out.returns {
			if len(result.Scenarios) >= s.settings.MaxReturnedScenarios {
				break
			}
			result.Scenarios = append(result.Scenarios, Scenario{
				FinalValue:       out.finals[i],
				ReturnPercentage: out.returns[i],
				Path:             out.paths[i],
			})
		}
	}

	if len(returns) == 0 {
		return nil, domain.WrapError(domain.KindInternal, "simulation.Simulator.Run", ctx.Err())
	}

	result.NumSimulations = len(returns)
	result.Statistics = ComputeStatistics(returns)

	if result.LowSampleWarning {
		s.log.Warn().Int("simulations", n).Int("minimum", s.settings.MinSimulations).Msg("Simulation count below reliability threshold")
	}
	if result.Partial {
		s.log.Warn().Int("completed", result.NumSimulations).Int("requested", n).Msg("Simulation stopped early, statistics are partial")
	}

	return result, nil
}

// runChunk simulates scenarios [start, end) from stream (seed, chunk).
// Returns ok=false if ctx expired before the chunk finished.
func (s *Simulator) runChunk(ctx context.Context, req Request, drift float64, loadings []float64, chunk, start, end int) (chunkOutcome, bool) {
	rng := rand.New(rand.NewPCG(req.Seed, uint64(chunk)))
	count := end - start
	nAssets := len(loadings)

	out := chunkOutcome{
		returns: make([]float64, count),
		finals:  make([]float64, count),
		paths:   make([][]float64, count),
	}

	// One scenario's standard normal draws, refilled per scenario
	z := make([]float64, req.Periods*nAssets)

	for i := 0; i < count; i++ {
		if i%32 == 0 && ctx.Err() != nil {
			return chunkOutcome{}, false
		}

		for k := range z {
			z[k] = rng.NormFloat64()
		}

		keepPath := start+i < s.settings.MaxReturnedScenarios
		var path []float64
		if keepPath {
			path = make([]float64, req.Periods)
		}

		value := req.InitialValue
		for t := 0; t < req.Periods; t++ {
			r := drift
			draws := z[t*nAssets : (t+1)*nAssets]
			for j, b := range loadings {
				r += b * draws[j]
			}
			value *= 1 + r
			if keepPath {
				path[t] = value
			}
		}

		out.finals[i] = value
		out.returns[i] = (value/req.InitialValue - 1) * 100
		out.paths[i] = path
	}

	out.done = true
	return out, true
}

// portfolioFactors returns the per-period drift wᵀμ and loadings b = Fᵀw where
// FFᵀ = Σ, so the portfolio return per period is wᵀμ + bᵀz with z ~ N(0, I).
// F is the Cholesky factor, or V·sqrt(Λ) when Σ is only semi-definite.
func portfolioFactors(req Request) (float64, []float64) {
	n := len(req.Weights)
	w := mat.NewVecDense(n, append([]float64(nil), req.Weights...))

	var drift float64
	for i := range req.Weights {
		drift += req.Weights[i] * req.Mean[i]
	}

	var b mat.VecDense
	var chol mat.Cholesky
	if chol.Factorize(req.Cov) {
		var l mat.TriDense
		chol.LTo(&l)
		b.MulVec(l.T(), w)
	} else {
		f := mat.NewDense(n, n, nil)
		var eig mat.EigenSym
		if eig.Factorize(req.Cov, true) {
			eig.VectorsTo(f)
			for j, lambda := range eig.Values(nil) {
				scale := math.Sqrt(math.Max(lambda, 0))
				for i := 0; i < n; i++ {
					f.Set(i, j, f.At(i, j)*scale)
				}
			}
		} else {
			// Only the diagonal survives
			for i := 0; i < n; i++ {
				f.Set(i, i, math.Sqrt(math.Max(req.Cov.At(i, i), 0)))
			}
		}
		b.MulVec(f.T(), w)
	}

	loadings := make([]float64, n)
	copy(loadings, b.RawVector().Data)
	return drift, loadings
}

func (s *Simulator) validate(req Request) error {
	const op = "simulation.Simulator.Run"

	n := len(req.Symbols)
	switch {
	case n == 0:
		return domain.NewError(domain.KindInvalidWeights, op, "no assets to simulate")
	case len(req.Weights) != n || len(req.Mean) != n || req.Cov == nil || req.Cov.SymmetricDim() != n:
		return domain.NewError(domain.KindInvalidRequest, op, "inputs do not match %d symbols", n)
	case req.Periods <= 0:
		return domain.NewError(domain.KindInvalidRequest, op, "time horizon must be positive, got %d", req.Periods)
	case req.NumSimulations <= 0:
		return domain.NewError(domain.KindInvalidRequest, op, "simulation count must be positive, got %d", req.NumSimulations)
	case req.NumSimulations > s.settings.MaxSimulations:
		return domain.NewError(domain.KindInvalidRequest, op, "simulation count %d exceeds maximum %d", req.NumSimulations, s.settings.MaxSimulations)
	case req.InitialValue <= 0 || math.IsNaN(req.InitialValue) || math.IsInf(req.InitialValue, 0):
		return domain.NewError(domain.KindInvalidRequest, op, "initial value must be positive, got %g", req.InitialValue)
	}

	var sum float64
	for i, w := range req.Weights {
		if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
			return domain.NewError(domain.KindInvalidWeights, op, "weight for %s is invalid (%g)", req.Symbols[i], w)
		}
		sum += w
	}
	if math.Abs(sum-1) > domain.WeightTolerance {
		return domain.NewError(domain.KindInvalidWeights, op, "weights sum to %.8f, expected 1.0", sum)
	}
	return nil
}
