// Package domain provides the models, collaborator contracts and error taxonomy
// shared by the optimization and simulation engines.
package domain

import (
	"math"
	"sort"
	"time"

	"github.com/aristath/frontier/pkg/formulas"
)

// WeightTolerance is the allowed deviation of a weight vector's sum from 1.0
const WeightTolerance = 1e-6

// Position is a read-only holding supplied by the positions store
type Position struct {
	PortfolioID  string    `json:"portfolio_id"`
	Symbol       string    `json:"symbol"`
	Quantity     float64   `json:"quantity"`
	AverageCost  float64   `json:"average_cost"`
	CurrentPrice float64   `json:"current_price"`
	MarketValue  float64   `json:"market_value"`
	LastUpdated  time.Time `json:"last_updated"`
}

// ReturnSeries holds time-aligned periodic returns.
// Returns[i] belongs to Symbols[i]; every row has the same length.
type ReturnSeries struct {
	Symbols []string
	Returns [][]float64
	Dates   []time.Time // optional, one per observation
}

// NumAssets returns the number of assets in the series
func (s *ReturnSeries) NumAssets() int {
	return len(s.Symbols)
}

// Observations returns the number of aligned observations per asset
func (s *ReturnSeries) Observations() int {
	if len(s.Returns) == 0 {
		return 0
	}
	return len(s.Returns[0])
}

// Validate rejects series that are empty, misaligned, shorter than two
// observations, or contain missing values. Nothing is interpolated.
func (s *ReturnSeries) Validate() error {
	const op = "domain.ReturnSeries.Validate"

	if s == nil || len(s.Symbols) == 0 {
		return NewError(KindInsufficientData, op, "no assets supplied")
	}
	if len(s.Returns) != len(s.Symbols) {
		return NewError(KindInvalidRequest, op, "%d symbols but %d return series", len(s.Symbols), len(s.Returns))
	}

	seen := make(map[string]bool, len(s.Symbols))
	for _, sym := range s.Symbols {
		if seen[sym] {
			return NewError(KindInvalidRequest, op, "duplicate symbol %s", sym)
		}
		seen[sym] = true
	}

	n := len(s.Returns[0])
	for i, row := range s.Returns {
		if len(row) != n {
			return NewError(KindInvalidRequest, op, "series for %s has %d observations, expected %d", s.Symbols[i], len(row), n)
		}
		if formulas.HasNonFinite(row) {
			return NewError(KindInvalidRequest, op, "series for %s contains missing values", s.Symbols[i])
		}
	}
	if s.Dates != nil && len(s.Dates) != n {
		return NewError(KindInvalidRequest, op, "%d dates for %d observations", len(s.Dates), n)
	}
	if n < 2 {
		return NewError(KindInsufficientData, op, "need at least 2 aligned observations, got %d", n)
	}
	return nil
}

// WeightVector maps asset symbol to portfolio fraction
type WeightVector map[string]float64

// Sum returns the total of all weights
func (w WeightVector) Sum() float64 {
	var sum float64
	for _, v := range w {
		sum += v
	}
	return sum
}

// Symbols returns the weight keys in sorted order
func (w WeightVector) Symbols() []string {
	out := make([]string, 0, len(w))
	for sym := range w {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// Align returns the weights ordered by symbols; absent symbols get 0
func (w WeightVector) Align(symbols []string) []float64 {
	out := make([]float64, len(symbols))
	for i, sym := range symbols {
		out[i] = w[sym]
	}
	return out
}

// Validate checks non-negativity, finiteness and sum-to-one within WeightTolerance.
// When allowed is non-empty, every weighted symbol must be in it.
func (w WeightVector) Validate(allowed []string) error {
	const op = "domain.WeightVector.Validate"

	if len(w) == 0 {
		return NewError(KindInvalidWeights, op, "weight vector is empty")
	}

	var allowedSet map[string]bool
	if len(allowed) > 0 {
		allowedSet = make(map[string]bool, len(allowed))
		for _, sym := range allowed {
			allowedSet[sym] = true
		}
	}

	for sym, v := range w {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return NewError(KindInvalidWeights, op, "weight for %s is not finite", sym)
		}
		if v < 0 {
			return NewError(KindInvalidWeights, op, "weight for %s is negative (%g)", sym, v)
		}
		if allowedSet != nil && !allowedSet[sym] {
			return NewError(KindInvalidWeights, op, "symbol %s is not held in the portfolio", sym)
		}
	}

	if sum := w.Sum(); math.Abs(sum-1.0) > WeightTolerance {
		return NewError(KindInvalidWeights, op, "weights sum to %.8f, expected 1.0", sum)
	}
	return nil
}

// WeightsFromPositions derives market-value weights from holdings.
// Returns an empty vector when total market value is not positive.
func WeightsFromPositions(positions []Position) WeightVector {
	var total float64
	for _, p := range positions {
		total += p.MarketValue
	}

	weights := make(WeightVector, len(positions))
	if total <= 0 {
		return weights
	}
	for _, p := range positions {
		weights[p.Symbol] += p.MarketValue / total
	}
	return weights
}
