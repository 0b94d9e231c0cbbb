// Package simulation projects portfolio values forward with correlated
// Monte Carlo paths and summarizes the outcome distribution.
package simulation

import "gonum.org/v1/gonum/mat"

// Request is one Monte Carlo run. Mean and Cov are per period.
type Request struct {
	Symbols        []string
	Weights        []float64 // aligned with Symbols
	Mean           []float64
	Cov            *mat.SymDense
	InitialValue   float64
	Periods        int
	NumSimulations int
	Seed           uint64
}

// Scenario is one simulated outcome. Path excludes the initial value.
type Scenario struct {
	FinalValue       float64   `json:"final_value"`
	ReturnPercentage float64   `json:"return_percentage"`
	Path             []float64 `json:"path"`
}

// Statistics summarize the final returns of every completed scenario.
// Returns are percentages; ProbabilityOfLoss is a fraction.
type Statistics struct {
	MeanReturn        float64            `json:"mean_return"`
	StdReturn         float64            `json:"std_return"`
	VaR95             float64            `json:"var_95"`
	VaR99             float64            `json:"var_99"`
	CVaR95            float64            `json:"cvar_95"`
	ProbabilityOfLoss float64            `json:"probability_of_loss"`
	BestCase          float64            `json:"best_case"`
	WorstCase         float64            `json:"worst_case"`
	MedianReturn      float64            `json:"median_return"`
	Percentiles       map[string]float64 `json:"percentiles"`
}

// Result is the outcome of a run. NumSimulations is the number of scenarios
// the statistics cover, which is below RequestedSimulations only when Partial.
type Result struct {
	Scenarios            []Scenario `json:"scenarios"`
	Statistics           Statistics `json:"statistics"`
	NumSimulations       int        `json:"num_simulations"`
	RequestedSimulations int        `json:"requested_simulations"`
	Partial              bool       `json:"partial"`
	LowSampleWarning     bool       `json:"low_sample_warning"`
	Seed                 uint64     `json:"seed"`
	RunID                string     `json:"run_id"`
}

// ProgressFunc receives completed and total scenario counts. It may be called
// from several goroutines.
type ProgressFunc func(completed, total int)

// Settings bound a run
type Settings struct {
	MinSimulations       int
	MaxSimulations       int
	MaxReturnedScenarios int
	Workers              int
}
