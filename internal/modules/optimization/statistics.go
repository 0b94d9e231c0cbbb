package optimization

import (
	"fmt"
	"math"

	"github.com/aristath/frontier/internal/domain"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// CovarianceCorrection records how an estimated covariance matrix was adjusted
type CovarianceCorrection struct {
	Applied       bool    `json:"applied"`
	MinEigenvalue float64 `json:"min_eigenvalue"`
	Ridge         float64 `json:"ridge"`     // added to every diagonal entry
	Shrinkage     float64 `json:"shrinkage"` // weight on the constant-correlation target
}

// ComputeMeanReturns returns the per-asset arithmetic mean return, annualized
// by periodsPerYear.
func ComputeMeanReturns(series *domain.ReturnSeries, periodsPerYear int) ([]float64, error) {
	if err := series.Validate(); err != nil {
		return nil, err
	}
	if periodsPerYear <= 0 {
		return nil, domain.NewError(domain.KindInvalidRequest, "optimization.ComputeMeanReturns", "periods per year must be positive, got %d", periodsPerYear)
	}

	mu := make([]float64, series.NumAssets())
	for i, row := range series.Returns {
		mu[i] = stat.Mean(row, nil) * float64(periodsPerYear)
	}
	return mu, nil
}

// ComputeCovarianceMatrix returns the annualized sample covariance (N-1) of the
// series. When shrink is set the estimate is pulled toward a constant-correlation
// target. A matrix that is not numerically positive semi-definite gets a diagonal
// ridge instead of failing; the correction is reported.
func ComputeCovarianceMatrix(series *domain.ReturnSeries, periodsPerYear int, shrink bool) (*mat.SymDense, CovarianceCorrection, error) {
	var correction CovarianceCorrection

	if err := series.Validate(); err != nil {
		return nil, correction, err
	}
	if periodsPerYear <= 0 {
		return nil, correction, domain.NewError(domain.KindInvalidRequest, "optimization.ComputeCovarianceMatrix", "periods per year must be positive, got %d", periodsPerYear)
	}

	n := series.NumAssets()
	t := series.Observations()

	// Observations are rows, assets are columns
	data := mat.NewDense(t, n, nil)
	for j, row := range series.Returns {
		for i, r := range row {
			data.Set(i, j, r)
		}
	}

	var cov mat.SymDense
	stat.CovarianceMatrix(&cov, data, nil)
	cov.ScaleSym(float64(periodsPerYear), &cov)

	if shrink && n > 2 {
		correction.Shrinkage = shrinkToConstantCorrelation(&cov)
	}

	minEig, err := minEigenvalue(&cov)
	if err != nil {
		return nil, correction, err
	}
	correction.MinEigenvalue = minEig

	trace := mat.Trace(&cov)
	if minEig < -psdTolerance*math.Max(trace, 1) {
		ridge := -minEig + 1e-8*math.Max(trace/float64(n), 1e-12)
		for i := 0; i < n; i++ {
			cov.SetSym(i, i, cov.At(i, i)+ridge)
		}
		correction.Applied = true
		correction.Ridge = ridge
	}

	return &cov, correction, nil
}

// psdTolerance is the relative eigenvalue slack treated as rounding noise
const psdTolerance = 1e-10

func minEigenvalue(cov *mat.SymDense) (float64, error) {
	var eig mat.EigenSym
	if ok := eig.Factorize(cov, false); !ok {
		return 0, fmt.Errorf("eigen decomposition of covariance matrix failed")
	}
	// Values are returned in ascending order
	return eig.Values(nil)[0], nil
}

// shrinkToConstantCorrelation blends cov in place toward a target with the
// average variance on the diagonal and the average covariance elsewhere.
// The intensity is estimated from the dispersion of the sample entries and
// capped at 0.5. Returns the intensity used.
func shrinkToConstantCorrelation(cov *mat.SymDense) float64 {
	n := cov.SymmetricDim()

	var avgVar, avgCov float64
	for i := 0; i < n; i++ {
		avgVar += cov.At(i, i)
		for j := 0; j < n; j++ {
			if i != j {
				avgCov += cov.At(i, j)
			}
		}
	}
	avgVar /= float64(n)
	avgCov /= float64(n * (n - 1))
	if avgVar <= 0 {
		return 0
	}

	target := func(i, j int) float64 {
		if i == j {
			return avgVar
		}
		return avgCov
	}

	var sumSqDiff, sumSq, sum float64
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			v := cov.At(i, j)
			d := v - target(i, j)
			sumSqDiff += d * d
			sumSq += v * v
			sum += v
		}
	}
	cells := float64(n * n)
	meanSqDiff := sumSqDiff / cells
	mean := sum / cells
	varSample := sumSq/cells - mean*mean

	shrinkage := 0.2
	if varSample > 0 && meanSqDiff > 0 {
		shrinkage = math.Min(0.5, math.Max(0, varSample/(varSample+meanSqDiff)))
	}

	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			cov.SetSym(i, j, (1-shrinkage)*cov.At(i, j)+shrinkage*target(i, j))
		}
	}
	return shrinkage
}

// ComputeCorrelationMatrix converts a covariance matrix to correlations.
// Assets with zero variance get zero correlation with everything but themselves.
func ComputeCorrelationMatrix(cov *mat.SymDense) *mat.SymDense {
	n := cov.SymmetricDim()
	corr := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		corr.SetSym(i, i, 1)
		for j := i + 1; j < n; j++ {
			denom := math.Sqrt(cov.At(i, i) * cov.At(j, j))
			if denom > 0 {
				corr.SetSym(i, j, cov.At(i, j)/denom)
			}
		}
	}
	return corr
}

// ScaleToHorizon rescales annualized inputs to a horizon of the given months.
// Mean and covariance both scale linearly with time.
func ScaleToHorizon(mu []float64, cov *mat.SymDense, months int) ([]float64, *mat.SymDense) {
	k := float64(months) / 12.0

	scaledMu := make([]float64, len(mu))
	for i, m := range mu {
		scaledMu[i] = m * k
	}

	var scaledCov mat.SymDense
	scaledCov.ScaleSym(k, cov)
	return scaledMu, &scaledCov
}

// portfolioReturn returns wᵀμ
func portfolioReturn(w, mu []float64) float64 {
	var r float64
	for i := range w {
		r += w[i] * mu[i]
	}
	return r
}

// portfolioVolatility returns sqrt(wᵀΣw), clamping rounding noise below zero
func portfolioVolatility(w []float64, cov *mat.SymDense) float64 {
	v := mat.NewVecDense(len(w), w)
	variance := mat.Inner(v, cov, v)
	if variance <= 0 {
		return 0
	}
	return math.Sqrt(variance)
}
