package optimization

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/aristath/frontier/internal/domain"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// syntheticSeries draws daily returns with the given means and volatilities,
// sharing a common market factor so the assets are positively correlated.
func syntheticSeries(t *testing.T, seed uint64, observations int, means, vols []float64) *domain.ReturnSeries {
	t.Helper()
	require.Equal(t, len(means), len(vols))

	src := rand.NewPCG(seed, 1)
	market := distuv.Normal{Mu: 0, Sigma: 0.01, Src: src}
	idio := distuv.Normal{Mu: 0, Sigma: 1, Src: src}

	series := &domain.ReturnSeries{
		Symbols: make([]string, len(means)),
		Returns: make([][]float64, len(means)),
	}
	for i := range means {
		series.Symbols[i] = fmt.Sprintf("ASSET%d", i+1)
		series.Returns[i] = make([]float64, observations)
	}
	for obs := 0; obs < observations; obs++ {
		m := market.Rand()
		for i := range means {
			series.Returns[i][obs] = means[i] + 0.5*m + vols[i]*idio.Rand()
		}
	}
	return series
}

func threeAssetInputs() ([]string, []float64, *mat.SymDense) {
	symbols := []string{"BOND", "BLEND", "EQUITY"}
	mu := []float64{0.04, 0.08, 0.14}
	cov := mat.NewSymDense(3, []float64{
		0.0025, 0.0010, 0.0005,
		0.0010, 0.0225, 0.0150,
		0.0005, 0.0150, 0.0625,
	})
	return symbols, mu, cov
}

func weightSum(w []float64) float64 {
	var s float64
	for _, v := range w {
		s += v
	}
	return s
}
