package optimization

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/aristath/frontier/internal/domain"
	"github.com/aristath/frontier/pkg/formulas"
)

// PortfolioPerformance returns the expected annual return μ'w, the annual volatility
// sqrt(w'Σw) and the Sharpe ratio of w.
func PortfolioPerformance(weights, expectedReturns []float64, cov *mat.SymDense, riskFreeRate float64) (domain.Performance, error) {
	n := len(weights)
	if n == 0 || len(expectedReturns) != n || cov == nil || cov.SymmetricDim() != n {
		return domain.Performance{}, fmt.Errorf("dimension mismatch: %d weights, %d returns", n, len(expectedReturns))
	}

	wv := mat.NewVecDense(n, append([]float64(nil), weights...))
	ret := mat.Dot(wv, mat.NewVecDense(n, append([]float64(nil), expectedReturns...)))
	variance := mat.Inner(wv, cov, wv)
	vol := math.Sqrt(math.Max(variance, 0))

	return domain.Performance{
		ExpectedReturn: ret,
		Volatility:     vol,
		SharpeRatio:    formulas.SharpeRatio(ret, vol, riskFreeRate),
	}, nil
}
