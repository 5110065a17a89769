// Package formulas holds small, dependency-light financial formulas shared by the
// estimators, the CLI and the HTTP handlers.
package formulas

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// TradingDaysPerYear is the default annualization factor for daily data.
const TradingDaysPerYear = 252

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// StdDev calculates the sample standard deviation of a slice of float64 values
func StdDev(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	return stat.StdDev(data, nil)
}

// CalculateReturns converts prices to simple per-period returns.
// Returns[i] = (Price[i+1] - Price[i]) / Price[i]
func CalculateReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return []float64{}
	}

	returns := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] != 0 {
			returns[i-1] = (prices[i] - prices[i-1]) / prices[i-1]
		}
	}

	return returns
}

// AnnualizedVolatility scales the standard deviation of per-period returns by
// sqrt(periodsPerYear).
func AnnualizedVolatility(returns []float64, periodsPerYear int) float64 {
	if len(returns) < 2 {
		return 0
	}
	return StdDev(returns) * math.Sqrt(float64(periodsPerYear))
}

// ArithmeticAnnualReturn is mean(returns) * periodsPerYear.
func ArithmeticAnnualReturn(returns []float64, periodsPerYear int) float64 {
	return Mean(returns) * float64(periodsPerYear)
}

// CompoundedAnnualReturn is the geometric growth rate implied by the first and last
// price: (last/first)^(periodsPerYear/periods) - 1, where periods = len(prices)-1.
func CompoundedAnnualReturn(prices []float64, periodsPerYear int) float64 {
	if len(prices) < 2 || prices[0] <= 0 {
		return 0
	}
	periods := float64(len(prices) - 1)
	growth := prices[len(prices)-1] / prices[0]
	return math.Pow(growth, float64(periodsPerYear)/periods) - 1
}

// SharpeRatio returns (ret - riskFree) / vol, or 0 when vol is not positive.
func SharpeRatio(ret, vol, riskFree float64) float64 {
	if vol <= 0 {
		return 0
	}
	return (ret - riskFree) / vol
}
