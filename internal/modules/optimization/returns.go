package optimization

import (
	"fmt"

	"github.com/aristath/frontier/internal/domain"
	"github.com/aristath/frontier/pkg/formulas"
)

// ReturnMethod selects how per-period returns are averaged before annualizing.
type ReturnMethod string

const (
	// ReturnMethodCompounded is the geometric growth rate between the first and last price.
	ReturnMethodCompounded ReturnMethod = "compounded"
	// ReturnMethodArithmetic is mean(simple returns) * periods per year.
	ReturnMethodArithmetic ReturnMethod = "arithmetic"
)

// MinObservations is the smallest number of prices an asset needs to produce a return.
const MinObservations = 2

// ReturnSettings configures EstimateReturns.
type ReturnSettings struct {
	Method         ReturnMethod
	PeriodsPerYear int
}

// DefaultReturnSettings matches daily data with compounded returns.
func DefaultReturnSettings() ReturnSettings {
	return ReturnSettings{
		Method:         ReturnMethodCompounded,
		PeriodsPerYear: formulas.TradingDaysPerYear,
	}
}

// EstimateReturns derives the annualized expected-return vector of pm, ordered like
// pm.Assets.
func EstimateReturns(pm domain.PriceMatrix, settings ReturnSettings) ([]float64, error) {
	if settings.PeriodsPerYear <= 0 {
		settings.PeriodsPerYear = formulas.TradingDaysPerYear
	}
	if settings.Method == "" {
		settings.Method = ReturnMethodCompounded
	}

	if err := checkObservations(pm); err != nil {
		return nil, err
	}

	mu := make([]float64, pm.NumAssets())
	for a := range pm.Assets {
		prices := pm.Column(a)
		switch settings.Method {
		case ReturnMethodCompounded:
			mu[a] = formulas.CompoundedAnnualReturn(prices, settings.PeriodsPerYear)
		case ReturnMethodArithmetic:
			mu[a] = formulas.ArithmeticAnnualReturn(formulas.CalculateReturns(prices), settings.PeriodsPerYear)
		default:
			return nil, &domain.ValidationError{Field: "return_method", Message: fmt.Sprintf("unknown return method %q", settings.Method)}
		}
	}

	return mu, nil
}

// AssetStatistic is the per-asset annualized return/volatility pair.
type AssetStatistic struct {
	Asset            string  `json:"asset" msgpack:"asset"`
	AnnualReturn     float64 `json:"annual_return" msgpack:"annual_return"`
	AnnualVolatility float64 `json:"annual_volatility" msgpack:"annual_volatility"`
}

// AssetStatistics reports each asset's annualized return and volatility.
func AssetStatistics(pm domain.PriceMatrix, settings ReturnSettings) ([]AssetStatistic, error) {
	mu, err := EstimateReturns(pm, settings)
	if err != nil {
		return nil, err
	}
	periods := settings.PeriodsPerYear
	if periods <= 0 {
		periods = formulas.TradingDaysPerYear
	}

	stats := make([]AssetStatistic, pm.NumAssets())
	for a, asset := range pm.Assets {
		stats[a] = AssetStatistic{
			Asset:            asset,
			AnnualReturn:     mu[a],
			AnnualVolatility: formulas.AnnualizedVolatility(formulas.CalculateReturns(pm.Column(a)), periods),
		}
	}
	return stats, nil
}

// checkObservations reports the first asset with fewer than MinObservations prices.
func checkObservations(pm domain.PriceMatrix) error {
	if pm.NumObservations() >= MinObservations {
		return nil
	}
	asset := ""
	if len(pm.Assets) > 0 {
		asset = pm.Assets[0]
	}
	return &domain.InsufficientDataError{
		Asset:        asset,
		Observations: pm.NumObservations(),
		Required:     MinObservations,
	}
}
