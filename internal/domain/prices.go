package domain

import (
	"fmt"
	"math"
	"time"
)

// PriceMatrix is an aligned price history: one row per timestamp, one column per asset.
// Prices[t][a] is the price of Assets[a] at Dates[t]. A PriceMatrix is treated as
// immutable once validated; every stage of the pipeline reads it without copying.
type PriceMatrix struct {
	Dates  []time.Time `json:"dates"`
	Assets []string    `json:"assets"`
	Prices [][]float64 `json:"prices"`
}

// NewPriceMatrix copies the inputs into a new PriceMatrix and validates it.
func NewPriceMatrix(dates []time.Time, assets []string, prices [][]float64) (PriceMatrix, error) {
	pm := PriceMatrix{
		Dates:  append([]time.Time(nil), dates...),
		Assets: append([]string(nil), assets...),
		Prices: make([][]float64, len(prices)),
	}
	for t, row := range prices {
		pm.Prices[t] = append([]float64(nil), row...)
	}

	if err := pm.Validate(); err != nil {
		return PriceMatrix{}, err
	}
	return pm, nil
}

// Validate checks the structural invariants: at least one asset, unique asset IDs,
// strictly ascending dates, one price per asset per row, every price finite and positive.
// Observation counts are not checked here; estimators report InsufficientDataError.
func (pm PriceMatrix) Validate() error {
	if len(pm.Assets) == 0 {
		return &ValidationError{Field: "assets", Message: "no assets provided"}
	}

	seen := make(map[string]bool, len(pm.Assets))
	for _, asset := range pm.Assets {
		if asset == "" {
			return &ValidationError{Field: "assets", Message: "empty asset identifier"}
		}
		if seen[asset] {
			return &ValidationError{Field: "assets", Message: fmt.Sprintf("duplicate asset %q", asset)}
		}
		seen[asset] = true
	}

	if len(pm.Dates) != len(pm.Prices) {
		return &ValidationError{
			Field:   "prices",
			Message: fmt.Sprintf("%d dates but %d price rows", len(pm.Dates), len(pm.Prices)),
		}
	}

	for t := range pm.Dates {
		if t > 0 && !pm.Dates[t].After(pm.Dates[t-1]) {
			return &ValidationError{
				Field:   "dates",
				Message: fmt.Sprintf("dates must be strictly ascending (row %d: %s)", t, pm.Dates[t].Format("2006-01-02")),
			}
		}
		row := pm.Prices[t]
		if len(row) != len(pm.Assets) {
			return &ValidationError{
				Field:   "prices",
				Message: fmt.Sprintf("row %d has %d prices, expected %d", t, len(row), len(pm.Assets)),
			}
		}
		for a, p := range row {
			if math.IsNaN(p) || math.IsInf(p, 0) || p <= 0 {
				return &ValidationError{
					Field:   "prices",
					Message: fmt.Sprintf("non-positive or missing price %v for %s at row %d", p, pm.Assets[a], t),
				}
			}
		}
	}

	return nil
}

// NumAssets returns the number of asset columns.
func (pm PriceMatrix) NumAssets() int {
	return len(pm.Assets)
}

// NumObservations returns the number of timestamps.
func (pm PriceMatrix) NumObservations() int {
	return len(pm.Prices)
}

// Column returns a copy of the price series of the asset at index a.
func (pm PriceMatrix) Column(a int) []float64 {
	col := make([]float64, len(pm.Prices))
	for t, row := range pm.Prices {
		col[t] = row[a]
	}
	return col
}

// IndexOf returns the column index of asset, or -1.
func (pm PriceMatrix) IndexOf(asset string) int {
	for i, a := range pm.Assets {
		if a == asset {
			return i
		}
	}
	return -1
}

// LatestPrices returns the last row keyed by asset.
func (pm PriceMatrix) LatestPrices() map[string]float64 {
	latest := make(map[string]float64, len(pm.Assets))
	if len(pm.Prices) == 0 {
		return latest
	}
	last := pm.Prices[len(pm.Prices)-1]
	for a, asset := range pm.Assets {
		latest[asset] = last[a]
	}
	return latest
}

// Subset returns a new matrix restricted to the given assets, in the given order.
func (pm PriceMatrix) Subset(assets []string) (PriceMatrix, error) {
	idx := make([]int, len(assets))
	for i, asset := range assets {
		j := pm.IndexOf(asset)
		if j < 0 {
			return PriceMatrix{}, &ValidationError{Field: "assets", Message: fmt.Sprintf("unknown asset %q", asset)}
		}
		idx[i] = j
	}

	prices := make([][]float64, len(pm.Prices))
	for t, row := range pm.Prices {
		prices[t] = make([]float64, len(idx))
		for i, j := range idx {
			prices[t][i] = row[j]
		}
	}

	return NewPriceMatrix(pm.Dates, assets, prices)
}
