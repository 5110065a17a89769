package universe

import (
	"fmt"
	"math"
	"time"

	"github.com/aristath/frontier/internal/domain"
)

// PriceTable is the JSON form of a price history. Dates use any layout ParseDate
// accepts; null prices are treated as missing and forward-filled, any other price must be
// positive.
type PriceTable struct {
	Dates  []string     `json:"dates"`
	Assets []string     `json:"assets"`
	Prices [][]*float64 `json:"prices"`
}

// Matrix converts the table into a validated PriceMatrix.
func (pt PriceTable) Matrix() (domain.PriceMatrix, error) {
	if len(pt.Dates) != len(pt.Prices) {
		return domain.PriceMatrix{}, &domain.ValidationError{
			Field:   "prices",
			Message: fmt.Sprintf("%d dates but %d price rows", len(pt.Dates), len(pt.Prices)),
		}
	}

	dates := make([]time.Time, len(pt.Dates))
	prices := make([][]float64, len(pt.Prices))
	for t, s := range pt.Dates {
		d, err := ParseDate(s)
		if err != nil {
			return domain.PriceMatrix{}, &domain.ValidationError{Field: "dates", Message: err.Error()}
		}
		dates[t] = d

		row := pt.Prices[t]
		if len(row) != len(pt.Assets) {
			return domain.PriceMatrix{}, &domain.ValidationError{
				Field:   "prices",
				Message: fmt.Sprintf("row %d has %d prices, expected %d", t, len(row), len(pt.Assets)),
			}
		}
		prices[t] = make([]float64, len(row))
		for a, p := range row {
			switch {
			case p == nil:
				prices[t][a] = math.NaN()
			case math.IsNaN(*p) || math.IsInf(*p, 0) || *p <= 0:
				return domain.PriceMatrix{}, &domain.ValidationError{
					Field:   "prices",
					Message: fmt.Sprintf("row %d: price for %s must be positive, got %v", t, pt.Assets[a], *p),
				}
			default:
				prices[t][a] = *p
			}
		}
	}

	return ForwardFill(dates, pt.Assets, prices)
}

// TableFromMatrix is the inverse of PriceTable.Matrix for complete matrices.
func TableFromMatrix(pm domain.PriceMatrix) PriceTable {
	pt := PriceTable{
		Dates:  make([]string, len(pm.Dates)),
		Assets: append([]string(nil), pm.Assets...),
		Prices: make([][]*float64, len(pm.Prices)),
	}
	for t, d := range pm.Dates {
		pt.Dates[t] = d.Format("2006-01-02")
		row := make([]*float64, len(pm.Prices[t]))
		for a := range pm.Prices[t] {
			p := pm.Prices[t][a]
			row[a] = &p
		}
		pt.Prices[t] = row
	}
	return pt
}
