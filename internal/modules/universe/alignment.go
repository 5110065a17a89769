package universe

import (
	"fmt"
	"math"
	"time"

	"github.com/aristath/frontier/internal/domain"
)

// ForwardFill repairs a price table with missing (NaN) cells by carrying the last known
// price of each asset forward. Leading rows in which some asset has no price yet are
// dropped. Non-positive or infinite prices are rejected, never filled.
func ForwardFill(dates []time.Time, assets []string, prices [][]float64) (domain.PriceMatrix, error) {
	lastKnown := make([]float64, len(assets))
	for i := range lastKnown {
		lastKnown[i] = math.NaN()
	}

	var (
		outDates  []time.Time
		outPrices [][]float64
	)
	for t, row := range prices {
		complete := true
		filled := make([]float64, len(assets))
		for a := range assets {
			p := math.NaN()
			if a < len(row) {
				p = row[a]
			}
			if !isMissing(p) && (math.IsInf(p, 0) || p <= 0) {
				return domain.PriceMatrix{}, &domain.ValidationError{
					Field:   "prices",
					Message: fmt.Sprintf("invalid price %v for %s on %s (row %d)", p, assets[a], dates[t].Format("2006-01-02"), t+1),
				}
			}
			if isMissing(p) {
				p = lastKnown[a]
			} else {
				lastKnown[a] = p
			}
			if math.IsNaN(p) {
				complete = false
			}
			filled[a] = p
		}
		if !complete {
			continue
		}
		outDates = append(outDates, dates[t])
		outPrices = append(outPrices, filled)
	}

	return domain.NewPriceMatrix(outDates, assets, outPrices)
}

func isMissing(p float64) bool {
	return math.IsNaN(p)
}
