package optimization

import (
	"fmt"
	"math"

	"github.com/aristath/frontier/internal/domain"
)

// Weight cleaning defaults.
const (
	DefaultWeightCutoff = 1e-4
	DefaultDecimals     = 5
)

// CleanSettings configures CleanWeights.
type CleanSettings struct {
	Cutoff float64
	// Decimals of the cleaned weights; 0 rounds to whole units, negative uses DefaultDecimals.
	Decimals int
}

// DefaultCleanSettings returns the 1e-4 cutoff, 5-decimal rounding.
func DefaultCleanSettings() CleanSettings {
	return CleanSettings{Cutoff: DefaultWeightCutoff, Decimals: DefaultDecimals}
}

// CleanWeights zeroes weights whose magnitude is below the cutoff, renormalizes the rest
// to sum to one and rounds to the configured number of decimals. Rounding happens in
// integer units of 10^-decimals and the leftover units go to the largest weight (lowest
// index on ties), so the result sums to exactly one unit count. Cleaning an already
// cleaned vector returns it unchanged.
//
// Cleaning does not see the weight bounds. Renormalizing after the cutoff and the rounding
// residual can move a weight slightly past an upper bound below one, by at most the
// dropped mass plus one rounding unit.
func CleanWeights(assets []string, raw []float64, settings CleanSettings) (domain.Weights, error) {
	if len(assets) != len(raw) {
		return nil, &domain.ValidationError{
			Field:   "weights",
			Message: fmt.Sprintf("%d weights for %d assets", len(raw), len(assets)),
		}
	}
	if settings.Cutoff <= 0 {
		settings.Cutoff = DefaultWeightCutoff
	}
	if settings.Decimals < 0 {
		settings.Decimals = DefaultDecimals
	}

	w := make([]float64, len(raw))
	var sum float64
	for i, v := range raw {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, &domain.ValidationError{Field: "weights", Message: fmt.Sprintf("non-finite weight for %s", assets[i])}
		}
		if math.Abs(v) < settings.Cutoff {
			continue
		}
		w[i] = v
		sum += v
	}
	if sum <= 0 {
		return nil, &domain.EmptyPortfolioError{Cutoff: settings.Cutoff}
	}

	scale := math.Pow10(settings.Decimals)
	units := make([]int64, len(w))
	total := int64(math.Round(scale))
	var assigned int64
	largest := -1
	for i, v := range w {
		if v == 0 {
			continue
		}
		units[i] = int64(math.Round(v / sum * scale))
		assigned += units[i]
		if largest < 0 || units[i] > units[largest] {
			largest = i
		}
	}
	units[largest] += total - assigned

	cleaned := make([]float64, len(w))
	for i, u := range units {
		cleaned[i] = float64(u) / scale
	}
	return domain.NewWeights(assets, cleaned), nil
}
