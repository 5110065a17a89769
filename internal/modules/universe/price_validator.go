package universe

import (
	"github.com/rs/zerolog"

	"github.com/aristath/frontier/internal/domain"
)

const (
	// Validation thresholds
	maxPriceChangePercent = 1000.0 // >1000% day-over-day change is a spike
	minPriceChangePercent = -90.0  // <-90% day-over-day change is a crash
)

// Anomaly is a suspicious day-over-day move in an imported series.
type Anomaly struct {
	Asset         string  `json:"asset"`
	Date          string  `json:"date"`
	PreviousClose float64 `json:"previous_close"`
	Close         float64 `json:"close"`
	ChangePercent float64 `json:"change_percent"`
	Reason        string  `json:"reason"` // "spike_detected" or "crash_detected"
}

// PriceValidator flags abnormal price moves. Flagged prices are reported, never altered:
// a split or a data error is for the operator to resolve.
type PriceValidator struct {
	log zerolog.Logger
}

// NewPriceValidator creates a new price validator
func NewPriceValidator(log zerolog.Logger) *PriceValidator {
	return &PriceValidator{
		log: log.With().Str("component", "price_validator").Logger(),
	}
}

// Check scans every column of pm for spikes and crashes.
func (v *PriceValidator) Check(pm domain.PriceMatrix) []Anomaly {
	anomalies := []Anomaly{}
	for t := 1; t < pm.NumObservations(); t++ {
		for a, asset := range pm.Assets {
			prev := pm.Prices[t-1][a]
			cur := pm.Prices[t][a]
			if prev <= 0 {
				continue
			}

			change := (cur - prev) / prev * 100.0
			reason := ""
			switch {
			case change > maxPriceChangePercent:
				reason = "spike_detected"
			case change < minPriceChangePercent:
				reason = "crash_detected"
			default:
				continue
			}

			anomalies = append(anomalies, Anomaly{
				Asset:         asset,
				Date:          pm.Dates[t].Format("2006-01-02"),
				PreviousClose: prev,
				Close:         cur,
				ChangePercent: change,
				Reason:        reason,
			})
		}
	}

	if len(anomalies) > 0 {
		v.log.Warn().
			Int("anomalies", len(anomalies)).
			Str("first_asset", anomalies[0].Asset).
			Str("first_date", anomalies[0].Date).
			Msg("Abnormal price moves detected")
	}
	return anomalies
}
