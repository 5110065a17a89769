// Package optimization estimates expected returns and covariance from price history,
// solves the mean-variance problem and cleans the resulting weights.
package optimization

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/aristath/frontier/internal/domain"
)

// BoundsConfig describes per-asset weight bounds.
type BoundsConfig struct {
	// Default applies to every asset without an override; nil means [0, 1].
	Default *domain.Bounds `json:"default,omitempty" yaml:"default,omitempty"`
	// PerAsset overrides Default for individual assets.
	PerAsset map[string]domain.Bounds `json:"per_asset,omitempty" yaml:"per_asset,omitempty"`
	// MaxConcentration caps every upper bound when positive.
	MaxConcentration float64 `json:"max_concentration,omitempty" yaml:"max_concentration,omitempty"`
}

// ConstraintsSummary is a diagnostic view of the bounds handed to the optimizer.
type ConstraintsSummary struct {
	TotalAssets      int     `json:"total_assets" msgpack:"total_assets"`
	AssetsWithBounds int     `json:"assets_with_bounds" msgpack:"assets_with_bounds"`
	TotalMinWeight   float64 `json:"total_min_weight" msgpack:"total_min_weight"`
	TotalMaxWeight   float64 `json:"total_max_weight" msgpack:"total_max_weight"`
	AllowsShorts     bool    `json:"allows_shorts" msgpack:"allows_shorts"`
}

// ConstraintsManager translates a bounds configuration into per-asset intervals.
type ConstraintsManager struct {
	log zerolog.Logger
}

// NewConstraintsManager creates a new constraints manager.
func NewConstraintsManager(log zerolog.Logger) *ConstraintsManager {
	return &ConstraintsManager{
		log: log.With().Str("component", "constraints").Logger(),
	}
}

// BuildBounds returns one interval per asset, ordered like assets.
func (cm *ConstraintsManager) BuildBounds(assets []string, cfg BoundsConfig) ([]domain.Bounds, error) {
	known := make(map[string]bool, len(assets))
	for _, asset := range assets {
		known[asset] = true
	}
	for asset := range cfg.PerAsset {
		if !known[asset] {
			return nil, &domain.ValidationError{
				Field:   "bounds",
				Message: fmt.Sprintf("bounds given for unknown asset %q", asset),
			}
		}
	}

	def := domain.DefaultBounds
	if cfg.Default != nil {
		def = *cfg.Default
	}

	bounds := make([]domain.Bounds, len(assets))
	for i, asset := range assets {
		b := def
		if override, ok := cfg.PerAsset[asset]; ok {
			b = override
		}

		if cfg.MaxConcentration > 0 && b.Upper > cfg.MaxConcentration {
			b.Upper = cfg.MaxConcentration
			if b.Lower > b.Upper {
				cm.log.Warn().
					Str("asset", asset).
					Float64("lower", b.Lower).
					Float64("max_concentration", cfg.MaxConcentration).
					Msg("Lower bound above concentration cap - lowering it to the cap")
				b.Lower = b.Upper
			}
		}

		if err := b.Validate(); err != nil {
			return nil, &domain.ValidationError{Field: "bounds", Message: fmt.Sprintf("%s: %v", asset, err)}
		}
		bounds[i] = b
	}

	cm.log.Debug().
		Int("assets", len(assets)).
		Int("overrides", len(cfg.PerAsset)).
		Float64("max_concentration", cfg.MaxConcentration).
		Msg("Built weight bounds")

	return bounds, nil
}

// GetConstraintSummary generates a summary of bounds for diagnostics.
func (cm *ConstraintsManager) GetConstraintSummary(bounds []domain.Bounds) ConstraintsSummary {
	summary := ConstraintsSummary{TotalAssets: len(bounds)}
	for _, b := range bounds {
		if b != domain.DefaultBounds {
			summary.AssetsWithBounds++
		}
		if b.Lower < 0 {
			summary.AllowsShorts = true
		}
		summary.TotalMinWeight += b.Lower
		summary.TotalMaxWeight += b.Upper
	}
	return summary
}

// ValidateConstraints checks that a fully invested portfolio fits inside the bounds.
func (cm *ConstraintsManager) ValidateConstraints(bounds []domain.Bounds) error {
	if err := checkBudgetFeasible(bounds); err != nil {
		return err
	}
	for i, b := range bounds {
		if b.Lower > b.Upper || math.IsNaN(b.Lower) || math.IsNaN(b.Upper) {
			return fmt.Errorf("asset %d has invalid bounds: lower=%.4f > upper=%.4f", i, b.Lower, b.Upper)
		}
	}
	return nil
}
