// Package profiles runs configured portfolio profiles against stored price history.
package profiles

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/frontier/internal/config"
	"github.com/aristath/frontier/internal/domain"
	"github.com/aristath/frontier/internal/modules/optimization"
)

// PriceSource assembles aligned price matrices.
type PriceSource interface {
	GetPriceMatrix(ctx context.Context, assets []string, lookbackDays int) (domain.PriceMatrix, error)
}

// RunStore archives results.
type RunStore interface {
	Save(ctx context.Context, result *optimization.Result) (string, error)
}

// Optimizer is the pipeline entry point.
type Optimizer interface {
	Optimize(ctx context.Context, pm domain.PriceMatrix, settings optimization.Settings) (*optimization.Result, error)
}

// Outcome is the result of one profile run. Err is set when the run failed.
type Outcome struct {
	Profile string               `json:"profile"`
	RunID   string               `json:"run_id,omitempty"`
	Result  *optimization.Result `json:"result,omitempty"`
	Err     error                `json:"-"`
}

// Runner loads history for a profile, optimizes it and archives the result.
type Runner struct {
	prices    PriceSource
	optimizer Optimizer
	runs      RunStore
	base      optimization.Settings
	log       zerolog.Logger
}

// NewRunner creates a new profile runner. runs may be nil to skip archiving.
func NewRunner(prices PriceSource, optimizer Optimizer, runs RunStore, base optimization.Settings, log zerolog.Logger) *Runner {
	return &Runner{
		prices:    prices,
		optimizer: optimizer,
		runs:      runs,
		base:      base,
		log:       log.With().Str("service", "profile_runner").Logger(),
	}
}

// Run executes one profile.
func (r *Runner) Run(ctx context.Context, profile config.Profile) (*Outcome, error) {
	pm, err := r.prices.GetPriceMatrix(ctx, profile.Assets, profile.LookbackDays)
	if err != nil {
		return nil, fmt.Errorf("failed to load history for profile %s: %w", profile.Name, err)
	}

	result, err := r.optimizer.Optimize(ctx, pm, profile.Settings(r.base))
	if err != nil {
		return nil, fmt.Errorf("profile %s: %w", profile.Name, err)
	}

	outcome := &Outcome{Profile: profile.Name, Result: result}
	if r.runs != nil {
		id, err := r.runs.Save(ctx, result)
		if err != nil {
			return nil, fmt.Errorf("failed to archive profile %s: %w", profile.Name, err)
		}
		outcome.RunID = id
	}

	r.log.Info().
		Str("profile", profile.Name).
		Str("run_id", outcome.RunID).
		Float64("sharpe", result.Performance.SharpeRatio).
		Msg("Profile run completed")

	return outcome, nil
}

// RunAll executes every profile, at most parallelism at a time. Profiles fail
// independently; the returned slice is ordered like profiles. Only context
// cancellation aborts the whole batch.
func (r *Runner) RunAll(ctx context.Context, profiles []config.Profile, parallelism int) ([]Outcome, error) {
	if parallelism <= 0 {
		parallelism = 1
	}

	started := time.Now()
	outcomes := make([]Outcome, len(profiles))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)

	for i := range profiles {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcome, err := r.Run(gctx, profiles[i])
			if err != nil {
				r.log.Warn().Err(err).Str("profile", profiles[i].Name).Msg("Profile run failed")
				outcomes[i] = Outcome{Profile: profiles[i].Name, Err: err}
				return nil
			}
			outcomes[i] = *outcome
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.log.Info().
		Int("profiles", len(profiles)).
		Dur("duration", time.Since(started)).
		Msg("Profile batch finished")

	return outcomes, nil
}
