package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/frontier/internal/config"
	"github.com/aristath/frontier/internal/modules/profiles"
)

// ProfileRunner runs a set of profiles.
type ProfileRunner interface {
	RunAll(ctx context.Context, profiles []config.Profile, parallelism int) ([]profiles.Outcome, error)
}

// RunRecorder receives one observation per scheduled profile run.
type RunRecorder interface {
	ObserveScheduledRun(profile string, ok bool, at time.Time)
}

// OptimizeProfilesJob recomputes every configured profile from stored history.
type OptimizeProfilesJob struct {
	runner      ProfileRunner
	profiles    []config.Profile
	parallelism int
	recorder    RunRecorder
	log         zerolog.Logger
}

// NewOptimizeProfilesJob creates a new OptimizeProfilesJob. recorder may be nil.
func NewOptimizeProfilesJob(runner ProfileRunner, profiles []config.Profile, parallelism int, recorder RunRecorder, log zerolog.Logger) *OptimizeProfilesJob {
	return &OptimizeProfilesJob{
		runner:      runner,
		profiles:    profiles,
		parallelism: parallelism,
		recorder:    recorder,
		log:         log.With().Str("job", "optimize_profiles").Logger(),
	}
}

// Name returns the job name
func (j *OptimizeProfilesJob) Name() string {
	return "optimize_profiles"
}

// Run executes every profile. The job fails only when every profile failed.
func (j *OptimizeProfilesJob) Run(ctx context.Context) error {
	if len(j.profiles) == 0 {
		j.log.Debug().Msg("No profiles configured")
		return nil
	}

	outcomes, err := j.runner.RunAll(ctx, j.profiles, j.parallelism)
	if err != nil {
		return fmt.Errorf("profile batch aborted: %w", err)
	}

	now := time.Now()
	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
		}
		if j.recorder != nil {
			j.recorder.ObserveScheduledRun(o.Profile, o.Err == nil, now)
		}
	}

	j.log.Info().
		Int("profiles", len(outcomes)).
		Int("failed", failed).
		Msg("Scheduled profile runs finished")

	if failed == len(outcomes) {
		return fmt.Errorf("all %d profile runs failed, first: %w", failed, outcomes[0].Err)
	}
	return nil
}
