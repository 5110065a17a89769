package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/frontier/internal/config"
	"github.com/aristath/frontier/internal/scheduler"
)

// MaintenanceSchedule runs pruning and WAL checkpoints once a day.
const MaintenanceSchedule = "30 3 * * *"

// RegisterJobs creates the background jobs and schedules them. Scheduled profile runs
// need both profiles and OPTIMIZE_SCHEDULE; the job exists for manual triggering as
// soon as profiles are configured.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	if container == nil {
		return nil, fmt.Errorf("container cannot be nil")
	}

	instances := &JobInstances{}
	container.Scheduler = scheduler.New(log)

	if len(container.Profiles) > 0 {
		instances.OptimizeProfiles = scheduler.NewOptimizeProfilesJob(
			container.ProfileRunner,
			container.Profiles,
			cfg.MaxParallelRuns,
			container.Metrics,
			log,
		)
		if cfg.OptimizeSchedule != "" {
			if err := container.Scheduler.AddJob(cfg.OptimizeSchedule, instances.OptimizeProfiles); err != nil {
				return nil, fmt.Errorf("failed to schedule %s: %w", instances.OptimizeProfiles.Name(), err)
			}
		}
	}

	instances.Maintenance = scheduler.NewMaintenanceJob(
		container.Runs,
		cfg.RunRetentionDays,
		container.Databases(),
		log,
	)
	if err := container.Scheduler.AddJob(MaintenanceSchedule, instances.Maintenance); err != nil {
		return nil, fmt.Errorf("failed to schedule %s: %w", instances.Maintenance.Name(), err)
	}

	return instances, nil
}
