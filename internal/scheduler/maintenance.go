package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/frontier/internal/database"
)

// RunPruner deletes archived runs.
type RunPruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// MaintenanceJob prunes the run archive and checkpoints the WAL of every database.
type MaintenanceJob struct {
	runs          RunPruner
	retentionDays int
	databases     []*database.DB
	now           func() time.Time
	log           zerolog.Logger
}

// NewMaintenanceJob creates a new MaintenanceJob. retentionDays <= 0 keeps every run.
func NewMaintenanceJob(runs RunPruner, retentionDays int, databases []*database.DB, log zerolog.Logger) *MaintenanceJob {
	return &MaintenanceJob{
		runs:          runs,
		retentionDays: retentionDays,
		databases:     databases,
		now:           time.Now,
		log:           log.With().Str("job", "maintenance").Logger(),
	}
}

// Name returns the job name
func (j *MaintenanceJob) Name() string {
	return "maintenance"
}

// Run executes the maintenance job
func (j *MaintenanceJob) Run(ctx context.Context) error {
	if j.runs != nil && j.retentionDays > 0 {
		cutoff := j.now().AddDate(0, 0, -j.retentionDays)
		deleted, err := j.runs.DeleteOlderThan(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("failed to prune runs: %w", err)
		}
		j.log.Debug().Int64("deleted", deleted).Time("cutoff", cutoff).Msg("Pruned run archive")
	}

	for _, db := range j.databases {
		if db == nil {
			continue
		}
		if err := db.WALCheckpoint("TRUNCATE"); err != nil {
			j.log.Warn().
				Err(err).
				Str("database", db.Name()).
				Msg("Failed to checkpoint WAL")
		}
	}

	return nil
}
