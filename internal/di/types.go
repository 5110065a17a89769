// Package di provides dependency injection wiring and initialization.
package di

import (
	"github.com/aristath/frontier/internal/config"
	"github.com/aristath/frontier/internal/database"
	"github.com/aristath/frontier/internal/metrics"
	"github.com/aristath/frontier/internal/modules/allocation"
	"github.com/aristath/frontier/internal/modules/optimization"
	"github.com/aristath/frontier/internal/modules/profiles"
	"github.com/aristath/frontier/internal/modules/runs"
	"github.com/aristath/frontier/internal/modules/universe"
	"github.com/aristath/frontier/internal/scheduler"
)

// Container holds all application dependencies. It is created by Wire and handed to
// the server and the CLI.
type Container struct {
	// Databases
	HistoryDB *database.DB // price history, standard profile
	RunsDB    *database.DB // archived runs, ledger profile

	// Repositories
	History *universe.HistoryDB
	Runs    *runs.Repository

	// Services
	Metrics          *metrics.Registry
	Allocator        *allocation.Allocator
	OptimizerService *optimization.OptimizerService
	ImportService    *universe.ImportService
	ProfileRunner    *profiles.Runner

	// Configuration
	BaseSettings optimization.Settings
	Profiles     []config.Profile

	Scheduler *scheduler.Scheduler
}

// JobInstances holds the registered jobs for manual triggering via the API.
type JobInstances struct {
	// OptimizeProfiles is nil when no profiles are configured.
	OptimizeProfiles *scheduler.OptimizeProfilesJob
	Maintenance      *scheduler.MaintenanceJob
}

// All returns the non-nil jobs keyed by name.
func (j *JobInstances) All() map[string]scheduler.Job {
	out := make(map[string]scheduler.Job, 2)
	if j == nil {
		return out
	}
	if j.OptimizeProfiles != nil {
		out[j.OptimizeProfiles.Name()] = j.OptimizeProfiles
	}
	if j.Maintenance != nil {
		out[j.Maintenance.Name()] = j.Maintenance
	}
	return out
}

// Databases returns the open databases.
func (c *Container) Databases() []*database.DB {
	var dbs []*database.DB
	for _, db := range []*database.DB{c.HistoryDB, c.RunsDB} {
		if db != nil {
			dbs = append(dbs, db)
		}
	}
	return dbs
}

// Close stops the scheduler and closes every database.
func (c *Container) Close() error {
	if c.Scheduler != nil {
		c.Scheduler.Stop()
	}
	var firstErr error
	for _, db := range c.Databases() {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
