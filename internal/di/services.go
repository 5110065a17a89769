package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/frontier/internal/config"
	"github.com/aristath/frontier/internal/metrics"
	"github.com/aristath/frontier/internal/modules/allocation"
	"github.com/aristath/frontier/internal/modules/optimization"
	"github.com/aristath/frontier/internal/modules/profiles"
	"github.com/aristath/frontier/internal/modules/runs"
	"github.com/aristath/frontier/internal/modules/universe"
)

// InitializeRepositories creates the data access layer on top of the open databases.
func InitializeRepositories(container *Container, log zerolog.Logger) error {
	if container == nil || container.HistoryDB == nil || container.RunsDB == nil {
		return fmt.Errorf("databases must be initialized first")
	}

	container.History = universe.NewHistoryDB(container.HistoryDB.Conn(), log)
	container.Runs = runs.NewRepository(container.RunsDB.Conn(), log)

	log.Info().Msg("Repositories initialized")
	return nil
}

// InitializeServices creates the optimization pipeline and everything built on it.
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container.History == nil || container.Runs == nil {
		return fmt.Errorf("repositories must be initialized first")
	}

	profileList, err := config.LoadProfiles(cfg.ProfilesPath)
	if err != nil {
		return err
	}
	container.Profiles = profileList
	container.BaseSettings = cfg.BaseSettings()

	container.Metrics = metrics.NewRegistry()
	container.Allocator = allocation.NewAllocator(log)

	container.OptimizerService = optimization.NewOptimizerService(
		optimization.NewMVOptimizer(nil, log),
		optimization.NewConstraintsManager(log),
		container.Allocator,
		log,
	)
	container.OptimizerService.SetRecorder(container.Metrics)

	container.ImportService = universe.NewImportService(
		container.History,
		universe.NewPriceValidator(log),
		log,
	)

	container.ProfileRunner = profiles.NewRunner(
		container.History,
		container.OptimizerService,
		container.Runs,
		container.BaseSettings,
		log,
	)

	log.Info().
		Int("profiles", len(profileList)).
		Float64("risk_free_rate", cfg.RiskFreeRate).
		Str("allocation_method", string(container.BaseSettings.AllocationMethod)).
		Msg("Services initialized")

	return nil
}
