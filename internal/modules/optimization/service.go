package optimization

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/frontier/internal/domain"
	"github.com/aristath/frontier/internal/modules/allocation"
)

// MinAssets is the smallest universe the pipeline accepts.
const MinAssets = 2

// Pipeline stage names, as reported to the Recorder.
const (
	StageReturns    = "returns"
	StageCovariance = "covariance"
	StageSolve      = "solve"
	StageClean      = "clean"
	StageAllocate   = "allocate"
)

// Recorder receives pipeline telemetry. internal/metrics provides the Prometheus one.
type Recorder interface {
	ObserveStage(stage string, d time.Duration)
	ObserveRun(objective, outcome string)
	ObserveSolver(solver string, iterations int)
}

type nopRecorder struct{}

func (nopRecorder) ObserveStage(string, time.Duration) {}
func (nopRecorder) ObserveRun(string, string)         {}
func (nopRecorder) ObserveSolver(string, int)         {}

// Settings holds everything that parameterizes one pipeline run.
type Settings struct {
	Label        string
	Returns      ReturnSettings
	Covariance   CovarianceSettings
	RiskFreeRate float64
	Bounds       BoundsConfig
	Objective    Objective
	TargetReturn float64
	Clean        CleanSettings
	// Budget <= 0 skips discrete allocation.
	Budget           float64
	AllocationMethod allocation.Method
}

// DefaultSettings returns max-Sharpe with long-only bounds and no allocation.
func DefaultSettings() Settings {
	return Settings{
		Returns:          DefaultReturnSettings(),
		Covariance:       DefaultCovarianceSettings(),
		Objective:        ObjectiveMaxSharpe,
		Clean:            DefaultCleanSettings(),
		AllocationMethod: allocation.MethodLP,
	}
}

// Result is the outcome of one pipeline run.
type Result struct {
	Label            string             `json:"label,omitempty" msgpack:"label"`
	Timestamp        time.Time          `json:"timestamp" msgpack:"timestamp"`
	Assets           []string           `json:"assets" msgpack:"assets"`
	Objective        Objective          `json:"objective" msgpack:"objective"`
	Observations     int                `json:"observations" msgpack:"observations"`
	RiskFreeRate     float64            `json:"risk_free_rate" msgpack:"risk_free_rate"`
	ExpectedReturns  map[string]float64 `json:"expected_returns" msgpack:"expected_returns"`
	RawWeights       domain.Weights     `json:"raw_weights" msgpack:"raw_weights"`
	Weights          domain.Weights     `json:"weights" msgpack:"weights"`
	Performance      domain.Performance `json:"performance" msgpack:"performance"`
	Allocation       *domain.Allocation `json:"allocation,omitempty" msgpack:"allocation"`
	Shrinkage        float64            `json:"shrinkage" msgpack:"shrinkage"`
	ShrinkageTarget  ShrinkageTarget    `json:"shrinkage_target" msgpack:"shrinkage_target"`
	Regularized      bool               `json:"regularized" msgpack:"regularized"`
	SolverIterations int                `json:"solver_iterations" msgpack:"solver_iterations"`
	HighCorrelations []CorrelationPair  `json:"high_correlations" msgpack:"high_correlations"`
	Constraints      ConstraintsSummary `json:"constraints" msgpack:"constraints"`
	AssetStatistics  []AssetStatistic   `json:"asset_statistics" msgpack:"asset_statistics"`
	Duration         time.Duration      `json:"duration_ns" msgpack:"duration_ns"`
}

// OptimizerService orchestrates the complete portfolio optimization process.
type OptimizerService struct {
	mvOptimizer    *MVOptimizer
	constraintsMgr *ConstraintsManager
	allocator      *allocation.Allocator
	recorder       Recorder
	log            zerolog.Logger
}

// NewOptimizerService creates a new optimizer service.
func NewOptimizerService(
	mvOptimizer *MVOptimizer,
	constraintsMgr *ConstraintsManager,
	allocator *allocation.Allocator,
	log zerolog.Logger,
) *OptimizerService {
	return &OptimizerService{
		mvOptimizer:    mvOptimizer,
		constraintsMgr: constraintsMgr,
		allocator:      allocator,
		recorder:       nopRecorder{},
		log:            log.With().Str("component", "optimizer_service").Logger(),
	}
}

// SetRecorder sets the telemetry sink.
func (os *OptimizerService) SetRecorder(r Recorder) {
	if r == nil {
		r = nopRecorder{}
	}
	os.recorder = r
}

// Optimize runs the complete pipeline on pm: return and covariance estimation, the
// mean-variance solve, weight cleaning and, when settings.Budget is positive, discrete
// allocation against the last row of pm.
func (os *OptimizerService) Optimize(ctx context.Context, pm domain.PriceMatrix, settings Settings) (*Result, error) {
	objective := string(objectiveOrDefault(settings.Objective))
	result, err := os.optimize(ctx, pm, settings)
	if err != nil {
		os.recorder.ObserveRun(objective, domain.ErrorKind(err))
		os.log.Warn().
			Err(err).
			Str("label", settings.Label).
			Str("error_kind", domain.ErrorKind(err)).
			Msg("Optimization failed")
		return nil, err
	}
	os.recorder.ObserveRun(objective, "success")
	return result, nil
}

func (os *OptimizerService) optimize(ctx context.Context, pm domain.PriceMatrix, settings Settings) (*Result, error) {
	started := time.Now()

	if err := pm.Validate(); err != nil {
		return nil, err
	}
	if pm.NumAssets() < MinAssets {
		return nil, &domain.ValidationError{
			Field:   "assets",
			Message: fmt.Sprintf("need at least %d assets, got %d", MinAssets, pm.NumAssets()),
		}
	}

	os.log.Info().
		Str("label", settings.Label).
		Int("assets", pm.NumAssets()).
		Int("observations", pm.NumObservations()).
		Str("objective", string(objectiveOrDefault(settings.Objective))).
		Msg("Starting portfolio optimization")

	// 1. Expected returns
	stageStart := time.Now()
	mu, err := EstimateReturns(pm, settings.Returns)
	if err != nil {
		return nil, fmt.Errorf("failed to estimate returns: %w", err)
	}
	os.recorder.ObserveStage(StageReturns, time.Since(stageStart))

	// 2. Covariance
	stageStart = time.Now()
	cov, err := EstimateCovariance(pm, settings.Covariance)
	if err != nil {
		return nil, fmt.Errorf("failed to estimate covariance: %w", err)
	}
	os.recorder.ObserveStage(StageCovariance, time.Since(stageStart))
	if cov.Regularized {
		os.log.Warn().Msg("Covariance needed diagonal regularization to be positive-definite")
	}

	os.log.Debug().
		Float64("shrinkage", cov.Shrinkage).
		Str("target", string(cov.Target)).
		Msg("Built covariance matrix")

	// 3. Bounds
	bounds, err := os.constraintsMgr.BuildBounds(pm.Assets, settings.Bounds)
	if err != nil {
		return nil, fmt.Errorf("failed to build constraints: %w", err)
	}
	if err := os.constraintsMgr.ValidateConstraints(bounds); err != nil {
		return nil, fmt.Errorf("invalid constraints: %w", err)
	}

	// 4. Solve
	stageStart = time.Now()
	solution, err := os.mvOptimizer.Optimize(ctx, Problem{
		Assets:          pm.Assets,
		ExpectedReturns: mu,
		Covariance:      cov.Matrix,
		RiskFreeRate:    settings.RiskFreeRate,
		Bounds:          bounds,
		Objective:       settings.Objective,
		TargetReturn:    settings.TargetReturn,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to solve %s: %w", objectiveOrDefault(settings.Objective), err)
	}
	os.recorder.ObserveStage(StageSolve, time.Since(stageStart))
	os.recorder.ObserveSolver("active_set", solution.Iterations)

	// 5. Clean
	stageStart = time.Now()
	weights, err := CleanWeights(solution.Assets, solution.RawWeights, settings.Clean)
	if err != nil {
		return nil, fmt.Errorf("failed to clean weights: %w", err)
	}
	os.recorder.ObserveStage(StageClean, time.Since(stageStart))

	perf, err := PortfolioPerformance(weights.Values(), mu, cov.Matrix, settings.RiskFreeRate)
	if err != nil {
		return nil, fmt.Errorf("failed to compute performance: %w", err)
	}

	stats, err := AssetStatistics(pm, settings.Returns)
	if err != nil {
		return nil, fmt.Errorf("failed to compute asset statistics: %w", err)
	}

	result := &Result{
		Label:            settings.Label,
		Timestamp:        started.UTC(),
		Assets:           append([]string(nil), pm.Assets...),
		Objective:        solution.Objective,
		Observations:     pm.NumObservations(),
		RiskFreeRate:     settings.RiskFreeRate,
		ExpectedReturns:  domain.NewWeights(pm.Assets, mu).Map(),
		RawWeights:       solution.Weights(),
		Weights:          weights,
		Performance:      perf,
		Shrinkage:        cov.Shrinkage,
		ShrinkageTarget:  cov.Target,
		Regularized:      cov.Regularized,
		SolverIterations: solution.Iterations,
		HighCorrelations: cov.HighCorrelations(HighCorrelationThreshold),
		Constraints:      os.constraintsMgr.GetConstraintSummary(bounds),
		AssetStatistics:  stats,
	}

	// 6. Discrete allocation
	if settings.Budget > 0 {
		stageStart = time.Now()
		alloc, err := os.allocator.Allocate(ctx, weights, pm.LatestPrices(), settings.Budget, settings.AllocationMethod)
		if err != nil {
			return nil, fmt.Errorf("failed to allocate shares: %w", err)
		}
		os.recorder.ObserveStage(StageAllocate, time.Since(stageStart))
		if alloc.Nodes > 0 {
			os.recorder.ObserveSolver("branch_and_bound", alloc.Nodes)
		}
		result.Allocation = alloc
	}

	result.Duration = time.Since(started)

	os.log.Info().
		Str("label", settings.Label).
		Int("holdings", len(weights.NonZero())).
		Float64("expected_return", perf.ExpectedReturn).
		Float64("volatility", perf.Volatility).
		Float64("sharpe", perf.SharpeRatio).
		Dur("duration", result.Duration).
		Msg("Optimization completed successfully")

	return result, nil
}

// BatchOutcome is one entry of OptimizeBatch; exactly one of Result and Err is set.
type BatchOutcome struct {
	Settings Settings
	Result   *Result
	Err      error
}

// OptimizeBatch runs every settings entry against the same price matrix, at most
// parallelism at a time. Entries fail independently; only context cancellation aborts
// the batch.
func (os *OptimizerService) OptimizeBatch(
	ctx context.Context,
	pm domain.PriceMatrix,
	batch []Settings,
	parallelism int,
) ([]BatchOutcome, error) {
	if parallelism <= 0 {
		parallelism = 1
	}

	outcomes := make([]BatchOutcome, len(batch))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)

	for i := range batch {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			result, err := os.Optimize(gctx, pm, batch[i])
			outcomes[i] = BatchOutcome{Settings: batch[i], Result: result, Err: err}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	os.log.Info().
		Int("runs", len(batch)).
		Int("parallelism", parallelism).
		Msg("Batch optimization finished")

	return outcomes, nil
}
