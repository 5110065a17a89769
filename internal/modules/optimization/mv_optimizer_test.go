package optimization

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/frontier/internal/domain"
)

func twoAssetProblem(objective Objective) Problem {
	return Problem{
		Assets:          []string{"A", "B"},
		ExpectedReturns: []float64{0.12, 0.08},
		Covariance: symMatrix([][]float64{
			{0.04, 0.01},
			{0.01, 0.03},
		}),
		Objective: objective,
	}
}

func TestMVOptimizer_MaxSharpe(t *testing.T) {
	optimizer := NewMVOptimizer(nil, zerolog.Nop())

	solution, err := optimizer.Optimize(context.Background(), twoAssetProblem(ObjectiveMaxSharpe))
	require.NoError(t, err)

	// Interior tangency portfolio: w ∝ Σ⁻¹μ = [0.0028, 0.0020].
	assert.InDelta(t, 0.0028/0.0048, solution.RawWeights[0], 1e-6)
	assert.InDelta(t, 0.0020/0.0048, solution.RawWeights[1], 1e-6)
	assert.Equal(t, FormulationHomogenized, solution.Formulation)
	assert.Equal(t, ObjectiveMaxSharpe, solution.Objective)
	assert.Positive(t, solution.Iterations)
}

func TestMVOptimizer_DefaultsToMaxSharpe(t *testing.T) {
	optimizer := NewMVOptimizer(nil, zerolog.Nop())

	solution, err := optimizer.Optimize(context.Background(), twoAssetProblem(""))
	require.NoError(t, err)
	assert.Equal(t, ObjectiveMaxSharpe, solution.Objective)
}

func TestMVOptimizer_MaxSharpeRespectsUpperBound(t *testing.T) {
	optimizer := NewMVOptimizer(nil, zerolog.Nop())

	problem := twoAssetProblem(ObjectiveMaxSharpe)
	problem.Bounds = []domain.Bounds{{Lower: 0, Upper: 0.5}, {Lower: 0, Upper: 1}}

	solution, err := optimizer.Optimize(context.Background(), problem)
	require.NoError(t, err)

	assert.InDelta(t, 0.5, solution.RawWeights[0], 1e-6)
	assert.InDelta(t, 0.5, solution.RawWeights[1], 1e-6)
	assert.LessOrEqual(t, solution.RawWeights[0], 0.5)
	assert.Equal(t, 1, solution.ActiveConstraints)
}

func TestMVOptimizer_MinVolatility(t *testing.T) {
	optimizer := NewMVOptimizer(nil, zerolog.Nop())

	solution, err := optimizer.Optimize(context.Background(), twoAssetProblem(ObjectiveMinVolatility))
	require.NoError(t, err)

	// (σB² - σAB) / (σA² + σB² - 2σAB) = 0.02 / 0.05
	assert.InDelta(t, 0.4, solution.RawWeights[0], 1e-6)
	assert.InDelta(t, 0.6, solution.RawWeights[1], 1e-6)
	assert.Equal(t, FormulationDirect, solution.Formulation)
}

func TestMVOptimizer_EfficientReturn(t *testing.T) {
	optimizer := NewMVOptimizer(nil, zerolog.Nop())

	problem := twoAssetProblem(ObjectiveEfficientReturn)
	problem.TargetReturn = 0.10

	solution, err := optimizer.Optimize(context.Background(), problem)
	require.NoError(t, err)

	// The minimum-variance portfolio only returns 9.6%, so the target binds.
	assert.InDelta(t, 0.5, solution.RawWeights[0], 1e-6)
	assert.InDelta(t, 0.5, solution.RawWeights[1], 1e-6)

	achieved := 0.12*solution.RawWeights[0] + 0.08*solution.RawWeights[1]
	assert.GreaterOrEqual(t, achieved, 0.10-1e-9)
}

func TestMVOptimizer_EfficientReturnUnreachable(t *testing.T) {
	optimizer := NewMVOptimizer(nil, zerolog.Nop())

	problem := twoAssetProblem(ObjectiveEfficientReturn)
	problem.TargetReturn = 0.15

	_, err := optimizer.Optimize(context.Background(), problem)
	var infeasible *domain.InfeasibleError
	require.True(t, errors.As(err, &infeasible))
	assert.Equal(t, ConstraintTargetReturn, infeasible.Constraint)
}

func TestMVOptimizer_AntiCorrelatedPairSplitsEvenly(t *testing.T) {
	optimizer := NewMVOptimizer(nil, zerolog.Nop())

	problem := Problem{
		Assets:          []string{"A", "B"},
		ExpectedReturns: []float64{0.10, 0.10},
		Covariance: symMatrix([][]float64{
			{0.04, -0.04 * 0.999},
			{-0.04 * 0.999, 0.04},
		}),
	}

	solution, err := optimizer.Optimize(context.Background(), problem)
	require.NoError(t, err)

	assert.InDelta(t, 0.5, solution.RawWeights[0], 1e-6)
	assert.InDelta(t, 0.5, solution.RawWeights[1], 1e-6)

	perf, err := PortfolioPerformance(solution.RawWeights, problem.ExpectedReturns, problem.Covariance, 0)
	require.NoError(t, err)
	assert.Less(t, perf.Volatility, 0.01)
	assert.Less(t, perf.Volatility, math.Sqrt(0.04)/10)
}

func TestMVOptimizer_BeatsUniformPortfolio(t *testing.T) {
	pm := syntheticPrices(t, 7, 260,
		[]float64{0.0009, 0.0004, 0.0006, 0.0002},
		[]float64{0.015, 0.010, 0.020, 0.008},
	)
	mu, err := EstimateReturns(pm, DefaultReturnSettings())
	require.NoError(t, err)
	cov, err := EstimateCovariance(pm, DefaultCovarianceSettings())
	require.NoError(t, err)

	best := mu[0]
	for _, m := range mu {
		best = math.Max(best, m)
	}
	require.Positive(t, best, "fixture needs at least one asset above the risk-free rate")

	optimizer := NewMVOptimizer(nil, zerolog.Nop())
	solution, err := optimizer.Optimize(context.Background(), Problem{
		Assets:          pm.Assets,
		ExpectedReturns: mu,
		Covariance:      cov.Matrix,
	})
	require.NoError(t, err)

	assert.InDelta(t, 1.0, sum(solution.RawWeights), 1e-6)
	for _, w := range solution.RawWeights {
		assert.GreaterOrEqual(t, w, 0.0)
		assert.LessOrEqual(t, w, 1.0)
	}

	optimal, err := PortfolioPerformance(solution.RawWeights, mu, cov.Matrix, 0)
	require.NoError(t, err)
	uniform, err := PortfolioPerformance([]float64{0.25, 0.25, 0.25, 0.25}, mu, cov.Matrix, 0)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, optimal.SharpeRatio, uniform.SharpeRatio-1e-9)
}

func TestMVOptimizer_ShortBoundsNeverLowerSharpe(t *testing.T) {
	problem := Problem{
		Assets:          []string{"A", "B", "C"},
		ExpectedReturns: []float64{0.10, 0.02, 0.06},
		Covariance: symMatrix([][]float64{
			{0.040, 0.018, 0.010},
			{0.018, 0.020, 0.004},
			{0.010, 0.004, 0.030},
		}),
	}
	optimizer := NewMVOptimizer(nil, zerolog.Nop())

	longOnly, err := optimizer.Optimize(context.Background(), problem)
	require.NoError(t, err)

	problem.Bounds = []domain.Bounds{{Lower: -0.3, Upper: 1}, {Lower: -0.3, Upper: 1}, {Lower: -0.3, Upper: 1}}
	withShorts, err := optimizer.Optimize(context.Background(), problem)
	require.NoError(t, err)

	assert.InDelta(t, 1.0, sum(withShorts.RawWeights), 1e-6)
	for _, w := range withShorts.RawWeights {
		assert.GreaterOrEqual(t, w, -0.3)
		assert.LessOrEqual(t, w, 1.0)
	}

	a, err := PortfolioPerformance(longOnly.RawWeights, problem.ExpectedReturns, problem.Covariance, 0)
	require.NoError(t, err)
	b, err := PortfolioPerformance(withShorts.RawWeights, problem.ExpectedReturns, problem.Covariance, 0)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, b.SharpeRatio, a.SharpeRatio-1e-9)
}

func TestMVOptimizer_Errors(t *testing.T) {
	optimizer := NewMVOptimizer(nil, zerolog.Nop())

	t.Run("no asset beats the risk-free rate", func(t *testing.T) {
		problem := twoAssetProblem(ObjectiveMaxSharpe)
		problem.RiskFreeRate = 0.15

		_, err := optimizer.Optimize(context.Background(), problem)
		var noSharpe *domain.NoSharpeImprovingAssetError
		require.True(t, errors.As(err, &noSharpe))
		assert.Equal(t, "A", noSharpe.BestAsset)
		assert.Equal(t, 0.15, noSharpe.RiskFreeRate)
	})

	t.Run("bounds cannot sum to one", func(t *testing.T) {
		problem := twoAssetProblem(ObjectiveMaxSharpe)
		problem.Bounds = []domain.Bounds{{Lower: 0, Upper: 0.3}, {Lower: 0, Upper: 0.3}}

		_, err := optimizer.Optimize(context.Background(), problem)
		var infeasible *domain.InfeasibleError
		require.True(t, errors.As(err, &infeasible))
		assert.Equal(t, ConstraintBudget, infeasible.Constraint)
	})

	t.Run("positive excess return unattainable", func(t *testing.T) {
		problem := twoAssetProblem(ObjectiveMaxSharpe)
		problem.ExpectedReturns = []float64{0.10, -0.05}
		problem.Bounds = []domain.Bounds{{Lower: 0, Upper: 0.2}, {Lower: 0.8, Upper: 1}}

		_, err := optimizer.Optimize(context.Background(), problem)
		var infeasible *domain.InfeasibleError
		require.True(t, errors.As(err, &infeasible))
		assert.Equal(t, ConstraintExcessReturn, infeasible.Constraint)
	})

	t.Run("singular covariance", func(t *testing.T) {
		problem := twoAssetProblem(ObjectiveMaxSharpe)
		problem.Covariance = symMatrix([][]float64{{0.04, 0.04}, {0.04, 0.04}})

		_, err := optimizer.Optimize(context.Background(), problem)
		var degenerate *domain.DegenerateCovarianceError
		require.True(t, errors.As(err, &degenerate))
	})

	t.Run("mismatched covariance", func(t *testing.T) {
		problem := twoAssetProblem(ObjectiveMaxSharpe)
		problem.Covariance = symMatrix([][]float64{{0.04}})

		_, err := optimizer.Optimize(context.Background(), problem)
		var validation *domain.ValidationError
		require.True(t, errors.As(err, &validation))
		assert.Equal(t, "covariance", validation.Field)
	})

	t.Run("unknown objective", func(t *testing.T) {
		_, err := optimizer.Optimize(context.Background(), twoAssetProblem("efficient_risk"))
		assert.Error(t, err)
	})
}

func TestMVOptimizer_IterationLimit(t *testing.T) {
	solver := NewActiveSetSolver(zerolog.Nop())
	solver.MaxIterations = 1
	optimizer := NewMVOptimizer(solver, zerolog.Nop())

	_, err := optimizer.Optimize(context.Background(), twoAssetProblem(ObjectiveMaxSharpe))

	var notConverged *domain.SolverDidNotConvergeError
	require.True(t, errors.As(err, &notConverged))
	assert.Equal(t, 1, notConverged.Iterations)
	assert.Len(t, notConverged.LastIterate, 2)
}

func TestMVOptimizer_Deterministic(t *testing.T) {
	optimizer := NewMVOptimizer(nil, zerolog.Nop())

	first, err := optimizer.Optimize(context.Background(), twoAssetProblem(ObjectiveMaxSharpe))
	require.NoError(t, err)
	second, err := optimizer.Optimize(context.Background(), twoAssetProblem(ObjectiveMaxSharpe))
	require.NoError(t, err)

	assert.Equal(t, first.RawWeights, second.RawWeights)
}
