package allocation

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/frontier/internal/domain"
)

func weightsOf(pairs ...interface{}) domain.Weights {
	w := make(domain.Weights, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		w = append(w, domain.AssetWeight{Asset: pairs[i].(string), Weight: pairs[i+1].(float64)})
	}
	return w
}

func TestAllocate_ThreeAssetScenario(t *testing.T) {
	allocator := NewAllocator(zerolog.Nop())
	weights := weightsOf("A", 0.5, "B", 0.3, "C", 0.2)
	prices := map[string]float64{"A": 100, "B": 50, "C": 25}

	for _, method := range []Method{MethodLP, MethodGreedy} {
		t.Run(string(method), func(t *testing.T) {
			alloc, err := allocator.Allocate(context.Background(), weights, prices, 1000, method)
			require.NoError(t, err)

			assert.Equal(t, map[string]int{"A": 5, "B": 6, "C": 8}, alloc.Shares)
			assert.Equal(t, 1000.0, alloc.Cost)
			assert.Equal(t, 0.0, alloc.Leftover)
			assert.Less(t, alloc.Leftover, 25.0)
			assert.Equal(t, string(method), alloc.Method)
			assert.Equal(t, 1000.0, alloc.Budget)
		})
	}
}

func TestAllocate_LeftoverBelowCheapestPrice(t *testing.T) {
	allocator := NewAllocator(zerolog.Nop())
	weights := weightsOf("A", 0.25, "B", 0.25, "C", 0.25, "D", 0.25)
	prices := map[string]float64{"A": 37.5, "B": 81.2, "C": 12.3, "D": 250}

	for _, method := range []Method{MethodLP, MethodGreedy} {
		t.Run(string(method), func(t *testing.T) {
			alloc, err := allocator.Allocate(context.Background(), weights, prices, 1000, method)
			require.NoError(t, err)

			var cost float64
			for asset, n := range alloc.Shares {
				assert.Positive(t, n)
				cost += float64(n) * prices[asset]
			}
			assert.InDelta(t, cost, alloc.Cost, 1e-9)
			assert.LessOrEqual(t, alloc.Cost, 1000.0)
			assert.InDelta(t, 1000-alloc.Cost, alloc.Leftover, 1e-9)
			assert.GreaterOrEqual(t, alloc.Leftover, 0.0)
			assert.Less(t, alloc.Leftover, 12.3)
		})
	}
}

func TestAllocate_ExactNeverWorseThanGreedy(t *testing.T) {
	allocator := NewAllocator(zerolog.Nop())
	weights := weightsOf("A", 0.4, "B", 0.35, "C", 0.25)
	prices := map[string]float64{"A": 333, "B": 270, "C": 410}

	prob, err := newProblem(weights, prices, 2000)
	require.NoError(t, err)

	greedy := greedyShares(prob)
	exact, nodes, method, err := allocator.branchAndBound(context.Background(), prob)
	require.NoError(t, err)
	assert.Equal(t, MethodLP, method)

	assert.Positive(t, nodes)
	assert.LessOrEqual(t, prob.deviation(exact), prob.deviation(greedy)+1e-9)
	assert.False(t, prob.cost(exact).GreaterThan(prob.dbudget))
}

func TestAllocate_GreedyTieBreaksOnLowestIndex(t *testing.T) {
	allocator := NewAllocator(zerolog.Nop())
	weights := weightsOf("A", 0.5, "B", 0.5)
	prices := map[string]float64{"A": 30, "B": 30}

	alloc, err := allocator.Allocate(context.Background(), weights, prices, 100, MethodGreedy)
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"A": 2, "B": 1}, alloc.Shares)
	assert.Equal(t, 10.0, alloc.Leftover)
}

func TestAllocate_GreedyDeterministic(t *testing.T) {
	allocator := NewAllocator(zerolog.Nop())
	weights := weightsOf("A", 0.3, "B", 0.3, "C", 0.4)
	prices := map[string]float64{"A": 17, "B": 23, "C": 41}

	first, err := allocator.Allocate(context.Background(), weights, prices, 777, MethodGreedy)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := allocator.Allocate(context.Background(), weights, prices, 777, MethodGreedy)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestAllocate_SkipsZeroWeights(t *testing.T) {
	allocator := NewAllocator(zerolog.Nop())
	weights := weightsOf("A", 1.0, "CHEAP", 0.0)
	prices := map[string]float64{"A": 30, "CHEAP": 1}

	alloc, err := allocator.Allocate(context.Background(), weights, prices, 100, MethodLP)
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"A": 3}, alloc.Shares)
	assert.Equal(t, 10.0, alloc.Leftover)
}

func TestAllocate_Errors(t *testing.T) {
	allocator := NewAllocator(zerolog.Nop())
	weights := weightsOf("A", 0.6, "B", 0.4)
	prices := map[string]float64{"A": 100, "B": 50}

	t.Run("budget too small", func(t *testing.T) {
		_, err := allocator.Allocate(context.Background(), weights, prices, 40, MethodLP)

		var tooSmall *domain.BudgetTooSmallError
		require.True(t, errors.As(err, &tooSmall))
		assert.Equal(t, 50.0, tooSmall.MinimumRequired)
		assert.Equal(t, "B", tooSmall.Asset)
		assert.Equal(t, 40.0, tooSmall.Budget)
	})

	t.Run("missing price", func(t *testing.T) {
		_, err := allocator.Allocate(context.Background(), weights, map[string]float64{"A": 100}, 1000, MethodLP)

		var validation *domain.ValidationError
		require.True(t, errors.As(err, &validation))
		assert.Equal(t, "prices", validation.Field)
	})

	t.Run("non-positive budget", func(t *testing.T) {
		_, err := allocator.Allocate(context.Background(), weights, prices, 0, MethodGreedy)

		var validation *domain.ValidationError
		require.True(t, errors.As(err, &validation))
		assert.Equal(t, "budget", validation.Field)
	})

	t.Run("nothing to buy", func(t *testing.T) {
		_, err := allocator.Allocate(context.Background(), weightsOf("A", 0.0), prices, 1000, MethodGreedy)

		var empty *domain.EmptyPortfolioError
		assert.True(t, errors.As(err, &empty))
	})

	t.Run("unknown method", func(t *testing.T) {
		_, err := allocator.Allocate(context.Background(), weights, prices, 1000, "random")
		assert.Error(t, err)
	})
}

func TestAllocate_NodeLimit(t *testing.T) {
	allocator := NewAllocator(zerolog.Nop())
	allocator.NodeLimit = 1
	weights := weightsOf("A", 0.31, "B", 0.29, "C", 0.23, "D", 0.17)
	prices := map[string]float64{"A": 137.13, "B": 51.7, "C": 23.9, "D": 77.77}

	_, err := allocator.Allocate(context.Background(), weights, prices, 10000, MethodLP)

	var notConverged *domain.SolverDidNotConvergeError
	require.True(t, errors.As(err, &notConverged), "got %v", err)
	assert.Equal(t, "branch-and-bound", notConverged.Solver)
	assert.Equal(t, 1, notConverged.Iterations)
	require.Len(t, notConverged.LastIterate, 4)
	var spent float64
	for i, asset := range []string{"A", "B", "C", "D"} {
		spent += notConverged.LastIterate[i] * prices[asset]
	}
	assert.LessOrEqual(t, spent, 10000.0)
}

func TestAllocate_RootRelaxationFailureFallsBackToGreedy(t *testing.T) {
	allocator := NewAllocator(zerolog.Nop())
	calls := 0
	allocator.relax = func(*problem, node) (float64, []float64, error) {
		calls++
		return 0, nil, errors.New("singular basis")
	}
	weights := weightsOf("A", 0.5, "B", 0.3, "C", 0.2)
	prices := map[string]float64{"A": 100, "B": 50, "C": 25}

	alloc, err := allocator.Allocate(context.Background(), weights, prices, 1000, MethodLP)
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.Equal(t, string(MethodGreedy), alloc.Method)
	assert.Equal(t, map[string]int{"A": 5, "B": 6, "C": 8}, alloc.Shares)
	assert.Equal(t, 1, alloc.Nodes)
}

func TestAllocate_HonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewAllocator(zerolog.Nop()).Allocate(ctx, weightsOf("A", 0.5, "B", 0.5), map[string]float64{"A": 7, "B": 11}, 100, MethodLP)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseMethod(t *testing.T) {
	m, err := ParseMethod("")
	require.NoError(t, err)
	assert.Equal(t, MethodLP, m)

	m, err = ParseMethod("greedy")
	require.NoError(t, err)
	assert.Equal(t, MethodGreedy, m)

	_, err = ParseMethod("simplex")
	assert.Error(t, err)
}
