package optimization

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// Nocedal & Wright, Example 16.4:
// minimize (x1-1)² + (x2-2.5)² over a pentagon; optimum (1.4, 1.7).
func textbookQP() QuadraticProgram {
	return QuadraticProgram{
		G: symMatrix([][]float64{{2, 0}, {0, 2}}),
		C: []float64{-2, -5},
		Ain: mat.NewDense(5, 2, []float64{
			1, -2,
			-1, -2,
			-1, 2,
			1, 0,
			0, 1,
		}),
		Bin: []float64{-2, -6, -2, 0, 0},
	}
}

func TestActiveSetSolver_TextbookExample(t *testing.T) {
	solver := NewActiveSetSolver(zerolog.Nop())

	result, err := solver.Solve(context.Background(), textbookQP(), []float64{2, 0})
	require.NoError(t, err)

	assert.InDelta(t, 1.4, result.X[0], 1e-9)
	assert.InDelta(t, 1.7, result.X[1], 1e-9)
	assert.Equal(t, []int{0}, result.Active)
	assert.InDelta(t, 0.8, result.Objective+1+6.25, 1e-9)
}

func TestActiveSetSolver_InteriorOptimum(t *testing.T) {
	qp := textbookQP()
	qp.C = []float64{-2, -2} // unconstrained minimum (1, 1) is feasible

	result, err := NewActiveSetSolver(zerolog.Nop()).Solve(context.Background(), qp, []float64{0, 0})
	require.NoError(t, err)

	assert.InDelta(t, 1.0, result.X[0], 1e-9)
	assert.InDelta(t, 1.0, result.X[1], 1e-9)
	assert.Empty(t, result.Active)
}

func TestActiveSetSolver_EqualityConstrained(t *testing.T) {
	qp := QuadraticProgram{
		G:   symMatrix([][]float64{{2, 0}, {0, 2}}),
		C:   []float64{0, 0},
		Aeq: mat.NewDense(1, 2, []float64{1, 1}),
		Beq: []float64{1},
	}

	result, err := NewActiveSetSolver(zerolog.Nop()).Solve(context.Background(), qp, []float64{1, 0})
	require.NoError(t, err)

	assert.InDelta(t, 0.5, result.X[0], 1e-12)
	assert.InDelta(t, 0.5, result.X[1], 1e-12)
}

func TestActiveSetSolver_RejectsInfeasibleStart(t *testing.T) {
	_, err := NewActiveSetSolver(zerolog.Nop()).Solve(context.Background(), textbookQP(), []float64{-1, 0})
	assert.Error(t, err)
}

func TestActiveSetSolver_HonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewActiveSetSolver(zerolog.Nop()).Solve(ctx, textbookQP(), []float64{2, 0})
	assert.ErrorIs(t, err, context.Canceled)
}
