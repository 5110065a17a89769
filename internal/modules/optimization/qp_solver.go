package optimization

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"github.com/aristath/frontier/internal/domain"
)

// Solver defaults.
const (
	DefaultMaxIterations = 500
	DefaultQPTolerance   = 1e-9
)

// QuadraticProgram is
//
//	minimize    ½ x'Gx + c'x
//	subject to  Aeq x  = beq
//	            Ain x >= bin
//
// G must be positive-definite and the rows of Aeq linearly independent.
type QuadraticProgram struct {
	G   *mat.SymDense
	C   []float64
	Aeq *mat.Dense
	Beq []float64
	Ain *mat.Dense
	Bin []float64
}

// Dim returns the number of variables.
func (qp QuadraticProgram) Dim() int {
	return qp.G.SymmetricDim()
}

func (qp QuadraticProgram) numEq() int {
	if qp.Aeq == nil {
		return 0
	}
	r, _ := qp.Aeq.Dims()
	return r
}

func (qp QuadraticProgram) numIneq() int {
	if qp.Ain == nil {
		return 0
	}
	r, _ := qp.Ain.Dims()
	return r
}

// Objective evaluates ½ x'Gx + c'x.
func (qp QuadraticProgram) Objective(x []float64) float64 {
	xv := mat.NewVecDense(len(x), x)
	val := 0.5 * mat.Inner(xv, qp.G, xv)
	for i, ci := range qp.C {
		val += ci * x[i]
	}
	return val
}

// QPResult is the solution of a QuadraticProgram.
type QPResult struct {
	X          []float64
	Objective  float64
	Iterations int
	// Active lists the inequality rows in the final working set.
	Active []int
}

// ActiveSetSolver is a primal active-set method for convex quadratic programs
// (Nocedal & Wright, Algorithm 16.3). Each iteration solves the equality-constrained
// subproblem on the current working set through its KKT system.
type ActiveSetSolver struct {
	MaxIterations int
	Tolerance     float64
	log           zerolog.Logger
}

// NewActiveSetSolver creates a solver with the default iteration budget and tolerance.
func NewActiveSetSolver(log zerolog.Logger) *ActiveSetSolver {
	return &ActiveSetSolver{
		MaxIterations: DefaultMaxIterations,
		Tolerance:     DefaultQPTolerance,
		log:           log.With().Str("component", "qp_solver").Logger(),
	}
}

// Solve runs the active-set iteration from the feasible point x0.
func (s *ActiveSetSolver) Solve(ctx context.Context, qp QuadraticProgram, x0 []float64) (*QPResult, error) {
	n := qp.Dim()
	if len(x0) != n {
		return nil, fmt.Errorf("initial point has %d entries, expected %d", len(x0), n)
	}
	if len(qp.C) != n {
		return nil, fmt.Errorf("linear term has %d entries, expected %d", len(qp.C), n)
	}

	tol := s.Tolerance
	if tol <= 0 {
		tol = DefaultQPTolerance
	}
	maxIter := s.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}

	x := append([]float64(nil), x0...)
	if err := qp.checkFeasible(x, 1e-7); err != nil {
		return nil, err
	}

	mIn := qp.numIneq()
	working := make([]bool, mIn)
	var residual float64

	for iter := 1; iter <= maxIter; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		active := activeRows(working)
		p, lambda, err := qp.solveKKT(x, active)
		if err != nil {
			return nil, fmt.Errorf("KKT system at iteration %d: %w", iter, err)
		}
		residual = infNorm(p)

		if residual <= tol*math.Max(1, infNorm(x)) {
			// Stationary on the working set: check inequality multipliers.
			neq := qp.numEq()
			drop := -1
			minLambda := -tol
			for k, row := range active {
				if l := lambda[neq+k]; l < minLambda {
					minLambda = l
					drop = row
				}
			}
			if drop < 0 {
				s.log.Debug().
					Int("iterations", iter).
					Int("active", len(active)).
					Msg("Active-set solver converged")
				return &QPResult{
					X:          x,
					Objective:  qp.Objective(x),
					Iterations: iter,
					Active:     active,
				}, nil
			}
			working[drop] = false
			continue
		}

		alpha := 1.0
		blocking := -1
		for j := 0; j < mIn; j++ {
			if working[j] {
				continue
			}
			ap := rowDot(qp.Ain, j, p)
			if ap >= -tol {
				continue
			}
			ratio := (qp.Bin[j] - rowDot(qp.Ain, j, x)) / ap
			if ratio < 0 {
				ratio = 0
			}
			if ratio < alpha {
				alpha = ratio
				blocking = j
			}
		}

		for i := range x {
			x[i] += alpha * p[i]
		}
		if blocking >= 0 {
			working[blocking] = true
		}
	}

	return nil, &domain.SolverDidNotConvergeError{
		Solver:      "active-set QP",
		Iterations:  maxIter,
		LastIterate: x,
		Residual:    residual,
	}
}

// solveKKT solves
//
//	[ G  -A' ] [ p ]   [ -(Gx + c) ]
//	[ A   0  ] [ λ ] = [     0     ]
//
// where A stacks the equality rows and the working inequality rows.
func (qp QuadraticProgram) solveKKT(x []float64, active []int) ([]float64, []float64, error) {
	n := qp.Dim()
	neq := qp.numEq()
	m := neq + len(active)
	size := n + m

	kkt := mat.NewDense(size, size, nil)
	rhs := mat.NewVecDense(size, nil)

	xv := mat.NewVecDense(n, x)
	var grad mat.VecDense
	grad.MulVec(qp.G, xv)
	for i := 0; i < n; i++ {
		rhs.SetVec(i, -(grad.AtVec(i) + qp.C[i]))
		for j := 0; j < n; j++ {
			kkt.Set(i, j, qp.G.At(i, j))
		}
	}

	setRow := func(k int, a *mat.Dense, row int) {
		for j := 0; j < n; j++ {
			v := a.At(row, j)
			kkt.Set(n+k, j, v)
			kkt.Set(j, n+k, -v)
		}
	}
	for k := 0; k < neq; k++ {
		setRow(k, qp.Aeq, k)
	}
	for k, row := range active {
		setRow(neq+k, qp.Ain, row)
	}

	var sol mat.VecDense
	if err := sol.SolveVec(kkt, rhs); err != nil {
		// An ill-conditioned but solvable system still yields a usable step.
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, nil, err
		}
	}

	p := make([]float64, n)
	for i := range p {
		p[i] = sol.AtVec(i)
	}
	lambda := make([]float64, m)
	for k := range lambda {
		lambda[k] = sol.AtVec(n + k)
	}
	return p, lambda, nil
}

func (qp QuadraticProgram) checkFeasible(x []float64, tol float64) error {
	for k := 0; k < qp.numEq(); k++ {
		if r := rowDot(qp.Aeq, k, x) - qp.Beq[k]; math.Abs(r) > tol*math.Max(1, math.Abs(qp.Beq[k])) {
			return fmt.Errorf("initial point violates equality row %d by %.3g", k, r)
		}
	}
	for k := 0; k < qp.numIneq(); k++ {
		if r := rowDot(qp.Ain, k, x) - qp.Bin[k]; r < -tol*math.Max(1, math.Abs(qp.Bin[k])) {
			return fmt.Errorf("initial point violates inequality row %d by %.3g", k, -r)
		}
	}
	return nil
}

func activeRows(working []bool) []int {
	rows := make([]int, 0, len(working))
	for j, in := range working {
		if in {
			rows = append(rows, j)
		}
	}
	return rows
}

func rowDot(a *mat.Dense, row int, x []float64) float64 {
	var sum float64
	for j, xj := range x {
		sum += a.At(row, j) * xj
	}
	return sum
}

func infNorm(v []float64) float64 {
	var m float64
	for _, x := range v {
		if a := math.Abs(x); a > m {
			m = a
		}
	}
	return m
}
