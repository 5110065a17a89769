package allocation

import (
	"context"
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"

	"github.com/aristath/frontier/internal/domain"
)

const (
	integralityTol = 1e-6
	simplexTol     = 1e-10
	improvementTol = 1e-9
)

// node is a branch-and-bound subproblem: share bounds per holding.
type node struct {
	lo []int
	hi []int // -1 means unbounded
}

func (n node) child(i, lo, hi int) node {
	c := node{
		lo: append([]int(nil), n.lo...),
		hi: append([]int(nil), n.hi...),
	}
	if lo >= 0 {
		c.lo[i] = lo
	}
	if hi >= 0 {
		c.hi[i] = hi
	}
	return c
}

// branchAndBound solves
//
//	minimize    sum_i |w_i B - x_i p_i| + L
//	subject to  sum_i x_i p_i + L = B,  L >= 0,  x_i >= 0 integer
//
// depth-first over LP relaxations, starting from the greedy incumbent. The returned
// plan has gone through fill, so leftover is below the cheapest eligible price. When the
// root relaxation cannot be solved the greedy plan is returned with MethodGreedy.
func (a *Allocator) branchAndBound(ctx context.Context, p *problem) ([]int, int, Method, error) {
	k := len(p.holdings)
	incumbent := greedyShares(p)
	best := p.deviation(incumbent)

	limit := a.NodeLimit
	if limit <= 0 {
		limit = DefaultNodeLimit
	}

	root := node{lo: make([]int, k), hi: make([]int, k)}
	for i := range root.hi {
		root.hi[i] = -1
	}
	stack := []node{root}
	nodes := 0

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, nodes, MethodLP, err
		}
		if nodes >= limit {
			last := make([]float64, k)
			for i, n := range incumbent {
				last[i] = float64(n)
			}
			return nil, nodes, MethodLP, &domain.SolverDidNotConvergeError{
				Solver:      "branch-and-bound",
				Iterations:  nodes,
				LastIterate: last,
				Residual:    best,
			}
		}

		nd := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		nodes++

		bound, x, err := a.solveRelaxation(p, nd)
		if err != nil {
			if nodes == 1 {
				a.log.Warn().Err(err).Msg("Root LP relaxation failed, falling back to greedy allocation")
				return incumbent, nodes, MethodGreedy, nil
			}
			if !errors.Is(err, lp.ErrInfeasible) {
				a.log.Warn().Err(err).Int("node", nodes).Msg("LP relaxation failed, pruning node")
			}
			continue
		}
		if bound >= best-improvementTol {
			continue
		}

		branch := -1
		bestDist := math.Inf(1)
		for i := 0; i < k; i++ {
			frac := x[i] - math.Floor(x[i])
			if frac < integralityTol || frac > 1-integralityTol {
				continue
			}
			if d := math.Abs(frac - 0.5); d < bestDist {
				bestDist = d
				branch = i
			}
		}

		if branch < 0 {
			candidate := make([]int, k)
			for i := range candidate {
				candidate[i] = int(math.Round(x[i]))
			}
			if p.cost(candidate).GreaterThan(p.dbudget) {
				continue
			}
			if dev := p.deviation(candidate); dev < best-improvementTol {
				best = dev
				incumbent = candidate
			}
			continue
		}

		down := int(math.Floor(x[branch]))
		stack = append(stack,
			nd.child(branch, down+1, -1),
			nd.child(branch, -1, down),
		)
	}

	p.fill(incumbent)

	a.log.Debug().
		Int("nodes", nodes).
		Float64("objective", p.deviation(incumbent)).
		Msg("Branch-and-bound finished")

	return incumbent, nodes, MethodLP, nil
}

func (a *Allocator) solveRelaxation(p *problem, nd node) (float64, []float64, error) {
	if a.relax != nil {
		return a.relax(p, nd)
	}
	return p.relax(nd)
}

// relax solves the LP relaxation of nd in standard form. Columns are
// x (k), e+ (k), e- (k), L, then one slack per finite branching bound.
// Rows are x_i p_i + e+_i - e-_i = w_i B, sum x_i p_i + L = B, then the bounds.
func (p *problem) relax(nd node) (float64, []float64, error) {
	k := len(p.holdings)

	type boundRow struct {
		asset int
		value int
		upper bool
	}
	var rows []boundRow
	for i := 0; i < k; i++ {
		if nd.lo[i] > 0 {
			rows = append(rows, boundRow{asset: i, value: nd.lo[i]})
		}
		if nd.hi[i] >= 0 {
			rows = append(rows, boundRow{asset: i, value: nd.hi[i], upper: true})
		}
	}

	cols := 3*k + 1 + len(rows)
	m := k + 1 + len(rows)
	A := mat.NewDense(m, cols, nil)
	b := make([]float64, m)
	c := make([]float64, cols)

	leftover := 3 * k
	for i, h := range p.holdings {
		A.Set(i, i, h.price)
		A.Set(i, k+i, 1)
		A.Set(i, 2*k+i, -1)
		b[i] = p.target(i)

		A.Set(k, i, h.price)

		c[k+i] = 1
		c[2*k+i] = 1
	}
	A.Set(k, leftover, 1)
	b[k] = p.budget
	c[leftover] = 1

	for r, br := range rows {
		row := k + 1 + r
		slack := leftover + 1 + r
		A.Set(row, br.asset, 1)
		if br.upper {
			A.Set(row, slack, 1)
		} else {
			A.Set(row, slack, -1)
		}
		b[row] = float64(br.value)
	}

	opt, x, err := lp.Simplex(c, A, b, simplexTol, nil)
	if err != nil {
		return 0, nil, err
	}
	return opt, x[:k], nil
}
