package optimization

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/aristath/frontier/internal/domain"
)

// Objective is the optimization strategy.
type Objective string

const (
	ObjectiveMaxSharpe       Objective = "max_sharpe"
	ObjectiveMinVolatility   Objective = "min_volatility"
	ObjectiveEfficientReturn Objective = "efficient_return"
)

// FormulationKind tells how QP variables map back to weights.
type FormulationKind int

const (
	// FormulationDirect optimizes the weights themselves.
	FormulationDirect FormulationKind = iota
	// FormulationHomogenized optimizes y = κw; weights are y / sum(y).
	FormulationHomogenized
)

func (k FormulationKind) String() string {
	switch k {
	case FormulationDirect:
		return "direct"
	case FormulationHomogenized:
		return "homogenized"
	default:
		return fmt.Sprintf("FormulationKind(%d)", int(k))
	}
}

// Constraint labels used in InfeasibleError.
const (
	ConstraintBudget       = "sum(w) = 1 within bounds"
	ConstraintExcessReturn = "(mu - rf)'w > 0"
	ConstraintTargetReturn = "mu'w >= target_return"
	ConstraintScale        = "sum(y) > 0"
)

// Formulation is a QP together with a feasible starting point and the rule that turns
// its solution into weights.
type Formulation struct {
	Kind  FormulationKind
	QP    QuadraticProgram
	Start []float64
}

// Weights maps a QP solution back to portfolio weights.
func (f Formulation) Weights(x []float64) ([]float64, error) {
	w := append([]float64(nil), x...)
	if f.Kind == FormulationDirect {
		return w, nil
	}

	var kappa float64
	for _, v := range x {
		kappa += v
	}
	if kappa <= 1e-12 {
		return nil, &domain.InfeasibleError{
			Constraint: ConstraintScale,
			Detail:     fmt.Sprintf("solution scale %.3g is not positive", kappa),
		}
	}
	for i := range w {
		w[i] /= kappa
	}
	return w, nil
}

// buildFormulation dispatches on the problem's objective.
func buildFormulation(p *Problem, bounds []domain.Bounds) (Formulation, error) {
	switch p.Objective {
	case ObjectiveMaxSharpe, "":
		return maxSharpeFormulation(p, bounds)
	case ObjectiveMinVolatility:
		return minVolatilityFormulation(p, bounds, nil)
	case ObjectiveEfficientReturn:
		target := p.TargetReturn
		return minVolatilityFormulation(p, bounds, &target)
	default:
		return Formulation{}, &domain.ValidationError{Field: "objective", Message: fmt.Sprintf("unknown objective %q", p.Objective)}
	}
}

// maxSharpeFormulation builds the homogenized Sharpe problem
//
//	minimize    y'Σy
//	subject to  (μ - r_f)'y = 1
//	            lb_i·sum(y) <= y_i <= ub_i·sum(y)
//	            sum(y) >= 0
//
// The upper-bound rows are only added when they can bind, and the scale row only when
// a lower bound is negative.
func maxSharpeFormulation(p *Problem, bounds []domain.Bounds) (Formulation, error) {
	n := len(p.Assets)
	excess := make([]float64, n)
	best := 0
	for i, mu := range p.ExpectedReturns {
		excess[i] = mu - p.RiskFreeRate
		if excess[i] > excess[best] {
			best = i
		}
	}
	if excess[best] <= 0 {
		return Formulation{}, &domain.NoSharpeImprovingAssetError{
			RiskFreeRate:       p.RiskFreeRate,
			BestAsset:          p.Assets[best],
			BestExpectedReturn: p.ExpectedReturns[best],
		}
	}
	if err := checkBudgetFeasible(bounds); err != nil {
		return Formulation{}, err
	}

	w0, attainable := greedyMaxLinear(excess, bounds)
	if attainable <= 0 {
		return Formulation{}, &domain.InfeasibleError{
			Constraint: ConstraintExcessReturn,
			Detail:     fmt.Sprintf("best attainable excess return within bounds is %.6g", attainable),
		}
	}

	shorts := anyNegativeLower(bounds)
	rows := make([][]float64, 0, 2*n+1)
	for i, b := range bounds {
		row := make([]float64, n)
		for j := range row {
			row[j] = -b.Lower
		}
		row[i] += 1
		rows = append(rows, row)
	}
	for i, b := range bounds {
		if b.Upper >= 1 && !shorts {
			continue
		}
		row := make([]float64, n)
		for j := range row {
			row[j] = b.Upper
		}
		row[i] -= 1
		rows = append(rows, row)
	}
	if shorts {
		row := make([]float64, n)
		for j := range row {
			row[j] = 1
		}
		rows = append(rows, row)
	}

	y0 := make([]float64, n)
	for i := range y0 {
		y0[i] = w0[i] / attainable
	}

	return Formulation{
		Kind: FormulationHomogenized,
		QP: QuadraticProgram{
			G:   scaledCovariance(p.Covariance, 2),
			C:   make([]float64, n),
			Aeq: mat.NewDense(1, n, excess),
			Beq: []float64{1},
			Ain: stackRows(rows, n),
			Bin: make([]float64, len(rows)),
		},
		Start: y0,
	}, nil
}

// minVolatilityFormulation builds
//
//	minimize    w'Σw
//	subject to  sum(w) = 1, lb <= w <= ub [, μ'w >= target]
func minVolatilityFormulation(p *Problem, bounds []domain.Bounds, target *float64) (Formulation, error) {
	n := len(p.Assets)
	if err := checkBudgetFeasible(bounds); err != nil {
		return Formulation{}, err
	}

	shorts := anyNegativeLower(bounds)
	rows := make([][]float64, 0, 2*n+1)
	rhs := make([]float64, 0, 2*n+1)
	for i, b := range bounds {
		row := make([]float64, n)
		row[i] = 1
		rows = append(rows, row)
		rhs = append(rhs, b.Lower)
	}
	for i, b := range bounds {
		if b.Upper >= 1 && !shorts {
			continue
		}
		row := make([]float64, n)
		row[i] = -1
		rows = append(rows, row)
		rhs = append(rhs, -b.Upper)
	}

	var w0 []float64
	if target != nil {
		var best float64
		w0, best = greedyMaxLinear(p.ExpectedReturns, bounds)
		if best < *target {
			return Formulation{}, &domain.InfeasibleError{
				Constraint: ConstraintTargetReturn,
				Detail:     fmt.Sprintf("target %.6g exceeds the best attainable return %.6g", *target, best),
			}
		}
		rows = append(rows, append([]float64(nil), p.ExpectedReturns...))
		rhs = append(rhs, *target)
	} else {
		w0 = fillInOrder(bounds)
	}

	ones := make([]float64, n)
	for i := range ones {
		ones[i] = 1
	}

	return Formulation{
		Kind: FormulationDirect,
		QP: QuadraticProgram{
			G:   scaledCovariance(p.Covariance, 2),
			C:   make([]float64, n),
			Aeq: mat.NewDense(1, n, ones),
			Beq: []float64{1},
			Ain: stackRows(rows, n),
			Bin: rhs,
		},
		Start: w0,
	}, nil
}

// checkBudgetFeasible reports whether some w within bounds sums to 1.
func checkBudgetFeasible(bounds []domain.Bounds) error {
	var lo, hi float64
	for _, b := range bounds {
		lo += b.Lower
		hi += b.Upper
	}
	if lo > 1+1e-12 || hi < 1-1e-12 {
		return &domain.InfeasibleError{
			Constraint: ConstraintBudget,
			Detail:     fmt.Sprintf("lower bounds sum to %.6g and upper bounds to %.6g", lo, hi),
		}
	}
	return nil
}

// greedyMaxLinear maximizes c'w subject to sum(w) = 1 and the bounds: every weight
// starts at its lower bound and the remaining budget goes to the highest c_i first
// (lowest index on ties). Bounds must already be budget-feasible.
func greedyMaxLinear(c []float64, bounds []domain.Bounds) ([]float64, float64) {
	order := make([]int, len(c))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return c[order[a]] > c[order[b]] })
	w := fillByOrder(bounds, order)

	var value float64
	for i := range w {
		value += c[i] * w[i]
	}
	return w, value
}

// fillInOrder returns a budget-feasible point filling assets in index order.
func fillInOrder(bounds []domain.Bounds) []float64 {
	order := make([]int, len(bounds))
	for i := range order {
		order[i] = i
	}
	return fillByOrder(bounds, order)
}

func fillByOrder(bounds []domain.Bounds, order []int) []float64 {
	w := make([]float64, len(bounds))
	remaining := 1.0
	for i, b := range bounds {
		w[i] = b.Lower
		remaining -= b.Lower
	}
	for _, i := range order {
		if remaining <= 0 {
			break
		}
		add := math.Min(remaining, bounds[i].Upper-bounds[i].Lower)
		w[i] += add
		remaining -= add
	}
	return w
}

func anyNegativeLower(bounds []domain.Bounds) bool {
	for _, b := range bounds {
		if b.Lower < 0 {
			return true
		}
	}
	return false
}

func scaledCovariance(cov *mat.SymDense, factor float64) *mat.SymDense {
	n := cov.SymmetricDim()
	g := mat.NewSymDense(n, nil)
	g.ScaleSym(factor, cov)
	return g
}

func stackRows(rows [][]float64, n int) *mat.Dense {
	if len(rows) == 0 {
		return nil
	}
	data := make([]float64, 0, len(rows)*n)
	for _, r := range rows {
		data = append(data, r...)
	}
	return mat.NewDense(len(rows), n, data)
}
