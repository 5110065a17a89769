package optimization

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"github.com/aristath/frontier/internal/domain"
)

// boundSnap is how far a solved weight may sit outside its bound before it is treated
// as a real violation instead of round-off.
const boundSnap = 1e-9

// Problem is one mean-variance optimization request. ExpectedReturns and Covariance
// must be indexed like Assets.
type Problem struct {
	Assets          []string
	ExpectedReturns []float64
	Covariance      *mat.SymDense
	RiskFreeRate    float64
	// Bounds holds one interval per asset; nil means [0, 1] for every asset.
	Bounds       []domain.Bounds
	Objective    Objective
	TargetReturn float64
}

// Solution carries the raw, unrounded weights straight out of the QP.
type Solution struct {
	Assets      []string
	RawWeights  []float64
	Objective   Objective
	Formulation FormulationKind
	Iterations  int
	// ActiveConstraints is the number of inequality rows binding at the optimum.
	ActiveConstraints int
}

// Weights pairs RawWeights with their assets.
func (s *Solution) Weights() domain.Weights {
	return domain.NewWeights(s.Assets, s.RawWeights)
}

// MVOptimizer performs mean-variance portfolio optimization.
type MVOptimizer struct {
	solver *ActiveSetSolver
	log    zerolog.Logger
}

// NewMVOptimizer creates a new mean-variance optimizer backed by an active-set QP solver.
func NewMVOptimizer(solver *ActiveSetSolver, log zerolog.Logger) *MVOptimizer {
	if solver == nil {
		solver = NewActiveSetSolver(log)
	}
	return &MVOptimizer{
		solver: solver,
		log:    log.With().Str("component", "mv_optimizer").Logger(),
	}
}

// Optimize solves the mean-variance problem.
//
// Objectives:
//   - max_sharpe: maximize (μ'w - r_f) / sqrt(w'Σw), solved through y = κw
//   - min_volatility: minimize w'Σw
//   - efficient_return: minimize w'Σw subject to μ'w >= target_return
//
// Constraints:
//   - Σw = 1 (weights sum to 1)
//   - lower_i ≤ w_i ≤ upper_i
func (mvo *MVOptimizer) Optimize(ctx context.Context, p Problem) (*Solution, error) {
	bounds, err := validateProblem(&p)
	if err != nil {
		return nil, err
	}

	if !isPositiveDefinite(p.Covariance) {
		return nil, &domain.DegenerateCovarianceError{
			Assets: len(p.Assets),
			Reason: "covariance passed to the optimizer is not strictly positive-definite",
		}
	}

	formulation, err := buildFormulation(&p, bounds)
	if err != nil {
		return nil, err
	}

	mvo.log.Debug().
		Str("objective", string(objectiveOrDefault(p.Objective))).
		Str("formulation", formulation.Kind.String()).
		Int("assets", len(p.Assets)).
		Int("inequalities", formulation.QP.numIneq()).
		Msg("Solving quadratic program")

	result, err := mvo.solver.Solve(ctx, formulation.QP, formulation.Start)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", objectiveOrDefault(p.Objective), err)
	}

	weights, err := formulation.Weights(result.X)
	if err != nil {
		return nil, err
	}
	snapToBounds(weights, bounds)

	return &Solution{
		Assets:            append([]string(nil), p.Assets...),
		RawWeights:        weights,
		Objective:         objectiveOrDefault(p.Objective),
		Formulation:       formulation.Kind,
		Iterations:        result.Iterations,
		ActiveConstraints: len(result.Active),
	}, nil
}

func validateProblem(p *Problem) ([]domain.Bounds, error) {
	n := len(p.Assets)
	if n == 0 {
		return nil, &domain.ValidationError{Field: "assets", Message: "no assets provided"}
	}
	if len(p.ExpectedReturns) != n {
		return nil, &domain.ValidationError{
			Field:   "expected_returns",
			Message: fmt.Sprintf("%d expected returns for %d assets", len(p.ExpectedReturns), n),
		}
	}
	for i, mu := range p.ExpectedReturns {
		if math.IsNaN(mu) || math.IsInf(mu, 0) {
			return nil, &domain.ValidationError{
				Field:   "expected_returns",
				Message: fmt.Sprintf("non-finite expected return for %s", p.Assets[i]),
			}
		}
	}
	if p.Covariance == nil || p.Covariance.SymmetricDim() != n {
		dim := 0
		if p.Covariance != nil {
			dim = p.Covariance.SymmetricDim()
		}
		return nil, &domain.ValidationError{
			Field:   "covariance",
			Message: fmt.Sprintf("covariance matrix size %d doesn't match asset count %d", dim, n),
		}
	}

	bounds := p.Bounds
	if len(bounds) == 0 {
		bounds = make([]domain.Bounds, n)
		for i := range bounds {
			bounds[i] = domain.DefaultBounds
		}
	}
	if len(bounds) != n {
		return nil, &domain.ValidationError{
			Field:   "bounds",
			Message: fmt.Sprintf("%d bounds for %d assets", len(bounds), n),
		}
	}
	for i, b := range bounds {
		if err := b.Validate(); err != nil {
			return nil, &domain.ValidationError{Field: "bounds", Message: fmt.Sprintf("%s: %v", p.Assets[i], err)}
		}
	}
	return bounds, nil
}

// snapToBounds pulls weights that overshoot a bound by round-off back onto it.
func snapToBounds(w []float64, bounds []domain.Bounds) {
	for i, b := range bounds {
		if w[i] < b.Lower && b.Lower-w[i] <= boundSnap {
			w[i] = b.Lower
		}
		if w[i] > b.Upper && w[i]-b.Upper <= boundSnap {
			w[i] = b.Upper
		}
	}
}

func objectiveOrDefault(o Objective) Objective {
	if o == "" {
		return ObjectiveMaxSharpe
	}
	return o
}
