package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError reports malformed input (shape, duplicates, non-positive prices).
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// InsufficientDataError is returned when an asset has too few observations.
type InsufficientDataError struct {
	Asset        string
	Observations int
	Required     int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data for %s: %d observations, need at least %d",
		e.Asset, e.Observations, e.Required)
}

// DegenerateCovarianceError is returned when a covariance matrix is not
// positive-definite, after regularization where one was attempted.
type DegenerateCovarianceError struct {
	Assets         int
	Regularization float64
	Reason         string
}

func (e *DegenerateCovarianceError) Error() string {
	if e.Regularization > 0 {
		return fmt.Sprintf("covariance matrix (%dx%d) is not positive-definite after adding %.3g to the diagonal: %s",
			e.Assets, e.Assets, e.Regularization, e.Reason)
	}
	return fmt.Sprintf("covariance matrix (%dx%d) is not positive-definite: %s", e.Assets, e.Assets, e.Reason)
}

// NoSharpeImprovingAssetError is returned when no asset's expected return exceeds the
// risk-free rate, which makes the maximum-Sharpe problem infeasible.
type NoSharpeImprovingAssetError struct {
	RiskFreeRate       float64
	BestAsset          string
	BestExpectedReturn float64
}

func (e *NoSharpeImprovingAssetError) Error() string {
	return fmt.Sprintf("no asset has expected return above the risk-free rate %.4f (best: %s at %.4f)",
		e.RiskFreeRate, e.BestAsset, e.BestExpectedReturn)
}

// InfeasibleError names the constraint that cannot be satisfied.
type InfeasibleError struct {
	Constraint string
	Detail     string
}

func (e *InfeasibleError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("infeasible constraint %q", e.Constraint)
	}
	return fmt.Sprintf("infeasible constraint %q: %s", e.Constraint, e.Detail)
}

// SolverDidNotConvergeError carries the last iterate and residual of a solver that hit
// its iteration budget.
type SolverDidNotConvergeError struct {
	Solver      string
	Iterations  int
	LastIterate []float64
	Residual    float64
}

func (e *SolverDidNotConvergeError) Error() string {
	parts := make([]string, len(e.LastIterate))
	for i, v := range e.LastIterate {
		parts[i] = fmt.Sprintf("%.6g", v)
	}
	return fmt.Sprintf("%s did not converge after %d iterations (residual %.3g, last iterate [%s])",
		e.Solver, e.Iterations, e.Residual, strings.Join(parts, " "))
}

// EmptyPortfolioError is returned when weight cleaning leaves no weight.
type EmptyPortfolioError struct {
	Cutoff float64
}

func (e *EmptyPortfolioError) Error() string {
	return fmt.Sprintf("every weight is below the cutoff %.3g", e.Cutoff)
}

// BudgetTooSmallError is returned when not a single share of any eligible asset fits
// in the budget.
type BudgetTooSmallError struct {
	Budget          float64
	MinimumRequired float64
	Asset           string
}

func (e *BudgetTooSmallError) Error() string {
	return fmt.Sprintf("budget %.2f is below the cheapest eligible price %.2f (%s)",
		e.Budget, e.MinimumRequired, e.Asset)
}

// ErrorKind classifies err by the first typed domain error in its chain. It returns
// "internal" for anything else and "" for nil.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	var (
		validation   *ValidationError
		insufficient *InsufficientDataError
		degenerate   *DegenerateCovarianceError
		noSharpe     *NoSharpeImprovingAssetError
		infeasible   *InfeasibleError
		converge     *SolverDidNotConvergeError
		empty        *EmptyPortfolioError
		budget       *BudgetTooSmallError
	)
	switch {
	case errors.As(err, &validation):
		return "validation"
	case errors.As(err, &insufficient):
		return "insufficient_data"
	case errors.As(err, &degenerate):
		return "degenerate_covariance"
	case errors.As(err, &noSharpe):
		return "no_sharpe_improving_asset"
	case errors.As(err, &infeasible):
		return "infeasible"
	case errors.As(err, &converge):
		return "solver_did_not_converge"
	case errors.As(err, &empty):
		return "empty_portfolio"
	case errors.As(err, &budget):
		return "budget_too_small"
	default:
		return "internal"
	}
}
