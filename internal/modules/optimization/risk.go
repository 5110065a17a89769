package optimization

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/aristath/frontier/internal/domain"
	"github.com/aristath/frontier/pkg/formulas"
)

// Constants for risk model configuration
const (
	DefaultRegularization    = 1e-8
	HighCorrelationThreshold = 0.80 // 80% correlation is considered "high"
)

// ShrinkageTarget selects the structured matrix the sample covariance is shrunk towards.
type ShrinkageTarget string

const (
	// ShrinkConstantCorrelation keeps the sample variances and replaces every
	// correlation by the average sample correlation (Ledoit & Wolf 2004).
	ShrinkConstantCorrelation ShrinkageTarget = "constant_correlation"
	// ShrinkConstantVariance shrinks towards mean(variance) * I.
	ShrinkConstantVariance ShrinkageTarget = "constant_variance"
)

// CovarianceSettings configures EstimateCovariance.
type CovarianceSettings struct {
	Target         ShrinkageTarget
	PeriodsPerYear int
	// Regularization is relative to the mean diagonal entry.
	Regularization float64
}

// DefaultCovarianceSettings returns the constant-correlation estimator for daily data.
func DefaultCovarianceSettings() CovarianceSettings {
	return CovarianceSettings{
		Target:         ShrinkConstantCorrelation,
		PeriodsPerYear: formulas.TradingDaysPerYear,
		Regularization: DefaultRegularization,
	}
}

// CovarianceEstimate is an annualized, positive-definite covariance matrix together
// with how it was obtained.
type CovarianceEstimate struct {
	Assets       []string
	Matrix       *mat.SymDense
	Shrinkage    float64
	Target       ShrinkageTarget
	Regularized  bool
	Observations int
}

// CorrelationPair represents a pair of assets with their correlation coefficient.
type CorrelationPair struct {
	Asset1      string  `json:"asset1" msgpack:"asset1"`
	Asset2      string  `json:"asset2" msgpack:"asset2"`
	Correlation float64 `json:"correlation" msgpack:"correlation"`
}

// EstimateCovariance computes the Ledoit-Wolf shrunk covariance of the simple returns
// of pm, annualized by settings.PeriodsPerYear. The result is verified positive-definite
// with a Cholesky factorization; one retry with a diagonal regularizer is attempted
// before failing with DegenerateCovarianceError.
func EstimateCovariance(pm domain.PriceMatrix, settings CovarianceSettings) (*CovarianceEstimate, error) {
	if settings.PeriodsPerYear <= 0 {
		settings.PeriodsPerYear = formulas.TradingDaysPerYear
	}
	if settings.Target == "" {
		settings.Target = ShrinkConstantCorrelation
	}
	if settings.Regularization <= 0 {
		settings.Regularization = DefaultRegularization
	}

	if err := checkObservations(pm); err != nil {
		return nil, err
	}

	x := demeanedReturns(pm)
	sample := sampleCovariance(x)

	var (
		target    *mat.SymDense
		shrinkage float64
	)
	switch settings.Target {
	case ShrinkConstantCorrelation:
		target, shrinkage = constantCorrelationShrinkage(x, sample)
	case ShrinkConstantVariance:
		target, shrinkage = constantVarianceShrinkage(x, sample)
	default:
		return nil, &domain.ValidationError{Field: "shrinkage_target", Message: fmt.Sprintf("unknown shrinkage target %q", settings.Target)}
	}

	n := pm.NumAssets()
	cov := mat.NewSymDense(n, nil)
	ppy := float64(settings.PeriodsPerYear)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := shrinkage*target.At(i, j) + (1-shrinkage)*sample.At(i, j)
			cov.SetSym(i, j, v*ppy)
		}
	}

	estimate := &CovarianceEstimate{
		Assets:       append([]string(nil), pm.Assets...),
		Matrix:       cov,
		Shrinkage:    shrinkage,
		Target:       settings.Target,
		Observations: pm.NumObservations(),
	}

	if err := checkFinite(cov); err != nil {
		return nil, err
	}
	if isPositiveDefinite(cov) {
		return estimate, nil
	}

	ridge := settings.Regularization * meanDiagonal(cov)
	if ridge <= 0 {
		ridge = settings.Regularization
	}
	for i := 0; i < n; i++ {
		cov.SetSym(i, i, cov.At(i, i)+ridge)
	}
	if !isPositiveDefinite(cov) {
		return nil, &domain.DegenerateCovarianceError{
			Assets:         n,
			Regularization: ridge,
			Reason:         "Cholesky factorization failed",
		}
	}
	estimate.Regularized = true
	return estimate, nil
}

// Volatilities returns the square root of the diagonal.
func (e *CovarianceEstimate) Volatilities() []float64 {
	n := e.Matrix.SymmetricDim()
	vols := make([]float64, n)
	for i := 0; i < n; i++ {
		vols[i] = math.Sqrt(e.Matrix.At(i, i))
	}
	return vols
}

// HighCorrelations lists the asset pairs whose absolute correlation is at least threshold.
func (e *CovarianceEstimate) HighCorrelations(threshold float64) []CorrelationPair {
	n := e.Matrix.SymmetricDim()
	pairs := make([]CorrelationPair, 0)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			vi, vj := e.Matrix.At(i, i), e.Matrix.At(j, j)
			if vi <= 0 || vj <= 0 {
				continue
			}
			corr := e.Matrix.At(i, j) / math.Sqrt(vi*vj)
			if math.Abs(corr) >= threshold {
				pairs = append(pairs, CorrelationPair{
					Asset1:      e.Assets[i],
					Asset2:      e.Assets[j],
					Correlation: corr,
				})
			}
		}
	}
	return pairs
}

// demeanedReturns builds the T x N matrix of simple returns with column means removed.
func demeanedReturns(pm domain.PriceMatrix) *mat.Dense {
	t := pm.NumObservations() - 1
	n := pm.NumAssets()
	x := mat.NewDense(t, n, nil)
	for a := 0; a < n; a++ {
		returns := formulas.CalculateReturns(pm.Column(a))
		mean := formulas.Mean(returns)
		for k, r := range returns {
			x.Set(k, a, r-mean)
		}
	}
	return x
}

// sampleCovariance returns X'X / T (maximum-likelihood normalization).
func sampleCovariance(x *mat.Dense) *mat.SymDense {
	t, n := x.Dims()
	s := mat.NewSymDense(n, nil)
	s.SymOuterK(1/float64(t), x.T())
	return s
}

// constantCorrelationShrinkage returns the constant-correlation target and the optimal
// shrinkage intensity from Ledoit & Wolf, "Honey, I Shrunk the Sample Covariance Matrix".
func constantCorrelationShrinkage(x *mat.Dense, s *mat.SymDense) (*mat.SymDense, float64) {
	t, n := x.Dims()
	tf := float64(t)

	sd := make([]float64, n)
	for i := 0; i < n; i++ {
		sd[i] = math.Sqrt(s.At(i, i))
	}

	var corrSum float64
	var pairs int
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if sd[i] == 0 || sd[j] == 0 {
				continue
			}
			corrSum += s.At(i, j) / (sd[i] * sd[j])
			pairs++
		}
	}
	var rBar float64
	if pairs > 0 {
		rBar = corrSum / float64(pairs)
	}

	f := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		f.SetSym(i, i, s.At(i, i))
		for j := i + 1; j < n; j++ {
			f.SetSym(i, j, rBar*sd[i]*sd[j])
		}
	}

	// pi-hat: sum of asymptotic variances of the sample covariance entries.
	var phi float64
	phiDiag := make([]float64, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			var acc float64
			for k := 0; k < t; k++ {
				xi, xj := x.At(k, i), x.At(k, j)
				acc += xi * xi * xj * xj
			}
			v := acc/tf - s.At(i, j)*s.At(i, j)
			phi += v
			if i == j {
				phiDiag[i] = v
			}
		}
	}

	// rho-hat: diagonal part plus the covariance of the correlation target with S.
	var rho float64
	for i := 0; i < n; i++ {
		rho += phiDiag[i]
	}
	for i := 0; i < n; i++ {
		if sd[i] == 0 {
			continue
		}
		for j := 0; j < n; j++ {
			if i == j || sd[j] == 0 {
				continue
			}
			var acc float64
			for k := 0; k < t; k++ {
				xi := x.At(k, i)
				acc += xi * xi * xi * x.At(k, j)
			}
			theta := acc/tf - s.At(i, i)*s.At(i, j)
			rho += rBar * (sd[j] / sd[i]) * theta
		}
	}

	// gamma-hat: squared Frobenius distance between S and the target.
	var gamma float64
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			d := s.At(i, j) - f.At(i, j)
			gamma += d * d
		}
	}

	if gamma == 0 {
		return f, 0
	}
	kappa := (phi - rho) / gamma
	return f, clamp01(kappa / tf)
}

// constantVarianceShrinkage returns mu*I and the Ledoit-Wolf intensity for that target.
func constantVarianceShrinkage(x *mat.Dense, s *mat.SymDense) (*mat.SymDense, float64) {
	t, n := x.Dims()
	tf, nf := float64(t), float64(n)

	var traceSum float64
	for i := 0; i < n; i++ {
		traceSum += s.At(i, i)
	}
	mu := traceSum / nf

	f := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		f.SetSym(i, i, mu)
	}

	// beta_ = sum((X^2)'(X^2)), delta_ = sum((X'X)^2) / T^2
	var betaRaw, deltaRaw float64
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			var sq, cross float64
			for k := 0; k < t; k++ {
				xi, xj := x.At(k, i), x.At(k, j)
				sq += xi * xi * xj * xj
				cross += xi * xj
			}
			betaRaw += sq
			deltaRaw += cross * cross
		}
	}
	deltaRaw /= tf * tf

	delta := (deltaRaw - 2*mu*traceSum + nf*mu*mu) / nf
	beta := (betaRaw/tf - deltaRaw) / (nf * tf)
	beta = math.Min(beta, delta)

	if beta <= 0 || delta <= 0 {
		return f, 0
	}
	return f, clamp01(beta / delta)
}

func isPositiveDefinite(s *mat.SymDense) bool {
	var chol mat.Cholesky
	return chol.Factorize(s)
}

func checkFinite(s *mat.SymDense) error {
	n := s.SymmetricDim()
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := s.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return &domain.DegenerateCovarianceError{
					Assets: n,
					Reason: fmt.Sprintf("non-finite entry at (%d, %d)", i, j),
				}
			}
		}
	}
	return nil
}

func meanDiagonal(s *mat.SymDense) float64 {
	n := s.SymmetricDim()
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += s.At(i, i)
	}
	return sum / float64(n)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
