package optimization

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/aristath/frontier/internal/domain"
)

// syntheticPrices builds a random-walk price matrix with the given per-period drifts
// and volatilities. The same seed always yields the same matrix.
func syntheticPrices(t *testing.T, seed int64, days int, drifts, vols []float64) domain.PriceMatrix {
	t.Helper()

	rng := rand.New(rand.NewSource(seed))
	assets := make([]string, len(drifts))
	for a := range assets {
		assets[a] = string(rune('A' + a))
	}

	start := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	dates := make([]time.Time, days)
	prices := make([][]float64, days)
	for d := 0; d < days; d++ {
		dates[d] = start.AddDate(0, 0, d)
		prices[d] = make([]float64, len(drifts))
		for a := range drifts {
			if d == 0 {
				prices[d][a] = 100
				continue
			}
			r := drifts[a] + vols[a]*rng.NormFloat64()
			if r < -0.5 {
				r = -0.5
			}
			prices[d][a] = prices[d-1][a] * (1 + r)
		}
	}

	pm, err := domain.NewPriceMatrix(dates, assets, prices)
	require.NoError(t, err)
	return pm
}

func symMatrix(rows [][]float64) *mat.SymDense {
	n := len(rows)
	s := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			s.SetSym(i, j, rows[i][j])
		}
	}
	return s
}

func sum(values []float64) float64 {
	var total float64
	for _, v := range values {
		total += v
	}
	return total
}
