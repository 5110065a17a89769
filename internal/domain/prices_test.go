package domain

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(i int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i)
}

func TestNewPriceMatrix_Valid(t *testing.T) {
	pm, err := NewPriceMatrix(
		[]time.Time{day(0), day(1)},
		[]string{"A", "B"},
		[][]float64{{10, 20}, {11, 19}},
	)
	require.NoError(t, err)

	assert.Equal(t, 2, pm.NumAssets())
	assert.Equal(t, 2, pm.NumObservations())
	assert.Equal(t, []float64{20, 19}, pm.Column(1))
	assert.Equal(t, map[string]float64{"A": 11, "B": 19}, pm.LatestPrices())
	assert.Equal(t, 1, pm.IndexOf("B"))
	assert.Equal(t, -1, pm.IndexOf("Z"))
}

func TestNewPriceMatrix_CopiesInput(t *testing.T) {
	prices := [][]float64{{10, 20}, {11, 19}}
	pm, err := NewPriceMatrix([]time.Time{day(0), day(1)}, []string{"A", "B"}, prices)
	require.NoError(t, err)

	prices[0][0] = 999
	assert.Equal(t, 10.0, pm.Prices[0][0])
}

func TestPriceMatrix_Validate(t *testing.T) {
	testCases := []struct {
		name   string
		dates  []time.Time
		assets []string
		prices [][]float64
		field  string
	}{
		{"no assets", []time.Time{day(0)}, nil, [][]float64{{}}, "assets"},
		{"duplicate asset", []time.Time{day(0)}, []string{"A", "A"}, [][]float64{{1, 2}}, "assets"},
		{"row count mismatch", []time.Time{day(0), day(1)}, []string{"A"}, [][]float64{{1}}, "prices"},
		{"descending dates", []time.Time{day(1), day(0)}, []string{"A"}, [][]float64{{1}, {2}}, "dates"},
		{"duplicate dates", []time.Time{day(0), day(0)}, []string{"A"}, [][]float64{{1}, {2}}, "dates"},
		{"short row", []time.Time{day(0)}, []string{"A", "B"}, [][]float64{{1}}, "prices"},
		{"zero price", []time.Time{day(0)}, []string{"A"}, [][]float64{{0}}, "prices"},
		{"NaN price", []time.Time{day(0)}, []string{"A"}, [][]float64{{math.NaN()}}, "prices"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewPriceMatrix(tc.dates, tc.assets, tc.prices)
			require.Error(t, err)

			var validationErr *ValidationError
			require.True(t, errors.As(err, &validationErr))
			assert.Equal(t, tc.field, validationErr.Field)
		})
	}
}

func TestPriceMatrix_Subset(t *testing.T) {
	pm, err := NewPriceMatrix(
		[]time.Time{day(0), day(1)},
		[]string{"A", "B", "C"},
		[][]float64{{1, 2, 3}, {4, 5, 6}},
	)
	require.NoError(t, err)

	sub, err := pm.Subset([]string{"C", "A"})
	require.NoError(t, err)
	assert.Equal(t, []string{"C", "A"}, sub.Assets)
	assert.Equal(t, [][]float64{{3, 1}, {6, 4}}, sub.Prices)

	_, err = pm.Subset([]string{"Z"})
	assert.Error(t, err)
}
