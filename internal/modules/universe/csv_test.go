package universe

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/frontier/internal/domain"
)

func TestParsePriceCSV(t *testing.T) {
	input := `Date,SPY,QQQ,GLD
2024-01-03,471.2,402.1,190.5
2024-01-02,470.0,,189.9
2024-01-01,468.5,400.0,189.0
2024-01-04,472.0,403.3,
`
	pm, err := ParsePriceCSV(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, []string{"SPY", "QQQ", "GLD"}, pm.Assets)
	require.Equal(t, 4, pm.NumObservations())
	assert.Equal(t, day("2024-01-01"), pm.Dates[0])
	assert.Equal(t, []float64{470.0, 400.0, 189.9}, pm.Prices[1])
	assert.Equal(t, []float64{472.0, 403.3, 190.5}, pm.Prices[3])
}

func TestParsePriceCSV_DropsLeadingGaps(t *testing.T) {
	input := "Date,A,B\n2024-01-01,1,\n2024-01-02,2,5\n2024-01-03,3,6\n"

	pm, err := ParsePriceCSV(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, 2, pm.NumObservations())
	assert.Equal(t, day("2024-01-02"), pm.Dates[0])
}

func TestParsePriceCSV_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"header only date", "Date\n2024-01-01\n"},
		{"bad date", "Date,A\nyesterday,1\n"},
		{"duplicate date", "Date,A\n2024-01-01,1\n2024-01-01,2\n"},
		{"duplicate asset", "Date,A,A\n2024-01-01,1,2\n"},
		{"zero price", "Date,A,B\n2024-01-01,100,100\n2024-01-02,101,0\n"},
		{"negative price", "Date,A,B\n2024-01-01,100,100\n2024-01-02,101,-5\n"},
		{"infinite price", "Date,A,B\n2024-01-01,100,100\n2024-01-02,101,Inf\n"},
		{"unparsable price", "Date,A,B\n2024-01-01,100,100\n2024-01-02,101,n/a\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePriceCSV(strings.NewReader(tt.input))
			require.Error(t, err)

			var validation *domain.ValidationError
			assert.True(t, errors.As(err, &validation), "got %T: %v", err, err)
		})
	}
}

func TestWritePriceCSV_ReadsBack(t *testing.T) {
	pm := mustMatrix(t, []string{"2024-02-01", "2024-02-02"}, []string{"X", "Y"}, [][]float64{{1.5, 2}, {1.75, 2.25}})

	var buf bytes.Buffer
	require.NoError(t, WritePriceCSV(&buf, pm))
	assert.Equal(t, "Date,X,Y\n2024-02-01,1.5,2\n2024-02-02,1.75,2.25\n", buf.String())

	back, err := ParsePriceCSV(&buf)
	require.NoError(t, err)
	assert.Equal(t, pm, back)
}

func TestParsePriceCSV_NamesBadCell(t *testing.T) {
	input := "Date,A,B\n2024-01-01,100,100\n2024-01-02,101,-5\n2024-01-03,102,0\n"

	_, err := ParsePriceCSV(strings.NewReader(input))
	var validation *domain.ValidationError
	require.True(t, errors.As(err, &validation), "got %v", err)
	assert.Equal(t, "csv", validation.Field)
	assert.Contains(t, validation.Message, "line 3")
	assert.Contains(t, validation.Message, "B")
}
