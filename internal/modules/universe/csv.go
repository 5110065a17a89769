package universe

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/frontier/internal/domain"
)

// Accepted date layouts in the first CSV column.
var csvDateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"01/02/2006",
}

// ParsePriceCSV reads a wide price table: a header row "Date,<ASSET>,<ASSET>..." followed
// by one row per day. Empty cells count as missing and are forward-filled; unparsable or
// non-positive prices are rejected.
// Rows may come in any order; duplicate dates are rejected.
func ParsePriceCSV(r io.Reader) (domain.PriceMatrix, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return domain.PriceMatrix{}, &domain.ValidationError{Field: "csv", Message: "empty file"}
	}
	if err != nil {
		return domain.PriceMatrix{}, fmt.Errorf("failed to read CSV header: %w", err)
	}
	if len(header) < 2 {
		return domain.PriceMatrix{}, &domain.ValidationError{Field: "csv", Message: "header needs a date column and at least one asset"}
	}

	assets := make([]string, len(header)-1)
	for i, name := range header[1:] {
		assets[i] = strings.TrimSpace(name)
	}

	type csvRow struct {
		date   time.Time
		prices []float64
	}
	var parsed []csvRow

	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return domain.PriceMatrix{}, fmt.Errorf("failed to read CSV line %d: %w", line, err)
		}
		if len(record) == 0 || (len(record) == 1 && strings.TrimSpace(record[0]) == "") {
			continue
		}

		date, err := ParseDate(record[0])
		if err != nil {
			return domain.PriceMatrix{}, &domain.ValidationError{
				Field:   "csv",
				Message: fmt.Sprintf("line %d: %v", line, err),
			}
		}

		prices := make([]float64, len(assets))
		for a := range assets {
			prices[a] = math.NaN()
			if a+1 >= len(record) {
				continue
			}
			cell := strings.TrimSpace(record[a+1])
			if cell == "" {
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil || math.IsNaN(v) {
				return domain.PriceMatrix{}, &domain.ValidationError{
					Field:   "csv",
					Message: fmt.Sprintf("line %d: invalid price %q for %s", line, cell, assets[a]),
				}
			}
			if math.IsInf(v, 0) || v <= 0 {
				return domain.PriceMatrix{}, &domain.ValidationError{
					Field:   "csv",
					Message: fmt.Sprintf("line %d: price for %s must be positive, got %s", line, assets[a], cell),
				}
			}
			prices[a] = v
		}
		parsed = append(parsed, csvRow{date: date, prices: prices})
	}

	sort.SliceStable(parsed, func(i, j int) bool { return parsed[i].date.Before(parsed[j].date) })

	dates := make([]time.Time, len(parsed))
	prices := make([][]float64, len(parsed))
	for i, row := range parsed {
		if i > 0 && row.date.Equal(parsed[i-1].date) {
			return domain.PriceMatrix{}, &domain.ValidationError{
				Field:   "dates",
				Message: fmt.Sprintf("duplicate date %s", row.date.Format("2006-01-02")),
			}
		}
		dates[i] = row.date
		prices[i] = row.prices
	}

	return ForwardFill(dates, assets, prices)
}

// ParseDate accepts the date layouts of the CSV importer and returns midnight UTC for
// date-only values.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range csvDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// WritePriceCSV writes pm in the layout ParsePriceCSV reads.
func WritePriceCSV(w io.Writer, pm domain.PriceMatrix) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(append([]string{"Date"}, pm.Assets...)); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	record := make([]string, pm.NumAssets()+1)
	for t, date := range pm.Dates {
		record[0] = date.Format("2006-01-02")
		for a, p := range pm.Prices[t] {
			record[a+1] = strconv.FormatFloat(p, 'f', -1, 64)
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV row %d: %w", t, err)
		}
	}
	writer.Flush()
	return writer.Error()
}
