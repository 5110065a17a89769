package universe

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/aristath/frontier/internal/domain"
)

// PriceStore is the storage side of an import.
type PriceStore interface {
	UpsertMatrix(ctx context.Context, pm domain.PriceMatrix, source string) (int, error)
}

// ImportResult summarizes one import.
type ImportResult struct {
	Assets    []string  `json:"assets"`
	Days      int       `json:"days"`
	Rows      int       `json:"rows"`
	FirstDate string    `json:"first_date"`
	LastDate  string    `json:"last_date"`
	Anomalies []Anomaly `json:"anomalies"`
}

// ImportService loads price tables into the history store.
type ImportService struct {
	store     PriceStore
	validator *PriceValidator
	log       zerolog.Logger
}

// NewImportService creates a new import service
func NewImportService(store PriceStore, validator *PriceValidator, log zerolog.Logger) *ImportService {
	return &ImportService{
		store:     store,
		validator: validator,
		log:       log.With().Str("service", "price_import").Logger(),
	}
}

// ImportCSV parses a wide CSV price table and stores it.
func (s *ImportService) ImportCSV(ctx context.Context, r io.Reader, source string) (*ImportResult, error) {
	pm, err := ParsePriceCSV(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse prices: %w", err)
	}
	return s.ImportMatrix(ctx, pm, source)
}

// ImportMatrix stores an already aligned matrix. Abnormal moves are reported in the
// result but still stored.
func (s *ImportService) ImportMatrix(ctx context.Context, pm domain.PriceMatrix, source string) (*ImportResult, error) {
	if pm.NumObservations() == 0 {
		return nil, &domain.ValidationError{Field: "prices", Message: "no complete rows to import"}
	}

	anomalies := s.validator.Check(pm)

	rows, err := s.store.UpsertMatrix(ctx, pm, source)
	if err != nil {
		return nil, fmt.Errorf("failed to store prices: %w", err)
	}

	result := &ImportResult{
		Assets:    append([]string(nil), pm.Assets...),
		Days:      pm.NumObservations(),
		Rows:      rows,
		FirstDate: pm.Dates[0].Format("2006-01-02"),
		LastDate:  pm.Dates[len(pm.Dates)-1].Format("2006-01-02"),
		Anomalies: anomalies,
	}

	s.log.Info().
		Int("assets", len(result.Assets)).
		Int("days", result.Days).
		Int("anomalies", len(anomalies)).
		Msg("Imported price history")

	return result, nil
}
