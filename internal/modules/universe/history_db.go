// Package universe stores and assembles the daily price history the optimizer runs on.
package universe

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/frontier/internal/database"
	"github.com/aristath/frontier/internal/domain"
)

// HistoryDB provides access to historical price data
type HistoryDB struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewHistoryDB creates a new history database accessor
func NewHistoryDB(db *sql.DB, log zerolog.Logger) *HistoryDB {
	return &HistoryDB{
		db:  db,
		log: log.With().Str("component", "history_db").Logger(),
	}
}

// AssetSummary describes the stored history of one asset.
type AssetSummary struct {
	Asset        string    `json:"asset"`
	FirstDate    time.Time `json:"first_date"`
	LastDate     time.Time `json:"last_date"`
	Observations int       `json:"observations"`
	LastClose    float64   `json:"last_close"`
}

// dayUnix truncates t to midnight UTC.
func dayUnix(t time.Time) int64 {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).Unix()
}

// UpsertMatrix writes every price of pm, replacing existing closes for the same asset
// and day. Returns the number of rows written.
func (h *HistoryDB) UpsertMatrix(ctx context.Context, pm domain.PriceMatrix, source string) (int, error) {
	if err := pm.Validate(); err != nil {
		return 0, err
	}
	if source == "" {
		source = "import"
	}

	now := time.Now().Unix()
	written := 0
	err := database.WithTransaction(h.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO daily_prices (asset, date, close, source, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(asset, date) DO UPDATE SET
				close = excluded.close,
				source = excluded.source,
				updated_at = excluded.updated_at
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for t, date := range pm.Dates {
			day := dayUnix(date)
			for a, asset := range pm.Assets {
				if _, err := stmt.ExecContext(ctx, asset, day, pm.Prices[t][a], source, now); err != nil {
					return fmt.Errorf("failed to upsert %s at %s: %w", asset, date.Format("2006-01-02"), err)
				}
				written++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	h.log.Info().
		Int("assets", pm.NumAssets()).
		Int("days", pm.NumObservations()).
		Int("rows", written).
		Str("source", source).
		Msg("Stored price history")

	return written, nil
}

// ListAssets returns a summary of every stored asset, ordered by asset ID.
func (h *HistoryDB) ListAssets(ctx context.Context) ([]AssetSummary, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT p.asset, MIN(p.date), MAX(p.date), COUNT(*),
			(SELECT close FROM daily_prices l WHERE l.asset = p.asset ORDER BY l.date DESC LIMIT 1)
		FROM daily_prices p
		GROUP BY p.asset
		ORDER BY p.asset
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query assets: %w", err)
	}
	defer rows.Close()

	summaries := []AssetSummary{}
	for rows.Next() {
		var s AssetSummary
		var first, last int64
		if err := rows.Scan(&s.Asset, &first, &last, &s.Observations, &s.LastClose); err != nil {
			return nil, fmt.Errorf("failed to scan asset summary: %w", err)
		}
		s.FirstDate = time.Unix(first, 0).UTC()
		s.LastDate = time.Unix(last, 0).UTC()
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating assets: %w", err)
	}

	return summaries, nil
}

// GetPriceMatrix assembles an aligned matrix for assets (all stored assets when empty).
// lookbackDays > 0 keeps the calendar days up to and including the most recent stored
// date among the requested assets. Gaps are forward-filled and rows before every asset
// has a first price are dropped.
func (h *HistoryDB) GetPriceMatrix(ctx context.Context, assets []string, lookbackDays int) (domain.PriceMatrix, error) {
	if len(assets) == 0 {
		summaries, err := h.ListAssets(ctx)
		if err != nil {
			return domain.PriceMatrix{}, err
		}
		for _, s := range summaries {
			assets = append(assets, s.Asset)
		}
		if len(assets) == 0 {
			return domain.PriceMatrix{}, &domain.InsufficientDataError{Asset: "history", Required: 2}
		}
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(assets)), ",")
	args := make([]interface{}, 0, len(assets)+1)
	for _, asset := range assets {
		args = append(args, asset)
	}

	var cutoff int64 = math.MinInt64
	if lookbackDays > 0 {
		var latest sql.NullInt64
		query := `SELECT MAX(date) FROM daily_prices WHERE asset IN (` + placeholders + `)`
		if err := h.db.QueryRowContext(ctx, query, args...).Scan(&latest); err != nil {
			return domain.PriceMatrix{}, fmt.Errorf("failed to find latest date: %w", err)
		}
		if latest.Valid {
			cutoff = time.Unix(latest.Int64, 0).UTC().AddDate(0, 0, -lookbackDays).Unix()
		}
	}
	args = append(args, cutoff)

	rows, err := h.db.QueryContext(ctx, `
		SELECT asset, date, close
		FROM daily_prices
		WHERE asset IN (`+placeholders+`) AND date > ?
		ORDER BY date ASC
	`, args...)
	if err != nil {
		return domain.PriceMatrix{}, fmt.Errorf("failed to query daily prices: %w", err)
	}
	defer rows.Close()

	column := make(map[string]int, len(assets))
	for i, asset := range assets {
		column[asset] = i
	}

	var (
		dates  []time.Time
		prices [][]float64
		seen   = make([]bool, len(assets))
		last   int64
	)
	for rows.Next() {
		var asset string
		var day int64
		var closePrice float64
		if err := rows.Scan(&asset, &day, &closePrice); err != nil {
			return domain.PriceMatrix{}, fmt.Errorf("failed to scan daily price: %w", err)
		}
		if len(dates) == 0 || day != last {
			row := make([]float64, len(assets))
			for i := range row {
				row[i] = math.NaN()
			}
			dates = append(dates, time.Unix(day, 0).UTC())
			prices = append(prices, row)
			last = day
		}
		a := column[asset]
		prices[len(prices)-1][a] = closePrice
		seen[a] = true
	}
	if err := rows.Err(); err != nil {
		return domain.PriceMatrix{}, fmt.Errorf("error iterating daily prices: %w", err)
	}

	var missing []string
	for i, ok := range seen {
		if !ok {
			missing = append(missing, assets[i])
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return domain.PriceMatrix{}, &domain.ValidationError{
			Field:   "assets",
			Message: fmt.Sprintf("no stored history for %s", strings.Join(missing, ", ")),
		}
	}

	pm, err := ForwardFill(dates, assets, prices)
	if err != nil {
		return domain.PriceMatrix{}, err
	}

	h.log.Debug().
		Int("assets", pm.NumAssets()).
		Int("observations", pm.NumObservations()).
		Int("lookback_days", lookbackDays).
		Msg("Assembled price matrix from history")

	return pm, nil
}

// DeleteAsset removes the stored history of asset.
func (h *HistoryDB) DeleteAsset(ctx context.Context, asset string) (int64, error) {
	result, err := h.db.ExecContext(ctx, "DELETE FROM daily_prices WHERE asset = ?", asset)
	if err != nil {
		return 0, fmt.Errorf("failed to delete history for %s: %w", asset, err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected > 0 {
		h.log.Info().
			Str("asset", asset).
			Int64("rows_deleted", rowsAffected).
			Msg("Deleted price history")
	}
	return rowsAffected, nil
}
