// Package runs archives completed optimization results.
package runs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/frontier/internal/modules/optimization"
)

// DefaultListLimit caps List when the caller passes no limit.
const DefaultListLimit = 50

// Run is one archived pipeline result.
type Run struct {
	ID        string               `json:"id"`
	CreatedAt time.Time            `json:"created_at"`
	Result    *optimization.Result `json:"result"`
}

// Summary is the list view of a run.
type Summary struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	Objective string    `json:"objective"`
	Assets    int       `json:"assets"`
	Sharpe    float64   `json:"sharpe"`
	CreatedAt time.Time `json:"created_at"`
}

// Repository stores runs in the runs database.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new run repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "runs").Logger(),
	}
}

// Save archives result under a new ID.
func (r *Repository) Save(ctx context.Context, result *optimization.Result) (string, error) {
	if result == nil {
		return "", fmt.Errorf("cannot save nil result")
	}

	payload, err := msgpack.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("failed to encode run: %w", err)
	}

	id := uuid.NewString()
	createdAt := result.Timestamp
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO optimization_runs (id, label, objective, assets, sharpe, created_at, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, id, result.Label, string(result.Objective), len(result.Assets), result.Performance.SharpeRatio,
		createdAt.UnixNano(), payload)
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}

	r.log.Debug().
		Str("id", id).
		Str("label", result.Label).
		Int("payload_bytes", len(payload)).
		Msg("Saved optimization run")

	return id, nil
}

// Get returns the run with the given ID, or nil if there is none.
func (r *Repository) Get(ctx context.Context, id string) (*Run, error) {
	var (
		createdAt int64
		payload   []byte
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT created_at, payload FROM optimization_runs WHERE id = ?
	`, id).Scan(&createdAt, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", id, err)
	}

	var result optimization.Result
	if err := msgpack.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("failed to decode run %s: %w", id, err)
	}

	return &Run{
		ID:        id,
		CreatedAt: time.Unix(0, createdAt).UTC(),
		Result:    &result,
	}, nil
}

// List returns the newest runs first, optionally restricted to one label.
func (r *Repository) List(ctx context.Context, label string, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `SELECT id, label, objective, assets, sharpe, created_at FROM optimization_runs`
	args := []interface{}{}
	if label != "" {
		query += ` WHERE label = ?`
		args = append(args, label)
	}
	query += ` ORDER BY created_at DESC, id LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	summaries := []Summary{}
	for rows.Next() {
		var s Summary
		var createdAt int64
		if err := rows.Scan(&s.ID, &s.Label, &s.Objective, &s.Assets, &s.Sharpe, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		s.CreatedAt = time.Unix(0, createdAt).UTC()
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return summaries, nil
}

// DeleteOlderThan removes runs created before cutoff.
func (r *Repository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM optimization_runs WHERE created_at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to delete old runs: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected > 0 {
		r.log.Info().
			Int64("rows_deleted", rowsAffected).
			Time("older_than", cutoff).
			Msg("Deleted old optimization runs")
	}
	return rowsAffected, nil
}
