package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ErGaurav155/ainspiretech-api/internal/models"
	"github.com/ErGaurav155/ainspiretech-api/internal/window"
)

// SQLitePauseRepository implements PauseRepository for SQLite.
type SQLitePauseRepository struct {
	db *sql.DB
}

// NewSQLitePauseRepository creates a new SQLite pause repository.
func NewSQLitePauseRepository(db *sql.DB) *SQLitePauseRepository {
	return &SQLitePauseRepository{db: db}
}

func (r *SQLitePauseRepository) Get(ctx context.Context, scope string) (*models.PauseState, error) {
	query := `SELECT id, scope, paused, reason, window_start, paused_by, created_at, updated_at
		FROM automation_pause WHERE scope = ?`
	return scanPauseState(r.db.QueryRowContext(ctx, query, scope))
}

func (r *SQLitePauseRepository) Upsert(ctx context.Context, state *models.PauseState) error {
	paused := 0
	if state.Paused {
		paused = 1
	}
	var windowStart sql.NullString
	if state.WindowStart != nil {
		windowStart = sql.NullString{String: window.Key(*state.WindowStart), Valid: true}
	}
	query := `
		INSERT INTO automation_pause (id, scope, paused, reason, window_start, paused_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(scope) DO UPDATE SET
			paused = excluded.paused,
			reason = excluded.reason,
			window_start = excluded.window_start,
			paused_by = excluded.paused_by,
			updated_at = excluded.updated_at
	`
	_, err := r.db.ExecContext(ctx, query,
		state.ID,
		state.Scope,
		paused,
		state.Reason,
		windowStart,
		nullString(state.PausedBy),
		state.CreatedAt.Format(time.RFC3339),
		state.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert pause state: %w", err)
	}
	return nil
}

// ClearAppLimitPausesBefore lifts quota pauses from earlier windows. Pauses
// raised manually keep their state; only app_limit pauses expire at rollover.
func (r *SQLitePauseRepository) ClearAppLimitPausesBefore(ctx context.Context, windowStart time.Time) (int64, error) {
	now := time.Now().Format(time.RFC3339)
	result, err := r.db.ExecContext(ctx,
		`UPDATE automation_pause SET paused = 0, updated_at = ?
			WHERE paused = 1 AND reason = 'app_limit' AND window_start < ?`,
		now, window.Key(windowStart),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to clear app limit pauses: %w", err)
	}
	count, _ := result.RowsAffected()
	return count, nil
}

func (r *SQLitePauseRepository) ListPaused(ctx context.Context) ([]*models.PauseState, error) {
	query := `SELECT id, scope, paused, reason, window_start, paused_by, created_at, updated_at
		FROM automation_pause WHERE paused = 1 ORDER BY scope ASC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query paused scopes: %w", err)
	}
	defer rows.Close()

	var states []*models.PauseState
	for rows.Next() {
		state, err := scanPauseState(rows)
		if err != nil {
			return nil, err
		}
		states = append(states, state)
	}
	return states, rows.Err()
}

func scanPauseState(row rowScanner) (*models.PauseState, error) {
	var state models.PauseState
	var paused int
	var windowStart, pausedBy sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&state.ID, &state.Scope, &paused, &state.Reason, &windowStart, &pausedBy, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan pause state: %w", err)
	}

	state.Paused = paused == 1
	state.PausedBy = pausedBy.String
	if windowStart.Valid {
		t, perr := window.ParseKey(windowStart.String)
		if perr == nil {
			state.WindowStart = &t
		}
	}
	state.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	state.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &state, nil
}
