package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/ErGaurav155/ainspiretech-api/internal/models"
	"github.com/ErGaurav155/ainspiretech-api/internal/window"
)

// appSubjectID is the fixed subject_id of the platform-wide counter row.
const appSubjectID = "app"

// SQLiteUsageRepository implements UsageRepository for SQLite.
type SQLiteUsageRepository struct {
	db *sql.DB
}

// NewSQLiteUsageRepository creates a new SQLite usage repository.
func NewSQLiteUsageRepository(db *sql.DB) *SQLiteUsageRepository {
	return &SQLiteUsageRepository{db: db}
}

// RecordGated checks the app, account and user ceilings and increments all
// three counters inside one transaction. The read and the write share the
// transaction's snapshot, so two concurrent callers contending for the last
// slot in a window cannot both get it.
func (r *SQLiteUsageRepository) RecordGated(ctx context.Context, userID, accountID string, action models.ActionType, windowStart time.Time, count int, limits GateLimits) (*GateResult, error) {
	if count <= 0 {
		return nil, fmt.Errorf("count must be positive, got %d", count)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	windowKey := window.Key(windowStart)

	appCount, err := countInTx(ctx, tx, appSubjectID, models.SubjectApp, windowKey)
	if err != nil {
		return nil, err
	}
	accountCount, err := countInTx(ctx, tx, accountID, models.SubjectAccount, windowKey)
	if err != nil {
		return nil, err
	}
	userCount, err := countInTx(ctx, tx, userID, models.SubjectUser, windowKey)
	if err != nil {
		return nil, err
	}

	result := &GateResult{
		UserCount:    userCount,
		AccountCount: accountCount,
		AppCount:     appCount,
	}

	// Broadest ceiling first: an app-limit rejection pauses everyone, so it
	// must win over the narrower reasons when several ceilings are exhausted.
	switch {
	case limits.AppLimit > 0 && appCount+count > limits.AppLimit:
		result.LimitHit = models.DeferReasonAppLimit
	case limits.AccountLimit > 0 && accountCount+count > limits.AccountLimit:
		result.LimitHit = models.DeferReasonAccountLimit
	case limits.UserLimit > 0 && userCount+count > limits.UserLimit:
		result.LimitHit = models.DeferReasonUserLimit
	}
	if result.LimitHit != "" {
		// Nothing written; rollback via defer.
		return result, nil
	}

	now := time.Now().UTC()
	for _, sub := range []struct {
		id  string
		typ models.SubjectType
	}{
		{userID, models.SubjectUser},
		{accountID, models.SubjectAccount},
		{appSubjectID, models.SubjectApp},
	} {
		if err := incrementInTx(ctx, tx, sub.id, sub.typ, windowKey, action, count, now); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true

	result.Allowed = true
	result.UserCount += count
	result.AccountCount += count
	result.AppCount += count
	return result, nil
}

// Record increments the three counters without checking any ceiling.
func (r *SQLiteUsageRepository) Record(ctx context.Context, userID, accountID string, action models.ActionType, windowStart time.Time, count int) error {
	if count <= 0 {
		return fmt.Errorf("count must be positive, got %d", count)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	windowKey := window.Key(windowStart)
	now := time.Now().UTC()
	for _, sub := range []struct {
		id  string
		typ models.SubjectType
	}{
		{userID, models.SubjectUser},
		{accountID, models.SubjectAccount},
		{appSubjectID, models.SubjectApp},
	} {
		if err := incrementInTx(ctx, tx, sub.id, sub.typ, windowKey, action, count, now); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	return nil
}

func (r *SQLiteUsageRepository) GetCount(ctx context.Context, subjectID string, subjectType models.SubjectType, windowStart time.Time) (int, error) {
	query := `SELECT COALESCE(SUM(call_count), 0) FROM usage_records
		WHERE subject_id = ? AND subject_type = ? AND window_start = ?`
	var count int
	err := r.db.QueryRowContext(ctx, query, subjectID, subjectType, window.Key(windowStart)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count usage: %w", err)
	}
	return count, nil
}

func (r *SQLiteUsageRepository) GetCountsByAction(ctx context.Context, subjectID string, subjectType models.SubjectType, windowStart time.Time) (map[models.ActionType]int, error) {
	query := `SELECT action_type, call_count FROM usage_records
		WHERE subject_id = ? AND subject_type = ? AND window_start = ?`
	rows, err := r.db.QueryContext(ctx, query, subjectID, subjectType, window.Key(windowStart))
	if err != nil {
		return nil, fmt.Errorf("failed to query usage by action: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.ActionType]int)
	for rows.Next() {
		var action string
		var count int
		if err := rows.Scan(&action, &count); err != nil {
			return nil, fmt.Errorf("failed to scan usage row: %w", err)
		}
		counts[models.ActionType(action)] = count
	}
	return counts, rows.Err()
}

func (r *SQLiteUsageRepository) GetUserCounts(ctx context.Context, windowStart time.Time) (map[string]int, error) {
	query := `SELECT subject_id, SUM(call_count) FROM usage_records
		WHERE subject_type = ? AND window_start = ?
		GROUP BY subject_id`
	rows, err := r.db.QueryContext(ctx, query, models.SubjectUser, window.Key(windowStart))
	if err != nil {
		return nil, fmt.Errorf("failed to query user usage: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var userID string
		var count int
		if err := rows.Scan(&userID, &count); err != nil {
			return nil, fmt.Errorf("failed to scan usage row: %w", err)
		}
		counts[userID] = count
	}
	return counts, rows.Err()
}

func (r *SQLiteUsageRepository) GetSubjectHistory(ctx context.Context, subjectID string, subjectType models.SubjectType, from, to time.Time) ([]*models.UsageRecord, error) {
	query := `
		SELECT id, subject_id, subject_type, window_start, action_type, call_count, created_at, updated_at
		FROM usage_records
		WHERE subject_id = ? AND subject_type = ? AND window_start >= ? AND window_start < ?
		ORDER BY window_start ASC, action_type ASC
	`
	rows, err := r.db.QueryContext(ctx, query, subjectID, subjectType, window.Key(from), window.Key(to))
	if err != nil {
		return nil, fmt.Errorf("failed to query usage history: %w", err)
	}
	defer rows.Close()

	var records []*models.UsageRecord
	for rows.Next() {
		var rec models.UsageRecord
		var windowStart, createdAt, updatedAt string
		if err := rows.Scan(&rec.ID, &rec.SubjectID, &rec.SubjectType, &windowStart, &rec.ActionType, &rec.CallCount, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan usage record: %w", err)
		}
		rec.WindowStart, _ = window.ParseKey(windowStart)
		rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		rec.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		records = append(records, &rec)
	}
	return records, rows.Err()
}

// DeleteOlderThan removes counter rows from windows before the cutoff.
func (r *SQLiteUsageRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM usage_records WHERE window_start < ?",
		window.Key(before),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old usage records: %w", err)
	}
	count, _ := result.RowsAffected()
	return count, nil
}

// countInTx sums a subject's calls in a window inside the gate transaction.
func countInTx(ctx context.Context, tx *sql.Tx, subjectID string, subjectType models.SubjectType, windowKey string) (int, error) {
	var count int
	err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(call_count), 0) FROM usage_records
			WHERE subject_id = ? AND subject_type = ? AND window_start = ?`,
		subjectID, subjectType, windowKey,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count usage for %s %q: %w", subjectType, subjectID, err)
	}
	return count, nil
}

// incrementInTx bumps one counter row, creating it on first use of the window.
func incrementInTx(ctx context.Context, tx *sql.Tx, subjectID string, subjectType models.SubjectType, windowKey string, action models.ActionType, count int, now time.Time) error {
	nowStr := now.Format(time.RFC3339)
	_, err := tx.ExecContext(ctx, `
		INSERT INTO usage_records (id, subject_id, subject_type, window_start, action_type, call_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(subject_id, subject_type, window_start, action_type)
		DO UPDATE SET call_count = call_count + excluded.call_count, updated_at = excluded.updated_at
	`, ulid.Make().String(), subjectID, subjectType, windowKey, action, count, nowStr, nowStr)
	if err != nil {
		return fmt.Errorf("failed to increment usage for %s %q: %w", subjectType, subjectID, err)
	}
	return nil
}

// Helper functions shared by the SQLite repositories.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(time.RFC3339), Valid: true}
}
