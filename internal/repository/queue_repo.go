package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ErGaurav155/ainspiretech-api/internal/models"
	"github.com/ErGaurav155/ainspiretech-api/internal/window"
)

// SQLiteQueueRepository implements QueueRepository for SQLite.
type SQLiteQueueRepository struct {
	db *sql.DB
}

// NewSQLiteQueueRepository creates a new SQLite queue repository.
func NewSQLiteQueueRepository(db *sql.DB) *SQLiteQueueRepository {
	return &SQLiteQueueRepository{db: db}
}

const queueItemColumns = `id, user_id, account_id, action_type, payload_json, priority, status,
	defer_reason, window_start, attempts, error_message, processed_at, created_at, updated_at`

func (r *SQLiteQueueRepository) Enqueue(ctx context.Context, item *models.QueueItem) error {
	query := `
		INSERT INTO queue_items (id, user_id, account_id, action_type, payload_json, priority,
			status, defer_reason, window_start, attempts, error_message, processed_at,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		item.ID,
		item.UserID,
		item.AccountID,
		item.ActionType,
		string(item.PayloadJSON),
		item.Priority,
		item.Status,
		item.DeferReason,
		window.Key(item.WindowStart),
		item.Attempts,
		nullString(item.ErrorMessage),
		nullTime(item.ProcessedAt),
		item.CreatedAt.Format(time.RFC3339),
		item.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue item: %w", err)
	}
	return nil
}

func (r *SQLiteQueueRepository) GetByID(ctx context.Context, id string) (*models.QueueItem, error) {
	query := `SELECT ` + queueItemColumns + ` FROM queue_items WHERE id = ?`
	item, err := scanQueueItem(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (r *SQLiteQueueRepository) GetByUserID(ctx context.Context, userID string, limit, offset int) ([]*models.QueueItem, error) {
	query := `SELECT ` + queueItemColumns + ` FROM queue_items
		WHERE user_id = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query queue items: %w", err)
	}
	defer rows.Close()
	return scanQueueItems(rows)
}

func (r *SQLiteQueueRepository) GetByAccountID(ctx context.Context, accountID string, statuses []models.QueueStatus) ([]*models.QueueItem, error) {
	query := `SELECT ` + queueItemColumns + ` FROM queue_items WHERE account_id = ?`
	args := []interface{}{accountID}

	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, s := range statuses {
			placeholders[i] = "?"
			args = append(args, s)
		}
		query += fmt.Sprintf(" AND status IN (%s)", strings.Join(placeholders, ","))
	}
	query += " ORDER BY priority ASC, created_at ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query account queue items: %w", err)
	}
	defer rows.Close()
	return scanQueueItems(rows)
}

// ClaimBatch atomically claims up to limit pending items. Uses a single
// UPDATE ... RETURNING so concurrent drainers never claim the same item.
func (r *SQLiteQueueRepository) ClaimBatch(ctx context.Context, limit int) ([]*models.QueueItem, error) {
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

	now := time.Now().Format(time.RFC3339)
	query := `
		UPDATE queue_items
		SET status = 'processing', updated_at = ?
		WHERE id IN (
			SELECT id FROM queue_items
			WHERE status = 'pending'
			ORDER BY priority ASC, created_at ASC
			LIMIT ?
		)
		RETURNING ` + queueItemColumns

	rows, err := tx.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim queue items: %w", err)
	}
	items, err := scanQueueItems(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true

	// RETURNING does not guarantee row order; restore drain order.
	sort.Slice(items, func(i, j int) bool {
		if items[i].Priority != items[j].Priority {
			return items[i].Priority < items[j].Priority
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items, nil
}

func (r *SQLiteQueueRepository) MarkCompleted(ctx context.Context, id string) error {
	now := time.Now().Format(time.RFC3339)
	_, err := r.db.ExecContext(ctx,
		"UPDATE queue_items SET status = 'completed', processed_at = ?, updated_at = ? WHERE id = ?",
		now, now, id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark queue item completed: %w", err)
	}
	return nil
}

func (r *SQLiteQueueRepository) MarkFailed(ctx context.Context, id string, errMsg string) error {
	now := time.Now().Format(time.RFC3339)
	_, err := r.db.ExecContext(ctx,
		"UPDATE queue_items SET status = 'failed', error_message = ?, processed_at = ?, updated_at = ? WHERE id = ?",
		nullString(errMsg), now, now, id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark queue item failed: %w", err)
	}
	return nil
}

func (r *SQLiteQueueRepository) Requeue(ctx context.Context, id string, errMsg string) error {
	now := time.Now().Format(time.RFC3339)
	_, err := r.db.ExecContext(ctx,
		`UPDATE queue_items SET status = 'pending', attempts = attempts + 1,
			error_message = ?, updated_at = ? WHERE id = ?`,
		nullString(errMsg), now, id,
	)
	if err != nil {
		return fmt.Errorf("failed to requeue item: %w", err)
	}
	return nil
}

func (r *SQLiteQueueRepository) ReleaseToPending(ctx context.Context, id string, note string) error {
	now := time.Now().Format(time.RFC3339)
	_, err := r.db.ExecContext(ctx,
		`UPDATE queue_items SET status = 'pending', error_message = ?, updated_at = ? WHERE id = ?`,
		nullString(note), now, id,
	)
	if err != nil {
		return fmt.Errorf("failed to release queue item: %w", err)
	}
	return nil
}

func (r *SQLiteQueueRepository) CountByStatus(ctx context.Context, status models.QueueStatus) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM queue_items WHERE status = ?", status,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count queue items: %w", err)
	}
	return count, nil
}

func (r *SQLiteQueueRepository) CountGrouped(ctx context.Context) (map[models.ActionType]map[models.QueueStatus]int, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT action_type, status, COUNT(*) FROM queue_items GROUP BY action_type, status")
	if err != nil {
		return nil, fmt.Errorf("failed to count queue items: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.ActionType]map[models.QueueStatus]int)
	for rows.Next() {
		var action, status string
		var count int
		if err := rows.Scan(&action, &status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan queue count row: %w", err)
		}
		byStatus := counts[models.ActionType(action)]
		if byStatus == nil {
			byStatus = make(map[models.QueueStatus]int)
			counts[models.ActionType(action)] = byStatus
		}
		byStatus[models.QueueStatus(status)] = count
	}
	return counts, rows.Err()
}

func (r *SQLiteQueueRepository) CountPendingByUserID(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM queue_items WHERE user_id = ? AND status = 'pending'", userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending queue items: %w", err)
	}
	return count, nil
}

// ResetStaleProcessing returns items stuck in processing longer than maxAge
// to pending. This recovers work lost to crashes mid-drain.
func (r *SQLiteQueueRepository) ResetStaleProcessing(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge).Format(time.RFC3339)
	now := time.Now().Format(time.RFC3339)

	result, err := r.db.ExecContext(ctx,
		`UPDATE queue_items SET status = 'pending', updated_at = ?
			WHERE status = 'processing' AND updated_at < ?`,
		now, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to reset stale processing items: %w", err)
	}
	count, _ := result.RowsAffected()
	return count, nil
}

func (r *SQLiteQueueRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM queue_items WHERE created_at < ? AND status IN ('completed', 'failed')`,
		before.Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old queue items: %w", err)
	}
	count, _ := result.RowsAffected()
	return count, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for the shared scan helper.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanQueueItem(row rowScanner) (*models.QueueItem, error) {
	var item models.QueueItem
	var payloadJSON, windowStart, createdAt, updatedAt string
	var errorMessage, processedAt sql.NullString

	err := row.Scan(
		&item.ID, &item.UserID, &item.AccountID, &item.ActionType, &payloadJSON,
		&item.Priority, &item.Status, &item.DeferReason, &windowStart,
		&item.Attempts, &errorMessage, &processedAt, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan queue item: %w", err)
	}

	item.PayloadJSON = []byte(payloadJSON)
	item.ErrorMessage = errorMessage.String
	item.WindowStart, _ = window.ParseKey(windowStart)
	item.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	item.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	if processedAt.Valid {
		t, _ := time.Parse(time.RFC3339, processedAt.String)
		item.ProcessedAt = &t
	}
	return &item, nil
}

func scanQueueItems(rows *sql.Rows) ([]*models.QueueItem, error) {
	var items []*models.QueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
