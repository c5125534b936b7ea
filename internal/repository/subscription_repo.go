package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ErGaurav155/ainspiretech-api/internal/models"
)

// SQLiteSubscriptionRepository implements SubscriptionRepository for SQLite.
type SQLiteSubscriptionRepository struct {
	db *sql.DB
}

// NewSQLiteSubscriptionRepository creates a new SQLite subscription repository.
func NewSQLiteSubscriptionRepository(db *sql.DB) *SQLiteSubscriptionRepository {
	return &SQLiteSubscriptionRepository{db: db}
}

func (r *SQLiteSubscriptionRepository) Upsert(ctx context.Context, sub *models.Subscription) error {
	query := `
		INSERT INTO subscriptions (id, user_id, tier, status, expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			tier = excluded.tier,
			status = excluded.status,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
	`
	_, err := r.db.ExecContext(ctx, query,
		sub.ID,
		sub.UserID,
		sub.Tier,
		sub.Status,
		nullTime(sub.ExpiresAt),
		sub.CreatedAt.Format(time.RFC3339),
		sub.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert subscription: %w", err)
	}
	return nil
}

func (r *SQLiteSubscriptionRepository) GetByUserID(ctx context.Context, userID string) (*models.Subscription, error) {
	query := `SELECT id, user_id, tier, status, expires_at, created_at, updated_at
		FROM subscriptions WHERE user_id = ?`
	var sub models.Subscription
	var expiresAt sql.NullString
	var createdAt, updatedAt string

	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&sub.ID, &sub.UserID, &sub.Tier, &sub.Status, &expiresAt, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan subscription: %w", err)
	}

	sub.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	sub.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	if expiresAt.Valid {
		t, _ := time.Parse(time.RFC3339, expiresAt.String)
		sub.ExpiresAt = &t
	}
	return &sub, nil
}

func (r *SQLiteSubscriptionRepository) Delete(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM subscriptions WHERE user_id = ?", userID)
	if err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	return nil
}
