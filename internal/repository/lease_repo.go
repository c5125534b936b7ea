package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SQLiteLeaseRepository implements LeaseRepository for SQLite.
type SQLiteLeaseRepository struct {
	db *sql.DB
}

// NewSQLiteLeaseRepository creates a new SQLite lease repository.
func NewSQLiteLeaseRepository(db *sql.DB) *SQLiteLeaseRepository {
	return &SQLiteLeaseRepository{db: db}
}

// Acquire takes the lease for a window if it is free or expired. The
// conditional upsert makes the decision in a single statement, so two
// drainers racing for the same window cannot both win.
func (r *SQLiteLeaseRepository) Acquire(ctx context.Context, windowKey, holderID string, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	query := `
		INSERT INTO window_leases (window_key, holder_id, expires_at, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(window_key) DO UPDATE SET
			holder_id = excluded.holder_id,
			expires_at = excluded.expires_at
		WHERE window_leases.expires_at < ? OR window_leases.holder_id = excluded.holder_id
	`
	result, err := r.db.ExecContext(ctx, query,
		windowKey,
		holderID,
		now.Add(ttl).Format(time.RFC3339),
		now.Format(time.RFC3339),
		now.Format(time.RFC3339),
	)
	if err != nil {
		return false, fmt.Errorf("failed to acquire window lease: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return affected > 0, nil
}

// Release drops the lease if holderID still owns it. Releasing a lease
// another holder took over is a no-op.
func (r *SQLiteLeaseRepository) Release(ctx context.Context, windowKey, holderID string) error {
	_, err := r.db.ExecContext(ctx,
		"DELETE FROM window_leases WHERE window_key = ? AND holder_id = ?",
		windowKey, holderID,
	)
	if err != nil {
		return fmt.Errorf("failed to release window lease: %w", err)
	}
	return nil
}

func (r *SQLiteLeaseRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM window_leases WHERE expires_at < ?",
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired leases: %w", err)
	}
	count, _ := result.RowsAffected()
	return count, nil
}
