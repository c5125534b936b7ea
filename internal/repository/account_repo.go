package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ErGaurav155/ainspiretech-api/internal/models"
)

// SQLiteAccountRepository implements AccountRepository for SQLite.
type SQLiteAccountRepository struct {
	db *sql.DB
}

// NewSQLiteAccountRepository creates a new SQLite account repository.
func NewSQLiteAccountRepository(db *sql.DB) *SQLiteAccountRepository {
	return &SQLiteAccountRepository{db: db}
}

const accountColumns = `id, user_id, instagram_user_id, username, access_token_enc,
	token_expires_at, automation_enabled, last_synced_at, created_at, updated_at`

func (r *SQLiteAccountRepository) Create(ctx context.Context, account *models.InstagramAccount) error {
	query := `
		INSERT INTO instagram_accounts (id, user_id, instagram_user_id, username, access_token_enc,
			token_expires_at, automation_enabled, last_synced_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	enabled := 0
	if account.AutomationEnabled {
		enabled = 1
	}
	_, err := r.db.ExecContext(ctx, query,
		account.ID,
		account.UserID,
		account.InstagramUserID,
		account.Username,
		account.AccessTokenEnc,
		nullTime(account.TokenExpiresAt),
		enabled,
		nullTime(account.LastSyncedAt),
		account.CreatedAt.Format(time.RFC3339),
		account.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to create instagram account: %w", err)
	}
	return nil
}

func (r *SQLiteAccountRepository) GetByID(ctx context.Context, id string) (*models.InstagramAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM instagram_accounts WHERE id = ?`
	return scanAccount(r.db.QueryRowContext(ctx, query, id))
}

func (r *SQLiteAccountRepository) GetByUserID(ctx context.Context, userID string) ([]*models.InstagramAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM instagram_accounts WHERE user_id = ? ORDER BY created_at ASC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query instagram accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*models.InstagramAccount
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

func (r *SQLiteAccountRepository) GetByInstagramUserID(ctx context.Context, igUserID string) (*models.InstagramAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM instagram_accounts WHERE instagram_user_id = ?`
	return scanAccount(r.db.QueryRowContext(ctx, query, igUserID))
}

func (r *SQLiteAccountRepository) Update(ctx context.Context, account *models.InstagramAccount) error {
	enabled := 0
	if account.AutomationEnabled {
		enabled = 1
	}
	query := `
		UPDATE instagram_accounts
		SET username = ?, access_token_enc = ?, token_expires_at = ?, automation_enabled = ?, updated_at = ?
		WHERE id = ?
	`
	_, err := r.db.ExecContext(ctx, query,
		account.Username,
		account.AccessTokenEnc,
		nullTime(account.TokenExpiresAt),
		enabled,
		time.Now().Format(time.RFC3339),
		account.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update instagram account: %w", err)
	}
	return nil
}

func (r *SQLiteAccountRepository) UpdateLastSynced(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE instagram_accounts SET last_synced_at = ?, updated_at = ? WHERE id = ?",
		at.Format(time.RFC3339), time.Now().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update last synced: %w", err)
	}
	return nil
}

func (r *SQLiteAccountRepository) SetAutomationEnabled(ctx context.Context, id string, enabled bool) error {
	val := 0
	if enabled {
		val = 1
	}
	_, err := r.db.ExecContext(ctx,
		"UPDATE instagram_accounts SET automation_enabled = ?, updated_at = ? WHERE id = ?",
		val, time.Now().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("failed to set automation enabled: %w", err)
	}
	return nil
}

func (r *SQLiteAccountRepository) CountByUserID(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM instagram_accounts WHERE user_id = ?", userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count instagram accounts: %w", err)
	}
	return count, nil
}

func (r *SQLiteAccountRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM instagram_accounts WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete instagram account: %w", err)
	}
	return nil
}

func scanAccount(row rowScanner) (*models.InstagramAccount, error) {
	var account models.InstagramAccount
	var tokenExpiresAt, lastSyncedAt sql.NullString
	var enabled int
	var createdAt, updatedAt string

	err := row.Scan(
		&account.ID, &account.UserID, &account.InstagramUserID, &account.Username,
		&account.AccessTokenEnc, &tokenExpiresAt, &enabled, &lastSyncedAt,
		&createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan instagram account: %w", err)
	}

	account.AutomationEnabled = enabled == 1
	account.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	account.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	if tokenExpiresAt.Valid {
		t, _ := time.Parse(time.RFC3339, tokenExpiresAt.String)
		account.TokenExpiresAt = &t
	}
	if lastSyncedAt.Valid {
		t, _ := time.Parse(time.RFC3339, lastSyncedAt.String)
		account.LastSyncedAt = &t
	}
	return &account, nil
}
