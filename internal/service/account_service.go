package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/ErGaurav155/ainspiretech-api/internal/constants"
	"github.com/ErGaurav155/ainspiretech-api/internal/crypto"
	"github.com/ErGaurav155/ainspiretech-api/internal/models"
	"github.com/ErGaurav155/ainspiretech-api/internal/repository"
)

// ErrAccountLimitReached is returned when connecting another account would
// exceed the user's tier allowance.
var ErrAccountLimitReached = fmt.Errorf("account limit for tier reached")

// AccountService manages connected Instagram business accounts. Access
// tokens are encrypted at rest and only decrypted inside the executor.
type AccountService struct {
	repos     *repository.Repositories
	encryptor *crypto.Encryptor
	logger    *slog.Logger
	nowFunc   func() time.Time
}

// NewAccountService creates a new account service.
func NewAccountService(repos *repository.Repositories, encryptor *crypto.Encryptor, logger *slog.Logger) *AccountService {
	return &AccountService{
		repos:     repos,
		encryptor: encryptor,
		logger:    logger.With("component", "accounts"),
		nowFunc:   time.Now,
	}
}

// ConnectAccount stores a newly authorized Instagram account for a user.
func (s *AccountService) ConnectAccount(ctx context.Context, userID, igUserID, username, accessToken string, tokenExpiresAt *time.Time) (*models.InstagramAccount, error) {
	if igUserID == "" || accessToken == "" {
		return nil, fmt.Errorf("instagram user id and access token are required")
	}

	// Re-authorizing an already connected account refreshes its token
	// instead of creating a duplicate.
	existing, err := s.repos.Account.GetByInstagramUserID(ctx, igUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up account: %w", err)
	}
	if existing != nil {
		if existing.UserID != userID {
			return nil, fmt.Errorf("instagram account already connected to another user")
		}
		enc, err := s.encryptor.Encrypt(accessToken)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt access token: %w", err)
		}
		existing.AccessTokenEnc = enc
		existing.TokenExpiresAt = tokenExpiresAt
		if username != "" {
			existing.Username = username
		}
		existing.UpdatedAt = s.nowFunc().UTC()
		if err := s.repos.Account.Update(ctx, existing); err != nil {
			return nil, fmt.Errorf("failed to refresh account: %w", err)
		}
		s.logger.Info("account token refreshed", "account_id", existing.ID, "user_id", userID)
		return existing, nil
	}

	sub, err := s.repos.Subscription.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve subscription: %w", err)
	}
	tier := constants.GetTierLimits(sub.ActiveTier(s.nowFunc()))
	if tier.AccountLimit > 0 {
		count, err := s.repos.Account.CountByUserID(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to count accounts: %w", err)
		}
		if count >= tier.AccountLimit {
			return nil, ErrAccountLimitReached
		}
	}

	enc, err := s.encryptor.Encrypt(accessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt access token: %w", err)
	}

	now := s.nowFunc().UTC()
	account := &models.InstagramAccount{
		ID:                ulid.Make().String(),
		UserID:            userID,
		InstagramUserID:   igUserID,
		Username:          username,
		AccessTokenEnc:    enc,
		TokenExpiresAt:    tokenExpiresAt,
		AutomationEnabled: true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.repos.Account.Create(ctx, account); err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	s.logger.Info("account connected", "account_id", account.ID, "user_id", userID, "username", username)
	return account, nil
}

// GetAccount returns one account, verifying ownership.
func (s *AccountService) GetAccount(ctx context.Context, userID, accountID string) (*models.InstagramAccount, error) {
	account, err := s.repos.Account.GetByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	if account == nil || account.UserID != userID {
		return nil, nil
	}
	return account, nil
}

// ListAccounts returns all accounts connected by a user.
func (s *AccountService) ListAccounts(ctx context.Context, userID string) ([]*models.InstagramAccount, error) {
	return s.repos.Account.GetByUserID(ctx, userID)
}

// SetAutomationEnabled flips the per-account automation flag.
func (s *AccountService) SetAutomationEnabled(ctx context.Context, userID, accountID string, enabled bool) error {
	account, err := s.GetAccount(ctx, userID, accountID)
	if err != nil {
		return err
	}
	if account == nil {
		return fmt.Errorf("account not found")
	}
	if err := s.repos.Account.SetAutomationEnabled(ctx, accountID, enabled); err != nil {
		return fmt.Errorf("failed to update automation flag: %w", err)
	}
	s.logger.Info("account automation updated", "account_id", accountID, "enabled", enabled)
	return nil
}

// DisconnectAccount removes an account and its credentials.
func (s *AccountService) DisconnectAccount(ctx context.Context, userID, accountID string) error {
	account, err := s.GetAccount(ctx, userID, accountID)
	if err != nil {
		return err
	}
	if account == nil {
		return fmt.Errorf("account not found")
	}
	if err := s.repos.Account.Delete(ctx, accountID); err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	s.logger.Info("account disconnected", "account_id", accountID, "user_id", userID)
	return nil
}
