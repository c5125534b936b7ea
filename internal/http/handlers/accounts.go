package handlers

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/ErGaurav155/ainspiretech-api/internal/models"
	"github.com/ErGaurav155/ainspiretech-api/internal/service"
)

// AccountsHandler handles Instagram account management endpoints.
type AccountsHandler struct {
	accountSvc *service.AccountService
	logger     *slog.Logger
}

// NewAccountsHandler creates a new accounts handler.
func NewAccountsHandler(accountSvc *service.AccountService, logger *slog.Logger) *AccountsHandler {
	return &AccountsHandler{accountSvc: accountSvc, logger: logger}
}

// ConnectAccountInput links an Instagram account to the caller.
type ConnectAccountInput struct {
	Body struct {
		InstagramUserID string     `json:"instagram_user_id" minLength:"1" doc:"Instagram Graph user ID"`
		Username        string     `json:"username" doc:"Instagram handle"`
		AccessToken     string     `json:"access_token" minLength:"1" doc:"Long-lived Graph API access token"`
		TokenExpiresAt  *time.Time `json:"token_expires_at,omitempty"`
	}
}

// ConnectAccountOutput is the stored account (token omitted).
type ConnectAccountOutput struct {
	Body models.InstagramAccount
}

// ConnectAccount connects an Instagram account, or refreshes the stored token
// when the account is already linked to the caller.
func (h *AccountsHandler) ConnectAccount(ctx context.Context, input *ConnectAccountInput) (*ConnectAccountOutput, error) {
	userID := getUserID(ctx)
	if userID == "" {
		return nil, huma.Error401Unauthorized("unauthorized")
	}

	account, err := h.accountSvc.ConnectAccount(ctx, userID,
		input.Body.InstagramUserID, input.Body.Username,
		input.Body.AccessToken, input.Body.TokenExpiresAt)
	if err != nil {
		if errors.Is(err, service.ErrAccountLimitReached) {
			return nil, huma.Error403Forbidden("account limit reached for current tier")
		}
		h.logger.Error("connect account failed", "user_id", userID, "error", err)
		return nil, huma.Error422UnprocessableEntity(err.Error())
	}

	return &ConnectAccountOutput{Body: *account}, nil
}

// ListAccountsOutput lists the caller's connected accounts.
type ListAccountsOutput struct {
	Body struct {
		Accounts []*models.InstagramAccount `json:"accounts"`
	}
}

// ListAccounts returns the caller's connected Instagram accounts.
func (h *AccountsHandler) ListAccounts(ctx context.Context, input *struct{}) (*ListAccountsOutput, error) {
	userID := getUserID(ctx)
	if userID == "" {
		return nil, huma.Error401Unauthorized("unauthorized")
	}

	accounts, err := h.accountSvc.ListAccounts(ctx, userID)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list accounts")
	}

	out := &ListAccountsOutput{}
	out.Body.Accounts = accounts
	return out, nil
}

// GetAccountInput identifies one account by ID.
type GetAccountInput struct {
	AccountID string `path:"id" doc:"Account ID"`
}

// GetAccountOutput is one connected account.
type GetAccountOutput struct {
	Body models.InstagramAccount
}

// GetAccount returns one of the caller's connected accounts.
func (h *AccountsHandler) GetAccount(ctx context.Context, input *GetAccountInput) (*GetAccountOutput, error) {
	userID := getUserID(ctx)
	if userID == "" {
		return nil, huma.Error401Unauthorized("unauthorized")
	}

	account, err := h.accountSvc.GetAccount(ctx, userID, input.AccountID)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to load account")
	}
	if account == nil {
		return nil, huma.Error404NotFound("account not found")
	}

	return &GetAccountOutput{Body: *account}, nil
}

// SetAccountAutomationInput toggles per-account automation.
type SetAccountAutomationInput struct {
	AccountID string `path:"id" doc:"Account ID"`
	Body      struct {
		Enabled bool `json:"enabled"`
	}
}

// SetAccountAutomationOutput confirms the new setting.
type SetAccountAutomationOutput struct {
	Body struct {
		AccountID string `json:"account_id"`
		Enabled   bool   `json:"enabled"`
	}
}

// SetAccountAutomation enables or disables automation for one account.
func (h *AccountsHandler) SetAccountAutomation(ctx context.Context, input *SetAccountAutomationInput) (*SetAccountAutomationOutput, error) {
	userID := getUserID(ctx)
	if userID == "" {
		return nil, huma.Error401Unauthorized("unauthorized")
	}

	if err := h.accountSvc.SetAutomationEnabled(ctx, userID, input.AccountID, input.Body.Enabled); err != nil {
		return nil, huma.Error404NotFound("account not found")
	}

	out := &SetAccountAutomationOutput{}
	out.Body.AccountID = input.AccountID
	out.Body.Enabled = input.Body.Enabled
	return out, nil
}

// DisconnectAccountInput identifies the account to remove.
type DisconnectAccountInput struct {
	AccountID string `path:"id" doc:"Account ID"`
}

// DisconnectAccountOutput confirms removal.
type DisconnectAccountOutput struct {
	Body struct {
		Deleted bool `json:"deleted"`
	}
}

// DisconnectAccount removes a connected account and its stored token.
func (h *AccountsHandler) DisconnectAccount(ctx context.Context, input *DisconnectAccountInput) (*DisconnectAccountOutput, error) {
	userID := getUserID(ctx)
	if userID == "" {
		return nil, huma.Error401Unauthorized("unauthorized")
	}

	if err := h.accountSvc.DisconnectAccount(ctx, userID, input.AccountID); err != nil {
		return nil, huma.Error404NotFound("account not found")
	}

	out := &DisconnectAccountOutput{}
	out.Body.Deleted = true
	return out, nil
}
