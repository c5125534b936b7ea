package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ErGaurav155/ainspiretech-api/internal/crypto"
	"github.com/ErGaurav155/ainspiretech-api/internal/instagram"
	"github.com/ErGaurav155/ainspiretech-api/internal/models"
	"github.com/ErGaurav155/ainspiretech-api/internal/repository"
)

// ActionExecutor performs one queued Instagram action.
type ActionExecutor interface {
	Execute(ctx context.Context, item *models.QueueItem) error
}

// InstagramExecutor executes queued actions against the Graph API using the
// owning account's stored credentials.
type InstagramExecutor struct {
	client    *instagram.Client
	accounts  repository.AccountRepository
	encryptor *crypto.Encryptor
	logger    *slog.Logger
}

// NewInstagramExecutor creates a new executor.
func NewInstagramExecutor(client *instagram.Client, accounts repository.AccountRepository, encryptor *crypto.Encryptor, logger *slog.Logger) *InstagramExecutor {
	return &InstagramExecutor{
		client:    client,
		accounts:  accounts,
		encryptor: encryptor,
		logger:    logger.With("component", "executor"),
	}
}

// Execute decodes the item's payload and performs the call. Payloads are
// validated on enqueue, so a decode failure here means the row was
// tampered with or written by an older incompatible version.
func (e *InstagramExecutor) Execute(ctx context.Context, item *models.QueueItem) error {
	account, err := e.accounts.GetByID(ctx, item.AccountID)
	if err != nil {
		return fmt.Errorf("failed to load account: %w", err)
	}
	if account == nil {
		return fmt.Errorf("account %s no longer exists", item.AccountID)
	}
	if !account.AutomationEnabled {
		return fmt.Errorf("automation disabled for account %s", account.ID)
	}
	if account.TokenExpiresAt != nil && account.TokenExpiresAt.Before(time.Now()) {
		return fmt.Errorf("access token expired for account %s", account.ID)
	}

	token, err := e.encryptor.Decrypt(account.AccessTokenEnc)
	if err != nil {
		return fmt.Errorf("failed to decrypt access token: %w", err)
	}

	payload, err := models.DecodePayload(item.ActionType, item.PayloadJSON)
	if err != nil {
		return fmt.Errorf("failed to decode payload: %w", err)
	}

	switch p := payload.(type) {
	case models.CommentReplyPayload:
		return e.client.ReplyToComment(ctx, token, p.CommentID, p.Message)
	case models.DMReplyPayload:
		return e.client.SendDM(ctx, token, account.InstagramUserID, p.RecipientID, p.Message)
	case models.StoryReplyPayload:
		return e.client.ReplyToStory(ctx, token, account.InstagramUserID, p.StoryID, p.Message)
	case models.DMFollowCheckPayload:
		following, err := e.client.CheckFollowStatus(ctx, token, p.RecipientID)
		if err != nil {
			return err
		}
		if following {
			// Already a follower, the prompt would be noise.
			return nil
		}
		return e.client.SendDM(ctx, token, account.InstagramUserID, p.RecipientID, p.Message)
	case models.FollowVerificationPayload:
		following, err := e.client.CheckFollowStatus(ctx, token, p.RecipientID)
		if err != nil {
			return err
		}
		if !following {
			e.logger.Debug("follow not verified, link withheld",
				"account_id", account.ID, "recipient_id", p.RecipientID)
			return nil
		}
		return e.client.SendDM(ctx, token, account.InstagramUserID, p.RecipientID, linkMessage(p.Message, p.Link))
	case models.DMFinalLinkPayload:
		return e.client.SendDM(ctx, token, account.InstagramUserID, p.RecipientID, linkMessage(p.Message, p.Link))
	case models.ProfileSyncPayload:
		profile, err := e.client.GetProfile(ctx, token, account.InstagramUserID, p.Fields)
		if err != nil {
			return err
		}
		if profile.Username != "" && profile.Username != account.Username {
			account.Username = profile.Username
			if err := e.accounts.Update(ctx, account); err != nil {
				return fmt.Errorf("failed to store synced profile: %w", err)
			}
		}
		if err := e.accounts.UpdateLastSynced(ctx, account.ID, time.Now().UTC()); err != nil {
			return fmt.Errorf("failed to record sync time: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("no executor for action type %q", item.ActionType)
	}
}

// linkMessage joins an optional lead-in message with the delivered link.
func linkMessage(message, link string) string {
	if message == "" {
		return link
	}
	return message + "\n" + link
}
