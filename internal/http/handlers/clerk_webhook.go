package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	svix "github.com/svix/svix-webhooks/go"

	"github.com/ErGaurav155/ainspiretech-api/internal/config"
	"github.com/ErGaurav155/ainspiretech-api/internal/constants"
	"github.com/ErGaurav155/ainspiretech-api/internal/service"
)

// ClerkWebhookHandler handles Clerk webhook events.
type ClerkWebhookHandler struct {
	cfg         *config.Config
	subSvc      *service.SubscriptionService
	accountSvc  *service.AccountService
	tierSyncSvc *service.TierSyncService
	logger      *slog.Logger
}

// NewClerkWebhookHandler creates a new Clerk webhook handler.
func NewClerkWebhookHandler(cfg *config.Config, subSvc *service.SubscriptionService, accountSvc *service.AccountService, tierSyncSvc *service.TierSyncService, logger *slog.Logger) *ClerkWebhookHandler {
	return &ClerkWebhookHandler{
		cfg:         cfg,
		subSvc:      subSvc,
		accountSvc:  accountSvc,
		tierSyncSvc: tierSyncSvc,
		logger:      logger,
	}
}

// ClerkWebhookEvent represents a Clerk webhook event.
type ClerkWebhookEvent struct {
	Type   string          `json:"type"`
	Object string          `json:"object"`
	Data   json.RawMessage `json:"data"`
}

// SubscriptionEventData represents subscription data from Clerk Commerce.
// Both subscription.* and subscriptionItem.* events carry these fields.
type SubscriptionEventData struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	Status      string `json:"status"`
	PlanID      string `json:"plan_id"`
	PlanSlug    string `json:"plan_slug,omitempty"`
	PlanName    string `json:"plan_name,omitempty"`
	PeriodStart int64  `json:"period_start,omitempty"` // Unix milliseconds
	PeriodEnd   int64  `json:"period_end,omitempty"`   // Unix milliseconds
}

// UserDeletedData represents user deletion data from Clerk.
type UserDeletedData struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

// HandleWebhook processes incoming Clerk webhooks.
func (h *ClerkWebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	const maxBodySize = 65536 // 64KB

	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.Error("failed to read webhook body", "error", err)
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	// Verify webhook signature using Svix
	headers := http.Header{}
	headers.Set("svix-id", r.Header.Get("svix-id"))
	headers.Set("svix-timestamp", r.Header.Get("svix-timestamp"))
	headers.Set("svix-signature", r.Header.Get("svix-signature"))

	wh, err := svix.NewWebhook(h.cfg.ClerkWebhookSecret)
	if err != nil {
		h.logger.Error("failed to create webhook verifier", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if err := wh.Verify(payload, headers); err != nil {
		h.logger.Error("failed to verify webhook signature", "error", err)
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	var event ClerkWebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		h.logger.Error("failed to parse webhook event", "error", err)
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	if err := h.handleEvent(r.Context(), event); err != nil {
		h.logger.Error("failed to handle webhook event", "type", event.Type, "error", err)
		// Return 200 to prevent retries for business logic errors
		w.WriteHeader(http.StatusOK)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// handleEvent routes events to appropriate handlers.
func (h *ClerkWebhookHandler) handleEvent(ctx context.Context, event ClerkWebhookEvent) error {
	h.logger.Info("received Clerk webhook", "type", event.Type)

	switch event.Type {
	case "subscription.active", "subscription.updated",
		"subscriptionItem.active", "subscriptionItem.updated":
		return h.handleSubscriptionChanged(ctx, event.Data)

	case "subscription.canceled", "subscriptionItem.canceled", "subscriptionItem.ended":
		return h.handleSubscriptionEnded(ctx, event.Data)

	case "user.deleted":
		return h.handleUserDeleted(ctx, event.Data)

	case "plan.created", "plan.updated":
		// Keep tier display names and visibility in step with the dashboard.
		return h.handlePlanChanged(ctx)

	default:
		h.logger.Debug("unhandled webhook event type", "type", event.Type)
		return nil
	}
}

// handleSubscriptionChanged records the user's current plan. Renewals arrive
// as updated events with the same plan and a new period end.
func (h *ClerkWebhookHandler) handleSubscriptionChanged(ctx context.Context, data json.RawMessage) error {
	var sub SubscriptionEventData
	if err := json.Unmarshal(data, &sub); err != nil {
		return err
	}

	if sub.UserID == "" {
		h.logger.Warn("subscription event missing user_id", "subscription_id", sub.ID)
		return nil
	}

	tier := h.planToTier(sub)

	var expiresAt *time.Time
	if sub.PeriodEnd > 0 {
		t := time.UnixMilli(sub.PeriodEnd)
		expiresAt = &t
	}

	if err := h.subSvc.ApplyUpdate(ctx, sub.UserID, tier, sub.Status, expiresAt); err != nil {
		return err
	}

	h.logger.Info("subscription updated",
		"user_id", sub.UserID,
		"subscription_id", sub.ID,
		"tier", tier,
		"status", sub.Status,
	)
	return nil
}

// handleSubscriptionEnded drops the user back to the free tier.
func (h *ClerkWebhookHandler) handleSubscriptionEnded(ctx context.Context, data json.RawMessage) error {
	var sub SubscriptionEventData
	if err := json.Unmarshal(data, &sub); err != nil {
		return err
	}

	if sub.UserID == "" {
		h.logger.Warn("subscription cancellation missing user_id", "subscription_id", sub.ID)
		return nil
	}

	if err := h.subSvc.ApplyDeletion(ctx, sub.UserID); err != nil {
		return err
	}

	h.logger.Info("subscription canceled", "user_id", sub.UserID, "subscription_id", sub.ID)
	return nil
}

// handleUserDeleted removes the user's connected accounts and subscription
// when they delete their Clerk account.
func (h *ClerkWebhookHandler) handleUserDeleted(ctx context.Context, data json.RawMessage) error {
	var userData UserDeletedData
	if err := json.Unmarshal(data, &userData); err != nil {
		return err
	}

	if userData.ID == "" {
		h.logger.Warn("user.deleted event missing user id")
		return nil
	}

	accounts, err := h.accountSvc.ListAccounts(ctx, userData.ID)
	if err != nil {
		return err
	}
	for _, account := range accounts {
		if err := h.accountSvc.DisconnectAccount(ctx, userData.ID, account.ID); err != nil {
			h.logger.Error("failed to disconnect account during user deletion",
				"user_id", userData.ID, "account_id", account.ID, "error", err)
		}
	}

	if err := h.subSvc.ApplyDeletion(ctx, userData.ID); err != nil {
		return err
	}

	h.logger.Info("user data removed", "user_id", userData.ID, "accounts", len(accounts))
	return nil
}

// planToTier maps a Clerk plan to an internal tier name. Slugs like
// "tier_v1_growth" normalize to "growth"; unrecognized plans fall back to free.
func (h *ClerkWebhookHandler) planToTier(sub SubscriptionEventData) string {
	for _, candidate := range []string{sub.PlanSlug, sub.PlanName, sub.PlanID} {
		if candidate == "" {
			continue
		}
		name := constants.NormalizeTierName(candidate)
		if _, ok := constants.Tiers[name]; ok {
			return name
		}
	}
	return constants.TierFree
}

// handlePlanChanged refreshes tier metadata when plans change in Clerk.
func (h *ClerkWebhookHandler) handlePlanChanged(ctx context.Context) error {
	if h.tierSyncSvc == nil {
		h.logger.Debug("tier sync not configured, skipping plan sync")
		return nil
	}
	return h.tierSyncSvc.SyncFromClerk(ctx)
}
