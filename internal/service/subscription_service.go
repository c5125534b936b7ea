package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/ErGaurav155/ainspiretech-api/internal/auth"
	"github.com/ErGaurav155/ainspiretech-api/internal/constants"
	"github.com/ErGaurav155/ainspiretech-api/internal/models"
	"github.com/ErGaurav155/ainspiretech-api/internal/repository"
)

// SubscriptionService mirrors Clerk Commerce subscription events into the
// local subscriptions table so gate decisions never call out to Clerk.
type SubscriptionService struct {
	repos      *repository.Repositories
	clerkCache *auth.SubscriptionCache
	logger     *slog.Logger
	nowFunc    func() time.Time
}

// NewSubscriptionService creates a new subscription service.
func NewSubscriptionService(repos *repository.Repositories, logger *slog.Logger) *SubscriptionService {
	return &SubscriptionService{
		repos:   repos,
		logger:  logger.With("component", "subscriptions"),
		nowFunc: time.Now,
	}
}

// ApplyUpdate upserts the user's current plan. Tier names arrive in Clerk's
// "tier_v1_starter" form and are normalized before storage; unknown tiers
// fall back to free rather than erroring, so a plan rename cannot strand
// webhook processing.
func (s *SubscriptionService) ApplyUpdate(ctx context.Context, userID, tierName, status string, expiresAt *time.Time) error {
	if userID == "" {
		return fmt.Errorf("user id is required")
	}
	tier := constants.NormalizeTierName(tierName)
	if _, ok := constants.Tiers[tier]; !ok {
		s.logger.Warn("unknown tier in subscription update, defaulting to free",
			"user_id", userID,
			"tier", tierName,
		)
		tier = "free"
	}
	if status == "" {
		status = "active"
	}

	now := s.nowFunc().UTC()
	sub := &models.Subscription{
		ID:        ulid.Make().String(),
		UserID:    userID,
		Tier:      tier,
		Status:    status,
		ExpiresAt: expiresAt,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repos.Subscription.Upsert(ctx, sub); err != nil {
		return fmt.Errorf("failed to store subscription: %w", err)
	}

	s.logger.Info("subscription updated", "user_id", userID, "tier", tier, "status", status)
	return nil
}

// ApplyDeletion handles subscription cancellation: the local mirror row is
// removed and the user falls back to the free tier on the next gate check.
func (s *SubscriptionService) ApplyDeletion(ctx context.Context, userID string) error {
	if err := s.repos.Subscription.Delete(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	s.logger.Info("subscription removed", "user_id", userID)
	return nil
}

// SetClerkFallback enables reconciliation against Clerk's Backend API. When
// set, users with no usable local subscription are looked up in Clerk once
// per cache TTL; a missed webhook then heals on the next tier resolution.
func (s *SubscriptionService) SetClerkFallback(cache *auth.SubscriptionCache) {
	s.clerkCache = cache
}

// GetTier resolves the user's effective tier name.
func (s *SubscriptionService) GetTier(ctx context.Context, userID string) (string, error) {
	sub, err := s.repos.Subscription.GetByUserID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("failed to resolve subscription: %w", err)
	}

	tier := sub.ActiveTier(s.nowFunc())
	if tier == constants.TierFree && s.clerkCache != nil {
		if reconciled, ok := s.reconcileFromClerk(ctx, userID); ok {
			tier = reconciled
		}
	}
	return tier, nil
}

// reconcileFromClerk pulls the user's subscription from Clerk and mirrors it
// locally. Failures are logged and swallowed: the local answer stands.
func (s *SubscriptionService) reconcileFromClerk(ctx context.Context, userID string) (string, bool) {
	clerkSub, err := s.clerkCache.GetSubscription(ctx, userID)
	if err != nil {
		s.logger.Warn("clerk subscription lookup failed", "user_id", userID, "error", err)
		return "", false
	}
	if clerkSub == nil || clerkSub.Status != "active" {
		return "", false
	}

	var expiresAt *time.Time
	if clerkSub.CurrentPeriodEnd > 0 {
		t := time.UnixMilli(clerkSub.CurrentPeriodEnd)
		expiresAt = &t
	}
	if err := s.ApplyUpdate(ctx, userID, clerkSub.PlanSlug, clerkSub.Status, expiresAt); err != nil {
		s.logger.Warn("failed to mirror Clerk subscription", "user_id", userID, "error", err)
		return "", false
	}

	tier := constants.NormalizeTierName(clerkSub.PlanSlug)
	if _, ok := constants.Tiers[tier]; !ok {
		tier = constants.TierFree
	}
	return tier, true
}
