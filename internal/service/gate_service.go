// Package service contains the business logic layer.
// Note: User management, OAuth, sessions and billing are handled by Clerk.
// The UserID in services references Clerk user IDs (e.g., "user_xxx").
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/ErGaurav155/ainspiretech-api/internal/constants"
	"github.com/ErGaurav155/ainspiretech-api/internal/models"
	"github.com/ErGaurav155/ainspiretech-api/internal/repository"
	"github.com/ErGaurav155/ainspiretech-api/internal/window"
)

// GateService is the admission path for outbound Instagram calls. Every
// automated call goes through RecordCall, which either spends budget in the
// current window or defers the call onto the queue.
type GateService struct {
	repos    *repository.Repositories
	pauseSvc *PauseService
	appLimit int
	logger   *slog.Logger
	nowFunc  func() time.Time
}

// NewGateService creates a new gate service. appLimit is the platform-wide
// hourly ceiling; pass 0 to fall back to the built-in default.
func NewGateService(repos *repository.Repositories, pauseSvc *PauseService, appLimit int, logger *slog.Logger) *GateService {
	if appLimit <= 0 {
		appLimit = constants.AppHourlyCallLimit
	}
	return &GateService{
		repos:    repos,
		pauseSvc: pauseSvc,
		appLimit: appLimit,
		logger:   logger.With("component", "gate"),
		nowFunc:  time.Now,
	}
}

// CallOutcome reports what happened to one call attempt.
type CallOutcome struct {
	// Allowed means the call was admitted and its budget spent.
	Allowed bool `json:"allowed"`
	// Queued means the call was deferred instead of admitted.
	Queued      bool               `json:"queued"`
	QueueItemID string             `json:"queue_item_id,omitempty"`
	Reason      models.DeferReason `json:"reason,omitempty"`
	// Paused means the call was rejected outright because automation is
	// paused; nothing was recorded or queued.
	Paused     bool   `json:"paused,omitempty"`
	PauseScope string `json:"pause_scope,omitempty"`
	// Message is a human-readable explanation when the call was not admitted.
	Message      string    `json:"message,omitempty"`
	WindowStart  time.Time `json:"window_start"`
	WindowResets time.Time `json:"window_resets"`
	UserCount    int       `json:"user_count"`
	AccountCount int       `json:"account_count"`
	AppCount     int       `json:"app_count"`
}

// GateDecision is a read-only admission check: would a call go through
// right now. Nothing is recorded or queued.
type GateDecision struct {
	Allowed      bool               `json:"allowed"`
	Reason       models.DeferReason `json:"reason,omitempty"`
	Paused       bool               `json:"paused"`
	PauseScope   string             `json:"pause_scope,omitempty"`
	UserLimit    int                `json:"user_limit"`
	UserUsed     int                `json:"user_used"`
	// Remaining is the caller's unspent tier budget this window. Stays 0
	// when the tier is unlimited (UserLimit 0) or another ceiling blocks.
	Remaining int `json:"remaining"`
	AccountUsed  int                `json:"account_used"`
	AppUsed      int                `json:"app_used"`
	WindowResets time.Time          `json:"window_resets"`
}

// limitsFor resolves the caller's tier name and assembles the three ceilings.
func (s *GateService) limitsFor(ctx context.Context, userID string) (string, repository.GateLimits, error) {
	sub, err := s.repos.Subscription.GetByUserID(ctx, userID)
	if err != nil {
		return "", repository.GateLimits{}, fmt.Errorf("failed to resolve subscription: %w", err)
	}
	tierName := sub.ActiveTier(s.nowFunc())
	tier := constants.GetTierLimits(tierName)
	return tierName, repository.GateLimits{
		UserLimit:    tier.HourlyCallLimit,
		AccountLimit: constants.MetaCallLimitPerAccount,
		AppLimit:     s.appLimit,
	}, nil
}

// RecordCall admits one call (or a batch of count calls) against the current
// window, or defers it onto the queue. A storage failure is returned as an
// error and the caller must treat the call as not admitted: the gate fails
// closed so an outage can never let traffic past the Meta ceilings.
func (s *GateService) RecordCall(ctx context.Context, userID, accountID string, action models.ActionType, payload json.RawMessage, count int) (*CallOutcome, error) {
	if !action.Valid() {
		return nil, fmt.Errorf("unknown action type %q", action)
	}
	if _, err := models.DecodePayload(action, payload); err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}
	if count <= 0 {
		count = 1
	}

	now := s.nowFunc()
	win := window.CurrentStart(now)
	outcome := &CallOutcome{
		WindowStart:  win,
		WindowResets: window.NextStart(now),
	}

	// Paused scopes reject outright: nothing is recorded and nothing is
	// queued, so a long pause cannot grow the queue without bound.
	paused, scope, reason, err := s.pauseSvc.IsPausedFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	if paused {
		outcome.Paused = true
		outcome.PauseScope = scope
		outcome.Reason = models.DeferReasonPaused
		if reason == models.PauseReasonAppLimit {
			outcome.Message = constants.AppPausedMessage()
		} else {
			outcome.Message = constants.AutomationPausedMessage()
		}
		s.logger.Info("call rejected while paused",
			"user_id", userID,
			"account_id", accountID,
			"pause_scope", scope,
			"pause_reason", reason,
		)
		return outcome, nil
	}

	tierName, limits, err := s.limitsFor(ctx, userID)
	if err != nil {
		return nil, err
	}

	result, err := s.repos.Usage.RecordGated(ctx, userID, accountID, action, win, count, limits)
	if err != nil {
		return nil, fmt.Errorf("failed to record call: %w", err)
	}

	outcome.UserCount = result.UserCount
	outcome.AccountCount = result.AccountCount
	outcome.AppCount = result.AppCount

	if result.Allowed {
		outcome.Allowed = true
		return outcome, nil
	}

	// Exhausting the app quota pauses the whole platform until rollover.
	if result.LimitHit == models.DeferReasonAppLimit {
		if err := s.pauseSvc.PauseApp(ctx, "", win); err != nil {
			s.logger.Error("failed to raise app limit pause", "error", err)
		}
	}

	return s.deferCall(ctx, outcome, userID, accountID, action, payload, result.LimitHit, win, tierName)
}

// deferCall enqueues the rejected call so a later window can replay it.
func (s *GateService) deferCall(ctx context.Context, outcome *CallOutcome, userID, accountID string, action models.ActionType, payload json.RawMessage, reason models.DeferReason, win time.Time, tier string) (*CallOutcome, error) {
	item := &models.QueueItem{
		ID:          ulid.Make().String(),
		UserID:      userID,
		AccountID:   accountID,
		ActionType:  action,
		PayloadJSON: payload,
		Priority:    priorityFor(reason),
		Status:      models.QueueStatusPending,
		DeferReason: reason,
		WindowStart: win,
		CreatedAt:   s.nowFunc().UTC(),
		UpdatedAt:   s.nowFunc().UTC(),
	}
	if err := s.repos.Queue.Enqueue(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to defer call: %w", err)
	}

	outcome.Queued = true
	outcome.QueueItemID = item.ID
	outcome.Reason = reason
	outcome.Message = deferMessage(reason, tier)

	s.logger.Info("call deferred",
		"user_id", userID,
		"account_id", accountID,
		"action", action,
		"reason", reason,
		"queue_item_id", item.ID,
	)
	return outcome, nil
}

// QueueCall enqueues a call without attempting admission first. Used when
// the caller already knows the call must wait (e.g. scheduled content).
// priority orders the drain (lower drains first); pass 0 for the default.
func (s *GateService) QueueCall(ctx context.Context, userID, accountID string, action models.ActionType, payload json.RawMessage, priority int) (*models.QueueItem, error) {
	if !action.Valid() {
		return nil, fmt.Errorf("unknown action type %q", action)
	}
	if _, err := models.DecodePayload(action, payload); err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}
	if priority <= 0 {
		priority = constants.PriorityDefault
	}

	now := s.nowFunc()
	item := &models.QueueItem{
		ID:          ulid.Make().String(),
		UserID:      userID,
		AccountID:   accountID,
		ActionType:  action,
		PayloadJSON: payload,
		Priority:    priority,
		Status:      models.QueueStatusPending,
		DeferReason: models.DeferReasonManual,
		WindowStart: window.CurrentStart(now),
		CreatedAt:   now.UTC(),
		UpdatedAt:   now.UTC(),
	}
	if err := s.repos.Queue.Enqueue(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to queue call: %w", err)
	}
	return item, nil
}

// CanMakeCall checks admission without recording. The answer is advisory:
// a concurrent caller can still consume the remaining budget between this
// check and a subsequent RecordCall.
func (s *GateService) CanMakeCall(ctx context.Context, userID, accountID string) (*GateDecision, error) {
	now := s.nowFunc()
	win := window.CurrentStart(now)
	decision := &GateDecision{WindowResets: window.NextStart(now)}

	paused, scope, _, err := s.pauseSvc.IsPausedFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	if paused {
		decision.Paused = true
		decision.PauseScope = scope
		decision.Reason = models.DeferReasonPaused
		return decision, nil
	}

	_, limits, err := s.limitsFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	decision.UserLimit = limits.UserLimit

	appUsed, err := s.repos.Usage.GetCount(ctx, "app", models.SubjectApp, win)
	if err != nil {
		return nil, fmt.Errorf("failed to read app usage: %w", err)
	}
	decision.AppUsed = appUsed
	if limits.AppLimit > 0 && appUsed >= limits.AppLimit {
		decision.Reason = models.DeferReasonAppLimit
		return decision, nil
	}

	if accountID != "" {
		accountUsed, err := s.repos.Usage.GetCount(ctx, accountID, models.SubjectAccount, win)
		if err != nil {
			return nil, fmt.Errorf("failed to read account usage: %w", err)
		}
		decision.AccountUsed = accountUsed
		if limits.AccountLimit > 0 && accountUsed >= limits.AccountLimit {
			decision.Reason = models.DeferReasonAccountLimit
			return decision, nil
		}
	}

	userUsed, err := s.repos.Usage.GetCount(ctx, userID, models.SubjectUser, win)
	if err != nil {
		return nil, fmt.Errorf("failed to read user usage: %w", err)
	}
	decision.UserUsed = userUsed
	if limits.UserLimit > 0 {
		decision.Remaining = max(0, limits.UserLimit-userUsed)
	}
	if limits.UserLimit > 0 && userUsed >= limits.UserLimit {
		decision.Reason = models.DeferReasonUserLimit
		return decision, nil
	}

	decision.Allowed = true
	return decision, nil
}

// priorityFor maps a defer reason to its drain priority. Narrower ceilings
// drain first: a user over their own budget should not wait behind calls
// deferred by a platform-wide outage.
func priorityFor(reason models.DeferReason) int {
	switch reason {
	case models.DeferReasonUserLimit:
		return constants.PriorityUserLimit
	case models.DeferReasonAccountLimit:
		return constants.PriorityAccountLimit
	case models.DeferReasonAppLimit:
		return constants.PriorityAppLimit
	}
	return constants.PriorityDefault
}

func deferMessage(reason models.DeferReason, tier string) string {
	switch reason {
	case models.DeferReasonUserLimit:
		return constants.HourlyLimitMessage(tier)
	case models.DeferReasonAccountLimit:
		return constants.AccountLimitMessage()
	case models.DeferReasonAppLimit:
		return constants.AppLimitMessage()
	}
	return "Call queued for a later window."
}
