package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ErGaurav155/ainspiretech-api/internal/constants"
	"github.com/ErGaurav155/ainspiretech-api/internal/models"
	"github.com/ErGaurav155/ainspiretech-api/internal/repository"
	"github.com/ErGaurav155/ainspiretech-api/internal/window"
)

// UsageStatus labels how close a subject is to its ceiling.
type UsageStatus string

const (
	UsageStatusOK       UsageStatus = "ok"
	UsageStatusWarning  UsageStatus = "warning"  // at or past the warning threshold
	UsageStatusCritical UsageStatus = "critical" // at or past the critical threshold
	UsageStatusLimited  UsageStatus = "limited"  // ceiling reached
)

// statusFor grades used against a limit. Unlimited subjects are always ok.
func statusFor(used, limit int) UsageStatus {
	if limit <= 0 {
		return UsageStatusOK
	}
	ratio := float64(used) / float64(limit)
	switch {
	case used >= limit:
		return UsageStatusLimited
	case ratio >= constants.UsageCriticalThreshold:
		return UsageStatusCritical
	case ratio >= constants.UsageWarningThreshold:
		return UsageStatusWarning
	}
	return UsageStatusOK
}

// WindowStats is the platform-wide view of one hourly window.
type WindowStats struct {
	WindowStart  time.Time                 `json:"window_start"`
	WindowResets time.Time                 `json:"window_resets"`
	AppLimit     int                       `json:"app_limit"`
	AppUsed      int                       `json:"app_used"`
	AppRemaining int                       `json:"app_remaining"`
	Utilization  float64                   `json:"utilization"`
	Status       UsageStatus               `json:"status"`
	ByAction     map[models.ActionType]int `json:"by_action"`
	// ByTier breaks the window's user calls down by the caller's tier.
	ByTier map[string]int `json:"by_tier"`
	// QueueByAction breaks the queue down by action type and status.
	QueueByAction map[models.ActionType]map[models.QueueStatus]int `json:"queue_by_action"`
	QueuePending  int                                              `json:"queue_pending"`
	QueueRunning  int                                              `json:"queue_running"`
	Paused        bool                                             `json:"paused"`
}

// UserRateLimitStats is one user's budget position in the current window.
type UserRateLimitStats struct {
	UserID       string                    `json:"user_id"`
	Tier         string                    `json:"tier"`
	Limit        int                       `json:"limit"` // 0 = unlimited
	Used         int                       `json:"used"`
	Remaining    int                       `json:"remaining"`
	Utilization  float64                   `json:"utilization"`
	Status       UsageStatus               `json:"status"`
	ByAction     map[models.ActionType]int `json:"by_action"`
	QueuePending int                       `json:"queue_pending"`
	WindowStart  time.Time                 `json:"window_start"`
	WindowResets time.Time                 `json:"window_resets"`
	Paused       bool                      `json:"paused"`
}

// StatsService reports usage and queue statistics.
type StatsService struct {
	repos    *repository.Repositories
	pauseSvc *PauseService
	appLimit int
	logger   *slog.Logger
	nowFunc  func() time.Time
}

// NewStatsService creates a new stats service.
func NewStatsService(repos *repository.Repositories, pauseSvc *PauseService, appLimit int, logger *slog.Logger) *StatsService {
	if appLimit <= 0 {
		appLimit = constants.AppHourlyCallLimit
	}
	return &StatsService{
		repos:    repos,
		pauseSvc: pauseSvc,
		appLimit: appLimit,
		logger:   logger.With("component", "stats"),
		nowFunc:  time.Now,
	}
}

// GetWindowStats returns platform-wide stats for a window. A zero
// windowStart means the current window.
func (s *StatsService) GetWindowStats(ctx context.Context, windowStart time.Time) (*WindowStats, error) {
	now := s.nowFunc()
	if windowStart.IsZero() {
		windowStart = window.CurrentStart(now)
	} else {
		windowStart = window.CurrentStart(windowStart)
	}

	byAction, err := s.repos.Usage.GetCountsByAction(ctx, "app", models.SubjectApp, windowStart)
	if err != nil {
		return nil, fmt.Errorf("failed to read app usage: %w", err)
	}
	used := 0
	for _, count := range byAction {
		used += count
	}

	byTier, err := s.tierBreakdown(ctx, windowStart)
	if err != nil {
		return nil, err
	}

	queueByAction, err := s.repos.Queue.CountGrouped(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count queue items: %w", err)
	}
	pending, err := s.repos.Queue.CountByStatus(ctx, models.QueueStatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to count pending items: %w", err)
	}
	running, err := s.repos.Queue.CountByStatus(ctx, models.QueueStatusProcessing)
	if err != nil {
		return nil, fmt.Errorf("failed to count processing items: %w", err)
	}

	global, err := s.pauseSvc.GetState(ctx, models.PauseScopeGlobal)
	if err != nil {
		return nil, err
	}

	stats := &WindowStats{
		WindowStart:   windowStart,
		WindowResets:  windowStart.Add(time.Hour),
		AppLimit:      s.appLimit,
		AppUsed:       used,
		AppRemaining:  max(0, s.appLimit-used),
		Status:        statusFor(used, s.appLimit),
		ByAction:      byAction,
		ByTier:        byTier,
		QueueByAction: queueByAction,
		QueuePending:  pending,
		QueueRunning:  running,
		Paused:        global != nil && global.Paused,
	}
	if s.appLimit > 0 {
		stats.Utilization = float64(used) / float64(s.appLimit)
	}
	return stats, nil
}

// tierBreakdown groups a window's per-user call totals by the tier each
// caller held. Users without a subscription row land in the free bucket.
func (s *StatsService) tierBreakdown(ctx context.Context, windowStart time.Time) (map[string]int, error) {
	userCounts, err := s.repos.Usage.GetUserCounts(ctx, windowStart)
	if err != nil {
		return nil, fmt.Errorf("failed to read per-user usage: %w", err)
	}

	now := s.nowFunc()
	byTier := make(map[string]int)
	for userID, count := range userCounts {
		sub, err := s.repos.Subscription.GetByUserID(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve subscription for %s: %w", userID, err)
		}
		byTier[sub.ActiveTier(now)] += count
	}
	return byTier, nil
}

// GetUserRateLimitStats returns one user's position against their tier
// budget in the current window.
func (s *StatsService) GetUserRateLimitStats(ctx context.Context, userID string) (*UserRateLimitStats, error) {
	now := s.nowFunc()
	win := window.CurrentStart(now)

	sub, err := s.repos.Subscription.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve subscription: %w", err)
	}
	tierName := sub.ActiveTier(now)
	tier := constants.GetTierLimits(tierName)

	byAction, err := s.repos.Usage.GetCountsByAction(ctx, userID, models.SubjectUser, win)
	if err != nil {
		return nil, fmt.Errorf("failed to read user usage: %w", err)
	}
	used := 0
	for _, count := range byAction {
		used += count
	}

	pending, err := s.repos.Queue.CountPendingByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count pending items: %w", err)
	}

	paused, _, _, err := s.pauseSvc.IsPausedFor(ctx, userID)
	if err != nil {
		return nil, err
	}

	stats := &UserRateLimitStats{
		UserID:       userID,
		Tier:         tierName,
		Limit:        tier.HourlyCallLimit,
		Used:         used,
		Status:       statusFor(used, tier.HourlyCallLimit),
		ByAction:     byAction,
		QueuePending: pending,
		WindowStart:  win,
		WindowResets: window.NextStart(now),
		Paused:       paused,
	}
	if tier.HourlyCallLimit > 0 {
		stats.Remaining = max(0, tier.HourlyCallLimit-used)
		stats.Utilization = float64(used) / float64(tier.HourlyCallLimit)
	}
	return stats, nil
}

// GetAccountQueueItems returns an account's deferred calls, optionally
// filtered by status.
func (s *StatsService) GetAccountQueueItems(ctx context.Context, accountID string, statuses []models.QueueStatus) ([]*models.QueueItem, error) {
	for _, status := range statuses {
		switch status {
		case models.QueueStatusPending, models.QueueStatusProcessing, models.QueueStatusCompleted, models.QueueStatusFailed:
		default:
			return nil, fmt.Errorf("unknown queue status %q", status)
		}
	}
	return s.repos.Queue.GetByAccountID(ctx, accountID, statuses)
}

// GetUserUsageHistory returns a user's per-window counters for the last
// hours windows, for the usage graph on the dashboard.
func (s *StatsService) GetUserUsageHistory(ctx context.Context, userID string, hours int) ([]*models.UsageRecord, error) {
	if hours <= 0 || hours > 24*30 {
		hours = 24
	}
	now := s.nowFunc()
	to := window.NextStart(now)
	from := to.Add(-time.Duration(hours) * time.Hour)
	return s.repos.Usage.GetSubjectHistory(ctx, userID, models.SubjectUser, from, to)
}
