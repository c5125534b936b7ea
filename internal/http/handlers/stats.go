package handlers

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/ErGaurav155/ainspiretech-api/internal/models"
	"github.com/ErGaurav155/ainspiretech-api/internal/service"
)

// StatsHandler handles usage and queue statistics endpoints.
type StatsHandler struct {
	statsSvc *service.StatsService
	logger   *slog.Logger
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(statsSvc *service.StatsService, logger *slog.Logger) *StatsHandler {
	return &StatsHandler{statsSvc: statsSvc, logger: logger}
}

// GetRateLimitStatsOutput is the per-user budget view.
type GetRateLimitStatsOutput struct {
	Body service.UserRateLimitStats
}

// GetRateLimitStats returns the caller's budget position in the current window.
func (h *StatsHandler) GetRateLimitStats(ctx context.Context, input *struct{}) (*GetRateLimitStatsOutput, error) {
	userID := getUserID(ctx)
	if userID == "" {
		return nil, huma.Error401Unauthorized("unauthorized")
	}

	stats, err := h.statsSvc.GetUserRateLimitStats(ctx, userID)
	if err != nil {
		h.logger.Error("rate limit stats failed", "user_id", userID, "error", err)
		return nil, huma.Error500InternalServerError("failed to load rate limit stats")
	}

	return &GetRateLimitStatsOutput{Body: *stats}, nil
}

// GetUsageHistoryInput selects how far back the usage graph reaches.
type GetUsageHistoryInput struct {
	Hours int `query:"hours" default:"24" minimum:"1" maximum:"720" doc:"Number of hourly windows to return"`
}

// GetUsageHistoryOutput is the per-window usage history.
type GetUsageHistoryOutput struct {
	Body struct {
		Records []*models.UsageRecord `json:"records"`
	}
}

// GetUsageHistory returns the caller's per-window usage counters.
func (h *StatsHandler) GetUsageHistory(ctx context.Context, input *GetUsageHistoryInput) (*GetUsageHistoryOutput, error) {
	userID := getUserID(ctx)
	if userID == "" {
		return nil, huma.Error401Unauthorized("unauthorized")
	}

	records, err := h.statsSvc.GetUserUsageHistory(ctx, userID, input.Hours)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to load usage history")
	}

	out := &GetUsageHistoryOutput{}
	out.Body.Records = records
	return out, nil
}

// GetWindowStatsInput optionally selects a past window.
type GetWindowStatsInput struct {
	WindowStart time.Time `query:"window_start" doc:"Window to inspect (RFC3339); defaults to the current window"`
}

// GetWindowStatsOutput is the platform-wide window view.
type GetWindowStatsOutput struct {
	Body service.WindowStats
}

// GetWindowStats returns platform-wide usage for one hourly window.
func (h *StatsHandler) GetWindowStats(ctx context.Context, input *GetWindowStatsInput) (*GetWindowStatsOutput, error) {
	stats, err := h.statsSvc.GetWindowStats(ctx, input.WindowStart)
	if err != nil {
		h.logger.Error("window stats failed", "error", err)
		return nil, huma.Error500InternalServerError("failed to load window stats")
	}

	return &GetWindowStatsOutput{Body: *stats}, nil
}

// GetAccountQueueInput selects an account's queue items.
type GetAccountQueueInput struct {
	AccountID string `path:"id" doc:"Instagram account ID"`
	Status    string `query:"status" doc:"Comma-separated status filter (pending,processing,completed,failed)"`
}

// GetAccountQueueOutput lists queued calls for an account.
type GetAccountQueueOutput struct {
	Body struct {
		Items []*models.QueueItem `json:"items"`
	}
}

// GetAccountQueue returns the deferred calls for one connected account.
func (h *StatsHandler) GetAccountQueue(ctx context.Context, input *GetAccountQueueInput) (*GetAccountQueueOutput, error) {
	userID := getUserID(ctx)
	if userID == "" {
		return nil, huma.Error401Unauthorized("unauthorized")
	}

	var statuses []models.QueueStatus
	if input.Status != "" {
		for _, s := range strings.Split(input.Status, ",") {
			statuses = append(statuses, models.QueueStatus(strings.TrimSpace(s)))
		}
	}

	items, err := h.statsSvc.GetAccountQueueItems(ctx, input.AccountID, statuses)
	if err != nil {
		return nil, huma.Error422UnprocessableEntity(err.Error())
	}

	// Callers only see their own items.
	own := make([]*models.QueueItem, 0, len(items))
	for _, item := range items {
		if item.UserID == userID {
			own = append(own, item)
		}
	}

	out := &GetAccountQueueOutput{}
	out.Body.Items = own
	return out, nil
}
