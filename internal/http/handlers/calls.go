package handlers

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/danielgtaylor/huma/v2"

	"github.com/ErGaurav155/ainspiretech-api/internal/models"
	"github.com/ErGaurav155/ainspiretech-api/internal/service"
)

// CallsHandler handles the call admission endpoints.
type CallsHandler struct {
	gateSvc *service.GateService
	logger  *slog.Logger
}

// NewCallsHandler creates a new calls handler.
func NewCallsHandler(gateSvc *service.GateService, logger *slog.Logger) *CallsHandler {
	return &CallsHandler{gateSvc: gateSvc, logger: logger}
}

// RecordCallInput represents a call admission request.
type RecordCallInput struct {
	Body struct {
		AccountID  string          `json:"account_id" doc:"Connected Instagram account making the call"`
		ActionType string          `json:"action_type" enum:"comment_reply,dm_reply,story_reply,dm_follow_check,follow_verification,dm_final_link,profile_sync" doc:"Kind of Instagram action"`
		Payload    json.RawMessage `json:"payload" doc:"Action payload, shape depends on action_type"`
		Count      int             `json:"count,omitempty" minimum:"0" maximum:"50" doc:"Calls this action will make (default 1)"`
	}
}

// RecordCallOutput reports whether the call was admitted or deferred.
type RecordCallOutput struct {
	Body service.CallOutcome
}

// RecordCall admits a call against the current window's budgets, or queues
// it when a ceiling is hit.
func (h *CallsHandler) RecordCall(ctx context.Context, input *RecordCallInput) (*RecordCallOutput, error) {
	userID := getUserID(ctx)
	if userID == "" {
		return nil, huma.Error401Unauthorized("unauthorized")
	}
	if input.Body.AccountID == "" {
		return nil, huma.Error422UnprocessableEntity("account_id is required")
	}

	outcome, err := h.gateSvc.RecordCall(ctx, userID, input.Body.AccountID,
		models.ActionType(input.Body.ActionType), input.Body.Payload, input.Body.Count)
	if err != nil {
		h.logger.Error("record call failed", "user_id", userID, "error", err)
		return nil, huma.Error422UnprocessableEntity(err.Error())
	}

	return &RecordCallOutput{Body: *outcome}, nil
}

// QueueCallInput represents an explicit queue request.
type QueueCallInput struct {
	Body struct {
		AccountID  string          `json:"account_id"`
		ActionType string          `json:"action_type" enum:"comment_reply,dm_reply,story_reply,dm_follow_check,follow_verification,dm_final_link,profile_sync"`
		Payload    json.RawMessage `json:"payload"`
		Priority   int             `json:"priority,omitempty" minimum:"0" maximum:"9" doc:"Drain order, lower drains first (default 5)"`
	}
}

// QueueCallOutput returns the created queue item.
type QueueCallOutput struct {
	Body models.QueueItem
}

// QueueCall enqueues a call for later execution without attempting it now.
func (h *CallsHandler) QueueCall(ctx context.Context, input *QueueCallInput) (*QueueCallOutput, error) {
	userID := getUserID(ctx)
	if userID == "" {
		return nil, huma.Error401Unauthorized("unauthorized")
	}
	if input.Body.AccountID == "" {
		return nil, huma.Error422UnprocessableEntity("account_id is required")
	}

	item, err := h.gateSvc.QueueCall(ctx, userID, input.Body.AccountID,
		models.ActionType(input.Body.ActionType), input.Body.Payload, input.Body.Priority)
	if err != nil {
		return nil, huma.Error422UnprocessableEntity(err.Error())
	}

	return &QueueCallOutput{Body: *item}, nil
}

// CanMakeCallInput is the advisory pre-check request.
type CanMakeCallInput struct {
	AccountID string `query:"account_id" doc:"Optional account to include in the check"`
}

// CanMakeCallOutput is the advisory pre-check response.
type CanMakeCallOutput struct {
	Body service.GateDecision
}

// CanMakeCall reports whether a call would currently be admitted. The answer
// is advisory; only RecordCall spends budget.
func (h *CallsHandler) CanMakeCall(ctx context.Context, input *CanMakeCallInput) (*CanMakeCallOutput, error) {
	userID := getUserID(ctx)
	if userID == "" {
		return nil, huma.Error401Unauthorized("unauthorized")
	}

	decision, err := h.gateSvc.CanMakeCall(ctx, userID, input.AccountID)
	if err != nil {
		h.logger.Error("gate check failed", "user_id", userID, "error", err)
		return nil, huma.Error500InternalServerError("failed to check rate limit")
	}

	return &CanMakeCallOutput{Body: *decision}, nil
}
