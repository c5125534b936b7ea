package handlers

import (
	"context"
	"log/slog"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/ErGaurav155/ainspiretech-api/internal/models"
	"github.com/ErGaurav155/ainspiretech-api/internal/service"
)

// AutomationHandler handles user automation toggles and the platform pause switch.
type AutomationHandler struct {
	pauseSvc *service.PauseService
	logger   *slog.Logger
}

// NewAutomationHandler creates a new automation handler.
func NewAutomationHandler(pauseSvc *service.PauseService, logger *slog.Logger) *AutomationHandler {
	return &AutomationHandler{pauseSvc: pauseSvc, logger: logger}
}

// ToggleAutomationInput enables or disables automation for the caller.
type ToggleAutomationInput struct {
	Body struct {
		Enabled bool `json:"enabled" doc:"Whether automated calls should run for this user"`
	}
}

// ToggleAutomationOutput reflects the resulting pause state.
type ToggleAutomationOutput struct {
	Body models.PauseState
}

// ToggleAutomation pauses or resumes automation for the calling user. While
// paused, gated calls are rejected outright and nothing is queued.
func (h *AutomationHandler) ToggleAutomation(ctx context.Context, input *ToggleAutomationInput) (*ToggleAutomationOutput, error) {
	userID := getUserID(ctx)
	if userID == "" {
		return nil, huma.Error401Unauthorized("unauthorized")
	}

	state, err := h.pauseSvc.ToggleUserAutomation(ctx, userID, userID, input.Body.Enabled)
	if err != nil {
		h.logger.Error("toggle automation failed", "user_id", userID, "error", err)
		return nil, huma.Error500InternalServerError("failed to toggle automation")
	}

	return &ToggleAutomationOutput{Body: *state}, nil
}

// PauseAppInput is an empty body: an admin pause always persists until an
// explicit resume. Self-clearing pauses are raised only by the gate on
// quota exhaustion.
type PauseAppInput struct{}

// PauseAppOutput reflects the resulting global pause state.
type PauseAppOutput struct {
	Body models.PauseState
}

// PauseApp halts automation platform-wide until an explicit resume.
func (h *AutomationHandler) PauseApp(ctx context.Context, input *PauseAppInput) (*PauseAppOutput, error) {
	userID := getUserID(ctx)

	if err := h.pauseSvc.PauseApp(ctx, userID, time.Now()); err != nil {
		h.logger.Error("pause app failed", "actor", userID, "error", err)
		return nil, huma.Error500InternalServerError("failed to pause automation")
	}

	state, err := h.pauseSvc.GetState(ctx, models.PauseScopeGlobal)
	if err != nil || state == nil {
		return nil, huma.Error500InternalServerError("failed to load pause state")
	}

	return &PauseAppOutput{Body: *state}, nil
}

// ResumeAppOutput reports whether the platform is still paused.
type ResumeAppOutput struct {
	Body struct {
		Paused bool `json:"paused"`
	}
}

// ResumeApp lifts a platform-wide pause.
func (h *AutomationHandler) ResumeApp(ctx context.Context, input *struct{}) (*ResumeAppOutput, error) {
	userID := getUserID(ctx)

	if err := h.pauseSvc.ResumeApp(ctx, userID); err != nil {
		h.logger.Error("resume app failed", "actor", userID, "error", err)
		return nil, huma.Error500InternalServerError("failed to resume automation")
	}

	return &ResumeAppOutput{}, nil
}

// ListPausedOutput lists active pause states across all scopes.
type ListPausedOutput struct {
	Body struct {
		States []*models.PauseState `json:"states"`
	}
}

// ListPaused returns every scope currently paused.
func (h *AutomationHandler) ListPaused(ctx context.Context, input *struct{}) (*ListPausedOutput, error) {
	states, err := h.pauseSvc.ListPaused(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list pause states")
	}

	out := &ListPausedOutput{}
	out.Body.States = states
	return out, nil
}
