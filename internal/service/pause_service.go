package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/ErGaurav155/ainspiretech-api/internal/models"
	"github.com/ErGaurav155/ainspiretech-api/internal/repository"
	"github.com/ErGaurav155/ainspiretech-api/internal/window"
)

// PauseService manages the automation kill switches: per-user toggles and
// the platform-wide pause raised when the Meta app quota runs out.
type PauseService struct {
	repos   *repository.Repositories
	logger  *slog.Logger
	nowFunc func() time.Time
}

// NewPauseService creates a new pause service.
func NewPauseService(repos *repository.Repositories, logger *slog.Logger) *PauseService {
	return &PauseService{
		repos:   repos,
		logger:  logger.With("component", "pause"),
		nowFunc: time.Now,
	}
}

// IsPausedFor reports whether automation is paused for a user, checking the
// global scope first. Returns the scope that is paused and its reason.
func (s *PauseService) IsPausedFor(ctx context.Context, userID string) (bool, string, models.PauseReason, error) {
	global, err := s.repos.Pause.Get(ctx, models.PauseScopeGlobal)
	if err != nil {
		return false, "", "", fmt.Errorf("failed to read global pause: %w", err)
	}
	if s.stillActive(global) {
		return true, models.PauseScopeGlobal, global.Reason, nil
	}

	if userID != "" {
		user, err := s.repos.Pause.Get(ctx, userID)
		if err != nil {
			return false, "", "", fmt.Errorf("failed to read user pause: %w", err)
		}
		if s.stillActive(user) {
			return true, userID, user.Reason, nil
		}
	}
	return false, "", "", nil
}

// stillActive reports whether a pause row is in effect right now. A quota
// pause expires the instant its window rolls over; the worker clears the
// row later, but reads must not honor it in the meantime.
func (s *PauseService) stillActive(state *models.PauseState) bool {
	if state == nil || !state.Paused {
		return false
	}
	if state.Reason == models.PauseReasonAppLimit && state.WindowStart != nil {
		return window.IsCurrent(*state.WindowStart, s.nowFunc())
	}
	return true
}

// ToggleUserAutomation pauses or resumes automation for one user. The
// toggle is always a manual pause; it survives window rollover.
func (s *PauseService) ToggleUserAutomation(ctx context.Context, actorID, userID string, enabled bool) (*models.PauseState, error) {
	now := s.nowFunc().UTC()
	state := &models.PauseState{
		ID:        ulid.Make().String(),
		Scope:     userID,
		Paused:    !enabled,
		Reason:    models.PauseReasonManual,
		PausedBy:  actorID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repos.Pause.Upsert(ctx, state); err != nil {
		return nil, fmt.Errorf("failed to toggle user automation: %w", err)
	}

	s.logger.Info("user automation toggled",
		"user_id", userID,
		"enabled", enabled,
		"actor_id", actorID,
	)
	return state, nil
}

// PauseApp raises the platform-wide pause. An empty actorID marks a pause
// raised by the gate on quota exhaustion, which clears itself at rollover;
// an operator-supplied actorID makes it a manual pause that persists.
func (s *PauseService) PauseApp(ctx context.Context, actorID string, windowStart time.Time) error {
	now := s.nowFunc().UTC()
	state := &models.PauseState{
		ID:        ulid.Make().String(),
		Scope:     models.PauseScopeGlobal,
		Paused:    true,
		Reason:    models.PauseReasonManual,
		PausedBy:  actorID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if actorID == "" {
		state.Reason = models.PauseReasonAppLimit
		ws := windowStart
		state.WindowStart = &ws
	}
	if err := s.repos.Pause.Upsert(ctx, state); err != nil {
		return fmt.Errorf("failed to pause app automation: %w", err)
	}

	s.logger.Warn("app automation paused",
		"reason", state.Reason,
		"actor_id", actorID,
		"window_start", window.Key(window.CurrentStart(windowStart)),
	)
	return nil
}

// ResumeApp lifts the platform-wide pause regardless of how it was raised.
func (s *PauseService) ResumeApp(ctx context.Context, actorID string) error {
	now := s.nowFunc().UTC()
	state := &models.PauseState{
		ID:        ulid.Make().String(),
		Scope:     models.PauseScopeGlobal,
		Paused:    false,
		Reason:    models.PauseReasonManual,
		PausedBy:  actorID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repos.Pause.Upsert(ctx, state); err != nil {
		return fmt.Errorf("failed to resume app automation: %w", err)
	}

	s.logger.Info("app automation resumed", "actor_id", actorID)
	return nil
}

// HandleRollover clears quota pauses raised in windows before the current
// one. Manual pauses are left alone.
func (s *PauseService) HandleRollover(ctx context.Context) (int64, error) {
	win := window.CurrentStart(s.nowFunc())
	cleared, err := s.repos.Pause.ClearAppLimitPausesBefore(ctx, win)
	if err != nil {
		return 0, fmt.Errorf("failed to clear quota pauses: %w", err)
	}
	if cleared > 0 {
		s.logger.Info("quota pauses cleared at rollover",
			"count", cleared,
			"window_start", window.Key(win),
		)
	}
	return cleared, nil
}

// ListPaused returns all currently paused scopes for the admin surface.
func (s *PauseService) ListPaused(ctx context.Context) ([]*models.PauseState, error) {
	return s.repos.Pause.ListPaused(ctx)
}

// GetState returns the pause row for a scope, or nil when automation has
// never been paused for it.
func (s *PauseService) GetState(ctx context.Context, scope string) (*models.PauseState, error) {
	return s.repos.Pause.Get(ctx, scope)
}
