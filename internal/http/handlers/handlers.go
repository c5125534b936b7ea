// Package handlers contains HTTP handlers for the API.
package handlers

import (
	"context"
	"database/sql"

	"github.com/ErGaurav155/ainspiretech-api/internal/http/mw"
	"github.com/ErGaurav155/ainspiretech-api/internal/version"
)

// Handlers aggregates all handler groups for route registration.
type Handlers struct {
	Calls      *CallsHandler
	Stats      *StatsHandler
	Automation *AutomationHandler
	Accounts   *AccountsHandler

	db *sql.DB
}

// New creates the handler aggregate.
func New(calls *CallsHandler, stats *StatsHandler, automation *AutomationHandler, accounts *AccountsHandler, db *sql.DB) *Handlers {
	return &Handlers{
		Calls:      calls,
		Stats:      stats,
		Automation: automation,
		Accounts:   accounts,
		db:         db,
	}
}

// HealthCheckOutput represents health check response.
type HealthCheckOutput struct {
	Body struct {
		Status  string `json:"status"`
		Version string `json:"version"`
	}
}

// HealthCheck returns the health status of the API.
func (h *Handlers) HealthCheck(ctx context.Context, input *struct{}) (*HealthCheckOutput, error) {
	out := &HealthCheckOutput{}
	out.Body.Status = "healthy"
	out.Body.Version = version.Get().Short()
	return out, nil
}

// ProbeOutput is the response for Kubernetes-style probes.
type ProbeOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

// Livez reports process liveness.
func (h *Handlers) Livez(ctx context.Context, input *struct{}) (*ProbeOutput, error) {
	out := &ProbeOutput{}
	out.Body.Status = "ok"
	return out, nil
}

// Readyz reports readiness: the process is ready when the database answers.
func (h *Handlers) Readyz(ctx context.Context, input *struct{}) (*ProbeOutput, error) {
	out := &ProbeOutput{}
	if h.db != nil {
		if err := h.db.PingContext(ctx); err != nil {
			out.Body.Status = "database unavailable"
			return out, nil
		}
	}
	out.Body.Status = "ok"
	return out, nil
}

// getUserID extracts user ID from context.
func getUserID(ctx context.Context) string {
	claims := mw.GetUserClaims(ctx)
	if claims == nil {
		return ""
	}
	return claims.UserID
}
