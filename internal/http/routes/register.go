package routes

import (
	"github.com/danielgtaylor/huma/v2"

	"github.com/ErGaurav155/ainspiretech-api/internal/http/handlers"
	"github.com/ErGaurav155/ainspiretech-api/internal/http/mw"
)

// Register registers all API routes with the given Huma API instance.
func Register(api huma.API, h *handlers.Handlers) {
	// =========================================================================
	// Public Routes (no auth required)
	// =========================================================================

	mw.PublicGet(api, "/api/v1/health", h.HealthCheck,
		mw.WithTags("Health"),
		mw.WithSummary("Health check"),
		mw.WithOperationID("healthCheck"))

	mw.PublicGet(api, "/api/v1/tiers", h.ListTiers,
		mw.WithTags("Tiers"),
		mw.WithSummary("List subscription tiers"),
		mw.WithOperationID("listTiers"))

	// Kubernetes probes (hidden from docs - internal use only)
	mw.HiddenGet(api, "/healthz", h.Livez)
	mw.HiddenGet(api, "/readyz", h.Readyz)

	// =========================================================================
	// Protected Routes (require bearer auth)
	// =========================================================================

	// --- Calls ---
	mw.ProtectedPost(api, "/api/v1/calls", h.Calls.RecordCall,
		mw.WithTags("Calls"),
		mw.WithSummary("Record an Instagram call"),
		mw.WithDescription("Counts one or more Instagram API calls against the current hourly window. Calls over budget, or made while automation is paused, are queued instead."),
		mw.WithOperationID("recordCall"))
	mw.ProtectedPost(api, "/api/v1/calls/queue", h.Calls.QueueCall,
		mw.WithTags("Calls"),
		mw.WithSummary("Queue a call for later"),
		mw.WithOperationID("queueCall"))
	mw.ProtectedGet(api, "/api/v1/calls/check", h.Calls.CanMakeCall,
		mw.WithTags("Calls"),
		mw.WithSummary("Check call budget"),
		mw.WithDescription("Advisory check of whether a call would currently be allowed. Does not consume budget."),
		mw.WithOperationID("canMakeCall"))

	// --- Rate Limits ---
	mw.ProtectedGet(api, "/api/v1/rate-limits", h.Stats.GetRateLimitStats,
		mw.WithTags("Rate Limits"),
		mw.WithSummary("Get rate limit status"),
		mw.WithOperationID("getRateLimitStats"))
	mw.ProtectedGet(api, "/api/v1/rate-limits/history", h.Stats.GetUsageHistory,
		mw.WithTags("Rate Limits"),
		mw.WithSummary("Get usage history"),
		mw.WithOperationID("getUsageHistory"))

	// --- Accounts ---
	mw.ProtectedPost(api, "/api/v1/accounts", h.Accounts.ConnectAccount,
		mw.WithTags("Accounts"),
		mw.WithSummary("Connect an Instagram account"),
		mw.WithOperationID("connectAccount"))
	mw.ProtectedGet(api, "/api/v1/accounts", h.Accounts.ListAccounts,
		mw.WithTags("Accounts"),
		mw.WithSummary("List connected accounts"),
		mw.WithOperationID("listAccounts"))
	mw.ProtectedGet(api, "/api/v1/accounts/{id}", h.Accounts.GetAccount,
		mw.WithTags("Accounts"),
		mw.WithSummary("Get account details"),
		mw.WithOperationID("getAccount"))
	mw.ProtectedPut(api, "/api/v1/accounts/{id}/automation", h.Accounts.SetAccountAutomation,
		mw.WithTags("Accounts"),
		mw.WithSummary("Toggle account automation"),
		mw.WithOperationID("setAccountAutomation"))
	mw.ProtectedDelete(api, "/api/v1/accounts/{id}", h.Accounts.DisconnectAccount,
		mw.WithTags("Accounts"),
		mw.WithSummary("Disconnect an account"),
		mw.WithOperationID("disconnectAccount"))
	mw.ProtectedGet(api, "/api/v1/accounts/{id}/queue", h.Stats.GetAccountQueue,
		mw.WithTags("Accounts"),
		mw.WithSummary("List queued calls for an account"),
		mw.WithOperationID("getAccountQueue"))

	// --- Automation ---
	mw.ProtectedPut(api, "/api/v1/automation", h.Automation.ToggleAutomation,
		mw.WithTags("Automation"),
		mw.WithSummary("Toggle user automation"),
		mw.WithDescription("Pauses or resumes automated calls for the calling user. While paused, gated calls are rejected without queueing."),
		mw.WithOperationID("toggleAutomation"))

	// =========================================================================
	// Admin Routes (require superadmin)
	// =========================================================================

	mw.ProtectedGet(api, "/api/v1/admin/rate-limits/window", h.Stats.GetWindowStats,
		mw.WithTags("Admin"),
		mw.WithSummary("Get platform window statistics"),
		mw.WithOperationID("getWindowStats"),
		mw.WithSuperadmin())
	mw.ProtectedPost(api, "/api/v1/admin/automation/pause", h.Automation.PauseApp,
		mw.WithTags("Admin"),
		mw.WithSummary("Pause platform automation"),
		mw.WithOperationID("pauseAppAutomation"),
		mw.WithSuperadmin())
	mw.ProtectedPost(api, "/api/v1/admin/automation/resume", h.Automation.ResumeApp,
		mw.WithTags("Admin"),
		mw.WithSummary("Resume platform automation"),
		mw.WithOperationID("resumeAppAutomation"),
		mw.WithSuperadmin())
	mw.ProtectedGet(api, "/api/v1/admin/automation/paused", h.Automation.ListPaused,
		mw.WithTags("Admin"),
		mw.WithSummary("List paused scopes"),
		mw.WithOperationID("listPausedScopes"),
		mw.WithSuperadmin())
}
