// Package routes provides shared route registration for the API, so the
// main server and any OpenAPI tooling stay in sync on paths and metadata.
package routes

import (
	"github.com/danielgtaylor/huma/v2"

	"github.com/ErGaurav155/ainspiretech-api/internal/http/mw"
	"github.com/ErGaurav155/ainspiretech-api/internal/version"
)

// NewHumaConfig creates the shared Huma configuration for the API.
// This includes API metadata, security schemes, and tag definitions.
func NewHumaConfig(baseURL string) huma.Config {
	cfg := huma.DefaultConfig("AInspireTech API", version.Get().Short())
	cfg.Info.Description = "Instagram automation API with hourly rate limiting, call queueing, and per-tier budgets."

	// Disable $schema field in responses - it conflicts with "schema" field in SDK code generators
	cfg.CreateHooks = nil

	if baseURL != "" {
		cfg.Servers = []*huma.Server{
			{URL: baseURL, Description: "API Server"},
		}
	}

	cfg.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		mw.SecurityScheme: {
			Type:        "http",
			Scheme:      "bearer",
			Description: "Clerk session token authentication. Include the session JWT in the Authorization header as `Bearer <token>`.",
		},
	}

	cfg.Tags = []*huma.Tag{
		{Name: "Calls", Description: "Gated Instagram call recording and queueing", Extensions: map[string]any{"x-displayName": "Calls"}},
		{Name: "Rate Limits", Description: "Per-user budget and usage statistics", Extensions: map[string]any{"x-displayName": "Rate Limits"}},
		{Name: "Accounts", Description: "Connected Instagram account management", Extensions: map[string]any{"x-displayName": "Accounts"}},
		{Name: "Automation", Description: "User automation toggles", Extensions: map[string]any{"x-displayName": "Automation"}},
		{Name: "Admin", Description: "Platform-wide controls and window statistics", Extensions: map[string]any{"x-displayName": "Admin"}},
		{Name: "Tiers", Description: "Public subscription tier information", Extensions: map[string]any{"x-displayName": "Tiers"}},
		{Name: "Health", Description: "System health and status", Extensions: map[string]any{"x-displayName": "Health"}},
	}

	return cfg
}
