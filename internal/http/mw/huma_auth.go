package mw

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/ErGaurav155/ainspiretech-api/internal/auth"
	"github.com/ErGaurav155/ainspiretech-api/internal/constants"
)

// HumaAuthConfig holds dependencies for the Huma auth middleware.
type HumaAuthConfig struct {
	ClerkVerifier *auth.ClerkVerifier
}

// SecurityScheme is the name of the security scheme used in OpenAPI.
const SecurityScheme = "bearerAuth"

// OperationMetadataKey is the key for storing additional operation requirements.
type OperationMetadataKey string

const (
	// MetaKeyRequireSuperadmin is metadata key for superadmin requirement.
	MetaKeyRequireSuperadmin OperationMetadataKey = "requireSuperadmin"
)

// HumaAuth returns a Huma middleware that handles authentication based on
// operation security. Operations registered without a security requirement
// pass through untouched.
func HumaAuth(api huma.API, cfg HumaAuthConfig) func(ctx huma.Context, next func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		op := ctx.Operation()
		if op == nil || !operationRequiresAuth(op) {
			next(ctx)
			return
		}

		authHeader := ctx.Header("Authorization")
		if authHeader == "" {
			huma.WriteErr(api, ctx, http.StatusUnauthorized, "missing authorization header")
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")

		claims, err := validateClerkToken(cfg.ClerkVerifier, token)
		if err != nil {
			slog.Debug("auth validation failed", "error", err)
			huma.WriteErr(api, ctx, http.StatusUnauthorized, "invalid token")
			return
		}

		if requiresSuperadmin(op) && !claims.GlobalSuperadmin {
			huma.WriteErr(api, ctx, http.StatusForbidden, "superadmin access required")
			return
		}

		newCtx := context.WithValue(ctx.Context(), UserClaimsKey, claims)

		tier := constants.NormalizeTierName(claims.Tier)
		newCtx = context.WithValue(newCtx, TierLimitsKey, constants.GetTierLimits(tier))

		next(huma.WithContext(ctx, newCtx))
	}
}

// operationRequiresAuth checks if the operation has bearerAuth in its security requirements.
func operationRequiresAuth(op *huma.Operation) bool {
	for _, secReq := range op.Security {
		if _, ok := secReq[SecurityScheme]; ok {
			return true
		}
	}
	return false
}

// requiresSuperadmin checks operation metadata for superadmin requirement.
func requiresSuperadmin(op *huma.Operation) bool {
	if op.Metadata == nil {
		return false
	}
	if val, ok := op.Metadata[string(MetaKeyRequireSuperadmin)]; ok {
		if b, ok := val.(bool); ok {
			return b
		}
	}
	return false
}
