// Package mw contains HTTP middleware for the API.
package mw

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ErGaurav155/ainspiretech-api/internal/auth"
)

// ContextKey is a type for context keys.
type ContextKey string

const (
	// UserClaimsKey is the context key for user claims.
	UserClaimsKey ContextKey = "user_claims"
)

// UserClaims represents the authenticated user extracted from a Clerk JWT.
type UserClaims struct {
	UserID           string // Clerk user ID (sub claim)
	Email            string
	Name             string
	Tier             string // From the Clerk Commerce "pla" claim, normalized
	GlobalSuperadmin bool   // From Clerk public_metadata.global_superadmin
}

// Auth returns an authentication middleware that validates Clerk JWTs.
func Auth(clerkVerifier *auth.ClerkVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, `{"error":"missing authorization header"}`, http.StatusUnauthorized)
				return
			}

			token := strings.TrimPrefix(authHeader, "Bearer ")

			claims, err := validateClerkToken(clerkVerifier, token)
			if err != nil {
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), UserClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// validateClerkToken validates a Clerk JWT and converts to UserClaims.
func validateClerkToken(verifier *auth.ClerkVerifier, tokenString string) (*UserClaims, error) {
	if verifier == nil {
		return nil, auth.ErrInvalidToken
	}
	clerkClaims, err := verifier.VerifyToken(tokenString)
	if err != nil {
		return nil, err
	}

	// NOTE: Clerk JWTs don't include public_metadata by default; a JWT
	// template must be configured in the Clerk dashboard to forward it:
	// { "public_metadata": "{{user.public_metadata}}" }
	globalSuperadmin := false
	if clerkClaims.PublicMetadata != nil {
		if superadmin, ok := clerkClaims.PublicMetadata["global_superadmin"].(bool); ok {
			globalSuperadmin = superadmin
		}
	}

	name := clerkClaims.FullName
	if name == "" && (clerkClaims.FirstName != "" || clerkClaims.LastName != "") {
		name = strings.TrimSpace(clerkClaims.FirstName + " " + clerkClaims.LastName)
	}

	tier := clerkClaims.GetTier()

	slog.Debug("clerk token validated",
		"user_id", clerkClaims.UserID,
		"tier", tier,
		"raw_pla_claim", clerkClaims.Plan,
	)

	return &UserClaims{
		UserID:           clerkClaims.UserID,
		Email:            clerkClaims.Email,
		Name:             name,
		Tier:             tier,
		GlobalSuperadmin: globalSuperadmin,
	}, nil
}

// GetUserClaims retrieves user claims from context.
func GetUserClaims(ctx context.Context) *UserClaims {
	claims, ok := ctx.Value(UserClaimsKey).(*UserClaims)
	if !ok {
		return nil
	}
	return claims
}

// RequireSuperadmin returns middleware that requires global superadmin access.
func RequireSuperadmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetUserClaims(r.Context())
			if claims == nil || !claims.GlobalSuperadmin {
				http.Error(w, `{"error":"superadmin access required"}`, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// OptionalAuth returns middleware that validates auth if present but allows
// unauthenticated requests through without claims.
func OptionalAuth(clerkVerifier *auth.ClerkVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				next.ServeHTTP(w, r)
				return
			}

			token := strings.TrimPrefix(authHeader, "Bearer ")

			if claims, err := validateClerkToken(clerkVerifier, token); err == nil {
				ctx := context.WithValue(r.Context(), UserClaimsKey, claims)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
