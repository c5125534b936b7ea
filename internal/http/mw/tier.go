package mw

import (
	"context"
	"net/http"

	"github.com/ErGaurav155/ainspiretech-api/internal/constants"
)

// TierContextKey is the context key type for tier limits.
type TierContextKey string

// TierLimitsKey is the context key for the caller's tier limits.
const TierLimitsKey TierContextKey = "tier_limits"

// TierGate returns middleware that resolves the caller's tier limits from
// their claims and adds them to the request context. Per-call budget
// enforcement happens in the gate service; this only makes the limits
// available to handlers for display and request shaping.
func TierGate() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetUserClaims(r.Context())
			if claims == nil {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}

			tier := constants.NormalizeTierName(claims.Tier)
			limits := constants.GetTierLimits(tier)

			ctx := context.WithValue(r.Context(), TierLimitsKey, limits)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetTierLimitsFromContext retrieves tier limits from context, defaulting
// to the free tier when no auth middleware ran.
func GetTierLimitsFromContext(ctx context.Context) constants.TierLimits {
	limits, ok := ctx.Value(TierLimitsKey).(constants.TierLimits)
	if !ok {
		return constants.GetTierLimits(constants.TierFree)
	}
	return limits
}
