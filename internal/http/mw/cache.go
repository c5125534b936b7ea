package mw

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/ErGaurav155/ainspiretech-api/internal/constants"
)

// CachePolicy defines caching behavior for a route pattern.
type CachePolicy struct {
	// Pattern is the route pattern to match (prefix match by default).
	Pattern string
	// CacheControl is the Cache-Control header value to set.
	CacheControl string
}

// CacheConfig holds the cache middleware configuration.
type CacheConfig struct {
	// Policies are the cache policies to apply, matched in order.
	Policies []CachePolicy
	// DefaultPolicy is applied when no policy matches (empty = no header set).
	DefaultPolicy string
}

// DefaultCacheConfig returns sensible cache defaults for the API.
// Public endpoints get CDN-friendly caching, probes are never cached,
// rate-limit stats reflect live counters and must not be cached.
func DefaultCacheConfig() CacheConfig {
	shortSecs := int(constants.CacheMaxAgeShort.Seconds())
	mediumSecs := int(constants.CacheMaxAgeMedium.Seconds())

	return CacheConfig{
		DefaultPolicy: "private, no-cache",
		Policies: []CachePolicy{
			// Public endpoints - CDN cacheable
			{Pattern: "/api/v1/health", CacheControl: fmt.Sprintf("public, max-age=%d", shortSecs)},
			{Pattern: "/api/v1/tiers", CacheControl: fmt.Sprintf("public, max-age=%d, stale-while-revalidate=60", mediumSecs)},

			// K8s probes - never cache (must reflect real-time state)
			{Pattern: "/healthz", CacheControl: "no-store"},
			{Pattern: "/readyz", CacheControl: "no-store"},

			// Live counters and queue state - never cache
			{Pattern: "/api/v1/rate-limits", CacheControl: "private, no-cache"},
			{Pattern: "/api/v1/calls", CacheControl: "private, no-cache"},
			{Pattern: "/api/v1/accounts", CacheControl: "private, no-cache"},
			{Pattern: "/api/v1/admin", CacheControl: "private, no-cache"},
		},
	}
}

// Cache returns middleware that sets Cache-Control headers based on route patterns.
// For non-GET/HEAD requests, it sets "no-store" to prevent caching of mutations.
// For GET/HEAD requests, it matches against configured policies in order.
func Cache(cfg CacheConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet && r.Method != http.MethodHead {
				w.Header().Set("Cache-Control", "no-store")
				next.ServeHTTP(w, r)
				return
			}

			path := r.URL.Path
			for _, policy := range cfg.Policies {
				if matchesPattern(path, policy.Pattern) {
					w.Header().Set("Cache-Control", policy.CacheControl)
					next.ServeHTTP(w, r)
					return
				}
			}

			if cfg.DefaultPolicy != "" {
				w.Header().Set("Cache-Control", cfg.DefaultPolicy)
			}

			next.ServeHTTP(w, r)
		})
	}
}

// matchesPattern checks if the path matches the pattern by exact, prefix or
// substring match.
func matchesPattern(path, pattern string) bool {
	if path == pattern || strings.HasPrefix(path, pattern) {
		return true
	}
	return strings.Contains(path, pattern)
}
