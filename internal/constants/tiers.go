// Package constants defines centralized configuration for tier limits,
// rate limits, and user-facing messages. Change values here to update
// limits across the entire application.
package constants

import (
	"fmt"
	"sync"
	"time"
)

// tiersMu protects concurrent access to the Tiers map.
var tiersMu sync.RWMutex

// Tier names
const (
	TierFree    = "free"
	TierStarter = "starter"
	TierGrowth  = "growth"
	TierPro     = "pro"
)

// TierLimits defines the numeric limits for a subscription tier.
type TierLimits struct {
	// DisplayName is the user-facing name for this tier (synced from Clerk Commerce).
	DisplayName string
	// Visible controls whether this tier appears in the public pricing API.
	Visible bool
	// Order controls the display order in pricing tables (lower = first).
	Order int
	// HourlyCallLimit is the max Instagram API calls per hourly window (0 = unlimited)
	HourlyCallLimit int
	// AccountLimit is the max connected Instagram accounts (0 = unlimited)
	AccountLimit int
	// ReplyLimit is the max automated comment/DM replies per hourly window (0 = unlimited)
	ReplyLimit int
	// RequestsPerMinute is the rate limit for API requests (0 = unlimited)
	RequestsPerMinute int
}

// Tiers defines limits for each subscription tier.
// To change tier limits, modify this map.
var Tiers = map[string]TierLimits{
	TierFree: {
		DisplayName:       "Free",
		Visible:           true,
		Order:             0,
		HourlyCallLimit:   25,
		AccountLimit:      1,
		ReplyLimit:        15,
		RequestsPerMinute: 10,
	},
	TierStarter: {
		DisplayName:       "Starter",
		Visible:           true,
		Order:             1,
		HourlyCallLimit:   100,
		AccountLimit:      3,
		ReplyLimit:        75,
		RequestsPerMinute: 30,
	},
	TierGrowth: {
		DisplayName:       "Growth",
		Visible:           true,
		Order:             2,
		HourlyCallLimit:   400,
		AccountLimit:      10,
		ReplyLimit:        300,
		RequestsPerMinute: 60,
	},
	TierPro: {
		DisplayName:       "Pro",
		Visible:           false, // Not yet available to users
		Order:             3,
		HourlyCallLimit:   1500,
		AccountLimit:      0, // Unlimited
		ReplyLimit:        0, // Unlimited
		RequestsPerMinute: 60,
	},
}

// GetTierLimits returns the limits for a tier, defaulting to free tier.
// Normalizes tier names from Clerk Commerce format (e.g., "tier_v1_starter" -> "starter").
// Thread-safe for concurrent access.
func GetTierLimits(tier string) TierLimits {
	tiersMu.RLock()
	defer tiersMu.RUnlock()

	// Direct match first
	if limits, ok := Tiers[tier]; ok {
		return limits
	}

	normalized := NormalizeTierName(tier)
	if limits, ok := Tiers[normalized]; ok {
		return limits
	}

	return Tiers[TierFree]
}

// NormalizeTierName converts Clerk Commerce tier names to internal tier names.
// Examples:
//   - "tier_v1_starter" -> "starter"
//   - "tier_v1_pro" -> "pro"
//   - "starter" -> "starter" (already normalized)
func NormalizeTierName(tier string) string {
	tierMappings := map[string]string{
		"tier_v1_free":    TierFree,
		"tier_v1_starter": TierStarter,
		"tier_v1_growth":  TierGrowth,
		"tier_v1_pro":     TierPro,
	}

	if mapped, ok := tierMappings[tier]; ok {
		return mapped
	}

	return tier
}

// Platform-wide call ceilings. These sit above per-tier limits: the app-level
// ceiling protects the shared Meta app quota, and the per-account ceiling
// reflects Meta's documented per-Instagram-account rate of ~200 calls/hour.
const (
	// AppHourlyCallLimit is the max calls the whole platform may make per
	// hourly window against the shared Meta app quota.
	AppHourlyCallLimit = 190000
	// MetaCallLimitPerAccount is Meta's per-Instagram-account hourly ceiling.
	MetaCallLimitPerAccount = 200
)

// Usage thresholds as a fraction of the applicable limit. Shared by the
// gate (for deciding warnings) and the stats reporter (for status labels).
const (
	// UsageWarningThreshold marks a subject as "warning" once crossed.
	UsageWarningThreshold = 0.70
	// UsageCriticalThreshold marks a subject as "critical" once crossed.
	UsageCriticalThreshold = 0.90
)

// Deferred call priorities (lower = drained first). Calls deferred because
// the user's own tier budget ran out drain before fresh work; calls deferred
// by platform-wide exhaustion drain last since every user is affected.
const (
	PriorityUserLimit    = 3
	PriorityDefault      = 5
	PriorityAccountLimit = 6
	PriorityAppLimit     = 8
)

// Global rate limiting defaults
const (
	// GlobalIPRateLimitPerMinute is the fallback rate limit for unauthenticated requests
	GlobalIPRateLimitPerMinute = 100
	// GlobalConcurrencyLimit is the max concurrent requests the server will handle
	GlobalConcurrencyLimit = 100
	// MaxRequestBodySize is the max request body size in bytes (1MB)
	MaxRequestBodySize = 1 * 1024 * 1024
)

// Queue processing defaults
const (
	// StaleProcessingAge is how long a queue item can be "processing" before
	// it's considered abandoned and reset to pending
	StaleProcessingAge = 10 * time.Minute
	// DefaultDrainBatchSize is how many deferred calls one drain pass claims
	DefaultDrainBatchSize = 25
	// DrainLeaseTTL is how long a drain lease is held before another worker
	// may take over a window
	DrainLeaseTTL = 5 * time.Minute
	// MaxQueueAttempts is how many times a deferred call is retried before
	// being marked failed
	MaxQueueAttempts = 3
	// QueueRetentionPeriod is how long completed and failed queue items are kept
	QueueRetentionPeriod = 7 * 24 * time.Hour
	// UsageRetentionPeriod is how long per-window usage counters are kept for
	// historical stats
	UsageRetentionPeriod = 30 * 24 * time.Hour
)

// HTTP request timeouts
const (
	// DefaultRequestTimeout is the timeout for most API endpoints
	DefaultRequestTimeout = 60 * time.Second
	// GraphRequestTimeout is the timeout for outbound Instagram Graph calls
	GraphRequestTimeout = 30 * time.Second
)

// Cache durations for Cache-Control headers
const (
	// CacheMaxAgeShort is for rapidly changing data (health checks, stats)
	CacheMaxAgeShort = 30 * time.Second
	// CacheMaxAgeMedium is for semi-stable data (tier info)
	CacheMaxAgeMedium = 5 * time.Minute
)

// HourlyLimitMessage returns a user-friendly message for hourly call limit exceeded.
func HourlyLimitMessage(tier string) string {
	normalized := NormalizeTierName(tier)
	limits := GetTierLimits(normalized)
	switch normalized {
	case TierFree:
		return fmt.Sprintf("You've reached your free tier limit of %d calls this hour. Your calls are queued and will send automatically next hour, or upgrade to Starter for %d hourly calls.",
			limits.HourlyCallLimit, Tiers[TierStarter].HourlyCallLimit)
	case TierStarter:
		return fmt.Sprintf("You've reached your Starter plan limit of %d calls this hour. Queued calls will send automatically next hour, or upgrade to Growth for %d hourly calls.",
			limits.HourlyCallLimit, Tiers[TierGrowth].HourlyCallLimit)
	case TierGrowth:
		return fmt.Sprintf("You've reached your Growth plan limit of %d calls this hour. Queued calls will send automatically next hour.",
			limits.HourlyCallLimit)
	default:
		return "You've reached your hourly call limit. Queued calls will send automatically next hour."
	}
}

// AccountLimitMessage returns a user-friendly message when an Instagram
// account hits Meta's per-account ceiling.
func AccountLimitMessage() string {
	return fmt.Sprintf("This Instagram account has reached Meta's limit of %d API calls this hour. Calls are queued and will send automatically next hour.",
		MetaCallLimitPerAccount)
}

// AppLimitMessage returns a user-friendly message when the platform-wide
// quota is exhausted and automation has been paused.
func AppLimitMessage() string {
	return "Automation is temporarily paused due to platform-wide API limits. Your calls are queued and will resume automatically next hour."
}

// AutomationPausedMessage returns the rejection message for a call made
// while a manual pause is active. Paused calls are rejected outright, never
// queued.
func AutomationPausedMessage() string {
	return "Automation is paused. Calls are rejected until automation is resumed."
}

// AppPausedMessage returns the rejection message for a call made while the
// platform is paused on quota exhaustion.
func AppPausedMessage() string {
	return "Automation is temporarily paused due to platform-wide API limits and will resume automatically next hour."
}

// TierMetadata represents visibility and display info synced from Clerk Commerce.
type TierMetadata struct {
	Slug        string // Tier slug (e.g., "free", "starter", "pro")
	DisplayName string // Human-readable name from Clerk
	Visible     bool   // Whether publicly available in Clerk
}

// UpdateTierMetadata updates tier display names and visibility from Clerk Commerce.
// This should be called on startup and when receiving plan update webhooks.
// Thread-safe for concurrent access.
func UpdateTierMetadata(metadata []TierMetadata) {
	tiersMu.Lock()
	defer tiersMu.Unlock()

	for _, m := range metadata {
		tierName := NormalizeTierName(m.Slug)

		if tier, ok := Tiers[tierName]; ok {
			if m.DisplayName != "" {
				tier.DisplayName = m.DisplayName
			}
			tier.Visible = m.Visible
			Tiers[tierName] = tier
		}
	}
}

// GetVisibleTiers returns all tiers that are marked as visible.
// Thread-safe for concurrent access.
func GetVisibleTiers() map[string]TierLimits {
	tiersMu.RLock()
	defer tiersMu.RUnlock()

	visible := make(map[string]TierLimits)
	for name, tier := range Tiers {
		if tier.Visible {
			visible[name] = tier
		}
	}
	return visible
}
