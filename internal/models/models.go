// Package models defines the domain models for the application.
// Note: User management, OAuth, sessions, and billing are handled by Clerk.
// The UserID fields reference Clerk user IDs (e.g., "user_xxx").
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// SubjectType identifies which ceiling a usage counter tracks.
type SubjectType string

const (
	SubjectUser    SubjectType = "user"    // per-user tier budget
	SubjectAccount SubjectType = "account" // per-Instagram-account Meta ceiling
	SubjectApp     SubjectType = "app"     // platform-wide Meta app quota
)

// ActionType is the closed set of automated Instagram actions the system
// performs. Unknown action types are rejected at the API boundary so every
// queued payload can be decoded by the executor.
type ActionType string

const (
	ActionCommentReply       ActionType = "comment_reply"
	ActionDMReply            ActionType = "dm_reply"
	ActionStoryReply         ActionType = "story_reply"
	ActionDMFollowCheck      ActionType = "dm_follow_check"
	ActionFollowVerification ActionType = "follow_verification"
	ActionDMFinalLink        ActionType = "dm_final_link"
	ActionProfileSync        ActionType = "profile_sync"
)

// Valid reports whether a is a known action type.
func (a ActionType) Valid() bool {
	switch a {
	case ActionCommentReply, ActionDMReply, ActionStoryReply,
		ActionDMFollowCheck, ActionFollowVerification, ActionDMFinalLink,
		ActionProfileSync:
		return true
	}
	return false
}

// CommentReplyPayload is the payload for ActionCommentReply.
type CommentReplyPayload struct {
	CommentID string `json:"comment_id"`
	Message   string `json:"message"`
}

// DMReplyPayload is the payload for ActionDMReply.
type DMReplyPayload struct {
	RecipientID string `json:"recipient_id"`
	Message     string `json:"message"`
}

// StoryReplyPayload is the payload for ActionStoryReply.
type StoryReplyPayload struct {
	StoryID string `json:"story_id"`
	Message string `json:"message"`
}

// DMFollowCheckPayload is the payload for ActionDMFollowCheck: the
// follow-prompt message sent when the recipient does not yet follow the
// account.
type DMFollowCheckPayload struct {
	RecipientID string `json:"recipient_id"`
	Message     string `json:"message"`
}

// FollowVerificationPayload is the payload for ActionFollowVerification:
// once the recipient follows, they are sent the gated link.
type FollowVerificationPayload struct {
	RecipientID string `json:"recipient_id"`
	Link        string `json:"link"`
	Message     string `json:"message,omitempty"`
}

// DMFinalLinkPayload is the payload for ActionDMFinalLink: the final link
// delivery, sent without a follow gate.
type DMFinalLinkPayload struct {
	RecipientID string `json:"recipient_id"`
	Link        string `json:"link"`
	Message     string `json:"message,omitempty"`
}

// ProfileSyncPayload is the payload for ActionProfileSync.
type ProfileSyncPayload struct {
	Fields []string `json:"fields,omitempty"`
}

// DecodePayload unmarshals raw into the payload type for action and
// validates required fields. It is the single place queued payloads are
// interpreted, so the executor never sees a shape it cannot handle.
func DecodePayload(action ActionType, raw json.RawMessage) (any, error) {
	switch action {
	case ActionCommentReply:
		var p CommentReplyPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decoding comment reply payload: %w", err)
		}
		if p.CommentID == "" || p.Message == "" {
			return nil, fmt.Errorf("comment reply payload missing comment_id or message")
		}
		return p, nil
	case ActionDMReply:
		var p DMReplyPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decoding dm reply payload: %w", err)
		}
		if p.RecipientID == "" || p.Message == "" {
			return nil, fmt.Errorf("dm reply payload missing recipient_id or message")
		}
		return p, nil
	case ActionStoryReply:
		var p StoryReplyPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decoding story reply payload: %w", err)
		}
		if p.StoryID == "" || p.Message == "" {
			return nil, fmt.Errorf("story reply payload missing story_id or message")
		}
		return p, nil
	case ActionDMFollowCheck:
		var p DMFollowCheckPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decoding dm follow check payload: %w", err)
		}
		if p.RecipientID == "" || p.Message == "" {
			return nil, fmt.Errorf("dm follow check payload missing recipient_id or message")
		}
		return p, nil
	case ActionFollowVerification:
		var p FollowVerificationPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decoding follow verification payload: %w", err)
		}
		if p.RecipientID == "" || p.Link == "" {
			return nil, fmt.Errorf("follow verification payload missing recipient_id or link")
		}
		return p, nil
	case ActionDMFinalLink:
		var p DMFinalLinkPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decoding dm final link payload: %w", err)
		}
		if p.RecipientID == "" || p.Link == "" {
			return nil, fmt.Errorf("dm final link payload missing recipient_id or link")
		}
		return p, nil
	case ActionProfileSync:
		var p ProfileSyncPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decoding profile sync payload: %w", err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown action type %q", action)
	}
}

// UsageRecord is a per-window call counter for one subject. Rows are keyed
// by (subject_id, subject_type, window_start, action_type) and incremented
// in place, never rewritten.
type UsageRecord struct {
	ID          string      `json:"id"`
	SubjectID   string      `json:"subject_id"` // Clerk user ID, Instagram account ID, or "app"
	SubjectType SubjectType `json:"subject_type"`
	WindowStart time.Time   `json:"window_start"`
	ActionType  ActionType  `json:"action_type"`
	CallCount   int         `json:"call_count"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// QueueStatus represents the lifecycle state of a deferred call.
type QueueStatus string

const (
	QueueStatusPending    QueueStatus = "pending"
	QueueStatusProcessing QueueStatus = "processing"
	QueueStatusCompleted  QueueStatus = "completed"
	QueueStatusFailed     QueueStatus = "failed"
)

// DeferReason records which ceiling caused a call to be deferred.
type DeferReason string

const (
	DeferReasonUserLimit    DeferReason = "user_limit"
	DeferReasonAccountLimit DeferReason = "account_limit"
	DeferReasonAppLimit     DeferReason = "app_limit"
	DeferReasonManual       DeferReason = "manual" // queued explicitly by a caller
	// DeferReasonPaused marks a call rejected because automation is paused.
	// Paused calls are never queued, so this value never appears on a
	// QueueItem.
	DeferReasonPaused DeferReason = "paused"
)

// QueueItem represents one deferred Instagram call awaiting a window with
// available budget. Drained in (priority ASC, created_at ASC) order.
type QueueItem struct {
	ID           string          `json:"id"`
	UserID       string          `json:"user_id"` // Clerk user ID
	AccountID    string          `json:"account_id"`
	ActionType   ActionType      `json:"action_type"`
	PayloadJSON  json.RawMessage `json:"payload"`
	Priority     int             `json:"priority"` // lower = drained first
	Status       QueueStatus     `json:"status"`
	DeferReason  DeferReason     `json:"defer_reason"`
	WindowStart  time.Time       `json:"window_start"` // window the call was deferred in
	Attempts     int             `json:"attempts"`
	ErrorMessage string          `json:"error_message,omitempty"`
	ProcessedAt  *time.Time      `json:"processed_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// PauseScope identifies what a pause row applies to.
const (
	// PauseScopeGlobal is the scope value for the platform-wide pause row.
	PauseScopeGlobal = "global"
)

// PauseReason records why automation was paused.
type PauseReason string

const (
	PauseReasonManual   PauseReason = "manual"    // operator or user toggle
	PauseReasonAppLimit PauseReason = "app_limit" // platform quota exhausted
)

// PauseState represents an automation pause for one scope. Scope is either
// PauseScopeGlobal or a Clerk user ID. App-limit pauses carry the window
// they were raised in so they can be cleared at rollover; manual pauses
// persist until explicitly lifted.
type PauseState struct {
	ID          string      `json:"id"`
	Scope       string      `json:"scope"`
	Paused      bool        `json:"paused"`
	Reason      PauseReason `json:"reason"`
	WindowStart *time.Time  `json:"window_start,omitempty"` // set for app_limit pauses
	PausedBy    string      `json:"paused_by,omitempty"`    // Clerk user ID of the actor
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// WindowLease is a short-lived claim on draining one window. At most one
// holder per window key at a time; expired leases may be taken over.
type WindowLease struct {
	WindowKey string    `json:"window_key"`
	HolderID  string    `json:"holder_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// InstagramAccount represents a connected Instagram business account.
// The access token is stored encrypted and never serialized.
type InstagramAccount struct {
	ID                  string     `json:"id"`
	UserID              string     `json:"user_id"` // Clerk user ID
	InstagramUserID     string     `json:"instagram_user_id"`
	Username            string     `json:"username"`
	AccessTokenEnc      string     `json:"-"` // AES-256-GCM encrypted
	TokenExpiresAt      *time.Time `json:"token_expires_at,omitempty"`
	AutomationEnabled   bool       `json:"automation_enabled"`
	LastSyncedAt        *time.Time `json:"last_synced_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// Subscription mirrors the user's Clerk Commerce subscription so tier
// lookups do not need a Clerk round trip on every gate decision.
type Subscription struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"` // Clerk user ID
	Tier      string     `json:"tier"`
	Status    string     `json:"status"` // active, past_due, cancelled
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// ActiveTier returns the subscription's tier if it is usable, or "free".
func (s *Subscription) ActiveTier(now time.Time) string {
	if s == nil || s.Status != "active" {
		return "free"
	}
	if s.ExpiresAt != nil && s.ExpiresAt.Before(now) {
		return "free"
	}
	return s.Tier
}
