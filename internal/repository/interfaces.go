// Package repository defines repository interfaces for data access.
// Note: User management, OAuth, and sessions are handled by Clerk.
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/ErGaurav155/ainspiretech-api/internal/models"
)

// GateLimits carries the ceilings checked by RecordGated. A zero value
// means that ceiling is unlimited.
type GateLimits struct {
	UserLimit    int // caller's tier budget for the window
	AccountLimit int // Meta's per-Instagram-account ceiling
	AppLimit     int // platform-wide app quota
}

// GateResult reports the outcome of an atomic check-and-record attempt.
type GateResult struct {
	Allowed bool
	// LimitHit names the ceiling that rejected the call; empty when allowed.
	LimitHit models.DeferReason
	// Counts after the attempt (post-increment when allowed, the blocking
	// values when rejected).
	UserCount    int
	AccountCount int
	AppCount     int
}

// UsageRepository defines methods for per-window usage counter access.
type UsageRepository interface {
	// RecordGated atomically checks all three ceilings and, if none would be
	// exceeded, increments the user, account and app counters by count in a
	// single transaction. Concurrent callers never overshoot a ceiling.
	RecordGated(ctx context.Context, userID, accountID string, action models.ActionType, windowStart time.Time, count int, limits GateLimits) (*GateResult, error)
	// Record increments counters unconditionally (the call was already made
	// upstream and must be accounted for even if it lands over a ceiling).
	Record(ctx context.Context, userID, accountID string, action models.ActionType, windowStart time.Time, count int) error
	// GetCount returns the total calls for a subject in a window across all actions.
	GetCount(ctx context.Context, subjectID string, subjectType models.SubjectType, windowStart time.Time) (int, error)
	// GetCountsByAction returns per-action counts for a subject in a window.
	GetCountsByAction(ctx context.Context, subjectID string, subjectType models.SubjectType, windowStart time.Time) (map[models.ActionType]int, error)
	// GetUserCounts returns per-user call totals for one window, for tier
	// breakdowns.
	GetUserCounts(ctx context.Context, windowStart time.Time) (map[string]int, error)
	// GetSubjectHistory returns a subject's counter rows for windows in [from, to).
	GetSubjectHistory(ctx context.Context, subjectID string, subjectType models.SubjectType, from, to time.Time) ([]*models.UsageRecord, error)
	// DeleteOlderThan removes counter rows for windows before the cutoff.
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// QueueRepository defines methods for deferred call data access.
type QueueRepository interface {
	Enqueue(ctx context.Context, item *models.QueueItem) error
	GetByID(ctx context.Context, id string) (*models.QueueItem, error)
	GetByUserID(ctx context.Context, userID string, limit, offset int) ([]*models.QueueItem, error)
	// GetByAccountID returns an account's queue items, optionally filtered by status.
	GetByAccountID(ctx context.Context, accountID string, statuses []models.QueueStatus) ([]*models.QueueItem, error)
	// ClaimBatch atomically moves up to limit pending items to processing and
	// returns them in drain order (priority ASC, created_at ASC).
	ClaimBatch(ctx context.Context, limit int) ([]*models.QueueItem, error)
	MarkCompleted(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, errMsg string) error
	// Requeue returns a processing item to pending with attempts incremented.
	Requeue(ctx context.Context, id string, errMsg string) error
	// ReleaseToPending returns a processing item to pending without counting
	// an attempt. Used when the item could not run for reasons unrelated to
	// its own execution (paused scope, exhausted window budget).
	ReleaseToPending(ctx context.Context, id string, note string) error
	CountByStatus(ctx context.Context, status models.QueueStatus) (int, error)
	// CountGrouped returns queue item counts grouped by action type and status.
	CountGrouped(ctx context.Context) (map[models.ActionType]map[models.QueueStatus]int, error)
	CountPendingByUserID(ctx context.Context, userID string) (int, error)
	// ResetStaleProcessing returns items stuck in processing longer than
	// maxAge to pending. Used after crashes and restarts.
	ResetStaleProcessing(ctx context.Context, maxAge time.Duration) (int64, error)
	// DeleteOlderThan removes completed and failed items older than the cutoff.
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// PauseRepository defines methods for automation pause state access.
type PauseRepository interface {
	// Get returns the pause row for a scope, or nil if none exists.
	Get(ctx context.Context, scope string) (*models.PauseState, error)
	Upsert(ctx context.Context, state *models.PauseState) error
	// ClearAppLimitPausesBefore lifts app_limit pauses raised in windows
	// before windowStart. Manual pauses are never touched.
	ClearAppLimitPausesBefore(ctx context.Context, windowStart time.Time) (int64, error)
	// ListPaused returns all currently paused scopes.
	ListPaused(ctx context.Context) ([]*models.PauseState, error)
}

// LeaseRepository defines methods for drain lease access.
type LeaseRepository interface {
	// Acquire attempts to take the lease for a window. Returns true if this
	// holder now owns it, false if a live lease is held elsewhere.
	Acquire(ctx context.Context, windowKey, holderID string, ttl time.Duration) (bool, error)
	// Release drops the lease if holderID still owns it.
	Release(ctx context.Context, windowKey, holderID string) error
	// DeleteExpired removes leases past their expiry.
	DeleteExpired(ctx context.Context) (int64, error)
}

// AccountRepository defines methods for Instagram account data access.
type AccountRepository interface {
	Create(ctx context.Context, account *models.InstagramAccount) error
	GetByID(ctx context.Context, id string) (*models.InstagramAccount, error)
	GetByUserID(ctx context.Context, userID string) ([]*models.InstagramAccount, error)
	GetByInstagramUserID(ctx context.Context, igUserID string) (*models.InstagramAccount, error)
	Update(ctx context.Context, account *models.InstagramAccount) error
	UpdateLastSynced(ctx context.Context, id string, at time.Time) error
	SetAutomationEnabled(ctx context.Context, id string, enabled bool) error
	CountByUserID(ctx context.Context, userID string) (int, error)
	Delete(ctx context.Context, id string) error
}

// SubscriptionRepository defines methods for the local Clerk Commerce mirror.
type SubscriptionRepository interface {
	Upsert(ctx context.Context, sub *models.Subscription) error
	GetByUserID(ctx context.Context, userID string) (*models.Subscription, error)
	Delete(ctx context.Context, userID string) error
}

// Repositories holds all repository instances.
type Repositories struct {
	Usage        UsageRepository
	Queue        QueueRepository
	Pause        PauseRepository
	Lease        LeaseRepository
	Account      AccountRepository
	Subscription SubscriptionRepository
}

// NewRepositories creates all repository instances.
func NewRepositories(db *sql.DB) *Repositories {
	return &Repositories{
		Usage:        NewSQLiteUsageRepository(db),
		Queue:        NewSQLiteQueueRepository(db),
		Pause:        NewSQLitePauseRepository(db),
		Lease:        NewSQLiteLeaseRepository(db),
		Account:      NewSQLiteAccountRepository(db),
		Subscription: NewSQLiteSubscriptionRepository(db),
	}
}
