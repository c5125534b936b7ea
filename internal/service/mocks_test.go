package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ErGaurav155/ainspiretech-api/internal/models"
	"github.com/ErGaurav155/ainspiretech-api/internal/repository"
	"github.com/ErGaurav155/ainspiretech-api/internal/window"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRepos() *repository.Repositories {
	return &repository.Repositories{
		Usage:        newMockUsageRepository(),
		Queue:        newMockQueueRepository(),
		Pause:        newMockPauseRepository(),
		Lease:        newMockLeaseRepository(),
		Account:      newMockAccountRepository(),
		Subscription: newMockSubscriptionRepository(),
	}
}

// mockUsageRepository implements repository.UsageRepository in memory.
type mockUsageRepository struct {
	mu     sync.Mutex
	counts map[string]int // subjectID|type|windowKey|action -> count
	// forceErr makes every method fail, for fail-closed tests.
	forceErr error
}

func newMockUsageRepository() *mockUsageRepository {
	return &mockUsageRepository{counts: make(map[string]int)}
}

func usageKey(subjectID string, subjectType models.SubjectType, windowKey string, action models.ActionType) string {
	return fmt.Sprintf("%s|%s|%s|%s", subjectID, subjectType, windowKey, action)
}

func (m *mockUsageRepository) sumLocked(subjectID string, subjectType models.SubjectType, windowKey string) int {
	total := 0
	prefix := fmt.Sprintf("%s|%s|%s|", subjectID, subjectType, windowKey)
	for key, count := range m.counts {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			total += count
		}
	}
	return total
}

func (m *mockUsageRepository) RecordGated(ctx context.Context, userID, accountID string, action models.ActionType, windowStart time.Time, count int, limits repository.GateLimits) (*repository.GateResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.forceErr != nil {
		return nil, m.forceErr
	}

	windowKey := window.Key(windowStart)
	result := &repository.GateResult{
		UserCount:    m.sumLocked(userID, models.SubjectUser, windowKey),
		AccountCount: m.sumLocked(accountID, models.SubjectAccount, windowKey),
		AppCount:     m.sumLocked("app", models.SubjectApp, windowKey),
	}

	switch {
	case limits.AppLimit > 0 && result.AppCount+count > limits.AppLimit:
		result.LimitHit = models.DeferReasonAppLimit
	case limits.AccountLimit > 0 && result.AccountCount+count > limits.AccountLimit:
		result.LimitHit = models.DeferReasonAccountLimit
	case limits.UserLimit > 0 && result.UserCount+count > limits.UserLimit:
		result.LimitHit = models.DeferReasonUserLimit
	}
	if result.LimitHit != "" {
		return result, nil
	}

	m.counts[usageKey(userID, models.SubjectUser, windowKey, action)] += count
	m.counts[usageKey(accountID, models.SubjectAccount, windowKey, action)] += count
	m.counts[usageKey("app", models.SubjectApp, windowKey, action)] += count

	result.Allowed = true
	result.UserCount += count
	result.AccountCount += count
	result.AppCount += count
	return result, nil
}

func (m *mockUsageRepository) Record(ctx context.Context, userID, accountID string, action models.ActionType, windowStart time.Time, count int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.forceErr != nil {
		return m.forceErr
	}
	windowKey := window.Key(windowStart)
	m.counts[usageKey(userID, models.SubjectUser, windowKey, action)] += count
	m.counts[usageKey(accountID, models.SubjectAccount, windowKey, action)] += count
	m.counts[usageKey("app", models.SubjectApp, windowKey, action)] += count
	return nil
}

func (m *mockUsageRepository) GetCount(ctx context.Context, subjectID string, subjectType models.SubjectType, windowStart time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.forceErr != nil {
		return 0, m.forceErr
	}
	return m.sumLocked(subjectID, subjectType, window.Key(windowStart)), nil
}

func (m *mockUsageRepository) GetCountsByAction(ctx context.Context, subjectID string, subjectType models.SubjectType, windowStart time.Time) (map[models.ActionType]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.forceErr != nil {
		return nil, m.forceErr
	}
	result := make(map[models.ActionType]int)
	windowKey := window.Key(windowStart)
	for _, action := range []models.ActionType{models.ActionCommentReply, models.ActionDMReply, models.ActionStoryReply, models.ActionProfileSync} {
		if count := m.counts[usageKey(subjectID, subjectType, windowKey, action)]; count > 0 {
			result[action] = count
		}
	}
	return result, nil
}

func (m *mockUsageRepository) GetUserCounts(ctx context.Context, windowStart time.Time) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.forceErr != nil {
		return nil, m.forceErr
	}
	out := make(map[string]int)
	for key, count := range m.counts {
		parts := strings.SplitN(key, "|", 4)
		if len(parts) == 4 && parts[1] == string(models.SubjectUser) && parts[2] == window.Key(windowStart) {
			out[parts[0]] += count
		}
	}
	return out, nil
}

func (m *mockUsageRepository) GetSubjectHistory(ctx context.Context, subjectID string, subjectType models.SubjectType, from, to time.Time) ([]*models.UsageRecord, error) {
	return nil, nil
}

func (m *mockUsageRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.forceErr != nil {
		return 0, m.forceErr
	}
	cutoff := window.Key(before)
	var deleted int64
	for key := range m.counts {
		// The window key is the third field of the composite key.
		parts := strings.Split(key, "|")
		if len(parts) == 4 && parts[2] < cutoff {
			delete(m.counts, key)
			deleted++
		}
	}
	return deleted, nil
}

// mockQueueRepository implements repository.QueueRepository in memory.
type mockQueueRepository struct {
	mu       sync.Mutex
	items    map[string]*models.QueueItem
	forceErr error
}

func newMockQueueRepository() *mockQueueRepository {
	return &mockQueueRepository{items: make(map[string]*models.QueueItem)}
}

func (m *mockQueueRepository) Enqueue(ctx context.Context, item *models.QueueItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.forceErr != nil {
		return m.forceErr
	}
	clone := *item
	m.items[item.ID] = &clone
	return nil
}

func (m *mockQueueRepository) GetByID(ctx context.Context, id string) (*models.QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if item, ok := m.items[id]; ok {
		clone := *item
		return &clone, nil
	}
	return nil, nil
}

func (m *mockQueueRepository) GetByUserID(ctx context.Context, userID string, limit, offset int) ([]*models.QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*models.QueueItem
	for _, item := range m.items {
		if item.UserID == userID {
			clone := *item
			result = append(result, &clone)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	if offset >= len(result) {
		return nil, nil
	}
	result = result[offset:]
	if limit > 0 && limit < len(result) {
		result = result[:limit]
	}
	return result, nil
}

func (m *mockQueueRepository) GetByAccountID(ctx context.Context, accountID string, statuses []models.QueueStatus) ([]*models.QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*models.QueueItem
	for _, item := range m.items {
		if item.AccountID != accountID {
			continue
		}
		if len(statuses) > 0 {
			match := false
			for _, status := range statuses {
				if item.Status == status {
					match = true
					break
				}
			}
			if !match {
				continue
			}
		}
		clone := *item
		result = append(result, &clone)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Priority != result[j].Priority {
			return result[i].Priority < result[j].Priority
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (m *mockQueueRepository) ClaimBatch(ctx context.Context, limit int) ([]*models.QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.forceErr != nil {
		return nil, m.forceErr
	}
	var pending []*models.QueueItem
	for _, item := range m.items {
		if item.Status == models.QueueStatusPending {
			pending = append(pending, item)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].Priority != pending[j].Priority {
			return pending[i].Priority < pending[j].Priority
		}
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	if limit > 0 && limit < len(pending) {
		pending = pending[:limit]
	}
	var claimed []*models.QueueItem
	for _, item := range pending {
		item.Status = models.QueueStatusProcessing
		item.UpdatedAt = time.Now()
		clone := *item
		claimed = append(claimed, &clone)
	}
	return claimed, nil
}

func (m *mockQueueRepository) MarkCompleted(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if item, ok := m.items[id]; ok {
		now := time.Now()
		item.Status = models.QueueStatusCompleted
		item.ProcessedAt = &now
	}
	return nil
}

func (m *mockQueueRepository) MarkFailed(ctx context.Context, id string, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if item, ok := m.items[id]; ok {
		now := time.Now()
		item.Status = models.QueueStatusFailed
		item.ErrorMessage = errMsg
		item.ProcessedAt = &now
	}
	return nil
}

func (m *mockQueueRepository) Requeue(ctx context.Context, id string, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if item, ok := m.items[id]; ok {
		item.Status = models.QueueStatusPending
		item.Attempts++
		item.ErrorMessage = errMsg
	}
	return nil
}

func (m *mockQueueRepository) ReleaseToPending(ctx context.Context, id string, note string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if item, ok := m.items[id]; ok {
		item.Status = models.QueueStatusPending
		item.ErrorMessage = note
	}
	return nil
}

func (m *mockQueueRepository) CountByStatus(ctx context.Context, status models.QueueStatus) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, item := range m.items {
		if item.Status == status {
			count++
		}
	}
	return count, nil
}

func (m *mockQueueRepository) CountGrouped(ctx context.Context) (map[models.ActionType]map[models.QueueStatus]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.forceErr != nil {
		return nil, m.forceErr
	}
	counts := make(map[models.ActionType]map[models.QueueStatus]int)
	for _, item := range m.items {
		byStatus := counts[item.ActionType]
		if byStatus == nil {
			byStatus = make(map[models.QueueStatus]int)
			counts[item.ActionType] = byStatus
		}
		byStatus[item.Status]++
	}
	return counts, nil
}

func (m *mockQueueRepository) CountPendingByUserID(ctx context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, item := range m.items {
		if item.UserID == userID && item.Status == models.QueueStatusPending {
			count++
		}
	}
	return count, nil
}

func (m *mockQueueRepository) ResetStaleProcessing(ctx context.Context, maxAge time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().Add(-maxAge)
	var reset int64
	for _, item := range m.items {
		if item.Status == models.QueueStatusProcessing && item.UpdatedAt.Before(cutoff) {
			item.Status = models.QueueStatusPending
			reset++
		}
	}
	return reset, nil
}

func (m *mockQueueRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.forceErr != nil {
		return 0, m.forceErr
	}
	var deleted int64
	for id, item := range m.items {
		settled := item.Status == models.QueueStatusCompleted || item.Status == models.QueueStatusFailed
		if settled && item.CreatedAt.Before(before) {
			delete(m.items, id)
			deleted++
		}
	}
	return deleted, nil
}

// mockPauseRepository implements repository.PauseRepository in memory.
type mockPauseRepository struct {
	mu       sync.Mutex
	states   map[string]*models.PauseState
	forceErr error
}

func newMockPauseRepository() *mockPauseRepository {
	return &mockPauseRepository{states: make(map[string]*models.PauseState)}
}

func (m *mockPauseRepository) Get(ctx context.Context, scope string) (*models.PauseState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.forceErr != nil {
		return nil, m.forceErr
	}
	if state, ok := m.states[scope]; ok {
		clone := *state
		return &clone, nil
	}
	return nil, nil
}

func (m *mockPauseRepository) Upsert(ctx context.Context, state *models.PauseState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.forceErr != nil {
		return m.forceErr
	}
	clone := *state
	m.states[state.Scope] = &clone
	return nil
}

func (m *mockPauseRepository) ClearAppLimitPausesBefore(ctx context.Context, windowStart time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var cleared int64
	for _, state := range m.states {
		if state.Paused && state.Reason == models.PauseReasonAppLimit &&
			state.WindowStart != nil && state.WindowStart.Before(windowStart) {
			state.Paused = false
			cleared++
		}
	}
	return cleared, nil
}

func (m *mockPauseRepository) ListPaused(ctx context.Context) ([]*models.PauseState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*models.PauseState
	for _, state := range m.states {
		if state.Paused {
			clone := *state
			result = append(result, &clone)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Scope < result[j].Scope })
	return result, nil
}

// mockLeaseRepository implements repository.LeaseRepository in memory.
type mockLeaseRepository struct {
	mu     sync.Mutex
	leases map[string]*models.WindowLease
}

func newMockLeaseRepository() *mockLeaseRepository {
	return &mockLeaseRepository{leases: make(map[string]*models.WindowLease)}
}

func (m *mockLeaseRepository) Acquire(ctx context.Context, windowKey, holderID string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	if lease, ok := m.leases[windowKey]; ok {
		if lease.ExpiresAt.After(now) && lease.HolderID != holderID {
			return false, nil
		}
	}
	m.leases[windowKey] = &models.WindowLease{
		WindowKey: windowKey,
		HolderID:  holderID,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	return true, nil
}

func (m *mockLeaseRepository) Release(ctx context.Context, windowKey, holderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if lease, ok := m.leases[windowKey]; ok && lease.HolderID == holderID {
		delete(m.leases, windowKey)
	}
	return nil
}

func (m *mockLeaseRepository) DeleteExpired(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	var deleted int64
	for key, lease := range m.leases {
		if lease.ExpiresAt.Before(now) {
			delete(m.leases, key)
			deleted++
		}
	}
	return deleted, nil
}

// mockAccountRepository implements repository.AccountRepository in memory.
type mockAccountRepository struct {
	mu       sync.Mutex
	accounts map[string]*models.InstagramAccount
}

func newMockAccountRepository() *mockAccountRepository {
	return &mockAccountRepository{accounts: make(map[string]*models.InstagramAccount)}
}

func (m *mockAccountRepository) Create(ctx context.Context, account *models.InstagramAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *account
	m.accounts[account.ID] = &clone
	return nil
}

func (m *mockAccountRepository) GetByID(ctx context.Context, id string) (*models.InstagramAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if account, ok := m.accounts[id]; ok {
		clone := *account
		return &clone, nil
	}
	return nil, nil
}

func (m *mockAccountRepository) GetByUserID(ctx context.Context, userID string) ([]*models.InstagramAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*models.InstagramAccount
	for _, account := range m.accounts {
		if account.UserID == userID {
			clone := *account
			result = append(result, &clone)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (m *mockAccountRepository) GetByInstagramUserID(ctx context.Context, igUserID string) (*models.InstagramAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, account := range m.accounts {
		if account.InstagramUserID == igUserID {
			clone := *account
			return &clone, nil
		}
	}
	return nil, nil
}

func (m *mockAccountRepository) Update(ctx context.Context, account *models.InstagramAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[account.ID]; ok {
		clone := *account
		m.accounts[account.ID] = &clone
	}
	return nil
}

func (m *mockAccountRepository) UpdateLastSynced(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if account, ok := m.accounts[id]; ok {
		t := at
		account.LastSyncedAt = &t
	}
	return nil
}

func (m *mockAccountRepository) SetAutomationEnabled(ctx context.Context, id string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if account, ok := m.accounts[id]; ok {
		account.AutomationEnabled = enabled
	}
	return nil
}

func (m *mockAccountRepository) CountByUserID(ctx context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, account := range m.accounts {
		if account.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (m *mockAccountRepository) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.accounts, id)
	return nil
}

// mockSubscriptionRepository implements repository.SubscriptionRepository in memory.
type mockSubscriptionRepository struct {
	mu       sync.Mutex
	subs     map[string]*models.Subscription
	forceErr error
}

func newMockSubscriptionRepository() *mockSubscriptionRepository {
	return &mockSubscriptionRepository{subs: make(map[string]*models.Subscription)}
}

func (m *mockSubscriptionRepository) Upsert(ctx context.Context, sub *models.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.forceErr != nil {
		return m.forceErr
	}
	clone := *sub
	m.subs[sub.UserID] = &clone
	return nil
}

func (m *mockSubscriptionRepository) GetByUserID(ctx context.Context, userID string) (*models.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.forceErr != nil {
		return nil, m.forceErr
	}
	if sub, ok := m.subs[userID]; ok {
		clone := *sub
		return &clone, nil
	}
	return nil, nil
}

func (m *mockSubscriptionRepository) Delete(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subs, userID)
	return nil
}

// mockExecutor records executed items and fails on demand.
type mockExecutor struct {
	mu       sync.Mutex
	executed []string
	failWith error
}

func (m *mockExecutor) Execute(ctx context.Context, item *models.QueueItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	m.executed = append(m.executed, item.ID)
	return nil
}

func (m *mockExecutor) executedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.executed)
}
