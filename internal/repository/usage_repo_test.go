package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ErGaurav155/ainspiretech-api/internal/models"
	"github.com/ErGaurav155/ainspiretech-api/internal/window"
)

func TestUsageRepository_RecordGated_Allowed(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()
	win := window.CurrentStart(time.Now())

	limits := GateLimits{UserLimit: 25, AccountLimit: 200, AppLimit: 190000}

	result, err := repos.Usage.RecordGated(ctx, "user_123", "acct_1", models.ActionCommentReply, win, 1, limits)
	if err != nil {
		t.Fatalf("RecordGated() error = %v", err)
	}
	if !result.Allowed {
		t.Fatalf("Allowed = false, want true (LimitHit = %s)", result.LimitHit)
	}
	if result.LimitHit != "" {
		t.Errorf("LimitHit = %s, want empty", result.LimitHit)
	}
	if result.UserCount != 1 || result.AccountCount != 1 || result.AppCount != 1 {
		t.Errorf("counts = %d/%d/%d, want 1/1/1", result.UserCount, result.AccountCount, result.AppCount)
	}

	// All three counters were written.
	for _, sub := range []struct {
		id  string
		typ models.SubjectType
	}{
		{"user_123", models.SubjectUser},
		{"acct_1", models.SubjectAccount},
		{"app", models.SubjectApp},
	} {
		count, err := repos.Usage.GetCount(ctx, sub.id, sub.typ, win)
		if err != nil {
			t.Fatalf("GetCount(%s) error = %v", sub.typ, err)
		}
		if count != 1 {
			t.Errorf("GetCount(%s) = %d, want 1", sub.typ, count)
		}
	}
}

func TestUsageRepository_RecordGated_UserLimitHit(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()
	win := window.CurrentStart(time.Now())

	limits := GateLimits{UserLimit: 2, AccountLimit: 200, AppLimit: 190000}

	for i := 0; i < 2; i++ {
		result, err := repos.Usage.RecordGated(ctx, "user_123", "acct_1", models.ActionDMReply, win, 1, limits)
		if err != nil {
			t.Fatalf("RecordGated() error = %v", err)
		}
		if !result.Allowed {
			t.Fatalf("call %d rejected, want allowed", i+1)
		}
	}

	result, err := repos.Usage.RecordGated(ctx, "user_123", "acct_1", models.ActionDMReply, win, 1, limits)
	if err != nil {
		t.Fatalf("RecordGated() error = %v", err)
	}
	if result.Allowed {
		t.Fatal("Allowed = true, want rejection at user limit")
	}
	if result.LimitHit != models.DeferReasonUserLimit {
		t.Errorf("LimitHit = %s, want %s", result.LimitHit, models.DeferReasonUserLimit)
	}

	// Rejection must not write anything.
	count, err := repos.Usage.GetCount(ctx, "app", models.SubjectApp, win)
	if err != nil {
		t.Fatalf("GetCount() error = %v", err)
	}
	if count != 2 {
		t.Errorf("app count = %d, want 2 (rejected call must not increment)", count)
	}
}

func TestUsageRepository_RecordGated_AccountLimitHit(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()
	win := window.CurrentStart(time.Now())

	// A different user already consumed the account's budget.
	if err := repos.Usage.Record(ctx, "user_other", "acct_shared", models.ActionCommentReply, win, 200); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	limits := GateLimits{UserLimit: 25, AccountLimit: 200, AppLimit: 190000}
	result, err := repos.Usage.RecordGated(ctx, "user_123", "acct_shared", models.ActionCommentReply, win, 1, limits)
	if err != nil {
		t.Fatalf("RecordGated() error = %v", err)
	}
	if result.Allowed {
		t.Fatal("Allowed = true, want rejection at account limit")
	}
	if result.LimitHit != models.DeferReasonAccountLimit {
		t.Errorf("LimitHit = %s, want %s", result.LimitHit, models.DeferReasonAccountLimit)
	}
	if result.AccountCount != 200 {
		t.Errorf("AccountCount = %d, want 200", result.AccountCount)
	}
}

func TestUsageRepository_RecordGated_AppLimitWinsOverNarrower(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()
	win := window.CurrentStart(time.Now())

	// Exhaust everything at once with a tiny app ceiling. The app reason
	// must win because it pauses the whole platform.
	if err := repos.Usage.Record(ctx, "user_123", "acct_1", models.ActionCommentReply, win, 5); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	limits := GateLimits{UserLimit: 5, AccountLimit: 5, AppLimit: 5}
	result, err := repos.Usage.RecordGated(ctx, "user_123", "acct_1", models.ActionCommentReply, win, 1, limits)
	if err != nil {
		t.Fatalf("RecordGated() error = %v", err)
	}
	if result.Allowed {
		t.Fatal("Allowed = true, want rejection")
	}
	if result.LimitHit != models.DeferReasonAppLimit {
		t.Errorf("LimitHit = %s, want %s", result.LimitHit, models.DeferReasonAppLimit)
	}
}

func TestUsageRepository_RecordGated_BatchCannotOvershoot(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()
	win := window.CurrentStart(time.Now())

	limits := GateLimits{UserLimit: 10, AccountLimit: 200, AppLimit: 190000}

	// 8 used, a batch of 3 would land at 11.
	if err := repos.Usage.Record(ctx, "user_123", "acct_1", models.ActionCommentReply, win, 8); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	result, err := repos.Usage.RecordGated(ctx, "user_123", "acct_1", models.ActionCommentReply, win, 3, limits)
	if err != nil {
		t.Fatalf("RecordGated() error = %v", err)
	}
	if result.Allowed {
		t.Fatal("batch of 3 allowed at 8/10, want rejection")
	}

	// A batch of 2 still fits exactly.
	result, err = repos.Usage.RecordGated(ctx, "user_123", "acct_1", models.ActionCommentReply, win, 2, limits)
	if err != nil {
		t.Fatalf("RecordGated() error = %v", err)
	}
	if !result.Allowed {
		t.Fatalf("batch of 2 rejected at 8/10 (LimitHit = %s)", result.LimitHit)
	}
	if result.UserCount != 10 {
		t.Errorf("UserCount = %d, want 10", result.UserCount)
	}
}

func TestUsageRepository_RecordGated_ZeroLimitUnlimited(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()
	win := window.CurrentStart(time.Now())

	// Pro tier: no per-user ceiling.
	limits := GateLimits{UserLimit: 0, AccountLimit: 200, AppLimit: 190000}

	result, err := repos.Usage.RecordGated(ctx, "user_pro", "acct_1", models.ActionCommentReply, win, 50, limits)
	if err != nil {
		t.Fatalf("RecordGated() error = %v", err)
	}
	if !result.Allowed {
		t.Fatalf("Allowed = false with unlimited user ceiling (LimitHit = %s)", result.LimitHit)
	}
}

func TestUsageRepository_RecordGated_InvalidCount(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()
	win := window.CurrentStart(time.Now())

	if _, err := repos.Usage.RecordGated(ctx, "user_123", "acct_1", models.ActionCommentReply, win, 0, GateLimits{}); err == nil {
		t.Error("expected error for count = 0")
	}
	if _, err := repos.Usage.RecordGated(ctx, "user_123", "acct_1", models.ActionCommentReply, win, -1, GateLimits{}); err == nil {
		t.Error("expected error for negative count")
	}
}

func TestUsageRepository_RecordGated_Concurrent(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()
	win := window.CurrentStart(time.Now())

	limits := GateLimits{UserLimit: 10, AccountLimit: 200, AppLimit: 190000}

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := repos.Usage.RecordGated(ctx, "user_123", "acct_1", models.ActionCommentReply, win, 1, limits)
			if err != nil {
				return
			}
			if result.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	count, err := repos.Usage.GetCount(ctx, "user_123", models.SubjectUser, win)
	if err != nil {
		t.Fatalf("GetCount() error = %v", err)
	}
	if count > 10 {
		t.Errorf("user count = %d, exceeded ceiling of 10", count)
	}
	if count != allowed {
		t.Errorf("user count = %d, but %d calls reported allowed", count, allowed)
	}
}

func TestUsageRepository_Record_Unconditional(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()
	win := window.CurrentStart(time.Now())

	// Record never checks ceilings: the call already happened upstream.
	if err := repos.Usage.Record(ctx, "user_123", "acct_1", models.ActionProfileSync, win, 3); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := repos.Usage.Record(ctx, "user_123", "acct_1", models.ActionProfileSync, win, 2); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	count, err := repos.Usage.GetCount(ctx, "user_123", models.SubjectUser, win)
	if err != nil {
		t.Fatalf("GetCount() error = %v", err)
	}
	if count != 5 {
		t.Errorf("count = %d, want 5", count)
	}
}

func TestUsageRepository_WindowIsolation(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	now := time.Now()
	current := window.CurrentStart(now)
	next := window.NextStart(now)

	if err := repos.Usage.Record(ctx, "user_123", "acct_1", models.ActionCommentReply, current, 7); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	// The next window starts empty regardless of the current one.
	count, err := repos.Usage.GetCount(ctx, "user_123", models.SubjectUser, next)
	if err != nil {
		t.Fatalf("GetCount() error = %v", err)
	}
	if count != 0 {
		t.Errorf("next window count = %d, want 0", count)
	}

	result, err := repos.Usage.RecordGated(ctx, "user_123", "acct_1", models.ActionCommentReply, next, 1,
		GateLimits{UserLimit: 5, AccountLimit: 200, AppLimit: 190000})
	if err != nil {
		t.Fatalf("RecordGated() error = %v", err)
	}
	if !result.Allowed {
		t.Errorf("call in fresh window rejected (LimitHit = %s)", result.LimitHit)
	}
}

func TestUsageRepository_GetCountsByAction(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()
	win := window.CurrentStart(time.Now())

	if err := repos.Usage.Record(ctx, "user_123", "acct_1", models.ActionCommentReply, win, 4); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := repos.Usage.Record(ctx, "user_123", "acct_1", models.ActionDMReply, win, 2); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	counts, err := repos.Usage.GetCountsByAction(ctx, "user_123", models.SubjectUser, win)
	if err != nil {
		t.Fatalf("GetCountsByAction() error = %v", err)
	}
	if counts[models.ActionCommentReply] != 4 {
		t.Errorf("comment_reply = %d, want 4", counts[models.ActionCommentReply])
	}
	if counts[models.ActionDMReply] != 2 {
		t.Errorf("dm_reply = %d, want 2", counts[models.ActionDMReply])
	}
	if len(counts) != 2 {
		t.Errorf("len(counts) = %d, want 2", len(counts))
	}
}

func TestUsageRepository_GetSubjectHistory(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		win := base.Add(time.Duration(i) * time.Hour)
		if err := repos.Usage.Record(ctx, "user_123", "acct_1", models.ActionCommentReply, win, i+1); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	// [10:00, 12:00) excludes the 12:00 window.
	records, err := repos.Usage.GetSubjectHistory(ctx, "user_123", models.SubjectUser, base, base.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("GetSubjectHistory() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("len(records) = %d, want 2", len(records))
	}
	if !records[0].WindowStart.Equal(base) {
		t.Errorf("records[0].WindowStart = %v, want %v", records[0].WindowStart, base)
	}
	if records[1].CallCount != 2 {
		t.Errorf("records[1].CallCount = %d, want 2", records[1].CallCount)
	}
}

func TestUsageRepository_DeleteOlderThan(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	old := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	recent := window.CurrentStart(time.Now())

	if err := repos.Usage.Record(ctx, "user_123", "acct_1", models.ActionCommentReply, old, 1); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := repos.Usage.Record(ctx, "user_123", "acct_1", models.ActionCommentReply, recent, 1); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	deleted, err := repos.Usage.DeleteOlderThan(ctx, old.Add(time.Hour))
	if err != nil {
		t.Fatalf("DeleteOlderThan() error = %v", err)
	}
	if deleted != 3 { // user, account and app rows for the old window
		t.Errorf("deleted = %d, want 3", deleted)
	}

	count, err := repos.Usage.GetCount(ctx, "user_123", models.SubjectUser, recent)
	if err != nil {
		t.Fatalf("GetCount() error = %v", err)
	}
	if count != 1 {
		t.Errorf("recent count = %d, want 1", count)
	}
}

func TestUsageRepository_GetUserCounts(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()
	win := window.CurrentStart(time.Now())

	// Record writes user, account and app rows; GetUserCounts must only
	// pick up the user-subject ones.
	if err := repos.Usage.Record(ctx, "user_a", "acct_1", models.ActionCommentReply, win, 3); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := repos.Usage.Record(ctx, "user_a", "acct_1", models.ActionDMReply, win, 2); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := repos.Usage.Record(ctx, "user_b", "acct_2", models.ActionDMReply, win, 4); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	// A different window stays out of the result.
	if err := repos.Usage.Record(ctx, "user_a", "acct_1", models.ActionCommentReply, win.Add(-time.Hour), 9); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	counts, err := repos.Usage.GetUserCounts(ctx, win)
	if err != nil {
		t.Fatalf("GetUserCounts() error = %v", err)
	}
	if len(counts) != 2 {
		t.Fatalf("len(counts) = %d, want 2 (%v)", len(counts), counts)
	}
	if counts["user_a"] != 5 {
		t.Errorf("counts[user_a] = %d, want 5", counts["user_a"])
	}
	if counts["user_b"] != 4 {
		t.Errorf("counts[user_b] = %d, want 4", counts["user_b"])
	}
}
