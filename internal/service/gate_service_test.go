package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/ErGaurav155/ainspiretech-api/internal/constants"
	"github.com/ErGaurav155/ainspiretech-api/internal/models"
	"github.com/ErGaurav155/ainspiretech-api/internal/repository"
)

var commentPayload = json.RawMessage(`{"comment_id":"c1","message":"thanks!"}`)

func newTestGate(repos *repository.Repositories) (*GateService, *PauseService) {
	logger := testLogger()
	pauseSvc := NewPauseService(repos, logger)
	gateSvc := NewGateService(repos, pauseSvc, 0, logger)
	return gateSvc, pauseSvc
}

func setTier(t *testing.T, repos *repository.Repositories, userID, tier string) {
	t.Helper()
	now := time.Now().UTC()
	err := repos.Subscription.Upsert(context.Background(), &models.Subscription{
		ID:        ulid.Make().String(),
		UserID:    userID,
		Tier:      tier,
		Status:    "active",
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("failed to seed subscription: %v", err)
	}
}

func TestGateService_RecordCall_Allowed(t *testing.T) {
	repos := testRepos()
	gate, _ := newTestGate(repos)
	setTier(t, repos, "user_123", "starter")

	outcome, err := gate.RecordCall(context.Background(), "user_123", "acct_1", models.ActionCommentReply, commentPayload, 1)
	if err != nil {
		t.Fatalf("RecordCall() error = %v", err)
	}
	if !outcome.Allowed {
		t.Fatalf("Allowed = false, reason = %s", outcome.Reason)
	}
	if outcome.Queued {
		t.Error("Queued = true for an admitted call")
	}
	if outcome.UserCount != 1 {
		t.Errorf("UserCount = %d, want 1", outcome.UserCount)
	}
	if !outcome.WindowResets.After(outcome.WindowStart) {
		t.Error("WindowResets must be after WindowStart")
	}
}

func TestGateService_RecordCall_BatchCount(t *testing.T) {
	repos := testRepos()
	gate, _ := newTestGate(repos)
	setTier(t, repos, "user_123", "free") // 25 calls per hour

	ctx := context.Background()
	outcome, err := gate.RecordCall(ctx, "user_123", "acct_1", models.ActionCommentReply, commentPayload, 20)
	if err != nil {
		t.Fatalf("RecordCall() error = %v", err)
	}
	if !outcome.Allowed || outcome.UserCount != 20 {
		t.Fatalf("Allowed = %v, UserCount = %d, want admitted batch of 20", outcome.Allowed, outcome.UserCount)
	}

	// A batch that would cross the ceiling is deferred whole, not split.
	outcome, err = gate.RecordCall(ctx, "user_123", "acct_1", models.ActionCommentReply, commentPayload, 10)
	if err != nil {
		t.Fatalf("RecordCall() error = %v", err)
	}
	if outcome.Allowed {
		t.Fatal("batch crossing the tier limit was admitted")
	}
	if !outcome.Queued || outcome.Reason != models.DeferReasonUserLimit {
		t.Fatalf("Queued = %v, Reason = %s", outcome.Queued, outcome.Reason)
	}

	count, err := repos.Usage.GetCount(ctx, "user_123", models.SubjectUser, outcome.WindowStart)
	if err != nil {
		t.Fatalf("GetCount() error = %v", err)
	}
	if count != 20 {
		t.Errorf("counter = %d after deferred batch, want 20", count)
	}
}

func TestGateService_RecordCall_UserLimitDefers(t *testing.T) {
	repos := testRepos()
	gate, _ := newTestGate(repos)
	setTier(t, repos, "user_123", "free") // 25 calls per hour

	ctx := context.Background()
	for i := 0; i < constants.Tiers["free"].HourlyCallLimit; i++ {
		outcome, err := gate.RecordCall(ctx, "user_123", "acct_1", models.ActionCommentReply, commentPayload, 1)
		if err != nil {
			t.Fatalf("RecordCall() error = %v", err)
		}
		if !outcome.Allowed {
			t.Fatalf("call %d rejected early: %s", i+1, outcome.Reason)
		}
	}

	outcome, err := gate.RecordCall(ctx, "user_123", "acct_1", models.ActionCommentReply, commentPayload, 1)
	if err != nil {
		t.Fatalf("RecordCall() error = %v", err)
	}
	if outcome.Allowed {
		t.Fatal("call past the tier limit was admitted")
	}
	if !outcome.Queued {
		t.Fatal("rejected call was not queued")
	}
	if outcome.Reason != models.DeferReasonUserLimit {
		t.Errorf("Reason = %s, want user_limit", outcome.Reason)
	}
	if outcome.QueueItemID == "" {
		t.Error("QueueItemID not set")
	}
	if outcome.Message != constants.HourlyLimitMessage("free") {
		t.Errorf("Message = %q, want the free-tier limit message", outcome.Message)
	}

	item, err := repos.Queue.GetByID(ctx, outcome.QueueItemID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if item == nil {
		t.Fatal("queued item not found")
	}
	if item.Priority != constants.PriorityUserLimit {
		t.Errorf("Priority = %d, want %d", item.Priority, constants.PriorityUserLimit)
	}
}

func TestGateService_RecordCall_UnknownUserGetsFreeTier(t *testing.T) {
	repos := testRepos()
	gate, _ := newTestGate(repos)

	// No subscription row at all: the user is gated at the free tier.
	outcome, err := gate.RecordCall(context.Background(), "user_new", "acct_1", models.ActionCommentReply, commentPayload, 1)
	if err != nil {
		t.Fatalf("RecordCall() error = %v", err)
	}
	if !outcome.Allowed {
		t.Fatalf("first call for new user rejected: %s", outcome.Reason)
	}
}

func TestGateService_RecordCall_AppLimitPausesPlatform(t *testing.T) {
	repos := testRepos()
	logger := testLogger()
	pauseSvc := NewPauseService(repos, logger)
	gate := NewGateService(repos, pauseSvc, 3, logger) // tiny app ceiling
	setTier(t, repos, "user_123", "pro")               // unlimited user budget

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		outcome, err := gate.RecordCall(ctx, "user_123", "acct_1", models.ActionCommentReply, commentPayload, 1)
		if err != nil {
			t.Fatalf("RecordCall() error = %v", err)
		}
		if !outcome.Allowed {
			t.Fatalf("call %d rejected early: %s", i+1, outcome.Reason)
		}
	}

	outcome, err := gate.RecordCall(ctx, "user_123", "acct_1", models.ActionCommentReply, commentPayload, 1)
	if err != nil {
		t.Fatalf("RecordCall() error = %v", err)
	}
	if !outcome.Queued || outcome.Reason != models.DeferReasonAppLimit {
		t.Fatalf("outcome = %+v, want queued with app_limit", outcome)
	}

	// The platform pause was raised.
	state, err := pauseSvc.GetState(ctx, models.PauseScopeGlobal)
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if state == nil || !state.Paused {
		t.Fatal("global pause not raised on app limit")
	}
	if state.Reason != models.PauseReasonAppLimit {
		t.Errorf("Reason = %s, want app_limit", state.Reason)
	}
	if state.WindowStart == nil {
		t.Error("app limit pause missing its window")
	}

	// With the pause raised, anyone else's calls are rejected outright
	// rather than queued, and no counters move.
	setTier(t, repos, "user_other", "pro")
	outcome, err = gate.RecordCall(ctx, "user_other", "acct_2", models.ActionCommentReply, commentPayload, 1)
	if err != nil {
		t.Fatalf("RecordCall() error = %v", err)
	}
	if outcome.Queued || !outcome.Paused || outcome.Reason != models.DeferReasonPaused {
		t.Errorf("outcome = %+v, want a paused rejection", outcome)
	}
	count, err := repos.Usage.GetCount(ctx, "user_other", models.SubjectUser, outcome.WindowStart)
	if err != nil {
		t.Fatalf("GetCount() error = %v", err)
	}
	if count != 0 {
		t.Errorf("user_other count = %d, want 0", count)
	}
}

func TestGateService_RecordCall_PausedRejectsWithoutQueueing(t *testing.T) {
	repos := testRepos()
	gate, pauseSvc := newTestGate(repos)
	setTier(t, repos, "user_123", "growth")

	ctx := context.Background()
	if _, err := pauseSvc.ToggleUserAutomation(ctx, "user_123", "user_123", false); err != nil {
		t.Fatalf("ToggleUserAutomation() error = %v", err)
	}

	outcome, err := gate.RecordCall(ctx, "user_123", "acct_1", models.ActionCommentReply, commentPayload, 1)
	if err != nil {
		t.Fatalf("RecordCall() error = %v", err)
	}
	if outcome.Allowed {
		t.Fatal("paused user's call was admitted")
	}
	if outcome.Queued || outcome.QueueItemID != "" {
		t.Errorf("outcome = %+v, a paused call must not be queued", outcome)
	}
	if !outcome.Paused || outcome.Reason != models.DeferReasonPaused {
		t.Errorf("outcome = %+v, want paused rejection", outcome)
	}
	if outcome.PauseScope != "user_123" {
		t.Errorf("PauseScope = %q, want user_123", outcome.PauseScope)
	}

	// Neither counters nor the queue move while paused: a long pause must
	// not accumulate deferred calls.
	count, err := repos.Usage.GetCount(ctx, "user_123", models.SubjectUser, outcome.WindowStart)
	if err != nil {
		t.Fatalf("GetCount() error = %v", err)
	}
	if count != 0 {
		t.Errorf("user count = %d, want 0", count)
	}
	pending, err := repos.Queue.CountByStatus(ctx, models.QueueStatusPending)
	if err != nil {
		t.Fatalf("CountByStatus() error = %v", err)
	}
	if pending != 0 {
		t.Errorf("pending queue items = %d, want 0", pending)
	}
}

func TestGateService_RecordCall_InvalidInput(t *testing.T) {
	repos := testRepos()
	gate, _ := newTestGate(repos)
	ctx := context.Background()

	if _, err := gate.RecordCall(ctx, "user_123", "acct_1", "like_spam", commentPayload, 1); err == nil {
		t.Error("expected error for unknown action type")
	}
	if _, err := gate.RecordCall(ctx, "user_123", "acct_1", models.ActionCommentReply, json.RawMessage(`{"message":"hi"}`), 1); err == nil {
		t.Error("expected error for payload missing comment_id")
	}
}

func TestGateService_RecordCall_FailsClosed(t *testing.T) {
	repos := testRepos()
	gate, _ := newTestGate(repos)
	setTier(t, repos, "user_123", "starter")

	// Storage failure must surface as an error, never as an admitted call.
	repos.Usage.(*mockUsageRepository).forceErr = errors.New("disk io error")

	outcome, err := gate.RecordCall(context.Background(), "user_123", "acct_1", models.ActionCommentReply, commentPayload, 1)
	if err == nil {
		t.Fatalf("expected error, got outcome %+v", outcome)
	}
}

func TestGateService_QueueCall(t *testing.T) {
	repos := testRepos()
	gate, _ := newTestGate(repos)

	item, err := gate.QueueCall(context.Background(), "user_123", "acct_1", models.ActionDMReply,
		json.RawMessage(`{"recipient_id":"r1","message":"hello"}`), 0)
	if err != nil {
		t.Fatalf("QueueCall() error = %v", err)
	}
	if item.Status != models.QueueStatusPending {
		t.Errorf("Status = %s, want pending", item.Status)
	}
	if item.DeferReason != models.DeferReasonManual {
		t.Errorf("DeferReason = %s, want manual", item.DeferReason)
	}
	if item.Priority != constants.PriorityDefault {
		t.Errorf("Priority = %d, want %d", item.Priority, constants.PriorityDefault)
	}

	// An explicit priority overrides the default drain order.
	urgent, err := gate.QueueCall(context.Background(), "user_123", "acct_1", models.ActionDMReply,
		json.RawMessage(`{"recipient_id":"r1","message":"hello"}`), 2)
	if err != nil {
		t.Fatalf("QueueCall() error = %v", err)
	}
	if urgent.Priority != 2 {
		t.Errorf("Priority = %d, want 2", urgent.Priority)
	}
}

func TestGateService_CanMakeCall(t *testing.T) {
	repos := testRepos()
	gate, pauseSvc := newTestGate(repos)
	setTier(t, repos, "user_123", "free")
	ctx := context.Background()

	decision, err := gate.CanMakeCall(ctx, "user_123", "acct_1")
	if err != nil {
		t.Fatalf("CanMakeCall() error = %v", err)
	}
	if !decision.Allowed {
		t.Fatalf("Allowed = false, reason = %s", decision.Reason)
	}
	if decision.UserLimit != constants.Tiers["free"].HourlyCallLimit {
		t.Errorf("UserLimit = %d", decision.UserLimit)
	}
	if decision.Remaining != constants.Tiers["free"].HourlyCallLimit {
		t.Errorf("Remaining = %d, want full budget", decision.Remaining)
	}

	// The check is read-only: counters stay at zero.
	count, _ := repos.Usage.GetCount(ctx, "user_123", models.SubjectUser, decision.WindowResets.Add(-time.Hour))
	if count != 0 {
		t.Errorf("CanMakeCall recorded usage: count = %d", count)
	}

	// Exhaust the budget and check again.
	for i := 0; i < constants.Tiers["free"].HourlyCallLimit; i++ {
		if _, err := gate.RecordCall(ctx, "user_123", "acct_1", models.ActionCommentReply, commentPayload, 1); err != nil {
			t.Fatalf("RecordCall() error = %v", err)
		}
	}
	decision, err = gate.CanMakeCall(ctx, "user_123", "acct_1")
	if err != nil {
		t.Fatalf("CanMakeCall() error = %v", err)
	}
	if decision.Allowed {
		t.Fatal("Allowed = true at exhausted budget")
	}
	if decision.Reason != models.DeferReasonUserLimit {
		t.Errorf("Reason = %s, want user_limit", decision.Reason)
	}
	if decision.Remaining != 0 {
		t.Errorf("Remaining = %d at exhausted budget, want 0", decision.Remaining)
	}

	// A paused platform answers not-allowed without reading usage.
	if err := pauseSvc.PauseApp(ctx, "user_admin", time.Now()); err != nil {
		t.Fatalf("PauseApp() error = %v", err)
	}
	decision, err = gate.CanMakeCall(ctx, "user_123", "acct_1")
	if err != nil {
		t.Fatalf("CanMakeCall() error = %v", err)
	}
	if decision.Allowed || !decision.Paused {
		t.Errorf("decision = %+v, want paused", decision)
	}
}
