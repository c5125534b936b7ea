package service

import (
	"context"
	"testing"
	"time"
)

func TestSubscriptionService_ApplyUpdate(t *testing.T) {
	repos := testRepos()
	svc := NewSubscriptionService(repos, testLogger())
	ctx := context.Background()

	// Clerk plan slugs are normalized before storage.
	if err := svc.ApplyUpdate(ctx, "user_123", "tier_v1_growth", "active", nil); err != nil {
		t.Fatalf("ApplyUpdate() error = %v", err)
	}
	tier, err := svc.GetTier(ctx, "user_123")
	if err != nil {
		t.Fatalf("GetTier() error = %v", err)
	}
	if tier != "growth" {
		t.Errorf("tier = %q, want growth", tier)
	}

	// A later update replaces the plan.
	if err := svc.ApplyUpdate(ctx, "user_123", "starter", "active", nil); err != nil {
		t.Fatalf("ApplyUpdate() error = %v", err)
	}
	tier, _ = svc.GetTier(ctx, "user_123")
	if tier != "starter" {
		t.Errorf("tier = %q, want starter", tier)
	}
}

func TestSubscriptionService_ApplyUpdate_UnknownTier(t *testing.T) {
	repos := testRepos()
	svc := NewSubscriptionService(repos, testLogger())
	ctx := context.Background()

	if err := svc.ApplyUpdate(ctx, "user_123", "tier_v2_platinum", "active", nil); err != nil {
		t.Fatalf("ApplyUpdate() error = %v", err)
	}
	tier, _ := svc.GetTier(ctx, "user_123")
	if tier != "free" {
		t.Errorf("tier = %q, want free fallback", tier)
	}
}

func TestSubscriptionService_InactiveStatusFallsBackToFree(t *testing.T) {
	repos := testRepos()
	svc := NewSubscriptionService(repos, testLogger())
	ctx := context.Background()

	if err := svc.ApplyUpdate(ctx, "user_123", "pro", "past_due", nil); err != nil {
		t.Fatalf("ApplyUpdate() error = %v", err)
	}
	tier, _ := svc.GetTier(ctx, "user_123")
	if tier != "free" {
		t.Errorf("tier = %q, want free for past_due", tier)
	}
}

func TestSubscriptionService_ExpiredSubscriptionFallsBackToFree(t *testing.T) {
	repos := testRepos()
	svc := NewSubscriptionService(repos, testLogger())
	ctx := context.Background()

	expired := time.Now().Add(-24 * time.Hour)
	if err := svc.ApplyUpdate(ctx, "user_123", "growth", "active", &expired); err != nil {
		t.Fatalf("ApplyUpdate() error = %v", err)
	}
	tier, _ := svc.GetTier(ctx, "user_123")
	if tier != "free" {
		t.Errorf("tier = %q, want free after expiry", tier)
	}
}

func TestSubscriptionService_ApplyDeletion(t *testing.T) {
	repos := testRepos()
	svc := NewSubscriptionService(repos, testLogger())
	ctx := context.Background()

	if err := svc.ApplyUpdate(ctx, "user_123", "pro", "active", nil); err != nil {
		t.Fatalf("ApplyUpdate() error = %v", err)
	}
	if err := svc.ApplyDeletion(ctx, "user_123"); err != nil {
		t.Fatalf("ApplyDeletion() error = %v", err)
	}
	tier, err := svc.GetTier(ctx, "user_123")
	if err != nil {
		t.Fatalf("GetTier() error = %v", err)
	}
	if tier != "free" {
		t.Errorf("tier = %q, want free after deletion", tier)
	}

	if err := svc.ApplyUpdate(ctx, "", "pro", "active", nil); err == nil {
		t.Error("expected error for empty user id")
	}
}
