// Package auth verifies Clerk session tokens and talks to the Clerk
// Backend API for billing plan and subscription reads.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const clerkAPIBaseURL = "https://api.clerk.com/v1"

// ClerkBackendClient calls Clerk's Backend API. It covers the two reads
// this service needs: the plan catalogue and a user's subscription.
type ClerkBackendClient struct {
	secretKey  string
	baseURL    string
	httpClient *http.Client
}

// NewClerkBackendClient creates a new Clerk Backend API client.
func NewClerkBackendClient(secretKey string) *ClerkBackendClient {
	return &ClerkBackendClient{
		secretKey: secretKey,
		baseURL:   clerkAPIBaseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SubscriptionProduct is a Clerk billing plan. The slug doubles as the
// tier name.
type SubscriptionProduct struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Slug            string `json:"slug"`
	IsDefault       bool   `json:"is_default"`
	PubliclyVisible bool   `json:"publicly_visible"`
}

// UserSubscription is a user's current Clerk Commerce subscription.
type UserSubscription struct {
	ID                 string `json:"id"`
	PlanID             string `json:"plan_id"`
	PlanSlug           string `json:"plan_slug"`
	Status             string `json:"status"` // active, canceled, past_due, ...
	CurrentPeriodStart int64  `json:"current_period_start"` // Unix ms
	CurrentPeriodEnd   int64  `json:"current_period_end"`   // Unix ms
}

// get issues an authenticated GET and decodes the body into out. A 404 is
// reported as (false, nil) so callers can treat missing resources as nil.
func (c *ClerkBackendClient) get(ctx context.Context, path string, out any) (bool, error) {
	if c.secretKey == "" {
		return false, fmt.Errorf("clerk secret key not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to call clerk API: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return false, fmt.Errorf("clerk API returned status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("failed to decode response: %w", err)
	}
	return true, nil
}

// ListSubscriptionProducts fetches the billing plan catalogue. Plan slugs
// map onto subscription tiers.
func (c *ClerkBackendClient) ListSubscriptionProducts(ctx context.Context) ([]SubscriptionProduct, error) {
	var result struct {
		Data []SubscriptionProduct `json:"data"`
	}
	if _, err := c.get(ctx, "/billing/plans", &result); err != nil {
		return nil, fmt.Errorf("failed to fetch plans: %w", err)
	}
	return result.Data, nil
}

// clerkSubscriptionResponse is the raw user subscription shape: the plan
// hangs off subscription_items rather than the top level.
type clerkSubscriptionResponse struct {
	ID                string `json:"id"`
	Status            string `json:"status"`
	SubscriptionItems []struct {
		PeriodStart int64 `json:"period_start"`
		PeriodEnd   int64 `json:"period_end"`
		Plan        struct {
			ID   string `json:"id"`
			Slug string `json:"slug"`
		} `json:"plan"`
	} `json:"subscription_items"`
}

// GetUserSubscription fetches a user's current subscription. Returns nil
// when the user has none.
func (c *ClerkBackendClient) GetUserSubscription(ctx context.Context, userID string) (*UserSubscription, error) {
	if userID == "" {
		return nil, fmt.Errorf("user ID is required")
	}

	var result clerkSubscriptionResponse
	found, err := c.get(ctx, "/users/"+userID+"/billing/subscription", &result)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch subscription: %w", err)
	}
	if !found {
		return nil, nil
	}

	sub := &UserSubscription{
		ID:     result.ID,
		Status: result.Status,
	}
	if len(result.SubscriptionItems) > 0 {
		item := result.SubscriptionItems[0]
		sub.PlanID = item.Plan.ID
		sub.PlanSlug = item.Plan.Slug
		sub.CurrentPeriodStart = item.PeriodStart
		sub.CurrentPeriodEnd = item.PeriodEnd
	}
	return sub, nil
}
