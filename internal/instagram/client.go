// Package instagram is a minimal client for the Instagram Graph API,
// covering the calls the automation executor makes: comment replies,
// direct messages, follow-status checks and profile reads.
package instagram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ErGaurav155/ainspiretech-api/internal/models"
)

// ErrorType classifies Graph API failures so the drain loop can decide
// between retrying, requeueing and failing an item permanently.
type ErrorType string

const (
	ErrorTypeNetwork   ErrorType = "network"
	ErrorTypeRateLimit ErrorType = "rate_limit"
	ErrorTypeAuth      ErrorType = "auth"
	ErrorTypeNotFound  ErrorType = "not_found"
	ErrorTypeServer    ErrorType = "server_error"
	ErrorTypeUnknown   ErrorType = "unknown"
)

// Error represents a Graph API error response.
type Error struct {
	Type    ErrorType
	Message string
	Code    int
	Subcode int
}

func (e *Error) Error() string {
	return fmt.Sprintf("instagram %s error (code %d): %s", e.Type, e.Code, e.Message)
}

// Retryable reports whether the call may succeed on a later attempt.
// Auth and not-found errors are permanent for a given item.
func (e *Error) Retryable() bool {
	switch e.Type {
	case ErrorTypeNetwork, ErrorTypeRateLimit, ErrorTypeServer:
		return true
	}
	return false
}

// classify maps Graph error codes to a type. Codes 4, 17, 32 and 613 are
// Meta's throttling codes; 190 is an invalid or expired token.
func classify(code, subcode, httpStatus int) ErrorType {
	switch code {
	case 4, 17, 32, 613:
		return ErrorTypeRateLimit
	case 190:
		return ErrorTypeAuth
	case 100:
		return ErrorTypeNotFound
	}
	switch {
	case httpStatus == http.StatusUnauthorized || httpStatus == http.StatusForbidden:
		return ErrorTypeAuth
	case httpStatus == http.StatusNotFound:
		return ErrorTypeNotFound
	case httpStatus == http.StatusTooManyRequests:
		return ErrorTypeRateLimit
	case httpStatus >= 500:
		return ErrorTypeServer
	}
	return ErrorTypeUnknown
}

// Profile is the subset of account fields the sync action refreshes.
type Profile struct {
	ID             string         `json:"id"`
	Username       string         `json:"username"`
	Name           string         `json:"name"`
	FollowersCount models.FlexInt `json:"followers_count"`
	FollowsCount   models.FlexInt `json:"follows_count"`
	MediaCount     models.FlexInt `json:"media_count"`
}

// Client calls the Instagram Graph API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// NewClient creates a new Graph API client. baseURL is the versioned API
// root, e.g. https://graph.instagram.com/v21.0.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		logger:     logger.With("component", "instagram"),
	}
}

// ReplyToComment posts a reply under a comment.
func (c *Client) ReplyToComment(ctx context.Context, accessToken, commentID, message string) error {
	body := map[string]string{"message": message}
	return c.post(ctx, accessToken, fmt.Sprintf("/%s/replies", commentID), body)
}

// SendDM sends a direct message from the account to a recipient.
func (c *Client) SendDM(ctx context.Context, accessToken, igUserID, recipientID, message string) error {
	body := map[string]any{
		"recipient": map[string]string{"id": recipientID},
		"message":   map[string]string{"text": message},
	}
	return c.post(ctx, accessToken, fmt.Sprintf("/%s/messages", igUserID), body)
}

// ReplyToStory answers a story mention. The Graph API delivers these
// through the messaging endpoint with the story ID as the recipient thread.
func (c *Client) ReplyToStory(ctx context.Context, accessToken, igUserID, storyID, message string) error {
	body := map[string]any{
		"recipient": map[string]string{"id": storyID},
		"message":   map[string]string{"text": message},
	}
	return c.post(ctx, accessToken, fmt.Sprintf("/%s/messages", igUserID), body)
}

// CheckFollowStatus reports whether the messaging contact identified by
// igsid follows the business account. Only valid for users who have an
// existing conversation with the account.
func (c *Client) CheckFollowStatus(ctx context.Context, accessToken, igsid string) (bool, error) {
	q := url.Values{}
	q.Set("fields", "is_user_follow_business")
	q.Set("access_token", accessToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/%s?%s", c.baseURL, igsid, q.Encode()), nil)
	if err != nil {
		return false, fmt.Errorf("failed to build follow status request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, &Error{Type: ErrorTypeNetwork, Message: err.Error()}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return false, fmt.Errorf("failed to read follow status response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return false, c.apiError(resp.StatusCode, data)
	}

	var out struct {
		IsUserFollowBusiness bool `json:"is_user_follow_business"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return false, fmt.Errorf("failed to decode follow status response: %w", err)
	}
	return out.IsUserFollowBusiness, nil
}

// GetProfile fetches the account's current profile fields.
func (c *Client) GetProfile(ctx context.Context, accessToken, igUserID string, fields []string) (*Profile, error) {
	if len(fields) == 0 {
		fields = []string{"id", "username", "name", "followers_count", "follows_count", "media_count"}
	}

	q := url.Values{}
	q.Set("fields", strings.Join(fields, ","))
	q.Set("access_token", accessToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/%s?%s", c.baseURL, igUserID, q.Encode()), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build profile request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Type: ErrorTypeNetwork, Message: err.Error()}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read profile response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, c.apiError(resp.StatusCode, data)
	}

	var profile Profile
	if err := json.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("failed to decode profile response: %w", err)
	}
	return &profile, nil
}

func (c *Client) post(ctx context.Context, accessToken, path string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Type: ErrorTypeNetwork, Message: err.Error()}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	c.logger.Debug("graph api call",
		"path", path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode != http.StatusOK {
		return c.apiError(resp.StatusCode, data)
	}
	return nil
}

// graphErrorEnvelope is the standard Graph API error wrapper.
type graphErrorEnvelope struct {
	Error struct {
		Message string         `json:"message"`
		Type    string         `json:"type"`
		Code    models.FlexInt `json:"code"`
		Subcode models.FlexInt `json:"error_subcode"`
		TraceID string         `json:"fbtrace_id"`
	} `json:"error"`
}

func (c *Client) apiError(httpStatus int, body []byte) *Error {
	var envelope graphErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return &Error{
			Type:    classify(0, 0, httpStatus),
			Message: fmt.Sprintf("http %d: %s", httpStatus, truncate(string(body), 200)),
		}
	}

	code := int(envelope.Error.Code)
	subcode := int(envelope.Error.Subcode)
	return &Error{
		Type:    classify(code, subcode, httpStatus),
		Message: envelope.Error.Message,
		Code:    code,
		Subcode: subcode,
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
