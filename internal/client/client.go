// Package client is a Go consumer of the chaiii HTTP API plus the polling
// watchers that drive the employee and admin live views.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/tilakp839-oss/chaiii/internal/model"
	"github.com/tilakp839-oss/chaiii/internal/store"
)

// APIError carries the status code and message of a failed API call.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// Client is a typed HTTP client for the chaiii API.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the API rooted at baseURL (no trailing slash).
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// do issues a request and decodes the JSON response into out (may be nil).
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request payload: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal(data, &apiErr); err != nil || apiErr.Error == "" {
			apiErr.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: apiErr.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

// Init ensures the admin identity exists and returns it.
func (c *Client) Init(ctx context.Context) (model.User, error) {
	var user model.User
	err := c.do(ctx, http.MethodPost, "/api/init", nil, &user)
	return user, err
}

// Login authenticates by employee code; employees pass a name on first login.
func (c *Client) Login(ctx context.Context, employeeID, name, role string) (model.User, error) {
	req := map[string]string{"employeeId": employeeID, "name": name, "role": role}
	var user model.User
	err := c.do(ctx, http.MethodPost, "/api/auth/login", req, &user)
	return user, err
}

// Users lists all users.
func (c *Client) Users(ctx context.Context) ([]model.User, error) {
	var users []model.User
	err := c.do(ctx, http.MethodGet, "/api/users", nil, &users)
	return users, err
}

// Sessions lists all sessions, most recent first.
func (c *Client) Sessions(ctx context.Context) ([]model.Session, error) {
	var sessions []model.Session
	err := c.do(ctx, http.MethodGet, "/api/sessions", nil, &sessions)
	return sessions, err
}

// ActiveSession returns the active session or nil. When userID is set the
// server applies its role policy: non-admin identities always get nil.
func (c *Client) ActiveSession(ctx context.Context, userID *int64) (*model.Session, error) {
	path := "/api/sessions/active"
	if userID != nil {
		path += "?userId=" + strconv.FormatInt(*userID, 10)
	}
	var session *model.Session
	err := c.do(ctx, http.MethodGet, path, nil, &session)
	return session, err
}

// StartSession opens a new voting session on behalf of the admin.
func (c *Client) StartSession(ctx context.Context, userID int64) (model.Session, error) {
	var session model.Session
	err := c.do(ctx, http.MethodPost, "/api/sessions/start", map[string]int64{"userId": userID}, &session)
	return session, err
}

// EndSession marks a session inactive.
func (c *Client) EndSession(ctx context.Context, sessionID int64) (model.Session, error) {
	var session model.Session
	path := fmt.Sprintf("/api/sessions/%d/end", sessionID)
	err := c.do(ctx, http.MethodPost, path, nil, &session)
	return session, err
}

// CastVote records one user's choice in a session.
func (c *Client) CastVote(ctx context.Context, sessionID, userID int64, userName, voteType string) (model.Vote, error) {
	req := map[string]any{
		"sessionId": sessionID,
		"userId":    userID,
		"userName":  userName,
		"type":      voteType,
	}
	var vote model.Vote
	err := c.do(ctx, http.MethodPost, "/api/votes", req, &vote)
	return vote, err
}

// VotesForSession lists the votes recorded in one session.
func (c *Client) VotesForSession(ctx context.Context, sessionID int64) ([]model.Vote, error) {
	var votes []model.Vote
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/votes/session/%d", sessionID), nil, &votes)
	return votes, err
}

// Stats returns the aggregate tallies across all votes.
func (c *Client) Stats(ctx context.Context) (store.VoteStats, error) {
	var stats store.VoteStats
	err := c.do(ctx, http.MethodGet, "/api/stats", nil, &stats)
	return stats, err
}
