package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/Putra1906/MBC-CaptureTheFlag/internal/models"
)

// Client is a Go SDK for the CTF server API. Authentication is
// cookie-based: call Login once and the session cookie is carried on
// every later request through the client's cookie jar.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures the client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client. The client must carry a
// cookie jar or authenticated calls will fail.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the client timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a new CTF server client
func NewClient(baseURL string, opts ...Option) *Client {
	jar, _ := cookiejar.New(nil)
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Jar:     jar,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Identity holds the authenticated user returned by Login
type Identity struct {
	Username string `json:"username"`
	Name     string `json:"name"`
	Role     string `json:"role"`
}

// Challenge is the participant view of a challenge
type Challenge struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	Points      int    `json:"points"`
	Difficulty  string `json:"difficulty,omitempty"`
	Solved      bool   `json:"solved"`
	HintOffered bool   `json:"hint_offered"`
	HintPenalty int    `json:"hint_penalty,omitempty"`
}

// Board is the response of a challenge listing
type Board struct {
	Name       string      `json:"name"`
	Role       string      `json:"role"`
	Score      int         `json:"score"`
	Solved     []string    `json:"solved"`
	Challenges []Challenge `json:"challenges"`
}

// SubmitResult is the outcome of a flag submission
type SubmitResult struct {
	Status   string  `json:"status"`
	Points   int     `json:"points,omitempty"`
	Score    int     `json:"score"`
	Duration float64 `json:"duration_seconds,omitempty"`
}

// HintResult is the outcome of a hint request
type HintResult struct {
	Status   string `json:"status"`
	Hint     string `json:"hint,omitempty"`
	NewScore int    `json:"new_score"`
}

// Leaderboard is the ranked scoreboard plus the caller's own rank
type Leaderboard struct {
	Standings []models.Standing `json:"standings"`
	Rank      int               `json:"rank"`
	Total     int               `json:"total"`
}

// Login authenticates and stores the session cookie in the jar
func (c *Client) Login(ctx context.Context, username, password string) (*Identity, error) {
	body, err := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := c.doRequest(ctx, "POST", "/login", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	var result struct {
		Success bool      `json:"success"`
		Data    *Identity `json:"data"`
		Error   *apiError `json:"error"`
	}

	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if !result.Success {
		return nil, fmt.Errorf("API error: %s - %s", result.Error.Code, result.Error.Message)
	}

	return result.Data, nil
}

// Logout ends the current session
func (c *Client) Logout(ctx context.Context) error {
	resp, err := c.doRequest(ctx, "POST", "/logout", nil)
	if err != nil {
		return err
	}

	var result struct {
		Success bool      `json:"success"`
		Error   *apiError `json:"error"`
	}

	if err := json.Unmarshal(resp, &result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if !result.Success {
		return fmt.Errorf("API error: %s - %s", result.Error.Code, result.Error.Message)
	}

	return nil
}

// Challenges retrieves the challenge board for the logged-in user
func (c *Client) Challenges(ctx context.Context) (*Board, error) {
	resp, err := c.doRequest(ctx, "GET", "/flags", nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		Success bool      `json:"success"`
		Data    *Board    `json:"data"`
		Error   *apiError `json:"error"`
	}

	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if !result.Success {
		return nil, fmt.Errorf("API error: %s - %s", result.Error.Code, result.Error.Message)
	}

	return result.Data, nil
}

// Submit submits a flag for a challenge
func (c *Client) Submit(ctx context.Context, challengeID int, flag string) (*SubmitResult, error) {
	body, err := json.Marshal(map[string]string{"flag": flag})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := c.doRequest(ctx, "POST", fmt.Sprintf("/flags/%d/submit", challengeID), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	var result struct {
		Success bool          `json:"success"`
		Data    *SubmitResult `json:"data"`
		Error   *apiError     `json:"error"`
	}

	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if !result.Success {
		return nil, fmt.Errorf("API error: %s - %s", result.Error.Code, result.Error.Message)
	}

	return result.Data, nil
}

// Hint buys the hint for a challenge, charging its penalty on first use
func (c *Client) Hint(ctx context.Context, challengeID int) (*HintResult, error) {
	resp, err := c.doRequest(ctx, "POST", fmt.Sprintf("/api/get_hint/%d", challengeID), nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		Success bool        `json:"success"`
		Data    *HintResult `json:"data"`
		Error   *apiError   `json:"error"`
	}

	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if !result.Success {
		return nil, fmt.Errorf("API error: %s - %s", result.Error.Code, result.Error.Message)
	}

	return result.Data, nil
}

// ReportTime reports seconds of active work on a challenge and returns
// the accumulated total
func (c *Client) ReportTime(ctx context.Context, challengeID int, seconds float64) (float64, error) {
	body, err := json.Marshal(map[string]interface{}{
		"question_number": challengeID,
		"time_spent":      seconds,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := c.doRequest(ctx, "POST", "/api/update_time", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}

	var result struct {
		Success bool `json:"success"`
		Data    struct {
			Status       string  `json:"status"`
			TotalSeconds float64 `json:"total_seconds"`
		} `json:"data"`
		Error *apiError `json:"error"`
	}

	if err := json.Unmarshal(resp, &result); err != nil {
		return 0, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if !result.Success {
		return 0, fmt.Errorf("API error: %s - %s", result.Error.Code, result.Error.Message)
	}

	return result.Data.TotalSeconds, nil
}

// Leaderboard retrieves the ranked scoreboard
func (c *Client) Leaderboard(ctx context.Context) (*Leaderboard, error) {
	resp, err := c.doRequest(ctx, "GET", "/leaderboard", nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		Success bool         `json:"success"`
		Data    *Leaderboard `json:"data"`
		Error   *apiError    `json:"error"`
	}

	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if !result.Success {
		return nil, fmt.Errorf("API error: %s - %s", result.Error.Code, result.Error.Message)
	}

	return result.Data, nil
}

// Health checks if the service is healthy
func (c *Client) Health(ctx context.Context) error {
	_, err := c.doRequest(ctx, "GET", "/health", nil)
	return err
}

// doRequest performs an HTTP request
func (c *Client) doRequest(ctx context.Context, method, path string, body io.Reader) ([]byte, error) {
	url := c.baseURL + path

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}
