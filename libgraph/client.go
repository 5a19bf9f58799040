// Package libgraph is a thin authenticated client for the Microsoft
// Graph REST API. It attaches a bearer token to each request and converts
// non-2xx responses into descriptive errors; token acquisition lives in
// internal/auth.
package libgraph

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// GraphBaseURL is the base URL for Microsoft Graph API v1.0.
const GraphBaseURL = "https://graph.microsoft.com/v1.0"

// maxErrorBody bounds how much of an error response body is carried into
// the error message.
const maxErrorBody = 512

// APIError is a non-2xx response from the Graph API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("graph request failed with status %d: %s", e.StatusCode, e.Body)
}

// Client is an authenticated Microsoft Graph client.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	accessToken string
}

// NewClient creates a Graph client using the given bearer token.
func NewClient(accessToken string) *Client {
	return &Client{
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		baseURL:     GraphBaseURL,
		accessToken: accessToken,
	}
}

// SetBaseURL overrides the Graph endpoint (tests).
func (c *Client) SetBaseURL(baseURL string) {
	c.baseURL = baseURL
}

// Get performs an authenticated GET against the Graph API. rawURL may be
// a path relative to the base URL or an absolute URL (paging next-links).
func (c *Client) Get(ctx context.Context, rawURL string) ([]byte, error) {
	u := rawURL
	if len(u) == 0 || u[0] == '/' {
		u = c.baseURL + u
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: truncate(string(body), maxErrorBody)}
	}

	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
