// Package api is the REST client for the NeoMind server. The live stream
// travels over the websocket transport; this client covers the boundary
// surfaces next to it: session management and pending-stream recovery.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"
)

// Client is an HTTP client for the NeoMind server API
type Client struct {
	baseURL    *url.URL
	token      string
	httpClient *http.Client
}

// ClientOption is a function for configuring the Client
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithToken sets the bearer token sent with every request
func WithToken(token string) ClientOption {
	return func(c *Client) {
		c.token = token
	}
}

// WithTimeout sets the HTTP client timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if c.httpClient == nil {
			c.httpClient = &http.Client{}
		}
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a new HTTP client for the NeoMind server
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	client := &Client{
		baseURL: parsedURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

// envelope is the server's uniform response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error,omitempty"`
}

// doRequest performs an HTTP request and decodes the response envelope
func (c *Client) doRequest(ctx context.Context, method, endpoint string, body, result any) error {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	u := *c.baseURL
	u.Path = path.Join(u.Path, endpoint)

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		if resp.StatusCode >= 400 {
			return fmt.Errorf("HTTP error %d: %s", resp.StatusCode, string(respBody))
		}
		return fmt.Errorf("unmarshaling response: %w", err)
	}

	if resp.StatusCode >= 400 || (!env.Success && env.Error != "") {
		if env.Error != "" {
			return fmt.Errorf("API error (%d): %s", resp.StatusCode, env.Error)
		}
		return fmt.Errorf("HTTP error %d: %s", resp.StatusCode, string(respBody))
	}

	if result != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, result); err != nil {
			return fmt.Errorf("unmarshaling response data: %w", err)
		}
	}

	return nil
}

// GetPendingStream queries the server for a response that was in flight
// when the connection dropped.
func (c *Client) GetPendingStream(ctx context.Context, sessionID string) (*PendingStream, error) {
	var pending PendingStream
	if err := c.doRequest(ctx, http.MethodGet, "/api/sessions/"+sessionID+"/pending", nil, &pending); err != nil {
		return nil, err
	}
	return &pending, nil
}

// ClearPendingStream asks the server to drop a pending response after the
// user chose to discard it.
func (c *Client) ClearPendingStream(ctx context.Context, sessionID string) error {
	return c.doRequest(ctx, http.MethodDelete, "/api/sessions/"+sessionID+"/pending", nil, nil)
}

// ListSessions lists the sessions known to the server.
func (c *Client) ListSessions(ctx context.Context) ([]Session, error) {
	var sessions []Session
	if err := c.doRequest(ctx, http.MethodGet, "/api/sessions", nil, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// CreateSession creates a new session and returns its id.
func (c *Client) CreateSession(ctx context.Context) (string, error) {
	var resp CreateSessionResponse
	if err := c.doRequest(ctx, http.MethodPost, "/api/sessions", nil, &resp); err != nil {
		return "", err
	}
	return resp.SessionID, nil
}

// DeleteSession deletes a session.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	return c.doRequest(ctx, http.MethodDelete, "/api/sessions/"+sessionID, nil, nil)
}
