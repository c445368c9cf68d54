// Package client is a typed client for the pilot task API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/entrhq/pilot/pkg/orchestrator"
	"github.com/entrhq/pilot/pkg/types"
)

// DefaultBaseURL is where `pilot serve --api-only` listens by default.
const DefaultBaseURL = "http://127.0.0.1:7788"

// APIError is a {"success": false} or non-2xx answer from the server.
type APIError struct {
	StatusCode int
	Message    string
	// CurrentSession is set when a submit was refused because another task
	// is running.
	CurrentSession string
}

func (e *APIError) Error() string {
	if e.StatusCode >= 300 {
		return fmt.Sprintf("client: http %d: %s", e.StatusCode, e.Message)
	}
	return e.Message
}

// Client wraps REST access to the task API.
type Client struct {
	baseURL    *url.URL
	apiKey     string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default 30s-timeout client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a client for rawURL authenticating with apiKey.
func New(rawURL, apiKey string, opts ...Option) (*Client, error) {
	if rawURL == "" {
		rawURL = DefaultBaseURL
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("client: parse url: %w", err)
	}
	c := &Client{
		baseURL:    parsed,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the server address.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Submission is the answer to a successful submit.
type Submission struct {
	SessionID string `json:"session_id"`
	TaskID    string `json:"task_id"`
	Message   string `json:"message"`
}

type envelope struct {
	Success        *bool  `json:"success"`
	Error          string `json:"error"`
	Detail         string `json:"detail"`
	CurrentSession string `json:"current_session"`
}

// Health checks that the server is up.
func (c *Client) Health(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/healthcheck", nil, nil)
	if err != nil {
		return err
	}
	var out struct {
		Status string `json:"status"`
	}
	if err := c.do(req, &out); err != nil {
		return err
	}
	if out.Status != "ok" {
		return fmt.Errorf("client: unhealthy: %q", out.Status)
	}
	return nil
}

// Submit queues task. An empty sessionID lets the server pick one.
func (c *Client) Submit(ctx context.Context, task, sessionID string) (*Submission, error) {
	body := map[string]string{"task": task}
	if sessionID != "" {
		body["session_id"] = sessionID
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/execute-task", nil, body)
	if err != nil {
		return nil, err
	}
	var out Submission
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Status polls a session. A not_found answer is returned as a Status, not
// an error.
func (c *Client) Status(ctx context.Context, sessionID string, detailed, minimal bool) (*orchestrator.Status, error) {
	q := url.Values{}
	if detailed {
		q.Set("detailed", strconv.FormatBool(true))
	}
	if minimal {
		q.Set("minimal", strconv.FormatBool(true))
	}
	req, err := c.newRequest(ctx, http.MethodGet, "/task-status/"+sessionID, q, nil)
	if err != nil {
		return nil, err
	}
	var out orchestrator.Status
	if err := c.do(req, &out); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && out.Status == orchestrator.StatusNotFound {
			return &out, nil
		}
		return nil, err
	}
	return &out, nil
}

// Cancel stops the running task of sessionID.
func (c *Client) Cancel(ctx context.Context, sessionID string) (string, error) {
	return c.control(ctx, "/task-cancel/", sessionID)
}

// Pause holds the running task of sessionID before its next step.
func (c *Client) Pause(ctx context.Context, sessionID string) (string, error) {
	return c.control(ctx, "/task-pause/", sessionID)
}

// Resume releases a paused task.
func (c *Client) Resume(ctx context.Context, sessionID string) (string, error) {
	return c.control(ctx, "/task-resume/", sessionID)
}

// ChatHistory lists the tasks submitted to the server process.
func (c *Client) ChatHistory(ctx context.Context) ([]*types.Message, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/chat-history", nil, nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Messages []*types.Message `json:"messages"`
	}
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

func (c *Client) control(ctx context.Context, prefix, sessionID string) (string, error) {
	req, err := c.newRequest(ctx, http.MethodPost, prefix+sessionID, nil, nil)
	if err != nil {
		return "", err
	}
	var out struct {
		Message string `json:"message"`
	}
	if err := c.do(req, &out); err != nil {
		return "", err
	}
	return out.Message, nil
}

// Result fetches the artifacts of a finished session.
func (c *Client) Result(ctx context.Context, sessionID string) (*orchestrator.ResultBundle, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/task-result/"+sessionID, nil, nil)
	if err != nil {
		return nil, err
	}
	var out orchestrator.ResultBundle
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body any) (*http.Request, error) {
	resolved := c.baseURL.ResolveReference(&url.URL{Path: path, RawQuery: query.Encode()})
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, fmt.Errorf("client: encode body: %w", err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, resolved.String(), &buf)
	if err != nil {
		return nil, fmt.Errorf("client: new request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	return req, nil
}

// do decodes the response into out and turns error envelopes into
// *APIError. out is filled even when an *APIError is returned.
func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("client: do request: %w", err)
	}
	defer resp.Body.Close()

	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		if resp.StatusCode >= 300 {
			return &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		return fmt.Errorf("client: decode response: %w", err)
	}

	var env envelope
	_ = json.Unmarshal(raw, &env)
	if resp.StatusCode >= 300 {
		msg := env.Detail
		if msg == "" {
			msg = env.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("client: decode response: %w", err)
		}
	}
	if env.Success != nil && !*env.Success {
		msg := env.Error
		if msg == "" {
			if m, ok := out.(*orchestrator.Status); ok {
				msg = m.Message
			}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg, CurrentSession: env.CurrentSession}
	}
	return nil
}
