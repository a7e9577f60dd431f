// Package agent is the HTTP client for the backend conversational
// agent. The whole contract is one endpoint: POST /chat with the
// message (and optionally a voice note) and read back a reply string.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const defaultTimeout = 60 * time.Second

// Request is the agent chat payload. At least one of Message and
// Audio must be set.
type Request struct {
	Message          string `json:"message,omitempty"`
	Source           string `json:"source"`
	Sender           string `json:"sender"`
	Audio            string `json:"audio,omitempty"`            // base64
	AudioContentType string `json:"audioContentType,omitempty"`
}

// response uses a pointer so a body without a "response" member is
// distinguishable from an empty reply.
type response struct {
	Response *string `json:"response"`
}

// Client calls the agent's chat endpoint.
type Client struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

// Config configures the agent client.
type Config struct {
	URL     string // full endpoint, e.g. "http://app:3000/chat"
	Timeout time.Duration
	Logger  *slog.Logger
}

// NewClient creates an agent client with a pooled transport and a
// bounded request timeout.
func NewClient(cfg Config) *Client {
	return &Client{
		url:    cfg.URL,
		client: newHTTPClient(cfg.Timeout),
		logger: cfg.Logger,
	}
}

// Ask forwards a message to the agent and returns its reply. Any
// non-200 status or a body without a string "response" member is an
// error; the caller decides whether that turns into an apology reply.
func (c *Client) Ask(ctx context.Context, req Request) (string, error) {
	if req.Message == "" && req.Audio == "" {
		return "", fmt.Errorf("agent request needs a message or audio")
	}
	if req.Source == "" {
		req.Source = "signal"
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal agent request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build agent request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("agent request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("agent status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed response
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode agent response: %w", err)
	}
	if parsed.Response == nil {
		return "", fmt.Errorf("agent response missing response field")
	}

	c.logger.Debug("agent replied", "sender", req.Sender, "reply_len", len(*parsed.Response))
	return *parsed.Response, nil
}
