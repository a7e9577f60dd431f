package signalcli

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

const defaultRPCTimeout = 10 * time.Second

// Client sends messages through the daemon's JSON-RPC endpoint and
// reads its event stream. Safe for concurrent use; the request id
// allocator it carries is the single shared id source for the whole
// process.
type Client struct {
	baseURL string
	ids     *RequestIDs
	rpc     *http.Client
	stream  *http.Client
	logger  *slog.Logger
}

// ClientConfig configures a daemon API client.
type ClientConfig struct {
	BaseURL string // e.g. "http://localhost:8080"
	IDs     *RequestIDs
	Logger  *slog.Logger
}

// NewClient creates a daemon API client. The RPC client has a short
// bounded timeout; the stream client has none because the event
// stream is expected to stay open for the process lifetime.
func NewClient(cfg ClientConfig) *Client {
	ids := cfg.IDs
	if ids == nil {
		ids = NewRequestIDs()
	}
	return &Client{
		baseURL: cfg.BaseURL,
		ids:     ids,
		rpc:     &http.Client{Timeout: defaultRPCTimeout},
		stream:  &http.Client{},
		logger:  cfg.Logger,
	}
}

// IDs exposes the shared request id allocator.
func (c *Client) IDs() *RequestIDs { return c.ids }

type rpcRequest struct {
	JSONRPC string     `json:"jsonrpc"`
	Method  string     `json:"method"`
	Params  sendParams `json:"params"`
	ID      int64      `json:"id"`
}

type sendParams struct {
	Recipient  []string `json:"recipient"`
	Message    string   `json:"message"`
	TextStyle  []string `json:"textStyle,omitempty"`
	Attachment []string `json:"attachment,omitempty"`
}

type rpcResponse struct {
	Error *rpcError `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Send sends a text message with optional style annotations (the
// "start:length:STYLE" wire form). Returns the request id used, which
// also appears in the logs of whoever triggered the send.
func (c *Client) Send(ctx context.Context, recipient, message string, styles []string) (int64, error) {
	return c.send(ctx, sendParams{
		Recipient: []string{recipient},
		Message:   message,
		TextStyle: styles,
	})
}

// SendAttachment sends a message with file attachments. The paths must
// be readable by the daemon process; no markdown conversion is applied
// to attachment messages.
func (c *Client) SendAttachment(ctx context.Context, recipient, message string, paths []string) (int64, error) {
	return c.send(ctx, sendParams{
		Recipient:  []string{recipient},
		Message:    message,
		Attachment: paths,
	})
}

func (c *Client) send(ctx context.Context, params sendParams) (int64, error) {
	id := c.ids.Next()
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  "send",
		Params:  params,
		ID:      id,
	})
	if err != nil {
		return id, fmt.Errorf("marshal rpc request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/rpc", bytes.NewReader(body))
	if err != nil {
		return id, fmt.Errorf("build rpc request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.rpc.Do(req)
	if err != nil {
		return id, fmt.Errorf("rpc send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return id, fmt.Errorf("rpc send status %d: %s", resp.StatusCode, string(respBody))
	}

	var result rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return id, fmt.Errorf("decode rpc response: %w", err)
	}
	if result.Error != nil {
		return id, fmt.Errorf("rpc send failed: %s (code %d)", result.Error.Message, result.Error.Code)
	}

	c.logger.Debug("message sent", "request_id", id, "recipient", params.Recipient)
	return id, nil
}
