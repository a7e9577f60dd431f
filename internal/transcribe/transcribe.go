// Package transcribe calls an OpenAI-compatible speech-to-text API.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// Client handles speech-to-text transcription over the
// /audio/transcriptions multipart endpoint.
type Client struct {
	apiBase  string
	apiKey   string
	model    string
	language string
	accepted map[string]struct{}
	client   *http.Client
	logger   *slog.Logger
}

// Config configures the transcription client.
type Config struct {
	APIBase  string // e.g. "https://api.openai.com/v1"
	APIKey   string
	Model    string // e.g. "whisper-1"
	Language string // optional: ISO-639-1 language code
	// AcceptedTypes lists the audio MIME types the backend takes
	// directly; anything else is transcoded first.
	AcceptedTypes []string
	Logger        *slog.Logger
}

// defaultAcceptedTypes covers the formats the OpenAI transcription
// endpoint documents.
var defaultAcceptedTypes = []string{
	"audio/flac",
	"audio/mpeg",
	"audio/mp4",
	"audio/ogg",
	"audio/wav",
	"audio/x-wav",
	"audio/webm",
}

// NewClient creates a transcription client.
func NewClient(cfg Config) *Client {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "whisper-1"
	}
	types := cfg.AcceptedTypes
	if len(types) == 0 {
		types = defaultAcceptedTypes
	}
	accepted := make(map[string]struct{}, len(types))
	for _, t := range types {
		accepted[normalizeContentType(t)] = struct{}{}
	}
	return &Client{
		apiBase:  cfg.APIBase,
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		language: cfg.Language,
		accepted: accepted,
		client:   &http.Client{Timeout: 120 * time.Second},
		logger:   cfg.Logger,
	}
}

// Accepts reports whether the backend takes this content type
// directly, ignoring any parameters like codecs=opus.
func (c *Client) Accepts(contentType string) bool {
	_, ok := c.accepted[normalizeContentType(contentType)]
	return ok
}

func normalizeContentType(contentType string) string {
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = contentType[:i]
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}

type transcriptionResult struct {
	Text string `json:"text"`
}

// Transcribe uploads audio and returns the recognized text. The
// filename's extension tells the backend the container format, so it
// should match the actual encoding.
func (c *Client) Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, audio); err != nil {
		return "", fmt.Errorf("copy audio data: %w", err)
	}

	writer.WriteField("model", c.model)
	if c.language != "" {
		writer.WriteField("language", c.language)
	}
	writer.Close()

	url := c.apiBase + "/audio/transcriptions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcription request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("transcription API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var result transcriptionResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode transcription response: %w", err)
	}

	c.logger.Info("transcription complete", "text_len", len(result.Text))
	return result.Text, nil
}
