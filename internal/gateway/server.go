// Package gateway exposes the outbound send endpoint the agent uses
// to deliver replies and files to Signal recipients. It shares the
// allow-list and request id allocator with the inbound event loop but
// otherwise runs independently of it.
package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"signalbridge/internal/markdown"
	"signalbridge/internal/signalcli"
)

// maxSendBodySize bounds /send request bodies. Attachments arrive
// base64-encoded inline, so this is deliberately generous.
const maxSendBodySize = 32 << 20

// Server is the outbound gateway HTTP server.
type Server struct {
	addr    string
	allowed map[string]struct{}
	signal  *signalcli.Client
	logger  *slog.Logger
	server  *http.Server
}

// Config configures the gateway server.
type Config struct {
	Host           string
	Port           int
	AllowedNumbers []string
	Signal         *signalcli.Client
	Logger         *slog.Logger
}

// NewServer creates a gateway server.
func NewServer(cfg Config) *Server {
	allowed := make(map[string]struct{}, len(cfg.AllowedNumbers))
	for _, number := range cfg.AllowedNumbers {
		allowed[number] = struct{}{}
	}
	return &Server{
		addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		allowed: allowed,
		signal:  cfg.Signal,
		logger:  cfg.Logger,
	}
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /send", s.handleSend)

	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	s.logger.Info("outbound gateway started", "addr", s.addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(shutdownCtx)
	}()

	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

type sendRequest struct {
	Recipient          string  `json:"recipient"`
	Message            string  `json:"message"`
	Attachment         *string `json:"attachment"`
	AttachmentFilename string  `json:"attachmentFilename"`
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	log := s.logger.With("trace_id", uuid.NewString())

	body, err := io.ReadAll(io.LimitReader(r.Body, maxSendBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "cannot read request body")
		return
	}

	var req sendRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}

	if req.Recipient == "" {
		writeError(w, http.StatusBadRequest, "missing or invalid recipient")
		return
	}
	if _, ok := s.allowed[req.Recipient]; !ok {
		log.Warn("rejecting send to unauthorized recipient", "recipient", req.Recipient)
		writeError(w, http.StatusForbidden, "recipient not in allowed numbers")
		return
	}

	if req.Attachment != nil {
		s.sendWithAttachment(r.Context(), w, log, req)
		return
	}

	plain, spans := markdown.Convert(req.Message)
	id, err := s.signal.Send(r.Context(), req.Recipient, plain, markdown.EncodeSpans(spans))
	if err != nil {
		log.Error("gateway send failed", "err", err, "request_id", id)
		writeError(w, http.StatusBadGateway, "signal-cli failed to send message")
		return
	}

	log.Info("gateway message sent", "request_id", id, "styles", len(spans))
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// sendWithAttachment materializes the base64 payload into a scoped
// temp file, hands the path to the daemon, and removes the file on
// every exit path. Attachment messages are sent verbatim; markdown
// conversion only applies to text-only sends.
func (s *Server) sendWithAttachment(ctx context.Context, w http.ResponseWriter, log *slog.Logger, req sendRequest) {
	data, err := base64.StdEncoding.DecodeString(*req.Attachment)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid base64 attachment: %v", err))
		return
	}

	filename := req.AttachmentFilename
	if filename == "" {
		filename = "attachment.bin"
	}
	suffix := filepath.Ext(filename)
	if suffix == "" {
		suffix = ".bin"
	}

	tmp, err := os.CreateTemp("", "signalbridge-send-*"+suffix)
	if err != nil {
		log.Error("cannot create attachment temp file", "err", err)
		writeError(w, http.StatusInternalServerError, "cannot store attachment")
		return
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		log.Error("cannot write attachment temp file", "err", err)
		writeError(w, http.StatusInternalServerError, "cannot store attachment")
		return
	}
	tmp.Close()

	id, err := s.signal.SendAttachment(ctx, req.Recipient, req.Message, []string{tmpPath})
	if err != nil {
		log.Error("gateway attachment send failed", "err", err, "request_id", id)
		writeError(w, http.StatusBadGateway, "signal-cli failed to send message")
		return
	}

	log.Info("gateway attachment sent", "request_id", id, "filename", filename, "size", len(data))
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
