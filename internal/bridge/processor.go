// Package bridge ties the pieces together: for every inbound envelope
// it authorizes the sender, turns voice notes into text, asks the
// agent, and dispatches the reply back through the daemon.
package bridge

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"signalbridge/internal/agent"
	"signalbridge/internal/audio"
	"signalbridge/internal/markdown"
	"signalbridge/internal/signalcli"
	"signalbridge/internal/transcribe"
)

// Reply modes. In direct mode the bridge converts the agent's
// markdown reply and sends it itself. In agent mode the agent delivers
// its own replies through the outbound gateway, so the bridge only
// forwards inbound messages.
const (
	ReplyModeDirect = "direct"
	ReplyModeAgent  = "agent"
)

// apologyReply is the only error text a Signal recipient ever sees.
// Internal error detail stays in the logs.
const apologyReply = "Sorry, something went wrong while processing your message. Please try again."

// Processor handles decoded envelopes one at a time on the event loop
// goroutine. It never returns an error: every per-message failure is
// logged and resolved here so the stream reader keeps running.
type Processor struct {
	allowed        map[string]struct{}
	replyMode      string
	forwardAudio   bool
	attachmentsDir string
	agent          *agent.Client
	signal         *signalcli.Client
	transcriber    *transcribe.Client
	transcoder     *audio.Transcoder
	logger         *slog.Logger
}

// ProcessorConfig configures the message processor.
type ProcessorConfig struct {
	AllowedNumbers []string
	ReplyMode      string // ReplyModeDirect or ReplyModeAgent
	// ForwardAudio forwards the raw voice note (base64) to the agent
	// when no transcriber is configured.
	ForwardAudio   bool
	AttachmentsDir string
	Agent          *agent.Client
	Signal         *signalcli.Client
	Transcriber    *transcribe.Client // nil when transcription is not configured
	Transcoder     *audio.Transcoder
	Logger         *slog.Logger
}

// NewProcessor creates a processor. The allow-list is frozen here and
// never changes for the process lifetime.
func NewProcessor(cfg ProcessorConfig) *Processor {
	allowed := make(map[string]struct{}, len(cfg.AllowedNumbers))
	for _, number := range cfg.AllowedNumbers {
		allowed[number] = struct{}{}
	}
	if cfg.ReplyMode == "" {
		cfg.ReplyMode = ReplyModeDirect
	}
	return &Processor{
		allowed:        allowed,
		replyMode:      cfg.ReplyMode,
		forwardAudio:   cfg.ForwardAudio,
		attachmentsDir: cfg.AttachmentsDir,
		agent:          cfg.Agent,
		signal:         cfg.Signal,
		transcriber:    cfg.Transcriber,
		transcoder:     cfg.Transcoder,
		logger:         cfg.Logger,
	}
}

// Handle processes one envelope. Authorization is checked immediately
// after confirming a data message exists, before any attachment or
// transcription work.
func (p *Processor) Handle(ctx context.Context, env signalcli.Envelope) {
	log := p.logger.With("trace_id", uuid.NewString(), "source", env.SourceNumber)

	if env.DataMessage == nil {
		log.Debug("no data message in envelope, skipping")
		return
	}
	if _, ok := p.allowed[env.SourceNumber]; !ok {
		log.Warn("ignoring message from unauthorized number")
		return
	}

	text := env.DataMessage.Message
	req := agent.Request{Source: "signal", Sender: env.SourceNumber}

	if att := firstAudioAttachment(env.DataMessage.Attachments); att != nil {
		p.processVoiceNote(ctx, log, att, &text, &req)
	}

	if text == "" && req.Audio == "" {
		log.Debug("no message text or audio, skipping")
		return
	}
	req.Message = text

	log.Info("forwarding message to agent", "text_len", len(text), "audio", req.Audio != "")
	reply, err := p.agent.Ask(ctx, req)
	if err != nil {
		log.Error("agent call failed", "err", err)
		p.sendApology(ctx, log, env.SourceNumber)
		return
	}

	if p.replyMode == ReplyModeAgent {
		// The agent delivers its own reply through the gateway.
		log.Info("agent response received", "reply_len", len(reply))
		return
	}

	if strings.TrimSpace(reply) == "" {
		log.Info("empty agent reply, nothing to send")
		return
	}

	plain, spans := markdown.Convert(reply)
	id, err := p.signal.Send(ctx, env.SourceNumber, plain, markdown.EncodeSpans(spans))
	if err != nil {
		log.Error("reply send failed", "err", err, "request_id", id)
		p.sendApology(ctx, log, env.SourceNumber)
		return
	}
	log.Info("reply sent", "request_id", id, "reply_len", len(plain), "styles", len(spans))
}

// firstAudioAttachment returns the first attachment with an audio/*
// content type; additional voice notes in the same message are
// ignored.
func firstAudioAttachment(attachments []signalcli.Attachment) *signalcli.Attachment {
	for i := range attachments {
		if strings.HasPrefix(attachments[i].ContentType, "audio/") && attachments[i].ID != "" {
			return &attachments[i]
		}
	}
	return nil
}

// processVoiceNote resolves the attachment file and either transcribes
// it into the message text or forwards it to the agent as base64.
// Failures are logged and the attachment is skipped; processing
// continues with whatever text remains.
func (p *Processor) processVoiceNote(ctx context.Context, log *slog.Logger, att *signalcli.Attachment, text *string, req *agent.Request) {
	log = log.With("attachment_id", att.ID, "content_type", att.ContentType)

	path := filepath.Join(p.attachmentsDir, att.ID)
	if _, err := os.Stat(path); err != nil {
		log.Warn("attachment file not found, skipping", "path", path, "err", err)
		return
	}

	switch {
	case p.transcriber != nil:
		transcript, err := p.transcribeFile(ctx, att.ContentType, path)
		if err != nil {
			log.Warn("voice note transcription failed, skipping attachment", "err", err)
			return
		}
		note := "[Voice note]: " + transcript
		if *text == "" {
			*text = note
		} else {
			*text = *text + "\n\n" + note
		}
		log.Info("voice note transcribed", "transcript_len", len(transcript))

	case p.forwardAudio:
		data, err := os.ReadFile(path)
		if err != nil {
			log.Warn("reading voice note failed, skipping attachment", "err", err)
			return
		}
		req.Audio = base64.StdEncoding.EncodeToString(data)
		req.AudioContentType = att.ContentType
		log.Info("forwarding voice note to agent", "size", len(data))

	default:
		log.Debug("transcription not configured, skipping attachment")
	}
}

// transcribeFile runs the attachment through the transcription
// backend, transcoding first when the backend does not take the
// content type directly.
func (p *Processor) transcribeFile(ctx context.Context, contentType, path string) (string, error) {
	filename := "voice-note" + extensionFor(contentType)

	if !p.transcriber.Accepts(contentType) {
		if p.transcoder == nil {
			return "", fmt.Errorf("content type %s not accepted and no transcoder configured", contentType)
		}
		converted, err := p.transcoder.Transcode(ctx, path, "mp3")
		if err != nil {
			return "", fmt.Errorf("transcode: %w", err)
		}
		defer os.Remove(converted)
		path = converted
		filename = "voice-note.mp3"
	}

	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open audio: %w", err)
	}
	defer file.Close()

	return p.transcriber.Transcribe(ctx, file, filename)
}

// extensionFor maps the audio content types Signal produces to file
// extensions the transcription backend recognizes.
func extensionFor(contentType string) string {
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = contentType[:i]
	}
	switch strings.ToLower(strings.TrimSpace(contentType)) {
	case "audio/mpeg":
		return ".mp3"
	case "audio/mp4", "audio/aac":
		return ".m4a"
	case "audio/ogg":
		return ".ogg"
	case "audio/wav", "audio/x-wav":
		return ".wav"
	case "audio/flac":
		return ".flac"
	case "audio/webm":
		return ".webm"
	default:
		return ".bin"
	}
}

func (p *Processor) sendApology(ctx context.Context, log *slog.Logger, recipient string) {
	id, err := p.signal.Send(ctx, recipient, apologyReply, nil)
	if err != nil {
		log.Error("apology send failed", "err", err, "request_id", id)
		return
	}
	log.Info("apology sent", "request_id", id)
}
