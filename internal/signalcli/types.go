// Package signalcli talks to a signal-cli daemon over its local HTTP
// API: process lifecycle, the JSON-RPC send endpoint, and the
// server-sent-events receive stream.
package signalcli

// Envelope is the daemon's wrapper around one inbound message event.
// Events without a DataMessage (receipts, typing indicators, sync
// messages) carry a nil DataMessage and are skipped by the bridge.
type Envelope struct {
	SourceNumber string       `json:"sourceNumber"`
	SourceName   string       `json:"sourceName,omitempty"`
	Timestamp    int64        `json:"timestamp,omitempty"`
	DataMessage  *DataMessage `json:"dataMessage,omitempty"`
}

// DataMessage is the user-visible part of an envelope: optional text
// plus any attachments the daemon has materialized on disk.
type DataMessage struct {
	Message     string       `json:"message,omitempty"`
	Timestamp   int64        `json:"timestamp,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment identifies a file the daemon stored in its attachments
// directory under the attachment id.
type Attachment struct {
	ID          string `json:"id"`
	ContentType string `json:"contentType"`
	Filename    string `json:"filename,omitempty"`
	Size        int64  `json:"size,omitempty"`
}

// receiveEvent is the JSON payload of an SSE "receive" frame.
type receiveEvent struct {
	Envelope Envelope `json:"envelope"`
	Account  string   `json:"account,omitempty"`
}
