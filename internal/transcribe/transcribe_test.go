package transcribe

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func TestAccepts(t *testing.T) {
	c := NewClient(Config{Logger: testLogger()})
	cases := []struct {
		contentType string
		want        bool
	}{
		{"audio/mpeg", true},
		{"audio/ogg", true},
		{"audio/ogg; codecs=opus", true},
		{"AUDIO/WAV", true},
		{"audio/aac", false},
		{"audio/amr", false},
		{"image/png", false},
	}
	for _, tc := range cases {
		if got := c.Accepts(tc.contentType); got != tc.want {
			t.Errorf("Accepts(%q) = %v, want %v", tc.contentType, got, tc.want)
		}
	}
}

func TestAccepts_CustomSet(t *testing.T) {
	c := NewClient(Config{AcceptedTypes: []string{"audio/aac"}, Logger: testLogger()})
	if !c.Accepts("audio/aac") {
		t.Error("custom type not accepted")
	}
	if c.Accepts("audio/mpeg") {
		t.Error("default type should not be accepted with a custom set")
	}
}

func TestTranscribe_BuildsMultipartUpload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			http.NotFound(w, r)
			return
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", auth)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		if model := r.FormValue("model"); model != "whisper-1" {
			t.Errorf("unexpected model %q", model)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		defer file.Close()
		if header.Filename != "note.mp3" {
			t.Errorf("unexpected filename %q", header.Filename)
		}
		fmt.Fprint(w, `{"text":"hello from audio"}`)
	}))
	defer server.Close()

	c := NewClient(Config{APIBase: server.URL, APIKey: "test-key", Logger: testLogger()})
	text, err := c.Transcribe(context.Background(), strings.NewReader("fake-audio-bytes"), "note.mp3")
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if text != "hello from audio" {
		t.Errorf("unexpected text %q", text)
	}
}

func TestTranscribe_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"bad audio"}`, http.StatusBadRequest)
	}))
	defer server.Close()

	c := NewClient(Config{APIBase: server.URL, APIKey: "k", Logger: testLogger()})
	if _, err := c.Transcribe(context.Background(), strings.NewReader("x"), "note.mp3"); err == nil {
		t.Fatal("expected error for 400 response")
	}
}

func TestTranscribe_LanguageFieldOptional(t *testing.T) {
	var sawLanguage string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseMultipartForm(1 << 20)
		sawLanguage = r.FormValue("language")
		fmt.Fprint(w, `{"text":"ok"}`)
	}))
	defer server.Close()

	c := NewClient(Config{APIBase: server.URL, APIKey: "k", Language: "de", Logger: testLogger()})
	if _, err := c.Transcribe(context.Background(), strings.NewReader("x"), "note.mp3"); err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if sawLanguage != "de" {
		t.Errorf("language field not sent: %q", sawLanguage)
	}
}
