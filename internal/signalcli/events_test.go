package signalcli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func newTestClient(baseURL string) *Client {
	return NewClient(ClientConfig{BaseURL: baseURL, Logger: testLogger()})
}

func TestListen_DeliversReceiveEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/events" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: receive\n")
		fmt.Fprint(w, `data: {"envelope":{"sourceNumber":"+15550001111","dataMessage":{"message":"hello"}}}`+"\n")
		fmt.Fprint(w, "\n")
	}))
	defer server.Close()

	var got []Envelope
	err := newTestClient(server.URL).Listen(context.Background(), func(env Envelope) {
		got = append(got, env)
	})
	if !errors.Is(err, ErrStreamClosed) {
		t.Fatalf("expected ErrStreamClosed after server hangup, got %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 envelope, got %d", len(got))
	}
	if got[0].SourceNumber != "+15550001111" {
		t.Errorf("unexpected source %q", got[0].SourceNumber)
	}
	if got[0].DataMessage == nil || got[0].DataMessage.Message != "hello" {
		t.Errorf("unexpected data message %+v", got[0].DataMessage)
	}
}

func TestListen_MalformedFrameDoesNotTerminateStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// First frame has garbage data, second is well-formed. The
		// reader must drop the first and still deliver the second.
		fmt.Fprint(w, "event: receive\ndata: {not json\n\n")
		fmt.Fprint(w, "event: receive\ndata: {\"envelope\":{\"sourceNumber\":\"+2\"}}\n\n")
	}))
	defer server.Close()

	var got []Envelope
	err := newTestClient(server.URL).Listen(context.Background(), func(env Envelope) {
		got = append(got, env)
	})
	if !errors.Is(err, ErrStreamClosed) {
		t.Fatalf("expected ErrStreamClosed, got %v", err)
	}
	if len(got) != 1 || got[0].SourceNumber != "+2" {
		t.Fatalf("expected only the well-formed envelope, got %+v", got)
	}
}

func TestListen_IgnoresOtherEventTypes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "event: ping\ndata: {}\n\n")
		fmt.Fprint(w, "event: receive\ndata: {\"envelope\":{\"sourceNumber\":\"+3\"}}\n\n")
	}))
	defer server.Close()

	var got []Envelope
	_ = newTestClient(server.URL).Listen(context.Background(), func(env Envelope) {
		got = append(got, env)
	})
	if len(got) != 1 || got[0].SourceNumber != "+3" {
		t.Fatalf("expected only the receive envelope, got %+v", got)
	}
}

func TestListen_NonSuccessStatusFailsFast(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	err := newTestClient(server.URL).Listen(context.Background(), func(Envelope) {
		t.Error("handler must not be called")
	})
	if err == nil {
		t.Fatal("expected an error for non-200 stream response")
	}
	if errors.Is(err, ErrStreamClosed) {
		t.Errorf("status failure should not report a closed stream: %v", err)
	}
}

func TestListen_EmptyStreamIsFatal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 200 then immediate hangup.
	}))
	defer server.Close()

	err := newTestClient(server.URL).Listen(context.Background(), func(Envelope) {})
	if !errors.Is(err, ErrStreamClosed) {
		t.Fatalf("expected ErrStreamClosed, got %v", err)
	}
}

func TestParseFrame_DataWithoutReceiveType(t *testing.T) {
	c := newTestClient("http://localhost:0")
	if _, ok := c.parseFrame([]string{"data: {\"envelope\":{}}"}); ok {
		t.Error("frame without event type must be dropped")
	}
	if _, ok := c.parseFrame([]string{"event: receive"}); ok {
		t.Error("frame without data must be dropped")
	}
}
