package signalcli

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestWaitReady_SucceedsOnceHealthy(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/check" {
			http.NotFound(w, r)
			return
		}
		// Unhealthy for the first two polls.
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	s := NewSupervisor(SupervisorConfig{
		Account:      "+15550001111",
		HTTPAddr:     strings.TrimPrefix(server.URL, "http://"),
		ReadyTimeout: 10 * time.Second,
		Logger:       testLogger(),
	})
	if err := s.WaitReady(context.Background()); err != nil {
		t.Fatalf("expected ready, got %v", err)
	}
	if calls.Load() < 3 {
		t.Errorf("expected at least 3 polls, got %d", calls.Load())
	}
}

func TestWaitReady_TimesOut(t *testing.T) {
	s := NewSupervisor(SupervisorConfig{
		Account:      "+15550001111",
		HTTPAddr:     "localhost:1", // nothing listens here
		ReadyTimeout: 1200 * time.Millisecond,
		Logger:       testLogger(),
	})
	if err := s.WaitReady(context.Background()); err == nil {
		t.Fatal("expected startup timeout error")
	}
}

func TestWaitReady_ContextCancellation(t *testing.T) {
	s := NewSupervisor(SupervisorConfig{
		Account:      "+15550001111",
		HTTPAddr:     "localhost:1",
		ReadyTimeout: time.Minute,
		Logger:       testLogger(),
	})
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := s.WaitReady(ctx); err == nil {
		t.Fatal("expected context error")
	}
}

func TestStop_WithoutStartIsNoOp(t *testing.T) {
	s := NewSupervisor(SupervisorConfig{Account: "+1", HTTPAddr: "localhost:1", Logger: testLogger()})
	s.Stop() // must not panic
}
