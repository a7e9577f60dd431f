package signalcli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"syscall"
	"time"
)

const (
	defaultReadyTimeout = 30 * time.Second
	readyPollInterval   = 500 * time.Millisecond
	stopGracePeriod     = 5 * time.Second
)

// Supervisor owns the signal-cli daemon subprocess: it starts the
// daemon, waits for its HTTP API to come up, and guarantees the
// process is terminated on shutdown, escalating from SIGTERM to
// SIGKILL if the grace period expires.
type Supervisor struct {
	account      string
	httpAddr     string
	binPath      string
	readyTimeout time.Duration
	logger       *slog.Logger

	cmd    *exec.Cmd
	waitCh chan error
}

// SupervisorConfig configures the daemon supervisor.
type SupervisorConfig struct {
	Account      string
	HTTPAddr     string // local-only control address, e.g. "localhost:8080"
	BinPath      string // defaults to "signal-cli" on PATH
	ReadyTimeout time.Duration
	Logger       *slog.Logger
}

// NewSupervisor creates a supervisor for the given account.
func NewSupervisor(cfg SupervisorConfig) *Supervisor {
	if cfg.BinPath == "" {
		cfg.BinPath = "signal-cli"
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = defaultReadyTimeout
	}
	return &Supervisor{
		account:      cfg.Account,
		httpAddr:     cfg.HTTPAddr,
		binPath:      cfg.BinPath,
		readyTimeout: cfg.ReadyTimeout,
		logger:       cfg.Logger,
	}
}

// Start launches the daemon with receive-on-start and read receipts
// enabled, bound to the configured local control address.
func (s *Supervisor) Start() error {
	cmd := exec.Command(s.binPath,
		"-a", s.account,
		"daemon",
		"--http", s.httpAddr,
		"--receive-mode", "on-start",
		"--send-read-receipts",
	)
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr

	s.logger.Info("starting signal-cli daemon", "bin", s.binPath, "http", s.httpAddr)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start signal-cli: %w", err)
	}

	s.cmd = cmd
	s.waitCh = make(chan error, 1)
	go func() {
		s.waitCh <- cmd.Wait()
	}()
	return nil
}

// WaitReady polls the daemon health endpoint until it answers 200 or
// the ready timeout elapses. A timeout is fatal to the whole process:
// the bridge cannot run without the daemon.
func (s *Supervisor) WaitReady(ctx context.Context) error {
	client := &http.Client{Timeout: 2 * time.Second}
	url := "http://" + s.httpAddr + "/api/v1/check"
	deadline := time.Now().Add(s.readyTimeout)

	s.logger.Info("waiting for signal-cli to become ready")
	for time.Now().Before(deadline) {
		resp, err := client.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				s.logger.Info("signal-cli is ready")
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-s.waitCh:
			// Daemon died while we were polling.
			s.waitCh <- err
			return fmt.Errorf("signal-cli exited during startup: %v", err)
		case <-time.After(readyPollInterval):
		}
	}
	return fmt.Errorf("signal-cli did not become ready within %s", s.readyTimeout)
}

// Stop terminates the daemon: SIGTERM, then SIGKILL after the grace
// period. Safe to call regardless of why the process is shutting down;
// it must run on every exit path so no daemon is orphaned.
func (s *Supervisor) Stop() {
	if s.cmd == nil || s.cmd.Process == nil {
		return
	}

	s.logger.Info("terminating signal-cli")
	if err := s.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		// Already exited.
		return
	}

	select {
	case <-s.waitCh:
	case <-time.After(stopGracePeriod):
		s.logger.Warn("signal-cli did not exit, killing")
		_ = s.cmd.Process.Kill()
		<-s.waitCh
	}
}
