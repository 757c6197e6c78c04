// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package local

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/assistant-core/internal/config"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrUnavailable is returned by Complete while the server is not up.
	ErrUnavailable = errors.New("local model unavailable")

	// ErrArtifactMissing indicates the model artifact is not on disk.
	ErrArtifactMissing = errors.New("model artifact not found")

	// ErrBinaryMissing indicates no runnable server binary could be found
	// or downloaded.
	ErrBinaryMissing = errors.New("inference server binary not found")
)

// =============================================================================
// STATE MACHINE
// =============================================================================

// State is the lifecycle state of the local inference server.
type State int

const (
	// StateUninitialized means EnsureAvailable has not run yet.
	StateUninitialized State = iota
	// StateChecking means artifact/binary verification is in progress.
	StateChecking
	// StateAvailable means the server answered its health probe.
	StateAvailable
	// StateUnavailable means the check failed or the process exited.
	// Non-retrying within the session.
	StateUnavailable
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "Uninitialized"
	case StateChecking:
		return "Checking"
	case StateAvailable:
		return "Available"
	case StateUnavailable:
		return "Unavailable"
	default:
		return fmt.Sprintf("State(%d)", s)
	}
}

// =============================================================================
// MANAGER
// =============================================================================

// Completion is the result of one local inference call.
type Completion struct {
	Content    string `json:"content"`
	TokensUsed int    `json:"tokens_used"`
}

// completionRequest is the local server's completion request body.
type completionRequest struct {
	Prompt      string  `json:"prompt"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

// Manager owns the local inference server subprocess.
// Only the Manager transitions the handle's state; callers read
// availability snapshots.
type Manager struct {
	cfg config.LocalConfig
	log *zap.Logger

	mu      sync.Mutex
	state   State
	cmd     *exec.Cmd
	lastErr error

	// baseURL is derived from the configured port; tests override it.
	baseURL    string
	httpClient *http.Client
}

// NewManager creates a lifecycle manager for the configured local server.
func NewManager(cfg config.LocalConfig, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		cfg:        cfg,
		log:        log.Named("local"),
		state:      StateUninitialized,
		baseURL:    fmt.Sprintf("http://127.0.0.1:%d", cfg.Port),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Available reports whether the server is up.
func (m *Manager) Available() bool {
	return m.State() == StateAvailable
}

// LastError returns the error that made the manager unavailable, if any.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// EnsureAvailable verifies the server is running, performing the full
// check-download-launch sequence on first call. A failed check is
// non-retrying: subsequent calls within the session return false
// immediately until the process is restarted by a fresh session.
func (m *Manager) EnsureAvailable(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case StateAvailable:
		return true
	case StateUnavailable:
		return false
	}

	m.state = StateChecking
	if err := m.checkLocked(ctx); err != nil {
		m.state = StateUnavailable
		m.lastErr = err
		m.log.Warn("local inference unavailable", zap.Error(err))
		return false
	}

	m.state = StateAvailable
	m.log.Info("local inference server available", zap.String("url", m.baseURL))
	return true
}

// checkLocked runs the Checking phase: artifact check, binary check (with
// download), launch, and health wait. Must hold the lock.
func (m *Manager) checkLocked(ctx context.Context) error {
	if m.cfg.ModelPath == "" {
		return ErrArtifactMissing
	}
	if _, err := os.Stat(m.cfg.ModelPath); err != nil {
		return fmt.Errorf("%w: %s", ErrArtifactMissing, m.cfg.ModelPath)
	}

	binPath, err := m.ensureBinary(ctx)
	if err != nil {
		return err
	}

	// Already listening from a previous process? Adopt it.
	if m.probeHealth(ctx) == nil {
		return nil
	}

	cmd, err := m.spawnServer(binPath)
	if err != nil {
		return fmt.Errorf("start inference server: %w", err)
	}
	m.cmd = cmd

	// Observe process exit: Available -> Unavailable, never resurrected.
	go func() {
		err := cmd.Wait()
		m.onExit(err)
	}()

	return m.waitReady(ctx)
}

// ensureBinary returns a runnable server binary path, downloading the
// platform package when the configured binary is absent.
func (m *Manager) ensureBinary(ctx context.Context) (string, error) {
	if m.cfg.BinaryPath != "" {
		if _, err := os.Stat(m.cfg.BinaryPath); err == nil {
			return m.cfg.BinaryPath, nil
		}
	}

	if p, err := exec.LookPath("assistant-infer"); err == nil {
		return p, nil
	}

	if m.cfg.DownloadURL == "" || m.cfg.BinaryPath == "" {
		return "", ErrBinaryMissing
	}

	m.log.Info("downloading inference server binary", zap.String("dest", m.cfg.BinaryPath))
	if err := downloadBinary(ctx, m.cfg.DownloadURL, m.cfg.BinaryPath); err != nil {
		return "", fmt.Errorf("%w: download failed: %v", ErrBinaryMissing, err)
	}
	return m.cfg.BinaryPath, nil
}

// waitReady polls the health endpoint until the startup grace period ends.
func (m *Manager) waitReady(ctx context.Context) error {
	grace := time.Duration(m.cfg.StartupGraceSeconds) * time.Second
	if grace <= 0 {
		grace = 10 * time.Second
	}
	deadline := time.Now().Add(grace)

	var lastErr error
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return fmt.Errorf("startup cancelled: %w", ctx.Err())
		default:
		}

		if lastErr = m.probeHealth(ctx); lastErr == nil {
			return nil
		}
		time.Sleep(500 * time.Millisecond)
	}
	return fmt.Errorf("inference server not responding after %s: %w", grace, lastErr)
}

// probeHealth performs one GET against the server health endpoint.
func (m *Manager) probeHealth(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, m.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health probe returned %s", resp.Status)
	}
	return nil
}

// onExit records a process exit, transitioning Available -> Unavailable.
func (m *Manager) onExit(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateAvailable {
		m.state = StateUnavailable
		m.lastErr = fmt.Errorf("inference server exited: %w", err)
		m.log.Warn("inference server exited", zap.Error(err))
	}
	m.cmd = nil
}

// Complete runs one completion against the local server.
// Fails fast with ErrUnavailable unless the server is Available.
func (m *Manager) Complete(ctx context.Context, prompt string, maxTokens int, temperature float64) (*Completion, error) {
	if !m.Available() {
		return nil, ErrUnavailable
	}

	body, err := json.Marshal(completionRequest{
		Prompt:      prompt,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/completion", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		// A dead process makes the handle unavailable for the session.
		m.markFailed(err)
		return nil, fmt.Errorf("local completion failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("local completion returned %s", resp.Status)
	}

	var out Completion
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode completion: %w", err)
	}
	return &out, nil
}

// markFailed transitions Available -> Unavailable after a call failure.
func (m *Manager) markFailed(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateAvailable {
		m.state = StateUnavailable
		m.lastErr = err
	}
}

// Shutdown kills the owned subprocess, if any. Safe to call repeatedly.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cmd != nil && m.cmd.Process != nil {
		_ = m.cmd.Process.Kill()
	}
	m.cmd = nil
	if m.state == StateAvailable {
		m.state = StateUnavailable
	}
}
