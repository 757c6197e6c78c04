// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

//go:build !windows
// +build !windows

package local

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"syscall"
)

// spawnServer launches the inference server on Unix.
// The child gets its own process group so it can be terminated independently
// of the parent's group.
func (m *Manager) spawnServer(binPath string) (*exec.Cmd, error) {
	cmd := exec.Command(binPath,
		"serve",
		"--model", m.cfg.ModelPath,
		"--port", strconv.Itoa(m.cfg.Port),
	)

	// Pass environment through so GPU/runtime vars reach the server.
	cmd.Env = os.Environ()

	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}

	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.Stdin = nil

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", binPath, err)
	}
	return cmd, nil
}
