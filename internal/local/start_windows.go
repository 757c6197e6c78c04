// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

//go:build windows
// +build windows

package local

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"syscall"
)

// Windows-specific creation flags.
const (
	// CREATE_NO_WINDOW prevents a console window from being created.
	CREATE_NO_WINDOW = 0x08000000
	// DETACHED_PROCESS detaches the child from the parent console.
	DETACHED_PROCESS = 0x00000008
)

// spawnServer launches the inference server on Windows.
// The child runs in its own process group without a console window.
func (m *Manager) spawnServer(binPath string) (*exec.Cmd, error) {
	cmd := exec.Command(binPath,
		"serve",
		"--model", m.cfg.ModelPath,
		"--port", strconv.Itoa(m.cfg.Port),
	)

	cmd.Env = os.Environ()

	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP | CREATE_NO_WINDOW | DETACHED_PROCESS,
	}

	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.Stdin = nil

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", binPath, err)
	}
	return cmd, nil
}
