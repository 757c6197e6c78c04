// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package local

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// maxDownloadSize caps binary downloads.
const maxDownloadSize = 500 * 1024 * 1024 // 500MB

// resolveDownloadURL fills GOOS/GOARCH placeholders in the URL template.
func resolveDownloadURL(template string) string {
	url := strings.Replace(template, "%s", runtime.GOOS, 1)
	return strings.Replace(url, "%s", runtime.GOARCH, 1)
}

// downloadBinary fetches the platform-specific server binary to dest.
// The write is atomic: a temp file in the destination directory is renamed
// into place only after the download completes.
func downloadBinary(ctx context.Context, urlTemplate, dest string) error {
	url := resolveDownloadURL(urlTemplate)

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create binary dir: %w", err)
	}

	client := &http.Client{Timeout: 10 * time.Minute}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch %s: unexpected status %s", url, resp.Status)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	n, err := io.Copy(tmp, io.LimitReader(resp.Body, maxDownloadSize))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write binary: %w", err)
	}
	if n == maxDownloadSize {
		return fmt.Errorf("download exceeded %d bytes", int64(maxDownloadSize))
	}

	if err := os.Chmod(tmpPath, 0o755); err != nil {
		return fmt.Errorf("chmod binary: %w", err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("install binary: %w", err)
	}
	return nil
}
