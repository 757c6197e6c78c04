// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)

	assert.Equal(t, 0.8, cfg.Routing.HighConfidence)
	assert.Equal(t, 10, cfg.Routing.MaxBatchSize)
	assert.Equal(t, "local-first", cfg.Dispatch.Strategy)
	assert.Equal(t, "memory", cfg.Cache.Backend)
}

func TestDispatchDurations(t *testing.T) {
	d := DispatchConfig{TimeoutSeconds: 30, RetryBaseDelayMs: 250}
	assert.Equal(t, 30*time.Second, d.Timeout())
	assert.Equal(t, 250*time.Millisecond, d.RetryBaseDelay())
}

func TestLoadTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[routing]
high_confidence = 0.9
max_batch_size = 5

[dispatch]
strategy = "cloud-only"
default_provider = "openai"
max_retries = 2

[[providers]]
name = "openai"
base_url = "https://api.openai.com/v1"
default_model = "gpt-4o-mini"
cost_per_token = 0.0000006
max_tokens = 4096
priority = 1
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 0.9, cfg.Routing.HighConfidence)
	assert.Equal(t, 5, cfg.Routing.MaxBatchSize)
	assert.Equal(t, "cloud-only", cfg.Dispatch.Strategy)
	assert.Equal(t, 2, cfg.Dispatch.MaxRetries)
	require.Len(t, cfg.Providers, 1)
	assert.Equal(t, "openai", cfg.Providers[0].Name)
	// Defaults survive for untouched sections.
	assert.Equal(t, 300, cfg.Cache.TTLSeconds)
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := `{"routing": {"high_confidence": 0.85, "hybrid_threshold": 0.4, "moderate_band_high": 0.7, "local_fallback_max_chars": 80, "max_batch_size": 10}}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.85, cfg.Routing.HighConfidence)
}

func TestLoadMalformed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("not = [valid"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrideAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-from-env")

	cfg := Default()
	cfg.Providers = []ProviderConfig{{Name: "openai", APIKey: "sk-from-file"}}
	cfg.applyEnvOverrides()

	assert.Equal(t, "sk-from-env", cfg.Providers[0].APIKey)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{name: "defaults", mutate: func(c *Config) {}, ok: true},
		{name: "bad_confidence", mutate: func(c *Config) { c.Routing.HighConfidence = 1.5 }, ok: false},
		{name: "bad_strategy", mutate: func(c *Config) { c.Dispatch.Strategy = "yolo" }, ok: false},
		{name: "bad_backend", mutate: func(c *Config) { c.Cache.Backend = "memcached" }, ok: false},
		{name: "zero_batch", mutate: func(c *Config) { c.Routing.MaxBatchSize = 0 }, ok: false},
		{name: "duplicate_provider", mutate: func(c *Config) {
			c.Providers = []ProviderConfig{{Name: "a"}, {Name: "a"}}
		}, ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
