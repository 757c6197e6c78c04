// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete assistant-core configuration.
type Config struct {
	// Routing configuration for the hybrid intent router.
	Routing RoutingConfig `toml:"routing" json:"routing"`

	// Dispatch configuration for the hybrid LLM dispatcher.
	Dispatch DispatchConfig `toml:"dispatch" json:"dispatch"`

	// Local inference server configuration.
	Local LocalConfig `toml:"local" json:"local"`

	// Providers lists the configured cloud providers.
	Providers []ProviderConfig `toml:"providers" json:"providers"`

	// Cache configuration for the dispatcher response cache.
	Cache CacheConfig `toml:"cache" json:"cache"`

	// Intent catalog and training store configuration.
	Intent IntentConfig `toml:"intent" json:"intent"`

	// Workflow execution configuration.
	Workflow WorkflowConfig `toml:"workflow" json:"workflow"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging"`
}

// RoutingConfig contains the thresholds driving the hybrid intent router.
type RoutingConfig struct {
	// HighConfidence is the rule-matcher confidence above which no
	// enhancement is attempted.
	HighConfidence float64 `toml:"high_confidence" json:"high_confidence"`
	// HybridThreshold is the complexity score above which the router
	// escalates the rule result for model enhancement.
	HybridThreshold float64 `toml:"hybrid_threshold" json:"hybrid_threshold"`
	// ModerateBandHigh is the upper complexity bound for local-model
	// enhancement; above it the router goes straight to cloud.
	ModerateBandHigh float64 `toml:"moderate_band_high" json:"moderate_band_high"`
	// LocalFallbackMaxChars bounds message length for the local-inference
	// fallback tier.
	LocalFallbackMaxChars int `toml:"local_fallback_max_chars" json:"local_fallback_max_chars"`
	// MaxBatchSize caps BatchProcess input size.
	MaxBatchSize int `toml:"max_batch_size" json:"max_batch_size"`
}

// DispatchConfig contains retry, rate-limit, and backend-selection settings
// for the LLM dispatcher.
type DispatchConfig struct {
	// Strategy is the default dispatch strategy: "local-first" or
	// "cloud-only".
	Strategy string `toml:"strategy" json:"strategy"`
	// DefaultProvider names the cloud provider used when a call does not
	// specify one.
	DefaultProvider string `toml:"default_provider" json:"default_provider"`
	// MaxRetries is the number of attempts per Generate call.
	MaxRetries int `toml:"max_retries" json:"max_retries"`
	// RetryBaseDelayMs is the base for exponential backoff between attempts.
	RetryBaseDelayMs int `toml:"retry_base_delay_ms" json:"retry_base_delay_ms"`
	// LocalComplexityThreshold is the prompt complexity below which the
	// local backend is preferred under "local-first".
	LocalComplexityThreshold float64 `toml:"local_complexity_threshold" json:"local_complexity_threshold"`
	// LocalMaxPromptChars is the longest prompt the local model accepts.
	LocalMaxPromptChars int `toml:"local_max_prompt_chars" json:"local_max_prompt_chars"`
	// RateLimitPerSecond caps cloud calls per second (0 disables limiting).
	RateLimitPerSecond float64 `toml:"rate_limit_per_second" json:"rate_limit_per_second"`
	// RateBurst is the token-bucket burst size for cloud calls.
	RateBurst int `toml:"rate_burst" json:"rate_burst"`
	// TimeoutSeconds is the per-call timeout for backend requests.
	TimeoutSeconds int `toml:"timeout_seconds" json:"timeout_seconds"`
}

// Timeout returns the per-call backend timeout as a duration.
func (d DispatchConfig) Timeout() time.Duration {
	return time.Duration(d.TimeoutSeconds) * time.Second
}

// RetryBaseDelay returns the exponential backoff base as a duration.
func (d DispatchConfig) RetryBaseDelay() time.Duration {
	return time.Duration(d.RetryBaseDelayMs) * time.Millisecond
}

// LocalConfig contains the local inference server configuration.
type LocalConfig struct {
	// BinaryPath is the inference server binary; when absent it is
	// downloaded from DownloadURL.
	BinaryPath string `toml:"binary_path" json:"binary_path"`
	// ModelPath is the model artifact the server loads. Its absence
	// degrades routing to cloud-only, it is not fatal.
	ModelPath string `toml:"model_path" json:"model_path"`
	// DownloadURL is a template for the platform binary; %s placeholders
	// are filled with GOOS and GOARCH.
	DownloadURL string `toml:"download_url" json:"download_url"`
	// Port the server binds to on localhost.
	Port int `toml:"port" json:"port"`
	// StartupGraceSeconds is how long to wait for the server to come up.
	StartupGraceSeconds int `toml:"startup_grace_seconds" json:"startup_grace_seconds"`
	// Model is the model name reported to the server.
	Model string `toml:"model" json:"model"`
}

// ProviderConfig describes one cloud provider.
type ProviderConfig struct {
	Name         string   `toml:"name" json:"name"`
	APIKey       string   `toml:"api_key" json:"api_key"`
	BaseURL      string   `toml:"base_url" json:"base_url"`
	DefaultModel string   `toml:"default_model" json:"default_model"`
	CostPerToken float64  `toml:"cost_per_token" json:"cost_per_token"`
	MaxTokens    int      `toml:"max_tokens" json:"max_tokens"`
	Priority     int      `toml:"priority" json:"priority"`
	Tags         []string `toml:"tags" json:"tags"`
}

// CacheConfig configures the dispatcher response cache.
type CacheConfig struct {
	// Backend is "memory" (default) or "redis".
	Backend string `toml:"backend" json:"backend"`
	// TTLSeconds is the entry time-to-live.
	TTLSeconds int `toml:"ttl_seconds" json:"ttl_seconds"`
	// MaxEntries caps the in-memory cache size.
	MaxEntries int `toml:"max_entries" json:"max_entries"`
	// Redis connection settings, used when Backend is "redis".
	RedisAddr     string `toml:"redis_addr" json:"redis_addr"`
	RedisPassword string `toml:"redis_password" json:"redis_password"`
	RedisDB       int    `toml:"redis_db" json:"redis_db"`
	KeyPrefix     string `toml:"key_prefix" json:"key_prefix"`
}

// IntentConfig configures the intent catalog and training store.
type IntentConfig struct {
	// CatalogPath is the intent catalog document; a built-in catalog is
	// used when the file is absent or malformed.
	CatalogPath string `toml:"catalog_path" json:"catalog_path"`
	// TrainingDBPath is the sqlite training-example store.
	TrainingDBPath string `toml:"training_db_path" json:"training_db_path"`
	// WatchCatalog enables live reload of the catalog file.
	WatchCatalog bool `toml:"watch_catalog" json:"watch_catalog"`
}

// WorkflowConfig configures the skill/workflow execution engine.
type WorkflowConfig struct {
	// StepTimeoutSeconds is the default per-step timeout.
	StepTimeoutSeconds int `toml:"step_timeout_seconds" json:"step_timeout_seconds"`
	// StepMaxRetries is the default per-step retry count.
	StepMaxRetries int `toml:"step_max_retries" json:"step_max_retries"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `toml:"level" json:"level"`
	Format string `toml:"format" json:"format"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns the built-in default configuration.
func Default() *Config {
	return &Config{
		Routing: RoutingConfig{
			HighConfidence:        0.8,
			HybridThreshold:       0.4,
			ModerateBandHigh:      0.7,
			LocalFallbackMaxChars: 80,
			MaxBatchSize:          10,
		},
		Dispatch: DispatchConfig{
			Strategy:                 "local-first",
			MaxRetries:               3,
			RetryBaseDelayMs:         500,
			LocalComplexityThreshold: 0.6,
			LocalMaxPromptChars:      2000,
			RateLimitPerSecond:       5,
			RateBurst:                10,
			TimeoutSeconds:           30,
		},
		Local: LocalConfig{
			Port:                8791,
			StartupGraceSeconds: 10,
			Model:               "assistant-mini",
		},
		Cache: CacheConfig{
			Backend:    "memory",
			TTLSeconds: 300,
			MaxEntries: 1000,
			KeyPrefix:  "assistant:resp:",
		},
		Intent: IntentConfig{
			WatchCatalog: false,
		},
		Workflow: WorkflowConfig{
			StepTimeoutSeconds: 30,
			StepMaxRetries:     1,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// =============================================================================
// LOADING
// =============================================================================

// Load reads the configuration file at path, merged over the defaults.
// TOML is assumed unless the file ends in .json. A missing file yields the
// defaults without error; a malformed file is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		cfg.applyEnvOverrides()
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, cfg.Validate()
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if strings.HasSuffix(path, ".json") {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", filepath.Base(path), err)
		}
	} else {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", filepath.Base(path), err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, cfg.Validate()
}

// applyEnvOverrides replaces provider secrets with environment variables
// when present. A provider named "openai" reads OPENAI_API_KEY.
func (c *Config) applyEnvOverrides() {
	for i := range c.Providers {
		envKey := strings.ToUpper(strings.ReplaceAll(c.Providers[i].Name, "-", "_")) + "_API_KEY"
		if v := os.Getenv(envKey); v != "" {
			c.Providers[i].APIKey = v
		}
	}
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.Routing.HighConfidence < 0 || c.Routing.HighConfidence > 1 {
		return fmt.Errorf("routing.high_confidence must be in [0,1], got %v", c.Routing.HighConfidence)
	}
	if c.Routing.HybridThreshold < 0 || c.Routing.HybridThreshold > 1 {
		return fmt.Errorf("routing.hybrid_threshold must be in [0,1], got %v", c.Routing.HybridThreshold)
	}
	if c.Routing.MaxBatchSize <= 0 {
		return fmt.Errorf("routing.max_batch_size must be positive, got %d", c.Routing.MaxBatchSize)
	}
	if c.Dispatch.MaxRetries <= 0 {
		return fmt.Errorf("dispatch.max_retries must be positive, got %d", c.Dispatch.MaxRetries)
	}
	switch c.Dispatch.Strategy {
	case "local-first", "cloud-only":
	default:
		return fmt.Errorf("dispatch.strategy must be %q or %q, got %q", "local-first", "cloud-only", c.Dispatch.Strategy)
	}
	switch c.Cache.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("cache.backend must be %q or %q, got %q", "memory", "redis", c.Cache.Backend)
	}
	seen := make(map[string]bool, len(c.Providers))
	for _, p := range c.Providers {
		if p.Name == "" {
			return fmt.Errorf("provider with empty name")
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate provider %q", p.Name)
		}
		seen[p.Name] = true
	}
	return nil
}

// CacheTTL returns the cache time-to-live as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}
