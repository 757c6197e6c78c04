// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/jeranaias/assistant-core/internal/cloud"
	"github.com/jeranaias/assistant-core/internal/complexity"
	"github.com/jeranaias/assistant-core/internal/config"
	"github.com/jeranaias/assistant-core/internal/local"
	"github.com/jeranaias/assistant-core/internal/metrics"
	"github.com/jeranaias/assistant-core/internal/provider"
)

// =============================================================================
// STRATEGIES AND ERRORS
// =============================================================================

// Dispatch strategies. Empty means the configured default.
const (
	StrategyLocalFirst = "local-first"
	StrategyLocalOnly  = "local-only"
	StrategyCloudOnly  = "cloud-only"
)

// Backend sources reported in results and cache entries.
const (
	SourceLocal = "local"
	SourceCloud = "cloud"
)

// ErrNoProvider is returned when a cloud call is needed but no configured
// provider exists.
var ErrNoProvider = errors.New("no cloud provider configured")

// BackendError wraps a backend failure with the backend that produced it.
type BackendError struct {
	Source string // "local" or "cloud"
	Err    error
}

// Error implements the error interface.
func (e *BackendError) Error() string {
	return fmt.Sprintf("%s backend: %v", e.Source, e.Err)
}

// Unwrap returns the underlying backend error.
func (e *BackendError) Unwrap() error {
	return e.Err
}

// =============================================================================
// BACKEND INTERFACES
// =============================================================================

// localBackend is the local inference surface the dispatcher needs.
type localBackend interface {
	EnsureAvailable(ctx context.Context) bool
	Complete(ctx context.Context, prompt string, maxTokens int, temperature float64) (*local.Completion, error)
}

// cloudBackend is the cloud provider surface the dispatcher needs.
type cloudBackend interface {
	Provider() string
	IsConfigured() bool
	Complete(ctx context.Context, model, prompt string, maxTokens int, temperature float64) (*cloud.Completion, error)
}

// =============================================================================
// DISPATCHER
// =============================================================================

// Options modify a single Generate call.
type Options struct {
	// MaxTokens caps the response length. Zero uses provider defaults.
	MaxTokens int
	// Temperature is the sampling temperature.
	Temperature float64
	// Strategy overrides the configured dispatch strategy.
	Strategy string
	// Provider pins the call to a named cloud provider.
	Provider string
}

// Result is the outcome of one Generate call.
type Result struct {
	Content    string `json:"content"`
	TokensUsed int    `json:"tokens_used"`
	// Source is the backend that produced the content: "local" or "cloud".
	Source string `json:"source"`
	// Provider is the cloud provider name when Source is "cloud".
	Provider string `json:"provider,omitempty"`
	// Cached is true when the response came from the cache.
	Cached bool `json:"cached"`
}

// Dispatcher routes generation requests between the local inference server
// and cloud providers.
type Dispatcher struct {
	cfg     config.DispatchConfig
	cache   provider.ResponseCache
	local   localBackend
	clouds  map[string]cloudBackend
	order   []string
	limiter *rate.Limiter
	metrics *metrics.Metrics
	log     *zap.Logger

	// sleep is the backoff sleeper; tests replace it.
	sleep func(time.Duration)
}

// NewDispatcher wires a dispatcher from the registry's configured providers.
// m may be nil.
func NewDispatcher(cfg config.DispatchConfig, reg *provider.Registry, cache provider.ResponseCache, lm *local.Manager, m *metrics.Metrics, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	d := &Dispatcher{
		cfg:     cfg,
		cache:   cache,
		local:   lm,
		clouds:  make(map[string]cloudBackend),
		metrics: m,
		log:     log.Named("dispatch"),
		sleep:   time.Sleep,
	}

	timeout := cfg.Timeout()
	for _, desc := range reg.List() {
		d.clouds[desc.Name] = cloud.NewClient(desc, log).WithTimeout(timeout)
		d.order = append(d.order, desc.Name)
	}

	if cfg.RateLimitPerSecond > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		d.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitPerSecond), burst)
	}
	return d
}

// Generate produces a completion for prompt, consulting the cache first and
// then the backend chosen by the active strategy.
func (d *Dispatcher) Generate(ctx context.Context, prompt, model string, opts Options) (*Result, error) {
	key := provider.CacheKey(model, prompt)
	if d.cache != nil {
		if hit, ok := d.cache.Get(ctx, key); ok {
			if d.metrics != nil {
				d.metrics.CacheHits.Inc()
			}
			return &Result{
				Content:    hit.Content,
				TokensUsed: hit.TokensUsed,
				Source:     hit.Source,
				Cached:     true,
			}, nil
		}
		if d.metrics != nil {
			d.metrics.CacheMisses.Inc()
		}
	}

	strategy := opts.Strategy
	if strategy == "" {
		strategy = d.cfg.Strategy
	}
	if strategy == "" {
		strategy = StrategyLocalFirst
	}

	if strategy != StrategyCloudOnly && d.localEligible(strategy, prompt) {
		if d.local != nil && d.local.EnsureAvailable(ctx) {
			res, err := d.completeLocal(ctx, key, prompt, opts)
			if err == nil {
				return res, nil
			}
			if strategy == StrategyLocalOnly {
				return nil, &BackendError{Source: SourceLocal, Err: err}
			}
			d.log.Warn("local backend failed, falling back to cloud", zap.Error(err))
		} else if strategy == StrategyLocalOnly {
			return nil, &BackendError{Source: SourceLocal, Err: local.ErrUnavailable}
		}
	} else if strategy == StrategyLocalOnly {
		return nil, &BackendError{Source: SourceLocal, Err: fmt.Errorf("prompt not eligible for local backend")}
	}

	return d.completeCloud(ctx, key, prompt, model, opts)
}

// localEligible reports whether the prompt fits the local model's budget.
// Under local-only the caller has made the choice; no gating applies.
func (d *Dispatcher) localEligible(strategy, prompt string) bool {
	if strategy == StrategyLocalOnly {
		return true
	}
	if d.cfg.LocalMaxPromptChars > 0 && utf8.RuneCountInString(prompt) > d.cfg.LocalMaxPromptChars {
		return false
	}
	return complexity.Score(prompt) < d.cfg.LocalComplexityThreshold
}

func (d *Dispatcher) completeLocal(ctx context.Context, key, prompt string, opts Options) (*Result, error) {
	out, err := d.local.Complete(ctx, prompt, opts.MaxTokens, opts.Temperature)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Content:    out.Content,
		TokensUsed: out.TokensUsed,
		Source:     SourceLocal,
	}
	d.store(ctx, key, res)
	return res, nil
}

// completeCloud calls the selected cloud provider with bounded retries and
// exponential backoff. Every attempt waits on the rate limiter first.
func (d *Dispatcher) completeCloud(ctx context.Context, key, prompt, model string, opts Options) (*Result, error) {
	client, err := d.selectCloud(opts.Provider)
	if err != nil {
		return nil, &BackendError{Source: SourceCloud, Err: err}
	}

	maxRetries := d.cfg.MaxRetries
	if maxRetries < 1 {
		maxRetries = 1
	}
	baseDelay := d.cfg.RetryBaseDelay()

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff: base, 2*base, 4*base, ...
			d.sleep(baseDelay * (1 << (attempt - 1)))
		}

		if d.limiter != nil {
			if err := d.limiter.Wait(ctx); err != nil {
				return nil, &BackendError{Source: SourceCloud, Err: err}
			}
		}

		out, err := client.Complete(ctx, model, prompt, opts.MaxTokens, opts.Temperature)
		if err == nil {
			res := &Result{
				Content:    out.Content,
				TokensUsed: out.TotalTokens(),
				Source:     SourceCloud,
				Provider:   client.Provider(),
			}
			d.store(ctx, key, res)
			return res, nil
		}

		lastErr = err
		if !cloud.IsRetryable(err) {
			break
		}
		d.log.Warn("cloud attempt failed",
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", maxRetries),
			zap.Error(err))
	}

	return nil, &BackendError{Source: SourceCloud, Err: lastErr}
}

// selectCloud returns the pinned provider, or the default, or the
// highest-priority configured one.
func (d *Dispatcher) selectCloud(name string) (cloudBackend, error) {
	if name == "" {
		name = d.cfg.DefaultProvider
	}
	if name != "" {
		c, ok := d.clouds[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", provider.ErrUnknownProvider, name)
		}
		return c, nil
	}

	for _, n := range d.order {
		if c := d.clouds[n]; c.IsConfigured() {
			return c, nil
		}
	}
	return nil, ErrNoProvider
}

// store writes a successful result through to the cache.
func (d *Dispatcher) store(ctx context.Context, key string, res *Result) {
	if d.cache == nil {
		return
	}
	d.cache.Put(ctx, key, provider.CachedResponse{
		Content:    res.Content,
		TokensUsed: res.TokensUsed,
		Source:     res.Source,
		StoredAt:   time.Now(),
	})
}

// CacheStats exposes the response cache counters for status reporting.
func (d *Dispatcher) CacheStats() provider.CacheStats {
	if d.cache == nil {
		return provider.CacheStats{}
	}
	return d.cache.Stats()
}
