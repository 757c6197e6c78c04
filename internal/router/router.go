// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/jeranaias/assistant-core/internal/complexity"
	"github.com/jeranaias/assistant-core/internal/config"
	"github.com/jeranaias/assistant-core/internal/dispatch"
	"github.com/jeranaias/assistant-core/internal/intent"
	"github.com/jeranaias/assistant-core/internal/local"
	"github.com/jeranaias/assistant-core/internal/metrics"
	"github.com/jeranaias/assistant-core/internal/provider"
)

// ErrBatchTooLarge rejects BatchProcess calls exceeding the configured
// batch size. No message in an oversized batch is processed.
var ErrBatchTooLarge = errors.New("batch exceeds maximum size")

// generator is the dispatcher surface the router needs.
type generator interface {
	Generate(ctx context.Context, prompt, model string, opts dispatch.Options) (*dispatch.Result, error)
}

// modelAnalysis is the JSON shape the enhancement and classification
// prompts ask the model to produce.
type modelAnalysis struct {
	Intent     string            `json:"intent"`
	Confidence float64           `json:"confidence"`
	Entities   map[string]string `json:"entities"`
}

// Status is a snapshot of the pipeline for dashboards.
type Status struct {
	Catalog    int                 `json:"catalog_intents"`
	LocalState string              `json:"local_state"`
	Cache      provider.CacheStats `json:"cache"`
}

// Router resolves free-text messages into structured resolutions.
type Router struct {
	cfg      config.RoutingConfig
	matcher  *intent.Matcher
	catalog  *intent.Catalog
	dispatch generator
	local    *local.Manager
	metrics  *metrics.Metrics
	log      *zap.Logger
}

// NewRouter wires the decision engine. lm and m may be nil.
func NewRouter(cfg config.RoutingConfig, matcher *intent.Matcher, catalog *intent.Catalog, d generator, lm *local.Manager, m *metrics.Metrics, log *zap.Logger) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	return &Router{
		cfg:      cfg,
		matcher:  matcher,
		catalog:  catalog,
		dispatch: d,
		local:    lm,
		metrics:  m,
		log:      log.Named("router"),
	}
}

// Resolve classifies one message. The returned resolution always carries a
// provider tag naming the code path that produced it and a processing time
// of at least one millisecond. An unclassifiable message is a valid
// low-confidence "unknown" resolution, not an error.
func (r *Router) Resolve(ctx context.Context, text string) (*intent.Resolution, error) {
	start := time.Now()

	ruleRes := r.matcher.Match(text)
	if ruleRes.Confidence >= r.cfg.HighConfidence {
		return r.finish(ruleRes, intent.ProviderRules, start), nil
	}

	score := complexity.Score(text)
	if score <= r.cfg.HybridThreshold {
		// Simple message: the rule result stands on its own.
		return r.finish(ruleRes, intent.ProviderRules, start), nil
	}

	// Escalate for model enhancement. The moderate band goes to the local
	// model; anything harder goes straight to cloud.
	strategy := dispatch.StrategyCloudOnly
	if score <= r.cfg.ModerateBandHigh {
		strategy = dispatch.StrategyLocalOnly
	}
	r.log.Debug("escalating for model enhancement",
		zap.Float64("score", score),
		zap.Stringer("band", complexity.BandFor(score)),
		zap.String("strategy", strategy))
	enhanced, err := r.enhance(ctx, text, ruleRes, strategy)
	if err == nil {
		return r.finish(enhanced, intent.ProviderHybrid, start), nil
	}
	r.log.Warn("enhancement failed, entering fallback chain",
		zap.String("strategy", strategy), zap.Error(err))

	return r.fallback(ctx, text, score, start)
}

// fallback walks the recovery chain. The first tier that succeeds
// determines the provider tag; the heuristic's unknown outcome backs the
// chain so resolution always produces a result.
func (r *Router) fallback(ctx context.Context, text string, score float64, start time.Time) (*intent.Resolution, error) {
	// Tier 1: guarded local-inference classification. Only short,
	// low-to-moderate, non-urgent messages qualify.
	if utf8.RuneCountInString(text) <= r.cfg.LocalFallbackMaxChars && score <= r.cfg.ModerateBandHigh && !hasUrgency(text) {
		res, err := r.classify(ctx, text, dispatch.StrategyLocalOnly)
		if err == nil {
			return r.finish(res, intent.ProviderLocal, start), nil
		}
		r.log.Debug("local fallback tier failed", zap.Error(err))
	}

	// Tier 2: fixed heuristic classifier. Never fails; a non-unknown hit
	// is terminal.
	heuristic := heuristicClassify(text)
	if heuristic.Intent != intent.IntentUnknown {
		return r.finish(heuristic, intent.ProviderRules, start), nil
	}

	// Tier 3: full cloud classification.
	res, err := r.classify(ctx, text, dispatch.StrategyCloudOnly)
	if err == nil {
		return r.finish(res, intent.ProviderCloud, start), nil
	}
	r.log.Warn("cloud fallback tier failed", zap.Error(err))

	// Everything failed: the heuristic's unknown outcome is still a valid
	// resolution with clarification prompts.
	return r.finish(heuristic, intent.ProviderRules, start), nil
}

// enhance asks a model to re-analyze the rule result: entity correction
// plus confidence averaging. The catalog stays authoritative for actions.
func (r *Router) enhance(ctx context.Context, text string, ruleRes *intent.Resolution, strategy string) (*intent.Resolution, error) {
	prompt := fmt.Sprintf(
		"Analyze this user message and respond with only a JSON object "+
			"{\"intent\": string, \"confidence\": number 0-1, \"entities\": object}.\n"+
			"Message: %q\nPreliminary intent: %s (confidence %.2f)",
		text, ruleRes.Intent, ruleRes.Confidence,
	)

	out, err := r.dispatch.Generate(ctx, prompt, "", dispatch.Options{Strategy: strategy, MaxTokens: 256})
	if err != nil {
		return nil, err
	}
	analysis, err := parseAnalysis(out.Content)
	if err != nil {
		return nil, err
	}

	merged := *ruleRes
	merged.Confidence = clamp01((ruleRes.Confidence + clamp01(analysis.Confidence)) / 2)

	if len(analysis.Entities) > 0 {
		entities := make(map[string]string, len(ruleRes.Entities)+len(analysis.Entities))
		for k, v := range ruleRes.Entities {
			entities[k] = v
		}
		for k, v := range analysis.Entities {
			if v != "" {
				entities[k] = v
			}
		}
		merged.Entities = entities
		params := make(map[string]any, len(entities))
		for k, v := range entities {
			params[k] = v
		}
		merged.Parameters = params
	}

	// Adopt the model's intent only when the catalog knows it.
	if analysis.Intent != "" && analysis.Intent != ruleRes.Intent {
		if def, ok := r.catalog.Find(analysis.Intent); ok {
			merged.Intent = def.Name
			merged.Action = def.Action
			merged.Workflow = def.Workflow
			merged.RequiresConfirmation = def.RequiresConfirmation
		}
	}

	return &merged, nil
}

// classify asks a model for a from-scratch classification, used by the
// fallback tiers.
func (r *Router) classify(ctx context.Context, text, strategy string) (*intent.Resolution, error) {
	prompt := fmt.Sprintf(
		"Classify this user message into an intent. Respond with only a "+
			"JSON object {\"intent\": string, \"confidence\": number 0-1, \"entities\": object}.\n"+
			"Message: %q", text,
	)

	out, err := r.dispatch.Generate(ctx, prompt, "", dispatch.Options{Strategy: strategy, MaxTokens: 256})
	if err != nil {
		return nil, err
	}
	analysis, err := parseAnalysis(out.Content)
	if err != nil {
		return nil, err
	}

	res := &intent.Resolution{
		Intent:     analysis.Intent,
		Confidence: clamp01(analysis.Confidence),
		Entities:   analysis.Entities,
	}
	if res.Intent == "" {
		res.Intent = intent.IntentUnknown
	}
	if def, ok := r.catalog.Find(res.Intent); ok {
		res.Action = def.Action
		res.Workflow = def.Workflow
		res.RequiresConfirmation = def.RequiresConfirmation
	}
	if len(analysis.Entities) > 0 {
		params := make(map[string]any, len(analysis.Entities))
		for k, v := range analysis.Entities {
			params[k] = v
		}
		res.Parameters = params
	}
	return res, nil
}

// BatchProcess resolves messages strictly in order, one at a time.
// Oversized batches are rejected before any message is processed.
func (r *Router) BatchProcess(ctx context.Context, messages []string) ([]*intent.Resolution, error) {
	if r.cfg.MaxBatchSize > 0 && len(messages) > r.cfg.MaxBatchSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(messages), r.cfg.MaxBatchSize)
	}

	out := make([]*intent.Resolution, 0, len(messages))
	for _, msg := range messages {
		res, err := r.Resolve(ctx, msg)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}

// Status returns a pipeline snapshot for dashboards.
func (r *Router) Status() Status {
	s := Status{Catalog: r.catalog.Len(), LocalState: local.StateUninitialized.String()}
	if r.local != nil {
		s.LocalState = r.local.State().String()
	}
	if d, ok := r.dispatch.(interface{ CacheStats() provider.CacheStats }); ok {
		s.Cache = d.CacheStats()
	}
	return s
}

// finish stamps the provider tag and processing time and records metrics.
func (r *Router) finish(res *intent.Resolution, providerUsed string, start time.Time) *intent.Resolution {
	res.ProviderUsed = providerUsed

	elapsed := time.Since(start)
	ms := elapsed.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	res.ProcessingTimeMs = ms

	if r.metrics != nil {
		r.metrics.Resolutions.WithLabelValues(providerUsed).Inc()
		r.metrics.ResolutionDuration.Observe(elapsed.Seconds())
	}
	r.log.Debug("resolved",
		zap.String("intent", res.Intent),
		zap.Float64("confidence", res.Confidence),
		zap.String("provider", providerUsed),
		zap.Int64("ms", ms))
	return res
}

// parseAnalysis pulls the first JSON object out of a model response.
// Models often wrap JSON in prose or code fences.
func parseAnalysis(content string) (*modelAnalysis, error) {
	startIdx := strings.Index(content, "{")
	endIdx := strings.LastIndex(content, "}")
	if startIdx < 0 || endIdx <= startIdx {
		return nil, fmt.Errorf("no JSON object in model response")
	}

	var analysis modelAnalysis
	if err := json.Unmarshal([]byte(content[startIdx:endIdx+1]), &analysis); err != nil {
		return nil, fmt.Errorf("parse model response: %w", err)
	}
	return &analysis, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
