// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package intent

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Matcher confidences. A pattern hit is moderately confident; unknown is a
// fixed low-confidence outcome, not an error.
const (
	MatchConfidence   = 0.7
	UnknownConfidence = 0.1
)

// clarificationPrompts are offered when no pattern matches.
var clarificationPrompts = []string{
	"Could you rephrase that?",
	"Did you want to create a task, schedule an event, or send a message?",
	"Try \"help\" to see what I can do.",
}

// Matcher is the deterministic rule-based intent classifier.
type Matcher struct {
	catalog *Catalog
	store   *TrainingStore
	log     *zap.Logger
}

// NewMatcher builds a matcher over the catalog. store may be nil, which
// disables training persistence.
func NewMatcher(catalog *Catalog, store *TrainingStore, log *zap.Logger) *Matcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Matcher{
		catalog: catalog,
		store:   store,
		log:     log.Named("matcher"),
	}
}

// Match classifies text against the catalog. The first case-insensitive
// pattern substring hit wins, in declaration order. Read-only: matching
// never mutates the catalog.
func (m *Matcher) Match(text string) *Resolution {
	lower := strings.ToLower(text)

	for _, def := range m.catalog.Definitions() {
		for _, pattern := range def.Patterns {
			if pattern == "" || !strings.Contains(lower, strings.ToLower(pattern)) {
				continue
			}

			entities := ExtractEntities(text, def.Entities)
			return &Resolution{
				Intent:               def.Name,
				Confidence:           MatchConfidence,
				Entities:             entities,
				Action:               def.Action,
				Parameters:           parametersFrom(entities),
				Workflow:             def.Workflow,
				RequiresConfirmation: def.RequiresConfirmation,
				ProviderUsed:         ProviderRules,
			}
		}
	}

	return UnknownResolution(ProviderRules)
}

// UnknownResolution returns the fixed low-confidence fallback for
// unclassifiable messages.
func UnknownResolution(providerUsed string) *Resolution {
	return &Resolution{
		Intent:             IntentUnknown,
		Confidence:         UnknownConfidence,
		SuggestedResponses: append([]string(nil), clarificationPrompts...),
		ProviderUsed:       providerUsed,
	}
}

// parametersFrom widens extracted entities into skill parameters.
func parametersFrom(entities map[string]string) map[string]any {
	if len(entities) == 0 {
		return nil
	}
	params := make(map[string]any, len(entities))
	for k, v := range entities {
		params[k] = v
	}
	return params
}

// TrainOnExamples appends each example's message as a new trigger pattern
// for its intent and records the example durably. Existing patterns are
// never removed. The catalog is saved once at the end.
func (m *Matcher) TrainOnExamples(examples []TrainingExample) error {
	added := 0
	for _, ex := range examples {
		if ex.Intent == "" || strings.TrimSpace(ex.Message) == "" {
			continue
		}
		if _, ok := m.catalog.Find(ex.Intent); !ok {
			m.log.Warn("training example for unknown intent", zap.String("intent", ex.Intent))
			continue
		}

		added += m.catalog.AppendPatterns(ex.Intent, []string{strings.ToLower(strings.TrimSpace(ex.Message))})

		if m.store != nil {
			if err := m.store.Append(ex); err != nil {
				return fmt.Errorf("record example: %w", err)
			}
		}
	}

	if added > 0 {
		if err := m.catalog.Save(); err != nil {
			return fmt.Errorf("save catalog: %w", err)
		}
	}
	m.log.Info("training applied", zap.Int("examples", len(examples)), zap.Int("patterns_added", added))
	return nil
}

// Retrain replays the entire training store against the catalog, re-adding
// any patterns lost to an external catalog edit. Append-only, like
// TrainOnExamples.
func (m *Matcher) Retrain() error {
	if m.store == nil {
		return nil
	}

	examples, err := m.store.All()
	if err != nil {
		return fmt.Errorf("read training store: %w", err)
	}

	added := 0
	for _, ex := range examples {
		added += m.catalog.AppendPatterns(ex.Intent, []string{strings.ToLower(strings.TrimSpace(ex.Message))})
	}
	if added > 0 {
		if err := m.catalog.Save(); err != nil {
			return fmt.Errorf("save catalog: %w", err)
		}
	}
	m.log.Info("retrain complete", zap.Int("examples", len(examples)), zap.Int("patterns_added", added))
	return nil
}
