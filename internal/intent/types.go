// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package intent

import "time"

// Provider tags recorded on a resolution. Each names the code path that
// actually produced the result.
const (
	ProviderRules  = "rules"
	ProviderLocal  = "local"
	ProviderCloud  = "cloud"
	ProviderHybrid = "hybrid"
)

// IntentUnknown is the intent name for unclassifiable messages.
const IntentUnknown = "unknown"

// Definition is one catalog entry. Immutable at runtime except through
// training operations, which append patterns only.
type Definition struct {
	// Name is the intent identifier, e.g. "create_task".
	Name string `toml:"name" json:"name"`
	// Description is the human-readable purpose of the intent.
	Description string `toml:"description" json:"description"`
	// Patterns are the trigger substrings matched case-insensitively.
	Patterns []string `toml:"patterns" json:"patterns"`
	// Entities names the entity types this intent expects.
	Entities []string `toml:"entities" json:"entities"`
	// Action is the skill identifier the intent maps to.
	Action string `toml:"action" json:"action"`
	// Workflow optionally names a workflow instead of a single skill.
	Workflow string `toml:"workflow,omitempty" json:"workflow,omitempty"`
	// RequiresConfirmation marks intents that must be confirmed before
	// their action runs.
	RequiresConfirmation bool `toml:"requires_confirmation" json:"requires_confirmation"`
}

// Resolution is the structured outcome of classifying one message.
// Produced fresh per message and never mutated after return.
type Resolution struct {
	Intent     string            `json:"intent"`
	Confidence float64           `json:"confidence"`
	Entities   map[string]string `json:"entities,omitempty"`
	Action     string            `json:"action,omitempty"`
	Parameters map[string]any    `json:"parameters,omitempty"`
	Workflow   string            `json:"workflow,omitempty"`

	RequiresConfirmation bool     `json:"requires_confirmation"`
	SuggestedResponses   []string `json:"suggested_responses,omitempty"`

	// ProviderUsed is the code path that produced the result: "rules",
	// "local", "cloud", or "hybrid".
	ProviderUsed string `json:"provider_used"`

	// ProcessingTimeMs is the wall-clock resolution time, at least 1.
	ProcessingTimeMs int64 `json:"processing_time_ms"`
}

// TrainingExample is one recorded message/intent pair used to grow the
// catalog's pattern lists.
type TrainingExample struct {
	Message   string            `json:"message"`
	Intent    string            `json:"intent"`
	Entities  map[string]string `json:"entities,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}
