// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package router

import (
	"strings"

	"github.com/jeranaias/assistant-core/internal/intent"
)

// Heuristic classifier confidences. Fixed per category; anything else is
// the low-confidence unknown outcome.
const (
	greetingConfidence  = 0.9
	gratitudeConfidence = 0.85
	helpConfidence      = 0.8
	questionConfidence  = 0.75
	unknownConfidence   = 0.3
)

var (
	greetingWords  = []string{"hello", "hi", "hey", "good morning", "good afternoon", "good evening", "howdy"}
	gratitudeWords = []string{"thank you", "thanks", "appreciate"}
	helpWords      = []string{"help", "what can you do", "how do i"}
	questionWords  = []string{"what", "when", "where", "who", "why", "how", "can you", "could you", "is there"}
)

// urgencyWords disqualify a message from the local-inference fallback tier.
var urgencyWords = []string{"urgent", "asap", "immediately", "right now", "emergency", "critical"}

// heuristicClassify is the cheapest fallback tier: fixed-confidence pattern
// checks for the conversational intents, unknown for everything else. It
// cannot fail.
func heuristicClassify(text string) *intent.Resolution {
	lower := strings.ToLower(strings.TrimSpace(text))

	switch {
	case containsAny(lower, greetingWords):
		return &intent.Resolution{
			Intent:       "greeting",
			Confidence:   greetingConfidence,
			Action:       "respond_greeting",
			ProviderUsed: intent.ProviderRules,
		}
	case containsAny(lower, gratitudeWords):
		return &intent.Resolution{
			Intent:       "gratitude",
			Confidence:   gratitudeConfidence,
			Action:       "respond_acknowledge",
			ProviderUsed: intent.ProviderRules,
		}
	case containsAny(lower, helpWords):
		return &intent.Resolution{
			Intent:       "help",
			Confidence:   helpConfidence,
			Action:       "respond_help",
			ProviderUsed: intent.ProviderRules,
		}
	case strings.HasSuffix(lower, "?") || startsWithAny(lower, questionWords):
		return &intent.Resolution{
			Intent:       "question",
			Confidence:   questionConfidence,
			ProviderUsed: intent.ProviderRules,
		}
	default:
		res := intent.UnknownResolution(intent.ProviderRules)
		res.Confidence = unknownConfidence
		return res
	}
}

// containsAny matches multi-word patterns as substrings and single words
// on word boundaries, so "hi" does not light up inside "this".
func containsAny(text string, patterns []string) bool {
	var words []string
	for _, p := range patterns {
		if strings.Contains(p, " ") {
			if strings.Contains(text, p) {
				return true
			}
			continue
		}
		if words == nil {
			words = strings.FieldsFunc(text, func(r rune) bool {
				return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
			})
		}
		for _, w := range words {
			if w == p {
				return true
			}
		}
	}
	return false
}

func startsWithAny(text string, words []string) bool {
	for _, w := range words {
		if strings.HasPrefix(text, w) {
			return true
		}
	}
	return false
}

func hasUrgency(text string) bool {
	return containsAny(strings.ToLower(text), urgencyWords)
}
