// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package complexity

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// ============================================================================
// SCORING WEIGHTS
// ============================================================================

// Weights for the combined score. Length and token count dominate; the
// pattern bonus rewards structured content (dates, times, numbers) that
// usually needs entity extraction.
const (
	// lengthWeight is the weight of the normalized character length.
	lengthWeight = 0.4
	// tokenWeight is the weight of the normalized token count.
	tokenWeight = 0.4
	// patternBonus is the flat bonus for structured patterns.
	patternBonus = 0.2

	// lengthCap is the character length that maps to a full length score.
	lengthCap = 100
	// tokenCap is the token count that maps to a full token score.
	tokenCap = 10
)

var (
	// datePattern matches calendar-style date references.
	datePattern = regexp.MustCompile(`(?i)\b(today|tomorrow|yesterday|monday|tuesday|wednesday|thursday|friday|saturday|sunday|\d{1,2}/\d{1,2}(/\d{2,4})?|\d{4}-\d{2}-\d{2})\b`)

	// timePattern matches clock times ("3pm", "14:30", "9:00 am").
	timePattern = regexp.MustCompile(`(?i)\b\d{1,2}(:\d{2})?\s*(am|pm)\b|\b\d{1,2}:\d{2}\b`)

	// digitPattern matches any digit.
	digitPattern = regexp.MustCompile(`\d`)
)

// ============================================================================
// SCORING
// ============================================================================

// Score returns a complexity score in [0, 1] for the given text.
//
// The score is a weighted combination of:
//   - normalized character length (capped at 100 chars)
//   - normalized token count (capped at 10 tokens)
//   - a flat bonus when the text contains dates, clock times, or digits
//
// Score("") is 0, and the score is monotonically non-decreasing in length
// up to the caps, all else equal.
func Score(text string) float64 {
	if text == "" {
		return 0
	}

	// Character length, not byte length; multibyte text would hit the cap
	// three times too fast otherwise.
	lengthScore := float64(utf8.RuneCountInString(text)) / lengthCap
	if lengthScore > 1 {
		lengthScore = 1
	}

	tokenScore := float64(tokenCount(text)) / tokenCap
	if tokenScore > 1 {
		tokenScore = 1
	}

	score := lengthScore*lengthWeight + tokenScore*tokenWeight
	if HasStructuredPattern(text) {
		score += patternBonus
	}

	if score > 1 {
		score = 1
	}
	return score
}

// HasStructuredPattern reports whether the text contains a date, a clock
// time, or digits.
func HasStructuredPattern(text string) bool {
	return datePattern.MatchString(text) ||
		timePattern.MatchString(text) ||
		digitPattern.MatchString(text)
}

// tokenCount returns the number of whitespace-separated tokens.
func tokenCount(s string) int {
	return len(strings.Fields(s))
}

// ============================================================================
// COMPLEXITY BANDS
// ============================================================================

// Band represents a coarse complexity band derived from the score.
// The router uses bands to decide between local and cloud enhancement.
type Band int

const (
	// BandTrivial covers scores below 0.2: greetings, one-word commands.
	BandTrivial Band = iota
	// BandSimple covers scores in [0.2, 0.4): short direct requests.
	BandSimple
	// BandModerate covers scores in [0.4, 0.7): candidates for local
	// model enhancement.
	BandModerate
	// BandComplex covers scores of 0.7 and above: cloud territory.
	BandComplex
)

// String returns the human-readable name of the band.
func (b Band) String() string {
	switch b {
	case BandTrivial:
		return "Trivial"
	case BandSimple:
		return "Simple"
	case BandModerate:
		return "Moderate"
	case BandComplex:
		return "Complex"
	default:
		return "Unknown"
	}
}

// BandFor maps a score to its band.
func BandFor(score float64) Band {
	switch {
	case score < 0.2:
		return BandTrivial
	case score < 0.4:
		return BandSimple
	case score < 0.7:
		return BandModerate
	default:
		return BandComplex
	}
}
