// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package complexity

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestScoreRange verifies that scores stay within [0, 1] for a variety of
// inputs, including degenerate ones.
func TestScoreRange(t *testing.T) {
	inputs := []string{
		"",
		"hi",
		"hello there",
		"schedule a meeting with @sam tomorrow at 3pm about the Q3 budget review",
		strings.Repeat("a", 500),
		strings.Repeat("word ", 200),
		"1234567890",
	}

	for _, in := range inputs {
		s := Score(in)
		assert.GreaterOrEqual(t, s, 0.0, "input %q", in)
		assert.LessOrEqual(t, s, 1.0, "input %q", in)
	}
}

// TestScoreEmpty verifies the empty string scores exactly zero.
func TestScoreEmpty(t *testing.T) {
	assert.Equal(t, 0.0, Score(""))
}

// TestScoreMonotonicInLength verifies the score never decreases as the text
// grows, up to the length cap, all else equal.
func TestScoreMonotonicInLength(t *testing.T) {
	prev := 0.0
	for i := 1; i <= 120; i++ {
		s := Score(strings.Repeat("x", i))
		assert.GreaterOrEqual(t, s, prev, "length %d", i)
		prev = s
	}
}

// TestScoreLengthCountsCharacters verifies multibyte text is scored by
// character count, not byte count.
func TestScoreLengthCountsCharacters(t *testing.T) {
	// 34 characters either way; the CJK string is 102 bytes.
	ascii := strings.Repeat("x", 34)
	cjk := strings.Repeat("予", 34)
	assert.Equal(t, Score(ascii), Score(cjk))
	assert.Less(t, Score(cjk), 1.0)
}

// TestScorePatternBonus verifies that structured patterns raise the score of
// otherwise identical-length texts.
func TestScorePatternBonus(t *testing.T) {
	plain := Score("meet me somewhere nice soon")
	dated := Score("meet me somewhere at 3pm ok")
	assert.Greater(t, dated, plain)
}

func TestHasStructuredPattern(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{name: "plain_text", text: "hello there friend", want: false},
		{name: "weekday", text: "see you on friday", want: true},
		{name: "clock_time", text: "lunch at 12:30", want: true},
		{name: "am_pm", text: "call me at 9am", want: true},
		{name: "iso_date", text: "due 2025-06-01", want: true},
		{name: "digits", text: "order 42 pizzas", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HasStructuredPattern(tt.text))
		})
	}
}

func TestBandFor(t *testing.T) {
	assert.Equal(t, BandTrivial, BandFor(0.0))
	assert.Equal(t, BandSimple, BandFor(0.25))
	assert.Equal(t, BandModerate, BandFor(0.5))
	assert.Equal(t, BandComplex, BandFor(0.9))
}

func TestBandString(t *testing.T) {
	assert.Equal(t, "Moderate", BandModerate.String())
	assert.Equal(t, "Unknown", Band(99).String())
}
