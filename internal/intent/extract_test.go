// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractDate(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"meet on 2025-06-15 please", "2025-06-15"},
		{"due 6/15", "6/15"},
		{"see you tomorrow", "tomorrow"},
		{"every friday works", "friday"},
		{"no date here", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, extractDate(tt.text), tt.text)
	}
}

func TestExtractTime(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"at 3pm sharp", "3pm"},
		{"around 15:30", "15:30"},
		{"call me at 9:15 am", "9:15 am"},
		{"lunch at noon", "noon"},
		{"no time", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, extractTime(tt.text), tt.text)
	}
}

func TestExtractParticipants(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{name: "mention", text: "ping @sam about it", want: "sam"},
		{name: "email", text: "invite jo@example.com", want: "jo@example.com"},
		{name: "title-case after with", text: "meeting with Sarah Chen", want: "Sarah Chen"},
		{name: "mixed dedupe", text: "sync with @sam and sam@work.io", want: "sam, sam@work.io"},
		{name: "none", text: "just me", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractParticipants(tt.text))
		})
	}
}

func TestExtractPriority(t *testing.T) {
	assert.Equal(t, "high", extractPriority("this is URGENT"))
	assert.Equal(t, "low", extractPriority("no rush on this"))
	assert.Equal(t, "", extractPriority("regular task"))
}

func TestExtractQuoted(t *testing.T) {
	assert.Equal(t, "buy milk", extractQuoted(`add "buy milk" to the list`))
	assert.Equal(t, "see you soon", extractQuoted("send 'see you soon' to Alex"))
	assert.Equal(t, "", extractQuoted("nothing quoted"))
}

func TestExtractRecipient(t *testing.T) {
	assert.Equal(t, "Alex", extractRecipient("send a message to Alex"))
	assert.Equal(t, "Sarah Chen", extractRecipient("tell Sarah Chen the news"))
	assert.Equal(t, "", extractRecipient("send it to everyone"))
}

func TestExtractEntitiesOnlyNonEmpty(t *testing.T) {
	out := ExtractEntities("meet tomorrow", []string{"date", "time", "priority"})
	assert.Equal(t, map[string]string{"date": "tomorrow"}, out)

	assert.Nil(t, ExtractEntities("plain text", []string{"date"}))
	assert.Nil(t, ExtractEntities("anything", nil))
}
