// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package intent

import (
	"regexp"
	"strings"
)

// =============================================================================
// ENTITY EXTRACTORS
// =============================================================================

var (
	// Dates: ISO (2025-06-15), slashed (6/15 or 6/15/2025), month names,
	// and relative day words.
	datePattern = regexp.MustCompile(`(?i)\b(\d{4}-\d{2}-\d{2}|\d{1,2}/\d{1,2}(?:/\d{2,4})?|(?:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?\s+\d{1,2}(?:st|nd|rd|th)?|today|tomorrow|tonight|monday|tuesday|wednesday|thursday|friday|saturday|sunday|next week)\b`)

	// Clock times: 3pm, 3:30 pm, 15:30, noon, midnight.
	timePattern = regexp.MustCompile(`(?i)\b(\d{1,2}:\d{2}\s*(?:am|pm)?|\d{1,2}\s*(?:am|pm)|noon|midnight)\b`)

	// Participants: @mentions and email addresses.
	mentionPattern = regexp.MustCompile(`@([A-Za-z0-9_.-]+)`)
	emailPattern   = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)

	// Title-Case names following "with", e.g. "meeting with Sarah Chen".
	withNamePattern = regexp.MustCompile(`\bwith\s+((?:[A-Z][a-z]+)(?:\s+[A-Z][a-z]+)*)`)

	// Priority keywords.
	priorityHigh = regexp.MustCompile(`(?i)\b(urgent|asap|critical|important|high priority)\b`)
	priorityLow  = regexp.MustCompile(`(?i)\b(whenever|low priority|no rush|someday|eventually)\b`)

	// Quoted phrases double as titles or message content.
	quotedPattern = regexp.MustCompile(`"([^"]+)"|'([^']+)'`)

	// Recipient after "to"/"tell", e.g. "send a message to Alex".
	recipientPattern = regexp.MustCompile(`(?i)\b(?:to|tell)\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)?)`)
)

// extractorFor returns the extractor function for an entity type name.
// Unknown types extract nothing.
func extractorFor(entityType string) func(string) string {
	switch entityType {
	case "date":
		return extractDate
	case "time":
		return extractTime
	case "participants":
		return extractParticipants
	case "priority":
		return extractPriority
	case "title", "content":
		return extractQuoted
	case "recipient":
		return extractRecipient
	default:
		return func(string) string { return "" }
	}
}

// ExtractEntities pulls the named entity types out of text. Only types
// with a non-empty extraction appear in the result.
func ExtractEntities(text string, entityTypes []string) map[string]string {
	if len(entityTypes) == 0 {
		return nil
	}
	out := make(map[string]string)
	for _, et := range entityTypes {
		if v := extractorFor(et)(text); v != "" {
			out[et] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func extractDate(text string) string {
	return strings.TrimSpace(datePattern.FindString(text))
}

func extractTime(text string) string {
	return strings.TrimSpace(timePattern.FindString(text))
}

// extractParticipants collects @mentions, email addresses, and Title-Case
// names after "with", comma-joined in discovery order.
func extractParticipants(text string) string {
	seen := make(map[string]struct{})
	var parts []string

	add := func(p string) {
		p = strings.TrimSpace(p)
		if p == "" {
			return
		}
		key := strings.ToLower(p)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		parts = append(parts, p)
	}

	// Emails contain "@domain", which the mention pattern would also hit,
	// so they are cut out before the mention scan.
	emails := emailPattern.FindAllString(text, -1)
	stripped := emailPattern.ReplaceAllString(text, " ")

	for _, m := range mentionPattern.FindAllStringSubmatch(stripped, -1) {
		add(m[1])
	}
	for _, m := range emails {
		add(m)
	}
	for _, m := range withNamePattern.FindAllStringSubmatch(stripped, -1) {
		add(m[1])
	}

	return strings.Join(parts, ", ")
}

func extractPriority(text string) string {
	if priorityHigh.MatchString(text) {
		return "high"
	}
	if priorityLow.MatchString(text) {
		return "low"
	}
	return ""
}

func extractQuoted(text string) string {
	m := quotedPattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	if m[1] != "" {
		return m[1]
	}
	return m[2]
}

func extractRecipient(text string) string {
	m := recipientPattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return m[1]
}
