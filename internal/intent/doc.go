// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package intent holds the intent catalog, the rule-based matcher, and its
// entity extractors.
//
// The catalog is an ordered list of intent definitions loaded from a TOML
// document, falling back to a built-in catalog when the file is absent or
// malformed. Matching is deterministic: the first case-insensitive pattern
// substring hit wins, entities are pulled out with per-type extractors, and
// unmatched text yields a low-confidence "unknown" resolution carrying
// clarification prompts. Training appends patterns to the catalog and logs
// examples to a SQLite store; it never removes existing patterns.
package intent
