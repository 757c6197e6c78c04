// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package router is the decision engine that turns a free-text message
// into a structured resolution.
//
// The rule matcher runs first and wins outright on high confidence. For
// lower-confidence matches the message's complexity score decides whether
// the rule result is enhanced by the local model or a cloud provider. When
// enhancement fails the router falls through a recovery chain: a guarded
// local-inference classification, then a fixed heuristic classifier, then
// a full cloud classification. Whichever tier produced the final answer is
// stamped into the resolution's provider tag.
package router
