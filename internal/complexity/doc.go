// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package complexity scores how hard a user message is to resolve.
//
// The score drives routing decisions: low-complexity messages stay on the
// rule matcher or local model, high-complexity messages escalate to cloud
// providers. Scoring is deterministic and side-effect free.
package complexity
