// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package workflow executes skills and multi-step workflows.
//
// Skills are registered handlers with declared required parameters;
// workflows are named sequences of steps (skill, condition, wait,
// parallel). Steps run strictly in declaration order: dependsOn entries
// are recorded on the execution for inspection but do not reorder or
// parallelize anything. Execution records live in an in-memory table
// until explicitly cleared, and lifecycle events are delivered
// synchronously to subscribers as they happen.
package workflow
