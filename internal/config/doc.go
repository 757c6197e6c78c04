// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides unified configuration loading for the assistant
// core.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// environment variable overrides for secrets, and validation. Configuration
// is loaded once at startup and treated as read-only thereafter.
package config
