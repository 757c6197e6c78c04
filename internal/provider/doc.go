// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package provider holds the configured backend descriptors and the
// dispatcher's response cache.
//
// The registry is loaded once at startup and read-only thereafter. The
// cache is a time-boxed response store keyed by model plus prompt prefix;
// entries are evicted lazily on read, never proactively swept, and cache
// writes are last-writer-wins.
package provider
