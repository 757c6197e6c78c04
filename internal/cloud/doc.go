// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cloud provides the HTTP client for remote chat-completion
// providers.
//
// One Client speaks to one configured provider through the OpenAI-style
// chat/completions contract. The client performs a single request per call;
// retry and backoff policy belongs to the dispatcher.
package cloud
