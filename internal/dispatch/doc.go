// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package dispatch selects a backend for each generation request and runs
// it with caching, rate limiting, and bounded retries.
//
// Under the default local-first strategy, short low-complexity prompts go
// to the local inference server when it is available; everything else goes
// to the highest-priority configured cloud provider. Responses are cached
// by model and prompt prefix, so repeated identical requests are answered
// without a backend call.
package dispatch
