// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package local manages the lifetime of the local inference server
// subprocess.
//
// The manager owns a state machine (Uninitialized -> Checking ->
// {Available, Unavailable}): Checking verifies the model artifact and a
// runnable binary exist on disk (downloading a platform package when
// missing), launches the server on a localhost port, and waits for a
// health probe. A failed check is non-retrying within the session; process
// exit transitions back to Unavailable and the handle is never resurrected
// automatically.
package local
