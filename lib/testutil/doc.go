// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for the replay
// packages.
//
// [SocketDir] creates a temporary directory in /tmp suitable for Unix
// domain sockets. tmux-backed tests put their server socket there
// because sun_path is limited to 108 bytes and t.TempDir() paths can
// exceed it. The directory is removed when the test completes.
//
// [RequireReceive] and [RequireClosed] encapsulate the timeout safety
// valve pattern (select with time.After fallback) so that individual
// tests do not need direct time.After calls.
//
// [FrameGenerator] produces deterministic raw frames made of
// fixed-size records, and near-identical successors of them, for
// exercising the diff codec and the recorder.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
//
// This package has no dependencies on the rest of the module.
package testutil
