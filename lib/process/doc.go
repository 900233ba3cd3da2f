// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides the entrypoint error handler for the replay
// binaries: the one place an error is written raw to stderr, because
// it may have happened before the structured logger existed.
package process
