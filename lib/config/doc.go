// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the replay
// recorder.
//
// Configuration is loaded from a single file specified by either the
// BUREAU_REPLAY_CONFIG environment variable (via [Load]) or a --config
// flag (via [LoadFile]). There is no discovery and no fallback file
// search: without either, callers use [Default].
//
// The file may carry development and production sections that
// override base values when [Config].Environment matches. A
// production config without its own section polls tmux once a second
// instead of four times.
//
// Variable expansion is performed on path fields after loading:
// ${HOME}, ${XDG_RUNTIME_DIR}, and ${VAR:-default} patterns are
// expanded.
//
// Key exports:
//
//   - [Config] -- Replay, Capture and Snapshot sections
//   - [Default] -- a Config with development defaults
//   - [Load] and [LoadFile] -- the two entry points for loading
//   - [Config.ReplayOptions] and [Config.RecorderOptions] -- conversion
//     to the replay package's option structs
package config
