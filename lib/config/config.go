// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/replay/lib/compress"
	"github.com/bureau-foundation/replay/replay"
)

// EnvironmentVariable names the variable [Load] reads the config path
// from.
const EnvironmentVariable = "BUREAU_REPLAY_CONFIG"

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Production is for long-running recorders.
	Production Environment = "production"
)

// Config is the configuration for the replay recorder.
type Config struct {
	// Environment selects which override section applies.
	Environment Environment `yaml:"environment"`

	// Replay sizes the frame store and sets the key-frame cadence.
	Replay ReplayConfig `yaml:"replay"`

	// Capture configures how frames are polled from tmux.
	Capture CaptureConfig `yaml:"capture"`

	// Snapshot configures snapshot files.
	Snapshot SnapshotConfig `yaml:"snapshot"`

	// Per-environment overrides, applied after the base config is
	// loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ReplayConfig mirrors [replay.Options].
type ReplayConfig struct {
	// Capacity is the arena size in bytes.
	Capacity int `yaml:"capacity"`

	// RecordSize is the size of one frame record in bytes. The tmux
	// capture path produces 16-byte screen cells.
	RecordSize int `yaml:"record_size"`

	// KeyFrameInterval is the longest run of frames between key frames.
	KeyFrameInterval int `yaml:"key_frame_interval"`

	// KeyFrameSpan is the fraction of Capacity one key frame and its
	// diffs may occupy.
	KeyFrameSpan float64 `yaml:"key_frame_span"`
}

// CaptureConfig configures the tmux frame source.
type CaptureConfig struct {
	// Interval is the polling period, as a Go duration ("250ms").
	Interval time.Duration `yaml:"interval"`

	// Socket is the tmux server socket to record from. Supports
	// ${VAR} expansion.
	Socket string `yaml:"socket"`

	// Target is the tmux pane target, e.g. "main" or "main:0.1".
	Target string `yaml:"target"`
}

// SnapshotConfig configures snapshot files.
type SnapshotConfig struct {
	// Compression is the arena compression: none, lz4 or zstd.
	Compression compress.Tag `yaml:"compression"`

	// Directory is where snapshots without an explicit path are
	// written. Supports ${VAR} expansion.
	Directory string `yaml:"directory"`
}

// ConfigOverrides contains fields that can be overridden per
// environment. Zero values leave the base value alone.
type ConfigOverrides struct {
	Replay   *ReplayConfig      `yaml:"replay,omitempty"`
	Capture  *CaptureConfig     `yaml:"capture,omitempty"`
	Snapshot *SnapshotOverrides `yaml:"snapshot,omitempty"`
}

// SnapshotOverrides is SnapshotConfig with an optional compression, so
// that an override can select "none" explicitly.
type SnapshotOverrides struct {
	Compression *compress.Tag `yaml:"compression,omitempty"`
	Directory   string        `yaml:"directory,omitempty"`
}

// Default returns a Config with development defaults, with path
// variables already expanded.
func Default() *Config {
	config := &Config{
		Environment: Development,
		Replay: ReplayConfig{
			Capacity:         replay.DefaultCapacity,
			RecordSize:       replay.DefaultRecordSize,
			KeyFrameInterval: replay.DefaultKeyFrameInterval,
			KeyFrameSpan:     replay.DefaultKeyFrameSpan,
		},
		Capture: CaptureConfig{
			Interval: 250 * time.Millisecond,
		},
		Snapshot: SnapshotConfig{
			Compression: compress.Zstd,
			Directory:   "${HOME}/.cache/bureau/replay",
		},
	}
	config.expandVariables()
	return config
}

// Load reads the file named by BUREAU_REPLAY_CONFIG. There is no
// fallback: an unset variable is an error.
func Load() (*Config, error) {
	path := os.Getenv(EnvironmentVariable)
	if path == "" {
		return nil, fmt.Errorf("%s environment variable not set; pass --config or set it to a config file path", EnvironmentVariable)
	}
	return LoadFile(path)
}

// LoadFile reads the config file at path on top of [Default], applies
// the override section for the configured environment, expands
// variables, and validates the result.
func LoadFile(path string) (*Config, error) {
	config := Default()
	if err := config.loadFile(path); err != nil {
		return nil, err
	}

	config.applyEnvironmentOverrides()
	config.expandVariables()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return config, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	return nil
}

// applyEnvironmentOverrides merges the section matching Environment.
// Production defaults to a slower capture interval when the file has
// no production section.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides
	switch c.Environment {
	case Development:
		overrides = c.Development
	case Production:
		overrides = c.Production
		if overrides == nil {
			overrides = &ConfigOverrides{
				Capture: &CaptureConfig{Interval: time.Second},
			}
		}
	}
	if overrides == nil {
		return
	}

	if overrides.Replay != nil {
		if overrides.Replay.Capacity != 0 {
			c.Replay.Capacity = overrides.Replay.Capacity
		}
		if overrides.Replay.RecordSize != 0 {
			c.Replay.RecordSize = overrides.Replay.RecordSize
		}
		if overrides.Replay.KeyFrameInterval != 0 {
			c.Replay.KeyFrameInterval = overrides.Replay.KeyFrameInterval
		}
		if overrides.Replay.KeyFrameSpan != 0 {
			c.Replay.KeyFrameSpan = overrides.Replay.KeyFrameSpan
		}
	}

	if overrides.Capture != nil {
		if overrides.Capture.Interval != 0 {
			c.Capture.Interval = overrides.Capture.Interval
		}
		if overrides.Capture.Socket != "" {
			c.Capture.Socket = overrides.Capture.Socket
		}
		if overrides.Capture.Target != "" {
			c.Capture.Target = overrides.Capture.Target
		}
	}

	if overrides.Snapshot != nil {
		if overrides.Snapshot.Compression != nil {
			c.Snapshot.Compression = *overrides.Snapshot.Compression
		}
		if overrides.Snapshot.Directory != "" {
			c.Snapshot.Directory = overrides.Snapshot.Directory
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME":            os.Getenv("HOME"),
		"XDG_RUNTIME_DIR": os.Getenv("XDG_RUNTIME_DIR"),
	}
	c.Capture.Socket = expandVars(c.Capture.Socket, vars)
	c.Snapshot.Directory = expandVars(c.Snapshot.Directory, vars)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors, reporting all of them.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.Replay.Capacity <= 0 {
		errs = append(errs, fmt.Errorf("replay.capacity must be positive, got %d", c.Replay.Capacity))
	} else if c.Replay.Capacity > replay.MaxCapacity {
		errs = append(errs, fmt.Errorf("replay.capacity %d exceeds the maximum of %d", c.Replay.Capacity, replay.MaxCapacity))
	}
	if c.Replay.RecordSize <= 0 {
		errs = append(errs, fmt.Errorf("replay.record_size must be positive, got %d", c.Replay.RecordSize))
	} else if c.Replay.Capacity > 0 && c.Replay.RecordSize > c.Replay.Capacity {
		errs = append(errs, fmt.Errorf("replay.record_size %d exceeds replay.capacity %d", c.Replay.RecordSize, c.Replay.Capacity))
	}
	if c.Replay.KeyFrameInterval <= 0 {
		errs = append(errs, fmt.Errorf("replay.key_frame_interval must be positive, got %d", c.Replay.KeyFrameInterval))
	}
	if !(c.Replay.KeyFrameSpan > 0 && c.Replay.KeyFrameSpan <= 1) {
		errs = append(errs, fmt.Errorf("replay.key_frame_span must be in (0, 1], got %g", c.Replay.KeyFrameSpan))
	}

	if c.Capture.Interval <= 0 {
		errs = append(errs, fmt.Errorf("capture.interval must be positive, got %s", c.Capture.Interval))
	}

	switch c.Snapshot.Compression {
	case compress.None, compress.LZ4, compress.Zstd:
	default:
		errs = append(errs, fmt.Errorf("snapshot.compression: unknown tag %d", c.Snapshot.Compression))
	}

	return errors.Join(errs...)
}

// ReplayOptions converts the replay section to DVR options. Clock,
// logger and metrics are left for the caller.
func (c *Config) ReplayOptions() replay.Options {
	return replay.Options{
		Capacity:         c.Replay.Capacity,
		RecordSize:       c.Replay.RecordSize,
		KeyFrameInterval: c.Replay.KeyFrameInterval,
		KeyFrameSpan:     c.Replay.KeyFrameSpan,
	}
}

// RecorderOptions converts the capture section to recorder options.
func (c *Config) RecorderOptions() replay.RecorderOptions {
	return replay.RecorderOptions{Interval: c.Capture.Interval}
}

// SnapshotPath resolves a bare file name against the snapshot
// directory. Names containing a path separator are returned unchanged.
func (c *Config) SnapshotPath(name string) string {
	if strings.ContainsRune(name, filepath.Separator) || c.Snapshot.Directory == "" {
		return name
	}
	return filepath.Join(c.Snapshot.Directory, name)
}

// EnsureSnapshotDirectory creates the snapshot directory if it does
// not exist.
func (c *Config) EnsureSnapshotDirectory() error {
	if c.Snapshot.Directory == "" {
		return nil
	}
	if err := os.MkdirAll(c.Snapshot.Directory, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", c.Snapshot.Directory, err)
	}
	return nil
}
