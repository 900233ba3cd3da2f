// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package replay

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/replay/lib/clock"
)

// Defaults applied to zero-valued Options fields.
const (
	DefaultCapacity         = 4 << 20
	DefaultRecordSize       = 16
	DefaultKeyFrameInterval = 64
	DefaultKeyFrameSpan     = 0.5
)

// MaxCapacity is the largest arena a DVR accepts. Restore checks a
// snapshot's capacity against it before allocating the arena.
const MaxCapacity = 1 << 30

// Options configures a DVR. Zero values select the defaults.
type Options struct {
	// Capacity is the arena size in bytes. A single frame may not be
	// larger than this.
	Capacity int

	// RecordSize is the size of one record in a frame. Frame lengths
	// must be multiples of it and diffs compare whole records.
	RecordSize int

	// KeyFrameInterval bounds the chain length: a key frame is written
	// at least every KeyFrameInterval frames. 1 makes every frame a key
	// frame.
	KeyFrameInterval int

	// KeyFrameSpan is the largest fraction of Capacity, in (0, 1], that
	// a key frame and the diffs that depend on it may occupy together.
	KeyFrameSpan float64

	// Clock stamps frames appended with a zero timestamp. Defaults to
	// clock.Real().
	Clock clock.Clock

	// Logger receives debug records for key-frame decisions and
	// evictions. Defaults to a discarding logger.
	Logger *slog.Logger

	// Metrics records frame and eviction counters. Nil disables them.
	Metrics *Metrics
}

// Validate reports every problem with the options.
func (options Options) Validate() error {
	var errs []error
	if options.Capacity < 0 {
		errs = append(errs, fmt.Errorf("capacity must not be negative, got %d", options.Capacity))
	} else if options.Capacity > MaxCapacity {
		errs = append(errs, fmt.Errorf("capacity %d exceeds the maximum of %d", options.Capacity, MaxCapacity))
	}
	if options.RecordSize < 0 {
		errs = append(errs, fmt.Errorf("record size must not be negative, got %d", options.RecordSize))
	}
	if options.KeyFrameInterval < 0 {
		errs = append(errs, fmt.Errorf("key frame interval must not be negative, got %d", options.KeyFrameInterval))
	}
	if !(options.KeyFrameSpan >= 0 && options.KeyFrameSpan <= 1) {
		errs = append(errs, fmt.Errorf("key frame span must be in (0, 1], got %g", options.KeyFrameSpan))
	}

	if len(errs) == 0 {
		resolved := options.withDefaults()
		if resolved.RecordSize > resolved.Capacity {
			errs = append(errs, fmt.Errorf("record size %d exceeds capacity %d", resolved.RecordSize, resolved.Capacity))
		}
	}
	return errors.Join(errs...)
}

func (options Options) withDefaults() Options {
	if options.Capacity == 0 {
		options.Capacity = DefaultCapacity
	}
	if options.RecordSize == 0 {
		options.RecordSize = DefaultRecordSize
	}
	if options.KeyFrameInterval == 0 {
		options.KeyFrameInterval = DefaultKeyFrameInterval
	}
	if options.KeyFrameSpan == 0 {
		options.KeyFrameSpan = DefaultKeyFrameSpan
	}
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.DiscardHandler)
	}
	return options
}

// spanBytes converts KeyFrameSpan into a byte limit. Never below one
// record so a chain can always hold its key frame.
func (options Options) spanBytes() int {
	return max(int(options.KeyFrameSpan*float64(options.Capacity)), options.RecordSize)
}
