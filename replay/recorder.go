// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package replay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bureau-foundation/replay/lib/arena"
	"github.com/bureau-foundation/replay/lib/clock"
)

// FrameSource produces the current screen as a raw frame. Capture may
// leave info.Timestamp zero to have the DVR stamp it.
type FrameSource interface {
	Capture(ctx context.Context) ([]byte, arena.FrameInfo, error)
}

// RecorderOptions configures a Recorder.
type RecorderOptions struct {
	// Interval between captures. Required.
	Interval time.Duration

	// Clock drives the capture ticker. Defaults to clock.Real().
	Clock clock.Clock

	// Logger receives a warning for each failed capture. Defaults to
	// a discarding logger.
	Logger *slog.Logger
}

// Recorder polls a FrameSource and appends every captured frame to a
// DVR.
type Recorder struct {
	dvr      *DVR
	source   FrameSource
	interval time.Duration
	clock    clock.Clock
	logger   *slog.Logger
}

// NewRecorder returns a recorder feeding dvr from source.
func NewRecorder(dvr *DVR, source FrameSource, options RecorderOptions) (*Recorder, error) {
	if options.Interval <= 0 {
		return nil, fmt.Errorf("replay: recorder interval must be positive, got %v", options.Interval)
	}
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.DiscardHandler)
	}
	return &Recorder{
		dvr:      dvr,
		source:   source,
		interval: options.Interval,
		clock:    options.Clock,
		logger:   options.Logger,
	}, nil
}

// Run captures one frame immediately and then one per interval until
// ctx is cancelled. A failed capture, or a frame the DVR cannot hold,
// is logged and skipped. Returns nil on cancellation.
func (recorder *Recorder) Run(ctx context.Context) error {
	ticker := recorder.clock.NewTicker(recorder.interval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			return nil
		}
		recorder.captureOnce(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (recorder *Recorder) captureOnce(ctx context.Context) {
	frame, info, err := recorder.source.Capture(ctx)
	if err != nil {
		// Captures interrupted by shutdown are not failures.
		if ctx.Err() != nil {
			return
		}
		recorder.logger.Warn("frame capture failed", "error", err)
		return
	}
	// Record size and capacity are fixed at construction.
	recordSize, capacity := recorder.dvr.codec.RecordSize(), recorder.dvr.store.Capacity()
	if len(frame)%recordSize != 0 || len(frame) > capacity {
		recorder.logger.Warn("captured frame does not fit the replay buffer",
			"length", len(frame),
			"record_size", recordSize,
			"capacity", capacity,
		)
		return
	}
	recorder.dvr.AppendFrame(frame, info)
}
