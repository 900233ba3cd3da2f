// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package replay

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/replay/lib/arena"
	"github.com/bureau-foundation/replay/lib/framediff"
)

// Reasons the encoder writes a key frame instead of a diff. Recorded in
// the "reason" log attribute and metric attribute.
const (
	ReasonFirst        = "first"
	ReasonForced       = "forced"
	ReasonChainEvicted = "chain_evicted"
	ReasonInterval     = "interval"
	ReasonSpan         = "span"
	ReasonResize       = "resize"
	ReasonDiffOverflow = "diff_overflow"
)

// Encoder turns a stream of raw frames into key and diff frames in a
// store. Every Append must be preceded by a Reserve of at least the
// frame's length. An Encoder is not safe for concurrent use; the DVR
// serializes access to it.
type Encoder struct {
	store   *arena.Store
	codec   *framediff.Codec
	logger  *slog.Logger
	metrics *Metrics

	interval  int
	spanBytes int

	// lastFrame is the raw content of the previous frame. Diffs are
	// always computed against it, never against stored diff bytes.
	lastFrame []byte
	lastInfo  arena.FrameInfo
	haveLast  bool

	framesSinceKeyFrame int
	bytesSinceKeyFrame  int
	lastKeyFrame        arena.Key
	forceKeyFrame       bool

	reserved int
}

// NewEncoder returns an encoder writing to store. options must already
// be valid; zero fields take their defaults.
func NewEncoder(store *arena.Store, options Options) *Encoder {
	options = options.withDefaults()
	options.Capacity = store.Capacity()
	return &Encoder{
		store:        store,
		codec:        framediff.New(options.RecordSize),
		logger:       options.Logger,
		metrics:      options.Metrics,
		interval:     options.KeyFrameInterval,
		spanBytes:    options.spanBytes(),
		lastKeyFrame: -1,
		reserved:     -1,
	}
}

// RecordSize returns the record size frames are compared in.
func (encoder *Encoder) RecordSize() int { return encoder.codec.RecordSize() }

// ForceKeyFrame makes the next appended frame a key frame.
func (encoder *Encoder) ForceKeyFrame() { encoder.forceKeyFrame = true }

// Reserve makes room for a frame of up to length bytes, evicting the
// oldest frames as needed, and then trims leading diff frames whose key
// frame was evicted. Returns true if anything was evicted; the evicted
// keys are the ones below the store's FirstKey that were live before.
// A diff is never larger than the raw frame, so the raw length is
// always a sufficient reservation. Panics if length exceeds the store
// capacity.
func (encoder *Encoder) Reserve(length int) bool {
	evicted := encoder.store.Reserve(length)
	for !encoder.store.IsEmpty() {
		entry, _ := encoder.store.Entry(encoder.store.FirstKey())
		if entry.Info.Type == arena.KeyFrame {
			break
		}
		encoder.store.Deallocate()
		evicted = true
	}
	encoder.reserved = length
	return evicted
}

// Append encodes frame and commits it to the store, returning the new
// entry. info.Type is ignored and replaced with the encoder's decision.
// Panics if there is no outstanding reservation, if frame is longer
// than the reservation, or if its length is not a multiple of the
// record size.
func (encoder *Encoder) Append(frame []byte, info arena.FrameInfo) arena.Entry {
	if encoder.reserved < 0 {
		panic("replay: append without a reservation")
	}
	if len(frame) > encoder.reserved {
		panic(fmt.Sprintf("replay: append of %d bytes exceeds reservation of %d", len(frame), encoder.reserved))
	}
	if len(frame)%encoder.codec.RecordSize() != 0 {
		panic(fmt.Sprintf("replay: frame of %d bytes is not a multiple of record size %d",
			len(frame), encoder.codec.RecordSize()))
	}

	scratch := encoder.store.Scratch()[:len(frame)]
	reason := encoder.keyFrameReason(frame, info)

	length := 0
	if reason == "" {
		var ok bool
		length, ok = encoder.codec.Encode(scratch, encoder.lastFrame, frame)
		if !ok {
			reason = ReasonDiffOverflow
		}
	}

	if reason != "" {
		info.Type = arena.KeyFrame
		length = copy(scratch, frame)
	} else {
		info.Type = arena.DiffFrame
	}

	entry := encoder.store.Allocate(length, info)
	encoder.reserved = -1

	encoder.lastFrame = append(encoder.lastFrame[:0], frame...)
	encoder.lastInfo = info
	encoder.haveLast = true
	if info.Type == arena.KeyFrame {
		encoder.framesSinceKeyFrame = 0
		encoder.bytesSinceKeyFrame = length
		encoder.lastKeyFrame = entry.Key
		encoder.forceKeyFrame = false

		encoder.logger.Debug("key frame",
			"key", entry.Key,
			"reason", reason,
			"length", length,
		)
		encoder.metrics.recordKeyFrame(context.Background(), reason)
	} else {
		encoder.framesSinceKeyFrame++
		encoder.bytesSinceKeyFrame += length
	}
	encoder.metrics.recordFrame(context.Background(), info.Type, length)
	return entry
}

// keyFrameReason returns why frame must be stored as a key frame, or
// "" if a diff may be attempted.
func (encoder *Encoder) keyFrameReason(frame []byte, info arena.FrameInfo) string {
	switch {
	case !encoder.haveLast:
		return ReasonFirst
	case encoder.forceKeyFrame:
		return ReasonForced
	case encoder.lastKeyFrame < encoder.store.FirstKey():
		return ReasonChainEvicted
	case encoder.framesSinceKeyFrame+1 >= encoder.interval:
		return ReasonInterval
	case encoder.bytesSinceKeyFrame+len(frame) > encoder.spanBytes:
		return ReasonSpan
	case len(frame) != len(encoder.lastFrame),
		info.Width != encoder.lastInfo.Width,
		info.Height != encoder.lastInfo.Height:
		return ReasonResize
	}
	return ""
}

// state returns the encoder's contribution to a snapshot.
func (encoder *Encoder) state() EncoderState {
	return EncoderState{
		LastFrame:           append([]byte(nil), encoder.lastFrame...),
		LastInfo:            encoder.lastInfo,
		HaveLast:            encoder.haveLast,
		FramesSinceKeyFrame: encoder.framesSinceKeyFrame,
		BytesSinceKeyFrame:  encoder.bytesSinceKeyFrame,
		LastKeyFrame:        encoder.lastKeyFrame,
		ForceKeyFrame:       encoder.forceKeyFrame,
	}
}

func (encoder *Encoder) restore(state EncoderState) {
	encoder.lastFrame = append(encoder.lastFrame[:0], state.LastFrame...)
	encoder.lastInfo = state.LastInfo
	encoder.haveLast = state.HaveLast
	encoder.framesSinceKeyFrame = state.FramesSinceKeyFrame
	encoder.bytesSinceKeyFrame = state.BytesSinceKeyFrame
	encoder.lastKeyFrame = state.LastKeyFrame
	encoder.forceKeyFrame = state.ForceKeyFrame
}
