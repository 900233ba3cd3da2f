// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package replay

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bureau-foundation/replay/lib/arena"
	"github.com/bureau-foundation/replay/lib/clock"
	"github.com/bureau-foundation/replay/lib/framediff"
)

// DVR records frames into a bounded circular history and hands out
// decoders that play it back. Safe for concurrent use.
type DVR struct {
	mu sync.Mutex

	store   *arena.Store
	encoder *Encoder
	codec   *framediff.Codec

	clock   clock.Clock
	logger  *slog.Logger
	metrics *Metrics

	decoders map[*Decoder]struct{}
	closed   bool
}

// New creates an empty DVR.
func New(options Options) (*DVR, error) {
	if err := options.Validate(); err != nil {
		return nil, fmt.Errorf("replay: invalid options: %w", err)
	}
	options = options.withDefaults()
	return newDVR(arena.New(options.Capacity), options), nil
}

func newDVR(store *arena.Store, options Options) *DVR {
	return &DVR{
		store:    store,
		encoder:  NewEncoder(store, options),
		codec:    framediff.New(options.RecordSize),
		clock:    options.Clock,
		logger:   options.Logger,
		metrics:  options.Metrics,
		decoders: make(map[*Decoder]struct{}),
	}
}

// AppendFrame records frame, returning the stored entry. The frame is
// copied. info.Type is advisory and replaced by the encoder's choice.
// A zero info.Timestamp is taken from the clock, and a timestamp
// earlier than the previous frame's is raised to it so timestamps never
// decrease.
//
// Decoders positioned on a frame that this append evicts become empty
// before AppendFrame returns.
//
// Panics if the frame is larger than the capacity or its length is not
// a multiple of the record size.
func (dvr *DVR) AppendFrame(frame []byte, info arena.FrameInfo) arena.Entry {
	dvr.mu.Lock()
	defer dvr.mu.Unlock()

	if dvr.closed {
		panic("replay: append to a closed DVR")
	}
	if len(frame)%dvr.codec.RecordSize() != 0 {
		panic(fmt.Sprintf("replay: frame of %d bytes is not a multiple of record size %d",
			len(frame), dvr.codec.RecordSize()))
	}

	if info.Timestamp == 0 {
		info.Timestamp = dvr.clock.Now().UnixMicro()
	}
	if dvr.encoder.haveLast && info.Timestamp < dvr.encoder.lastInfo.Timestamp {
		dvr.logger.Warn("frame timestamp went backwards, clamping",
			"timestamp", info.Timestamp,
			"previous", dvr.encoder.lastInfo.Timestamp,
		)
		info.Timestamp = dvr.encoder.lastInfo.Timestamp
	}

	firstBefore := dvr.store.FirstKey()
	if dvr.encoder.Reserve(len(frame)) {
		firstAfter := dvr.store.FirstKey()
		for key := firstBefore; key < firstAfter; key++ {
			for decoder := range dvr.decoders {
				decoder.invalidateIndex(key)
			}
		}
		dvr.logger.Debug("evicted frames",
			"first_key", firstAfter,
			"evicted", int(firstAfter-firstBefore),
		)
		dvr.metrics.recordEvictions(context.Background(), int(firstAfter-firstBefore))
	}

	return dvr.encoder.Append(frame, info)
}

// ForceKeyFrame makes the next appended frame a key frame.
func (dvr *DVR) ForceKeyFrame() {
	dvr.mu.Lock()
	defer dvr.mu.Unlock()
	dvr.encoder.ForceKeyFrame()
}

// NewDecoder creates an empty decoder bound to this DVR. Release it
// with ReleaseDecoder when done. Panics after Close.
func (dvr *DVR) NewDecoder() *Decoder {
	dvr.mu.Lock()
	defer dvr.mu.Unlock()

	if dvr.closed {
		panic("replay: decoder requested from a closed DVR")
	}
	decoder := &Decoder{dvr: dvr}
	dvr.decoders[decoder] = struct{}{}
	return decoder
}

// ReleaseDecoder unregisters decoder. Releasing twice, or releasing a
// decoder after Close, is a no-op.
func (dvr *DVR) ReleaseDecoder(decoder *Decoder) {
	dvr.mu.Lock()
	defer dvr.mu.Unlock()
	dvr.releaseLocked(decoder)
}

func (dvr *DVR) releaseLocked(decoder *Decoder) {
	if decoder.dvr != dvr {
		panic("replay: releasing a decoder that belongs to another DVR")
	}
	delete(dvr.decoders, decoder)
	decoder.released = true
	decoder.valid = false
	decoder.frame = nil
	decoder.diff = nil
}

// Decoders returns the number of outstanding decoders.
func (dvr *DVR) Decoders() int {
	dvr.mu.Lock()
	defer dvr.mu.Unlock()
	return len(dvr.decoders)
}

// Close releases every outstanding decoder. The recorded history stays
// readable through Snapshot and the accessors, but no new frames or
// decoders may be created.
func (dvr *DVR) Close() {
	dvr.mu.Lock()
	defer dvr.mu.Unlock()
	for decoder := range dvr.decoders {
		dvr.releaseLocked(decoder)
	}
	dvr.closed = true
}

// IsEmpty reports whether the DVR holds no frames.
func (dvr *DVR) IsEmpty() bool {
	dvr.mu.Lock()
	defer dvr.mu.Unlock()
	return dvr.store.IsEmpty()
}

// FirstTimestamp returns the timestamp of the oldest live frame.
func (dvr *DVR) FirstTimestamp() (int64, bool) {
	dvr.mu.Lock()
	defer dvr.mu.Unlock()
	return dvr.timestampLocked(dvr.store.FirstKey())
}

// LastTimestamp returns the timestamp of the newest live frame.
func (dvr *DVR) LastTimestamp() (int64, bool) {
	dvr.mu.Lock()
	defer dvr.mu.Unlock()
	return dvr.timestampLocked(dvr.store.LastKey())
}

func (dvr *DVR) timestampLocked(key arena.Key) (int64, bool) {
	entry, ok := dvr.store.Entry(key)
	return entry.Info.Timestamp, ok
}

// FirstKey returns the key of the oldest live frame. Equal to NextKey
// when the DVR is empty.
func (dvr *DVR) FirstKey() arena.Key {
	dvr.mu.Lock()
	defer dvr.mu.Unlock()
	return dvr.store.FirstKey()
}

// LastKey returns the key of the newest live frame, or false when the
// DVR is empty.
func (dvr *DVR) LastKey() (arena.Key, bool) {
	dvr.mu.Lock()
	defer dvr.mu.Unlock()
	return dvr.store.LastKey(), !dvr.store.IsEmpty()
}

// NextKey returns the key the next appended frame will receive.
func (dvr *DVR) NextKey() arena.Key {
	dvr.mu.Lock()
	defer dvr.mu.Unlock()
	return dvr.store.NextKey()
}

// Entry returns the index entry for key, or false if it is not live.
func (dvr *DVR) Entry(key arena.Key) (arena.Entry, bool) {
	dvr.mu.Lock()
	defer dvr.mu.Unlock()
	return dvr.store.Entry(key)
}

// Entries returns the index entries of every live frame, oldest first.
func (dvr *DVR) Entries() []arena.Entry {
	dvr.mu.Lock()
	defer dvr.mu.Unlock()
	entries := make([]arena.Entry, 0, dvr.store.Len())
	for key := dvr.store.FirstKey(); key < dvr.store.NextKey(); key++ {
		entry, _ := dvr.store.Entry(key)
		entries = append(entries, entry)
	}
	return entries
}

// Stats is a point-in-time summary of a DVR.
type Stats struct {
	Capacity   int
	Used       int
	Frames     int
	KeyFrames  int
	RecordSize int
}

// Stats returns the DVR's current usage.
func (dvr *DVR) Stats() Stats {
	dvr.mu.Lock()
	defer dvr.mu.Unlock()
	stats := Stats{
		Capacity:   dvr.store.Capacity(),
		Used:       dvr.store.Used(),
		Frames:     dvr.store.Len(),
		RecordSize: dvr.codec.RecordSize(),
	}
	for key := dvr.store.FirstKey(); key < dvr.store.NextKey(); key++ {
		if entry, _ := dvr.store.Entry(key); entry.Info.Type == arena.KeyFrame {
			stats.KeyFrames++
		}
	}
	return stats
}
