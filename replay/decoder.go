// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package replay

import (
	"context"
	"fmt"
	"sort"

	"github.com/bureau-foundation/replay/lib/arena"
)

// Decoder is a read cursor over a DVR's history. It owns a copy of the
// frame it is positioned on and never refers into the arena. A new
// decoder is empty; Seek positions it. Navigation failures leave the
// decoder where it was, except that a decoder whose frame has been
// evicted stays empty until the next successful Seek.
//
// Decoders are created by [DVR.NewDecoder] and must not be used after
// [DVR.ReleaseDecoder] or [DVR.Close]; a released decoder is empty and
// all navigation returns false.
type Decoder struct {
	dvr *DVR

	// Guarded by dvr.mu.
	frame    []byte
	diff     []byte
	key      arena.Key
	info     arena.FrameInfo
	valid    bool
	released bool
}

// Seek positions the decoder on the oldest frame whose timestamp is at
// or after timestamp. Returns false, leaving the decoder unchanged, if
// the DVR is empty or timestamp is later than the newest frame.
func (decoder *Decoder) Seek(timestamp int64) bool {
	decoder.dvr.mu.Lock()
	defer decoder.dvr.mu.Unlock()

	store := decoder.dvr.store
	if decoder.released || store.IsEmpty() {
		return false
	}
	last, _ := store.Entry(store.LastKey())
	if timestamp > last.Info.Timestamp {
		return false
	}

	first := store.FirstKey()
	count := store.Len()
	offset := sort.Search(count, func(i int) bool {
		entry, _ := store.Entry(first + arena.Key(i))
		return entry.Info.Timestamp >= timestamp
	})
	decoder.load(first + arena.Key(offset))
	return true
}

// SeekKey positions the decoder on key. Returns false, leaving the
// decoder unchanged, if key is not live.
func (decoder *Decoder) SeekKey(key arena.Key) bool {
	decoder.dvr.mu.Lock()
	defer decoder.dvr.mu.Unlock()

	if decoder.released {
		return false
	}
	if _, ok := decoder.dvr.store.Entry(key); !ok {
		return false
	}
	decoder.load(key)
	return true
}

// Next moves to the following frame. Returns false at the newest frame
// or when the decoder is empty.
func (decoder *Decoder) Next() bool {
	decoder.dvr.mu.Lock()
	defer decoder.dvr.mu.Unlock()

	if !decoder.positioned() {
		return false
	}
	store := decoder.dvr.store
	entry, ok := store.Entry(decoder.key + 1)
	if !ok {
		return false
	}
	if entry.Info.Type == arena.KeyFrame {
		decoder.load(entry.Key)
		return true
	}

	// A diff applies directly on top of the frame already loaded.
	decoder.diff, _ = store.AppendBlock(decoder.diff[:0], entry.Key)
	decoder.apply(entry.Key)
	decoder.key = entry.Key
	decoder.info = entry.Info
	return true
}

// Prev moves to the preceding frame. Returns false at the oldest frame
// or when the decoder is empty.
func (decoder *Decoder) Prev() bool {
	decoder.dvr.mu.Lock()
	defer decoder.dvr.mu.Unlock()

	if !decoder.positioned() {
		return false
	}
	if _, ok := decoder.dvr.store.Entry(decoder.key - 1); !ok {
		return false
	}
	decoder.load(decoder.key - 1)
	return true
}

// Valid reports whether the decoder is positioned on a live frame.
func (decoder *Decoder) Valid() bool {
	decoder.dvr.mu.Lock()
	defer decoder.dvr.mu.Unlock()
	return decoder.positioned()
}

// Key returns the key of the loaded frame, or false if the decoder is
// empty.
func (decoder *Decoder) Key() (arena.Key, bool) {
	decoder.dvr.mu.Lock()
	defer decoder.dvr.mu.Unlock()
	return decoder.key, decoder.positioned()
}

// Frame returns a copy of the reconstructed raw frame, or nil if the
// decoder is empty. A positioned decoder never returns nil, even for a
// zero-length frame.
func (decoder *Decoder) Frame() []byte {
	decoder.dvr.mu.Lock()
	defer decoder.dvr.mu.Unlock()
	if !decoder.positioned() {
		return nil
	}
	return append([]byte{}, decoder.frame...)
}

// Info returns the metadata of the loaded frame. Its Type is the stored
// frame type; the reconstructed content is always complete.
func (decoder *Decoder) Info() arena.FrameInfo {
	decoder.dvr.mu.Lock()
	defer decoder.dvr.mu.Unlock()
	if !decoder.positioned() {
		return arena.FrameInfo{}
	}
	return decoder.info
}

// Timestamp returns the loaded frame's timestamp in microseconds, or 0
// if the decoder is empty.
func (decoder *Decoder) Timestamp() int64 {
	return decoder.Info().Timestamp
}

func (decoder *Decoder) positioned() bool {
	return decoder.valid && !decoder.released
}

// load rebuilds the frame at key from the nearest key frame at or
// before it. Caller holds dvr.mu and has checked that key is live.
func (decoder *Decoder) load(key arena.Key) {
	store := decoder.dvr.store

	base := key
	for {
		entry, ok := store.Entry(base)
		if !ok {
			panic(fmt.Sprintf("replay: no key frame at or before key %d (first key %d)", key, store.FirstKey()))
		}
		if entry.Info.Type == arena.KeyFrame {
			break
		}
		base--
	}

	decoder.frame, _ = store.AppendBlock(decoder.frame[:0], base)
	for chained := base + 1; chained <= key; chained++ {
		decoder.diff, _ = store.AppendBlock(decoder.diff[:0], chained)
		decoder.apply(chained)
	}

	entry, _ := store.Entry(key)
	decoder.key = key
	decoder.info = entry.Info
	decoder.valid = true
}

// apply replays decoder.diff, the stored bytes of key, onto the frame.
func (decoder *Decoder) apply(key arena.Key) {
	if err := decoder.dvr.codec.Apply(decoder.frame, decoder.diff); err != nil {
		panic(fmt.Sprintf("replay: stored diff frame %d: %v", key, err))
	}
}

// invalidateIndex is called by the DVR, with dvr.mu held, once key has
// been evicted. Every key a loaded frame depends on is at or below the
// loaded key and the oldest live frame is always a key frame, so only
// the loaded key itself needs checking.
func (decoder *Decoder) invalidateIndex(key arena.Key) {
	if !decoder.valid || decoder.key > key {
		return
	}
	decoder.valid = false
	decoder.dvr.logger.Debug("decoder invalidated", "key", decoder.key, "evicted", key)
	decoder.dvr.metrics.recordInvalidation(context.Background())
}
