// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package replay records a bounded history of terminal screens and
// plays it back.
//
// A [DVR] owns one [arena.Store] and one [Encoder]. Each frame passed to
// [DVR.AppendFrame] is a buffer of fixed-size records (see lib/screen
// for the cell record the recorder uses). The encoder stores it either
// verbatim as a key frame or as a run sequence against the previous
// raw frame (lib/framediff). When the arena is full the oldest frames
// are evicted, and every live [Decoder] whose loaded frame went with
// them drops back to the empty state.
//
// Decoders are independent read cursors:
//
//	decoder := dvr.NewDecoder()
//	defer dvr.ReleaseDecoder(decoder)
//	if decoder.Seek(timestamp) {
//	    render(decoder.Frame(), decoder.Info())
//	}
//	for decoder.Prev() {
//	    ...
//	}
//
// A frame at key K is rebuilt from the nearest key frame at or before
// K by applying each diff in between. The store never keeps a diff
// frame whose key frame has been evicted: after a reservation evicts,
// the encoder trims leading diff frames until the oldest live frame is
// a key frame. Every live key is therefore decodable and a decoder is
// invalidated exactly when its own key is evicted.
//
// Key frames are forced on the first frame, when the previous key
// frame is gone, every [Options.KeyFrameInterval] frames, when the
// chain since the last key frame would exceed [Options.KeyFrameSpan]
// of the capacity, on a change of frame size or dimensions, and when
// a diff would be larger than the raw frame.
//
// All DVR and decoder methods are safe for concurrent use; they share
// the DVR's mutex, so an eviction and the decoder invalidations it
// causes are observed atomically.
//
// [DVR.Snapshot] and [Restore] dump and rebuild the complete state,
// and [WriteSnapshot] / [ReadSnapshot] stream a snapshot as CBOR.
// [Recorder] drives a DVR from a [FrameSource] on a clock ticker.
package replay
