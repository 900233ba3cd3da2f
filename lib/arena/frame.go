// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package arena

import "fmt"

// Key identifies a stored frame. Keys are assigned in allocation order
// starting at zero and are never reused.
type Key int64

// FrameType records how a stored frame's bytes must be interpreted.
type FrameType uint8

const (
	// KeyFrame bytes are a complete, independently decodable frame.
	KeyFrame FrameType = 0

	// DiffFrame bytes are a run sequence relative to the previous
	// frame's raw content.
	DiffFrame FrameType = 1
)

// String returns "key" or "diff".
func (frameType FrameType) String() string {
	switch frameType {
	case KeyFrame:
		return "key"
	case DiffFrame:
		return "diff"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(frameType))
	}
}

// FrameInfo is the small metadata record stored alongside each frame.
// Timestamp is in microseconds since the Unix epoch.
type FrameInfo struct {
	Type      FrameType `cbor:"type"`
	Width     int       `cbor:"width"`
	Height    int       `cbor:"height"`
	CursorX   int       `cbor:"cursor_x"`
	CursorY   int       `cbor:"cursor_y"`
	Timestamp int64     `cbor:"timestamp"`
}

// Entry describes one stored frame: its key, where its bytes live in
// the arena, and its metadata. Entries are created by Allocate and
// dropped by Deallocate; they are never modified in between.
type Entry struct {
	Key      Key       `cbor:"key"`
	Info     FrameInfo `cbor:"info"`
	Position int       `cbor:"position"`
	Length   int       `cbor:"length"`
}
