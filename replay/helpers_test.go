// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package replay

import (
	"testing"
	"time"

	"github.com/bureau-foundation/replay/lib/arena"
	"github.com/bureau-foundation/replay/lib/clock"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// newTestDVR creates a DVR on a fake clock and closes it when the test
// ends.
func newTestDVR(t *testing.T, options Options) *DVR {
	t.Helper()
	if options.Clock == nil {
		options.Clock = clock.Fake(epoch)
	}
	dvr, err := New(options)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(dvr.Close)
	return dvr
}

// appendAt appends frame as a single row of records with the given
// timestamp.
func appendAt(dvr *DVR, frame []byte, timestamp int64) arena.Entry {
	return dvr.AppendFrame(frame, arena.FrameInfo{
		Width:     len(frame) / dvr.codec.RecordSize(),
		Height:    1,
		Timestamp: timestamp,
	})
}

// frameTypes returns the stored type of every live frame, oldest first,
// as a string of 'K' and 'D'.
func frameTypes(dvr *DVR) string {
	var types []byte
	for _, entry := range dvr.Entries() {
		if entry.Info.Type == arena.KeyFrame {
			types = append(types, 'K')
		} else {
			types = append(types, 'D')
		}
	}
	return string(types)
}

// invert returns a copy of frame with every byte flipped, so no record
// matches the original.
func invert(frame []byte) []byte {
	inverted := make([]byte, len(frame))
	for i, value := range frame {
		inverted[i] = ^value
	}
	return inverted
}

func requirePanic(t *testing.T, name string, function func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Errorf("%s: expected panic", name)
		}
	}()
	function()
}
