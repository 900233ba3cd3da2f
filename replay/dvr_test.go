// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package replay

import (
	"bytes"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/replay/lib/arena"
	"github.com/bureau-foundation/replay/lib/clock"
	"github.com/bureau-foundation/replay/lib/testutil"
)

// scenarioFrames builds a 1000-byte frame and two successors that each
// change one run of eleven 4-byte records, giving 51-byte diffs.
func scenarioFrames(generator *testutil.FrameGenerator) [][]byte {
	first := generator.Random(250)
	second := bytes.Clone(first)
	copy(second[400:444], invert(first[400:444]))
	third := bytes.Clone(second)
	copy(third[600:644], invert(second[600:644]))
	return [][]byte{first, second, third}
}

func TestDVRLargeKeyFrameEvictsOldestFrames(t *testing.T) {
	t.Parallel()
	dvr := newTestDVR(t, Options{Capacity: 4096, RecordSize: 4, KeyFrameSpan: 1})
	generator := testutil.NewFrameGenerator(31, 4)

	decoders := make([]*Decoder, 3)
	for i, frame := range scenarioFrames(generator) {
		entry := appendAt(dvr, frame, int64(i+1))
		if entry.Key != arena.Key(i) {
			t.Fatalf("frame %d stored at key %d", i, entry.Key)
		}
	}
	if got := frameTypes(dvr); got != "KDD" {
		t.Fatalf("frame types: got %s, want KDD", got)
	}
	for i, entry := range dvr.Entries() {
		wantLength := []int{1000, 51, 51}[i]
		if entry.Length != wantLength {
			t.Errorf("key %d: length %d, want %d", entry.Key, entry.Length, wantLength)
		}
		decoders[i] = dvr.NewDecoder()
		decoders[i].SeekKey(entry.Key)
	}
	if last, _ := dvr.LastKey(); dvr.FirstKey() != 0 || last != 2 {
		t.Fatalf("key range: [%d, %d], want [0, 2]", dvr.FirstKey(), last)
	}

	dvr.ForceKeyFrame()
	big := generator.Random(875)
	entry := appendAt(dvr, big, 4)

	if entry.Key != 3 || entry.Info.Type != arena.KeyFrame || entry.Length != 3500 {
		t.Errorf("3500-byte frame: got %+v", entry)
	}
	// Key 0 goes to make room; keys 1 and 2 are diffs against it and
	// go with it.
	if dvr.FirstKey() != 3 {
		t.Errorf("FirstKey: got %d, want 3", dvr.FirstKey())
	}
	for i, decoder := range decoders {
		if decoder.Valid() {
			t.Errorf("decoder on evicted key %d is still valid", i)
		}
	}
	if first, _ := dvr.FirstTimestamp(); first != 4 {
		t.Errorf("FirstTimestamp: got %d, want 4", first)
	}
}

func TestDVRStampsAndClampsTimestamps(t *testing.T) {
	t.Parallel()
	fake := clock.Fake(epoch)
	dvr := newTestDVR(t, Options{Capacity: 4096, RecordSize: 4, Clock: fake})
	frame := []byte{1, 2, 3, 4}

	entry := appendAt(dvr, frame, 0)
	if entry.Info.Timestamp != epoch.UnixMicro() {
		t.Errorf("stamped timestamp: got %d, want %d", entry.Info.Timestamp, epoch.UnixMicro())
	}

	fake.Advance(time.Second)
	entry = appendAt(dvr, frame, 0)
	want := epoch.Add(time.Second).UnixMicro()
	if entry.Info.Timestamp != want {
		t.Errorf("second timestamp: got %d, want %d", entry.Info.Timestamp, want)
	}

	entry = appendAt(dvr, frame, want-500)
	if entry.Info.Timestamp != want {
		t.Errorf("backwards timestamp: got %d, want clamp to %d", entry.Info.Timestamp, want)
	}

	// A wall clock jump backwards is clamped the same way.
	fake.Set(epoch.Add(-time.Hour))
	entry = appendAt(dvr, frame, 0)
	if entry.Info.Timestamp != want {
		t.Errorf("timestamp after clock jump: got %d, want %d", entry.Info.Timestamp, want)
	}

	first, _ := dvr.FirstTimestamp()
	last, _ := dvr.LastTimestamp()
	if first != epoch.UnixMicro() || last != want {
		t.Errorf("timestamp range: [%d, %d], want [%d, %d]", first, last, epoch.UnixMicro(), want)
	}
}

func TestDVREmptyAccessors(t *testing.T) {
	t.Parallel()
	dvr := newTestDVR(t, Options{Capacity: 64, RecordSize: 4})

	if !dvr.IsEmpty() {
		t.Error("new DVR is not empty")
	}
	if _, ok := dvr.FirstTimestamp(); ok {
		t.Error("FirstTimestamp on an empty DVR reported a value")
	}
	if _, ok := dvr.LastTimestamp(); ok {
		t.Error("LastTimestamp on an empty DVR reported a value")
	}
	if _, ok := dvr.LastKey(); ok {
		t.Error("LastKey on an empty DVR reported a value")
	}
	if dvr.FirstKey() != 0 || dvr.NextKey() != 0 || len(dvr.Entries()) != 0 {
		t.Errorf("empty key range: first %d next %d", dvr.FirstKey(), dvr.NextKey())
	}
}

func TestDVRStats(t *testing.T) {
	t.Parallel()
	dvr := newTestDVR(t, Options{Capacity: 4096, RecordSize: 4, KeyFrameInterval: 2})
	frame := testutil.NewFrameGenerator(32, 4).Random(10)
	for i := range 5 {
		appendAt(dvr, frame, int64(i+1))
	}

	stats := dvr.Stats()
	want := Stats{Capacity: 4096, Used: 40*3 + 2*2, Frames: 5, KeyFrames: 3, RecordSize: 4}
	if stats != want {
		t.Errorf("Stats: got %+v, want %+v", stats, want)
	}
}

func TestDVRAppendPanics(t *testing.T) {
	t.Parallel()

	requirePanic(t, "partial record", func() {
		dvr := newTestDVR(t, Options{Capacity: 64, RecordSize: 4})
		dvr.AppendFrame(make([]byte, 6), arena.FrameInfo{})
	})
	requirePanic(t, "frame larger than capacity", func() {
		dvr := newTestDVR(t, Options{Capacity: 64, RecordSize: 4})
		dvr.AppendFrame(make([]byte, 68), arena.FrameInfo{})
	})
	requirePanic(t, "append after close", func() {
		dvr := newTestDVR(t, Options{Capacity: 64, RecordSize: 4})
		dvr.Close()
		dvr.AppendFrame(make([]byte, 4), arena.FrameInfo{})
	})
	requirePanic(t, "release a foreign decoder", func() {
		one := newTestDVR(t, Options{Capacity: 64, RecordSize: 4})
		other := newTestDVR(t, Options{Capacity: 64, RecordSize: 4})
		other.ReleaseDecoder(one.NewDecoder())
	})
}

func TestDVRFrameFillingCapacity(t *testing.T) {
	t.Parallel()
	dvr := newTestDVR(t, Options{Capacity: 64, RecordSize: 4})
	generator := testutil.NewFrameGenerator(33, 4)

	appendAt(dvr, generator.Random(4), 1)
	full := generator.Random(16)
	entry := appendAt(dvr, full, 2)
	if dvr.FirstKey() != entry.Key || dvr.Stats().Used != 64 {
		t.Errorf("full-capacity frame: first key %d, used %d", dvr.FirstKey(), dvr.Stats().Used)
	}

	decoder := dvr.NewDecoder()
	if !decoder.Seek(2) || !bytes.Equal(decoder.Frame(), full) {
		t.Error("full-capacity frame does not decode")
	}
}

func TestNewRejectsInvalidOptions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		options Options
		want    []string
	}{
		{"negative capacity", Options{Capacity: -1}, []string{"capacity"}},
		{"capacity above maximum", Options{Capacity: MaxCapacity + 1}, []string{"exceeds the maximum"}},
		{"negative record size", Options{RecordSize: -4}, []string{"record size"}},
		{"negative interval", Options{KeyFrameInterval: -1}, []string{"interval"}},
		{"span above one", Options{KeyFrameSpan: 1.5}, []string{"span"}},
		{"span NaN", Options{KeyFrameSpan: math.NaN()}, []string{"span"}},
		{"record larger than capacity", Options{Capacity: 8, RecordSize: 16}, []string{"exceeds capacity"}},
		{"several problems", Options{Capacity: -1, KeyFrameSpan: 2}, []string{"capacity", "span"}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			_, err := New(test.options)
			if err == nil {
				t.Fatal("New accepted invalid options")
			}
			for _, fragment := range test.want {
				if !strings.Contains(err.Error(), fragment) {
					t.Errorf("error %q does not mention %q", err, fragment)
				}
			}
		})
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	t.Parallel()
	dvr, err := New(Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer dvr.Close()

	stats := dvr.Stats()
	if stats.Capacity != DefaultCapacity || stats.RecordSize != DefaultRecordSize {
		t.Errorf("defaults: capacity %d record size %d", stats.Capacity, stats.RecordSize)
	}
	entry := dvr.AppendFrame(make([]byte, DefaultRecordSize*4), arena.FrameInfo{})
	if entry.Info.Timestamp == 0 {
		t.Error("default clock did not stamp the frame")
	}
}

func TestDVRConcurrentReadersAndWriter(t *testing.T) {
	t.Parallel()
	dvr := newTestDVR(t, Options{Capacity: 8192, RecordSize: 8, KeyFrameInterval: 6})
	frames := testutil.NewFrameGenerator(34, 8).Sequence(2000, 32, 3)

	var wg sync.WaitGroup
	done := make(chan struct{})
	errs := make(chan string, 16)

	for reader := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			decoder := dvr.NewDecoder()
			defer dvr.ReleaseDecoder(decoder)
			for step := 0; ; step++ {
				select {
				case <-done:
					return
				default:
				}
				switch (step + reader) % 4 {
				case 0:
					decoder.Seek(int64(step%2000 + 1))
				case 1, 2:
					decoder.Next()
				case 3:
					decoder.Prev()
				}
				key, ok := decoder.Key()
				frame := decoder.Frame()
				if ok && frame != nil && !bytes.Equal(frame, frames[key]) {
					select {
					case errs <- fmt.Sprintf("reader %d: decoded frame differs at key %d", reader, key):
					default:
					}
					return
				}
			}
		}()
	}

	for i, frame := range frames {
		appendAt(dvr, frame, int64(i+1))
	}
	close(done)
	wg.Wait()
	close(errs)
	for message := range errs {
		t.Error(message)
	}
}
