// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package replay

import (
	"bytes"
	"errors"
	"slices"
	"testing"

	"github.com/bureau-foundation/replay/lib/arena"
	"github.com/bureau-foundation/replay/lib/compress"
	"github.com/bureau-foundation/replay/lib/testutil"
	"github.com/bureau-foundation/replay/lib/version"
)

// recordedDVR returns a DVR that has wrapped its arena at least once,
// along with the generator that produced its frames and the last frame.
func recordedDVR(t *testing.T) (*DVR, *testutil.FrameGenerator, []byte) {
	t.Helper()
	dvr := newTestDVR(t, Options{Capacity: 2048, RecordSize: 8, KeyFrameInterval: 5})
	generator := testutil.NewFrameGenerator(41, 8)
	frame := generator.Random(12)
	for i := range 100 {
		frame = generator.Mutate(frame, i%4)
		appendAt(dvr, frame, int64(100+i))
	}
	if dvr.FirstKey() == 0 {
		t.Fatal("workload did not evict")
	}
	return dvr, generator, frame
}

func requireSameHistory(t *testing.T, got, want *DVR) {
	t.Helper()
	if !slices.Equal(got.Entries(), want.Entries()) {
		t.Fatalf("entries differ:\n got %+v\nwant %+v", got.Entries(), want.Entries())
	}
	if got.IsEmpty() != want.IsEmpty() || got.Stats() != want.Stats() {
		t.Errorf("stats: got %+v empty=%v, want %+v empty=%v", got.Stats(), got.IsEmpty(), want.Stats(), want.IsEmpty())
	}
	gotFirst, _ := got.FirstTimestamp()
	wantFirst, _ := want.FirstTimestamp()
	gotLast, _ := got.LastTimestamp()
	wantLast, _ := want.LastTimestamp()
	if gotFirst != wantFirst || gotLast != wantLast {
		t.Errorf("timestamps: got [%d, %d], want [%d, %d]", gotFirst, gotLast, wantFirst, wantLast)
	}

	gotDecoder, wantDecoder := got.NewDecoder(), want.NewDecoder()
	defer got.ReleaseDecoder(gotDecoder)
	defer want.ReleaseDecoder(wantDecoder)
	for _, entry := range want.Entries() {
		gotDecoder.SeekKey(entry.Key)
		wantDecoder.SeekKey(entry.Key)
		if !bytes.Equal(gotDecoder.Frame(), wantDecoder.Frame()) {
			t.Errorf("key %d decodes differently", entry.Key)
		}
	}
}

func TestSnapshotRoundtrip(t *testing.T) {
	t.Parallel()
	for _, tag := range []compress.Tag{compress.None, compress.LZ4, compress.Zstd} {
		t.Run(tag.String(), func(t *testing.T) {
			t.Parallel()
			dvr, generator, last := recordedDVR(t)

			snapshot, err := dvr.Snapshot(tag)
			if err != nil {
				t.Fatalf("Snapshot: %v", err)
			}
			var buffer bytes.Buffer
			if err := WriteSnapshot(&buffer, snapshot); err != nil {
				t.Fatalf("WriteSnapshot: %v", err)
			}
			decoded, err := ReadSnapshot(&buffer)
			if err != nil {
				t.Fatalf("ReadSnapshot: %v", err)
			}
			if decoded.Writer != version.Short() {
				t.Errorf("Writer: got %q, want %q", decoded.Writer, version.Short())
			}
			restored, err := Restore(decoded, Options{})
			if err != nil {
				t.Fatalf("Restore: %v", err)
			}
			t.Cleanup(restored.Close)

			requireSameHistory(t, restored, dvr)

			// The encoder state carries over: the same next frame is
			// encoded identically by both.
			next := generator.Mutate(last, 2)
			originalEntry := appendAt(dvr, next, 1000)
			restoredEntry := appendAt(restored, next, 1000)
			if originalEntry != restoredEntry {
				t.Errorf("entry after restore: got %+v, want %+v", restoredEntry, originalEntry)
			}
			requireSameHistory(t, restored, dvr)
		})
	}
}

func TestSnapshotOfEmptyDVR(t *testing.T) {
	t.Parallel()
	dvr := newTestDVR(t, Options{Capacity: 256, RecordSize: 4})

	snapshot, err := dvr.Snapshot(compress.Zstd)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if !snapshot.Empty || snapshot.FirstTimestamp != 0 || snapshot.LastTimestamp != 0 {
		t.Errorf("empty snapshot fields: %+v", snapshot)
	}
	restored, err := Restore(snapshot, Options{})
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	defer restored.Close()
	if !restored.IsEmpty() {
		t.Error("restored DVR is not empty")
	}
	entry := appendAt(restored, []byte{1, 2, 3, 4}, 1)
	if entry.Key != 0 || entry.Info.Type != arena.KeyFrame {
		t.Errorf("first frame after restore: %+v", entry)
	}
}

func TestSnapshotSharesNothingWithDVR(t *testing.T) {
	t.Parallel()
	dvr, _, _ := recordedDVR(t)
	snapshot, err := dvr.Snapshot(compress.None)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	before := dvr.Entries()

	clear(snapshot.Store.Arena)
	clear(snapshot.Encoder.LastFrame)
	snapshot.Store.Entries[0].Length = -1

	if !slices.Equal(dvr.Entries(), before) {
		t.Error("mutating the snapshot changed the DVR index")
	}
	decoder := dvr.NewDecoder()
	if !decoder.SeekKey(dvr.FirstKey()) {
		t.Error("DVR unreadable after mutating its snapshot")
	}
}

func TestRestoreRejectsBadSnapshots(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*testing.T, *Snapshot)
		options Options
		want    error
	}{
		{"version", func(t *testing.T, s *Snapshot) { s.Version = 99 }, Options{}, ErrSnapshotVersion},
		{"digest", func(t *testing.T, s *Snapshot) { s.Store.Arena[7] ^= 0xff }, Options{}, ErrSnapshotDigest},
		{"empty flag", func(t *testing.T, s *Snapshot) { s.Empty = true }, Options{}, arena.ErrInvalidState},
		{"first timestamp", func(t *testing.T, s *Snapshot) { s.FirstTimestamp-- }, Options{}, arena.ErrInvalidState},
		{"last timestamp", func(t *testing.T, s *Snapshot) { s.LastTimestamp++ }, Options{}, arena.ErrInvalidState},
		{"entry gap", func(t *testing.T, s *Snapshot) { s.Store.Entries[1].Key++ }, Options{}, arena.ErrInvalidState},
		{"record size", func(t *testing.T, s *Snapshot) { s.RecordSize = 0 }, Options{}, arena.ErrInvalidState},
		{"retained frame", func(t *testing.T, s *Snapshot) { s.Encoder.LastFrame = s.Encoder.LastFrame[:3] }, Options{}, arena.ErrInvalidState},
		{"oldest frame is a diff", func(t *testing.T, s *Snapshot) {
			s.Store.Entries[0].Info.Type = arena.DiffFrame
		}, Options{}, arena.ErrInvalidState},
		{"unknown frame type", func(t *testing.T, s *Snapshot) {
			s.Store.Entries[firstOfType(t, s, arena.DiffFrame)].Info.Type = 9
		}, Options{}, arena.ErrInvalidState},
		{"diff frame resized", func(t *testing.T, s *Snapshot) {
			s.Store.Entries[firstOfType(t, s, arena.DiffFrame)].Info.Width++
		}, Options{}, arena.ErrInvalidState},
		{"timestamps out of order", func(t *testing.T, s *Snapshot) {
			s.Store.Entries[2].Info.Timestamp = s.Store.Entries[1].Info.Timestamp - 1
		}, Options{}, arena.ErrInvalidState},
		{"capacity beyond maximum", func(t *testing.T, s *Snapshot) { s.Store.Capacity = MaxCapacity + 1 }, Options{}, arena.ErrInvalidState},
		{"retained frame content", func(t *testing.T, s *Snapshot) { s.Encoder.LastFrame[0] ^= 0xff }, Options{}, arena.ErrInvalidState},
		{"retained frame info", func(t *testing.T, s *Snapshot) { s.Encoder.LastInfo.CursorX++ }, Options{}, arena.ErrInvalidState},
		{"no retained frame", func(t *testing.T, s *Snapshot) { s.Encoder.HaveLast = false }, Options{}, arena.ErrInvalidState},
		{"chain key frame", func(t *testing.T, s *Snapshot) { s.Encoder.LastKeyFrame-- }, Options{}, arena.ErrInvalidState},
		{"frames since key frame", func(t *testing.T, s *Snapshot) { s.Encoder.FramesSinceKeyFrame++ }, Options{}, arena.ErrInvalidState},
		{"bytes since key frame", func(t *testing.T, s *Snapshot) { s.Encoder.BytesSinceKeyFrame-- }, Options{}, arena.ErrInvalidState},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			dvr, _, _ := recordedDVR(t)
			snapshot, err := dvr.Snapshot(compress.None)
			if err != nil {
				t.Fatalf("Snapshot: %v", err)
			}
			test.mutate(t, snapshot)
			if _, err := Restore(snapshot, test.options); !errors.Is(err, test.want) {
				t.Errorf("Restore: got %v, want %v", err, test.want)
			}
		})
	}
}

// firstOfType returns the index of the oldest entry of frameType after
// the first one.
func firstOfType(t *testing.T, snapshot *Snapshot, frameType arena.FrameType) int {
	t.Helper()
	for i, entry := range snapshot.Store.Entries[1:] {
		if entry.Info.Type == frameType {
			return i + 1
		}
	}
	t.Fatalf("snapshot holds no %s frame after the first", frameType)
	return 0
}

func TestRestoreRejectsKeyFrameLabelledAsDiff(t *testing.T) {
	t.Parallel()
	dvr := newTestDVR(t, Options{Capacity: 256, RecordSize: 4})
	appendAt(dvr, bytes.Repeat([]byte{0xaa}, 16), 1)
	dvr.ForceKeyFrame()
	appendAt(dvr, bytes.Repeat([]byte{0xbb}, 16), 2)

	snapshot, err := dvr.Snapshot(compress.None)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if got := frameTypes(dvr); got != "KK" {
		t.Fatalf("frame types: got %s, want KK", got)
	}
	snapshot.Store.Entries[1].Info.Type = arena.DiffFrame
	snapshot.Encoder.LastInfo.Type = arena.DiffFrame

	if _, err := Restore(snapshot, Options{}); !errors.Is(err, arena.ErrInvalidState) {
		t.Errorf("Restore: got %v, want %v", err, arena.ErrInvalidState)
	}
}

func TestRestoredEncoderDiffsAgainstNewestFrame(t *testing.T) {
	t.Parallel()
	dvr := newTestDVR(t, Options{Capacity: 256, RecordSize: 4})
	first := bytes.Repeat([]byte{1, 2, 3, 4}, 4)
	appendAt(dvr, first, 1)

	snapshot, err := dvr.Snapshot(compress.None)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	tampered := *snapshot
	tampered.Encoder.LastFrame = bytes.Clone(snapshot.Encoder.LastFrame)
	tampered.Encoder.LastFrame[0] = 7
	if _, err := Restore(&tampered, Options{}); !errors.Is(err, arena.ErrInvalidState) {
		t.Fatalf("Restore of a stale retained frame: got %v, want %v", err, arena.ErrInvalidState)
	}

	restored, err := Restore(snapshot, Options{})
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	t.Cleanup(restored.Close)
	second := bytes.Clone(first)
	second[0] = 7
	if entry := appendAt(restored, second, 2); entry.Info.Type != arena.DiffFrame {
		t.Fatalf("frame after restore stored as %s, want diff", entry.Info.Type)
	}
	decoder := restored.NewDecoder()
	if !decoder.SeekKey(1) || !bytes.Equal(decoder.Frame(), second) {
		t.Errorf("key 1 after restore: got %v, want %v", decoder.Frame(), second)
	}
}

func TestRestoreRejectsConflictingOptions(t *testing.T) {
	t.Parallel()
	dvr, _, _ := recordedDVR(t)
	snapshot, err := dvr.Snapshot(compress.LZ4)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	if _, err := Restore(snapshot, Options{Capacity: 4096}); err == nil {
		t.Error("Restore accepted a different capacity")
	}
	if _, err := Restore(snapshot, Options{RecordSize: 16}); err == nil {
		t.Error("Restore accepted a different record size")
	}
	restored, err := Restore(snapshot, Options{Capacity: 2048, RecordSize: 8, KeyFrameInterval: 3})
	if err != nil {
		t.Fatalf("Restore with matching options: %v", err)
	}
	restored.Close()
}

func TestReadSnapshotRejectsGarbage(t *testing.T) {
	t.Parallel()
	if _, err := ReadSnapshot(bytes.NewReader([]byte{0xff, 0x00, 0x13})); err == nil {
		t.Error("ReadSnapshot accepted invalid CBOR")
	}
	if _, err := ReadSnapshot(bytes.NewReader(nil)); err == nil {
		t.Error("ReadSnapshot accepted an empty stream")
	}
}
