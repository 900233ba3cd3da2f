// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package replay

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/replay/lib/arena"
	"github.com/bureau-foundation/replay/lib/codec"
	"github.com/bureau-foundation/replay/lib/compress"
	"github.com/bureau-foundation/replay/lib/framediff"
	"github.com/bureau-foundation/replay/lib/version"
)

// SnapshotVersion is the snapshot format this package writes and reads.
const SnapshotVersion = 1

var (
	// ErrSnapshotVersion is returned for a snapshot written in a format
	// this package does not read.
	ErrSnapshotVersion = errors.New("replay: unsupported snapshot version")

	// ErrSnapshotDigest is returned when a snapshot's arena does not
	// match its recorded digest.
	ErrSnapshotDigest = errors.New("replay: snapshot arena digest mismatch")
)

// Snapshot is a complete dump of a DVR. The timestamp fields and Empty
// duplicate what the store state implies and are checked against it on
// restore. Writer is informational: the build that wrote the snapshot.
type Snapshot struct {
	Version        int          `cbor:"version"`
	Writer         string       `cbor:"writer"`
	RecordSize     int          `cbor:"record_size"`
	Empty          bool         `cbor:"empty"`
	FirstTimestamp int64        `cbor:"first_timestamp"`
	LastTimestamp  int64        `cbor:"last_timestamp"`
	Store          StoreState   `cbor:"store"`
	Encoder        EncoderState `cbor:"encoder"`
}

// StoreState is the arena part of a snapshot. Arena holds the raw arena
// compressed with Compression; Digest is the BLAKE3-256 of the raw
// arena.
type StoreState struct {
	Capacity    int           `cbor:"capacity"`
	FirstKey    arena.Key     `cbor:"first_key"`
	NextKey     arena.Key     `cbor:"next_key"`
	Begin       int           `cbor:"begin"`
	End         int           `cbor:"end"`
	Entries     []arena.Entry `cbor:"entries"`
	Compression compress.Tag  `cbor:"compression"`
	Arena       []byte        `cbor:"arena"`
	Digest      [32]byte      `cbor:"digest"`
}

// EncoderState is the encoder part of a snapshot: what the next append
// needs to continue the current diff chain.
type EncoderState struct {
	LastFrame           []byte          `cbor:"last_frame"`
	LastInfo            arena.FrameInfo `cbor:"last_info"`
	HaveLast            bool            `cbor:"have_last"`
	FramesSinceKeyFrame int             `cbor:"frames_since_key_frame"`
	BytesSinceKeyFrame  int             `cbor:"bytes_since_key_frame"`
	LastKeyFrame        arena.Key       `cbor:"last_key_frame"`
	ForceKeyFrame       bool            `cbor:"force_key_frame"`
}

// Snapshot dumps the DVR, compressing the arena with tag. Compression
// falls back to none when the arena does not compress.
func (dvr *DVR) Snapshot(tag compress.Tag) (*Snapshot, error) {
	dvr.mu.Lock()
	defer dvr.mu.Unlock()

	state := dvr.store.State()
	compressed, usedTag, err := compress.Compress(state.Data, tag)
	if err != nil {
		return nil, fmt.Errorf("replay: compressing arena: %w", err)
	}

	snapshot := &Snapshot{
		Version:    SnapshotVersion,
		Writer:     version.Short(),
		RecordSize: dvr.codec.RecordSize(),
		Empty:      dvr.store.IsEmpty(),
		Store: StoreState{
			Capacity:    state.Capacity,
			FirstKey:    state.FirstKey,
			NextKey:     state.NextKey,
			Begin:       state.Begin,
			End:         state.End,
			Entries:     state.Entries,
			Compression: usedTag,
			Arena:       compressed,
			Digest:      blake3.Sum256(state.Data),
		},
		Encoder: dvr.encoder.state(),
	}
	snapshot.FirstTimestamp, _ = dvr.timestampLocked(dvr.store.FirstKey())
	snapshot.LastTimestamp, _ = dvr.timestampLocked(dvr.store.LastKey())
	return snapshot, nil
}

// Restore rebuilds a DVR from a snapshot. Capacity and RecordSize come
// from the snapshot; a non-zero value in options that disagrees is an
// error. The other options apply to the restored DVR as they would to
// New.
func Restore(snapshot *Snapshot, options Options) (*DVR, error) {
	if snapshot.Version != SnapshotVersion {
		return nil, fmt.Errorf("%w: %d (want %d)", ErrSnapshotVersion, snapshot.Version, SnapshotVersion)
	}
	if options.Capacity != 0 && options.Capacity != snapshot.Store.Capacity {
		return nil, fmt.Errorf("replay: snapshot capacity %d, options ask for %d", snapshot.Store.Capacity, options.Capacity)
	}
	if options.RecordSize != 0 && options.RecordSize != snapshot.RecordSize {
		return nil, fmt.Errorf("replay: snapshot record size %d, options ask for %d", snapshot.RecordSize, options.RecordSize)
	}
	options.Capacity = snapshot.Store.Capacity
	options.RecordSize = snapshot.RecordSize
	if snapshot.RecordSize <= 0 || snapshot.Store.Capacity <= 0 || snapshot.Store.Capacity > MaxCapacity {
		return nil, fmt.Errorf("%w: record size %d, capacity %d", arena.ErrInvalidState, snapshot.RecordSize, snapshot.Store.Capacity)
	}
	if err := options.Validate(); err != nil {
		return nil, fmt.Errorf("replay: invalid options: %w", err)
	}
	options = options.withDefaults()

	data, err := compress.Decompress(snapshot.Store.Arena, snapshot.Store.Compression, snapshot.Store.Capacity)
	if err != nil {
		return nil, fmt.Errorf("replay: decompressing arena: %w", err)
	}
	if blake3.Sum256(data) != snapshot.Store.Digest {
		return nil, ErrSnapshotDigest
	}

	store, err := arena.Restore(arena.State{
		Capacity: snapshot.Store.Capacity,
		FirstKey: snapshot.Store.FirstKey,
		NextKey:  snapshot.Store.NextKey,
		Begin:    snapshot.Store.Begin,
		End:      snapshot.Store.End,
		Entries:  snapshot.Store.Entries,
		Data:     data,
	})
	if err != nil {
		return nil, fmt.Errorf("replay: restoring store: %w", err)
	}
	if err := checkRestoredStore(store, snapshot); err != nil {
		return nil, err
	}

	dvr := newDVR(store, options)
	dvr.encoder.restore(snapshot.Encoder)
	return dvr, nil
}

// checkRestoredStore verifies the parts of a snapshot that the arena
// cannot check on its own. The digest covers only the arena bytes, so
// every live frame is decoded once, oldest first, and the encoder state
// must continue exactly from the newest one.
func checkRestoredStore(store *arena.Store, snapshot *Snapshot) error {
	if snapshot.Empty != store.IsEmpty() {
		return fmt.Errorf("%w: empty flag %v for %d frames", arena.ErrInvalidState, snapshot.Empty, store.Len())
	}
	state := snapshot.Encoder
	if state.HaveLast == store.IsEmpty() {
		return fmt.Errorf("%w: encoder retained frame %v with %d frames stored",
			arena.ErrInvalidState, state.HaveLast, store.Len())
	}
	if store.IsEmpty() {
		return nil
	}

	first, _ := store.Entry(store.FirstKey())
	last, _ := store.Entry(store.LastKey())
	if first.Info.Type != arena.KeyFrame {
		return fmt.Errorf("%w: oldest frame %d is not a key frame", arena.ErrInvalidState, first.Key)
	}
	if first.Info.Timestamp != snapshot.FirstTimestamp || last.Info.Timestamp != snapshot.LastTimestamp {
		return fmt.Errorf("%w: timestamps [%d, %d] disagree with entries [%d, %d]", arena.ErrInvalidState,
			snapshot.FirstTimestamp, snapshot.LastTimestamp, first.Info.Timestamp, last.Info.Timestamp)
	}

	codec := framediff.New(snapshot.RecordSize)
	var frame, diff []byte
	var previous arena.FrameInfo
	keyFrame := first.Key
	bytesSinceKeyFrame := 0
	for key := store.FirstKey(); key < store.NextKey(); key++ {
		entry, _ := store.Entry(key)
		info := entry.Info
		if key != first.Key && info.Timestamp < previous.Timestamp {
			return fmt.Errorf("%w: frame %d at %d is older than frame %d at %d",
				arena.ErrInvalidState, key, info.Timestamp, key-1, previous.Timestamp)
		}

		switch info.Type {
		case arena.KeyFrame:
			if entry.Length%snapshot.RecordSize != 0 {
				return fmt.Errorf("%w: key frame %d of %d bytes is not whole records", arena.ErrInvalidState, key, entry.Length)
			}
			frame, _ = store.AppendBlock(frame[:0], key)
			keyFrame = key
			bytesSinceKeyFrame = entry.Length
		case arena.DiffFrame:
			if info.Width != previous.Width || info.Height != previous.Height {
				return fmt.Errorf("%w: diff frame %d is %dx%d after a %dx%d frame", arena.ErrInvalidState,
					key, info.Width, info.Height, previous.Width, previous.Height)
			}
			diff, _ = store.AppendBlock(diff[:0], key)
			if err := codec.Apply(frame, diff); err != nil {
				return fmt.Errorf("%w: diff frame %d: %v", arena.ErrInvalidState, key, err)
			}
			bytesSinceKeyFrame += entry.Length
		default:
			return fmt.Errorf("%w: frame %d has unknown type %s", arena.ErrInvalidState, key, info.Type)
		}
		previous = info
	}

	switch {
	case !bytes.Equal(state.LastFrame, frame):
		return fmt.Errorf("%w: encoder retained frame differs from frame %d", arena.ErrInvalidState, last.Key)
	case state.LastInfo != last.Info:
		return fmt.Errorf("%w: encoder retained info %+v, frame %d has %+v",
			arena.ErrInvalidState, state.LastInfo, last.Key, last.Info)
	case state.LastKeyFrame != keyFrame:
		return fmt.Errorf("%w: encoder chain starts at key %d, newest key frame is %d",
			arena.ErrInvalidState, state.LastKeyFrame, keyFrame)
	case state.FramesSinceKeyFrame != int(last.Key-keyFrame) || state.BytesSinceKeyFrame != bytesSinceKeyFrame:
		return fmt.Errorf("%w: encoder counts %d frames and %d bytes since key frame %d, store holds %d and %d",
			arena.ErrInvalidState, state.FramesSinceKeyFrame, state.BytesSinceKeyFrame, keyFrame,
			last.Key-keyFrame, bytesSinceKeyFrame)
	}
	return nil
}

// WriteSnapshot encodes snapshot to w as CBOR.
func WriteSnapshot(w io.Writer, snapshot *Snapshot) error {
	if err := codec.NewEncoder(w).Encode(snapshot); err != nil {
		return fmt.Errorf("replay: writing snapshot: %w", err)
	}
	return nil
}

// ReadSnapshot decodes one CBOR snapshot from r.
func ReadSnapshot(r io.Reader) (*Snapshot, error) {
	var snapshot Snapshot
	if err := codec.NewDecoder(r).Decode(&snapshot); err != nil {
		return nil, fmt.Errorf("replay: reading snapshot: %w", err)
	}
	return &snapshot, nil
}
