// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package framediff

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// Run tags. These are wire constants: stored diffs depend on them.
const (
	SameSequence byte = 0
	DiffSequence byte = 1
)

// ErrMalformed is wrapped by every error Apply returns for a diff that
// does not describe the target frame.
var ErrMalformed = errors.New("framediff: malformed diff")

// Codec diffs frames made of records of one fixed size.
type Codec struct {
	recordSize int
}

// New returns a codec for records of recordSize bytes. Panics if
// recordSize is not positive.
func New(recordSize int) *Codec {
	if recordSize <= 0 {
		panic(fmt.Sprintf("framediff: record size must be positive, got %d", recordSize))
	}
	return &Codec{recordSize: recordSize}
}

// ForRecord returns a codec whose record size is the encoded size of
// T as reported by encoding/binary. Panics if T has no fixed size.
func ForRecord[T any]() *Codec {
	var zero T
	size := binary.Size(zero)
	if size <= 0 {
		panic(fmt.Sprintf("framediff: %T has no fixed binary size", zero))
	}
	return New(size)
}

// RecordSize returns the record size in bytes.
func (codec *Codec) RecordSize() int { return codec.recordSize }

// Encode writes the diff from previous to current into output and
// returns the number of bytes written. Returns false if the frames are
// not the same length or the diff does not fit in len(output); output
// contents are unspecified in that case. Panics if current is not a
// whole number of records.
func (codec *Codec) Encode(output, previous, current []byte) (int, bool) {
	if len(current)%codec.recordSize != 0 {
		panic(fmt.Sprintf("framediff: frame of %d bytes is not a multiple of record size %d",
			len(current), codec.recordSize))
	}
	if len(previous) != len(current) {
		return 0, false
	}

	records := len(current) / codec.recordSize
	written := 0
	for record := 0; record < records; {
		same := codec.recordEqual(previous, current, record)
		runEnd := record + 1
		for runEnd < records && codec.recordEqual(previous, current, runEnd) == same {
			runEnd++
		}
		count := runEnd - record

		tag := DiffSequence
		if same {
			tag = SameSequence
		}
		var header [1 + binary.MaxVarintLen64]byte
		header[0] = tag
		headerLength := 1 + binary.PutUvarint(header[1:], uint64(count))

		payloadLength := 0
		if !same {
			payloadLength = count * codec.recordSize
		}
		if written+headerLength+payloadLength > len(output) {
			return 0, false
		}

		written += copy(output[written:], header[:headerLength])
		if !same {
			start := record * codec.recordSize
			written += copy(output[written:], current[start:start+payloadLength])
		}
		record = runEnd
	}
	return written, true
}

// Apply replays diff onto frame in place. frame must hold the previous
// frame's raw content.
func (codec *Codec) Apply(frame, diff []byte) error {
	if len(frame)%codec.recordSize != 0 {
		return fmt.Errorf("%w: frame of %d bytes is not a multiple of record size %d",
			ErrMalformed, len(frame), codec.recordSize)
	}
	records := len(frame) / codec.recordSize

	record := 0
	for offset := 0; offset < len(diff); {
		tag := diff[offset]
		offset++
		count, width := binary.Uvarint(diff[offset:])
		if width <= 0 {
			return fmt.Errorf("%w: bad run length at offset %d", ErrMalformed, offset)
		}
		offset += width
		if count > uint64(records-record) {
			return fmt.Errorf("%w: run of %d records at record %d overflows frame of %d",
				ErrMalformed, count, record, records)
		}

		switch tag {
		case SameSequence:
		case DiffSequence:
			payloadLength := int(count) * codec.recordSize
			if offset+payloadLength > len(diff) {
				return fmt.Errorf("%w: run of %d records truncated at offset %d", ErrMalformed, count, offset)
			}
			start := record * codec.recordSize
			copy(frame[start:start+payloadLength], diff[offset:offset+payloadLength])
			offset += payloadLength
		default:
			return fmt.Errorf("%w: unknown run tag %d at offset %d", ErrMalformed, tag, offset-width-1)
		}
		record += int(count)
	}

	if record != records {
		return fmt.Errorf("%w: runs cover %d of %d records", ErrMalformed, record, records)
	}
	return nil
}

func (codec *Codec) recordEqual(previous, current []byte, record int) bool {
	start := record * codec.recordSize
	end := start + codec.recordSize
	return bytes.Equal(previous[start:end], current[start:end])
}
