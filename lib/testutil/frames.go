// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"bytes"
	"math/rand/v2"
)

// FrameGenerator produces deterministic frames of fixed-size records.
// Not safe for concurrent use.
type FrameGenerator struct {
	random     *rand.Rand
	recordSize int
}

// NewFrameGenerator returns a generator seeded with seed. The same seed
// and call sequence always produce the same frames.
func NewFrameGenerator(seed uint64, recordSize int) *FrameGenerator {
	return &FrameGenerator{
		random:     rand.New(rand.NewPCG(seed, uint64(recordSize))),
		recordSize: recordSize,
	}
}

// RecordSize returns the record size frames are built from.
func (generator *FrameGenerator) RecordSize() int { return generator.recordSize }

// Random returns a frame of the given number of records filled with
// random bytes.
func (generator *FrameGenerator) Random(records int) []byte {
	frame := make([]byte, records*generator.recordSize)
	for i := range frame {
		frame[i] = byte(generator.random.IntN(256))
	}
	return frame
}

// Mutate returns a copy of frame with changes randomly chosen records
// overwritten. The same record may be picked more than once, so the
// number of distinct changed records can be lower.
func (generator *FrameGenerator) Mutate(frame []byte, changes int) []byte {
	mutated := bytes.Clone(frame)
	records := len(frame) / generator.recordSize
	if records == 0 {
		return mutated
	}
	for range changes {
		start := generator.random.IntN(records) * generator.recordSize
		for i := start; i < start+generator.recordSize; i++ {
			mutated[i] = byte(generator.random.IntN(256))
		}
	}
	return mutated
}

// Sequence returns count frames of the given size where each frame
// differs from its predecessor in up to changes records.
func (generator *FrameGenerator) Sequence(count, records, changes int) [][]byte {
	if count == 0 {
		return nil
	}
	frames := make([][]byte, count)
	frames[0] = generator.Random(records)
	for i := 1; i < count; i++ {
		frames[i] = generator.Mutate(frames[i-1], changes)
	}
	return frames
}
