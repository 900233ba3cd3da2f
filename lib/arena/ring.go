// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package arena

// entryRing is a growable FIFO of entries. Entries are pushed at the
// back and popped from the front; at(i) addresses the i-th oldest.
type entryRing struct {
	entries []Entry
	head    int
	count   int
}

const initialRingSize = 64

func (ring *entryRing) len() int { return ring.count }

func (ring *entryRing) at(index int) *Entry {
	if index < 0 || index >= ring.count {
		panic("arena: index ring access out of range")
	}
	return &ring.entries[(ring.head+index)%len(ring.entries)]
}

func (ring *entryRing) push(entry Entry) {
	if ring.count == len(ring.entries) {
		ring.grow()
	}
	ring.entries[(ring.head+ring.count)%len(ring.entries)] = entry
	ring.count++
}

func (ring *entryRing) popFront() Entry {
	if ring.count == 0 {
		panic("arena: pop from empty index ring")
	}
	entry := ring.entries[ring.head]
	ring.entries[ring.head] = Entry{}
	ring.head = (ring.head + 1) % len(ring.entries)
	ring.count--
	return entry
}

// grow doubles the ring, unwrapping the live entries to the front of
// the new slice.
func (ring *entryRing) grow() {
	size := len(ring.entries) * 2
	if size == 0 {
		size = initialRingSize
	}
	grown := make([]Entry, size)
	for i := 0; i < ring.count; i++ {
		grown[i] = ring.entries[(ring.head+i)%len(ring.entries)]
	}
	ring.entries = grown
	ring.head = 0
}
