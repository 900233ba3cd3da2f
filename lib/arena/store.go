// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package arena

import "fmt"

// Store is a fixed-capacity circular frame store. See the package
// documentation for the write protocol.
type Store struct {
	data     []byte
	capacity int

	// begin is the arena offset of the oldest live byte and end is the
	// offset the next allocation is written at. Both are in
	// [0, capacity). When begin == end the arena is either empty or
	// full; used disambiguates.
	begin int
	end   int
	used  int

	index    entryRing
	firstKey Key
	nextKey  Key

	// staging holds frame bytes between Reserve and Allocate. reserved
	// is the size of the outstanding reservation, or -1 when there is
	// none.
	staging  []byte
	reserved int
}

// New creates a store with the given capacity in bytes. Panics if
// capacity is not positive.
func New(capacity int) *Store {
	if capacity <= 0 {
		panic(fmt.Sprintf("arena: capacity must be positive, got %d", capacity))
	}
	return &Store{
		data:     make([]byte, capacity),
		capacity: capacity,
		reserved: -1,
	}
}

// Capacity returns the arena size in bytes.
func (store *Store) Capacity() int { return store.capacity }

// Used returns the sum of the lengths of all live frames.
func (store *Store) Used() int { return store.used }

// Len returns the number of live frames.
func (store *Store) Len() int { return store.index.len() }

// IsEmpty reports whether the store holds no frames.
func (store *Store) IsEmpty() bool { return store.index.len() == 0 }

// FirstKey returns the key of the oldest live frame. When the store is
// empty it equals NextKey.
func (store *Store) FirstKey() Key { return store.firstKey }

// LastKey returns the key of the newest live frame. Only meaningful
// when the store is not empty.
func (store *Store) LastKey() Key { return store.nextKey - 1 }

// NextKey returns the key the next allocation will receive.
func (store *Store) NextKey() Key { return store.nextKey }

// HasSpaceAvailable reports whether length bytes can be allocated
// without evicting anything.
func (store *Store) HasSpaceAvailable(length int) bool {
	return store.capacity-store.used >= length
}

// Reserve makes length bytes of staging space available, evicting the
// oldest frames one at a time until the arena has room. Returns true if
// any frame was evicted. Panics if length is negative or exceeds the
// capacity: such a frame could never be stored.
func (store *Store) Reserve(length int) bool {
	if length < 0 || length > store.capacity {
		panic(fmt.Sprintf("arena: reservation of %d bytes outside capacity %d", length, store.capacity))
	}

	evicted := false
	for !store.HasSpaceAvailable(length) && !store.IsEmpty() {
		store.Deallocate()
		evicted = true
	}

	if cap(store.staging) < length {
		store.staging = make([]byte, length)
	}
	store.staging = store.staging[:length]
	store.reserved = length
	return evicted
}

// Reserved returns the size of the outstanding reservation and whether
// one exists.
func (store *Store) Reserved() (int, bool) {
	return store.reserved, store.reserved >= 0
}

// Scratch returns the staging area sized by the last Reserve. Callers
// write the frame bytes there before calling Allocate. The slice is
// owned by the store and reused by the next reservation.
func (store *Store) Scratch() []byte {
	if store.reserved < 0 {
		panic("arena: scratch requested without a reservation")
	}
	return store.staging[:store.reserved]
}

// Allocate commits the first length bytes of the staging area as a new
// frame and returns its entry. Consumes the reservation. Panics if
// there is no reservation or length exceeds it.
func (store *Store) Allocate(length int, info FrameInfo) Entry {
	if store.reserved < 0 {
		panic("arena: allocate without a reservation")
	}
	if length < 0 || length > store.reserved {
		panic(fmt.Sprintf("arena: allocate %d bytes exceeds reservation of %d", length, store.reserved))
	}
	if !store.HasSpaceAvailable(length) {
		panic(fmt.Sprintf("arena: allocate %d bytes with only %d free", length, store.capacity-store.used))
	}

	entry := Entry{
		Key:      store.nextKey,
		Info:     info,
		Position: store.end,
		Length:   length,
	}
	store.writeAt(store.end, store.staging[:length])

	store.end = (store.end + length) % store.capacity
	store.used += length
	store.index.push(entry)
	store.nextKey++
	store.reserved = -1
	return entry
}

// Deallocate evicts the oldest frame. Panics if the store is empty.
func (store *Store) Deallocate() Entry {
	if store.IsEmpty() {
		panic("arena: deallocate on empty store")
	}
	entry := store.index.popFront()
	if entry.Key != store.firstKey || entry.Position != store.begin {
		panic(fmt.Sprintf("arena: evicting key %d at %d, expected key %d at %d",
			entry.Key, entry.Position, store.firstKey, store.begin))
	}

	store.begin = (store.begin + entry.Length) % store.capacity
	store.used -= entry.Length
	store.firstKey++
	return entry
}

// Entry returns the metadata for key, or false if the key is not live.
func (store *Store) Entry(key Key) (Entry, bool) {
	if key < store.firstKey || key >= store.nextKey {
		return Entry{}, false
	}
	return *store.index.at(int(key - store.firstKey)), true
}

// Block returns a copy of the stored bytes for key, or false if the
// key is not live.
func (store *Store) Block(key Key) ([]byte, bool) {
	return store.AppendBlock(nil, key)
}

// AppendBlock appends the stored bytes for key to destination and
// returns the extended slice. Returns destination unchanged and false
// if the key is not live.
func (store *Store) AppendBlock(destination []byte, key Key) ([]byte, bool) {
	entry, ok := store.Entry(key)
	if !ok {
		return destination, false
	}
	start := len(destination)
	destination = append(destination, make([]byte, entry.Length)...)
	store.readAt(entry.Position, destination[start:])
	return destination, true
}

// writeAt copies source into the arena starting at position, wrapping
// at the end.
func (store *Store) writeAt(position int, source []byte) {
	for copied := 0; copied < len(source); {
		copyLength := min(len(source)-copied, store.capacity-position)
		copy(store.data[position:position+copyLength], source[copied:copied+copyLength])
		position = (position + copyLength) % store.capacity
		copied += copyLength
	}
}

// readAt fills destination from the arena starting at position,
// wrapping at the end.
func (store *Store) readAt(position int, destination []byte) {
	for copied := 0; copied < len(destination); {
		copyLength := min(len(destination)-copied, store.capacity-position)
		copy(destination[copied:copied+copyLength], store.data[position:position+copyLength])
		position = (position + copyLength) % store.capacity
		copied += copyLength
	}
}
