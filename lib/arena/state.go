// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package arena

import (
	"errors"
	"fmt"
)

// ErrInvalidState is wrapped by every error Restore returns for state
// that violates the store's invariants.
var ErrInvalidState = errors.New("arena: invalid store state")

// State is a complete dump of a store. Data is the raw arena, exactly
// Capacity bytes. Entries are in key order, oldest first.
type State struct {
	Capacity int     `cbor:"capacity"`
	FirstKey Key     `cbor:"first_key"`
	NextKey  Key     `cbor:"next_key"`
	Begin    int     `cbor:"begin"`
	End      int     `cbor:"end"`
	Entries  []Entry `cbor:"entries"`
	Data     []byte  `cbor:"data"`
}

// State dumps the store. The returned value shares nothing with the
// store. Any outstanding reservation is not part of the state.
func (store *Store) State() State {
	state := State{
		Capacity: store.capacity,
		FirstKey: store.firstKey,
		NextKey:  store.nextKey,
		Begin:    store.begin,
		End:      store.end,
		Entries:  make([]Entry, store.index.len()),
		Data:     make([]byte, store.capacity),
	}
	for i := range state.Entries {
		state.Entries[i] = *store.index.at(i)
	}
	copy(state.Data, store.data)
	return state
}

// Restore rebuilds a store from a dump, checking that the entries are
// dense, contiguous in the arena, and fit the capacity.
func Restore(state State) (*Store, error) {
	if state.Capacity <= 0 {
		return nil, fmt.Errorf("%w: capacity %d", ErrInvalidState, state.Capacity)
	}
	if len(state.Data) != state.Capacity {
		return nil, fmt.Errorf("%w: arena is %d bytes, capacity is %d", ErrInvalidState, len(state.Data), state.Capacity)
	}
	if state.FirstKey < 0 || state.NextKey < state.FirstKey {
		return nil, fmt.Errorf("%w: key range [%d, %d)", ErrInvalidState, state.FirstKey, state.NextKey)
	}
	if int64(len(state.Entries)) != int64(state.NextKey-state.FirstKey) {
		return nil, fmt.Errorf("%w: %d entries for key range [%d, %d)",
			ErrInvalidState, len(state.Entries), state.FirstKey, state.NextKey)
	}
	if state.Begin < 0 || state.Begin >= state.Capacity || state.End < 0 || state.End >= state.Capacity {
		return nil, fmt.Errorf("%w: offsets begin=%d end=%d outside capacity %d",
			ErrInvalidState, state.Begin, state.End, state.Capacity)
	}

	store := New(state.Capacity)
	copy(store.data, state.Data)
	store.firstKey = state.FirstKey
	store.nextKey = state.FirstKey
	store.begin = state.Begin
	store.end = state.Begin

	for _, entry := range state.Entries {
		if entry.Key != store.nextKey {
			return nil, fmt.Errorf("%w: entry key %d, expected %d", ErrInvalidState, entry.Key, store.nextKey)
		}
		if entry.Length < 0 || entry.Position != store.end {
			return nil, fmt.Errorf("%w: key %d at position %d length %d, expected position %d",
				ErrInvalidState, entry.Key, entry.Position, entry.Length, store.end)
		}
		if store.used+entry.Length > store.capacity {
			return nil, fmt.Errorf("%w: entries exceed capacity %d at key %d", ErrInvalidState, store.capacity, entry.Key)
		}
		store.index.push(entry)
		store.used += entry.Length
		store.end = (store.end + entry.Length) % store.capacity
		store.nextKey++
	}

	if store.end != state.End {
		return nil, fmt.Errorf("%w: entries end at %d, state says %d", ErrInvalidState, store.end, state.End)
	}
	return store, nil
}
