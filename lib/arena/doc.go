// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package arena implements the circular frame store behind instant
// replay: a fixed-capacity byte arena addressed by logical offsets
// modulo its capacity, plus an index of per-frame metadata keyed by
// dense, monotonically increasing integers.
//
// Writes follow a two-phase protocol. [Store.Reserve] evicts the oldest
// frames until the requested number of bytes is free and sizes a
// contiguous staging area; the caller fills [Store.Scratch] and then
// commits a prefix of it with [Store.Allocate], which copies the bytes
// into the arena (wrapping at the end) and assigns the next key.
// Eviction is strictly FIFO: [Store.Deallocate] always removes
// [Store.FirstKey], and Reserve never removes more frames than needed
// to satisfy the reservation.
//
// The index is a ring of [Entry] values parallel to the arena, so
// lookup and eviction are O(1). Live keys always form the contiguous
// range [FirstKey, NextKey).
//
// Reads never hand out views into the arena: [Store.Block] and
// [Store.AppendBlock] copy, because older regions of the arena are
// overwritten in place by later writes.
//
// Misuse of the write protocol (allocating without a reservation,
// allocating more than was reserved, reserving more than the capacity,
// deallocating an empty store) is a programming error and panics.
// [Store.State] and [Restore] dump and rebuild a store; Restore
// validates its input and reports corrupt state as [ErrInvalidState].
//
// A Store is not safe for concurrent use. The replay package
// serializes access.
package arena
