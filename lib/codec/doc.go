// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the CBOR encoding configuration for replay
// snapshots.
//
// Snapshots are written with Core Deterministic Encoding (RFC 8949
// §4.2): sorted map keys, smallest integer encoding, no
// indefinite-length items. The same recorder state always produces
// identical bytes, so two snapshot files can be compared byte for byte.
//
//	data, err := codec.Marshal(snapshot)
//	err = codec.Unmarshal(data, &snapshot)
//
// For files and pipes:
//
//	encoder := codec.NewEncoder(file)
//	decoder := codec.NewDecoder(file)
//
// Types implementing encoding.TextMarshaler (compression tags) travel
// as CBOR text strings. The decoder accepts index arrays far larger
// than the fxamacker default so long recordings load.
//
// Snapshot types carry `cbor` struct tags only; they are never
// serialized as JSON.
package codec
