// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package framediff encodes the difference between two equally sized
// frames made of fixed-size records as a sequence of runs.
//
// The unit of comparison is one record (for terminal frames, one
// screen cell), never a byte. A diff is a sequence of runs, each a tag
// byte followed by a uvarint record count:
//
//   - [SameSequence]: count records are unchanged from the previous frame
//   - [DiffSequence]: count records changed; their new bytes follow
//
// Runs are maximal, so adjacent runs always alternate tags.
//
// [Codec.Encode] writes into a caller-supplied buffer whose length is
// the size budget. When the diff would not fit (a frame that changed
// almost everywhere) Encode reports failure and the caller stores the
// frame verbatim instead. [Codec.Apply] replays a diff onto a copy of
// the previous frame.
package framediff
