// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source for the recorder.
//
// The replay package stamps frames that arrive without a timestamp and
// the capture loop polls on a ticker; both take a [Clock] instead of
// calling the time package so tests can drive them deterministically.
// [Real] wraps the standard library. [Fake] stands still until
// [FakeClock.Advance] is called.
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	go recorder.Run(ctx)
//	c.WaitForTimers(1)               // the recorder's ticker is registered
//	c.Advance(250 * time.Millisecond) // one capture happens
package clock
