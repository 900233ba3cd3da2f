// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package capture produces replay frames from live terminals.
package capture

import (
	"context"
	"fmt"

	"github.com/bureau-foundation/replay/lib/arena"
	"github.com/bureau-foundation/replay/lib/screen"
	"github.com/bureau-foundation/replay/lib/tmux"
	"github.com/bureau-foundation/replay/replay"
)

// PaneReader is the part of a tmux server a PaneSource needs.
// *tmux.Server implements it.
type PaneReader interface {
	CaptureVisible(ctx context.Context, target string) (string, error)
	PaneGeometry(ctx context.Context, target string) (tmux.Geometry, error)
}

// PaneSource captures the visible area of a tmux pane as a grid of
// screen cells.
type PaneSource struct {
	reader PaneReader
	target string
}

var _ replay.FrameSource = (*PaneSource)(nil)

// NewPaneSource returns a source reading target (a session, window or
// pane, in tmux target syntax) through reader.
func NewPaneSource(reader PaneReader, target string) *PaneSource {
	return &PaneSource{reader: reader, target: target}
}

// Target returns the tmux target this source captures.
func (source *PaneSource) Target() string { return source.target }

// Capture returns the pane's current content encoded as screen cells,
// with the pane size and cursor position. The timestamp is left zero
// for the DVR to stamp.
func (source *PaneSource) Capture(ctx context.Context) ([]byte, arena.FrameInfo, error) {
	geometry, err := source.reader.PaneGeometry(ctx, source.target)
	if err != nil {
		return nil, arena.FrameInfo{}, fmt.Errorf("capture %s: %w", source.target, err)
	}
	text, err := source.reader.CaptureVisible(ctx, source.target)
	if err != nil {
		return nil, arena.FrameInfo{}, fmt.Errorf("capture %s: %w", source.target, err)
	}

	// A resize between the two queries only clips or pads the text.
	grid := screen.FromText(text, geometry.Width, geometry.Height)
	return grid.Encode(), arena.FrameInfo{
		Width:   geometry.Width,
		Height:  geometry.Height,
		CursorX: geometry.CursorX,
		CursorY: geometry.CursorY,
	}, nil
}
