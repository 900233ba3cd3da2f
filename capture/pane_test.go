// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package capture

import (
	"context"
	"errors"
	"runtime"
	"slices"
	"strings"
	"testing"

	"github.com/bureau-foundation/replay/lib/arena"
	"github.com/bureau-foundation/replay/lib/screen"
	"github.com/bureau-foundation/replay/lib/tmux"
	"github.com/bureau-foundation/replay/replay"
)

type fakePane struct {
	text        string
	geometry    tmux.Geometry
	captureErr  error
	geometryErr error
	targets     []string
}

func (pane *fakePane) CaptureVisible(ctx context.Context, target string) (string, error) {
	pane.targets = append(pane.targets, target)
	return pane.text, pane.captureErr
}

func (pane *fakePane) PaneGeometry(ctx context.Context, target string) (tmux.Geometry, error) {
	pane.targets = append(pane.targets, target)
	return pane.geometry, pane.geometryErr
}

func TestPaneSourceEncodesCells(t *testing.T) {
	t.Parallel()
	pane := &fakePane{
		text:     "$ make\nok\n",
		geometry: tmux.Geometry{Width: 10, Height: 3, CursorX: 2, CursorY: 2},
	}
	source := NewPaneSource(pane, "build:0.1")

	frame, info, err := source.Capture(context.Background())
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	want := arena.FrameInfo{Width: 10, Height: 3, CursorX: 2, CursorY: 2}
	if info != want {
		t.Errorf("info: got %+v, want %+v", info, want)
	}
	if len(frame) != 10*3*screen.CellSize {
		t.Fatalf("frame: %d bytes, want %d", len(frame), 10*3*screen.CellSize)
	}

	grid, err := screen.Decode(frame, info.Width, info.Height)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got := grid.Lines(); !slices.Equal(got, []string{"$ make", "ok", ""}) {
		t.Errorf("Lines: got %q", got)
	}
	if !slices.Equal(pane.targets, []string{"build:0.1", "build:0.1"}) {
		t.Errorf("targets queried: %v", pane.targets)
	}
}

func TestPaneSourceWrapsErrors(t *testing.T) {
	t.Parallel()
	gone := errors.New("can't find pane")

	for _, pane := range []*fakePane{
		{geometryErr: gone},
		{geometry: tmux.Geometry{Width: 1, Height: 1}, captureErr: gone},
	} {
		_, _, err := NewPaneSource(pane, "work").Capture(context.Background())
		if !errors.Is(err, gone) || !strings.Contains(err.Error(), "work") {
			t.Errorf("Capture error: got %v", err)
		}
	}
}

func TestPaneSourceRecordsLiveTmuxPane(t *testing.T) {
	server := tmux.NewTestServer(t)
	if err := server.NewSession("live", 30, 6, "cat"); err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	dvr, err := replay.New(replay.Options{Capacity: 1 << 16, RecordSize: screen.CellSize})
	if err != nil {
		t.Fatalf("replay.New: %v", err)
	}
	defer dvr.Close()
	source := NewPaneSource(server, "live")

	capture := func() {
		t.Helper()
		frame, info, err := source.Capture(context.Background())
		if err != nil {
			t.Fatalf("Capture: %v", err)
		}
		dvr.AppendFrame(frame, info)
	}

	capture()
	if err := server.SendKeys(context.Background(), "live", "first line", "Enter"); err != nil {
		t.Fatalf("SendKeys: %v", err)
	}
	for {
		text, err := server.CaptureVisible(context.Background(), "live")
		if err != nil {
			t.Fatalf("CaptureVisible: %v", err)
		}
		if strings.Count(text, "first line") == 2 {
			break
		}
		if t.Context().Err() != nil {
			t.Fatalf("timed out waiting for cat to echo, last capture %q", text)
		}
		runtime.Gosched()
	}
	capture()

	decoder := dvr.NewDecoder()
	defer dvr.ReleaseDecoder(decoder)
	if !decoder.SeekKey(1) {
		t.Fatal("SeekKey(1) failed")
	}
	info := decoder.Info()
	if info.Type != arena.DiffFrame {
		t.Errorf("second capture stored as %s, want diff", info.Type)
	}
	grid, err := screen.Decode(decoder.Frame(), info.Width, info.Height)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	lines := grid.Lines()
	if lines[0] != "first line" || lines[1] != "first line" {
		t.Errorf("decoded rows: %q", lines)
	}

	if !decoder.Prev() {
		t.Fatal("Prev failed")
	}
	grid, _ = screen.Decode(decoder.Frame(), info.Width, info.Height)
	if got := strings.Join(grid.Lines(), ""); got != "" {
		t.Errorf("first capture should be blank, got %q", got)
	}
}
