// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tmux

import (
	"context"
	"runtime"
	"strings"
	"testing"
)

func TestParseGeometry(t *testing.T) {
	t.Parallel()

	tests := []struct {
		output  string
		want    Geometry
		wantErr bool
	}{
		{"80 24 5 3\n", Geometry{Width: 80, Height: 24, CursorX: 5, CursorY: 3}, false},
		{"1 1 0 0", Geometry{Width: 1, Height: 1}, false},
		{"80 24 5\n", Geometry{}, true},
		{"80 24 x 3\n", Geometry{}, true},
		{"80 -1 0 0\n", Geometry{}, true},
		{"", Geometry{}, true},
	}
	for _, test := range tests {
		got, err := parseGeometry(test.output)
		if (err != nil) != test.wantErr {
			t.Errorf("parseGeometry(%q): error %v, wantErr %v", test.output, err, test.wantErr)
			continue
		}
		if got != test.want {
			t.Errorf("parseGeometry(%q): got %+v, want %+v", test.output, got, test.want)
		}
	}
}

func TestSocketPath(t *testing.T) {
	t.Parallel()
	socketPath := "/tmp/test-tmux.sock"
	server := NewServer(socketPath, "/dev/null")

	if got := server.SocketPath(); got != socketPath {
		t.Fatalf("SocketPath() = %q, want %q", got, socketPath)
	}
}

func TestNewSessionAndKillServer(t *testing.T) {
	server := NewTestServer(t)

	if err := server.NewSession("recorded", 40, 10, "sleep", "infinity"); err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if !server.HasSession("recorded") {
		t.Fatal("HasSession returned false for a session that was just created")
	}
	if server.HasSession("nonexistent") {
		t.Fatal("HasSession returned true for a session that does not exist")
	}

	if err := server.KillServer(); err != nil {
		t.Fatalf("KillServer: %v", err)
	}
	if server.HasSession("recorded") {
		t.Fatal("session still exists after KillServer")
	}
	if err := server.KillServer(); err != nil {
		t.Fatalf("KillServer on stopped server returned error: %v", err)
	}
}

func TestNewTestServerIsolation(t *testing.T) {
	serverA := NewTestServer(t)
	serverB := NewTestServer(t)

	if err := serverA.NewSession("only-on-a", 20, 5, "sleep", "infinity"); err != nil {
		t.Fatalf("NewSession on A: %v", err)
	}
	if serverB.HasSession("only-on-a") {
		t.Fatal("server B can see a session from server A")
	}
}

// waitForText polls the visible pane until it contains text, bounded
// by the test context.
func waitForText(t *testing.T, server *Server, target, text string) string {
	t.Helper()
	for {
		captured, err := server.CaptureVisible(context.Background(), target)
		if err != nil {
			t.Fatalf("CaptureVisible: %v", err)
		}
		if strings.Contains(captured, text) {
			return captured
		}
		if t.Context().Err() != nil {
			t.Fatalf("timed out waiting for %q, last capture %q", text, captured)
		}
		runtime.Gosched()
	}
}

func TestCaptureVisibleAndGeometry(t *testing.T) {
	server := NewTestServer(t)

	if err := server.NewSession("capture", 40, 10, "sh", "-c", "printf 'hello replay'; sleep infinity"); err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	captured := waitForText(t, server, "capture", "hello replay")
	lines := strings.Split(strings.TrimRight(captured, "\n"), "\n")
	if lines[0] != "hello replay" {
		t.Errorf("first row: got %q", lines[0])
	}

	geometry, err := server.PaneGeometry(context.Background(), "capture")
	if err != nil {
		t.Fatalf("PaneGeometry: %v", err)
	}
	want := Geometry{Width: 40, Height: 10, CursorX: len("hello replay"), CursorY: 0}
	if geometry != want {
		t.Errorf("PaneGeometry: got %+v, want %+v", geometry, want)
	}
}

func TestSendKeys(t *testing.T) {
	server := NewTestServer(t)

	if err := server.NewSession("typing", 40, 10, "cat"); err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if err := server.SendKeys(context.Background(), "typing", "echoed-by-cat", "Enter"); err != nil {
		t.Fatalf("SendKeys: %v", err)
	}
	waitForText(t, server, "typing", "echoed-by-cat")
}

func TestRunReportsErrors(t *testing.T) {
	server := NewTestServer(t)

	_, err := server.Run(context.Background(), "display-message", "-p", "-t", "missing-session", "x")
	if err == nil {
		t.Fatal("Run against a missing session succeeded")
	}
	if !strings.Contains(err.Error(), "display-message") {
		t.Errorf("error does not name the subcommand: %v", err)
	}
}
