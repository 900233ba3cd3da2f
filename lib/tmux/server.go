// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package tmux provides a typed interface to a tmux server for the
// screen recorder. All operations target a specific server socket:
// there is no default server, and the user's ~/.tmux.conf is never
// loaded unless explicitly requested.
//
// The central type is Server, which represents a tmux server identified
// by its Unix socket path. All tmux commands go through Server, which
// injects the -S flag automatically, so a command can never reach the
// wrong server by accident.
package tmux

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Server represents a tmux server identified by its Unix socket path.
type Server struct {
	socketPath string
	configFile string // passed as "-f <path>" on new-session; empty = tmux default
}

// NewServer returns a Server that targets the given socket path.
//
// configFile controls which configuration file tmux loads when the
// server starts (on the first new-session). Pass "/dev/null" to keep
// ~/.tmux.conf out of recordings and tests. If configFile is empty,
// tmux uses its default config resolution.
func NewServer(socketPath, configFile string) *Server {
	return &Server{
		socketPath: socketPath,
		configFile: configFile,
	}
}

// SocketPath returns the Unix socket path that identifies this server.
func (s *Server) SocketPath() string {
	return s.socketPath
}

// NewSession creates a detached session of the given size. If command
// is non-empty, the session runs that command instead of the default
// shell.
//
// The -f flag is passed here because new-session may start the server;
// once it is running, later commands don't re-read the config file.
func (s *Server) NewSession(sessionName string, width, height int, command ...string) error {
	var args []string
	if s.configFile != "" {
		args = append(args, "-f", s.configFile)
	}
	args = append(args, "-S", s.socketPath, "new-session", "-d", "-s", sessionName,
		"-x", strconv.Itoa(width), "-y", strconv.Itoa(height))
	args = append(args, command...)

	cmd := exec.Command("tmux", args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("tmux new-session %q: %w (%s)",
			sessionName, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// HasSession reports whether a session with the given name exists on
// this server. Returns false if the server is not running.
func (s *Server) HasSession(sessionName string) bool {
	cmd := exec.Command("tmux", "-S", s.socketPath, "has-session", "-t", sessionName)
	return cmd.Run() == nil
}

// KillServer terminates the entire tmux server. Returns nil if the
// server was already stopped.
func (s *Server) KillServer() error {
	cmd := exec.Command("tmux", "-S", s.socketPath, "kill-server")
	output, err := cmd.CombinedOutput()
	if err != nil {
		outputString := strings.TrimSpace(string(output))
		// The socket file can linger briefly after the server exits,
		// which produces "server exited unexpectedly".
		if strings.Contains(outputString, "no server running") ||
			strings.Contains(outputString, "server exited unexpectedly") {
			return nil
		}
		return fmt.Errorf("tmux kill-server: %w (%s)", err, outputString)
	}
	return nil
}

// Run executes a tmux subcommand on this server and returns its
// standard output. The -S flag is prepended; callers provide only the
// subcommand and its arguments:
//
//	output, err := server.Run(ctx, "send-keys", "-t", session, "ls", "Enter")
//
// When ctx is cancelled the tmux process is killed.
func (s *Server) Run(ctx context.Context, args ...string) (string, error) {
	fullArgs := append([]string{"-S", s.socketPath}, args...)
	cmd := exec.CommandContext(ctx, "tmux", fullArgs...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("tmux %s: %w (%s)",
			strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return string(output), nil
}

// CaptureVisible returns the visible area of target's active pane as
// plain text, one line per row. Trailing blanks on each row are
// dropped by tmux.
func (s *Server) CaptureVisible(ctx context.Context, target string) (string, error) {
	return s.Run(ctx, "capture-pane", "-p", "-t", target)
}

// Geometry is the size of a pane and the position of its cursor.
type Geometry struct {
	Width   int
	Height  int
	CursorX int
	CursorY int
}

// PaneGeometry returns the size and cursor position of target's active
// pane.
func (s *Server) PaneGeometry(ctx context.Context, target string) (Geometry, error) {
	output, err := s.Run(ctx, "display-message", "-p", "-t", target,
		"#{pane_width} #{pane_height} #{cursor_x} #{cursor_y}")
	if err != nil {
		return Geometry{}, err
	}
	return parseGeometry(output)
}

func parseGeometry(output string) (Geometry, error) {
	fields := strings.Fields(output)
	if len(fields) != 4 {
		return Geometry{}, fmt.Errorf("pane geometry: expected 4 fields, got %q", strings.TrimSpace(output))
	}
	values := make([]int, 4)
	for i, field := range fields {
		value, err := strconv.Atoi(field)
		if err != nil {
			return Geometry{}, fmt.Errorf("pane geometry field %d %q: %w", i, field, err)
		}
		if value < 0 {
			return Geometry{}, fmt.Errorf("pane geometry field %d is negative: %d", i, value)
		}
		values[i] = value
	}
	return Geometry{Width: values[0], Height: values[1], CursorX: values[2], CursorY: values[3]}, nil
}

// SendKeys types keys into target's active pane. Each argument is a
// tmux key name or literal string, as for send-keys.
func (s *Server) SendKeys(ctx context.Context, target string, keys ...string) error {
	args := append([]string{"send-keys", "-t", target}, keys...)
	_, err := s.Run(ctx, args...)
	return err
}
