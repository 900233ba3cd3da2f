// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// bureau-replay records a tmux pane into an instant-replay buffer and
// inspects the snapshot files it writes.
//
// The record subcommand polls one pane at a fixed interval, keeps the
// most recent history in a fixed-size frame store, and writes a
// snapshot when the recording ends (--duration elapses or the process
// receives SIGINT/SIGTERM). The info, frames and show subcommands
// read a snapshot back: show decodes a single frame and prints the
// screen text as it was at that moment.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/replay/lib/config"
	"github.com/bureau-foundation/replay/lib/process"
	"github.com/bureau-foundation/replay/lib/version"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		process.Fatal(err)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	if len(args) < 1 {
		printUsage(stderr)
		return fmt.Errorf("subcommand required")
	}

	subcommand := args[0]
	switch subcommand {
	case "record":
		return runRecord(args[1:], stdout, stderr)
	case "info":
		return runInfo(args[1:], stdout, stderr)
	case "frames":
		return runFrames(args[1:], stdout, stderr)
	case "show":
		return runShow(args[1:], stdout, stderr)
	case "version", "--version":
		fmt.Fprintf(stdout, "bureau-replay %s\n", version.Info())
		return nil
	case "-h", "--help", "help":
		printUsage(stderr)
		return nil
	default:
		printUsage(stderr)
		return fmt.Errorf("unknown subcommand: %q", subcommand)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, `Usage: bureau-replay <subcommand> [flags]

Subcommands:
  record      Record a tmux pane and write a snapshot when done
  info        Summarize a snapshot file
  frames      List the frames stored in a snapshot
  show        Print the screen text of one frame
  version     Print version information

Examples:
  # Record the "main" session for five minutes
  bureau-replay record --socket /tmp/tmux-1000/default --target main --duration 5m

  # Print the screen as it was at a given time (microseconds since the epoch)
  bureau-replay show main.replay --at 1767225600000000

Run 'bureau-replay <subcommand> --help' for subcommand flags.
`)
}

// commonFlags are accepted by every subcommand.
type commonFlags struct {
	configPath string
	logLevel   string
}

func (common *commonFlags) add(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&common.configPath, "config", "", "config file (default: $"+config.EnvironmentVariable+", then built-in defaults)")
	flagSet.StringVar(&common.logLevel, "log-level", "info", "log level: debug, info, warn, or error")
}

// load resolves the configuration and builds the logger. An explicit
// --config wins over the environment variable; with neither, the
// built-in defaults apply.
func (common *commonFlags) load(stderr io.Writer) (*config.Config, *slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(common.logLevel)); err != nil {
		return nil, nil, fmt.Errorf("invalid --log-level %q: %w", common.logLevel, err)
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	var cfg *config.Config
	var err error
	switch {
	case common.configPath != "":
		cfg, err = config.LoadFile(common.configPath)
	case os.Getenv(config.EnvironmentVariable) != "":
		cfg, err = config.Load()
	default:
		cfg = config.Default()
	}
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// parseFlags parses args into flagSet. Returns done=true when --help
// was requested and the usage has been printed.
func parseFlags(flagSet *pflag.FlagSet, args []string, usage string, stderr io.Writer) (done bool, err error) {
	flagSet.SetOutput(stderr)
	flagSet.Usage = func() {
		fmt.Fprintf(stderr, "Usage: bureau-replay %s\n\nFlags:\n", usage)
		flagSet.PrintDefaults()
	}
	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return true, nil
		}
		return false, err
	}
	return false, nil
}
