// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/replay/lib/arena"
	"github.com/bureau-foundation/replay/lib/screen"
	"github.com/bureau-foundation/replay/replay"
)

// openSnapshot reads a snapshot file and restores it into a DVR.
func openSnapshot(path string, options replay.Options) (*replay.Snapshot, *replay.DVR, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	snapshot, err := replay.ReadSnapshot(bufio.NewReader(file))
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	dvr, err := replay.Restore(snapshot, options)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return snapshot, dvr, nil
}

// inspectOptions builds DVR options for a restored snapshot. Capacity
// and record size come from the file; the configured cadence keeps
// applying if the DVR were appended to.
func inspectOptions(common *commonFlags, stderr io.Writer) (replay.Options, error) {
	cfg, logger, err := common.load(stderr)
	if err != nil {
		return replay.Options{}, err
	}
	options := cfg.ReplayOptions()
	options.Capacity = 0
	options.RecordSize = 0
	options.Logger = logger
	return options, nil
}

// snapshotArgument parses flags for a subcommand that takes exactly
// one snapshot file.
func snapshotArgument(flagSet *pflag.FlagSet, args []string, usage string, stderr io.Writer) (path string, done bool, err error) {
	if done, err := parseFlags(flagSet, args, usage, stderr); done || err != nil {
		return "", done, err
	}
	if flagSet.NArg() != 1 {
		flagSet.Usage()
		return "", false, fmt.Errorf("exactly one snapshot file required")
	}
	return flagSet.Arg(0), false, nil
}

func formatTimestamp(micros int64) string {
	return time.UnixMicro(micros).UTC().Format(time.RFC3339Nano)
}

func runInfo(args []string, stdout, stderr io.Writer) error {
	var common commonFlags
	flagSet := pflag.NewFlagSet("info", pflag.ContinueOnError)
	common.add(flagSet)
	path, done, err := snapshotArgument(flagSet, args, "info <snapshot> [flags]", stderr)
	if done || err != nil {
		return err
	}

	options, err := inspectOptions(&common, stderr)
	if err != nil {
		return err
	}
	snapshot, dvr, err := openSnapshot(path, options)
	if err != nil {
		return err
	}
	defer dvr.Close()

	stats := dvr.Stats()
	writer := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "file:\t%s\n", path)
	fmt.Fprintf(writer, "writer:\t%s\n", snapshot.Writer)
	fmt.Fprintf(writer, "capacity:\t%d bytes\n", stats.Capacity)
	fmt.Fprintf(writer, "used:\t%d bytes\n", stats.Used)
	fmt.Fprintf(writer, "record size:\t%d\n", stats.RecordSize)
	fmt.Fprintf(writer, "compression:\t%s (%d bytes)\n", snapshot.Store.Compression, len(snapshot.Store.Arena))
	fmt.Fprintf(writer, "frames:\t%d (%d key frames)\n", stats.Frames, stats.KeyFrames)

	if last, ok := dvr.LastKey(); ok {
		first, _ := dvr.FirstTimestamp()
		newest, _ := dvr.LastTimestamp()
		fmt.Fprintf(writer, "keys:\t%d..%d\n", dvr.FirstKey(), last)
		fmt.Fprintf(writer, "first:\t%s (%d)\n", formatTimestamp(first), first)
		fmt.Fprintf(writer, "last:\t%s (%d)\n", formatTimestamp(newest), newest)
		fmt.Fprintf(writer, "span:\t%s\n", time.Duration(newest-first)*time.Microsecond)
	} else {
		fmt.Fprintf(writer, "keys:\tnone (next key %d)\n", dvr.NextKey())
	}
	return writer.Flush()
}

func runFrames(args []string, stdout, stderr io.Writer) error {
	var common commonFlags
	flagSet := pflag.NewFlagSet("frames", pflag.ContinueOnError)
	common.add(flagSet)
	path, done, err := snapshotArgument(flagSet, args, "frames <snapshot> [flags]", stderr)
	if done || err != nil {
		return err
	}

	options, err := inspectOptions(&common, stderr)
	if err != nil {
		return err
	}
	_, dvr, err := openSnapshot(path, options)
	if err != nil {
		return err
	}
	defer dvr.Close()

	writer := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "KEY\tTYPE\tBYTES\tSIZE\tCURSOR\tTIMESTAMP")
	for _, entry := range dvr.Entries() {
		info := entry.Info
		fmt.Fprintf(writer, "%d\t%s\t%d\t%dx%d\t%d,%d\t%s\n",
			entry.Key, info.Type, entry.Length, info.Width, info.Height,
			info.CursorX, info.CursorY, formatTimestamp(info.Timestamp))
	}
	return writer.Flush()
}

func runShow(args []string, stdout, stderr io.Writer) error {
	var (
		common commonFlags
		at     int64
		key    int64
	)
	flagSet := pflag.NewFlagSet("show", pflag.ContinueOnError)
	common.add(flagSet)
	flagSet.Int64Var(&at, "at", 0, "show the first frame at or after this time (microseconds since the epoch)")
	flagSet.Int64Var(&key, "key", 0, "show the frame with this key")
	path, done, err := snapshotArgument(flagSet, args, "show <snapshot> (--at MICROS | --key KEY) [flags]", stderr)
	if done || err != nil {
		return err
	}
	byTime, byKey := flagSet.Changed("at"), flagSet.Changed("key")
	if byTime == byKey {
		return fmt.Errorf("exactly one of --at and --key is required")
	}

	options, err := inspectOptions(&common, stderr)
	if err != nil {
		return err
	}
	snapshot, dvr, err := openSnapshot(path, options)
	if err != nil {
		return err
	}
	defer dvr.Close()
	if snapshot.RecordSize != screen.CellSize {
		return fmt.Errorf("%s: record size %d is not a screen cell (%d); only frames captured from tmux can be shown",
			path, snapshot.RecordSize, screen.CellSize)
	}

	decoder := dvr.NewDecoder()
	defer dvr.ReleaseDecoder(decoder)
	if byKey {
		if !decoder.SeekKey(arena.Key(key)) {
			return fmt.Errorf("key %d is not in %s (keys %d..%d)", key, path, dvr.FirstKey(), dvr.NextKey()-1)
		}
	} else if !decoder.Seek(at) {
		last, _ := dvr.LastTimestamp()
		return fmt.Errorf("no frame at or after %d in %s (last frame at %d)", at, path, last)
	}

	info := decoder.Info()
	grid, err := screen.Decode(decoder.Frame(), info.Width, info.Height)
	if err != nil {
		return err
	}
	frameKey, _ := decoder.Key()
	fmt.Fprintf(stdout, "key %d, %s, %dx%d, cursor %d,%d\n",
		frameKey, formatTimestamp(info.Timestamp), info.Width, info.Height, info.CursorX, info.CursorY)
	for _, line := range grid.Lines() {
		fmt.Fprintln(stdout, line)
	}
	return nil
}
