// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/bureau-foundation/replay/capture"
	"github.com/bureau-foundation/replay/lib/compress"
	"github.com/bureau-foundation/replay/lib/tmux"
	"github.com/bureau-foundation/replay/replay"
)

func runRecord(args []string, stdout, stderr io.Writer) error {
	var (
		common      commonFlags
		socket      string
		target      string
		output      string
		compression string
		duration    time.Duration
		interval    time.Duration
		showMetrics bool
	)
	flagSet := pflag.NewFlagSet("record", pflag.ContinueOnError)
	common.add(flagSet)
	flagSet.StringVar(&socket, "socket", "", "tmux server socket (default: capture.socket from config)")
	flagSet.StringVar(&target, "target", "", "tmux target pane, e.g. main or main:0.1 (default: capture.target from config)")
	flagSet.StringVarP(&output, "output", "o", "", "snapshot file; a bare name is placed in snapshot.directory (default: <target>.replay)")
	flagSet.StringVar(&compression, "compression", "", "arena compression: none, lz4, or zstd (default: snapshot.compression from config)")
	flagSet.DurationVar(&duration, "duration", 0, "stop after this long (default: until interrupted)")
	flagSet.DurationVar(&interval, "interval", 0, "capture interval (default: capture.interval from config)")
	flagSet.BoolVar(&showMetrics, "metrics", false, "print frame and eviction counters to stderr when done")

	if done, err := parseFlags(flagSet, args, "record [flags]", stderr); done || err != nil {
		return err
	}
	if flagSet.NArg() > 0 {
		return fmt.Errorf("unexpected argument: %s", flagSet.Arg(0))
	}

	cfg, logger, err := common.load(stderr)
	if err != nil {
		return err
	}
	if socket == "" {
		socket = cfg.Capture.Socket
	}
	if target == "" {
		target = cfg.Capture.Target
	}
	if socket == "" || target == "" {
		return fmt.Errorf("--socket and --target are required (or capture.socket and capture.target in the config)")
	}
	if interval != 0 {
		cfg.Capture.Interval = interval
	}
	if compression != "" {
		tag, err := compress.ParseTag(compression)
		if err != nil {
			return err
		}
		cfg.Snapshot.Compression = tag
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if output == "" {
		output = defaultSnapshotName(target)
	}
	path := cfg.SnapshotPath(output)
	if path != output {
		if err := cfg.EnsureSnapshotDirectory(); err != nil {
			return err
		}
	}

	options := cfg.ReplayOptions()
	options.Logger = logger

	var reader *sdkmetric.ManualReader
	if showMetrics {
		reader = sdkmetric.NewManualReader()
		provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
		defer provider.Shutdown(context.Background())
		metrics, err := replay.NewMetrics(provider)
		if err != nil {
			return err
		}
		options.Metrics = metrics
	}

	dvr, err := replay.New(options)
	if err != nil {
		return err
	}
	defer dvr.Close()

	recorderOptions := cfg.RecorderOptions()
	recorderOptions.Logger = logger
	source := capture.NewPaneSource(tmux.NewServer(socket, ""), target)
	recorder, err := replay.NewRecorder(dvr, source, recorderOptions)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	logger.Info("recording",
		"socket", socket,
		"target", target,
		"interval", cfg.Capture.Interval,
		"capacity", options.Capacity,
		"output", path,
	)
	if err := recorder.Run(ctx); err != nil {
		return err
	}

	if dvr.IsEmpty() {
		return fmt.Errorf("no frames captured from %s", target)
	}
	snapshot, err := dvr.Snapshot(cfg.Snapshot.Compression)
	if err != nil {
		return err
	}
	if err := writeSnapshotFile(path, snapshot); err != nil {
		return err
	}

	stats := dvr.Stats()
	fmt.Fprintf(stdout, "wrote %s: %d frames (%d key frames), %d of %d bytes\n",
		path, stats.Frames, stats.KeyFrames, stats.Used, stats.Capacity)

	if reader != nil {
		var data metricdata.ResourceMetrics
		if err := reader.Collect(context.Background(), &data); err != nil {
			return fmt.Errorf("collecting metrics: %w", err)
		}
		printMetrics(stderr, data)
	}
	return nil
}

// defaultSnapshotName derives a file name from a tmux target.
func defaultSnapshotName(target string) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case ':', '.', '/', '%', '$', '@':
			return '-'
		}
		return r
	}, target)
	return strings.Trim(name, "-") + ".replay"
}

// writeSnapshotFile writes to a temporary file in the same directory,
// syncs it, and renames it into place, so a reader never sees a
// partial snapshot.
func writeSnapshotFile(path string, snapshot *replay.Snapshot) error {
	temporaryPath := path + ".tmp"
	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("creating temporary snapshot file: %w", err)
	}

	writer := bufio.NewWriter(file)
	err = replay.WriteSnapshot(writer, snapshot)
	if err == nil {
		err = writer.Flush()
	}
	if err == nil {
		err = file.Sync()
	}
	if err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("writing temporary snapshot file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing temporary snapshot file: %w", err)
	}

	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming snapshot into place: %w", err)
	}
	if parentDirectory, err := os.Open(filepath.Dir(path)); err == nil {
		parentDirectory.Sync()
		parentDirectory.Close()
	}
	return nil
}

// printMetrics writes every counter and histogram in data as a table.
func printMetrics(w io.Writer, data metricdata.ResourceMetrics) {
	writer := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "METRIC\tATTRIBUTES\tVALUE")
	for _, scope := range data.ScopeMetrics {
		for _, metric := range scope.Metrics {
			switch points := metric.Data.(type) {
			case metricdata.Sum[int64]:
				for _, point := range points.DataPoints {
					fmt.Fprintf(writer, "%s\t%s\t%d\n", metric.Name, formatAttributes(point.Attributes), point.Value)
				}
			case metricdata.Histogram[int64]:
				for _, point := range points.DataPoints {
					fmt.Fprintf(writer, "%s\t%s\tcount=%d sum=%d\n",
						metric.Name, formatAttributes(point.Attributes), point.Count, point.Sum)
				}
			}
		}
	}
	writer.Flush()
}

func formatAttributes(set attribute.Set) string {
	if set.Len() == 0 {
		return "-"
	}
	return set.Encoded(attribute.DefaultEncoder())
}
