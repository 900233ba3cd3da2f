// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package replay

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/bureau-foundation/replay/lib/arena"
)

const meterName = "github.com/bureau-foundation/replay"

// Metrics holds the OpenTelemetry instruments a DVR reports to. All
// instruments are safe for concurrent use. A nil *Metrics records
// nothing.
type Metrics struct {
	// FramesAppended counts committed frames by frame_type.
	FramesAppended metric.Int64Counter

	// KeyFrames counts key frames by the reason the encoder chose one.
	KeyFrames metric.Int64Counter

	// FramesEvicted counts frames removed from the arena, including
	// trimmed diff frames.
	FramesEvicted metric.Int64Counter

	// DecoderInvalidations counts decoders dropped to the empty state
	// because their frame was evicted.
	DecoderInvalidations metric.Int64Counter

	// EncodedSize records the stored size of each frame.
	EncodedSize metric.Int64Histogram
}

// NewMetrics creates the instruments from provider, or from the global
// MeterProvider when provider is nil. The global provider hands out
// no-op instruments until one is registered, so it is safe to call
// unconditionally.
func NewMetrics(provider metric.MeterProvider) (*Metrics, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter(meterName)
	m := &Metrics{}
	var err error

	m.FramesAppended, err = meter.Int64Counter("replay.frames.appended",
		metric.WithDescription("Frames committed to the replay buffer, partitioned by frame type"),
		metric.WithUnit("{frame}"))
	if err != nil {
		return nil, err
	}

	m.KeyFrames, err = meter.Int64Counter("replay.key_frames",
		metric.WithDescription("Key frames written, partitioned by the reason a key frame was chosen"),
		metric.WithUnit("{frame}"))
	if err != nil {
		return nil, err
	}

	m.FramesEvicted, err = meter.Int64Counter("replay.frames.evicted",
		metric.WithDescription("Frames evicted from the replay buffer"),
		metric.WithUnit("{frame}"))
	if err != nil {
		return nil, err
	}

	m.DecoderInvalidations, err = meter.Int64Counter("replay.decoder.invalidations",
		metric.WithDescription("Decoders reset because their loaded frame was evicted"))
	if err != nil {
		return nil, err
	}

	m.EncodedSize, err = meter.Int64Histogram("replay.frame.encoded_size",
		metric.WithDescription("Stored size of each committed frame"),
		metric.WithUnit("By"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

func (m *Metrics) recordFrame(ctx context.Context, frameType arena.FrameType, length int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("frame_type", frameType.String()))
	m.FramesAppended.Add(ctx, 1, attrs)
	m.EncodedSize.Record(ctx, int64(length), attrs)
}

func (m *Metrics) recordKeyFrame(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.KeyFrames.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *Metrics) recordEvictions(ctx context.Context, count int) {
	if m == nil || count == 0 {
		return
	}
	m.FramesEvicted.Add(ctx, int64(count))
}

func (m *Metrics) recordInvalidation(ctx context.Context) {
	if m == nil {
		return
	}
	m.DecoderInvalidations.Add(ctx, 1)
}
