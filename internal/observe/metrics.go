// Package observe provides application-wide observability primitives for
// Genie: OpenTelemetry metrics, distributed tracing, and structured logging
// helpers tied to the active span.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Genie metrics.
const meterName = "github.com/genievoice/genie"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// STTDuration tracks speech-to-text transcription latency.
	STTDuration metric.Float64Histogram

	// TTSDuration tracks spoken-response synthesis and playback latency.
	TTSDuration metric.Float64Histogram

	// CommandDuration tracks command execution latency.
	CommandDuration metric.Float64Histogram

	// --- Counters ---

	// WakeEvents counts accepted wake detections. Use with attribute:
	//   attribute.String("phrase", ...)
	WakeEvents metric.Int64Counter

	// SpeechSegments counts completed speech segments.
	SpeechSegments metric.Int64Counter

	// Sessions counts opened command sessions.
	Sessions metric.Int64Counter

	// SessionTimeouts counts command sessions that expired with no activity.
	SessionTimeouts metric.Int64Counter

	// DroppedFrames counts frames evicted from the capture queue under
	// backpressure.
	DroppedFrames metric.Int64Counter

	// CapabilityErrors counts capability failures. Use with attributes:
	//   attribute.String("capability", ...), attribute.String("engine", ...)
	CapabilityErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks whether a command session is currently open
	// (0 or 1 by construction, a single controller).
	ActiveSessions metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.STTDuration, err = m.Float64Histogram("genie.stt.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("genie.tts.duration",
		metric.WithDescription("Latency of spoken-response synthesis and playback."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CommandDuration, err = m.Float64Histogram("genie.command.duration",
		metric.WithDescription("Latency of command execution."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.WakeEvents, err = m.Int64Counter("genie.wake.events",
		metric.WithDescription("Total accepted wake detections by phrase."),
	); err != nil {
		return nil, err
	}
	if met.SpeechSegments, err = m.Int64Counter("genie.speech.segments",
		metric.WithDescription("Total completed speech segments."),
	); err != nil {
		return nil, err
	}
	if met.Sessions, err = m.Int64Counter("genie.sessions",
		metric.WithDescription("Total opened command sessions."),
	); err != nil {
		return nil, err
	}
	if met.SessionTimeouts, err = m.Int64Counter("genie.session.timeouts",
		metric.WithDescription("Total command sessions expired with no activity."),
	); err != nil {
		return nil, err
	}
	if met.DroppedFrames, err = m.Int64Counter("genie.frames.dropped",
		metric.WithDescription("Total frames evicted from the capture queue under backpressure."),
	); err != nil {
		return nil, err
	}
	if met.CapabilityErrors, err = m.Int64Counter("genie.capability.errors",
		metric.WithDescription("Total capability failures by capability and engine."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("genie.active_sessions",
		metric.WithDescription("Number of currently open command sessions."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordWakeEvent records an accepted wake detection.
func (m *Metrics) RecordWakeEvent(ctx context.Context, phrase string) {
	m.WakeEvents.Add(ctx, 1,
		metric.WithAttributes(attribute.String("phrase", phrase)),
	)
}

// RecordCapabilityError records a capability failure with the standard
// attribute set.
func (m *Metrics) RecordCapabilityError(ctx context.Context, capability, engine string) {
	m.CapabilityErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("capability", capability),
			attribute.String("engine", engine),
		),
	)
}
