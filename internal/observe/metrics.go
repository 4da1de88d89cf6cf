// Package observe holds the OpenTelemetry metrics, tracing helpers and HTTP
// middleware shared by the autojob server.
//
// Instruments are created by [NewMetrics] against any [metric.MeterProvider].
// [InitProvider] installs the SDK and exposes its Prometheus registry through
// [Telemetry.Handler].
package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all autojob metrics.
const meterName = "github.com/AnsuryX/Autojob-Mvp"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Background tasks ---

	// TaskRuns counts task runs by outcome. Attributes:
	//   attribute.String("task", ...), attribute.String("outcome", ...)
	TaskRuns metric.Int64Counter

	// TaskDuration tracks how long task drivers take from start to terminal state.
	TaskDuration metric.Float64Histogram

	// --- Provider calls ---

	// LLMDuration tracks LLM completion latency.
	LLMDuration metric.Float64Histogram

	// S2SConnectDuration tracks speech-to-speech session setup latency.
	S2SConnectDuration metric.Float64Histogram

	// ProviderRequests counts provider API calls. Attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Interview sessions ---

	// ActiveSessions tracks the number of live interview sessions.
	ActiveSessions metric.Int64UpDownCounter

	// AudioFramesSent counts capture windows forwarded to the model.
	AudioFramesSent metric.Int64Counter

	// AudioFramesReceived counts audio payloads received from the model.
	AudioFramesReceived metric.Int64Counter

	// PlaybackInterruptions counts barge-in interruptions applied to playback.
	PlaybackInterruptions metric.Int64Counter

	// --- Commands ---

	// CommandActions counts interpreted commands. Attribute:
	//   attribute.String("action", ...)
	CommandActions metric.Int64Counter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for remote
// model calls.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.TaskDuration, err = m.Float64Histogram("autojob.task.duration",
		metric.WithDescription("Duration of background task runs."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("autojob.llm.duration",
		metric.WithDescription("Latency of LLM completions."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.S2SConnectDuration, err = m.Float64Histogram("autojob.s2s.connect.duration",
		metric.WithDescription("Latency of speech-to-speech session setup."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("autojob.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.TaskRuns, err = m.Int64Counter("autojob.task.runs",
		metric.WithDescription("Background task runs by task and outcome."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("autojob.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("autojob.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.AudioFramesSent, err = m.Int64Counter("autojob.interview.frames_sent",
		metric.WithDescription("Capture windows sent to the voice model."),
	); err != nil {
		return nil, err
	}
	if met.AudioFramesReceived, err = m.Int64Counter("autojob.interview.frames_received",
		metric.WithDescription("Audio payloads received from the voice model."),
	); err != nil {
		return nil, err
	}
	if met.PlaybackInterruptions, err = m.Int64Counter("autojob.interview.interruptions",
		metric.WithDescription("Playback interruptions caused by user barge-in."),
	); err != nil {
		return nil, err
	}
	if met.CommandActions, err = m.Int64Counter("autojob.command.actions",
		metric.WithDescription("Interpreted commands by resulting action."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("autojob.interview.active_sessions",
		metric.WithDescription("Number of live interview sessions."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordTaskRun records one finished (or rejected) task run.
func (m *Metrics) RecordTaskRun(ctx context.Context, task, outcome string, d time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("task", task),
		attribute.String("outcome", outcome),
	)
	m.TaskRuns.Add(ctx, 1, attrs)
	if d > 0 {
		m.TaskDuration.Record(ctx, d.Seconds(), attrs)
	}
}

// RecordProviderRequest records a provider request counter increment with the
// standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records a provider error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordCommand records the action an interpreted command resolved to.
func (m *Metrics) RecordCommand(ctx context.Context, action string) {
	m.CommandActions.Add(ctx, 1, metric.WithAttributes(attribute.String("action", action)))
}
