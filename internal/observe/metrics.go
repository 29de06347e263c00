// Package observe provides application-wide observability primitives for
// Otogi: OpenTelemetry metrics, distributed tracing, structured logging, and
// HTTP middleware that ties them together.
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
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Otogi metrics.
const meterName = "github.com/mutsucloud/otogi"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// TurnDuration tracks one full conversation turn, from user input to the
	// committed assistant message.
	TurnDuration metric.Float64Histogram

	// StreamDuration tracks the chat completion stream alone.
	StreamDuration metric.Float64Histogram

	// SummarizeDuration tracks summarization collaborator latency. Use with
	// attribute.String("mode", ...).
	SummarizeDuration metric.Float64Histogram

	// MediaJobDuration tracks media jobs end to end, submission through
	// resolution. Use with attribute.String("kind", ...) and
	// attribute.String("outcome", ...).
	MediaJobDuration metric.Float64Histogram

	// --- Counters ---

	// Turns counts completed turns. Use with attribute.String("model", ...)
	// and attribute.String("status", ...).
	Turns metric.Int64Counter

	// MediaJobPolls counts individual status polls across all media jobs.
	MediaJobPolls metric.Int64Counter

	// ProviderRequests counts collaborator API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts collaborator errors by provider and kind.
	ProviderErrors metric.Int64Counter

	// Consolidations counts LTM consolidation merges by status.
	Consolidations metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of stored sessions.
	ActiveSessions metric.Int64UpDownCounter

	// ActiveStreams tracks in-flight completion streams.
	ActiveStreams metric.Int64UpDownCounter

	// PendingMediaJobs tracks media jobs currently submitted or polling.
	PendingMediaJobs metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries in seconds. Media jobs
// poll for minutes, so the upper buckets stretch far beyond typical HTTP
// latencies.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 180,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.TurnDuration, err = m.Float64Histogram("otogi.turn.duration",
		metric.WithDescription("Latency of one full conversation turn."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.StreamDuration, err = m.Float64Histogram("otogi.stream.duration",
		metric.WithDescription("Latency of the chat completion stream."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SummarizeDuration, err = m.Float64Histogram("otogi.summarize.duration",
		metric.WithDescription("Latency of summarization calls by mode."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.MediaJobDuration, err = m.Float64Histogram("otogi.mediajob.duration",
		metric.WithDescription("End-to-end media job latency by kind and outcome."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Turns, err = m.Int64Counter("otogi.turns",
		metric.WithDescription("Total completed turns by model and status."),
	); err != nil {
		return nil, err
	}
	if met.MediaJobPolls, err = m.Int64Counter("otogi.mediajob.polls",
		metric.WithDescription("Total media job status polls."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("otogi.provider.requests",
		metric.WithDescription("Total collaborator API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("otogi.provider.errors",
		metric.WithDescription("Total collaborator errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.Consolidations, err = m.Int64Counter("otogi.memory.consolidations",
		metric.WithDescription("Total LTM consolidation merges by status."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("otogi.active_sessions",
		metric.WithDescription("Number of stored sessions."),
	); err != nil {
		return nil, err
	}
	if met.ActiveStreams, err = m.Int64UpDownCounter("otogi.active_streams",
		metric.WithDescription("Number of in-flight completion streams."),
	); err != nil {
		return nil, err
	}
	if met.PendingMediaJobs, err = m.Int64UpDownCounter("otogi.mediajob.pending",
		metric.WithDescription("Number of media jobs currently submitted or polling."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("otogi.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
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

// RecordProviderRequest records a collaborator request with the standard
// attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records a collaborator error.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordTurn records one completed turn.
func (m *Metrics) RecordTurn(ctx context.Context, model, status string, d time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("model", model),
		attribute.String("status", status),
	)
	m.Turns.Add(ctx, 1, attrs)
	m.TurnDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordStream records the duration of one completion stream.
func (m *Metrics) RecordStream(ctx context.Context, model string, d time.Duration) {
	m.StreamDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("model", model)),
	)
}

// RecordSummarize records the latency of one summarization call.
func (m *Metrics) RecordSummarize(ctx context.Context, mode string, d time.Duration) {
	m.SummarizeDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("mode", mode)),
	)
}

// RecordMediaJob records one finished media job.
func (m *Metrics) RecordMediaJob(ctx context.Context, kind, outcome string, d time.Duration) {
	m.MediaJobDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("outcome", outcome),
		),
	)
}

// RecordConsolidation records one LTM consolidation attempt.
func (m *Metrics) RecordConsolidation(ctx context.Context, status string) {
	m.Consolidations.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}
