// Package observe provides application-wide observability primitives for
// SmarTerp: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
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

// meterName is the instrumentation scope name used for all SmarTerp metrics.
const meterName = "github.com/hlt-mt/smarterp"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms ---

	// WorkerDuration tracks one worker round trip (artifact write included).
	WorkerDuration metric.Float64Histogram

	// OracleDuration tracks linked-data lookups. Use with attribute:
	//   attribute.String("endpoint", ...)
	OracleDuration metric.Float64Histogram

	// AlignDuration tracks entity resolution plus alignment of one window.
	AlignDuration metric.Float64Histogram

	// --- Counters ---

	// WorkerRequests counts worker submissions. Use with attribute:
	//   attribute.String("status", ...)
	WorkerRequests metric.Int64Counter

	// OracleRequests counts oracle lookups. Use with attributes:
	//   attribute.String("endpoint", ...), attribute.String("status", ...)
	OracleRequests metric.Int64Counter

	// SlicesEmitted counts audio slices produced by the window buffer.
	SlicesEmitted metric.Int64Counter

	// AlignedPairs counts emitted pairs. Use with attribute:
	//   attribute.String("stage", ...)
	AlignedPairs metric.Int64Counter

	// Unresolved counts entities and terms that could not be paired. Use with
	// attributes:
	//   attribute.String("kind", "entity"|"term"), attribute.String("type", ...)
	Unresolved metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of open client sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration times plain HTTP requests, websocket sessions
	// excluded. Attributes: attribute.String("route", ...),
	// attribute.Int("status", ...).
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds). Worker
// calls on a ten second window routinely take a few seconds.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.WorkerDuration, err = m.Float64Histogram("smarterp.worker.duration",
		metric.WithDescription("Latency of a translation worker round trip."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.OracleDuration, err = m.Float64Histogram("smarterp.oracle.duration",
		metric.WithDescription("Latency of linked-data oracle lookups."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.AlignDuration, err = m.Float64Histogram("smarterp.align.duration",
		metric.WithDescription("Latency of entity resolution and alignment for one window."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.WorkerRequests, err = m.Int64Counter("smarterp.worker.requests",
		metric.WithDescription("Total worker submissions by status."),
	); err != nil {
		return nil, err
	}
	if met.OracleRequests, err = m.Int64Counter("smarterp.oracle.requests",
		metric.WithDescription("Total oracle lookups by endpoint and status."),
	); err != nil {
		return nil, err
	}
	if met.SlicesEmitted, err = m.Int64Counter("smarterp.window.slices",
		metric.WithDescription("Total audio slices emitted by the window buffer."),
	); err != nil {
		return nil, err
	}
	if met.AlignedPairs, err = m.Int64Counter("smarterp.align.pairs",
		metric.WithDescription("Total aligned entity pairs by matching stage."),
	); err != nil {
		return nil, err
	}
	if met.Unresolved, err = m.Int64Counter("smarterp.align.unresolved",
		metric.WithDescription("Total entities and terms left unpaired, by kind and type."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("smarterp.active_sessions",
		metric.WithDescription("Number of open client sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("smarterp.http.request.duration",
		metric.WithDescription("HTTP request latency by route and status."),
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

// RecordWorkerRequest increments the worker request counter.
func (m *Metrics) RecordWorkerRequest(ctx context.Context, status string) {
	m.WorkerRequests.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordOracleRequest increments the oracle request counter.
func (m *Metrics) RecordOracleRequest(ctx context.Context, endpoint, status string) {
	m.OracleRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("endpoint", endpoint),
			attribute.String("status", status),
		),
	)
}

// RecordAlignedPair increments the pair counter for the stage that produced
// the pair.
func (m *Metrics) RecordAlignedPair(ctx context.Context, stage string) {
	m.AlignedPairs.Add(ctx, 1,
		metric.WithAttributes(attribute.String("stage", stage)),
	)
}

// RecordUnresolved increments the unresolved counter. kind is "entity" or
// "term"; typ is the entity type label (empty for terms).
func (m *Metrics) RecordUnresolved(ctx context.Context, kind, typ string) {
	m.Unresolved.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("type", typ),
		),
	)
}
