// Package observe provides application-wide observability primitives for
// wavecast: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
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

// meterName is the instrumentation scope name used for all wavecast metrics.
const meterName = "github.com/MrWong99/wavecast"

// Frame outcomes recorded on [Metrics.FrameOutcomes].
const (
	OutcomeAccepted     = "accepted"
	OutcomeOutOfOrder   = "out_of_order"
	OutcomeDuplicate    = "duplicate"
	OutcomeInconsistent = "inconsistent"
	OutcomeInvalid      = "invalid"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// ModulateDuration tracks the latency of a single modem Modulate call.
	ModulateDuration metric.Float64Histogram

	// DemodulateDuration tracks the latency of a single modem Demodulate call.
	DemodulateDuration metric.Float64Histogram

	// TranscodeDuration tracks transcoder latency. Use with attribute:
	//   attribute.String("format", ...)
	TranscodeDuration metric.Float64Histogram

	// OperationDuration tracks whole encode/decode/verify operations. Use with
	// attributes:
	//   attribute.String("operation", ...), attribute.String("status", ...)
	OperationDuration metric.Float64Histogram

	// --- Counters ---

	// FramesTransmitted counts frames modulated by the transmitter.
	FramesTransmitted metric.Int64Counter

	// WindowsScanned counts audio windows handed to the demodulator.
	WindowsScanned metric.Int64Counter

	// FramesDetected counts well-formed frames found while scanning,
	// including duplicates.
	FramesDetected metric.Int64Counter

	// FrameOutcomes counts reassembler decisions. Use with attribute:
	//   attribute.String("outcome", ...)
	FrameOutcomes metric.Int64Counter

	// ProviderRequests counts provider calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of running encode/decode operations.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks telemetry server latency. Use with attributes:
	//   attribute.String("method", ...), attribute.String("endpoint", ...), attribute.String("status", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// subprocess-bound modem and transcoder calls.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// operationBuckets covers whole transfers, which scale with payload size.
var operationBuckets = []float64{
	1, 5, 15, 30, 60, 120, 300, 600, 1800,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.ModulateDuration, err = m.Float64Histogram("wavecast.modem.modulate.duration",
		metric.WithDescription("Latency of modulating one modem block."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.DemodulateDuration, err = m.Float64Histogram("wavecast.modem.demodulate.duration",
		metric.WithDescription("Latency of demodulating one scan window."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TranscodeDuration, err = m.Float64Histogram("wavecast.transcode.duration",
		metric.WithDescription("Latency of audio transcoding by output format."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.OperationDuration, err = m.Float64Histogram("wavecast.operation.duration",
		metric.WithDescription("Duration of encode, decode and verify operations."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(operationBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.FramesTransmitted, err = m.Int64Counter("wavecast.transmit.frames",
		metric.WithDescription("Total frames modulated by the transmitter."),
	); err != nil {
		return nil, err
	}
	if met.WindowsScanned, err = m.Int64Counter("wavecast.scan.windows",
		metric.WithDescription("Total audio windows demodulated by the scanner."),
	); err != nil {
		return nil, err
	}
	if met.FramesDetected, err = m.Int64Counter("wavecast.scan.frames",
		metric.WithDescription("Total well-formed frames detected while scanning."),
	); err != nil {
		return nil, err
	}
	if met.FrameOutcomes, err = m.Int64Counter("wavecast.reassembly.frames",
		metric.WithDescription("Total frames seen by the reassembler by outcome."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("wavecast.provider.requests",
		metric.WithDescription("Total provider requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("wavecast.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("wavecast.active_sessions",
		metric.WithDescription("Number of running encode and decode operations."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("wavecast.http.request.duration",
		metric.WithDescription("Telemetry server latency by endpoint class."),
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

// RecordProviderRequest is a convenience method that records a provider
// request counter increment with the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordFrameOutcome records one reassembler decision.
func (m *Metrics) RecordFrameOutcome(ctx context.Context, outcome string) {
	m.FrameOutcomes.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}

// RecordTranscode records the latency of one transcode to format.
func (m *Metrics) RecordTranscode(ctx context.Context, format string, seconds float64) {
	m.TranscodeDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("format", format)),
	)
}

// RecordOperation records the duration of a finished encode, decode or verify
// operation. status is "ok" or "error".
func (m *Metrics) RecordOperation(ctx context.Context, operation, status string, seconds float64) {
	m.OperationDuration.Record(ctx, seconds,
		metric.WithAttributes(
			attribute.String("operation", operation),
			attribute.String("status", status),
		),
	)
}

// Status maps an error to the "ok"/"error" status attribute value.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
