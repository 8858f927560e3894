package observe

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope name for the wavecast tracer.
const tracerName = "github.com/MrWong99/wavecast"

// Tracer returns the package-level [trace.Tracer] for wavecast. It uses the
// globally registered [trace.TracerProvider].
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a new span and returns the updated context and span. The
// caller must call span.End() when done.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// EndSpan records err on span (if any) and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// CorrelationID extracts the trace ID from the OTel span context in ctx.
// Returns the empty string when no active span with a valid trace ID exists.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns an [slog.Logger] enriched with trace_id and span_id from
// the OTel span context in ctx. When no active span is present, the returned
// logger is the default slog logger without extra attributes.
func Logger(ctx context.Context) *slog.Logger {
	l := slog.Default()
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		l = l.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return l
}

// StartOperation opens a top-level encode, decode or verify operation. It
// starts a span named "wavecast.<name>", counts the operation in
// [Metrics.ActiveSessions] and returns a finish function that records the
// outcome and duration. finish must be called exactly once.
func StartOperation(ctx context.Context, m *Metrics, name string) (_ context.Context, finish func(error)) {
	start := time.Now()
	ctx, span := StartSpan(ctx, "wavecast."+name)
	m.ActiveSessions.Add(ctx, 1)
	return ctx, func(err error) {
		m.ActiveSessions.Add(ctx, -1)
		m.RecordOperation(ctx, name, Status(err), time.Since(start).Seconds())
		EndSpan(span, err)
	}
}
