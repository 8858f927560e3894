package observe

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Endpoint classes of the telemetry server. Anything else is "other", which
// keeps the histogram's path label bounded no matter what clients request.
const (
	EndpointMetrics = "metrics"
	EndpointHealthz = "healthz"
	EndpointReadyz  = "readyz"
	EndpointOther   = "other"
)

// EndpointClass maps a request path to its endpoint class.
func EndpointClass(path string) string {
	switch path {
	case "/metrics":
		return EndpointMetrics
	case "/healthz":
		return EndpointHealthz
	case "/readyz":
		return EndpointReadyz
	default:
		return EndpointOther
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware instruments the telemetry server. Every request is timed into
// [Metrics.HTTPRequestDuration] labelled with its endpoint class and status
// code. Prometheus scrapes stop there: they are periodic and would otherwise
// flood the trace backend. Health checks and unknown paths get a server span
// continuing any W3C trace context, an X-Correlation-ID response header and a
// log line; a failing readiness check is logged as a warning.
func Middleware(m *Metrics) func(http.Handler) http.Handler {
	prop := propagation.TraceContext{}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			class := EndpointClass(r.URL.Path)
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			if class == EndpointMetrics {
				next.ServeHTTP(rec, r)
				m.recordHTTP(r, class, rec.status, time.Since(start))
				return
			}

			ctx := prop.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := StartSpan(ctx, "telemetry "+class,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(r.Method),
					semconv.URLPath(r.URL.Path),
				),
			)
			defer span.End()

			cid := CorrelationID(ctx)
			if cid != "" {
				w.Header().Set("X-Correlation-ID", cid)
			}
			r = r.WithContext(ctx)
			next.ServeHTTP(rec, r)

			elapsed := time.Since(start)
			m.recordHTTP(r, class, rec.status, elapsed)
			span.SetAttributes(semconv.HTTPResponseStatusCode(rec.status))

			level := slog.LevelDebug
			if class == EndpointReadyz && rec.status >= http.StatusBadRequest {
				level = slog.LevelWarn
			}
			slog.LogAttrs(ctx, level, "telemetry request",
				slog.String("trace_id", cid),
				slog.String("endpoint", class),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.status),
				slog.Duration("duration", elapsed),
			)
		})
	}
}

func (m *Metrics) recordHTTP(r *http.Request, class string, status int, d time.Duration) {
	m.HTTPRequestDuration.Record(r.Context(), d.Seconds(),
		metric.WithAttributes(
			attribute.String("method", r.Method),
			attribute.String("endpoint", class),
			attribute.String("status", strconv.Itoa(status)),
		),
	)
}
